package neosample

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// VertexID is the store-assigned identifier of a vertex. It is unique only
// within a vertex label.
type VertexID int64

// CSC is the destination-major adjacency of one edge type restricted to a
// frontier. Column i holds the neighbors Row[ColOffsets[i]:ColOffsets[i+1]]
// of Frontier[i].
type CSC struct {
	Frontier   []VertexID
	ColOffsets []int
	Row        []VertexID
	// EdgeIDs is aligned with Row when edge ids were requested, nil otherwise.
	EdgeIDs []int64
	// NbrType is the label of every neighbor, empty if no column has one.
	NbrType string
}

// Degree returns the width of column i.
func (c *CSC) Degree(i int) int {
	return c.ColOffsets[i+1] - c.ColOffsets[i]
}

// NumEdges returns the number of stored neighbor entries.
func (c *CSC) NumEdges() int {
	return len(c.Row)
}

// Validate checks the structural invariants of the CSC.
func (c *CSC) Validate() error {
	if len(c.ColOffsets) != len(c.Frontier)+1 {
		return invariantf("csc has %d column offsets for %d frontier vertices", len(c.ColOffsets), len(c.Frontier))
	}
	if c.ColOffsets[0] != 0 {
		return invariantf("csc offsets start at %d", c.ColOffsets[0])
	}
	for i := 1; i < len(c.ColOffsets); i++ {
		if c.ColOffsets[i] < c.ColOffsets[i-1] {
			return invariantf("csc offsets decrease at column %d", i-1)
		}
	}
	if last := c.ColOffsets[len(c.ColOffsets)-1]; last != len(c.Row) {
		return invariantf("csc offsets end at %d but %d neighbors are stored", last, len(c.Row))
	}
	if c.EdgeIDs != nil && len(c.EdgeIDs) != len(c.Row) {
		return invariantf("csc has %d edge ids for %d neighbors", len(c.EdgeIDs), len(c.Row))
	}
	return nil
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// neighborQuery returns the statement listing the distinct (seed, neighbor)
// pairs of one edge type, grouped by seed.
func neighborQuery(et EdgeType, needEdges bool) string {
	pattern := "(seed)-[e]-(nbr)"
	if et.Directed {
		pattern = "(nbr)-[e]->(seed)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH %s WHERE id(seed) IN $seed_ids AND type(e) = $edge_type\n", pattern)
	if needEdges {
		b.WriteString("WITH seed, nbr, collect(e)[0] AS edge ORDER BY id(seed)\n")
		b.WriteString("RETURN id(seed) AS seed, id(nbr) AS nbr, labels(nbr)[0] AS nbr_label, id(edge) AS edge")
	} else {
		b.WriteString("WITH DISTINCT seed, nbr ORDER BY id(seed)\n")
		b.WriteString("RETURN id(seed) AS seed, id(nbr) AS nbr, labels(nbr)[0] AS nbr_label")
	}
	return b.String()
}

func toInt64s(ids []VertexID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// BuildCSC queries every distinct neighbor of the frontier vertices through
// edge type et and assembles them into a CSC. Columns follow the order in
// which destinations appear in the result stream; frontier vertices without
// neighbors are appended afterwards as empty columns, in frontier order.
//
// The frontier must not contain duplicates.
func BuildCSC(ctx context.Context, runner DBRunner, frontier []VertexID, et EdgeType, needEdges bool) (*CSC, error) {
	query := neighborQuery(et, needEdges)
	params := map[string]any{
		"seed_ids":  toInt64s(frontier),
		"edge_type": et.Label,
	}

	inFrontier := make(map[VertexID]bool, len(frontier))
	for _, v := range frontier {
		inFrontier[v] = true
	}

	csc := &CSC{
		Frontier:   make([]VertexID, 0, len(frontier)),
		ColOffsets: []int{0},
	}
	if needEdges {
		csc.EdgeIDs = []int64{}
	}
	seen := make(map[VertexID]bool, len(frontier))
	var current VertexID
	started := false

	err := stream(ctx, runner, "neighbors", query, params, func(rec *neo4j.Record) error {
		seedRaw, ok1 := recordInt64(rec, "seed")
		nbrRaw, ok2 := recordInt64(rec, "nbr")
		label, ok3 := recordString(rec, "nbr_label")
		if !ok1 || !ok2 || !ok3 {
			return malformedRow(query, "expected seed, nbr and nbr_label columns, got %v", rec.Keys)
		}
		seed, nbr := VertexID(seedRaw), VertexID(nbrRaw)

		if csc.NbrType == "" {
			csc.NbrType = label
		} else if csc.NbrType != label {
			return invariantf("edge type %s yields neighbors labeled both %q and %q", et.Label, csc.NbrType, label)
		}

		if !started || seed != current {
			if started {
				csc.ColOffsets = append(csc.ColOffsets, len(csc.Row))
			}
			if !inFrontier[seed] {
				return invariantf("edge type %s returned vertex %d which is not in the frontier", et.Label, seed)
			}
			if seen[seed] {
				return invariantf("edge type %s returned vertex %d in two separate groups", et.Label, seed)
			}
			seen[seed] = true
			csc.Frontier = append(csc.Frontier, seed)
			current, started = seed, true
		}
		csc.Row = append(csc.Row, nbr)
		if needEdges {
			edge, ok := recordInt64(rec, "edge")
			if !ok {
				return malformedRow(query, "expected edge column, got %v", rec.Keys)
			}
			csc.EdgeIDs = append(csc.EdgeIDs, edge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if started {
		csc.ColOffsets = append(csc.ColOffsets, len(csc.Row))
	}

	// Isolated frontier vertices keep a zero-width column.
	if len(csc.Frontier) < len(frontier) {
		for _, v := range frontier {
			if !seen[v] {
				csc.Frontier = append(csc.Frontier, v)
				csc.ColOffsets = append(csc.ColOffsets, len(csc.Row))
			}
		}
	}

	if len(csc.Frontier) != len(frontier) {
		return nil, invariantf("csc has %d columns for a frontier of %d vertices", len(csc.Frontier), len(frontier))
	}
	if err := csc.Validate(); err != nil {
		return nil, err
	}
	return csc, nil
}
