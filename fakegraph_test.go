package neosample

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type fakeVertex struct {
	label string
	props map[string]any
}

type fakeEdge struct {
	id       int64
	src, dst VertexID
	label    string
}

// fakeGraph is an in-memory DBRunner answering the statements issued by
// this package.
type fakeGraph struct {
	mu       sync.Mutex
	vertices map[VertexID]fakeVertex
	edges    []fakeEdge
	nextEdge int64

	// failOn makes every statement containing the substring fail.
	failOn string
	// onStream runs before each streamed statement.
	onStream func(query string)

	streamed []string
	ran      []string
	ranArgs  []map[string]any
}

var errFakeStore = errors.New("fake store unavailable")

func newFakeGraph() *fakeGraph {
	return &fakeGraph{vertices: make(map[VertexID]fakeVertex)}
}

func (g *fakeGraph) vertex(id VertexID, label string, props map[string]any) *fakeGraph {
	if props == nil {
		props = map[string]any{}
	}
	g.vertices[id] = fakeVertex{label: label, props: props}
	return g
}

func (g *fakeGraph) edge(src, dst VertexID, label string) *fakeGraph {
	g.nextEdge++
	g.edges = append(g.edges, fakeEdge{id: 1000 + g.nextEdge, src: src, dst: dst, label: label})
	return g
}

func (g *fakeGraph) statements(substr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, q := range g.streamed {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

func (g *fakeGraph) Run(_ context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ran = append(g.ran, query)
	g.ranArgs = append(g.ranArgs, params)
	if g.failOn != "" && strings.Contains(query, g.failOn) {
		return nil, errFakeStore
	}
	return &neo4j.EagerResult{}, nil
}

func (g *fakeGraph) Stream(_ context.Context, query string, params map[string]any, fn func(*neo4j.Record) error) error {
	if g.onStream != nil {
		g.onStream(query)
	}
	g.mu.Lock()
	g.streamed = append(g.streamed, query)
	if g.failOn != "" && strings.Contains(query, g.failOn) {
		g.mu.Unlock()
		return errFakeStore
	}
	rows, err := g.answer(query, params)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

var (
	reBacktick   = regexp.MustCompile("`([^`]+)`")
	reFeatureCol = regexp.MustCompile("n\\.`([^`]+)` AS (f\\d+)")
	reMatchLabel = regexp.MustCompile("\\(v:`?([A-Za-z_][A-Za-z0-9_]*)`?")
)

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func (g *fakeGraph) answer(query string, params map[string]any) ([]*neo4j.Record, error) {
	switch {
	case strings.Contains(query, "$seed_ids"):
		return g.neighbors(query, params), nil
	case strings.Contains(query, "AS internal"):
		pk := reBacktick.FindStringSubmatch(query)[1]
		var rows []*neo4j.Record
		for _, id := range params["ids"].([]int64) {
			v, ok := g.vertices[VertexID(id)]
			if !ok {
				continue
			}
			var key any
			if p, ok := v.props[pk]; ok && p != nil {
				key = fmt.Sprint(p)
			}
			rows = append(rows, record([]string{"internal", "key"}, id, key))
		}
		return rows, nil
	case strings.Contains(query, "$keys"):
		return g.byKeys(query, params), nil
	case strings.Contains(query, "count(v)"):
		return []*neo4j.Record{record([]string{"total"}, int64(len(g.labeled(query))))}, nil
	case strings.Contains(query, "id(v) AS id"):
		var rows []*neo4j.Record
		for _, id := range g.labeled(query) {
			rows = append(rows, record([]string{"id"}, int64(id)))
		}
		return rows, nil
	}
	return nil, fmt.Errorf("fake graph cannot answer %q", query)
}

func (g *fakeGraph) labeled(query string) []VertexID {
	m := reMatchLabel.FindStringSubmatch(query)
	var ids []VertexID
	for id, v := range g.vertices {
		if m != nil && v.label == m[1] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *fakeGraph) neighbors(query string, params map[string]any) []*neo4j.Record {
	directed := strings.Contains(query, "->(seed)")
	withEdges := strings.Contains(query, "AS edge")
	label := params["edge_type"].(string)
	seeds := append([]int64(nil), params["seed_ids"].([]int64)...)
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })

	keys := []string{"seed", "nbr", "nbr_label"}
	if withEdges {
		keys = append(keys, "edge")
	}
	var rows []*neo4j.Record
	for _, s := range seeds {
		seed := VertexID(s)
		seen := make(map[VertexID]bool)
		emit := func(nbr VertexID, edgeID int64) {
			if seen[nbr] {
				return
			}
			seen[nbr] = true
			vals := []any{int64(seed), int64(nbr), g.vertices[nbr].label}
			if withEdges {
				vals = append(vals, edgeID)
			}
			rows = append(rows, record(keys, vals...))
		}
		for _, e := range g.edges {
			if e.label != label {
				continue
			}
			switch {
			case e.dst == seed:
				emit(e.src, e.id)
			case !directed && e.src == seed:
				emit(e.dst, e.id)
			}
		}
	}
	return rows
}

func (g *fakeGraph) byKeys(query string, params map[string]any) []*neo4j.Record {
	ticks := reBacktick.FindAllStringSubmatch(query, -1)
	label, pk := ticks[0][1], ticks[1][1]
	cols := reFeatureCol.FindAllStringSubmatch(query, -1)
	wantKeys := make(map[any]bool)
	for _, k := range params["keys"].([]string) {
		wantKeys[k] = true
	}
	for _, k := range params["int_keys"].([]int64) {
		wantKeys[k] = true
	}

	ids := make([]VertexID, 0, len(g.vertices))
	for id := range g.vertices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows []*neo4j.Record
	for _, id := range ids {
		v := g.vertices[id]
		if v.label != label {
			continue
		}
		stored := v.props[pk]
		if stored == nil || !wantKeys[stored] {
			continue
		}
		key := fmt.Sprint(stored)
		if len(cols) == 0 {
			node := neo4j.Node{Id: int64(id), Labels: []string{label}, Props: v.props}
			rows = append(rows, record([]string{"key", "n"}, key, node))
			continue
		}
		keys := []string{"key"}
		vals := []any{key}
		for _, c := range cols {
			keys = append(keys, c[2])
			vals = append(vals, v.props[c[1]])
		}
		rows = append(rows, record(keys, vals...))
	}
	return rows
}
