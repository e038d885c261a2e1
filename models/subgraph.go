package models

import (
	"math"

	"github.com/saulfrancisco-ruizacevedo/go-neosample"
)

// VertexSet is the local-id ordered vertex list of one label.
type VertexSet struct {
	Label string   `json:"label"`
	Keys  []string `json:"keys"`
	// NumDst is the size of the destination prefix in a blocks layer.
	NumDst       int          `json:"num_dst,omitempty"`
	FeatureNames []string     `json:"feature_names,omitempty"`
	Features     [][]*float64 `json:"features,omitempty"`
}

// EdgeSet holds the local-id edges of one relation.
type EdgeSet struct {
	Nbr     string  `json:"nbr"`
	Edge    string  `json:"edge"`
	Seed    string  `json:"seed"`
	Src     []int   `json:"src"`
	Dst     []int   `json:"dst"`
	EdgeIDs []int64 `json:"edge_ids,omitempty"`
}

// Layer is one local id space.
type Layer struct {
	Hop      int         `json:"hop"`
	Vertices []VertexSet `json:"vertices"`
	Edges    []EdgeSet   `json:"edges"`
}

// SubgraphResult is the JSON form of a materialized subgraph.
type SubgraphResult struct {
	Kind   string           `json:"kind"`
	Hops   int              `json:"hops"`
	Seeds  map[string][]int `json:"seeds"`
	Layers []Layer          `json:"layers"`
}

// ExportSubgraph converts a materialized subgraph. Missing feature values
// become null.
func ExportSubgraph(sub *neosample.MaterializedSubgraph) *SubgraphResult {
	if sub == nil {
		return nil
	}
	out := &SubgraphResult{
		Kind:   sub.Kind.String(),
		Hops:   sub.Hops,
		Seeds:  sub.Seeds,
		Layers: make([]Layer, 0, len(sub.Layers)),
	}
	for _, l := range sub.Layers {
		layer := Layer{Hop: l.Hop, Vertices: []VertexSet{}, Edges: []EdgeSet{}}
		for _, label := range l.Labels() {
			layer.Vertices = append(layer.Vertices, exportVertices(l.Vertices[label]))
		}
		for _, rel := range l.Relations() {
			el := l.Edges[rel]
			layer.Edges = append(layer.Edges, EdgeSet{
				Nbr:     rel.Nbr,
				Edge:    rel.Edge,
				Seed:    rel.Seed,
				Src:     el.Src,
				Dst:     el.Dst,
				EdgeIDs: el.EdgeIDs,
			})
		}
		out.Layers = append(out.Layers, layer)
	}
	return out
}

func exportVertices(vs *neosample.VertexSet) VertexSet {
	out := VertexSet{
		Label:        vs.Label,
		Keys:         vs.Keys(),
		NumDst:       vs.NumDst,
		FeatureNames: vs.FeatureNames,
	}
	if vs.Features == nil {
		return out
	}
	rows, cols := vs.Features.Dims()
	out.Features = make([][]*float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]*float64, cols)
		for j := 0; j < cols; j++ {
			if v := vs.Features.At(i, j); !math.IsNaN(v) {
				row[j] = &v
			}
		}
		out.Features[i] = row
	}
	return out
}
