// Package models contains the serializable forms of sampled subgraphs.
// The structs in this file represent a generic graph structure, ready to be
// serialized to JSON for frontend clients or other services.
package models

import (
	"fmt"
	"math"

	"github.com/saulfrancisco-ruizacevedo/go-neosample"
)

// GraphNode represents a sampled vertex.
// It is a domain-agnostic representation, capturing the essential components of any node:
// its global identifier, its label, and its feature values. This struct is designed to be
// easily serialized to JSON.
type GraphNode struct {
	// ID is the global identifier of the vertex, rendered as Label/Key.
	ID string `json:"id"`

	// Labels holds the vertex label.
	Labels []string `json:"labels"`

	// Properties maps feature names to their values. Missing features are omitted.
	Properties map[string]interface{} `json:"properties"`
}

// Edge represents a sampled edge between two vertices of a layer.
type Edge struct {
	// ID identifies the edge within the result, as Relation#index.
	ID string `json:"id"`

	// Source is the ID of the neighbor vertex.
	Source string `json:"source"`

	// Target is the ID of the vertex the neighbor was sampled for.
	Target string `json:"target"`

	// Type is the relationship's type (e.g., "BOUGHT_WITH", "REVIEWED").
	Type string `json:"type"`

	// Properties holds the store edge id when edge ids were sampled.
	Properties map[string]interface{} `json:"properties"`
}

// GraphResult is a top-level container for a graph view of a layer.
// It is composed of a list of nodes and a list of edges, which is a standard
// format consumed by most frontend graph visualization libraries (e.g., D3.js, Cytoscape.js).
type GraphResult struct {
	// Nodes contains every vertex of the layer.
	Nodes []*GraphNode `json:"nodes"`

	// Edges contains every sampled edge of the layer.
	Edges []*Edge `json:"edges"`
}

// ExportGraph converts one layer of a sampled subgraph into a GraphResult.
// Vertices are listed per label in sorted label order and local-id order.
func ExportGraph(layer *neosample.Layer) *GraphResult {
	graph := &GraphResult{
		Nodes: make([]*GraphNode, 0),
		Edges: make([]*Edge, 0),
	}
	if layer == nil {
		return graph
	}

	for _, label := range layer.Labels() {
		vs := layer.Vertices[label]
		for i, g := range vs.GlobalIDs {
			props := make(map[string]interface{})
			if vs.Features != nil {
				for j, name := range vs.FeatureNames {
					if v := vs.Features.At(i, j); !math.IsNaN(v) {
						props[name] = v
					}
				}
			}
			graph.Nodes = append(graph.Nodes, &GraphNode{
				ID:         g.String(),
				Labels:     []string{label},
				Properties: props,
			})
		}
	}

	for _, rel := range layer.Relations() {
		el := layer.Edges[rel]
		src, dst := layer.Vertices[rel.Nbr], layer.Vertices[rel.Seed]
		for k := range el.Src {
			props := make(map[string]interface{})
			if el.EdgeIDs != nil {
				props["edge_id"] = el.EdgeIDs[k]
			}
			graph.Edges = append(graph.Edges, &Edge{
				ID:         fmt.Sprintf("%s#%d", rel, k),
				Source:     src.GlobalIDs[el.Src[k]].String(),
				Target:     dst.GlobalIDs[el.Dst[k]].String(),
				Type:       rel.Edge,
				Properties: props,
			})
		}
	}
	return graph
}
