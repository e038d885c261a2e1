package neosample

import (
	"fmt"
	"sort"
)

// EdgeType describes one edge label of the graph schema together with the
// vertex labels it connects.
type EdgeType struct {
	Src      string `yaml:"src" json:"src"`
	Dst      string `yaml:"dst" json:"dst"`
	Label    string `yaml:"label" json:"label"`
	Directed bool   `yaml:"directed" json:"directed"`
}

func (e EdgeType) String() string {
	arrow := "-"
	if e.Directed {
		arrow = "->"
	}
	return fmt.Sprintf("(%s)-[%s]%s(%s)", e.Src, e.Label, arrow, e.Dst)
}

// VertexEntity describes a vertex label: its primary key property and the
// properties that are served as features.
type VertexEntity struct {
	Label      string   `yaml:"label" json:"label"`
	PrimaryKey string   `yaml:"primary_key" json:"primary_key"`
	Features   []string `yaml:"features,omitempty" json:"features,omitempty"`
}

// SchemaProvider exposes the parts of a graph schema the sampler needs. It is
// consulted once, when a NeighborSampler is built.
type SchemaProvider interface {
	EdgeTypes() []EdgeType
	VertexPrimaryKey(label string) (string, bool)
}

// Schema is an immutable in-memory SchemaProvider.
type Schema struct {
	vertices map[string]VertexEntity
	edges    []EdgeType
}

// NewSchema validates and assembles a schema. Edge endpoints must reference
// declared vertex labels unless no vertices are declared at all.
func NewSchema(vertices []VertexEntity, edges []EdgeType) (*Schema, error) {
	s := &Schema{vertices: make(map[string]VertexEntity, len(vertices))}
	for _, v := range vertices {
		if v.Label == "" {
			return nil, configErrorf("schema.vertices", "vertex label must not be empty")
		}
		if _, dup := s.vertices[v.Label]; dup {
			return nil, configErrorf("schema.vertices", "vertex %q declared twice", v.Label)
		}
		s.vertices[v.Label] = v
	}
	seen := make(map[EdgeType]bool, len(edges))
	for _, e := range edges {
		if e.Src == "" || e.Dst == "" || e.Label == "" {
			return nil, configErrorf("schema.edges", "edge type %v is incomplete", e)
		}
		if len(s.vertices) > 0 {
			for _, l := range []string{e.Src, e.Dst} {
				if _, ok := s.vertices[l]; !ok {
					return nil, configErrorf("schema.edges", "edge %s references unknown vertex %q", e.Label, l)
				}
			}
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		s.edges = append(s.edges, e)
	}
	return s, nil
}

// EdgeTypes returns the edge types in declaration order.
func (s *Schema) EdgeTypes() []EdgeType {
	return append([]EdgeType(nil), s.edges...)
}

// VertexPrimaryKey returns the primary key property of a vertex label.
func (s *Schema) VertexPrimaryKey(label string) (string, bool) {
	v, ok := s.vertices[label]
	if !ok || v.PrimaryKey == "" {
		return "", false
	}
	return v.PrimaryKey, true
}

// Vertex returns the declared entity for label.
func (s *Schema) Vertex(label string) (VertexEntity, bool) {
	v, ok := s.vertices[label]
	return v, ok
}

// VertexLabels returns every declared vertex label, sorted.
func (s *Schema) VertexLabels() []string {
	labels := make([]string, 0, len(s.vertices))
	for l := range s.vertices {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// hopPlan is the per-hop edge schedule derived from a schema. Level k lists
// the edge types whose destination label is a frontier label at hop k.
type hopPlan [][]EdgeType

// buildHopPlan walks the edge types backward from seedType for the given
// number of hops. An undirected edge type is also walked from its source
// side, reversed so that Dst is always the frontier label.
func buildHopPlan(edges []EdgeType, seedType string, hops int) (hopPlan, error) {
	plan := make(hopPlan, 0, hops)
	frontier := map[string]bool{seedType: true}
	for k := 0; k < hops; k++ {
		var level []EdgeType
		next := make(map[string]bool)
		inLevel := make(map[EdgeType]bool)
		add := func(e EdgeType) {
			if inLevel[e] {
				return
			}
			inLevel[e] = true
			level = append(level, e)
			next[e.Src] = true
		}
		for _, e := range edges {
			if frontier[e.Dst] {
				add(e)
			}
			if !e.Directed && frontier[e.Src] {
				add(EdgeType{Src: e.Dst, Dst: e.Src, Label: e.Label})
			}
		}
		if len(level) == 0 {
			return nil, configErrorf("fanouts", "hop %d: no edge type leads into %v", k, sortedKeys(frontier))
		}
		plan = append(plan, level)
		frontier = next
	}
	return plan, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
