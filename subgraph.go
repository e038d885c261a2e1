package neosample

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
)

// Relation identifies an edge set of a heterogeneous subgraph: edges of type
// Edge from Nbr vertices into Seed vertices.
type Relation struct {
	Nbr  string
	Edge string
	Seed string
}

func (r Relation) String() string {
	return fmt.Sprintf("%s-[%s]->%s", r.Nbr, r.Edge, r.Seed)
}

// VertexSet is the local-id indexed vertex list of one label in a layer.
type VertexSet struct {
	Label     string
	GlobalIDs []GlobalID
	// NumDst is the number of leading vertices that are destinations of the
	// layer. It is only set by the blocks collector.
	NumDst int
	// FeatureNames, Features and Missing are filled by AddFeatures. Row i of
	// Features belongs to local id i; missing cells hold NaN and their
	// row-major index is set in Missing.
	FeatureNames []string
	Features     *mat.Dense
	Missing      *roaring.Bitmap
}

// Len returns the number of vertices.
func (v *VertexSet) Len() int { return len(v.GlobalIDs) }

// Keys returns the primary keys in local-id order.
func (v *VertexSet) Keys() []string {
	keys := make([]string, len(v.GlobalIDs))
	for i, g := range v.GlobalIDs {
		keys[i] = g.Key
	}
	return keys
}

// EdgeList holds the local-id edges of one relation. Edge k goes from Src[k]
// (a Relation.Nbr vertex) into Dst[k] (a Relation.Seed vertex).
type EdgeList struct {
	Relation Relation
	Src      []int
	Dst      []int
	// EdgeIDs is aligned with Src when edge ids were sampled.
	EdgeIDs []int64
}

// Len returns the number of edges.
func (e *EdgeList) Len() int { return len(e.Src) }

// Dense returns the numSrc x numDst adjacency matrix of the edge list, with
// the multiplicity of each edge as entry. It returns nil when either
// dimension is zero.
func (e *EdgeList) Dense(numSrc, numDst int) *mat.Dense {
	if numSrc == 0 || numDst == 0 {
		return nil
	}
	m := mat.NewDense(numSrc, numDst, nil)
	for k := range e.Src {
		m.Set(e.Src[k], e.Dst[k], m.At(e.Src[k], e.Dst[k])+1)
	}
	return m
}

// Layer is one local id space with its vertices and edges. The generic and
// hetero collectors produce a single layer; the blocks collector produces one
// per expanded hop.
type Layer struct {
	// Hop is the hop this layer was built from, or -1 for a merged layer.
	Hop       int
	Vertices  map[string]*VertexSet
	Edges     map[Relation]*EdgeList
	relations []Relation
	table     *LocalIDTable
}

func newLayer(hop int, table *LocalIDTable) *Layer {
	return &Layer{
		Hop:      hop,
		Vertices: make(map[string]*VertexSet),
		Edges:    make(map[Relation]*EdgeList),
		table:    table,
	}
}

// edgeList returns the edge list of rel, creating it on first use.
func (l *Layer) edgeList(rel Relation) *EdgeList {
	el, ok := l.Edges[rel]
	if !ok {
		el = &EdgeList{Relation: rel}
		l.Edges[rel] = el
		l.relations = append(l.relations, rel)
	}
	return el
}

// Relations returns the relations in first-seen order.
func (l *Layer) Relations() []Relation {
	return append([]Relation(nil), l.relations...)
}

// Labels returns the vertex labels of the layer, sorted.
func (l *Layer) Labels() []string {
	labels := make([]string, 0, len(l.Vertices))
	for label := range l.Vertices {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// LocalID returns the local id of g in this layer.
func (l *Layer) LocalID(g GlobalID) (int, bool) {
	if l.table == nil {
		return 0, false
	}
	return l.table.Lookup(g)
}

// NumVertices returns the vertex count of label.
func (l *Layer) NumVertices(label string) int {
	if vs, ok := l.Vertices[label]; ok {
		return vs.Len()
	}
	return 0
}

// NumEdges returns the edge count across all relations.
func (l *Layer) NumEdges() int {
	n := 0
	for _, el := range l.Edges {
		n += el.Len()
	}
	return n
}

// MaterializedSubgraph is the output of a collector.
type MaterializedSubgraph struct {
	Kind CollectorKind
	// Hops is the number of hops that were actually expanded. It is lower than
	// the configured depth when expansion stopped on an isolated frontier.
	Hops   int
	Layers []*Layer
	// Seeds holds the local ids of the seed vertices in Layers[0], per label.
	Seeds map[string][]int
}

// Layer returns layer i, or nil if it does not exist.
func (m *MaterializedSubgraph) Layer(i int) *Layer {
	if i < 0 || i >= len(m.Layers) {
		return nil
	}
	return m.Layers[i]
}
