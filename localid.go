package neosample

import (
	"context"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// GlobalID is the store-independent identity of a vertex: its label and the
// string form of its primary key.
type GlobalID struct {
	Label string
	Key   string
}

func (g GlobalID) String() string { return g.Label + "/" + g.Key }

// IDLookup resolves store vertex ids of one label to global ids. The returned
// map must contain every requested id.
type IDLookup func(ctx context.Context, label string, ids []VertexID) (map[VertexID]GlobalID, error)

// Frontier maps a vertex label to the vertices awaiting expansion.
type Frontier map[string][]VertexID

// Labels returns the labels of f with at least one vertex, sorted.
func (f Frontier) Labels() []string {
	labels := make([]string, 0, len(f))
	for l, ids := range f {
		if len(ids) > 0 {
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)
	return labels
}

// Len returns the number of vertices across all labels.
func (f Frontier) Len() int {
	n := 0
	for _, ids := range f {
		n += len(ids)
	}
	return n
}

// Dedup returns a copy of f with repeated ids removed, keeping first occurrences.
func (f Frontier) Dedup() Frontier {
	out := make(Frontier, len(f))
	for l, ids := range f {
		if len(ids) == 0 {
			continue
		}
		seen := make(map[VertexID]bool, len(ids))
		kept := make([]VertexID, 0, len(ids))
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				kept = append(kept, id)
			}
		}
		out[l] = kept
	}
	return out
}

// frontierBuilder accumulates distinct vertex ids per label.
type frontierBuilder map[string]*roaring64.Bitmap

func (b frontierBuilder) add(label string, ids []VertexID) {
	if len(ids) == 0 {
		return
	}
	bm, ok := b[label]
	if !ok {
		bm = roaring64.New()
		b[label] = bm
	}
	for _, id := range ids {
		bm.Add(uint64(id))
	}
}

// frontier emits the collected ids in ascending order.
func (b frontierBuilder) frontier() Frontier {
	out := make(Frontier, len(b))
	for label, bm := range b {
		raw := bm.ToArray()
		ids := make([]VertexID, len(raw))
		for i, v := range raw {
			ids[i] = VertexID(v)
		}
		out[label] = ids
	}
	return out
}

// LocalIDTable assigns dense per-label local ids to global ids in first-seen
// order.
type LocalIDTable struct {
	index   map[GlobalID]int
	byLabel map[string][]GlobalID
	labels  []string
}

// NewLocalIDTable returns an empty table.
func NewLocalIDTable() *LocalIDTable {
	return &LocalIDTable{
		index:   make(map[GlobalID]int),
		byLabel: make(map[string][]GlobalID),
	}
}

// Assign returns the local id of g, allocating the next free id of its label
// if g has not been seen before.
func (t *LocalIDTable) Assign(g GlobalID) int {
	if id, ok := t.index[g]; ok {
		return id
	}
	list, ok := t.byLabel[g.Label]
	if !ok {
		t.labels = append(t.labels, g.Label)
	}
	id := len(list)
	t.byLabel[g.Label] = append(list, g)
	t.index[g] = id
	return id
}

// Lookup returns the local id of g without assigning one.
func (t *LocalIDTable) Lookup(g GlobalID) (int, bool) {
	id, ok := t.index[g]
	return id, ok
}

// Len returns the number of ids assigned to label.
func (t *LocalIDTable) Len(label string) int {
	return len(t.byLabel[label])
}

// Labels returns the labels in the order they were first assigned.
func (t *LocalIDTable) Labels() []string {
	return append([]string(nil), t.labels...)
}

// GlobalIDs returns the local-id ordered global ids of label.
func (t *LocalIDTable) GlobalIDs(label string) []GlobalID {
	return append([]GlobalID(nil), t.byLabel[label]...)
}

// Keys returns the local-id ordered primary keys of label.
func (t *LocalIDTable) Keys(label string) []string {
	list := t.byLabel[label]
	keys := make([]string, len(list))
	for i, g := range list {
		keys[i] = g.Key
	}
	return keys
}
