package neosample

import (
	"context"
	"fmt"
	"strings"
)

// CollectorKind selects the shape of a materialized subgraph.
type CollectorKind int

const (
	// CollectorGeneric merges every hop into one id space and concatenates
	// the edges of each relation.
	CollectorGeneric CollectorKind = iota
	// CollectorBlocks builds one layer per hop with the hop's destinations
	// first, suited to layer-wise message passing.
	CollectorBlocks
	// CollectorHetero merges every hop into one id space and keeps each
	// relation's edges as a set.
	CollectorHetero
)

var collectorNames = map[CollectorKind]string{
	CollectorGeneric: "generic",
	CollectorBlocks:  "blocks",
	CollectorHetero:  "hetero",
}

func (k CollectorKind) String() string {
	if name, ok := collectorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CollectorKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k CollectorKind) MarshalText() ([]byte, error) {
	if _, ok := collectorNames[k]; !ok {
		return nil, configErrorf("collector", "unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CollectorKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for kind, name := range collectorNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return configErrorf("collector", "unknown kind %q", s)
}

// HopRecord is the sampled COO output of one edge type in one hop: Rows[k]
// is a neighbor of Cols[k]. Records are not deduplicated.
type HopRecord struct {
	Rows     []VertexID
	Cols     []VertexID
	EdgeIDs  []int64
	SeedType string
	NbrType  string
	EdgeType string
}

func (r HopRecord) relation() Relation {
	return Relation{Nbr: r.NbrType, Edge: r.EdgeType, Seed: r.SeedType}
}

// assembler shapes the renumbered hops into layers. The renumbering itself
// lives in Collector.ToLocal and is shared by every kind.
type assembler interface {
	// seedTable returns the table seeds are numbered in before any hop, or
	// nil if seeds are numbered as the first hop's destinations.
	seedTable() *LocalIDTable
	// beginHop returns the table used for hop k.
	beginHop(hop int) *LocalIDTable
	// destinations reports the per-label destination counts of hop k, taken
	// right after the destinations were numbered.
	destinations(hop int, counts map[string]int)
	addEdges(hop int, rel Relation, src, dst []int, edgeIDs []int64)
	finish() []*Layer
}

func newAssembler(kind CollectorKind) (assembler, error) {
	switch kind {
	case CollectorGeneric:
		return newMergedAssembler(false), nil
	case CollectorHetero:
		return newMergedAssembler(true), nil
	case CollectorBlocks:
		return &blocksAssembler{}, nil
	}
	return nil, configErrorf("collector", "unknown kind %d", int(kind))
}

// Collector accumulates the hops of one sample call and renumbers them into
// a MaterializedSubgraph. A Collector is not safe for concurrent use.
type Collector struct {
	kind      CollectorKind
	seeds     Frontier
	frontiers []Frontier
	hops      [][]HopRecord
	result    *MaterializedSubgraph
}

// NewCollector returns an empty collector of the given kind.
func NewCollector(kind CollectorKind) (*Collector, error) {
	if _, err := newAssembler(kind); err != nil {
		return nil, err
	}
	return &Collector{kind: kind}, nil
}

// Kind returns the output shape of the collector.
func (c *Collector) Kind() CollectorKind { return c.kind }

// ResetSeeds discards every collected hop and starts over from seeds.
func (c *Collector) ResetSeeds(seeds Frontier) {
	c.seeds = seeds.Dedup()
	c.frontiers = []Frontier{c.seeds}
	c.hops = nil
	c.result = nil
}

// NumHops returns the number of hops added so far.
func (c *Collector) NumHops() int { return len(c.hops) }

// Sealed reports whether ToLocal has run.
func (c *Collector) Sealed() bool { return c.result != nil }

// AddHop appends the records of one hop and returns the frontier of the next
// hop: the distinct sampled neighbors per label, in ascending id order.
func (c *Collector) AddHop(records []HopRecord) (Frontier, error) {
	if c.Sealed() {
		return nil, ErrCollectorSealed
	}
	if c.frontiers == nil {
		c.frontiers = []Frontier{c.seeds}
	}
	next := make(frontierBuilder)
	for _, r := range records {
		if len(r.Rows) != len(r.Cols) {
			return nil, invariantf("hop record %s has %d rows and %d cols", r.EdgeType, len(r.Rows), len(r.Cols))
		}
		if r.EdgeIDs != nil && len(r.EdgeIDs) != len(r.Rows) {
			return nil, invariantf("hop record %s has %d edge ids for %d edges", r.EdgeType, len(r.EdgeIDs), len(r.Rows))
		}
		next.add(r.NbrType, r.Rows)
	}
	c.hops = append(c.hops, records)
	f := next.frontier()
	c.frontiers = append(c.frontiers, f)
	return f, nil
}

// Subgraph returns the materialized subgraph, or nil before ToLocal.
func (c *Collector) Subgraph() *MaterializedSubgraph { return c.result }

// ToLocal resolves every collected vertex to its global id through lookup
// (one call per label) and renumbers the hops into dense per-label local ids
// in first-seen order, seeds first. It may run only once per ResetSeeds.
//
// Parameters:
//   - ctx: Passed on to every lookup call.
//   - lookup: Resolves the internal ids of one label to global ids.
//
// Returns:
//
//	The collector itself, now sealed, or ErrAlreadyLocal when ToLocal already
//	ran. Lookup errors are returned unchanged.
func (c *Collector) ToLocal(ctx context.Context, lookup IDLookup) (*Collector, error) {
	if c.Sealed() {
		return nil, ErrAlreadyLocal
	}
	asm, err := newAssembler(c.kind)
	if err != nil {
		return nil, err
	}

	global, err := c.resolve(ctx, lookup)
	if err != nil {
		return nil, err
	}
	gid := func(label string, id VertexID) GlobalID {
		return global[label][id]
	}

	if t := asm.seedTable(); t != nil {
		for _, label := range c.seeds.Labels() {
			for _, id := range c.seeds[label] {
				t.Assign(gid(label, id))
			}
		}
	}

	for k, records := range c.hops {
		t := asm.beginHop(k)
		dst := c.frontiers[k]
		counts := make(map[string]int)
		for _, label := range dst.Labels() {
			for _, id := range dst[label] {
				t.Assign(gid(label, id))
			}
			counts[label] = t.Len(label)
		}
		asm.destinations(k, counts)

		for _, r := range records {
			src := make([]int, len(r.Rows))
			dstIdx := make([]int, len(r.Cols))
			for i, id := range r.Cols {
				dstIdx[i] = t.Assign(gid(r.SeedType, id))
			}
			for i, id := range r.Rows {
				src[i] = t.Assign(gid(r.NbrType, id))
			}
			asm.addEdges(k, r.relation(), src, dstIdx, r.EdgeIDs)
		}
	}

	result := &MaterializedSubgraph{
		Kind:   c.kind,
		Hops:   len(c.hops),
		Layers: asm.finish(),
		Seeds:  make(map[string][]int),
	}
	if len(result.Layers) > 0 {
		first := result.Layers[0]
		for _, label := range c.seeds.Labels() {
			ids := make([]int, 0, len(c.seeds[label]))
			for _, id := range c.seeds[label] {
				if local, ok := first.LocalID(gid(label, id)); ok {
					ids = append(ids, local)
				}
			}
			result.Seeds[label] = ids
		}
	}
	c.result = result
	return c, nil
}

// resolve looks up the global id of every vertex referenced by the seeds,
// the frontiers and the hop records.
func (c *Collector) resolve(ctx context.Context, lookup IDLookup) (map[string]map[VertexID]GlobalID, error) {
	pending := make(map[string][]VertexID)
	seen := make(map[string]map[VertexID]bool)
	add := func(label string, ids []VertexID) {
		s, ok := seen[label]
		if !ok {
			s = make(map[VertexID]bool)
			seen[label] = s
		}
		for _, id := range ids {
			if !s[id] {
				s[id] = true
				pending[label] = append(pending[label], id)
			}
		}
	}
	for _, f := range c.frontiers {
		for label, ids := range f {
			add(label, ids)
		}
	}
	for _, records := range c.hops {
		for _, r := range records {
			add(r.SeedType, r.Cols)
			add(r.NbrType, r.Rows)
		}
	}

	global := make(map[string]map[VertexID]GlobalID, len(pending))
	for _, label := range Frontier(pending).Labels() {
		ids := pending[label]
		m, err := lookup(ctx, label, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := m[id]; !ok {
				return nil, fmt.Errorf("%w: no global id for %s vertex %d", ErrStoreQuery, label, id)
			}
		}
		global[label] = m
	}
	return global, nil
}

// mergedAssembler numbers all hops in one table. With dedup, repeated
// (src, dst) pairs of a relation are kept once.
type mergedAssembler struct {
	table *LocalIDTable
	layer *Layer
	dedup bool
	seen  map[Relation]map[[2]int]struct{}
}

func newMergedAssembler(dedup bool) *mergedAssembler {
	t := NewLocalIDTable()
	return &mergedAssembler{
		table: t,
		layer: newLayer(-1, t),
		dedup: dedup,
		seen:  make(map[Relation]map[[2]int]struct{}),
	}
}

func (a *mergedAssembler) seedTable() *LocalIDTable { return a.table }

func (a *mergedAssembler) beginHop(int) *LocalIDTable { return a.table }

func (a *mergedAssembler) destinations(int, map[string]int) {}

func (a *mergedAssembler) addEdges(_ int, rel Relation, src, dst []int, edgeIDs []int64) {
	el := a.layer.edgeList(rel)
	if !a.dedup {
		el.Src = append(el.Src, src...)
		el.Dst = append(el.Dst, dst...)
		if edgeIDs != nil {
			el.EdgeIDs = append(el.EdgeIDs, edgeIDs...)
		}
		return
	}
	set, ok := a.seen[rel]
	if !ok {
		set = make(map[[2]int]struct{})
		a.seen[rel] = set
	}
	for k := range src {
		pair := [2]int{src[k], dst[k]}
		if _, dup := set[pair]; dup {
			continue
		}
		set[pair] = struct{}{}
		el.Src = append(el.Src, src[k])
		el.Dst = append(el.Dst, dst[k])
		if edgeIDs != nil {
			el.EdgeIDs = append(el.EdgeIDs, edgeIDs[k])
		}
	}
}

func (a *mergedAssembler) finish() []*Layer {
	fillVertices(a.layer, nil)
	return []*Layer{a.layer}
}

// blocksAssembler gives every hop its own table and layer.
type blocksAssembler struct {
	layers []*Layer
	numDst []map[string]int
}

func (a *blocksAssembler) seedTable() *LocalIDTable { return nil }

func (a *blocksAssembler) beginHop(hop int) *LocalIDTable {
	t := NewLocalIDTable()
	a.layers = append(a.layers, newLayer(hop, t))
	a.numDst = append(a.numDst, nil)
	return t
}

func (a *blocksAssembler) destinations(hop int, counts map[string]int) {
	a.numDst[hop] = counts
}

func (a *blocksAssembler) addEdges(hop int, rel Relation, src, dst []int, edgeIDs []int64) {
	el := a.layers[hop].edgeList(rel)
	el.Src = append(el.Src, src...)
	el.Dst = append(el.Dst, dst...)
	if edgeIDs != nil {
		el.EdgeIDs = append(el.EdgeIDs, edgeIDs...)
	}
}

func (a *blocksAssembler) finish() []*Layer {
	for i, l := range a.layers {
		fillVertices(l, a.numDst[i])
	}
	return a.layers
}

func fillVertices(l *Layer, numDst map[string]int) {
	for _, label := range l.table.Labels() {
		l.Vertices[label] = &VertexSet{
			Label:     label,
			GlobalIDs: l.table.GlobalIDs(label),
			NumDst:    numDst[label],
		}
	}
}
