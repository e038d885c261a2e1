package neosample

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	edgeLink  = EdgeType{Src: "B", Dst: "A", Label: "LINK", Directed: true}
	edgeFeeds = EdgeType{Src: "C", Dst: "B", Label: "FEEDS", Directed: true}
	edgeOther = EdgeType{Src: "D", Dst: "A", Label: "OTHER", Directed: true}
)

func chainSchema(t *testing.T, edges ...EdgeType) *Schema {
	t.Helper()
	s, err := NewSchema([]VertexEntity{
		{Label: "A", PrimaryKey: "key"},
		{Label: "B", PrimaryKey: "key"},
		{Label: "C", PrimaryKey: "key"},
		{Label: "D"},
	}, edges)
	require.NoError(t, err)
	return s
}

func keyed(key string) map[string]any { return map[string]any{"key": key} }

// chainGraph has seed a1 with in-degree 5 through LINK, seed a2 isolated,
// and one FEEDS edge into every B vertex except b14.
func chainGraph() *fakeGraph {
	g := newFakeGraph().vertex(1, "A", keyed("a1")).vertex(2, "A", keyed("a2"))
	for i := VertexID(10); i < 15; i++ {
		g.vertex(i, "B", keyed("b"+strconv.FormatInt(int64(i), 10)))
		g.edge(i, 1, "LINK")
	}
	for i := VertexID(20); i < 24; i++ {
		g.vertex(i, "C", keyed("c"+strconv.FormatInt(int64(i), 10)))
		g.edge(i, i-10, "FEEDS")
	}
	return g
}

func TestSampleSingleHopFullFanout(t *testing.T) {
	g := newFakeGraph().
		vertex(1, "A", keyed("a1")).vertex(2, "A", keyed("a2")).
		vertex(10, "B", keyed("b10")).vertex(11, "B", keyed("b11")).vertex(12, "B", keyed("b12")).
		edge(10, 1, "LINK").edge(11, 1, "LINK").edge(12, 1, "LINK")

	s, err := NewNeighborSampler(g, chainSchema(t, edgeLink), SamplerConfig{
		Fanouts:  []int{FullFanout},
		SeedType: "A",
	})
	require.NoError(t, err)

	before := testutil.ToFloat64(SampledEdges.WithLabelValues("LINK"))
	c, err := s.Sample(context.Background(), Frontier{"A": {1, 2}})
	require.NoError(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(SampledEdges.WithLabelValues("LINK"))-before)

	sub := c.Subgraph()
	require.NotNil(t, sub)
	assert.Equal(t, 1, sub.Hops)
	l := sub.Layer(0)
	assert.Equal(t, 3, l.NumEdges())
	assert.Equal(t, 3, l.NumVertices("B"))
	// The isolated seed is still part of the subgraph.
	assert.Equal(t, []string{"a1", "a2"}, l.Vertices["A"].Keys())
	assert.ElementsMatch(t, []string{"b10", "b11", "b12"}, l.Vertices["B"].Keys())
	assert.Equal(t, map[string][]int{"A": {0, 1}}, sub.Seeds)
}

func TestSampleTwoHopsWithReplacement(t *testing.T) {
	// Give b14 a FEEDS in-edge too, so every sampled B has a neighbor.
	g := chainGraph().vertex(24, "C", keyed("c24")).edge(24, 14, "FEEDS")
	s, err := NewNeighborSampler(g, chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
		Fanouts:         []int{2, 1},
		WithReplacement: true,
		SeedType:        "A",
		Collector:       CollectorBlocks,
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		c, err := s.Sample(context.Background(), Frontier{"A": {1}})
		require.NoError(t, err)
		sub := c.Subgraph()
		require.Equal(t, 2, sub.Hops)
		require.Len(t, sub.Layers, 2)

		assert.Equal(t, 2, sub.Layers[0].NumEdges())

		// One draw per distinct B of the first hop.
		second := sub.Layers[1]
		bs := second.Vertices["B"]
		require.NotNil(t, bs)
		assert.Equal(t, bs.NumDst, second.NumEdges())
		assert.Equal(t, bs.NumDst, second.NumVertices("C"))
	}
}

func TestSampleWithReplacementStopsOnIsolatedNeighbor(t *testing.T) {
	// b14 is the only neighbor of a1 and has no FEEDS in-edge.
	g := newFakeGraph().
		vertex(1, "A", keyed("a1")).vertex(14, "B", keyed("b14")).vertex(20, "C", keyed("c20")).
		edge(14, 1, "LINK")
	s, err := NewNeighborSampler(g, chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
		Fanouts:         []int{2, 1},
		WithReplacement: true,
		SeedType:        "A",
		Collector:       CollectorBlocks,
	})
	require.NoError(t, err)

	c, err := s.Sample(context.Background(), Frontier{"A": {1}})
	require.NoError(t, err)
	sub := c.Subgraph()
	assert.Equal(t, 1, sub.Hops)
	require.Len(t, sub.Layers, 1)
	assert.Equal(t, 2, sub.Layers[0].NumEdges())
	assert.Equal(t, []string{"b14"}, sub.Layers[0].Vertices["B"].Keys())
}

func TestSampleConcurrentCalls(t *testing.T) {
	s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
		Fanouts:     []int{FullFanout, FullFanout},
		SeedType:    "A",
		Collector:   CollectorHetero,
		Concurrency: 2,
	})
	require.NoError(t, err)

	want, err := s.Sample(context.Background(), Frontier{"A": {1, 2}})
	require.NoError(t, err)

	const callers = 16
	got := make([]*MaterializedSubgraph, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Sample(context.Background(), Frontier{"A": {1, 2}})
			errs[i] = err
			if err == nil {
				got[i] = c.Subgraph()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, want.Subgraph(), got[i])
	}
	assert.Equal(t, [][]EdgeType{{edgeLink}, {edgeFeeds}}, s.Plan())
}

func TestSampleEarlyTermination(t *testing.T) {
	g := newFakeGraph().
		vertex(1, "A", keyed("a1")).vertex(10, "B", keyed("b10")).
		edge(10, 1, "LINK")

	s, err := NewNeighborSampler(g, chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
		Fanouts:   []int{2, 2},
		SeedType:  "A",
		Collector: CollectorBlocks,
	})
	require.NoError(t, err)

	before := testutil.ToFloat64(EarlyStops)
	c, err := s.Sample(context.Background(), Frontier{"A": {1}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(EarlyStops)-before)

	sub := c.Subgraph()
	assert.Equal(t, 1, sub.Hops)
	assert.Len(t, sub.Layers, 1)
	assert.Equal(t, 1, sub.Layers[0].NumEdges())
}

func TestSampleIsolatedSeeds(t *testing.T) {
	g := newFakeGraph().vertex(1, "A", keyed("a1"))
	s, err := NewNeighborSampler(g, chainSchema(t, edgeLink), SamplerConfig{Fanouts: []int{3}, SeedType: "A"})
	require.NoError(t, err)

	c, err := s.Sample(context.Background(), Frontier{"A": {1}})
	require.NoError(t, err)
	sub := c.Subgraph()
	assert.Zero(t, sub.Hops)
	assert.Equal(t, []string{"a1"}, sub.Layer(0).Vertices["A"].Keys())
}

func TestSampleTerminationPolicies(t *testing.T) {
	// LINK finds neighbors, OTHER (the last edge type of hop 0) does not.
	build := func(policy TerminationPolicy) *MaterializedSubgraph {
		s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink, edgeOther, edgeFeeds), SamplerConfig{
			Fanouts:     []int{FullFanout, FullFanout},
			SeedType:    "A",
			Termination: policy,
		})
		require.NoError(t, err)
		require.Equal(t, []EdgeType{edgeLink, edgeOther}, s.Plan()[0])

		c, err := s.Sample(context.Background(), Frontier{"A": {1}})
		require.NoError(t, err)
		return c.Subgraph()
	}

	all := build(StopWhenAllIsolated)
	assert.Equal(t, 2, all.Hops)
	assert.Equal(t, 5+4, all.Layer(0).NumEdges())

	last := build(StopWhenLastIsolated)
	assert.Zero(t, last.Hops)
	assert.Zero(t, last.Layer(0).NumEdges())
}

func TestSampleReproducible(t *testing.T) {
	sample := func(concurrency int) *MaterializedSubgraph {
		s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink, edgeOther, edgeFeeds), SamplerConfig{
			Fanouts:     []int{2, 1},
			SeedType:    "A",
			Collector:   CollectorHetero,
			Concurrency: concurrency,
		}, WithSeed(99))
		require.NoError(t, err)
		c, err := s.Sample(context.Background(), Frontier{"A": {1, 2}})
		require.NoError(t, err)
		return c.Subgraph()
	}

	first := sample(1)
	assert.Equal(t, first, sample(1))
	assert.Equal(t, first, sample(4))
}

func TestSampleNeedEdgeFeatures(t *testing.T) {
	s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink), SamplerConfig{
		Fanouts:          []int{FullFanout},
		SeedType:         "A",
		NeedEdgeFeatures: true,
	})
	require.NoError(t, err)

	c, err := s.Sample(context.Background(), Frontier{"A": {1}})
	require.NoError(t, err)
	el := c.Subgraph().Layer(0).Edges[Relation{Nbr: "B", Edge: "LINK", Seed: "A"}]
	require.NotNil(t, el)
	assert.Len(t, el.EdgeIDs, 5)
}

func TestSampleGlobalIDs(t *testing.T) {
	t.Run("label without primary key uses vertex id", func(t *testing.T) {
		g := newFakeGraph().vertex(1, "A", keyed("a1")).vertex(30, "D", nil).edge(30, 1, "OTHER")
		s, err := NewNeighborSampler(g, chainSchema(t, edgeOther), SamplerConfig{Fanouts: []int{1}, SeedType: "A"})
		require.NoError(t, err)

		c, err := s.Sample(context.Background(), Frontier{"A": {1}})
		require.NoError(t, err)
		assert.Equal(t, []string{"30"}, c.Subgraph().Layer(0).Vertices["D"].Keys())
	})

	t.Run("null primary key", func(t *testing.T) {
		g := newFakeGraph().vertex(1, "A", nil)
		s, err := NewNeighborSampler(g, chainSchema(t, edgeLink), SamplerConfig{Fanouts: []int{1}, SeedType: "A"})
		require.NoError(t, err)

		c, err := s.Sample(context.Background(), Frontier{"A": {1}})
		assert.ErrorIs(t, err, ErrStoreQuery)
		assert.Nil(t, c)
	})
}

func TestSampleAbortsOnStoreError(t *testing.T) {
	for _, failOn := range []string{"$seed_ids", "AS internal"} {
		t.Run(failOn, func(t *testing.T) {
			g := chainGraph()
			g.failOn = failOn
			s, err := NewNeighborSampler(g, chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
				Fanouts:  []int{2, 2},
				SeedType: "A",
			})
			require.NoError(t, err)

			c, err := s.Sample(context.Background(), Frontier{"A": {1}})
			assert.ErrorIs(t, err, ErrStoreQuery)
			assert.ErrorIs(t, err, errFakeStore)
			assert.Nil(t, c)
		})
	}
}

func TestSampleCancellation(t *testing.T) {
	s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
		Fanouts:  []int{2, 2},
		SeedType: "A",
	})
	require.NoError(t, err)

	t.Run("before the first hop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c, err := s.Sample(ctx, Frontier{"A": {1}})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, c)
	})

	t.Run("between hops", func(t *testing.T) {
		g := chainGraph()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		g.onStream = func(string) { cancel() }
		s, err := NewNeighborSampler(g, chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{
			Fanouts:  []int{2, 2},
			SeedType: "A",
		})
		require.NoError(t, err)

		c, err := s.Sample(ctx, Frontier{"A": {1}})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, c)
		assert.Equal(t, 1, g.statements("$seed_ids"))
	})
}

func TestSampleRejectsForeignSeeds(t *testing.T) {
	s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink), SamplerConfig{Fanouts: []int{1}, SeedType: "A"})
	require.NoError(t, err)

	_, err = s.Sample(context.Background(), Frontier{"B": {10}})
	assert.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestSampleLogsAndTraces(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := NewNeighborSampler(chainGraph(), chainSchema(t, edgeLink), SamplerConfig{Fanouts: []int{1}, SeedType: "A"},
		WithLogger(logger), WithTracer(noop.NewTracerProvider().Tracer("test")))
	require.NoError(t, err)

	_, err = s.Sample(context.Background(), Frontier{"A": {1}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "sample_id=")
	assert.Contains(t, buf.String(), "sample completed")
}

func TestNewNeighborSamplerValidation(t *testing.T) {
	g := newFakeGraph()
	schema := chainSchema(t, edgeLink, edgeFeeds)

	tests := []struct {
		name   string
		runner DBRunner
		schema SchemaProvider
		cfg    SamplerConfig
	}{
		{"nil runner", nil, schema, SamplerConfig{Fanouts: []int{1}, SeedType: "A"}},
		{"nil schema", g, nil, SamplerConfig{Fanouts: []int{1}, SeedType: "A"}},
		{"empty schedule", g, schema, SamplerConfig{SeedType: "A"}},
		{"fanout below -1", g, schema, SamplerConfig{Fanouts: []int{2, -2}, SeedType: "A"}},
		{"empty seed type", g, schema, SamplerConfig{Fanouts: []int{1}}},
		{"unknown seed type", g, schema, SamplerConfig{Fanouts: []int{1}, SeedType: "Z"}},
		{"unreachable hop", g, schema, SamplerConfig{Fanouts: []int{1, 1, 1}, SeedType: "A"}},
		{"no edge into seed type", g, schema, SamplerConfig{Fanouts: []int{1}, SeedType: "C"}},
		{"unknown collector", g, schema, SamplerConfig{Fanouts: []int{1}, SeedType: "A", Collector: CollectorKind(7)}},
		{"unknown termination", g, schema, SamplerConfig{Fanouts: []int{1}, SeedType: "A", Termination: TerminationPolicy(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNeighborSampler(tt.runner, tt.schema, tt.cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNeighborSamplerConfigCopy(t *testing.T) {
	fanouts := []int{2, 1}
	s, err := NewNeighborSampler(newFakeGraph(), chainSchema(t, edgeLink, edgeFeeds), SamplerConfig{Fanouts: fanouts, SeedType: "A"})
	require.NoError(t, err)
	fanouts[0] = 9

	cfg := s.Config()
	assert.Equal(t, []int{2, 1}, cfg.Fanouts)
	assert.Equal(t, 1, cfg.Concurrency)

	plan := s.Plan()
	require.Len(t, plan, 2)
	assert.Equal(t, []EdgeType{edgeLink}, plan[0])
	assert.Equal(t, []EdgeType{edgeFeeds}, plan[1])
}

func TestTerminationPolicyText(t *testing.T) {
	var p TerminationPolicy
	require.NoError(t, p.UnmarshalText([]byte("LAST_ISOLATED")))
	assert.Equal(t, StopWhenLastIsolated, p)

	text, err := StopWhenAllIsolated.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "all_isolated", string(text))

	assert.ErrorIs(t, p.UnmarshalText([]byte("never")), ErrConfiguration)
}
