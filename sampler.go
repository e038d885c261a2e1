package neosample

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// TerminationPolicy decides when a hop that found no neighbors for some of
// its edge types ends the expansion.
type TerminationPolicy int

const (
	// StopWhenAllIsolated stops only when no edge type of the hop found a
	// neighbor.
	StopWhenAllIsolated TerminationPolicy = iota
	// StopWhenLastIsolated stops as soon as the last edge type attempted in the
	// hop found no neighbor, whatever the other edge types found.
	StopWhenLastIsolated
)

var terminationNames = map[TerminationPolicy]string{
	StopWhenAllIsolated:  "all_isolated",
	StopWhenLastIsolated: "last_isolated",
}

func (p TerminationPolicy) String() string {
	if name, ok := terminationNames[p]; ok {
		return name
	}
	return fmt.Sprintf("TerminationPolicy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p TerminationPolicy) MarshalText() ([]byte, error) {
	if _, ok := terminationNames[p]; !ok {
		return nil, configErrorf("termination", "unknown policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TerminationPolicy) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for policy, name := range terminationNames {
		if name == s {
			*p = policy
			return nil
		}
	}
	return configErrorf("termination", "unknown policy %q", s)
}

// SamplerConfig configures a NeighborSampler.
type SamplerConfig struct {
	// Fanouts holds one budget per hop. FullFanout takes every neighbor.
	Fanouts []int `yaml:"fanouts"`
	// WithReplacement draws exactly fanout neighbors per non-isolated vertex,
	// repeats allowed.
	WithReplacement bool `yaml:"with_replacement"`
	// SeedType is the label of the seed vertices.
	SeedType string `yaml:"seed_type"`
	// NeedEdgeFeatures keeps one edge id per sampled edge.
	NeedEdgeFeatures bool              `yaml:"need_edge_features"`
	Collector        CollectorKind     `yaml:"collector"`
	Termination      TerminationPolicy `yaml:"termination"`
	// Concurrency bounds the edge-type queries in flight within a hop.
	// Values below 1 mean 1.
	Concurrency int `yaml:"concurrency"`
}

// NeighborSampler expands seed batches hop by hop. The hop plan is computed
// once by NewNeighborSampler and never changes, so a sampler may serve
// concurrent Sample calls.
type NeighborSampler struct {
	runner      DBRunner
	cfg         SamplerConfig
	plan        hopPlan
	primaryKeys map[string]string
	opts        options
}

// NewNeighborSampler validates cfg against schema and builds the hop plan.
//
// Parameters:
//   - runner: The DBRunner used for neighbor and global-id queries.
//   - schema: The vertex and edge types the plan is built from.
//   - cfg: The fanout schedule, seed type and collector settings.
//   - opts: Optional logger, tracer and random seed.
//
// Returns:
//
//	A ready NeighborSampler, or an error matching ErrConfiguration when cfg
//	does not fit the schema.
func NewNeighborSampler(runner DBRunner, schema SchemaProvider, cfg SamplerConfig, opts ...Option) (*NeighborSampler, error) {
	if runner == nil {
		return nil, configErrorf("runner", "must not be nil")
	}
	if schema == nil {
		return nil, configErrorf("schema", "must not be nil")
	}
	if len(cfg.Fanouts) == 0 {
		return nil, configErrorf("fanouts", "schedule is empty")
	}
	for i, f := range cfg.Fanouts {
		if f < FullFanout {
			return nil, configErrorf("fanouts", "hop %d: fanout %d is below %d", i, f, FullFanout)
		}
	}
	if cfg.SeedType == "" {
		return nil, configErrorf("seed_type", "must not be empty")
	}
	if _, err := newAssembler(cfg.Collector); err != nil {
		return nil, err
	}
	if _, ok := terminationNames[cfg.Termination]; !ok {
		return nil, configErrorf("termination", "unknown policy %d", int(cfg.Termination))
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	edges := schema.EdgeTypes()
	labels := make(map[string]bool)
	for _, e := range edges {
		labels[e.Src] = true
		labels[e.Dst] = true
	}
	if !labels[cfg.SeedType] {
		return nil, configErrorf("seed_type", "no edge type touches %q", cfg.SeedType)
	}
	plan, err := buildHopPlan(edges, cfg.SeedType, len(cfg.Fanouts))
	if err != nil {
		return nil, err
	}

	pks := make(map[string]string, len(labels))
	for l := range labels {
		if pk, ok := schema.VertexPrimaryKey(l); ok {
			pks[l] = pk
		}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cfg.Fanouts = append([]int(nil), cfg.Fanouts...)
	return &NeighborSampler{
		runner:      runner,
		cfg:         cfg,
		plan:        plan,
		primaryKeys: pks,
		opts:        o,
	}, nil
}

// Config returns the validated configuration.
func (s *NeighborSampler) Config() SamplerConfig {
	cfg := s.cfg
	cfg.Fanouts = append([]int(nil), s.cfg.Fanouts...)
	return cfg
}

// Plan returns, per hop, the edge types expanded by that hop. Undirected edge
// types reached from their source side appear reversed.
func (s *NeighborSampler) Plan() [][]EdgeType {
	out := make([][]EdgeType, len(s.plan))
	for i, level := range s.plan {
		out[i] = append([]EdgeType(nil), level...)
	}
	return out
}

func (s *NeighborSampler) callRand() *rand.Rand {
	if s.opts.hasSeed {
		return newRand(s.opts.seed, s.opts.seed^0x9e3779b97f4a7c15)
	}
	return newRand(rand.Uint64(), rand.Uint64())
}

// Sample expands seeds through the hop plan and returns the collector holding
// the local-id subgraph. Seeds must all carry the configured seed type.
//
// Expansion stops early when the termination policy sees an isolated hop; the
// subgraph is then shallower than requested.
//
// Parameters:
//   - ctx: Cancels the call between hops and inside every store query.
//   - seeds: The seed batch, keyed by the configured seed type.
//
// Returns:
//
//	A sealed Collector whose Subgraph holds the local-id layers, or an error.
//	Any error aborts the call and no partial result is returned.
func (s *NeighborSampler) Sample(ctx context.Context, seeds Frontier) (*Collector, error) {
	start := time.Now()
	sampleID := uuid.NewString()
	log := s.opts.logger.WithSampleID(sampleID)

	ctx, span := s.opts.tracer.Start(ctx, "neosample.Sample", trace.WithAttributes(
		attribute.String("sample.id", sampleID),
		attribute.String("sample.seed_type", s.cfg.SeedType),
		attribute.Int("sample.seeds", seeds.Len()),
		attribute.Int("sample.hops", len(s.cfg.Fanouts)),
	))
	defer span.End()

	c, err := s.sample(ctx, seeds, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.LogSample(ctx, seeds.Len(), 0, err)
		return nil, err
	}
	SampleDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("sample.hops_expanded", c.NumHops()))
	log.LogSample(ctx, seeds.Len(), c.NumHops(), nil)
	return c, nil
}

func (s *NeighborSampler) sample(ctx context.Context, seeds Frontier, log *Logger) (*Collector, error) {
	for label, ids := range seeds {
		if len(ids) > 0 && label != s.cfg.SeedType {
			return nil, fmt.Errorf("%w: %d seeds of type %q, sampler expects %q", ErrInvalidSeeds, len(ids), label, s.cfg.SeedType)
		}
	}

	c, err := NewCollector(s.cfg.Collector)
	if err != nil {
		return nil, err
	}
	c.ResetSeeds(seeds)
	frontier := c.seeds
	rng := s.callRand()

	for k, fanout := range s.cfg.Fanouts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, found, err := s.expandHop(ctx, k, fanout, frontier, rng)
		if err != nil {
			log.LogHop(ctx, k, len(found), 0, err)
			return nil, fmt.Errorf("hop %d: %w", k, err)
		}
		if s.stop(found) {
			EarlyStops.Inc()
			log.LogEarlyStop(ctx, k, len(s.cfg.Fanouts))
			break
		}
		edges := 0
		for _, r := range records {
			edges += len(r.Rows)
		}
		log.LogHop(ctx, k, len(records), edges, nil)
		if frontier, err = c.AddHop(records); err != nil {
			return nil, err
		}
	}

	if _, err := c.ToLocal(ctx, s.lookupGlobalIDs); err != nil {
		return nil, err
	}
	return c, nil
}

// stop applies the termination policy to the per-edge-type outcome of one
// hop, given in plan order.
func (s *NeighborSampler) stop(found []bool) bool {
	if len(found) == 0 {
		return true
	}
	if s.cfg.Termination == StopWhenLastIsolated {
		return !found[len(found)-1]
	}
	for _, f := range found {
		if f {
			return false
		}
	}
	return true
}

type edgeTask struct {
	et       EdgeType
	frontier []VertexID
	rng      *rand.Rand
}

// expandHop runs every edge type of hop k whose destination label is in the
// frontier. found[i] reports whether the i-th attempted edge type produced a
// neighbor. Records keep plan order whatever the completion order.
func (s *NeighborSampler) expandHop(ctx context.Context, k, fanout int, frontier Frontier, rng *rand.Rand) ([]HopRecord, []bool, error) {
	var tasks []edgeTask
	for _, et := range s.plan[k] {
		ids := frontier[et.Dst]
		if len(ids) == 0 {
			continue
		}
		// Each task owns its generator so results do not depend on scheduling.
		tasks = append(tasks, edgeTask{et: et, frontier: ids, rng: newRand(rng.Uint64(), rng.Uint64())})
	}

	ctx, span := s.opts.tracer.Start(ctx, "neosample.hop", trace.WithAttributes(
		attribute.Int("hop.index", k),
		attribute.Int("hop.fanout", fanout),
		attribute.Int("hop.edge_types", len(tasks)),
	))
	defer span.End()

	results := make([]*HopRecord, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range tasks {
		g.Go(func() error {
			rec, err := s.sampleEdgeType(gctx, t, fanout)
			if err != nil {
				return fmt.Errorf("edge type %s: %w", t.et, err)
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, make([]bool, len(tasks)), err
	}

	records := make([]HopRecord, 0, len(results))
	found := make([]bool, len(results))
	for i, r := range results {
		if r == nil {
			continue
		}
		found[i] = true
		records = append(records, *r)
	}
	return records, found, nil
}

// sampleEdgeType builds the CSC of one edge type and samples it. It returns
// nil when no frontier vertex has a neighbor through the edge type.
func (s *NeighborSampler) sampleEdgeType(ctx context.Context, t edgeTask, fanout int) (*HopRecord, error) {
	csc, err := BuildCSC(ctx, s.runner, t.frontier, t.et, s.cfg.NeedEdgeFeatures)
	if err != nil {
		return nil, err
	}
	if csc.NbrType == "" {
		return nil, nil
	}
	fs := SampleFanout(csc, fanout, s.cfg.WithReplacement, t.rng)
	SampledEdges.WithLabelValues(t.et.Label).Add(float64(fs.Len()))
	return &HopRecord{
		Rows:     fs.Rows,
		Cols:     fs.Destinations(csc),
		EdgeIDs:  fs.EdgeIDs(csc),
		SeedType: t.et.Dst,
		NbrType:  csc.NbrType,
		EdgeType: t.et.Label,
	}, nil
}

// globalIDQuery resolves internal ids to the string form of a primary key.
func globalIDQuery(pk string) string {
	return fmt.Sprintf("MATCH (v) WHERE id(v) IN $ids RETURN id(v) AS internal, toString(v.%s) AS key", quoteIdent(pk))
}

// lookupGlobalIDs is the IDLookup of the sampler. Labels without a primary
// key use the decimal vertex id as key.
func (s *NeighborSampler) lookupGlobalIDs(ctx context.Context, label string, ids []VertexID) (map[VertexID]GlobalID, error) {
	out := make(map[VertexID]GlobalID, len(ids))
	pk, ok := s.primaryKeys[label]
	if !ok {
		for _, id := range ids {
			out[id] = GlobalID{Label: label, Key: strconv.FormatInt(int64(id), 10)}
		}
		return out, nil
	}

	query := globalIDQuery(pk)
	err := stream(ctx, s.runner, "global_ids", query, map[string]any{"ids": toInt64s(ids)}, func(rec *neo4j.Record) error {
		internal, ok := recordInt64(rec, "internal")
		if !ok {
			return malformedRow(query, "expected internal column, got %v", rec.Keys)
		}
		key, ok := recordString(rec, "key")
		if !ok {
			return malformedRow(query, "%s vertex %d has no %s", label, internal, pk)
		}
		out[VertexID(internal)] = GlobalID{Label: label, Key: key}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
