package neosample

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Batch is one sampled seed batch.
type Batch struct {
	Index    int
	Seeds    []VertexID
	Subgraph *MaterializedSubgraph
}

// Loader walks every seed of a provider in batches and samples each batch.
type Loader struct {
	Sampler  *NeighborSampler
	Provider *SeedProvider
	// Views are attached to every batch. Labels without a view stay
	// featureless.
	Views map[string]*FeatureView
	// BatchSize is the number of seeds per batch. The last batch may be
	// smaller.
	BatchSize int
	// ShuffleBuffer is the size of the reservoir seeds are drawn from. Values
	// below 2 keep the provider order.
	ShuffleBuffer int
	// Seed makes the shuffle order reproducible.
	Seed uint64
}

func (l *Loader) validate() error {
	if l.Sampler == nil {
		return configErrorf("loader.sampler", "must not be nil")
	}
	if l.Provider == nil {
		return configErrorf("loader.provider", "must not be nil")
	}
	if l.BatchSize < 1 {
		return configErrorf("loader.batch_size", "must be positive, got %d", l.BatchSize)
	}
	if got, want := l.Provider.SeedType(), l.Sampler.cfg.SeedType; got != want {
		return configErrorf("loader.provider", "provides %q seeds, sampler expects %q", got, want)
	}
	return nil
}

// Run samples every batch and hands it to fn, one batch at a time. Seeds are
// read from the provider while batches are processed. The first error from
// the provider, the sampler or fn stops the run and is returned.
func (l *Loader) Run(ctx context.Context, fn func(context.Context, Batch) error) error {
	if err := l.validate(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	ids := make(chan VertexID, l.BatchSize)
	g.Go(func() error {
		err := l.Provider.Each(gctx, func(id VertexID) error {
			select {
			case ids <- id:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err == nil {
			close(ids)
		}
		return err
	})
	g.Go(func() error {
		return l.consume(gctx, ids, fn)
	})
	return g.Wait()
}

func (l *Loader) consume(ctx context.Context, ids <-chan VertexID, fn func(context.Context, Batch) error) error {
	rng := newRand(l.Seed, ^l.Seed)
	var buf []VertexID
	batch := make([]VertexID, 0, l.BatchSize)
	index := 0

	emit := func(id VertexID) error {
		batch = append(batch, id)
		if len(batch) < l.BatchSize {
			return nil
		}
		err := l.runBatch(ctx, index, batch, fn)
		index++
		batch = make([]VertexID, 0, l.BatchSize)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-ids:
			if !ok {
				rng.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
				for _, v := range buf {
					if err := emit(v); err != nil {
						return err
					}
				}
				if len(batch) > 0 {
					return l.runBatch(ctx, index, batch, fn)
				}
				return nil
			}
			if l.ShuffleBuffer < 2 {
				if err := emit(id); err != nil {
					return err
				}
				continue
			}
			if len(buf) < l.ShuffleBuffer {
				buf = append(buf, id)
				continue
			}
			i := rng.IntN(len(buf))
			out := buf[i]
			buf[i] = id
			if err := emit(out); err != nil {
				return err
			}
		}
	}
}

func (l *Loader) runBatch(ctx context.Context, index int, seeds []VertexID, fn func(context.Context, Batch) error) error {
	c, err := l.Sampler.Sample(ctx, Frontier{l.Sampler.cfg.SeedType: seeds})
	if err != nil {
		return fmt.Errorf("batch %d: %w", index, err)
	}
	sub := c.Subgraph()
	if len(l.Views) > 0 {
		if sub, err = c.AddFeatures(ctx, l.Views); err != nil {
			return fmt.Errorf("batch %d: %w", index, err)
		}
	}
	return fn(ctx, Batch{Index: index, Seeds: seeds, Subgraph: sub})
}
