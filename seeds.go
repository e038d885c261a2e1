package neosample

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// errStopIteration ends an Each walk without reporting an error.
var errStopIteration = errors.New("stop iteration")

// SeedProvider enumerates the vertices of one label. The order is the one
// the store returns.
type SeedProvider struct {
	runner   DBRunner
	seedType string
}

// NewSeedProvider returns a provider for the vertices labeled seedType.
func NewSeedProvider(runner DBRunner, seedType string) *SeedProvider {
	return &SeedProvider{runner: runner, seedType: seedType}
}

// SeedType returns the label enumerated by the provider.
func (p *SeedProvider) SeedType() string { return p.seedType }

// Each calls fn with the id of every seed vertex. Returning a non-nil error
// from fn stops the walk and that error is returned.
func (p *SeedProvider) Each(ctx context.Context, fn func(VertexID) error) error {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("v", p.seedType)).
		Return("id(v) AS id").
		Build()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}
	return stream(ctx, p.runner, "seeds", query, params, func(rec *neo4j.Record) error {
		id, ok := recordInt64(rec, "id")
		if !ok {
			return malformedRow(query, "expected id column, got %v", rec.Keys)
		}
		return fn(VertexID(id))
	})
}

// Take returns at most n seed ids, or every id when n is negative.
func (p *SeedProvider) Take(ctx context.Context, n int) ([]VertexID, error) {
	var ids []VertexID
	if n == 0 {
		return ids, nil
	}
	err := p.Each(ctx, func(id VertexID) error {
		ids = append(ids, id)
		if n > 0 && len(ids) >= n {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return ids, nil
}

// Count returns the number of seed vertices.
func (p *SeedProvider) Count(ctx context.Context) (int64, error) {
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("v", p.seedType)).
		Return("count(v) AS total").
		Build()
	if err != nil {
		return 0, fmt.Errorf("could not build query: %w", err)
	}

	var total int64
	found := false
	err = stream(ctx, p.runner, "count", query, params, func(rec *neo4j.Record) error {
		n, ok := recordInt64(rec, "total")
		if !ok {
			return malformedRow(query, "expected total column, got %v", rec.Keys)
		}
		total, found = n, true
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return total, nil
}
