package neosample

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
)

// FeatureStore fetches raw feature values. Get returns len(ids)*len(names)
// values in id-major order: the value of names[j] for ids[i] is at
// i*len(names)+j. A nil value means the feature is missing.
type FeatureStore interface {
	Get(ctx context.Context, label string, names []string, ids []string) ([]any, error)
}

// FeatureView binds a vertex label to the fields served for it by a store.
type FeatureView struct {
	Label  string
	Fields []string
	Store  FeatureStore
}

// NewFeatureView returns a view of fields of label in store.
func NewFeatureView(label string, fields []string, store FeatureStore) (*FeatureView, error) {
	if label == "" {
		return nil, configErrorf("views.label", "must not be empty")
	}
	if len(fields) == 0 {
		return nil, configErrorf("views.fields", "view %q has no fields", label)
	}
	if store == nil {
		return nil, configErrorf("views.store", "view %q has no feature store", label)
	}
	return &FeatureView{Label: label, Fields: append([]string(nil), fields...), Store: store}, nil
}

// Fetch returns the features of ids as a len(ids) x len(Fields) matrix whose
// row i belongs to ids[i]. Missing values are NaN and their row-major cell
// indexes are set in the returned bitmap. Both results are nil for an empty
// id list.
func (v *FeatureView) Fetch(ctx context.Context, ids []string) (*mat.Dense, *roaring.Bitmap, error) {
	if len(ids) == 0 || len(v.Fields) == 0 {
		return nil, nil, nil
	}
	raw, err := v.Store.Get(ctx, v.Label, v.Fields, ids)
	if err != nil {
		return nil, nil, err
	}
	cols := len(v.Fields)
	if len(raw) != len(ids)*cols {
		return nil, nil, fmt.Errorf("%w: feature store returned %d values for %d ids x %d fields",
			ErrStoreQuery, len(raw), len(ids), cols)
	}
	data := make([]float64, len(raw))
	missing := roaring.New()
	for i, val := range raw {
		f, ok, err := toFloat(val)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s.%s of %q: %v", ErrStoreQuery, v.Label, v.Fields[i%cols], ids[i/cols], err)
		}
		if !ok {
			data[i] = math.NaN()
			missing.Add(uint32(i))
			continue
		}
		data[i] = f
	}
	return mat.NewDense(len(ids), cols, data), missing, nil
}

// toFloat converts a raw feature value. ok is false for a missing value.
func toFloat(v any) (float64, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case bool:
		if x {
			return 1, true, nil
		}
		return 0, true, nil
	case []byte:
		return toFloat(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, err
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("unsupported feature value type %T", v)
}

// AddFeatures attaches features to every vertex set whose label has a view,
// in every layer, and returns the subgraph. Labels without a view are left
// without features.
//
// Parameters:
//   - ctx: Passed on to every feature store fetch.
//   - views: The feature view of each label, keyed by label.
//
// Returns:
//
//	The materialized subgraph with features attached, or an error when
//	ToLocal has not run or a fetch fails.
func (c *Collector) AddFeatures(ctx context.Context, views map[string]*FeatureView) (*MaterializedSubgraph, error) {
	if c.result == nil {
		return nil, invariantf("features added before ToLocal")
	}
	for _, layer := range c.result.Layers {
		for _, label := range layer.Labels() {
			view, ok := views[label]
			if !ok || view == nil {
				continue
			}
			vs := layer.Vertices[label]
			features, missing, err := view.Fetch(ctx, vs.Keys())
			if err != nil {
				return nil, fmt.Errorf("fetch features of %s: %w", label, err)
			}
			vs.FeatureNames = append([]string(nil), view.Fields...)
			vs.Features = features
			vs.Missing = missing
		}
	}
	return c.result, nil
}

// MemoryFeatureStore is a map-backed FeatureStore.
type MemoryFeatureStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryFeatureStore returns an empty store.
func NewMemoryFeatureStore() *MemoryFeatureStore {
	return &MemoryFeatureStore{values: make(map[string]any)}
}

// featureKey renders the label/feature/id key layout shared by the KV stores.
func featureKey(label, name, id string) string {
	return label + "/" + name + "/" + id
}

// Put stores one feature value.
func (s *MemoryFeatureStore) Put(label, name, id string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[featureKey(label, name, id)] = value
}

// Get implements FeatureStore.
func (s *MemoryFeatureStore) Get(_ context.Context, label string, names []string, ids []string) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]any, 0, len(ids)*len(names))
	for _, id := range ids {
		for _, name := range names {
			out = append(out, s.values[featureKey(label, name, id)])
		}
	}
	return out, nil
}
