package neosample

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// Manager is the entry point tying a query runner to tagged entity types. It
// derives schemas from struct tags, hands out samplers, seed providers and
// repositories, and loads edges between tagged entities.
type Manager struct {
	runner DBRunner
	// metaCache stores parsed entityMetadata to avoid costly reflection on every call.
	metaCache sync.Map
}

// NewManager creates a new Manager issuing its queries through runner.
func NewManager(runner DBRunner) *Manager {
	return &Manager{runner: runner}
}

// Runner returns the query runner of the manager.
func (m *Manager) Runner() DBRunner { return m.runner }

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given Manager.
func RepositoryFor[T any](m *Manager) (*Repository[T], error) {
	var zero T
	meta, err := m.metadata(reflect.TypeOf(zero))
	if err != nil {
		return nil, err
	}
	return &Repository[T]{runner: m.runner, meta: meta}, nil
}

// RegisterVertex derives the vertex entity of a tagged struct (value or pointer).
func (m *Manager) RegisterVertex(entity any) (VertexEntity, error) {
	if entity == nil {
		return VertexEntity{}, fmt.Errorf("entity must not be nil")
	}
	meta, err := m.metadata(reflect.TypeOf(entity))
	if err != nil {
		return VertexEntity{}, err
	}
	return meta.entity(), nil
}

// Schema builds a schema from tagged entity values and edge types.
func (m *Manager) Schema(entities []any, edges []EdgeType) (*Schema, error) {
	vertices := make([]VertexEntity, 0, len(entities))
	for _, e := range entities {
		v, err := m.RegisterVertex(e)
		if err != nil {
			return nil, configErrorf("schema.vertices", "%v", err)
		}
		vertices = append(vertices, v)
	}
	return NewSchema(vertices, edges)
}

// NewSampler builds a NeighborSampler over the manager's runner.
func (m *Manager) NewSampler(schema SchemaProvider, cfg SamplerConfig, opts ...Option) (*NeighborSampler, error) {
	return NewNeighborSampler(m.runner, schema, cfg, opts...)
}

// SeedProvider returns a provider enumerating the vertices of seedType.
func (m *Manager) SeedProvider(seedType string) *SeedProvider {
	return NewSeedProvider(m.runner, seedType)
}

// CreateEdge creates a relationship of type edgeType from one existing tagged
// entity to another, matching both by primary key.
func (m *Manager) CreateEdge(ctx context.Context, from, to any, edgeType string, props map[string]interface{}) error {
	fromMeta, fromPK, err := m.entityMetaAndPK(from)
	if err != nil {
		return err
	}
	toMeta, toPK, err := m.entityMetaAndPK(to)
	if err != nil {
		return err
	}

	qb := gocypher.NewQueryBuilder().
		Match(gocypher.N("a", fromMeta.Label).WithProperties(map[string]interface{}{fromMeta.PKProp: fromPK})).
		Match(gocypher.N("b", toMeta.Label).WithProperties(map[string]interface{}{toMeta.PKProp: toPK})).
		Create(
			gocypher.N("a", ""),
			gocypher.R("r", edgeType).To().WithProperties(props),
			gocypher.N("b", ""),
		)

	query, params, err := qb.Build()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}
	if _, err := m.runner.Run(ctx, query, params); err != nil {
		return queryError(query, err)
	}
	return nil
}

// metadata returns the cached tag metadata of typ, parsing it on first use.
func (m *Manager) metadata(typ reflect.Type) (*entityMetadata, error) {
	if typ == nil {
		return nil, fmt.Errorf("entity type must not be nil")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if cached, ok := m.metaCache.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}
	meta, err := parseTagsFromType(typ)
	if err != nil {
		return nil, err
	}
	m.metaCache.Store(typ, meta)
	return meta, nil
}

// entityMetaAndPK retrieves an entity's metadata and primary key value.
func (m *Manager) entityMetaAndPK(entity any) (*entityMetadata, any, error) {
	val := reflect.ValueOf(entity)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return nil, nil, fmt.Errorf("entity must be a non-nil pointer")
	}
	meta, err := m.metadata(val.Elem().Type())
	if err != nil {
		return nil, nil, err
	}
	return meta, val.Elem().FieldByName(meta.PKField).Interface(), nil
}
