package neosample

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// nodesByKeyQuery matches the vertices of label whose primary key equals one
// of $keys or $int_keys. Matching on the stored value keeps a property index
// on the key usable; float keys are not matched.
func nodesByKeyQuery(label, pk, ret string) string {
	return fmt.Sprintf("UNWIND $keys + $int_keys AS k MATCH (n:%s {%s: k}) RETURN toString(n.%s) AS key, %s",
		quoteIdent(label), quoteIdent(pk), quoteIdent(pk), ret)
}

// keyParams binds the string keys of nodesByKeyQuery. Keys in canonical
// integer form are also bound as integers.
func keyParams(keys []string) map[string]any {
	ints := make([]int64, 0, len(keys))
	for _, k := range keys {
		if n, err := strconv.ParseInt(k, 10, 64); err == nil && strconv.FormatInt(n, 10) == k {
			ints = append(ints, n)
		}
	}
	return map[string]any{"keys": keys, "int_keys": ints}
}

// Neo4jFeatureStore serves features straight from node properties. The
// primary key of every label it serves must be known to the schema.
type Neo4jFeatureStore struct {
	runner DBRunner
	schema SchemaProvider
}

// NewNeo4jFeatureStore returns a FeatureStore reading properties through runner.
func NewNeo4jFeatureStore(runner DBRunner, schema SchemaProvider) *Neo4jFeatureStore {
	return &Neo4jFeatureStore{runner: runner, schema: schema}
}

// Get implements FeatureStore. Vertices or properties that do not exist are
// reported as nil.
func (s *Neo4jFeatureStore) Get(ctx context.Context, label string, names []string, ids []string) ([]any, error) {
	pk, ok := s.schema.VertexPrimaryKey(label)
	if !ok {
		return nil, configErrorf("views", "vertex %q has no primary key", label)
	}
	cols := make([]string, len(names))
	for j, name := range names {
		cols[j] = fmt.Sprintf("n.%s AS f%d", quoteIdent(name), j)
	}
	query := nodesByKeyQuery(label, pk, strings.Join(cols, ", "))

	rows := make(map[string][]any, len(ids))
	err := stream(ctx, s.runner, "features", query, keyParams(ids), func(rec *neo4j.Record) error {
		key, ok := recordString(rec, "key")
		if !ok {
			return malformedRow(query, "expected key column, got %v", rec.Keys)
		}
		vals := make([]any, len(names))
		for j := range names {
			vals[j], _ = rec.Get(fmt.Sprintf("f%d", j))
		}
		rows[key] = vals
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(ids)*len(names))
	for _, id := range ids {
		vals, ok := rows[id]
		if !ok {
			vals = make([]any, len(names))
		}
		out = append(out, vals...)
	}
	return out, nil
}

// Repository loads tagged structs for sampled vertices. The struct type T
// declares its label and property mapping with `graph` tags.
type Repository[T any] struct {
	runner DBRunner
	meta   *entityMetadata
}

// NewRepository creates a new generic repository for the type T.
// It parses the struct tags of T to understand its mapping to a Neo4j node.
func NewRepository[T any](runner DBRunner) (*Repository[T], error) {
	meta, err := parseTags[T]()
	if err != nil {
		return nil, err
	}
	return &Repository[T]{
		runner: runner,
		meta:   meta,
	}, nil
}

// Label returns the vertex label the repository reads.
func (r *Repository[T]) Label() string { return r.meta.Label }

// Save creates the vertex of entity or updates the existing one. It merges on
// the primary key and sets every other tagged property.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	val := reflect.ValueOf(entity).Elem()
	mergeProps := map[string]interface{}{r.meta.PKProp: val.FieldByName(r.meta.PKField).Interface()}

	setProps := make(map[string]interface{})
	for fieldName, propName := range r.meta.Mappings {
		if fieldName != r.meta.PKField {
			setProps["n."+propName] = val.FieldByName(fieldName).Interface()
		}
	}

	qb := gocypher.NewQueryBuilder().
		Merge(gocypher.N("n", r.meta.Label).WithProperties(mergeProps))
	if len(setProps) > 0 {
		qb = qb.Set(setProps)
	}
	query, params, err := qb.Return("n").Build()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}
	if _, err := r.runner.Run(ctx, query, params); err != nil {
		return queryError(query, err)
	}
	return nil
}

// Delete removes the vertex with primary key id, together with its edges.
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) error {
	props := map[string]interface{}{r.meta.PKProp: id}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.meta.Label).WithProperties(props)).
		DetachDelete("n").
		Build()
	if err != nil {
		return fmt.Errorf("could not build query: %w", err)
	}
	if _, err := r.runner.Run(ctx, query, params); err != nil {
		return queryError(query, err)
	}
	return nil
}

// FindByKeys fetches the vertices with the given primary keys. The result is
// aligned with keys; keys without a vertex yield nil entries.
func (r *Repository[T]) FindByKeys(ctx context.Context, keys []string) ([]*T, error) {
	query := nodesByKeyQuery(r.meta.Label, r.meta.PKProp, "n")
	found := make(map[string]*T, len(keys))
	err := stream(ctx, r.runner, "repository", query, keyParams(keys), func(rec *neo4j.Record) error {
		key, ok := recordString(rec, "key")
		if !ok {
			return malformedRow(query, "expected key column, got %v", rec.Keys)
		}
		nodeValue, ok := rec.Get("n")
		if !ok {
			return malformedRow(query, "could not find return value 'n'")
		}
		node, ok := nodeValue.(neo4j.Node)
		if !ok {
			return malformedRow(query, "return value 'n' is not a node")
		}
		entity := new(T)
		if err := mapNodeToStruct(node, entity, r.meta); err != nil {
			return err
		}
		found[key] = entity
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*T, len(keys))
	for i, k := range keys {
		out[i] = found[k]
	}
	return out, nil
}

// FindVertices loads every vertex of a sampled vertex set, in local-id order.
func (r *Repository[T]) FindVertices(ctx context.Context, vs *VertexSet) ([]*T, error) {
	if vs.Label != r.meta.Label {
		return nil, fmt.Errorf("repository for %s cannot load %s vertices", r.meta.Label, vs.Label)
	}
	return r.FindByKeys(ctx, vs.Keys())
}

// mapNodeToStruct populates a struct's fields from a neo4j.Node's properties,
// based on the parsed metadata. Numeric properties are converted to the
// field's type when possible.
func mapNodeToStruct(node neo4j.Node, entity any, meta *entityMetadata) error {
	val := reflect.ValueOf(entity).Elem()

	for fieldName, propName := range meta.Mappings {
		field := val.FieldByName(fieldName)
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		propValue, ok := node.Props[propName]
		if !ok || propValue == nil {
			continue
		}

		pv := reflect.ValueOf(propValue)
		switch {
		case pv.Type().AssignableTo(field.Type()):
			field.Set(pv)
		case isNumericKind(pv.Kind()) && isNumericKind(field.Kind()):
			field.Set(pv.Convert(field.Type()))
		default:
			return fmt.Errorf("%w: property %s of type %T cannot be stored in field %s",
				ErrStoreQuery, propName, propValue, fieldName)
		}
	}
	return nil
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
