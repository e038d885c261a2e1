package neosample

import (
	"fmt"
	"reflect"
	"strings"
)

// entityMetadata holds the parsed `graph` tag information for a specific struct type.
// This metadata is cached by the Manager to avoid costly reflection on every call.
type entityMetadata struct {
	// Label is the graph node label, defaulting to the struct's name.
	Label string
	// PKField is the name of the struct field marked as the primary key.
	PKField string
	// PKProp is the property name of the primary key in the database.
	PKProp string
	// Features lists the properties tagged as features, in field order.
	Features []string
	// Mappings maps struct field names to their corresponding database property names.
	Mappings map[string]string
}

// Labeler lets a tagged struct override the label derived from its type name.
type Labeler interface {
	GraphLabel() string
}

// parseTagsFromType inspects a reflect.Type and extracts vertex metadata from
// `graph` struct tags. A tag is a comma separated list of:
//
//	pk                 the field is the vertex primary key
//	property:<name>    the node property backing the field (required)
//	feature            the property is served as a feature
func parseTagsFromType(typ reflect.Type) (*entityMetadata, error) {
	// If the type is a pointer, get the underlying element's type.
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}

	meta := &entityMetadata{Label: typ.Name(), Mappings: make(map[string]string)}
	if l, ok := reflect.New(typ).Interface().(Labeler); ok && l.GraphLabel() != "" {
		meta.Label = l.GraphLabel()
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("graph")
		if tag == "" {
			continue
		}

		isPk, isFeature := false, false
		propName := ""
		for _, part := range strings.Split(tag, ",") {
			part = strings.TrimSpace(part)
			switch {
			case part == "pk":
				isPk = true
			case part == "feature":
				isFeature = true
			case strings.HasPrefix(part, "property:"):
				propName = strings.TrimPrefix(part, "property:")
			}
		}

		if propName == "" {
			return nil, fmt.Errorf("field %s is missing 'property' tag component", field.Name)
		}
		if isPk {
			if meta.PKField != "" {
				return nil, fmt.Errorf("struct %s declares more than one primary key", typ.Name())
			}
			meta.PKField = field.Name
			meta.PKProp = propName
		}
		if isFeature {
			meta.Features = append(meta.Features, propName)
		}
		meta.Mappings[field.Name] = propName
	}

	if meta.PKField == "" {
		return nil, fmt.Errorf("no primary key ('pk') tag defined for struct %s", typ.Name())
	}

	return meta, nil
}

func (m *entityMetadata) entity() VertexEntity {
	return VertexEntity{
		Label:      m.Label,
		PrimaryKey: m.PKProp,
		Features:   append([]string(nil), m.Features...),
	}
}

// VertexEntityOf derives a VertexEntity from a tagged struct value or pointer.
func VertexEntityOf(v any) (VertexEntity, error) {
	if v == nil {
		return VertexEntity{}, fmt.Errorf("entity must not be nil")
	}
	meta, err := parseTagsFromType(reflect.TypeOf(v))
	if err != nil {
		return VertexEntity{}, err
	}
	return meta.entity(), nil
}

// parseTags is a generic convenience wrapper around parseTagsFromType.
func parseTags[T any]() (*entityMetadata, error) {
	var instance T
	return parseTagsFromType(reflect.TypeOf(instance))
}
