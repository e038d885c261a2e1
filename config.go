package neosample

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the Neo4j section leaves a field empty.
const (
	EnvNeo4jURI      = "NEO4J_URI"
	EnvNeo4jUsername = "NEO4J_USERNAME"
	EnvNeo4jPassword = "NEO4J_PASSWORD"
	EnvNeo4jDatabase = "NEO4J_DATABASE"
)

// Neo4jConfig holds the connection settings of the graph store.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// QueriesPerSecond caps the query rate of the executor. Zero means
	// unlimited.
	QueriesPerSecond float64 `yaml:"queries_per_second"`
	Burst            int     `yaml:"burst"`
}

// FeatureStoreKind selects a FeatureStore implementation.
type FeatureStoreKind int

const (
	// FeatureStoreMemory keeps features in process memory.
	FeatureStoreMemory FeatureStoreKind = iota
	// FeatureStoreBadger reads features from a badger keyspace.
	FeatureStoreBadger
	// FeatureStoreNeo4j reads features from node properties.
	FeatureStoreNeo4j
)

var featureStoreNames = map[FeatureStoreKind]string{
	FeatureStoreMemory: "memory",
	FeatureStoreBadger: "badger",
	FeatureStoreNeo4j:  "neo4j",
}

func (k FeatureStoreKind) String() string {
	if name, ok := featureStoreNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FeatureStoreKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k FeatureStoreKind) MarshalText() ([]byte, error) {
	if _, ok := featureStoreNames[k]; !ok {
		return nil, configErrorf("feature_store.kind", "unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FeatureStoreKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for kind, name := range featureStoreNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return configErrorf("feature_store.kind", "unknown kind %q", s)
}

// FeatureStoreConfig selects and configures the feature store.
type FeatureStoreConfig struct {
	Kind   FeatureStoreKind `yaml:"kind"`
	Badger BadgerConfig     `yaml:"badger"`
}

// ViewConfig declares the features served for one vertex label.
type ViewConfig struct {
	Label  string   `yaml:"label"`
	Fields []string `yaml:"fields"`
}

// SchemaConfig declares the graph schema.
type SchemaConfig struct {
	Vertices []VertexEntity `yaml:"vertices"`
	Edges    []EdgeType     `yaml:"edges"`
}

// LoaderConfig configures batch iteration over the seed vertices.
type LoaderConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	ShuffleBuffer int    `yaml:"shuffle_buffer"`
	Seed          uint64 `yaml:"seed"`
}

// Config is the file configuration of a sampling deployment.
type Config struct {
	Neo4j        Neo4jConfig        `yaml:"neo4j"`
	Schema       SchemaConfig       `yaml:"schema"`
	FeatureStore FeatureStoreConfig `yaml:"feature_store"`
	Sampler      SamplerConfig      `yaml:"sampler"`
	Views        []ViewConfig       `yaml:"views"`
	Loader       LoaderConfig       `yaml:"loader"`
}

// DefaultConfig returns the configuration used for fields a file leaves unset.
func DefaultConfig() Config {
	return Config{
		Neo4j: Neo4jConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Sampler: SamplerConfig{
			Concurrency: 1,
		},
		Loader: LoaderConfig{
			BatchSize: 64,
		},
	}
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig. Unknown fields are rejected.
// Empty Neo4j settings are then taken from the NEO4J_* environment.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	// Credentials have no file default so the environment can supply them.
	cfg.Neo4j = Neo4jConfig{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: parse config: %v", ErrConfiguration, err)
	}

	defaults := DefaultConfig().Neo4j
	cfg.Neo4j.URI = firstNonEmpty(cfg.Neo4j.URI, os.Getenv(EnvNeo4jURI), defaults.URI)
	cfg.Neo4j.Username = firstNonEmpty(cfg.Neo4j.Username, os.Getenv(EnvNeo4jUsername), defaults.Username)
	cfg.Neo4j.Password = firstNonEmpty(cfg.Neo4j.Password, os.Getenv(EnvNeo4jPassword))
	cfg.Neo4j.Database = firstNonEmpty(cfg.Neo4j.Database, os.Getenv(EnvNeo4jDatabase), defaults.Database)
	if cfg.Neo4j.QueriesPerSecond < 0 {
		return nil, configErrorf("neo4j.queries_per_second", "must not be negative")
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewExecutor connects an executor described by the Neo4j section. The
// connection is not verified.
func (c *Config) NewExecutor() (*Neo4jExecutor, error) {
	if c.Neo4j.URI == "" {
		return nil, configErrorf("neo4j.uri", "must not be empty")
	}
	return NewNeo4jExecutor(c.Neo4j.URI, c.Neo4j.Username, c.Neo4j.Password, c.Neo4j.Database,
		WithQueryRate(c.Neo4j.QueriesPerSecond, c.Neo4j.Burst))
}

// BuildSchema assembles the declared schema.
func (c *Config) BuildSchema() (*Schema, error) {
	return NewSchema(c.Schema.Vertices, c.Schema.Edges)
}

// OpenFeatureStore opens the configured feature store. The returned close
// function releases it and is never nil.
func OpenFeatureStore(cfg FeatureStoreConfig, runner DBRunner, schema SchemaProvider) (FeatureStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case FeatureStoreMemory:
		return NewMemoryFeatureStore(), noop, nil
	case FeatureStoreBadger:
		store, err := OpenBadgerFeatureStore(cfg.Badger)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case FeatureStoreNeo4j:
		if runner == nil || schema == nil {
			return nil, noop, configErrorf("feature_store.kind", "neo4j store needs a runner and a schema")
		}
		return NewNeo4jFeatureStore(runner, schema), noop, nil
	}
	return nil, noop, configErrorf("feature_store.kind", "unknown kind %d", int(cfg.Kind))
}

// BuildViews binds the configured views to store, keyed by label.
func (c *Config) BuildViews(store FeatureStore) (map[string]*FeatureView, error) {
	views := make(map[string]*FeatureView, len(c.Views))
	for _, vc := range c.Views {
		if _, dup := views[vc.Label]; dup {
			return nil, configErrorf("views", "label %q has two views", vc.Label)
		}
		v, err := NewFeatureView(vc.Label, vc.Fields, store)
		if err != nil {
			return nil, err
		}
		views[vc.Label] = v
	}
	return views, nil
}
