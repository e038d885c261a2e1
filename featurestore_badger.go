package neosample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for a badger-backed feature store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool `yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `yaml:"sync_writes"`

	// Logger receives BadgerDB's internal logs. If nil they are discarded.
	Logger *slog.Logger `yaml:"-"`
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerFeatureStore serves features from a BadgerDB keyspace laid out as
// label/feature/id, with values stored as decimal text.
type BadgerFeatureStore struct {
	db *badger.DB
}

// OpenBadgerFeatureStore opens the store described by cfg. Callers must Close it.
func OpenBadgerFeatureStore(cfg BadgerConfig) (*BadgerFeatureStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, configErrorf("feature_store.path", "path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create feature store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger feature store: %w", err)
	}
	return &BadgerFeatureStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerFeatureStore) Close() error {
	return s.db.Close()
}

// Put stores one feature value. NaN values are not stored, so they read back
// as missing.
func (s *BadgerFeatureStore) Put(label, name, id string, value float64) error {
	if math.IsNaN(value) {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(featureKey(label, name, id)), []byte(strconv.FormatFloat(value, 'g', -1, 64)))
	})
}

// PutRows stores a len(ids) x len(names) block of values given in id-major
// order, in one write batch. NaN values are skipped.
func (s *BadgerFeatureStore) PutRows(label string, names, ids []string, values []float64) error {
	if len(values) != len(ids)*len(names) {
		return fmt.Errorf("put rows: %d values for %d ids x %d fields", len(values), len(ids), len(names))
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, id := range ids {
		for j, name := range names {
			v := values[i*len(names)+j]
			if math.IsNaN(v) {
				continue
			}
			if err := wb.Set([]byte(featureKey(label, name, id)), []byte(strconv.FormatFloat(v, 'g', -1, 64))); err != nil {
				return fmt.Errorf("put rows: %w", err)
			}
		}
	}
	return wb.Flush()
}

// Get implements FeatureStore. Absent keys are reported as nil.
func (s *BadgerFeatureStore) Get(ctx context.Context, label string, names []string, ids []string) ([]any, error) {
	out := make([]any, 0, len(ids)*len(names))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, name := range names {
				item, err := txn.Get([]byte(featureKey(label, name, id)))
				if errors.Is(err, badger.ErrKeyNotFound) {
					out = append(out, nil)
					continue
				}
				if err != nil {
					return err
				}
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				out = append(out, string(val))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: badger get %s: %w", ErrStoreQuery, label, err)
	}
	return out, nil
}
