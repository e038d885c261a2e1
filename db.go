// Package neosample samples bounded multi-hop neighborhoods around seed vertices
// stored in a Neo4j graph and materializes them into compact, locally indexed
// subgraphs ready for feature lookups.
package neosample

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"
)

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type DBRunner interface {
	// Run executes a given Cypher query with parameters and returns a fully-buffered result.
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)

	// Stream executes a read query and hands every record to fn as it arrives.
	// Iteration stops at the first error returned by fn, which Stream returns.
	// Any connection acquired for the query is released before Stream returns.
	Stream(ctx context.Context, query string, params map[string]any, fn func(*neo4j.Record) error) error
}

//---

// Neo4jExecutor is a concrete implementation of the DBRunner interface that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Neo4jExecutor struct {
	Driver  neo4j.DriverWithContext
	DBName  string
	limiter *rate.Limiter
}

// ExecutorOption configures a Neo4jExecutor.
type ExecutorOption func(*Neo4jExecutor)

// WithQueryRate caps the number of queries per second issued by the executor.
// A non-positive qps leaves the executor unlimited.
func WithQueryRate(qps float64, burst int) ExecutorOption {
	return func(e *Neo4jExecutor) {
		if qps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor.
// It establishes a connection driver with the provided credentials.
//
// Parameters:
//   - uri: The connection URI for the Neo4j instance (e.g., "neo4j://localhost:7687").
//   - username: The username for authentication.
//   - password: The password for authentication.
//   - dbName: The name of the database to connect to (e.g., "neo4j").
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the driver creation fails.
func NewNeo4jExecutor(uri, username, password, dbName string, opts ...ExecutorOption) (*Neo4jExecutor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	e := &Neo4jExecutor{Driver: driver, DBName: dbName}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Verify checks the connectivity to the Neo4j database.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Close releases the driver and every pooled connection.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

func (e *Neo4jExecutor) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// Run executes a Cypher query using the ExecuteQuery function, which handles
// session and transaction management automatically.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an error if
//	the execution fails.
func (e *Neo4jExecutor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return result, nil
}

// Stream runs the query in an auto-commit read session and iterates the result
// lazily. The session is closed on every exit path. Auto-commit sessions are not
// retried by the driver, so fn sees every record exactly once.
func (e *Neo4jExecutor) Stream(ctx context.Context, query string, params map[string]any, fn func(*neo4j.Record) error) error {
	if err := e.wait(ctx); err != nil {
		return err
	}
	session := e.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: e.DBName,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("error executing neo4j query: %w", err)
	}
	for result.Next(ctx) {
		if err := fn(result.Record()); err != nil {
			return err
		}
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("error reading neo4j result: %w", err)
	}
	return nil
}

// stream runs one instrumented query through runner. Driver failures come back
// as *QueryError; errors produced by fn are returned as is.
func stream(ctx context.Context, runner DBRunner, kind, query string, params map[string]any, fn func(*neo4j.Record) error) error {
	start := time.Now()
	var fnErr error
	err := runner.Stream(ctx, query, params, func(rec *neo4j.Record) error {
		if err := fn(rec); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	observeQuery(kind, time.Since(start).Seconds(), err)
	if err == nil {
		return nil
	}
	if fnErr != nil && err == fnErr {
		return err
	}
	return queryError(query, err)
}

// recordInt64 extracts an integer column from a record.
func recordInt64(rec *neo4j.Record, key string) (int64, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// recordString extracts a string column from a record.
func recordString(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
