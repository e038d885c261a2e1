package neosample

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by constructors when the sampler, schema or
	// feature store configuration is unusable. It is never returned mid-sample.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrStoreQuery is returned when a backing-store query fails or yields a
	// row that cannot be decoded. It aborts the sample call in progress.
	ErrStoreQuery = errors.New("store query failed")

	// ErrInvariantViolation marks a defect in the sampling pipeline, such as a
	// CSC whose column count does not match its frontier.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrAlreadyLocal is returned when ToLocal is called on a collector whose
	// ids have already been renumbered.
	ErrAlreadyLocal = errors.New("collector already converted to local ids")

	// ErrCollectorSealed is returned when a hop is added after ToLocal.
	ErrCollectorSealed = errors.New("collector is sealed")

	// ErrInvalidSeeds is returned by Sample when the seed batch does not match
	// the configured seed type.
	ErrInvalidSeeds = errors.New("invalid seed batch")

	// ErrNotFound is a sentinel error returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
)

// QueryError wraps a failed backing-store query together with the statement
// that produced it.
//
// The original driver error (if any) can be accessed via errors.Unwrap.
type QueryError struct {
	Query string
	cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%v: %v", ErrStoreQuery, e.cause)
}

func (e *QueryError) Unwrap() error { return e.cause }

// Is reports QueryError as ErrStoreQuery.
func (e *QueryError) Is(target error) bool { return target == ErrStoreQuery }

func queryError(query string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Query: query, cause: err}
}

// malformedRow reports a result row that does not have the expected shape.
func malformedRow(query string, format string, args ...any) error {
	return &QueryError{Query: query, cause: fmt.Errorf("malformed row: "+format, args...)}
}

// ConfigError describes a rejected configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

// Is reports ConfigError as ErrConfiguration.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, args...)...)
}
