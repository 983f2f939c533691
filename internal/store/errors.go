package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/mbp-history/internal/model"
)

var (
	// ErrNotFound is returned for unknown instruments on resolve-only paths.
	ErrNotFound = errors.New("not found")

	// ErrConstraintViolation covers uniqueness and foreign-key failures other
	// than the expected duplicate tick.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrUnavailable means the database could not be reached. Callers may
	// retry with backoff; the store never retries writes itself.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvariantViolation rejects malformed events before they are written.
	ErrInvariantViolation = errors.New("invariant violation")
)

// IngestError describes a failed event with enough context to replay it.
type IngestError struct {
	InstrumentID int64
	Key          model.NaturalKey
	Err          error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Key, e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func newIngestError(t model.Tick, err error) *IngestError {
	return &IngestError{InstrumentID: t.InstrumentID, Key: t.Key(), Err: err}
}

// SQLSTATE codes mapped to ErrConstraintViolation.
var constraintCodes = map[string]bool{
	"23502": true, // not_null_violation
	"23503": true, // foreign_key_violation
	"23505": true, // unique_violation
	"23514": true, // check_violation
}

// classifyError maps driver errors onto the store's error taxonomy. The
// original error stays in the chain.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvariantViolation) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case constraintCodes[pgErr.Code]:
			return fmt.Errorf("%w: %s: %w", ErrConstraintViolation, pgErr.ConstraintName, err)
		case unavailableCode(pgErr.Code):
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// unavailableCode reports connection exceptions (class 08), operator
// intervention such as shutdown (57P), too_many_connections, and the
// transaction rollbacks a caller can retry: deadlock_detected and
// serialization_failure.
func unavailableCode(code string) bool {
	switch code {
	case "53300", "40P01", "40001":
		return true
	}
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P")
}
