package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Error kinds. Every error returned by Store matches exactly one of them
// with errors.Is.
var (
	ErrUniqueViolation  = errors.New("unique constraint violated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("store unavailable")
	ErrNoRows           = errors.New("no rows")
	ErrFailed           = errors.New("store operation failed")
)

const (
	codeUniqueViolation    = "23505"
	codeInsufficientPriv   = "42501"
	codeTooManyConnections = "53300"
	codeAdminShutdown      = "57P01"
	codeCannotConnectNow   = "57P03"
	classConnection        = "08"
)

// Error carries the classified kind together with the backend details.
type Error struct {
	Kind       error
	Code       string
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Constraint != "" {
		fmt.Fprintf(&b, " (%s)", e.Constraint)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a classified error directly. Fakes in tests use it to
// mimic the backend.
func NewError(kind error, constraint string, cause error) *Error {
	return &Error{Kind: kind, Constraint: constraint, Err: cause}
}

// WriteOutcomes holds the domain errors a caller wants for a failed write.
type WriteOutcomes[T any] struct {
	Conflict func(err error) T
	Denied   func(err error) T
	Failed   func(err error) T
}

// TranslateWrite maps a failed write onto o: unique violations to Conflict,
// permission denials to Denied and everything else to Failed.
func TranslateWrite[T any](err error, o WriteOutcomes[T]) T {
	switch {
	case errors.Is(err, ErrUniqueViolation):
		return o.Conflict(err)
	case errors.Is(err, ErrPermissionDenied):
		return o.Denied(err)
	default:
		return o.Failed(err)
	}
}

// Classify maps driver errors from pgx and lib/pq onto the store kinds.
// Already classified errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Kind: kindForCode(pgErr.Code), Code: pgErr.Code, Constraint: pgErr.ConstraintName, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return &Error{Kind: kindForCode(code), Code: code, Constraint: pqErr.Constraint, Err: err}
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows):
		return &Error{Kind: ErrNoRows, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		pgconn.Timeout(err), errors.Is(err, sql.ErrConnDone):
		return &Error{Kind: ErrUnavailable, Err: err}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return &Error{Kind: ErrUnavailable, Err: err}
	}

	return &Error{Kind: ErrFailed, Err: err}
}

func kindForCode(code string) error {
	switch {
	case code == codeUniqueViolation:
		return ErrUniqueViolation
	case code == codeInsufficientPriv:
		return ErrPermissionDenied
	case code == codeTooManyConnections, code == codeAdminShutdown, code == codeCannotConnectNow,
		strings.HasPrefix(code, classConnection):
		return ErrUnavailable
	default:
		return ErrFailed
	}
}
