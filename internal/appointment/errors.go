package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hackgods/clinic-booking-engine/internal/store"
)

// Booking error kinds. A failed Book always returns a *BookingError whose
// kind matches exactly one of these with errors.Is.
var (
	ErrValidation         = errors.New("invalid booking request")
	ErrDuplicateSpecialty = errors.New("patient already has an active appointment for this specialty")
	ErrProviderConflict   = errors.New("provider already booked at this date and time")
	ErrAuthorization      = errors.New("store denied permission")
	ErrStore              = errors.New("store failure")
)

// Lifecycle errors.
var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotOwner                = errors.New("appointment belongs to another patient")
)

// State is a step of the booking state machine.
type State string

const (
	StateValidating        State = "validating"
	StateCheckingConflicts State = "checking_conflicts"
	StateCommitting        State = "committing"
	StateSucceeded         State = "succeeded"
	StateRejected          State = "rejected"
	StateFailed            State = "failed"
)

type BookingError struct {
	State  State
	Kind   error
	Detail string
	Err    error
}

func (e *BookingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *BookingError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether resubmitting the same request may succeed.
func (e *BookingError) Retryable() bool {
	return errors.Is(e.Kind, ErrStore)
}

func validationError(format string, args ...any) *BookingError {
	return &BookingError{State: StateRejected, Kind: ErrValidation, Detail: fmt.Sprintf(format, args...)}
}

// withState returns err as a *BookingError in state st.
func withState(err error, st State) *BookingError {
	var be *BookingError
	if errors.As(err, &be) {
		cp := *be
		cp.State = st
		return &cp
	}
	return &BookingError{State: st, Kind: ErrStore, Err: err}
}

// terminalState is Rejected for caller-correctable kinds, Failed otherwise.
func terminalState(err error) State {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateSpecialty), errors.Is(err, ErrProviderConflict):
		return StateRejected
	default:
		return StateFailed
	}
}

// translateWriteError maps a classified store error from an appointment
// write onto the booking kinds. A unique violation can only come from the
// provider slot index.
func translateWriteError(err error, a Appointment) *BookingError {
	return store.TranslateWrite(err, store.WriteOutcomes[*BookingError]{
		Conflict: func(error) *BookingError {
			return &BookingError{
				Kind:   ErrProviderConflict,
				Detail: fmt.Sprintf("provider already booked on %s at %s", a.Date, a.Time),
			}
		},
		Denied: func(err error) *BookingError {
			return &BookingError{Kind: ErrAuthorization, Err: err}
		},
		Failed: func(err error) *BookingError {
			return &BookingError{Kind: ErrStore, Err: err}
		},
	})
}
