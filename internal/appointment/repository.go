package appointment

import (
	"context"

	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

// Repository is the engine's view of the store. Write methods return
// errors classified by the store package so callers can tell a unique
// violation from other failures. Lookups by id return
// ErrAppointmentNotFound when nothing matches.
type Repository interface {
	ListSpecialties(ctx context.Context) ([]Specialty, error)
	ListProvidersBySpecialty(ctx context.Context, specialtyID string) ([]Provider, error)

	ActiveForPatientSpecialty(ctx context.Context, patientID, specialtyID string) ([]Appointment, error)
	ActiveForProviderDate(ctx context.Context, providerID string, date timeslot.Date) ([]Appointment, error)

	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Appointment, error)
	UpdateSchedule(ctx context.Context, id string, date timeslot.Date, at timeslot.Clock) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error)
	ListActiveUntil(ctx context.Context, date timeslot.Date) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// ConflictReader is the read side used by the Detector.
type ConflictReader interface {
	ActiveForPatientSpecialty(ctx context.Context, patientID, specialtyID string) ([]Appointment, error)
	ActiveForProviderDate(ctx context.Context, providerID string, date timeslot.Date) ([]Appointment, error)
}

// AppointmentWriter is the write side used by the Committer.
type AppointmentWriter interface {
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
}
