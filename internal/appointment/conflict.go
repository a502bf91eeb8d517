package appointment

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

// Detector runs the advisory pre-commit checks. Lookup failures are logged
// and reported as "no conflict"; the unique index enforced at commit time
// is what actually prevents double booking.
type Detector struct {
	repo   ConflictReader
	logger zerolog.Logger
}

func NewDetector(repo ConflictReader, logger zerolog.Logger) *Detector {
	return &Detector{repo: repo, logger: logger}
}

// Verdict is the combined result of both checks.
type Verdict struct {
	DuplicateSpecialty bool
	ProviderBusy       bool
}

func (v Verdict) Clear() bool {
	return !v.DuplicateSpecialty && !v.ProviderBusy
}

// Check runs both checks concurrently for a canonicalized candidate.
func (d *Detector) Check(ctx context.Context, a Appointment) Verdict {
	var (
		v Verdict
		g errgroup.Group
	)
	g.Go(func() error {
		v.DuplicateSpecialty = d.HasActiveForSpecialty(ctx, a.PatientID, a.SpecialtyID)
		return nil
	})
	g.Go(func() error {
		v.ProviderBusy = d.HasConflict(ctx, a.ProviderID, a.Date, a.Time)
		return nil
	})
	_ = g.Wait()
	return v
}

// HasActiveForSpecialty reports whether the patient already holds a
// scheduled or confirmed appointment in the specialty, with any provider.
func (d *Detector) HasActiveForSpecialty(ctx context.Context, patientID, specialtyID string) bool {
	ctx, span := tracer.Start(ctx, "appointment.Detector.HasActiveForSpecialty")
	defer span.End()

	found, err := d.repo.ActiveForPatientSpecialty(ctx, patientID, specialtyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed, failing open")
		d.logger.Warn().Err(err).
			Str("patient_id", patientID).
			Str("specialty_id", specialtyID).
			Msg("specialty duplicate check failed, assuming no conflict")
		return false
	}

	span.SetAttributes(attribute.Int("matches", len(found)))
	return len(found) > 0
}

// HasConflict reports whether the provider holds an active appointment at
// the same date and minute.
func (d *Detector) HasConflict(ctx context.Context, providerID string, date timeslot.Date, at timeslot.Clock) bool {
	return d.HasConflictExcluding(ctx, providerID, date, at, "")
}

// HasConflictExcluding is HasConflict ignoring the appointment excludeID,
// for moving an appointment within its own provider's day.
func (d *Detector) HasConflictExcluding(ctx context.Context, providerID string, date timeslot.Date, at timeslot.Clock, excludeID string) bool {
	ctx, span := tracer.Start(ctx, "appointment.Detector.HasConflict")
	defer span.End()

	booked, err := d.repo.ActiveForProviderDate(ctx, providerID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed, failing open")
		d.logger.Warn().Err(err).
			Str("provider_id", providerID).
			Str("date", date.String()).
			Str("time", at.String()).
			Msg("provider slot check failed, assuming no conflict")
		return false
	}

	for _, b := range booked {
		if b.ID == excludeID && excludeID != "" {
			continue
		}
		if b.Status.Active() && b.Time.SameMinute(at) {
			return true
		}
	}
	return false
}
