package appointment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/identifier"
)

// Committer performs the single constrained insert for a booking.
type Committer struct {
	repo   AppointmentWriter
	logger zerolog.Logger
}

func NewCommitter(repo AppointmentWriter, logger zerolog.Logger) *Committer {
	return &Committer{repo: repo, logger: logger}
}

// Commit canonicalizes the candidate ids, truncates the time to the
// minute, and inserts. A unique violation on the provider slot index comes
// back as ErrProviderConflict; permission denials as ErrAuthorization;
// anything else as ErrStore.
func (c *Committer) Commit(ctx context.Context, candidate Appointment) (*Appointment, error) {
	a := candidate
	a.ID = ""
	a.PatientID = identifier.EnsureCanonical(a.PatientID)
	a.ProviderID = identifier.EnsureCanonical(a.ProviderID)
	a.SpecialtyID = identifier.EnsureCanonical(a.SpecialtyID)
	a.Time = a.Time.TruncateToMinute()
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	for _, f := range []struct{ name, id string }{
		{"patient", a.PatientID},
		{"provider", a.ProviderID},
		{"specialty", a.SpecialtyID},
	} {
		if f.id == identifier.Zero {
			return nil, validationError("%s id is required", f.name)
		}
	}
	if a.Date.IsZero() {
		return nil, validationError("date is required")
	}

	created, err := c.repo.InsertAppointment(ctx, a)
	if err != nil {
		be := translateWriteError(err, a)
		ev := c.logger.Error()
		if errors.Is(be, ErrProviderConflict) {
			ev = c.logger.Info()
		}
		ev.Err(err).
			Str("kind", be.Kind.Error()).
			Str("provider_id", a.ProviderID).
			Str("date", a.Date.String()).
			Str("time", a.Time.StoreString()).
			Msg("appointment insert failed")
		return nil, be
	}
	return created, nil
}
