// Package availability computes the bookable slots of a provider on a date.
package availability

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

var ErrNoTemplate = errors.New("availability template not found")

// Template is the per (provider, date) slot offer. Occupied lists times the
// provider blocked outside of the booking flow.
type Template struct {
	ProviderID string
	Date       timeslot.Date
	Slots      []timeslot.Clock
	Occupied   []timeslot.Clock
}

// TemplateSource looks up templates. Implementations return ErrNoTemplate
// when no record exists.
type TemplateSource interface {
	Template(ctx context.Context, providerID string, date timeslot.Date) (*Template, error)
}

type Calculator struct {
	templates TemplateSource
	defaults  []timeslot.Clock
	logger    zerolog.Logger
}

// NewCalculator uses timeslot.DefaultSlots when defaults is empty.
func NewCalculator(templates TemplateSource, defaults []timeslot.Clock, logger zerolog.Logger) *Calculator {
	if len(defaults) == 0 {
		defaults = timeslot.DefaultSlots()
	}
	return &Calculator{
		templates: templates,
		defaults:  defaults,
		logger:    logger,
	}
}

// FreeSlots returns the template for date minus booked, in template order.
// The default slot list is used only when no template exists or the lookup
// fails. A template with no slots is a day off and yields nothing.
func (c *Calculator) FreeSlots(ctx context.Context, providerID string, date timeslot.Date, booked []timeslot.Clock) []timeslot.Clock {
	slots := c.defaults
	occupied := booked

	tpl, err := c.lookup(ctx, providerID, date)
	switch {
	case err == nil:
		slots = tpl.Slots
		occupied = append(append([]timeslot.Clock(nil), booked...), tpl.Occupied...)
	case errors.Is(err, ErrNoTemplate):
	default:
		c.logger.Warn().Err(err).
			Str("provider_id", providerID).
			Str("date", date.String()).
			Msg("template lookup failed, using default slots")
	}

	return Subtract(slots, occupied)
}

func (c *Calculator) lookup(ctx context.Context, providerID string, date timeslot.Date) (*Template, error) {
	if c.templates == nil {
		return nil, ErrNoTemplate
	}
	tpl, err := c.templates.Template(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, ErrNoTemplate
	}
	return tpl, nil
}

// Subtract removes every slot whose minute matches a booked time. Order
// follows slots; duplicate slots are collapsed.
func Subtract(slots, booked []timeslot.Clock) []timeslot.Clock {
	taken := make(map[timeslot.Clock]struct{}, len(booked))
	for _, b := range booked {
		taken[b.TruncateToMinute()] = struct{}{}
	}

	free := make([]timeslot.Clock, 0, len(slots))
	for _, s := range slots {
		key := s.TruncateToMinute()
		if _, ok := taken[key]; ok {
			continue
		}
		taken[key] = struct{}{}
		free = append(free, key)
	}
	return free
}
