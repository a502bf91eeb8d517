package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-booking-engine/internal/availability"
	"github.com/hackgods/clinic-booking-engine/internal/config"
	"github.com/hackgods/clinic-booking-engine/internal/identifier"
	"github.com/hackgods/clinic-booking-engine/internal/logging"
	"github.com/hackgods/clinic-booking-engine/internal/store"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var tracer = otel.Tracer("github.com/hackgods/clinic-booking-engine/internal/appointment")

var json = jsoniter.ConfigFastest

// Service is the booking engine: it validates candidates, runs the
// advisory conflict checks, commits through the unique index, and owns
// the later lifecycle transitions.
type Service struct {
	repo      Repository
	detector  *Detector
	committer *Committer
	slots     *availability.Calculator
	cfg       config.Config
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, slots *availability.Calculator, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{
		repo:      repo,
		detector:  NewDetector(repo, logger),
		committer: NewCommitter(repo, logger),
		slots:     slots,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSpecialties returns every specialty ordered by name.
func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	specialties, err := s.repo.ListSpecialties(ctx)
	if err != nil {
		return nil, readError(err)
	}
	return specialties, nil
}

// ListProvidersFor returns the providers of a specialty ordered by name.
func (s *Service) ListProvidersFor(ctx context.Context, specialtyID string) ([]Provider, error) {
	id := identifier.Parse(specialtyID)
	if id.IsZero() {
		return nil, validationError("specialty id is required")
	}
	providers, err := s.repo.ListProvidersBySpecialty(ctx, id.Canonical())
	if err != nil {
		return nil, readError(err)
	}
	return providers, nil
}

// ListFreeSlots returns the provider's open slots on date. Failing to read
// current bookings is not fatal; the commit still guards the slot.
func (s *Service) ListFreeSlots(ctx context.Context, providerID, date string) ([]timeslot.Clock, error) {
	id := identifier.Parse(providerID)
	if id.IsZero() {
		return nil, validationError("provider id is required")
	}
	day, err := timeslot.ParseDate(date)
	if err != nil {
		return nil, validationError("%v", err)
	}
	pid := id.Canonical()

	var booked []timeslot.Clock
	active, err := s.repo.ActiveForProviderDate(ctx, pid, day)
	if err != nil {
		logger := logging.WithTrace(ctx, s.logger)
		logger.Warn().Err(err).
			Str("provider_id", pid).
			Str("date", day.String()).
			Msg("booked slot lookup failed, listing template slots")
	}
	for _, a := range active {
		booked = append(booked, a.Time)
	}

	return s.slots.FreeSlots(ctx, pid, day, booked), nil
}

// Book runs the booking state machine for req. Every error is a
// *BookingError in state Rejected or Failed.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Service.Book")
	defer span.End()
	logger := logging.WithTrace(ctx, s.logger)

	state := StateValidating
	candidate, err := s.validate(req)
	if err != nil {
		return nil, s.fail(logger, span, state, err)
	}
	span.SetAttributes(
		attribute.String("booking.provider_id", candidate.ProviderID),
		attribute.String("booking.date", candidate.Date.String()),
		attribute.String("booking.time", candidate.Time.String()),
	)

	state = s.advance(logger, state, StateCheckingConflicts)
	verdict := s.detector.Check(ctx, *candidate)
	switch {
	case verdict.DuplicateSpecialty:
		return nil, s.fail(logger, span, state, &BookingError{
			Kind:   ErrDuplicateSpecialty,
			Detail: fmt.Sprintf("cancel the existing appointment for specialty %s first", candidate.SpecialtyID),
		})
	case verdict.ProviderBusy:
		return nil, s.fail(logger, span, state, &BookingError{
			Kind:   ErrProviderConflict,
			Detail: fmt.Sprintf("provider already booked on %s at %s", candidate.Date, candidate.Time),
		})
	}

	state = s.advance(logger, state, StateCommitting)
	created, err := s.committer.Commit(ctx, *candidate)
	if err != nil {
		return nil, s.fail(logger, span, state, err)
	}

	s.advance(logger, state, StateSucceeded)
	span.SetAttributes(attribute.String("booking.state", string(StateSucceeded)), attribute.String("booking.id", created.ID))

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"patient_id":   created.PatientID,
		"provider_id":  created.ProviderID,
		"specialty_id": created.SpecialtyID,
		"date":         created.Date.String(),
		"time":         created.Time.StoreString(),
	})
	return created, nil
}

func (s *Service) advance(logger zerolog.Logger, from, to State) State {
	logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("booking state")
	return to
}

func (s *Service) fail(logger zerolog.Logger, span trace.Span, from State, err error) error {
	be := withState(err, terminalState(err))
	logger.Debug().Str("from", string(from)).Str("to", string(be.State)).Str("reason", be.Error()).Msg("booking state")

	span.SetAttributes(attribute.String("booking.state", string(be.State)))
	if be.State == StateFailed {
		span.RecordError(be)
		span.SetStatus(codes.Error, be.Kind.Error())
	}
	return be
}

// validate performs the structural checks. It never touches the store.
func (s *Service) validate(req BookingRequest) (*Appointment, error) {
	patient := identifier.Parse(req.PatientID)
	provider := identifier.Parse(req.ProviderID)
	specialty := identifier.Parse(req.SpecialtyID)

	var missing []string
	if patient.IsZero() {
		missing = append(missing, "patient_id")
	}
	if provider.IsZero() {
		missing = append(missing, "provider_id")
	}
	if specialty.IsZero() {
		missing = append(missing, "specialty_id")
	}
	if strings.TrimSpace(req.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(req.Time) == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return nil, validationError("missing required fields: %s", strings.Join(missing, ", "))
	}

	date, at, err := s.validateSlot(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	return &Appointment{
		PatientID:     patient.Canonical(),
		ProviderID:    provider.Canonical(),
		SpecialtyID:   specialty.Canonical(),
		PatientName:   strings.TrimSpace(req.PatientName),
		ProviderName:  strings.TrimSpace(req.ProviderName),
		SpecialtyName: strings.TrimSpace(req.SpecialtyName),
		Location:      strings.TrimSpace(req.Location),
		Date:          date,
		Time:          at,
		Status:        StatusScheduled,
	}, nil
}

// validateSlot parses a date and time and checks them against today and
// the configured business hours. The time is truncated to the minute.
func (s *Service) validateSlot(date, at string) (timeslot.Date, timeslot.Clock, error) {
	day, err := timeslot.ParseDate(date)
	if err != nil {
		return timeslot.Date{}, 0, validationError("%v", err)
	}
	clock, err := timeslot.ParseClock(at)
	if err != nil {
		return timeslot.Date{}, 0, validationError("%v", err)
	}
	clock = clock.TruncateToMinute()

	today := timeslot.DateOf(s.now().In(s.cfg.Location))
	if day.Before(today) {
		return timeslot.Date{}, 0, validationError("date %s is in the past", day)
	}

	open, closing := s.cfg.BusinessOpen, s.cfg.BusinessClose
	if closing == 0 {
		closing = timeslot.Clock(24 * 3600)
	}
	if clock < open || clock >= closing {
		return timeslot.Date{}, 0, validationError("time %s is outside business hours %s-%s", clock, open, closing)
	}
	return day, clock, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, []Status{StatusScheduled}, StatusConfirmed)
	if err != nil {
		return nil, transitionError(err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})
	return updated, nil
}

// Cancel releases an active appointment owned by patientID.
func (s *Service) Cancel(ctx context.Context, id, patientID string) (*Appointment, error) {
	appt, err := s.loadOwned(ctx, id, patientID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.Active() {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, ActiveStatuses, StatusCancelled)
	if err != nil {
		return nil, transitionError(err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"previous_status": string(appt.Status),
	})
	return updated, nil
}

// Reschedule moves an active appointment to a new date and time. It runs
// the advisory provider check and then relies on the unique index, just
// like Book.
func (s *Service) Reschedule(ctx context.Context, id, patientID, date, at string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Service.Reschedule")
	defer span.End()
	logger := logging.WithTrace(ctx, s.logger)

	appt, err := s.loadOwned(ctx, id, patientID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.Active() {
		return nil, ErrInvalidStatusTransition
	}

	day, clock, err := s.validateSlot(date, at)
	if err != nil {
		return nil, err
	}

	moved := *appt
	moved.Date, moved.Time = day, clock

	if s.detector.HasConflictExcluding(ctx, appt.ProviderID, day, clock, appt.ID) {
		return nil, s.fail(logger, span, StateCheckingConflicts, &BookingError{
			Kind:   ErrProviderConflict,
			Detail: fmt.Sprintf("provider already booked on %s at %s", day, clock),
		})
	}

	updated, err := s.repo.UpdateSchedule(ctx, appt.ID, day, clock)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, s.fail(logger, span, StateCommitting, translateWriteError(err, moved))
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from_date": appt.Date.String(),
		"from_time": appt.Time.StoreString(),
		"to_date":   updated.Date.String(),
		"to_time":   updated.Time.StoreString(),
	})
	return updated, nil
}

// ListPatientAppointments returns a page of the patient's appointments
// ordered by date and time.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	id := identifier.Parse(patientID)
	if id.IsZero() {
		return nil, validationError("patient id is required")
	}
	limit = PageSize(limit)
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, id.Canonical(), limit, offset)
	if err != nil {
		return nil, readError(err)
	}
	return appointments, nil
}

// PageSize clamps a requested page size to (0, 100], defaulting to 20.
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

// CompletePastAppointments marks active appointments whose start lies more
// than the completion grace in the past as completed. It is called by the
// worker periodically and returns how many were completed.
func (s *Service) CompletePastAppointments(ctx context.Context) (int, error) {
	now := s.now().In(s.cfg.Location)
	candidates, err := s.repo.ListActiveUntil(ctx, timeslot.DateOf(now))
	if err != nil {
		return 0, fmt.Errorf("find past active appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		if !appt.StartsAt(s.cfg.Location).Add(s.cfg.CompletionGrace).Before(now) {
			continue
		}
		_, err := s.repo.UpdateStatus(ctx, appt.ID, ActiveStatuses, StatusCompleted)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID).Msg("failed to complete appointment")
			}
			continue
		}
		completed++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "worker",
		})
	}

	return completed, nil
}

func (s *Service) load(ctx context.Context, id string) (*Appointment, error) {
	parsed := identifier.Parse(id)
	if k := parsed.Kind(); k == identifier.KindZero || k == identifier.KindOpaque {
		return nil, ErrAppointmentNotFound
	}
	appt, err := s.repo.GetAppointment(ctx, parsed.Canonical())
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, readError(err)
	}
	return appt, nil
}

func (s *Service) loadOwned(ctx context.Context, id, patientID string) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(appt.PatientID, identifier.EnsureCanonical(patientID)) {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// transitionError handles a conditional status update that matched no row:
// the status changed underneath us.
func transitionError(err error) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		return ErrInvalidStatusTransition
	}
	return readError(err)
}

func readError(err error) error {
	if errors.Is(err, store.ErrPermissionDenied) {
		return &BookingError{State: StateFailed, Kind: ErrAuthorization, Err: err}
	}
	return &BookingError{State: StateFailed, Kind: ErrStore, Err: err}
}

func (s *Service) logEvent(ctx context.Context, appointmentID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID).
			Msg("failed to insert event log")
	}
}
