package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/clinic-booking-engine/internal/availability"
	"github.com/hackgods/clinic-booking-engine/internal/store"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

const (
	tableSpecialties = "specialties"
	tableProviders   = "providers"
	tableTemplates   = "availability_templates"
	tableAppointment = "appointments"
	tableEventLogs   = "event_logs"
)

var appointmentColumns = []any{
	store.Text("id"),
	store.Text("patient_id"),
	store.Text("provider_id"),
	store.Text("specialty_id"),
	"patient_name",
	"provider_name",
	"specialty_name",
	"location",
	store.Text("date"),
	store.Text("time"),
	"status",
	"created_at",
	"updated_at",
}

// PgRepository implements Repository and availability.TemplateSource on
// top of the store query interface.
type PgRepository struct {
	store *store.Store
}

func NewPgRepository(s *store.Store) *PgRepository {
	return &PgRepository{store: s}
}

// Helpers

func activeStatusValues() []any {
	out := make([]any, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func statusValues(statuses []Status) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanAppointment(row store.Row) (*Appointment, error) {
	var (
		a         Appointment
		date, at  string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.SpecialtyID,
		&a.PatientName,
		&a.ProviderName,
		&a.SpecialtyName,
		&a.Location,
		&date,
		&at,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.Date, err = timeslot.ParseDate(date); err != nil {
		return nil, err
	}
	if a.Time, err = timeslot.ParseClock(at); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.CreatedAt = createdAt
	a.UpdatedAt = updatedAt
	return &a, nil
}

func (r *PgRepository) findAppointments(ctx context.Context, q store.Query) ([]Appointment, error) {
	q.Collection = tableAppointment
	q.Columns = appointmentColumns

	var result []Appointment
	_, err := r.store.Find(ctx, q, func(row store.Row) error {
		a, err := scanAppointment(row)
		if err != nil {
			return err
		}
		result = append(result, *a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// singleAppointment runs a write that returns at most one appointment row.
func singleAppointment(run func(scan func(store.Row) error) (int, error)) (*Appointment, error) {
	var out *Appointment
	n, err := run(func(row store.Row) error {
		a, err := scanAppointment(row)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrAppointmentNotFound
	}
	return out, nil
}

// Interface methods

func (r *PgRepository) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	var result []Specialty
	_, err := r.store.Find(ctx, store.Query{
		Collection: tableSpecialties,
		Columns:    []any{store.Text("id"), "name"},
		Order:      []store.Order{store.Asc("name")},
	}, func(row store.Row) error {
		var s Specialty
		if err := row.Scan(&s.ID, &s.Name); err != nil {
			return err
		}
		result = append(result, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	return result, nil
}

func (r *PgRepository) ListProvidersBySpecialty(ctx context.Context, specialtyID string) ([]Provider, error) {
	var result []Provider
	_, err := r.store.Find(ctx, store.Query{
		Collection: tableProviders,
		Columns:    []any{store.Text("id"), store.Text("specialty_id"), "name", "license", "location"},
		Filters:    []store.Filter{store.Eq("specialty_id", specialtyID)},
		Order:      []store.Order{store.Asc("name")},
	}, func(row store.Row) error {
		var p Provider
		if err := row.Scan(&p.ID, &p.SpecialtyID, &p.Name, &p.License, &p.Location); err != nil {
			return err
		}
		result = append(result, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return result, nil
}

func (r *PgRepository) ActiveForPatientSpecialty(ctx context.Context, patientID, specialtyID string) ([]Appointment, error) {
	return r.findAppointments(ctx, store.Query{
		Filters: []store.Filter{
			store.Eq("patient_id", patientID),
			store.Eq("specialty_id", specialtyID),
			store.In("status", activeStatusValues()...),
		},
		Limit: 1,
	})
}

func (r *PgRepository) ActiveForProviderDate(ctx context.Context, providerID string, date timeslot.Date) ([]Appointment, error) {
	return r.findAppointments(ctx, store.Query{
		Filters: []store.Filter{
			store.Eq("provider_id", providerID),
			store.Eq("date", date.String()),
			store.In("status", activeStatusValues()...),
		},
		Order: []store.Order{store.Asc("time")},
	})
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	rec := store.Record{
		"patient_id":     a.PatientID,
		"provider_id":    a.ProviderID,
		"specialty_id":   a.SpecialtyID,
		"patient_name":   a.PatientName,
		"provider_name":  a.ProviderName,
		"specialty_name": a.SpecialtyName,
		"location":       a.Location,
		"date":           a.Date.String(),
		"time":           a.Time.StoreString(),
		"status":         string(a.Status),
	}
	return singleAppointment(func(scan func(store.Row) error) (int, error) {
		return r.store.Insert(ctx, tableAppointment, rec, appointmentColumns, scan)
	})
}

func (r *PgRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	result, err := r.findAppointments(ctx, store.Query{
		Filters: []store.Filter{store.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &result[0], nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Appointment, error) {
	return singleAppointment(func(scan func(store.Row) error) (int, error) {
		return r.store.Update(ctx, tableAppointment,
			store.Record{"status": string(to), "updated_at": store.Now()},
			[]store.Filter{store.Eq("id", id), store.In("status", statusValues(from)...)},
			appointmentColumns, scan)
	})
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id string, date timeslot.Date, at timeslot.Clock) (*Appointment, error) {
	return singleAppointment(func(scan func(store.Row) error) (int, error) {
		return r.store.Update(ctx, tableAppointment,
			store.Record{"date": date.String(), "time": at.StoreString(), "updated_at": store.Now()},
			[]store.Filter{store.Eq("id", id), store.In("status", activeStatusValues()...)},
			appointmentColumns, scan)
	})
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	return r.findAppointments(ctx, store.Query{
		Filters: []store.Filter{store.Eq("patient_id", patientID)},
		Order:   []store.Order{store.Asc("date"), store.Asc("time")},
		Limit:   uint(limit),
		Offset:  uint(offset),
	})
}

func (r *PgRepository) ListActiveUntil(ctx context.Context, date timeslot.Date) ([]Appointment, error) {
	return r.findAppointments(ctx, store.Query{
		Filters: []store.Filter{
			store.Lte("date", date.String()),
			store.In("status", activeStatusValues()...),
		},
		Order: []store.Order{store.Asc("date"), store.Asc("time")},
	})
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	rec := store.Record{
		"event_type":     ev.EventType,
		"appointment_id": nullableString(ev.AppointmentID),
		"payload":        nullablePayload(ev.Payload),
	}
	if !ev.CreatedAt.IsZero() {
		rec["created_at"] = ev.CreatedAt
	}

	if _, err := r.store.Insert(ctx, tableEventLogs, rec, nil, nil); err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// Template implements availability.TemplateSource.
func (r *PgRepository) Template(ctx context.Context, providerID string, date timeslot.Date) (*availability.Template, error) {
	var (
		slots, occupied string
		found           bool
	)
	_, err := r.store.Find(ctx, store.Query{
		Collection: tableTemplates,
		Columns:    []any{store.JoinedText("slots"), store.JoinedText("occupied")},
		Filters:    []store.Filter{store.Eq("provider_id", providerID), store.Eq("date", date.String())},
		Limit:      1,
	}, func(row store.Row) error {
		found = true
		return row.Scan(&slots, &occupied)
	})
	if err != nil {
		return nil, fmt.Errorf("load availability template: %w", err)
	}
	if !found {
		return nil, availability.ErrNoTemplate
	}

	tpl := &availability.Template{ProviderID: providerID, Date: date}
	var errs []error
	tpl.Slots, errs = timeslot.ParseClocks(splitList(slots))
	if len(errs) > 0 {
		return nil, fmt.Errorf("parse template slots: %w", errors.Join(errs...))
	}
	tpl.Occupied, errs = timeslot.ParseClocks(splitList(occupied))
	if len(errs) > 0 {
		return nil, fmt.Errorf("parse template occupancy: %w", errors.Join(errs...))
	}
	return tpl, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullablePayload(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
