package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking-engine/internal/store"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

// memoryRepo is a Repository that enforces the same partial unique index
// as the Postgres schema: one active appointment per provider, date and
// stored time.
type memoryRepo struct {
	mu     sync.Mutex
	appts  map[string]*Appointment
	events []EventLog

	specialties []Specialty
	providers   []Provider

	inserts int
	reads   int

	// readErr is returned by the conflict lookups.
	readErr error
	// writeErr is returned by every write.
	writeErr error
	// readBarrier, when set, holds provider lookups until every expected
	// caller has read, so all of them see the same snapshot.
	readBarrier *sync.WaitGroup
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{appts: make(map[string]*Appointment)}
}

const providerSlotIndex = "appointments_provider_slot_active_key"

func (r *memoryRepo) slotTakenLocked(providerID string, date timeslot.Date, at timeslot.Clock, exceptID string) bool {
	for id, a := range r.appts {
		if id == exceptID || !a.Status.Active() {
			continue
		}
		if a.ProviderID == providerID && a.Date == date && a.Time == at {
			return true
		}
	}
	return false
}

func (r *memoryRepo) seed(a Appointment) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	cp := a
	r.appts[a.ID] = &cp
	return &cp
}

func (r *memoryRepo) get(id string) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.appts[id]
}

func (r *memoryRepo) insertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

func (r *memoryRepo) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func (r *memoryRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

func (r *memoryRepo) ListSpecialties(context.Context) ([]Specialty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	out := append([]Specialty(nil), r.specialties...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListProvidersBySpecialty(_ context.Context, specialtyID string) ([]Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	var out []Provider
	for _, p := range r.providers {
		if p.SpecialtyID == specialtyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ActiveForPatientSpecialty(_ context.Context, patientID, specialtyID string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.readErr != nil {
		return nil, r.readErr
	}
	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID && a.SpecialtyID == specialtyID && a.Status.Active() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ActiveForProviderDate(_ context.Context, providerID string, date timeslot.Date) ([]Appointment, error) {
	r.mu.Lock()
	r.reads++
	readErr := r.readErr
	var out []Appointment
	for _, a := range r.appts {
		if a.ProviderID == providerID && a.Date == date && a.Status.Active() {
			out = append(out, *a)
		}
	}
	barrier := r.readBarrier
	r.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

func (r *memoryRepo) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.writeErr != nil {
		return nil, r.writeErr
	}
	if a.Status.Active() && r.slotTakenLocked(a.ProviderID, a.Date, a.Time, "") {
		return nil, store.NewError(store.ErrUniqueViolation, providerSlotIndex, nil)
	}

	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := a
	r.appts[a.ID] = &cp
	return &a, nil
}

func (r *memoryRepo) GetAppointment(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id string, from []Status, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return nil, r.writeErr
	}
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, s := range from {
		if a.Status == s {
			matched = true
		}
	}
	if !matched {
		return nil, ErrAppointmentNotFound
	}
	if to.Active() && !a.Status.Active() && r.slotTakenLocked(a.ProviderID, a.Date, a.Time, id) {
		return nil, store.NewError(store.ErrUniqueViolation, providerSlotIndex, nil)
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) UpdateSchedule(_ context.Context, id string, date timeslot.Date, at timeslot.Clock) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return nil, r.writeErr
	}
	a, ok := r.appts[id]
	if !ok || !a.Status.Active() {
		return nil, ErrAppointmentNotFound
	}
	if r.slotTakenLocked(a.ProviderID, date, at, id) {
		return nil, store.NewError(store.ErrUniqueViolation, providerSlotIndex, nil)
	}
	a.Date, a.Time = date, at
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) sortedLocked(keep func(*Appointment) bool) []Appointment {
	var out []Appointment
	for _, a := range r.appts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (r *memoryRepo) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedLocked(func(a *Appointment) bool { return a.PatientID == patientID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) ListActiveUntil(_ context.Context, date timeslot.Date) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(func(a *Appointment) bool {
		return a.Status.Active() && !a.Date.After(date)
	}), nil
}

func (r *memoryRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
