package appointment

import (
	"time"

	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses count toward both booking conflict rules. The partial
// unique index on appointments uses the same set.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Specialty struct {
	ID   string
	Name string
}

type Provider struct {
	ID          string
	SpecialtyID string
	Name        string
	License     string
	Location    string
}

type Appointment struct {
	ID          string
	PatientID   string
	ProviderID  string
	SpecialtyID string

	// Display fields stored alongside the ids.
	PatientName   string
	ProviderName  string
	SpecialtyName string
	Location      string

	Date   timeslot.Date
	Time   timeslot.Clock
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt is the appointment start in loc.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Time, loc)
}

// BookingRequest is the raw candidate submitted by a caller. Date is
// YYYY-MM-DD and Time is HH:MM or HH:MM:SS.
type BookingRequest struct {
	PatientID   string
	ProviderID  string
	SpecialtyID string

	PatientName   string
	ProviderName  string
	SpecialtyName string
	Location      string

	Date string
	Time string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *string
	Payload       []byte
	CreatedAt     time.Time
}
