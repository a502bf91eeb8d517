package api

import (
	"time"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/profile"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

type BookAppointmentRequest struct {
	ProviderID    string `json:"provider_id"`
	SpecialtyID   string `json:"specialty_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	PatientName   string `json:"patient_name,omitempty"`
	ProviderName  string `json:"provider_name,omitempty"`
	SpecialtyName string `json:"specialty_name,omitempty"`
	Location      string `json:"location,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type ProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type AppointmentResponse struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patient_id"`
	ProviderID    string    `json:"provider_id"`
	SpecialtyID   string    `json:"specialty_id"`
	PatientName   string    `json:"patient_name,omitempty"`
	ProviderName  string    `json:"provider_name,omitempty"`
	SpecialtyName string    `json:"specialty_name,omitempty"`
	Location      string    `json:"location,omitempty"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type SpecialtyResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ProviderResponse struct {
	ID          string `json:"id"`
	SpecialtyID string `json:"specialty_id"`
	Name        string `json:"name"`
	License     string `json:"license,omitempty"`
	Location    string `json:"location,omitempty"`
}

type FreeSlotsResponse struct {
	ProviderID string   `json:"provider_id"`
	Date       string   `json:"date"`
	Slots      []string `json:"slots"`
}

type ProfileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	State   string `json:"state,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		ProviderID:    a.ProviderID,
		SpecialtyID:   a.SpecialtyID,
		PatientName:   a.PatientName,
		ProviderName:  a.ProviderName,
		SpecialtyName: a.SpecialtyName,
		Location:      a.Location,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toFreeSlotsResponse(providerID, date string, slots []timeslot.Clock) FreeSlotsResponse {
	return FreeSlotsResponse{
		ProviderID: providerID,
		Date:       date,
		Slots:      timeslot.Strings(slots),
	}
}

func toProfileResponse(p *profile.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		UpdatedAt: p.UpdatedAt,
	}
}
