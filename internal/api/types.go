package api

import (
	"github.com/shopspring/decimal"

	"github.com/caffeinepub/booking-engine/internal/booking"
)

// Instants cross the wire as int64 nanoseconds since the Unix epoch;
// availability windows as integer minutes of day.

type CreateBusinessRequest struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	TimeZone           string `json:"time_zone"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type BusinessResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	TimeZone           string `json:"time_zone"`
	GranularityMinutes int    `json:"granularity_minutes,omitempty"`
}

type PricePayload struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type ServicePayload struct {
	ID              string        `json:"id,omitempty"`
	Name            string        `json:"name"`
	DurationMinutes int           `json:"duration_minutes"`
	Price           *PricePayload `json:"price,omitempty"`
}

type StaffPayload struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type ClientPayload struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

type AvailabilityPayload struct {
	DayOfWeek   int `json:"day_of_week"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type BookPublicRequest struct {
	ServiceID string  `json:"service_id"`
	StartTime int64   `json:"start_time"`
	Name      string  `json:"name"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type BookPublicResponse struct {
	AppointmentID string `json:"appointment_id"`
}

type CreateAppointmentRequest struct {
	ID        string `json:"id,omitempty"`
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id,omitempty"`
	ClientID  string `json:"client_id"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
	Status    string `json:"status,omitempty"`
}

type AppointmentResponse struct {
	ID        string `json:"id"`
	ServiceID string `json:"service_id"`
	StaffID   string `json:"staff_id,omitempty"`
	ClientID  string `json:"client_id"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Status    string `json:"status"`
}

type SlotsResponse struct {
	Slots []int64 `json:"slots"`
}

type ProfilePayload struct {
	Name string `json:"name"`
}

type RoleResponse struct {
	Role string `json:"role"`
}

type AssignRoleRequest struct {
	Principal string `json:"principal"`
	Role      string `json:"role"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		ServiceID: a.ServiceID,
		StaffID:   a.StaffID,
		ClientID:  a.ClientID,
		StartTime: a.StartTime.UnixNano(),
		EndTime:   a.EndTime.UnixNano(),
		Status:    string(a.Status),
	}
}

func servicePayload(s *booking.Service) ServicePayload {
	out := ServicePayload{
		ID:              s.ID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
	}
	if s.Price != nil {
		out.Price = &PricePayload{Currency: s.Price.Currency, Amount: s.Price.Amount}
	}
	return out
}

func clientPayload(c *booking.Client) ClientPayload {
	return ClientPayload{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
}

func availabilityPayload(r *booking.AvailabilityRule) AvailabilityPayload {
	return AvailabilityPayload{
		DayOfWeek:   r.DayOfWeek,
		StartMinute: r.StartMinute,
		EndMinute:   r.EndMinute,
	}
}
