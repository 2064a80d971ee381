package booking

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBusinessNotFound    = errors.New("business not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrStaffNotFound       = errors.New("staff not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrRuleNotFound        = errors.New("availability rule not found")
	ErrAlreadyExists       = errors.New("identifier already exists")
)

// Repository contains all store interactions needed by the engine.
// Implementations must return defensive copies so concurrent readers never
// observe a half-written record.
type Repository interface {
	CreateBusiness(ctx context.Context, b Business) error
	GetBusiness(ctx context.Context, id string) (*Business, error)

	CreateService(ctx context.Context, businessID string, s Service) error
	GetService(ctx context.Context, businessID, id string) (*Service, error)
	ListServices(ctx context.Context, businessID string) ([]Service, error)

	CreateStaff(ctx context.Context, businessID string, s Staff) error
	GetStaff(ctx context.Context, businessID, id string) (*Staff, error)
	ListStaff(ctx context.Context, businessID string) ([]Staff, error)

	CreateClient(ctx context.Context, businessID string, c Client) error
	GetClient(ctx context.Context, businessID, id string) (*Client, error)
	ListClients(ctx context.Context, businessID string) ([]Client, error)
	// FindClientByContact matches an existing client by email, then phone,
	// then exact name. Returns ErrClientNotFound when nothing matches.
	FindClientByContact(ctx context.Context, businessID, name string, phone, email *string) (*Client, error)

	// SetAvailability replaces the rule for (rule.StaffID, rule.DayOfWeek).
	SetAvailability(ctx context.Context, businessID string, rule AvailabilityRule) error
	// LatestAvailability returns the most recently set rule for the staff
	// member across all days, or ErrRuleNotFound.
	LatestAvailability(ctx context.Context, businessID, staffID string) (*AvailabilityRule, error)
	// AvailabilityForDay returns the rule for one weekday, or ErrRuleNotFound.
	AvailabilityForDay(ctx context.Context, businessID, staffID string, dayOfWeek int) (*AvailabilityRule, error)
	ListAvailability(ctx context.Context, businessID, staffID string) ([]AvailabilityRule, error)

	// CreateAppointment inserts iff no appointment with the same id exists.
	CreateAppointment(ctx context.Context, a Appointment) error
	GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error)
	// ListAppointments returns appointments in creation order.
	ListAppointments(ctx context.Context, businessID string) ([]Appointment, error)
	// Occupancy returns the [start, end) intervals of scheduled appointments
	// for the staff key intersecting [from, to). Canceled, completed and
	// no-show appointments do not occupy time.
	Occupancy(ctx context.Context, businessID, staffID string, from, to time.Time) ([]Interval, error)
	// UpdateAppointmentStatus transitions status from -> to atomically and
	// returns ErrAppointmentNotFound when the appointment is missing or not
	// in the expected from status.
	UpdateAppointmentStatus(ctx context.Context, businessID, id string, from, to AppointmentStatus) (*Appointment, error)
	// FindFinishedScheduled returns scheduled appointments whose end time is
	// before now, across all businesses. Used by the status worker.
	FindFinishedScheduled(ctx context.Context, now time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
