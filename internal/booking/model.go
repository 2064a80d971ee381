package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
	StatusNoShow    AppointmentStatus = "noShow"
)

// Business is the tenant that owns staff, services, clients, availability
// rules and appointments. TimeZone is an IANA label used to interpret
// calendar days and minute-of-day rules; all stored instants are absolute.
type Business struct {
	ID                 string
	Name               string
	TimeZone           string
	GranularityMinutes int // slot step; 0 means the engine default
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Price struct {
	Currency string
	Amount   decimal.Decimal
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	Price           *Price
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Staff struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Client struct {
	ID        string
	Name      string
	Phone     *string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityRule is a recurring weekly open-hours window for one staff
// member. At most one rule exists per (staff, day of week); setting a new
// rule replaces the prior one. Minutes are relative to the business's
// calendar day: 0 <= StartMinute < EndMinute <= 1440.
type AvailabilityRule struct {
	StaffID     string
	DayOfWeek   int // 0 = Sunday .. 6 = Saturday
	StartMinute int
	EndMinute   int
	UpdatedAt   time.Time
}

// Appointment is immutable in time span after creation; only Status may
// change. StaffID empty means the business-wide default resource.
type Appointment struct {
	ID         string
	BusinessID string
	ServiceID  string
	StaffID    string
	ClientID   string
	StartTime  time.Time
	EndTime    time.Time
	Status     AppointmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Interval is a half-open [Start, End) span of occupied time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// PublicBookingRequest is the unauthenticated booking payload. The client
// record is upserted from the identity tuple on admission.
type PublicBookingRequest struct {
	ServiceID string
	StartTime time.Time
	Name      string
	Phone     *string
	Email     *string
}

type EventLog struct {
	ID            int64
	EventType     string
	BusinessID    string
	AppointmentID *string
	Payload       []byte
	CreatedAt     time.Time
}
