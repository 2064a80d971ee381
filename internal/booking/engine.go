package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventAppointmentStatus  = "APPOINTMENT_STATUS_CHANGED"
	EventAvailabilityChange = "AVAILABILITY_SET"
)

var (
	ErrInvalidRange      = errors.New("invalid availability range")
	ErrInvalidTimeZone   = errors.New("invalid time zone")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Engine is the availability and booking engine. Booking admission
// serializes its read-check-then-write section through the locker, keyed
// per (business, staff), so concurrent requests for the same slot cannot
// both commit.
type Engine struct {
	repo        Repository
	locker      Locker
	granularity int

	// now is swappable for tests.
	now func() time.Time
}

func NewEngine(repo Repository, locker Locker, granularityMinutes int) *Engine {
	if granularityMinutes <= 0 {
		granularityMinutes = DefaultGranularityMinutes
	}
	return &Engine{
		repo:        repo,
		locker:      locker,
		granularity: granularityMinutes,
		now:         time.Now,
	}
}

// CreateBusiness registers a tenant. The time zone must be a valid IANA
// label; it determines how minute-of-day rules map onto absolute instants.
func (e *Engine) CreateBusiness(ctx context.Context, id, name, timeZone string, granularityMinutes int) (*Business, error) {
	if _, err := time.LoadLocation(timeZone); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeZone, timeZone)
	}
	if granularityMinutes < 0 {
		return nil, ErrInvalidRange
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now()
	b := Business{
		ID:                 id,
		Name:               name,
		TimeZone:           timeZone,
		GranularityMinutes: granularityMinutes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.repo.CreateBusiness(ctx, b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (e *Engine) GetBusiness(ctx context.Context, id string) (*Business, error) {
	return e.repo.GetBusiness(ctx, id)
}

func (e *Engine) AddService(ctx context.Context, businessID string, s Service) (*Service, error) {
	if s.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: service duration must be positive", ErrInvalidRange)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := e.now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if err := e.repo.CreateService(ctx, businessID, s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (e *Engine) GetService(ctx context.Context, businessID, id string) (*Service, error) {
	return e.repo.GetService(ctx, businessID, id)
}

func (e *Engine) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	return e.repo.ListServices(ctx, businessID)
}

func (e *Engine) AddStaff(ctx context.Context, businessID string, s Staff) (*Staff, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := e.now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if err := e.repo.CreateStaff(ctx, businessID, s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (e *Engine) GetStaff(ctx context.Context, businessID, id string) (*Staff, error) {
	return e.repo.GetStaff(ctx, businessID, id)
}

func (e *Engine) ListStaff(ctx context.Context, businessID string) ([]Staff, error) {
	return e.repo.ListStaff(ctx, businessID)
}

func (e *Engine) AddClient(ctx context.Context, businessID string, c Client) (*Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := e.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := e.repo.CreateClient(ctx, businessID, c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (e *Engine) GetClient(ctx context.Context, businessID, id string) (*Client, error) {
	return e.repo.GetClient(ctx, businessID, id)
}

func (e *Engine) ListClients(ctx context.Context, businessID string) ([]Client, error) {
	return e.repo.ListClients(ctx, businessID)
}

// SetAvailability validates and stores the weekly rule for one staff member
// and day, replacing any prior rule for that pair. Idempotent.
func (e *Engine) SetAvailability(ctx context.Context, businessID string, rule AvailabilityRule) error {
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return fmt.Errorf("%w: day of week %d", ErrInvalidRange, rule.DayOfWeek)
	}
	if rule.StartMinute < 0 || rule.StartMinute >= rule.EndMinute || rule.EndMinute > minutesPerDay {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, rule.StartMinute, rule.EndMinute)
	}
	if _, err := e.repo.GetBusiness(ctx, businessID); err != nil {
		return err
	}
	if rule.StaffID != "" {
		if _, err := e.repo.GetStaff(ctx, businessID, rule.StaffID); err != nil {
			return err
		}
	}
	rule.UpdatedAt = e.now()
	if err := e.repo.SetAvailability(ctx, businessID, rule); err != nil {
		return err
	}
	e.logEvent(ctx, businessID, nil, EventAvailabilityChange, map[string]any{
		"staff_id":     rule.StaffID,
		"day_of_week":  rule.DayOfWeek,
		"start_minute": rule.StartMinute,
		"end_minute":   rule.EndMinute,
	})
	return nil
}

// GetAvailability returns the most recently set rule for the staff member,
// preserving the single-rule shape of the original wire contract. Returns
// ErrRuleNotFound when the staff member has no rules at all.
func (e *Engine) GetAvailability(ctx context.Context, businessID, staffID string) (*AvailabilityRule, error) {
	if _, err := e.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return e.repo.LatestAvailability(ctx, businessID, staffID)
}

// ListAvailability returns all per-day rules for the staff member.
func (e *Engine) ListAvailability(ctx context.Context, businessID, staffID string) ([]AvailabilityRule, error) {
	if _, err := e.repo.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return e.repo.ListAvailability(ctx, businessID, staffID)
}

// AvailableSlots computes the bookable start instants for a service on the
// calendar date containing date, in ascending order. A day with no rule is
// fully closed. Past starts are never returned.
func (e *Engine) AvailableSlots(ctx context.Context, businessID, serviceID string, date time.Time) ([]time.Time, error) {
	b, err := e.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	svc, err := e.repo.GetService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	loc, err := e.location(b)
	if err != nil {
		return nil, err
	}
	staffID, err := e.resolveStaff(ctx, businessID, "")
	if err != nil {
		return nil, err
	}

	day := StartOfDay(date, loc)
	rule, err := e.repo.AvailabilityForDay(ctx, businessID, staffID, DayOfWeek(day, loc))
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return nil, nil
		}
		return nil, err
	}

	dayEnd := day.AddDate(0, 0, 1)
	busy, err := e.repo.Occupancy(ctx, businessID, staffID, day, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load occupancy: %w", err)
	}

	step := e.granularityFor(b)
	return candidateSlots(*rule, day, loc, svc.DurationMinutes, step, busy, e.now()), nil
}

// BookPublic admits an unauthenticated booking request. The slot is
// re-validated inside the per-staff critical section, the client record is
// upserted from the identity tuple, and the appointment is committed with
// status scheduled. Either everything is committed or nothing is.
func (e *Engine) BookPublic(ctx context.Context, businessID string, req PublicBookingRequest) (string, error) {
	b, err := e.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return "", err
	}
	svc, err := e.repo.GetService(ctx, businessID, req.ServiceID)
	if err != nil {
		return "", err
	}
	staffID, err := e.resolveStaff(ctx, businessID, "")
	if err != nil {
		return "", err
	}

	start := req.StartTime
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)

	var appointmentID string
	err = e.locker.WithLock(ctx, LockKey(businessID, staffID), func(lockCtx context.Context) error {
		if err := e.checkSlot(lockCtx, b, svc, staffID, start, end); err != nil {
			return err
		}

		clientID, err := e.upsertClient(lockCtx, businessID, req)
		if err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}

		now := e.now()
		appt := Appointment{
			ID:         uuid.NewString(),
			BusinessID: businessID,
			ServiceID:  svc.ID,
			StaffID:    staffID,
			ClientID:   clientID,
			StartTime:  start,
			EndTime:    end,
			Status:     StatusScheduled,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.repo.CreateAppointment(lockCtx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		appointmentID = appt.ID

		e.logEvent(lockCtx, businessID, &appt.ID, EventAppointmentBooked, map[string]any{
			"service_id": svc.ID,
			"staff_id":   staffID,
			"client_id":  clientID,
			"start_time": start.UnixNano(),
			"end_time":   end.UnixNano(),
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return appointmentID, nil
}

// CreateAppointment is the privileged direct-create path. It bypasses the
// client upsert (the client must already exist) but not slot validation.
func (e *Engine) CreateAppointment(ctx context.Context, businessID string, a Appointment) (*Appointment, error) {
	b, err := e.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	svc, err := e.repo.GetService(ctx, businessID, a.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := e.repo.GetClient(ctx, businessID, a.ClientID); err != nil {
		return nil, err
	}
	staffID, err := e.resolveStaff(ctx, businessID, a.StaffID)
	if err != nil {
		return nil, err
	}

	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: appointments are created as %s", ErrInvalidTransition, StatusScheduled)
	}

	end := a.StartTime.Add(time.Duration(svc.DurationMinutes) * time.Minute)
	if !a.EndTime.IsZero() && !a.EndTime.Equal(end) {
		return nil, fmt.Errorf("%w: end time must equal start plus service duration", ErrInvalidRange)
	}
	a.EndTime = end
	a.BusinessID = businessID
	a.StaffID = staffID
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := e.now()
	a.CreatedAt = now
	a.UpdatedAt = now

	err = e.locker.WithLock(ctx, LockKey(businessID, staffID), func(lockCtx context.Context) error {
		if err := e.checkSlot(lockCtx, b, svc, staffID, a.StartTime, a.EndTime); err != nil {
			return err
		}
		if err := e.repo.CreateAppointment(lockCtx, a); err != nil {
			return err
		}
		e.logEvent(lockCtx, businessID, &a.ID, EventAppointmentBooked, map[string]any{
			"service_id": svc.ID,
			"staff_id":   staffID,
			"client_id":  a.ClientID,
			"start_time": a.StartTime.UnixNano(),
			"end_time":   a.EndTime.UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (e *Engine) GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	return e.repo.GetAppointment(ctx, businessID, id)
}

func (e *Engine) ListAppointments(ctx context.Context, businessID string) ([]Appointment, error) {
	return e.repo.ListAppointments(ctx, businessID)
}

// CancelAppointment frees the appointment's interval for re-booking while
// preserving history.
func (e *Engine) CancelAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	return e.transition(ctx, businessID, id, StatusCanceled)
}

func (e *Engine) CompleteAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	return e.transition(ctx, businessID, id, StatusCompleted)
}

func (e *Engine) MarkNoShow(ctx context.Context, businessID, id string) (*Appointment, error) {
	return e.transition(ctx, businessID, id, StatusNoShow)
}

// transition moves a scheduled appointment to a terminal status under the
// same per-staff serialization as booking.
func (e *Engine) transition(ctx context.Context, businessID, id string, to AppointmentStatus) (*Appointment, error) {
	appt, err := e.repo.GetAppointment(ctx, businessID, id)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = e.locker.WithLock(ctx, LockKey(businessID, appt.StaffID), func(lockCtx context.Context) error {
		current, err := e.repo.GetAppointment(lockCtx, businessID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusScheduled {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		updated, err = e.repo.UpdateAppointmentStatus(lockCtx, businessID, id, StatusScheduled, to)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		e.logEvent(lockCtx, businessID, &id, EventAppointmentStatus, map[string]any{
			"from": string(StatusScheduled),
			"to":   string(to),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CompleteFinished marks scheduled appointments whose end time has passed as
// completed. Intended to be called periodically by the status worker.
func (e *Engine) CompleteFinished(ctx context.Context) error {
	finished, err := e.repo.FindFinishedScheduled(ctx, e.now())
	if err != nil {
		return fmt.Errorf("find finished appointments: %w", err)
	}

	for _, appt := range finished {
		_, err := e.repo.UpdateAppointmentStatus(ctx, appt.BusinessID, appt.ID, StatusScheduled, StatusCompleted)
		if err != nil {
			// A lost compare-and-swap means another node transitioned the
			// appointment first; only real failures are worth a log line.
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to complete appointment %s: %v", appt.ID, err)
			}
			continue
		}
		e.logEvent(ctx, appt.BusinessID, &appt.ID, EventAppointmentStatus, map[string]any{
			"from":   string(StatusScheduled),
			"to":     string(StatusCompleted),
			"reason": "worker",
		})
	}
	return nil
}

// checkSlot re-derives slot validity under the lock: the start must be a
// whole minute on a step boundary inside the day's availability window, not
// in the past, and must not overlap any scheduled occupancy. This re-check
// is what prevents two callers from committing the same interval.
func (e *Engine) checkSlot(ctx context.Context, b *Business, svc *Service, staffID string, start, end time.Time) error {
	if !wholeMinute(start) {
		return fmt.Errorf("%w: start is not on a minute boundary", ErrSlotUnavailable)
	}
	if start.Before(e.now()) {
		return fmt.Errorf("%w: start is in the past", ErrSlotUnavailable)
	}
	loc, err := e.location(b)
	if err != nil {
		return err
	}

	rule, err := e.repo.AvailabilityForDay(ctx, b.ID, staffID, DayOfWeek(start, loc))
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return fmt.Errorf("%w: outside working hours", ErrSlotUnavailable)
		}
		return fmt.Errorf("load availability: %w", err)
	}
	if !fitsRule(*rule, MinuteOfDay(start, loc), svc.DurationMinutes, e.granularityFor(b)) {
		return fmt.Errorf("%w: outside working hours", ErrSlotUnavailable)
	}

	busy, err := e.repo.Occupancy(ctx, b.ID, staffID, start, end)
	if err != nil {
		return fmt.Errorf("load occupancy: %w", err)
	}
	if len(busy) > 0 {
		return fmt.Errorf("%w: interval already booked", ErrSlotUnavailable)
	}
	return nil
}

// upsertClient reuses an existing client matching the supplied identity
// tuple, or creates a new record.
func (e *Engine) upsertClient(ctx context.Context, businessID string, req PublicBookingRequest) (string, error) {
	existing, err := e.repo.FindClientByContact(ctx, businessID, req.Name, req.Phone, req.Email)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrClientNotFound) {
		return "", err
	}

	now := e.now()
	c := Client{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.CreateClient(ctx, businessID, c); err != nil {
		return "", err
	}
	return c.ID, nil
}

// resolveStaff picks the staff resource a booking applies to: the explicit
// staff when given, otherwise the business's first staff member, otherwise
// the business-wide default resource (empty id).
func (e *Engine) resolveStaff(ctx context.Context, businessID, explicit string) (string, error) {
	if explicit != "" {
		if _, err := e.repo.GetStaff(ctx, businessID, explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	staff, err := e.repo.ListStaff(ctx, businessID)
	if err != nil {
		return "", err
	}
	if len(staff) > 0 {
		return staff[0].ID, nil
	}
	return "", nil
}

func (e *Engine) location(b *Business) (*time.Location, error) {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeZone, b.TimeZone)
	}
	return loc, nil
}

func (e *Engine) granularityFor(b *Business) int {
	if b.GranularityMinutes > 0 {
		return b.GranularityMinutes
	}
	return e.granularity
}

func (e *Engine) logEvent(ctx context.Context, businessID string, appointmentID *string, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		BusinessID:    businessID,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     e.now(),
	}
	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for business %s: %v", eventType, businessID, err)
	}
}
