package booking

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for single-node deployments
// and tests. All methods copy data on the way out.
type MemoryRepository struct {
	mu          sync.RWMutex
	businesses  map[string]*memBusiness
	events      []EventLog
	nextEventID int64
}

type ruleKey struct {
	StaffID   string
	DayOfWeek int
}

type memBusiness struct {
	profile      Business
	services     map[string]Service
	serviceOrder []string
	staff        map[string]Staff
	staffOrder   []string
	clients      map[string]Client
	clientOrder  []string
	rules        map[ruleKey]AvailabilityRule
	appointments []Appointment
	apptIndex    map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{businesses: make(map[string]*memBusiness)}
}

func (m *MemoryRepository) business(id string) (*memBusiness, error) {
	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return b, nil
}

func (m *MemoryRepository) CreateBusiness(_ context.Context, b Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.businesses[b.ID]; ok {
		return ErrAlreadyExists
	}
	m.businesses[b.ID] = &memBusiness{
		profile:   b,
		services:  make(map[string]Service),
		staff:     make(map[string]Staff),
		clients:   make(map[string]Client),
		rules:     make(map[ruleKey]AvailabilityRule),
		apptIndex: make(map[string]int),
	}
	return nil
}

func (m *MemoryRepository) GetBusiness(_ context.Context, id string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(id)
	if err != nil {
		return nil, err
	}
	profile := b.profile
	return &profile, nil
}

func (m *MemoryRepository) CreateService(_ context.Context, businessID string, s Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.business(businessID)
	if err != nil {
		return err
	}
	if _, ok := b.services[s.ID]; ok {
		return ErrAlreadyExists
	}
	b.services[s.ID] = s
	b.serviceOrder = append(b.serviceOrder, s.ID)
	return nil
}

func (m *MemoryRepository) GetService(_ context.Context, businessID, id string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	s, ok := b.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) ListServices(_ context.Context, businessID string) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	out := make([]Service, 0, len(b.serviceOrder))
	for _, id := range b.serviceOrder {
		out = append(out, b.services[id])
	}
	return out, nil
}

func (m *MemoryRepository) CreateStaff(_ context.Context, businessID string, s Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.business(businessID)
	if err != nil {
		return err
	}
	if _, ok := b.staff[s.ID]; ok {
		return ErrAlreadyExists
	}
	b.staff[s.ID] = s
	b.staffOrder = append(b.staffOrder, s.ID)
	return nil
}

func (m *MemoryRepository) GetStaff(_ context.Context, businessID, id string) (*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	s, ok := b.staff[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) ListStaff(_ context.Context, businessID string) ([]Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	out := make([]Staff, 0, len(b.staffOrder))
	for _, id := range b.staffOrder {
		out = append(out, b.staff[id])
	}
	return out, nil
}

func (m *MemoryRepository) CreateClient(_ context.Context, businessID string, c Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.business(businessID)
	if err != nil {
		return err
	}
	if _, ok := b.clients[c.ID]; ok {
		return ErrAlreadyExists
	}
	b.clients[c.ID] = copyClient(c)
	b.clientOrder = append(b.clientOrder, c.ID)
	return nil
}

func (m *MemoryRepository) GetClient(_ context.Context, businessID, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	c, ok := b.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	out := copyClient(c)
	return &out, nil
}

func (m *MemoryRepository) ListClients(_ context.Context, businessID string) ([]Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	out := make([]Client, 0, len(b.clientOrder))
	for _, id := range b.clientOrder {
		out = append(out, copyClient(b.clients[id]))
	}
	return out, nil
}

func (m *MemoryRepository) FindClientByContact(_ context.Context, businessID, name string, phone, email *string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	if email != nil {
		for _, id := range b.clientOrder {
			c := b.clients[id]
			if c.Email != nil && *c.Email == *email {
				out := copyClient(c)
				return &out, nil
			}
		}
	}
	if phone != nil {
		for _, id := range b.clientOrder {
			c := b.clients[id]
			if c.Phone != nil && *c.Phone == *phone {
				out := copyClient(c)
				return &out, nil
			}
		}
	}
	for _, id := range b.clientOrder {
		c := b.clients[id]
		if c.Name == name {
			out := copyClient(c)
			return &out, nil
		}
	}
	return nil, ErrClientNotFound
}

func (m *MemoryRepository) SetAvailability(_ context.Context, businessID string, rule AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.business(businessID)
	if err != nil {
		return err
	}
	// Replace-on-write: one rule per (staff, day).
	b.rules[ruleKey{StaffID: rule.StaffID, DayOfWeek: rule.DayOfWeek}] = rule
	return nil
}

func (m *MemoryRepository) LatestAvailability(_ context.Context, businessID, staffID string) (*AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	var latest *AvailabilityRule
	for k, r := range b.rules {
		if k.StaffID != staffID {
			continue
		}
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			rr := r
			latest = &rr
		}
	}
	if latest == nil {
		return nil, ErrRuleNotFound
	}
	return latest, nil
}

func (m *MemoryRepository) AvailabilityForDay(_ context.Context, businessID, staffID string, dayOfWeek int) (*AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	r, ok := b.rules[ruleKey{StaffID: staffID, DayOfWeek: dayOfWeek}]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &r, nil
}

func (m *MemoryRepository) ListAvailability(_ context.Context, businessID, staffID string) ([]AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	out := make([]AvailabilityRule, 0, 7)
	for day := 0; day < 7; day++ {
		if r, ok := b.rules[ruleKey{StaffID: staffID, DayOfWeek: day}]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, a Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.business(a.BusinessID)
	if err != nil {
		return err
	}
	if _, ok := b.apptIndex[a.ID]; ok {
		return ErrAlreadyExists
	}
	b.apptIndex[a.ID] = len(b.appointments)
	b.appointments = append(b.appointments, a)
	return nil
}

func (m *MemoryRepository) GetAppointment(_ context.Context, businessID, id string) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	i, ok := b.apptIndex[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a := b.appointments[i]
	return &a, nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, businessID string) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	out := make([]Appointment, len(b.appointments))
	copy(out, b.appointments)
	return out, nil
}

func (m *MemoryRepository) Occupancy(_ context.Context, businessID, staffID string, from, to time.Time) ([]Interval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	var out []Interval
	for _, a := range b.appointments {
		if a.Status != StatusScheduled || a.StaffID != staffID {
			continue
		}
		if Overlaps(a.StartTime, a.EndTime, from, to) {
			out = append(out, Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	return out, nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, businessID, id string, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.business(businessID)
	if err != nil {
		return nil, err
	}
	i, ok := b.apptIndex[id]
	if !ok || b.appointments[i].Status != from {
		return nil, ErrAppointmentNotFound
	}
	b.appointments[i].Status = to
	b.appointments[i].UpdatedAt = time.Now()
	a := b.appointments[i]
	return &a, nil
}

func (m *MemoryRepository) FindFinishedScheduled(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, b := range m.businesses {
		for _, a := range b.appointments {
			if a.Status == StatusScheduled && a.EndTime.Before(now) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the event log, oldest first.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func copyClient(c Client) Client {
	out := c
	if c.Phone != nil {
		p := *c.Phone
		out.Phone = &p
	}
	if c.Email != nil {
		e := *c.Email
		out.Email = &e
	}
	return out
}
