package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgRepository persists the engine's state in Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Helpers

func scanBusiness(row pgx.Row) (*Business, error) {
	var b Business

	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.TimeZone,
		&b.GranularityMinutes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	var currency, amount *string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DurationMinutes,
		&currency,
		&amount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	if currency != nil && amount != nil {
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("parse price amount %q: %w", *amount, err)
		}
		s.Price = &Price{Currency: *currency, Amount: value}
	}
	return &s, nil
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var phone, email *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&phone,
		&email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	c.Phone = phone
	c.Email = email
	return &c, nil
}

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule

	err := row.Scan(
		&r.StaffID,
		&r.DayOfWeek,
		&r.StartMinute,
		&r.EndMinute,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var staffID *string

	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.ServiceID,
		&staffID,
		&a.ClientID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if staffID != nil {
		a.StaffID = *staffID
	}
	return &a, nil
}

// nullableStr maps the empty string to NULL for the default staff resource.
func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Interface methods

func (r *PgRepository) CreateBusiness(ctx context.Context, b Business) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO businesses (id, name, time_zone, granularity_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Name, b.TimeZone, b.GranularityMinutes, b.CreatedAt, b.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *PgRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, time_zone, granularity_minutes, created_at, updated_at
		FROM businesses
		WHERE id = $1
	`, id)
	return scanBusiness(row)
}

func (r *PgRepository) CreateService(ctx context.Context, businessID string, s Service) error {
	if err := r.requireBusiness(ctx, businessID); err != nil {
		return err
	}

	var currency, amount *string
	if s.Price != nil {
		currency = &s.Price.Currency
		v := s.Price.Amount.String()
		amount = &v
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (business_id, id, name, duration_minutes, price_currency, price_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, businessID, s.ID, s.Name, s.DurationMinutes, currency, amount, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *PgRepository) GetService(ctx context.Context, businessID, id string) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price_currency, price_amount, created_at, updated_at
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	return scanService(row)
}

func (r *PgRepository) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_minutes, price_currency, price_amount, created_at, updated_at
		FROM services
		WHERE business_id = $1
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateStaff(ctx context.Context, businessID string, s Staff) error {
	if err := r.requireBusiness(ctx, businessID); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff (business_id, id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, businessID, s.ID, s.Name, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *PgRepository) GetStaff(ctx context.Context, businessID, id string) (*Staff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM staff
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	return scanStaff(row)
}

func (r *PgRepository) ListStaff(ctx context.Context, businessID string) ([]Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM staff
		WHERE business_id = $1
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateClient(ctx context.Context, businessID string, c Client) error {
	if err := r.requireBusiness(ctx, businessID); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO clients (business_id, id, name, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, businessID, c.ID, c.Name, c.Phone, c.Email, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *PgRepository) GetClient(ctx context.Context, businessID, id string) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM clients
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	return scanClient(row)
}

func (r *PgRepository) ListClients(ctx context.Context, businessID string) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM clients
		WHERE business_id = $1
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *PgRepository) FindClientByContact(ctx context.Context, businessID, name string, phone, email *string) (*Client, error) {
	if email != nil {
		c, err := scanClient(r.pool.QueryRow(ctx, `
			SELECT id, name, phone, email, created_at, updated_at
			FROM clients
			WHERE business_id = $1 AND email = $2
			ORDER BY created_at
			LIMIT 1
		`, businessID, *email))
		if err == nil || !errors.Is(err, ErrClientNotFound) {
			return c, err
		}
	}
	if phone != nil {
		c, err := scanClient(r.pool.QueryRow(ctx, `
			SELECT id, name, phone, email, created_at, updated_at
			FROM clients
			WHERE business_id = $1 AND phone = $2
			ORDER BY created_at
			LIMIT 1
		`, businessID, *phone))
		if err == nil || !errors.Is(err, ErrClientNotFound) {
			return c, err
		}
	}
	return scanClient(r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM clients
		WHERE business_id = $1 AND name = $2
		ORDER BY created_at
		LIMIT 1
	`, businessID, name))
}

func (r *PgRepository) SetAvailability(ctx context.Context, businessID string, rule AvailabilityRule) error {
	if err := r.requireBusiness(ctx, businessID); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules (business_id, staff_id, day_of_week, start_minute, end_minute, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, staff_id, day_of_week)
		DO UPDATE SET start_minute = EXCLUDED.start_minute,
		              end_minute   = EXCLUDED.end_minute,
		              updated_at   = EXCLUDED.updated_at
	`, businessID, rule.StaffID, rule.DayOfWeek, rule.StartMinute, rule.EndMinute, rule.UpdatedAt)
	return err
}

func (r *PgRepository) LatestAvailability(ctx context.Context, businessID, staffID string) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT staff_id, day_of_week, start_minute, end_minute, updated_at
		FROM availability_rules
		WHERE business_id = $1 AND staff_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, businessID, staffID)
	return scanRule(row)
}

func (r *PgRepository) AvailabilityForDay(ctx context.Context, businessID, staffID string, dayOfWeek int) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT staff_id, day_of_week, start_minute, end_minute, updated_at
		FROM availability_rules
		WHERE business_id = $1 AND staff_id = $2 AND day_of_week = $3
	`, businessID, staffID, dayOfWeek)
	return scanRule(row)
}

func (r *PgRepository) ListAvailability(ctx context.Context, businessID, staffID string) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT staff_id, day_of_week, start_minute, end_minute, updated_at
		FROM availability_rules
		WHERE business_id = $1 AND staff_id = $2
		ORDER BY day_of_week
	`, businessID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) error {
	if err := r.requireBusiness(ctx, a.BusinessID); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (business_id, id, service_id, staff_id, client_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.BusinessID, a.ID, a.ServiceID, nullableStr(a.StaffID), a.ClientID, a.StartTime, a.EndTime, a.Status, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *PgRepository) GetAppointment(ctx context.Context, businessID, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, business_id, service_id, staff_id, client_id, start_time, end_time, status, created_at, updated_at
		FROM appointments
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, businessID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, service_id, staff_id, client_id, start_time, end_time, status, created_at, updated_at
		FROM appointments
		WHERE business_id = $1
		ORDER BY seq
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) Occupancy(ctx context.Context, businessID, staffID string, from, to time.Time) ([]Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE business_id = $1
		  AND staff_id IS NOT DISTINCT FROM $2
		  AND status = 'scheduled'
		  AND start_time < $4
		  AND end_time > $3
		ORDER BY start_time
	`, businessID, nullableStr(staffID), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, businessID, id string, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE business_id = $1
		  AND id = $2
		  AND status = $4
		RETURNING id, business_id, service_id, staff_id, client_id, start_time, end_time, status, created_at, updated_at
	`, businessID, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) FindFinishedScheduled(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, service_id, staff_id, client_id, start_time, end_time, status, created_at, updated_at
		FROM appointments
		WHERE status = 'scheduled'
		  AND end_time < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, business_id, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.BusinessID, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func (r *PgRepository) requireBusiness(ctx context.Context, businessID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM businesses WHERE id = $1)`, businessID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBusinessNotFound
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
