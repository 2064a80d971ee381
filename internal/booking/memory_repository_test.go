package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func seedRepoBusiness(t *testing.T, repo *MemoryRepository) {
	t.Helper()
	require.NoError(t, repo.CreateBusiness(context.Background(), Business{ID: "biz", Name: "B", TimeZone: "UTC"}))
}

func TestMemoryRepository_UnknownBusiness(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.GetBusiness(ctx, "nope")
	assert.ErrorIs(t, err, ErrBusinessNotFound)
	err = repo.CreateService(ctx, "nope", Service{ID: "s"})
	assert.ErrorIs(t, err, ErrBusinessNotFound)
	_, err = repo.Occupancy(ctx, "nope", "", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrBusinessNotFound)
}

func TestMemoryRepository_DuplicateIDs(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedRepoBusiness(t, repo)

	assert.ErrorIs(t, repo.CreateBusiness(ctx, Business{ID: "biz"}), ErrAlreadyExists)

	require.NoError(t, repo.CreateService(ctx, "biz", Service{ID: "s"}))
	assert.ErrorIs(t, repo.CreateService(ctx, "biz", Service{ID: "s"}), ErrAlreadyExists)

	appt := Appointment{ID: "a", BusinessID: "biz", Status: StatusScheduled}
	require.NoError(t, repo.CreateAppointment(ctx, appt))
	assert.ErrorIs(t, repo.CreateAppointment(ctx, appt), ErrAlreadyExists)
}

func TestMemoryRepository_ListsPreserveCreationOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedRepoBusiness(t, repo)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateStaff(ctx, "biz", Staff{ID: fmt.Sprintf("staff-%d", i)}))
	}

	staff, err := repo.ListStaff(ctx, "biz")
	require.NoError(t, err)
	require.Len(t, staff, 5)
	for i, s := range staff {
		assert.Equal(t, fmt.Sprintf("staff-%d", i), s.ID)
	}
}

func TestMemoryRepository_FindClientByContactPrecedence(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedRepoBusiness(t, repo)

	require.NoError(t, repo.CreateClient(ctx, "biz", Client{
		ID: "c-email", Name: "Pat", Email: strPtr("pat@example.com"),
	}))
	require.NoError(t, repo.CreateClient(ctx, "biz", Client{
		ID: "c-phone", Name: "Pat", Phone: strPtr("555-0100"),
	}))
	require.NoError(t, repo.CreateClient(ctx, "biz", Client{
		ID: "c-name", Name: "Sam",
	}))

	// Email match wins over a name match on a different record.
	c, err := repo.FindClientByContact(ctx, "biz", "Sam", nil, strPtr("pat@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "c-email", c.ID)

	// Phone is the next tier.
	c, err = repo.FindClientByContact(ctx, "biz", "Sam", strPtr("555-0100"), nil)
	require.NoError(t, err)
	assert.Equal(t, "c-phone", c.ID)

	// Name only.
	c, err = repo.FindClientByContact(ctx, "biz", "Sam", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "c-name", c.ID)

	_, err = repo.FindClientByContact(ctx, "biz", "Nobody", nil, nil)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestMemoryRepository_OccupancyFilters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedRepoBusiness(t, repo)

	day := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	mk := func(id, staffID string, startMin, endMin int, status AppointmentStatus) {
		require.NoError(t, repo.CreateAppointment(ctx, Appointment{
			ID: id, BusinessID: "biz", StaffID: staffID, Status: status,
			StartTime: day.Add(time.Duration(startMin) * time.Minute),
			EndTime:   day.Add(time.Duration(endMin) * time.Minute),
		}))
	}

	mk("scheduled", "s1", 600, 630, StatusScheduled)
	mk("canceled", "s1", 600, 630, StatusCanceled)
	mk("other-staff", "s2", 600, 630, StatusScheduled)
	mk("outside", "s1", 800, 830, StatusScheduled)

	busy, err := repo.Occupancy(ctx, "biz", "s1", day.Add(590*time.Minute), day.Add(640*time.Minute))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, day.Add(600*time.Minute), busy[0].Start)

	// A query window touching only the appointment edge returns nothing.
	busy, err = repo.Occupancy(ctx, "biz", "s1", day.Add(630*time.Minute), day.Add(660*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestMemoryRepository_UpdateAppointmentStatusIsCompareAndSwap(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedRepoBusiness(t, repo)

	require.NoError(t, repo.CreateAppointment(ctx, Appointment{
		ID: "a", BusinessID: "biz", Status: StatusScheduled,
	}))

	updated, err := repo.UpdateAppointmentStatus(ctx, "biz", "a", StatusScheduled, StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, updated.Status)

	// The expected-from status no longer matches.
	_, err = repo.UpdateAppointmentStatus(ctx, "biz", "a", StatusScheduled, StatusCompleted)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestMemoryRepository_ClientCopiesAreIsolated(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedRepoBusiness(t, repo)

	require.NoError(t, repo.CreateClient(ctx, "biz", Client{
		ID: "c", Name: "Pat", Email: strPtr("pat@example.com"),
	}))

	c, err := repo.GetClient(ctx, "biz", "c")
	require.NoError(t, err)
	*c.Email = "mutated@example.com"

	again, err := repo.GetClient(ctx, "biz", "c")
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", *again.Email)
}

func TestKeyLocker_SerializesSameKey(t *testing.T) {
	locker := NewKeyLocker()
	ctx := context.Background()

	var counter int
	var inCritical int

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			err := locker.WithLock(ctx, LockKey("biz", "staff"), func(context.Context) error {
				inCritical++
				assert.Equal(t, 1, inCritical)
				counter++
				inCritical--
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, 20, counter)
}
