package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/booking-engine/internal/auth"
	"github.com/caffeinepub/booking-engine/internal/booking"
)

const adminPrincipal = "root"

type apiTest struct {
	router http.Handler
}

func newAPITest(t *testing.T) *apiTest {
	t.Helper()

	engine := booking.NewEngine(booking.NewMemoryRepository(), booking.NewKeyLocker(), 15)
	registry := auth.NewRegistry([]string{adminPrincipal, "other-admin"})
	handler := NewHandler(engine, auth.NewGate(registry), registry)

	return &apiTest{router: NewRouter(RouterConfig{
		Handler: handler,
		Env:     "test",
		Version: "test",
	})}
}

func (ts *apiTest) do(t *testing.T, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != "" {
		req.Header.Set(PrincipalHeader, principal)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// nextMonday returns a Monday midnight UTC safely in the future, so slot
// and booking instants are never rejected as past.
func nextMonday() time.Time {
	d := time.Now().UTC().AddDate(0, 0, 2)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// setupBusiness drives the admin flow: business, staff, service, Monday
// hours 09:00-17:00. Returns business and service ids.
func (ts *apiTest) setupBusiness(t *testing.T) (string, string) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/businesses", adminPrincipal, CreateBusinessRequest{
		Name: "Test Salon", TimeZone: "UTC",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	biz := decodeBody[BusinessResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/businesses/"+biz.ID+"/staff/", adminPrincipal, StaffPayload{Name: "Alex"})
	require.Equal(t, http.StatusCreated, rec.Code)
	staff := decodeBody[StaffPayload](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/businesses/"+biz.ID+"/services/", adminPrincipal, ServicePayload{
		Name: "Haircut", DurationMinutes: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	svc := decodeBody[ServicePayload](t, rec)

	rec = ts.do(t, http.MethodPut,
		fmt.Sprintf("/api/businesses/%s/staff/%s/availability", biz.ID, staff.ID),
		adminPrincipal,
		AvailabilityPayload{DayOfWeek: 1, StartMinute: 540, EndMinute: 1020})
	require.Equal(t, http.StatusNoContent, rec.Code)

	return biz.ID, svc.ID
}

func TestCreateBusiness_RequiresAdmin(t *testing.T) {
	ts := newAPITest(t)

	rec := ts.do(t, http.MethodPost, "/api/businesses", "", CreateBusinessRequest{
		Name: "Guest Shop", TimeZone: "UTC",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/businesses", adminPrincipal, CreateBusinessRequest{
		Name: "Admin Shop", TimeZone: "UTC",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateBusiness_InvalidTimeZone(t *testing.T) {
	ts := newAPITest(t)

	rec := ts.do(t, http.MethodPost, "/api/businesses", adminPrincipal, CreateBusinessRequest{
		Name: "Bad", TimeZone: "Mars/Olympus_Mons",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnership_OtherAdminCannotMutate(t *testing.T) {
	ts := newAPITest(t)
	bizID, _ := ts.setupBusiness(t)

	rec := ts.do(t, http.MethodPost, "/api/businesses/"+bizID+"/services/", "other-admin", ServicePayload{
		Name: "Intrusion", DurationMinutes: 15,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/clients/", "other-admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBusiness_Public(t *testing.T) {
	ts := newAPITest(t)
	bizID, _ := ts.setupBusiness(t)

	rec := ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	biz := decodeBody[BusinessResponse](t, rec)
	assert.Equal(t, "Test Salon", biz.Name)

	rec = ts.do(t, http.MethodGet, "/api/businesses/no-such/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlots_PublicRead(t *testing.T) {
	ts := newAPITest(t)
	bizID, svcID := ts.setupBusiness(t)
	monday := nextMonday()

	rec := ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/businesses/%s/slots?service_id=%s&date=%d", bizID, svcID, monday.UnixNano()),
		"", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	slots := decodeBody[SlotsResponse](t, rec)
	require.Len(t, slots.Slots, 31)
	assert.Equal(t, monday.Add(9*time.Hour).UnixNano(), slots.Slots[0])
	assert.Equal(t, monday.Add(16*time.Hour+30*time.Minute).UnixNano(), slots.Slots[30])
}

func TestSlots_BadQuery(t *testing.T) {
	ts := newAPITest(t)
	bizID, svcID := ts.setupBusiness(t)

	rec := ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/slots?date=123", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/businesses/%s/slots?service_id=%s&date=tomorrow", bizID, svcID), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookPublic_EndToEnd(t *testing.T) {
	ts := newAPITest(t)
	bizID, svcID := ts.setupBusiness(t)
	monday := nextMonday()
	tenAM := monday.Add(10 * time.Hour).UnixNano()

	email := "pat@example.com"
	rec := ts.do(t, http.MethodPost, "/api/businesses/"+bizID+"/bookings", "", BookPublicRequest{
		ServiceID: svcID, StartTime: tenAM, Name: "Pat", Email: &email,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	booked := decodeBody[BookPublicResponse](t, rec)
	require.NotEmpty(t, booked.AppointmentID)

	// Same slot again conflicts.
	rec = ts.do(t, http.MethodPost, "/api/businesses/"+bizID+"/bookings", "", BookPublicRequest{
		ServiceID: svcID, StartTime: tenAM, Name: "Sam",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The slot listing no longer offers 10:00.
	rec = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/businesses/%s/slots?service_id=%s&date=%d", bizID, svcID, monday.UnixNano()),
		"", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decodeBody[SlotsResponse](t, rec)
	assert.NotContains(t, slots.Slots, tenAM)

	// The owner sees the appointment; guests do not.
	rec = ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/appointments/", adminPrincipal, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appts := decodeBody[[]AppointmentResponse](t, rec)
	require.Len(t, appts, 1)
	assert.Equal(t, booked.AppointmentID, appts[0].ID)
	assert.Equal(t, "scheduled", appts[0].Status)

	rec = ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/appointments/", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookPublic_NameRequired(t *testing.T) {
	ts := newAPITest(t)
	bizID, svcID := ts.setupBusiness(t)

	rec := ts.do(t, http.MethodPost, "/api/businesses/"+bizID+"/bookings", "", BookPublicRequest{
		ServiceID: svcID, StartTime: nextMonday().Add(10 * time.Hour).UnixNano(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAppointment_FreesSlot(t *testing.T) {
	ts := newAPITest(t)
	bizID, svcID := ts.setupBusiness(t)
	monday := nextMonday()
	tenAM := monday.Add(10 * time.Hour).UnixNano()

	rec := ts.do(t, http.MethodPost, "/api/businesses/"+bizID+"/bookings", "", BookPublicRequest{
		ServiceID: svcID, StartTime: tenAM, Name: "Pat",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	booked := decodeBody[BookPublicResponse](t, rec)

	cancelPath := fmt.Sprintf("/api/businesses/%s/appointments/%s/cancel", bizID, booked.AppointmentID)

	// Guests cannot cancel.
	rec = ts.do(t, http.MethodPost, cancelPath, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, cancelPath, adminPrincipal, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appt := decodeBody[AppointmentResponse](t, rec)
	assert.Equal(t, "canceled", appt.Status)

	// A second cancel is an invalid transition.
	rec = ts.do(t, http.MethodPost, cancelPath, adminPrincipal, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// And the interval is bookable again.
	rec = ts.do(t, http.MethodPost, "/api/businesses/"+bizID+"/bookings", "", BookPublicRequest{
		ServiceID: svcID, StartTime: tenAM, Name: "Sam",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAvailability_ReadBack(t *testing.T) {
	ts := newAPITest(t)
	bizID, _ := ts.setupBusiness(t)

	rec := ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/staff/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	staff := decodeBody[[]StaffPayload](t, rec)
	require.Len(t, staff, 1)

	rec = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/businesses/%s/staff/%s/availability", bizID, staff[0].ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rule := decodeBody[AvailabilityPayload](t, rec)
	assert.Equal(t, 1, rule.DayOfWeek)
	assert.Equal(t, 540, rule.StartMinute)
	assert.Equal(t, 1020, rule.EndMinute)

	rec = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/businesses/%s/staff/%s/availability/all", bizID, staff[0].ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decodeBody[[]AvailabilityPayload](t, rec)
	assert.Len(t, rules, 1)
}

func TestSetAvailability_InvalidWindow(t *testing.T) {
	ts := newAPITest(t)
	bizID, _ := ts.setupBusiness(t)

	rec := ts.do(t, http.MethodGet, "/api/businesses/"+bizID+"/staff/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	staff := decodeBody[[]StaffPayload](t, rec)
	require.Len(t, staff, 1)

	rec = ts.do(t, http.MethodPut,
		fmt.Sprintf("/api/businesses/%s/staff/%s/availability", bizID, staff[0].ID),
		adminPrincipal,
		AvailabilityPayload{DayOfWeek: 1, StartMinute: 900, EndMinute: 600})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileAndRoles(t *testing.T) {
	ts := newAPITest(t)

	// Role reflects the registry.
	rec := ts.do(t, http.MethodGet, "/api/users/me/role", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest", decodeBody[RoleResponse](t, rec).Role)

	rec = ts.do(t, http.MethodGet, "/api/users/me/role", adminPrincipal, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decodeBody[RoleResponse](t, rec).Role)

	// Profiles need a principal.
	rec = ts.do(t, http.MethodPost, "/api/users/me/profile", "", ProfilePayload{Name: "Ghost"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/users/me/profile", "alex", ProfilePayload{Name: "Alex"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/me/profile", "alex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alex", decodeBody[ProfilePayload](t, rec).Name)

	rec = ts.do(t, http.MethodGet, "/api/users/me/profile", "nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Only admins hand out roles.
	rec = ts.do(t, http.MethodPost, "/api/admin/roles", "alex", AssignRoleRequest{Principal: "alex", Role: "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/roles", adminPrincipal, AssignRoleRequest{Principal: "alex", Role: "user"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users/me/role", "alex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user", decodeBody[RoleResponse](t, rec).Role)

	rec = ts.do(t, http.MethodPost, "/api/admin/roles", adminPrincipal, AssignRoleRequest{Principal: "alex", Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth_MemoryDeployment(t *testing.T) {
	ts := newAPITest(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
