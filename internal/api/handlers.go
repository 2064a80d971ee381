package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/caffeinepub/booking-engine/internal/auth"
	"github.com/caffeinepub/booking-engine/internal/booking"
)

// PrincipalHeader carries the caller's opaque identity. Role resolution is
// the registry's concern; an absent header means guest.
const PrincipalHeader = "X-Principal"

type Handler struct {
	engine   *booking.Engine
	gate     *auth.Gate
	registry *auth.Registry
}

func NewHandler(engine *booking.Engine, gate *auth.Gate, registry *auth.Registry) *Handler {
	return &Handler{engine: engine, gate: gate, registry: registry}
}

func principal(r *http.Request) string {
	return r.Header.Get(PrincipalHeader)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// Businesses

func (h *Handler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	caller := principal(r)
	if err := h.gate.RequireAdmin(caller); err != nil {
		handleError(w, err)
		return
	}

	var req CreateBusinessRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.TimeZone == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "name and time_zone are required")
		return
	}

	b, err := h.engine.CreateBusiness(r.Context(), req.ID, req.Name, req.TimeZone, req.GranularityMinutes)
	if err != nil {
		handleError(w, err)
		return
	}
	h.registry.RecordOwner(b.ID, caller)

	writeJSON(w, http.StatusCreated, BusinessResponse{
		ID:                 b.ID,
		Name:               b.Name,
		TimeZone:           b.TimeZone,
		GranularityMinutes: b.GranularityMinutes,
	})
}

func (h *Handler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.GetBusiness(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BusinessResponse{
		ID:                 b.ID,
		Name:               b.Name,
		TimeZone:           b.TimeZone,
		GranularityMinutes: b.GranularityMinutes,
	})
}

// Services

func (h *Handler) AddService(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	var req ServicePayload
	if !decode(w, r, &req) {
		return
	}

	svc := booking.Service{ID: req.ID, Name: req.Name, DurationMinutes: req.DurationMinutes}
	if req.Price != nil {
		svc.Price = &booking.Price{Currency: req.Price.Currency, Amount: req.Price.Amount}
	}

	created, err := h.engine.AddService(r.Context(), businessID, svc)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, servicePayload(created))
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.GetService(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "serviceID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servicePayload(s))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.engine.ListServices(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		handleError(w, err)
		return
	}
	resp := make([]ServicePayload, 0, len(services))
	for i := range services {
		resp = append(resp, servicePayload(&services[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Staff

func (h *Handler) AddStaff(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	var req StaffPayload
	if !decode(w, r, &req) {
		return
	}

	created, err := h.engine.AddStaff(r.Context(), businessID, booking.Staff{ID: req.ID, Name: req.Name})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, StaffPayload{ID: created.ID, Name: created.Name})
}

func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.GetStaff(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "staffID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StaffPayload{ID: s.ID, Name: s.Name})
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.engine.ListStaff(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		handleError(w, err)
		return
	}
	resp := make([]StaffPayload, 0, len(staff))
	for _, s := range staff {
		resp = append(resp, StaffPayload{ID: s.ID, Name: s.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Clients

func (h *Handler) AddClient(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	var req ClientPayload
	if !decode(w, r, &req) {
		return
	}

	created, err := h.engine.AddClient(r.Context(), businessID, booking.Client{
		ID:    req.ID,
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clientPayload(created))
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	c, err := h.engine.GetClient(r.Context(), businessID, chi.URLParam(r, "clientID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientPayload(c))
}

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	clients, err := h.engine.ListClients(r.Context(), businessID)
	if err != nil {
		handleError(w, err)
		return
	}
	resp := make([]ClientPayload, 0, len(clients))
	for i := range clients {
		resp = append(resp, clientPayload(&clients[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Availability

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	var req AvailabilityPayload
	if !decode(w, r, &req) {
		return
	}

	err := h.engine.SetAvailability(r.Context(), businessID, booking.AvailabilityRule{
		StaffID:     chi.URLParam(r, "staffID"),
		DayOfWeek:   req.DayOfWeek,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	rule, err := h.engine.GetAvailability(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "staffID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityPayload(rule))
}

func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	rules, err := h.engine.ListAvailability(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "staffID"))
	if err != nil {
		handleError(w, err)
		return
	}
	resp := make([]AvailabilityPayload, 0, len(rules))
	for i := range rules {
		resp = append(resp, availabilityPayload(&rules[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Slots and bookings

func (h *Handler) GetAvailableSlots(w http.ResponseWriter, r *http.Request) {
	serviceID := r.URL.Query().Get("service_id")
	if serviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id query parameter is required")
		return
	}
	dateNanos, err := strconv.ParseInt(r.URL.Query().Get("date"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be nanoseconds since the Unix epoch")
		return
	}

	slots, err := h.engine.AvailableSlots(r.Context(), chi.URLParam(r, "businessID"), serviceID, time.Unix(0, dateNanos))
	if err != nil {
		handleError(w, err)
		return
	}

	resp := SlotsResponse{Slots: make([]int64, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.UnixNano())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) BookPublic(w http.ResponseWriter, r *http.Request) {
	var req BookPublicRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "name is required")
		return
	}

	id, err := h.engine.BookPublic(r.Context(), chi.URLParam(r, "businessID"), booking.PublicBookingRequest{
		ServiceID: req.ServiceID,
		StartTime: time.Unix(0, req.StartTime),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BookPublicResponse{AppointmentID: id})
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	var req CreateAppointmentRequest
	if !decode(w, r, &req) {
		return
	}

	appt := booking.Appointment{
		ID:        req.ID,
		ServiceID: req.ServiceID,
		StaffID:   req.StaffID,
		ClientID:  req.ClientID,
		StartTime: time.Unix(0, req.StartTime),
		Status:    booking.AppointmentStatus(req.Status),
	}
	if req.EndTime != 0 {
		appt.EndTime = time.Unix(0, req.EndTime)
	}

	created, err := h.engine.CreateAppointment(r.Context(), businessID, appt)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse(created))
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	a, err := h.engine.GetAppointment(r.Context(), businessID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(a))
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
		handleError(w, err)
		return
	}

	appts, err := h.engine.ListAppointments(r.Context(), businessID)
	if err != nil {
		handleError(w, err)
		return
	}
	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, appointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) transitionHandler(fn func(*http.Request, string, string) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID := chi.URLParam(r, "businessID")
		if err := h.gate.RequireOwner(principal(r), businessID); err != nil {
			handleError(w, err)
			return
		}

		a, err := fn(r, businessID, chi.URLParam(r, "appointmentID"))
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(a))
	}
}

func (h *Handler) CancelAppointment() http.HandlerFunc {
	return h.transitionHandler(func(r *http.Request, businessID, id string) (*booking.Appointment, error) {
		return h.engine.CancelAppointment(r.Context(), businessID, id)
	})
}

func (h *Handler) CompleteAppointment() http.HandlerFunc {
	return h.transitionHandler(func(r *http.Request, businessID, id string) (*booking.Appointment, error) {
		return h.engine.CompleteAppointment(r.Context(), businessID, id)
	})
}

func (h *Handler) MarkNoShow() http.HandlerFunc {
	return h.transitionHandler(func(r *http.Request, businessID, id string) (*booking.Appointment, error) {
		return h.engine.MarkNoShow(r.Context(), businessID, id)
	})
}

// Users and roles

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	caller := principal(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "a principal is required")
		return
	}

	var req ProfilePayload
	if !decode(w, r, &req) {
		return
	}
	h.registry.SaveProfile(caller, auth.Profile{Name: req.Name})
	writeJSON(w, http.StatusOK, ProfilePayload{Name: req.Name})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.registry.Profile(principal(r))
	if !ok {
		writeError(w, http.StatusNotFound, "profile_not_found", "no profile saved for caller")
		return
	}
	writeJSON(w, http.StatusOK, ProfilePayload{Name: p.Name})
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RoleResponse{Role: string(h.registry.RoleOf(principal(r)))})
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.RequireAdmin(principal(r)); err != nil {
		handleError(w, err)
		return
	}

	var req AssignRoleRequest
	if !decode(w, r, &req) {
		return
	}
	role := auth.Role(req.Role)
	switch role {
	case auth.RoleAdmin, auth.RoleUser, auth.RoleGuest:
	default:
		writeError(w, http.StatusBadRequest, "invalid_role", "role must be admin, user or guest")
		return
	}
	if req.Principal == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "principal is required")
		return
	}

	h.registry.AssignRole(req.Principal, role)
	w.WriteHeader(http.StatusNoContent)
}
