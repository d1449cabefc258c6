package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatherhall/server/internal/api/middleware"
	"github.com/gatherhall/server/internal/api/problem"
	"github.com/gatherhall/server/internal/auth"
	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/registrations"
	"github.com/gatherhall/server/internal/metrics"
)

type RegistrationsHandler struct {
	Service *registrations.Service
	Env     string
}

func NewRegistrationsHandler(service *registrations.Service, env string) *RegistrationsHandler {
	return &RegistrationsHandler{Service: service, Env: env}
}

type admitRequest struct {
	Answers map[string]any `json:"answers"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type registrationResponse struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	UserID       string         `json:"user_id"`
	Status       string         `json:"status"`
	Answers      map[string]any `json:"answers,omitempty"`
	RegisteredAt string         `json:"registered_at"`
}

func toRegistrationResponse(reg registrations.Registration) registrationResponse {
	return registrationResponse{
		ID:           reg.ID,
		EventID:      reg.EventID,
		UserID:       reg.UserID,
		Status:       string(reg.Status),
		Answers:      reg.Answers,
		RegisteredAt: formatTime(reg.RegisteredAt),
	}
}

// Admit registers the authenticated user for the event in the path.
func (h *RegistrationsHandler) Admit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	var req admitRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
			return
		}
	}

	start := time.Now()
	reg, err := h.Service.Admit(r.Context(), pathParam(r, "id"), claims.Subject, req.Answers)
	metrics.AdmissionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.writeAdmitError(w, r, err)
		return
	}

	// A reactivated row keeps its original CreatedAt while RegisteredAt is
	// overwritten on each admission.
	outcome := "admitted"
	if reg.RegisteredAt.After(reg.CreatedAt) {
		outcome = "reactivated"
	}
	metrics.AdmissionsTotal.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusCreated, toRegistrationResponse(*reg))
}

func (h *RegistrationsHandler) writeAdmitError(w http.ResponseWriter, r *http.Request, err error) {
	var incompleteErr registrations.IncompleteProfileError
	switch {
	case errors.Is(err, registrations.ErrNotOpen):
		metrics.AdmissionsTotal.WithLabelValues("not_open").Inc()
		problem.Write(w, r, http.StatusConflict, problem.TypeNotOpen, "Event not open for registration", err, h.Env)
	case errors.As(err, &incompleteErr):
		metrics.AdmissionsTotal.WithLabelValues("incomplete_profile").Inc()
		problem.Write(w, r, http.StatusUnprocessableEntity, problem.TypeIncompleteProfile, "Profile incomplete", err, h.Env,
			problem.WithErrors(map[string]interface{}{"missing_fields": incompleteErr.MissingFields}))
	case errors.Is(err, registrations.ErrCapacityExceeded):
		metrics.AdmissionsTotal.WithLabelValues("capacity_exceeded").Inc()
		problem.Write(w, r, http.StatusConflict, problem.TypeCapacityExceeded, "Event at capacity", err, h.Env)
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		metrics.AdmissionsTotal.WithLabelValues("duplicate").Inc()
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Already registered", err, h.Env)
	default:
		metrics.AdmissionsTotal.WithLabelValues("error").Inc()
		h.writeRegistrationError(w, r, err)
	}
}

// Cancel cancels a registration as the registrant or the event organizer.
func (h *RegistrationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	if err := h.Service.Cancel(r.Context(), pathParam(r, "id"), claims.Subject); err != nil {
		h.writeRegistrationError(w, r, err)
		return
	}

	metrics.RegistrationCancellationsTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus applies an organizer-driven status change.
func (h *RegistrationsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	reg, err := h.Service.SetStatus(r.Context(), pathParam(r, "id"), registrations.Status(req.Status), claims.Subject)
	if err != nil {
		h.writeRegistrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponse(*reg))
}

// ListForEvent returns an event's registrations to its organizer.
func (h *RegistrationsHandler) ListForEvent(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	list, err := h.Service.ListByEvent(r.Context(), pathParam(r, "id"), claims.Subject)
	if err != nil {
		h.writeRegistrationError(w, r, err)
		return
	}

	items := make([]registrationResponse, 0, len(list))
	for _, reg := range list {
		items = append(items, toRegistrationResponse(reg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListMine returns the caller's own registrations.
func (h *RegistrationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	list, err := h.Service.ListByUser(r.Context(), claims.Subject)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]registrationResponse, 0, len(list))
	for _, reg := range list {
		items = append(items, toRegistrationResponse(reg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RegistrationsHandler) writeRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	var transitionErr registrations.InvalidTransitionError
	switch {
	case errors.Is(err, registrations.ErrRegistrationNotFound), errors.Is(err, events.ErrEventNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
	case errors.Is(err, registrations.ErrNotPermitted):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, h.Env)
	case errors.As(err, &transitionErr):
		problem.Write(w, r, http.StatusConflict, problem.TypeInvalidTransition, "Invalid status transition", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}
