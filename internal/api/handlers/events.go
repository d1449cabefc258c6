package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gatherhall/server/internal/api/middleware"
	"github.com/gatherhall/server/internal/api/problem"
	"github.com/gatherhall/server/internal/auth"
	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/ids"
	"github.com/gatherhall/server/internal/metrics"
)

type EventsHandler struct {
	Service *events.Service
	Env     string
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

type createEventRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Capacity    *int32 `json:"capacity"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
	Location    string `json:"location"`
}

type eventResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Capacity    *int32 `json:"capacity,omitempty"`
	OrganizerID string `json:"organizer_id"`
	StartsAt    string `json:"starts_at,omitempty"`
	EndsAt      string `json:"ends_at,omitempty"`
	Location    string `json:"location,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toEventResponse(event events.Event) eventResponse {
	return eventResponse{
		ID:          event.ID,
		Code:        event.Code,
		Name:        event.Name,
		Description: event.Description,
		Status:      string(event.Status),
		Capacity:    event.Capacity,
		OrganizerID: event.OrganizerID,
		StartsAt:    formatTime(event.StartsAt),
		EndsAt:      formatTime(event.EndsAt),
		Location:    event.Location,
		CreatedAt:   formatTime(event.CreatedAt),
	}
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	params := events.CreateParams{
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
		OrganizerID: claims.Subject,
		Location:    req.Location,
	}

	var err error
	if params.StartsAt, err = parseEventTime(req.StartsAt); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	if params.EndsAt, err = parseEventTime(req.EndsAt); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	event, err := h.Service.Create(r.Context(), params)
	if err != nil {
		if errors.Is(err, ids.ErrCodeSpaceExhausted) {
			metrics.CodeExhaustionsTotal.Inc()
			problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeServerError, "Code issuance exhausted", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	metrics.CodeIssuedTotal.Inc()
	writeJSON(w, http.StatusCreated, toEventResponse(*event))
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := ids.ValidateULID(id); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	event, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

func (h *EventsHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	code := pathParam(r, "code")
	event, err := h.Service.GetByCode(r.Context(), code)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*event))
}

func (h *EventsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	list, err := h.Service.ListByOrganizer(r.Context(), claims.Subject)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]eventResponse, 0, len(list))
	for _, event := range list {
		items = append(items, toEventResponse(event))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *EventsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.Service.Publish)
}

func (h *EventsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.Service.Cancel)
}

func (h *EventsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.Service.Complete)
}

func (h *EventsHandler) changeStatus(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) (*events.Event, error)) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	id := pathParam(r, "id")
	event, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	if event.OrganizerID != claims.Subject && !auth.IsAdmin(claims.Role) {
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", nil, h.Env)
		return
	}

	updated, err := apply(r.Context(), id)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(*updated))
}

func (h *EventsHandler) writeEventError(w http.ResponseWriter, r *http.Request, err error) {
	var lifecycleErr events.InvalidLifecycleError
	switch {
	case errors.Is(err, events.ErrEventNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
	case errors.As(err, &lifecycleErr):
		problem.Write(w, r, http.StatusConflict, problem.TypeInvalidTransition, "Invalid lifecycle transition", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}

func parseEventTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
