package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gatherhall/server/internal/api/problem"
	"github.com/gatherhall/server/internal/domain/events"
	"github.com/gatherhall/server/internal/domain/registrations"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// regStore is an in-memory registrations.Store. WithTx serializes closures on
// one mutex, standing in for the event row lock.
type regStore struct {
	mu     sync.Mutex
	events map[string]*events.Event
	regs   map[string]*registrations.Registration
	pair   map[[2]string]string
}

func newRegStore() *regStore {
	return &regStore{
		events: make(map[string]*events.Event),
		regs:   make(map[string]*registrations.Registration),
		pair:   make(map[[2]string]string),
	}
}

func (s *regStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo registrations.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, (*regRepo)(s))
}

func (s *regStore) Repo() registrations.Repository { return (*regRepo)(s) }

func (s *regStore) addEvent(event events.Event) {
	s.events[event.ID] = &event
}

func (s *regStore) addRegistration(reg registrations.Registration) {
	s.regs[reg.ID] = &reg
	s.pair[[2]string{reg.EventID, reg.UserID}] = reg.ID
}

type regRepo regStore

func (r *regRepo) LockEvent(ctx context.Context, eventID string) (*events.Event, error) {
	event, ok := r.events[eventID]
	if !ok {
		return nil, events.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *regRepo) CountActive(ctx context.Context, eventID string) (int64, error) {
	var n int64
	for _, reg := range r.regs {
		if reg.EventID == eventID && reg.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (r *regRepo) GetByEventAndUser(ctx context.Context, eventID, userID string) (*registrations.Registration, error) {
	id, ok := r.pair[[2]string{eventID, userID}]
	if !ok {
		return nil, nil
	}
	copied := *r.regs[id]
	return &copied, nil
}

func (r *regRepo) GetByID(ctx context.Context, id string) (*registrations.Registration, error) {
	reg, ok := r.regs[id]
	if !ok {
		return nil, registrations.ErrRegistrationNotFound
	}
	copied := *reg
	return &copied, nil
}

func (r *regRepo) Insert(ctx context.Context, reg registrations.Registration) error {
	key := [2]string{reg.EventID, reg.UserID}
	if _, ok := r.pair[key]; ok {
		return registrations.ErrAlreadyRegistered
	}
	stored := reg
	r.regs[reg.ID] = &stored
	r.pair[key] = reg.ID
	return nil
}

func (r *regRepo) Reactivate(ctx context.Context, reg registrations.Registration) error {
	stored, ok := r.regs[reg.ID]
	if !ok {
		return registrations.ErrRegistrationNotFound
	}
	*stored = reg
	return nil
}

func (r *regRepo) UpdateStatus(ctx context.Context, id string, status registrations.Status) error {
	stored, ok := r.regs[id]
	if !ok {
		return registrations.ErrRegistrationNotFound
	}
	stored.Status = status
	return nil
}

func (r *regRepo) ListByEvent(ctx context.Context, eventID string) ([]registrations.Registration, error) {
	var out []registrations.Registration
	for _, reg := range r.regs {
		if reg.EventID == eventID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *regRepo) ListByUser(ctx context.Context, userID string) ([]registrations.Registration, error) {
	var out []registrations.Registration
	for _, reg := range r.regs {
		if reg.UserID == userID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

type stubProfiles struct {
	missing []string
}

func (s stubProfiles) MissingProfileFields(context.Context, string) ([]string, error) {
	return s.missing, nil
}

func capacity(n int32) *int32 { return &n }

func newRegHandler(store *regStore, missing []string) *RegistrationsHandler {
	svc := registrations.NewService(store, stubProfiles{missing: missing}, nil, zerolog.Nop())
	return NewRegistrationsHandler(svc, testEnv)
}

func TestAdmitRequiresAuth(t *testing.T) {
	h := newRegHandler(newRegStore(), nil)

	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-1/registrations", nil, nil)
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmitSuccess(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, Capacity: capacity(10)})
	h := newRegHandler(store, nil)

	body := map[string]any{"answers": map[string]any{"shirt": "M"}}
	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-1/registrations", body, testClaims("user-1", "participant"))
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp registrationResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "ev-1", resp.EventID)
	require.Equal(t, "user-1", resp.UserID)
	require.Equal(t, "registered", resp.Status)
	require.Equal(t, "M", resp.Answers["shirt"])
	require.NotEmpty(t, resp.ID)
}

func TestAdmitCapacityExceeded(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, Capacity: capacity(1)})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusRegistered})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-1/registrations", nil, testClaims("user-2", "participant"))
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var details problem.ProblemDetails
	decodeBody(t, rec, &details)
	require.Equal(t, problem.TypeCapacityExceeded, details.Type)
}

func TestAdmitNotOpen(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusDraft})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-1/registrations", nil, testClaims("user-1", "participant"))
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var details problem.ProblemDetails
	decodeBody(t, rec, &details)
	require.Equal(t, problem.TypeNotOpen, details.Type)
}

func TestAdmitIncompleteProfile(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished})
	h := newRegHandler(store, []string{"full_name", "phone"})

	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-1/registrations", nil, testClaims("user-1", "participant"))
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var details problem.ProblemDetails
	decodeBody(t, rec, &details)
	require.Equal(t, problem.TypeIncompleteProfile, details.Type)
	require.ElementsMatch(t, []any{"full_name", "phone"}, details.Errors["missing_fields"])
}

func TestAdmitDuplicate(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusRegistered})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-1/registrations", nil, testClaims("user-1", "participant"))
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var details problem.ProblemDetails
	decodeBody(t, rec, &details)
	require.Equal(t, problem.TypeConflict, details.Type)
}

func TestAdmitUnknownEvent(t *testing.T) {
	h := newRegHandler(newRegStore(), nil)

	req := newRequest(t, http.MethodPost, "/api/v1/events/ev-missing/registrations", nil, testClaims("user-1", "participant"))
	req.SetPathValue("id", "ev-missing")
	rec := httptest.NewRecorder()
	h.Admit(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOwnRegistration(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, OrganizerID: "org-1"})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusRegistered})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodDelete, "/api/v1/registrations/reg-1", nil, testClaims("user-1", "participant"))
	req.SetPathValue("id", "reg-1")
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, registrations.StatusCancelled, store.regs["reg-1"].Status)
}

func TestCancelByStrangerForbidden(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, OrganizerID: "org-1"})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusRegistered})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodDelete, "/api/v1/registrations/reg-1", nil, testClaims("user-2", "participant"))
	req.SetPathValue("id", "reg-1")
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSetStatusInvalidTransition(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, OrganizerID: "org-1"})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusCancelled})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodPatch, "/api/v1/registrations/reg-1/status", map[string]any{"status": "attended"}, testClaims("org-1", "organizer"))
	req.SetPathValue("id", "reg-1")
	rec := httptest.NewRecorder()
	h.SetStatus(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var details problem.ProblemDetails
	decodeBody(t, rec, &details)
	require.Equal(t, problem.TypeInvalidTransition, details.Type)
}

func TestSetStatusMarkAttended(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, OrganizerID: "org-1"})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusRegistered, RegisteredAt: time.Now()})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodPatch, "/api/v1/registrations/reg-1/status", map[string]any{"status": "attended"}, testClaims("org-1", "organizer"))
	req.SetPathValue("id", "reg-1")
	rec := httptest.NewRecorder()
	h.SetStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp registrationResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "attended", resp.Status)
}

func TestListForEventOrganizerOnly(t *testing.T) {
	store := newRegStore()
	store.addEvent(events.Event{ID: "ev-1", Status: events.StatusPublished, OrganizerID: "org-1"})
	store.addRegistration(registrations.Registration{ID: "reg-1", EventID: "ev-1", UserID: "user-1", Status: registrations.StatusRegistered})
	h := newRegHandler(store, nil)

	req := newRequest(t, http.MethodGet, "/api/v1/events/ev-1/registrations", nil, testClaims("user-1", "participant"))
	req.SetPathValue("id", "ev-1")
	rec := httptest.NewRecorder()
	h.ListForEvent(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = newRequest(t, http.MethodGet, "/api/v1/events/ev-1/registrations", nil, testClaims("org-1", "organizer"))
	req.SetPathValue("id", "ev-1")
	rec = httptest.NewRecorder()
	h.ListForEvent(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []registrationResponse `json:"items"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Items, 1)
}
