package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gatherhall/server/internal/api/middleware"
	"github.com/gatherhall/server/internal/api/problem"
	"github.com/gatherhall/server/internal/auth"
	"github.com/gatherhall/server/internal/domain/users"
	"github.com/gatherhall/server/internal/metrics"
)

// UsersHandler serves the admin account-management surface. Routes are gated
// on the admin role by middleware; the domain guard still re-checks the
// invariants inside the write transaction.
type UsersHandler struct {
	Service *users.Service
	Env     string
}

func NewUsersHandler(service *users.Service, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"full_name,omitempty"`
	IsActive bool   `json:"is_active"`
}

func toUserResponse(user users.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
		FullName: user.FullName,
		IsActive: user.IsActive,
	}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := int32(50)
	offset := int32(0)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 || parsed > 200 {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
				problem.WithDetail("limit must be between 1 and 200"))
			return
		}
		limit = int32(parsed)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 0 {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
				problem.WithDetail("offset must be non-negative"))
			return
		}
		offset = int32(parsed)
	}

	list, err := h.Service.List(r.Context(), limit, offset)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]userResponse, 0, len(list))
	for _, user := range list {
		items = append(items, toUserResponse(user))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

func (h *UsersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	role := users.Role(req.Role)
	if !role.IsValid() {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", nil, h.Env,
			problem.WithDetail("role must be participant, organizer, or admin"))
		return
	}

	updated, err := h.Service.ChangeRole(r.Context(), pathParam(r, "id"), role, claims.Subject)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*updated))
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", auth.ErrMissingToken, h.Env)
		return
	}

	if err := h.Service.Delete(r.Context(), pathParam(r, "id"), claims.Subject); err != nil {
		h.writeUserError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env)
	case errors.Is(err, users.ErrSelfModification):
		metrics.RoleGuardRejectionsTotal.WithLabelValues("self_modification").Inc()
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Cannot modify own account", err, h.Env)
	case errors.Is(err, users.ErrLastAdmin):
		metrics.RoleGuardRejectionsTotal.WithLabelValues("last_admin").Inc()
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Cannot remove the last admin", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
	}
}
