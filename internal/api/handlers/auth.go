package handlers

import (
	"errors"
	"net/http"

	"github.com/gatherhall/server/internal/api/problem"
	"github.com/gatherhall/server/internal/auth"
	"github.com/gatherhall/server/internal/domain/users"
)

type AuthHandler struct {
	Users *users.Service
	JWT   *auth.JWTManager
	Env   string
}

func NewAuthHandler(usersService *users.Service, jwtManager *auth.JWTManager, env string) *AuthHandler {
	return &AuthHandler{Users: usersService, JWT: jwtManager, Env: env}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	if req.Username == "" || req.Password == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", nil, h.Env,
			problem.WithDetail("username and password are required"))
		return
	}

	user, err := h.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, h.Env,
				problem.WithDetail("invalid username or password"))
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	token, err := h.JWT.Generate(user.ID, string(user.Role))
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(*user)})
}
