package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

// HealthChecker reports liveness and readiness. Healthz is a cheap liveness
// probe; Readyz checks the dependencies a serving instance actually needs.
type HealthChecker struct {
	pool        *pgxpool.Pool
	riverClient *river.Client[pgx.Tx]
	version     string
	gitCommit   string
}

func NewHealthChecker(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		pool:        pool,
		riverClient: riverClient,
		version:     version,
		gitCommit:   gitCommit,
	}
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit,omitempty"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

// Healthz reports process liveness only.
func (h *HealthChecker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.version,
		GitCommit: h.gitCommit,
	})
}

// Readyz runs dependency checks and returns 503 when any hard dependency
// is down. A stopped job client degrades readiness but does not fail it;
// admissions still work without background workers.
func (h *HealthChecker) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]checkResult)
	status := "ok"
	httpStatus := http.StatusOK

	if err := h.checkDatabase(ctx); err != nil {
		checks["database"] = checkResult{Status: "down", Error: err.Error()}
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = checkResult{Status: "ok"}

		if err := h.checkMigrations(ctx); err != nil {
			checks["migrations"] = checkResult{Status: "down", Error: err.Error()}
			status = "unavailable"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["migrations"] = checkResult{Status: "ok"}
		}
	}

	if h.riverClient == nil {
		checks["job_queue"] = checkResult{Status: "disabled"}
		if status == "ok" {
			status = "degraded"
		}
	} else {
		checks["job_queue"] = checkResult{Status: "ok"}
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:    status,
		Version:   h.version,
		GitCommit: h.gitCommit,
		Checks:    checks,
	})
}

func (h *HealthChecker) checkDatabase(ctx context.Context) error {
	if h.pool == nil {
		return errNoPool
	}
	return h.pool.Ping(ctx)
}

func (h *HealthChecker) checkMigrations(ctx context.Context) error {
	var dirty bool
	err := h.pool.QueryRow(ctx, `SELECT dirty FROM schema_migrations LIMIT 1`).Scan(&dirty)
	if err != nil {
		return err
	}
	if dirty {
		return errDirtyMigrations
	}
	return nil
}

var (
	errNoPool          = errors.New("database pool not configured")
	errDirtyMigrations = errors.New("schema migrations are dirty")
)
