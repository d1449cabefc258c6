package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAndDecode(t *testing.T, status int, typ, title string, err error, env string, opts ...Option) (*httptest.ResponseRecorder, ProblemDetails) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/ev-1", nil)
	rec := httptest.NewRecorder()
	Write(rec, req, status, typ, title, err, env, opts...)

	var details ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&details))
	return rec, details
}

func TestWriteSetsContentTypeAndStatus(t *testing.T) {
	rec, details := writeAndDecode(t, http.StatusConflict, TypeCapacityExceeded, "Event at capacity", errors.New("full"), "test")

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Equal(t, TypeCapacityExceeded, details.Type)
	require.Equal(t, "Event at capacity", details.Title)
	require.Equal(t, http.StatusConflict, details.Status)
	require.Equal(t, "/api/v1/events/ev-1", details.Instance)
}

func TestWriteExposesErrorDetailInTest(t *testing.T) {
	_, details := writeAndDecode(t, http.StatusBadRequest, TypeValidation, "Invalid request", errors.New("name is required"), "test")
	require.Equal(t, "name is required", details.Detail)
}

func TestWriteHidesErrorDetailInProduction(t *testing.T) {
	_, details := writeAndDecode(t, http.StatusInternalServerError, TypeServerError, "Server error", errors.New("pq: connection reset"), "production")
	require.Equal(t, http.StatusText(http.StatusInternalServerError), details.Detail)
	require.NotContains(t, details.Detail, "pq:")
}

func TestWithErrors(t *testing.T) {
	_, details := writeAndDecode(t, http.StatusUnprocessableEntity, TypeIncompleteProfile, "Profile incomplete", nil, "test",
		WithErrors(map[string]interface{}{"missing_fields": []string{"phone"}}))
	require.Equal(t, []any{"phone"}, details.Errors["missing_fields"])
}

func TestWithDetailOverridesError(t *testing.T) {
	_, details := writeAndDecode(t, http.StatusBadRequest, TypeValidation, "Invalid request", errors.New("internal wording"), "test",
		WithDetail("limit must be between 1 and 200"))
	require.Equal(t, "limit must be between 1 and 200", details.Detail)
}
