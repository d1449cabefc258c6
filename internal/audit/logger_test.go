package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogSuccessWritesJSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf)

	logger.LogSuccess("user.role_changed", "admin-1", "user", "user-2", "10.0.0.1", map[string]string{
		"from": "participant",
		"to":   "organizer",
	})

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "[AUDIT] "))

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "[AUDIT] ")), &entry))
	require.Equal(t, "user.role_changed", entry.Action)
	require.Equal(t, "admin-1", entry.ActorID)
	require.Equal(t, "user-2", entry.ResourceID)
	require.Equal(t, "success", entry.Status)
	require.Equal(t, "organizer", entry.Details["to"])
	require.False(t, entry.Timestamp.IsZero())
}

func TestLogFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf)

	logger.LogFailure("user.delete", "admin-1", "", map[string]string{"reason": "last admin"})

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(buf.String()), "[AUDIT] ")), &entry))
	require.Equal(t, "failure", entry.Status)
	require.Equal(t, "last admin", entry.Details["reason"])
}
