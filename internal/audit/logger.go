package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Entry represents a single audit log entry with structured fields
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	ActorID      string            `json:"actor_id"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	Status       string            `json:"status"` // "success" or "failure"
	Details      map[string]string `json:"details,omitempty"`
}

// Logger provides structured audit logging for administrative operations
type Logger struct {
	output *log.Logger
}

// NewLogger creates a new audit logger writing to stdout
func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates an audit logger writing to the given sink
func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{
		output: log.New(w, "[AUDIT] ", 0),
	}
}

// Log writes an audit entry to the log output. A nil logger discards
// entries so callers do not have to guard every site.
func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal audit entry: %v", err)
		return
	}
	l.output.Println(string(data))
}

// LogSuccess logs a successful administrative operation
func (l *Logger) LogSuccess(action, actorID, resourceType, resourceID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		ActorID:      actorID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Status:       "success",
		Details:      details,
	})
}

// LogFailure logs a rejected or failed administrative operation
func (l *Logger) LogFailure(action, actorID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:    action,
		ActorID:   actorID,
		IPAddress: ipAddress,
		Status:    "failure",
		Details:   details,
	})
}
