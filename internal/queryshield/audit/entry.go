package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/queryshield/queryshield/internal/queryshield/sanitize"
)

// Entry statuses. Every pipeline run produces exactly one entry with one
// of these.
const (
	StatusAllowed = "allowed"
	StatusBlocked = "blocked"
	StatusError   = "error"
)

// Entry is the immutable record of one pipeline invocation. It maps
// directly to one NDJSON line in a daily partition and is never updated
// after creation.
type Entry struct {
	EntryID   string `json:"entry_id"`
	Timestamp string `json:"timestamp"` // RFC3339Nano UTC
	UserID    string `json:"user_id"`
	Database  string `json:"database,omitempty"`
	Backend   string `json:"backend,omitempty"` // mysql, postgres, ...

	Question  string `json:"question,omitempty"` // natural-language input
	Generated string `json:"generated_statement"`
	Executed  string `json:"executed_statement,omitempty"`

	Status   string                   `json:"status"` // allowed | blocked | error
	Blocked  []sanitize.BlockedColumn `json:"blocked_columns,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
	Reason   string                   `json:"reason,omitempty"`

	ExecutionMs *int64  `json:"execution_ms,omitempty"`
	RowCount    *int    `json:"row_count,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// ViolationEntry is the higher-severity sibling of Entry, created only
// when a request is rejected for a sensitive-column access attempt. It is
// written to a distinct partition series.
type ViolationEntry struct {
	EntryID   string `json:"entry_id"`
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"` // always HIGH
	UserID    string `json:"user_id"`
	Database  string `json:"database,omitempty"`
	Backend   string `json:"backend,omitempty"`

	Statement string                   `json:"statement"`
	Blocked   []sanitize.BlockedColumn `json:"blocked_columns"`
	Reason    string                   `json:"reason,omitempty"`
}

// SeverityHigh is the only severity a violation entry carries.
const SeverityHigh = "HIGH"

// NewEntry creates an entry stamped with a fresh ID and the current UTC
// time.
func NewEntry(userID string) Entry {
	return Entry{
		EntryID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		UserID:    userID,
	}
}

// NewViolation creates a HIGH severity violation entry.
func NewViolation(userID, statement string, blocked []sanitize.BlockedColumn) ViolationEntry {
	return ViolationEntry{
		EntryID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Severity:  SeverityHigh,
		UserID:    userID,
		Statement: statement,
		Blocked:   blocked,
	}
}

// SetExecution records execution timing and row count on the entry.
func (e *Entry) SetExecution(ms int64, rows int) {
	e.ExecutionMs = &ms
	e.RowCount = &rows
}

// SetError records the backend error text verbatim and flips the status.
func (e *Entry) SetError(msg string) {
	e.Status = StatusError
	if msg != "" {
		e.Error = &msg
	}
}
