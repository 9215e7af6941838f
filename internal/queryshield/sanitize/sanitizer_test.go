package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryshield/queryshield/internal/queryshield/catalog"
)

const testSchema = `Table: users
- id (INT) [primary key]
- email (VARCHAR)
- password (VARCHAR)

Table: accounts
- id (INT) [primary key]
- ssn (VARCHAR)
- balance (DECIMAL)
`

func newSanitizer() *Sanitizer {
	return New(catalog.Default())
}

func TestSanitize_NoSensitiveColumns(t *testing.T) {
	s := newSanitizer()

	tests := []struct {
		name      string
		statement string
	}{
		{"plain_select", "SELECT id, email FROM users"},
		{"with_where", "SELECT id, balance FROM accounts WHERE balance > 100"},
		{"aggregate", "SELECT COUNT(id) FROM users"},
		{"count_star", "SELECT COUNT(*) FROM users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Sanitize(tt.statement, testSchema)
			// Byte-for-byte echo when nothing is blocked.
			assert.Equal(t, tt.statement, out.Statement)
			assert.Empty(t, out.Blocked)
			assert.Empty(t, out.Warnings)
		})
	}
}

func TestSanitize_PartialBlock(t *testing.T) {
	s := newSanitizer()

	out := s.Sanitize("SELECT id, password, email FROM users", testSchema)
	assert.Equal(t, "SELECT `id`, `email` FROM users", out.Statement)
	require.Len(t, out.Blocked, 1)
	assert.Equal(t, "password", out.Blocked[0].Column)
	assert.Equal(t, "sensitive", out.Blocked[0].Category)
	assert.Contains(t, out.Blocked[0].Reason, "password")
}

func TestSanitize_AllBlocked_SafeAlternative(t *testing.T) {
	s := newSanitizer()

	out := s.Sanitize("SELECT password FROM users", testSchema)
	assert.Equal(t, "SELECT COUNT(*) as users_with_password FROM users", out.Statement)
	require.Len(t, out.Blocked, 1)
}

func TestSanitize_AllBlocked_GenericFallback(t *testing.T) {
	s := newSanitizer()

	// date_of_birth has no configured alternative, so the generic
	// aggregate takes over.
	out := s.Sanitize("SELECT date_of_birth FROM users", testSchema)
	assert.Equal(t, "SELECT COUNT(*) AS record_count FROM users", out.Statement)
	require.Len(t, out.Blocked, 1)
}

func TestSanitize_WildcardExpansion(t *testing.T) {
	s := newSanitizer()

	out := s.Sanitize("SELECT * FROM accounts", testSchema)
	assert.Equal(t, "SELECT `id`, `balance` FROM accounts", out.Statement)
	require.Len(t, out.Blocked, 1)
	assert.Equal(t, "ssn", out.Blocked[0].Column)
}

func TestSanitize_WildcardUnknownTable(t *testing.T) {
	s := newSanitizer()

	// Resolver knows nothing about the table: no columns to classify,
	// statement passes through.
	stmt := "SELECT * FROM payments"
	out := s.Sanitize(stmt, testSchema)
	assert.Equal(t, stmt, out.Statement)
	assert.Empty(t, out.Blocked)
}

func TestSanitize_TableExtractionFailOpen(t *testing.T) {
	s := newSanitizer()

	// Fail-open is intentional policy: when no table name can be
	// determined the validated statement executes unchanged, with a
	// warning. Do not change this to fail-closed without revisiting
	// the contract.
	tests := []string{"SHOW TABLES", "SELECT 1", "DESCRIBE users"}
	for _, stmt := range tests {
		out := s.Sanitize(stmt, testSchema)
		assert.Equal(t, stmt, out.Statement)
		assert.Empty(t, out.Blocked)
		require.Len(t, out.Warnings, 1)
		assert.Contains(t, out.Warnings[0], "could not be applied")
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := newSanitizer()

	first := s.Sanitize("SELECT id, password, email FROM users", testSchema)
	require.NotEmpty(t, first.Blocked)

	second := s.Sanitize(first.Statement, testSchema)
	assert.Equal(t, first.Statement, second.Statement)
	assert.Empty(t, second.Blocked)
}

func TestSanitize_AliasAndQualifierStripping(t *testing.T) {
	s := newSanitizer()

	tests := []struct {
		name      string
		statement string
		expected  string
		blocked   []string
	}{
		{
			name:      "as_alias",
			statement: "SELECT u.password AS pw, u.email FROM users u",
			expected:  "SELECT `email` FROM users u",
			blocked:   []string{"password"},
		},
		{
			name:      "bare_alias",
			statement: "SELECT password pw, email contact FROM users",
			expected:  "SELECT `email` FROM users",
			blocked:   []string{"password"},
		},
		{
			name:      "function_wrapped",
			statement: "SELECT UPPER(password), email FROM users",
			expected:  "SELECT `email` FROM users",
			blocked:   []string{"password"},
		},
		{
			name:      "quoted_column",
			statement: "SELECT `password`, email FROM users",
			expected:  "SELECT `email` FROM users",
			blocked:   []string{"password"},
		},
		{
			name:      "substring_match",
			statement: "SELECT user_password_hash, email FROM users",
			expected:  "SELECT `email` FROM users",
			blocked:   []string{"user_password_hash"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Sanitize(tt.statement, testSchema)
			assert.Equal(t, tt.expected, out.Statement)
			var cols []string
			for _, b := range out.Blocked {
				cols = append(cols, b.Column)
			}
			assert.Equal(t, tt.blocked, cols)
		})
	}
}

func TestSanitize_DistinctHandling(t *testing.T) {
	s := newSanitizer()

	out := s.Sanitize("SELECT DISTINCT password FROM users", testSchema)
	require.Len(t, out.Blocked, 1)
	assert.Equal(t, "SELECT COUNT(*) as users_with_password FROM users", out.Statement)
}

func TestSanitize_BlockedOrderMatchesProjection(t *testing.T) {
	s := newSanitizer()

	out := s.Sanitize("SELECT ssn, id, password FROM users", testSchema)
	require.Len(t, out.Blocked, 2)
	assert.Equal(t, "ssn", out.Blocked[0].Column)
	assert.Equal(t, "password", out.Blocked[1].Column)
	assert.Equal(t, "SELECT `id` FROM users", out.Statement)
}

func TestSanitize_FirstSpanOnly(t *testing.T) {
	s := newSanitizer()

	// Only the outer projection is rewritten; the subquery keeps its own.
	out := s.Sanitize("SELECT password FROM users WHERE id IN (SELECT user_id FROM sessions)", testSchema)
	assert.Equal(t,
		"SELECT COUNT(*) as users_with_password FROM users WHERE id IN (SELECT user_id FROM sessions)",
		out.Statement)
}
