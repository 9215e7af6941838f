package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleSchema = `Table: users
- id (INT) [primary key]
- email (VARCHAR)
- password_hash (VARCHAR) [not null]
- created_at (TIMESTAMP)

Table: accounts
- id (INT) [primary key]
- ssn (VARCHAR)
- balance (DECIMAL)

Table: Orders
- id (INT)
- total (DECIMAL)
`

func TestColumnsForTable(t *testing.T) {
	tests := []struct {
		name     string
		table    string
		expected []string
	}{
		{
			name:     "first_table",
			table:    "users",
			expected: []string{"id", "email", "password_hash", "created_at"},
		},
		{
			name:     "middle_table",
			table:    "accounts",
			expected: []string{"id", "ssn", "balance"},
		},
		{
			name:     "last_table",
			table:    "Orders",
			expected: []string{"id", "total"},
		},
		{
			name:     "unknown_table",
			table:    "payments",
			expected: nil,
		},
		{
			name:     "case_sensitive_lookup",
			table:    "orders",
			expected: nil,
		},
		{
			name:     "empty_table_name",
			table:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ColumnsForTable(sampleSchema, tt.table))
		})
	}
}

func TestColumnsForTable_EmptySchema(t *testing.T) {
	assert.Nil(t, ColumnsForTable("", "users"))
}

func TestColumnsForTable_DeclarationOrder(t *testing.T) {
	schemaText := "Table: t\n- z (INT)\n- a (INT)\n- m (INT)\n"
	assert.Equal(t, []string{"z", "a", "m"}, ColumnsForTable(schemaText, "t"))
}
