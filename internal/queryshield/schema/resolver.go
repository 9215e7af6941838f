package schema

import (
	"regexp"
	"strings"

	"github.com/queryshield/queryshield/internal/queryshield/logger"
)

// Schema text format, one block per table:
//
//	Table: users
//	- id (INT) [primary key]
//	- email (VARCHAR)
//	- password_hash (VARCHAR)
//
// Blocks are separated by blank lines or the next "Table:" header.

var columnLinePattern = regexp.MustCompile(`^-\s+(\S+)\s+\(`)

// ColumnsForTable returns the declared column names of a table, in
// declaration order. Table lookup is an exact, case-sensitive match on the
// header name. An unknown table yields a nil slice; callers must treat the
// absence as "no columns known", not as a failure.
func ColumnsForTable(schemaText, tableName string) []string {
	if schemaText == "" || tableName == "" {
		return nil
	}

	var columns []string
	inTable := false

	for _, line := range strings.Split(schemaText, "\n") {
		trimmed := strings.TrimSpace(line)

		if name, ok := tableHeader(trimmed); ok {
			if inTable {
				break // next table block, done collecting
			}
			inTable = name == tableName
			continue
		}

		if !inTable {
			continue
		}

		if m := columnLinePattern.FindStringSubmatch(trimmed); m != nil {
			columns = append(columns, m[1])
		}
	}

	logger.L().Debugw("Resolved table columns",
		"table", tableName,
		"columns", strings.Join(columns, ","))

	return columns
}

// tableHeader reports whether a line is a "Table: <name>" header.
func tableHeader(line string) (string, bool) {
	const prefix = "Table:"
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}
