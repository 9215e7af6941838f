package sanitize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/queryshield/queryshield/internal/queryshield/catalog"
	"github.com/queryshield/queryshield/internal/queryshield/logger"
	"github.com/queryshield/queryshield/internal/queryshield/schema"
)

// BlockedColumn is one blocked column decision. Order matches the order
// columns appeared in the original projection.
type BlockedColumn struct {
	Column   string `json:"column"`
	Category string `json:"category"`
	Reason   string `json:"reason"`
}

// Outcome is the result of sanitizing one validated statement.
// Blocked is empty iff no rewrite occurred; in that case Statement echoes
// the input byte-for-byte. This is an invariant callers rely on, not an
// optimization.
type Outcome struct {
	Statement string          `json:"statement"`
	Blocked   []BlockedColumn `json:"blocked_columns,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Sanitizer rewrites validated SELECT statements to exclude or substitute
// access to sensitive columns. Like the validator it works on the raw
// statement text with regex heuristics rather than a SQL grammar; the
// documented limitation is a single top-level FROM and no column tracking
// through nested subqueries. Rewrites target the first SELECT ... FROM
// span, which keeps the transform simple and auditable.
type Sanitizer struct {
	catalog *catalog.Catalog
}

// New returns a sanitizer backed by the given catalog.
func New(c *catalog.Catalog) *Sanitizer {
	return &Sanitizer{catalog: c}
}

var (
	projectionPattern = regexp.MustCompile(`(?is)\bSELECT\s+(.*?)\s+FROM\b`)
	fromTablePattern  = regexp.MustCompile("(?i)\\bFROM\\s+[`\"\\[]?([A-Za-z_][A-Za-z0-9_.]*)")
	selectFromSpan    = regexp.MustCompile(`(?is)SELECT\s+.*?\s+FROM`)
	funcCallPattern   = regexp.MustCompile(`(?s)^[A-Za-z_][A-Za-z0-9_]*\s*\((.*)\)$`)
)

// Sanitize extracts the requested columns, classifies them against the
// catalog and rewrites the statement for the non-blocked portion.
// Invoked only on statements that already passed validation.
func (s *Sanitizer) Sanitize(statement, schemaText string) Outcome {
	out := Outcome{Statement: statement}

	// Target table. Fail-open by policy: when no table name can be
	// determined we warn and let the validated statement through
	// unchanged. Only column sanitization degrades here; the
	// denylist/allow-set gate has already run.
	tableName := extractTable(statement)
	if tableName == "" {
		out.Warnings = append(out.Warnings,
			"column sanitization could not be applied: unable to determine target table")
		logger.L().Debugw("Sanitization skipped, no table name found",
			"statement", statement)
		return out
	}

	projection, ok := extractProjection(statement)
	if !ok {
		out.Warnings = append(out.Warnings,
			"column sanitization could not be applied: no projection list found")
		return out
	}

	// Wildcard expansion happens before classification so the catalog
	// sees the real column names.
	var refs []string
	wildcard := strings.TrimSpace(projection) == "*"
	if wildcard {
		refs = schema.ColumnsForTable(schemaText, tableName)
		logger.L().Debugw("Expanded wildcard projection",
			"table", tableName,
			"columns", strings.Join(refs, ","))
	} else {
		refs = splitColumnRefs(projection)
	}

	// Classification: case-insensitive substring containment against the
	// catalog, encounter order preserved.
	var blocked []BlockedColumn
	var blockedPatterns []string
	var allowed []string
	for _, ref := range refs {
		if pattern, cat, hit := s.catalog.Match(ref); hit {
			blocked = append(blocked, BlockedColumn{
				Column:   ref,
				Category: "sensitive",
				Reason:   fmt.Sprintf("column %q contains sensitive data", ref),
			})
			blockedPatterns = append(blockedPatterns, pattern)
			logger.L().Infow("Blocked sensitive column",
				"column", ref,
				"pattern", pattern,
				"catalog_category", cat,
				"table", tableName)
		} else {
			allowed = append(allowed, ref)
		}
	}

	if len(blocked) == 0 {
		// Nothing to rewrite: echo the original statement verbatim.
		return out
	}

	out.Blocked = blocked

	if len(allowed) == 0 {
		// Every requested column is blocked: substitute the safe
		// alternative of the first blocked column.
		alt, ok := s.catalog.SafeAlternative(blockedPatterns[0])
		if !ok {
			alt = catalog.GenericSafeAlternative
		}
		out.Statement = rewriteProjection(statement, alt)
		logger.L().Infow("All columns blocked, substituted safe alternative",
			"table", tableName,
			"alternative", alt)
		return out
	}

	// Partial block: keep the allowed columns, quoted, in their original
	// relative order.
	quoted := make([]string, len(allowed))
	for i, col := range allowed {
		quoted[i] = "`" + col + "`"
	}
	out.Statement = rewriteProjection(statement, strings.Join(quoted, ", "))
	logger.L().Infow("Rewrote statement without blocked columns",
		"table", tableName,
		"blocked", len(blocked),
		"allowed", len(allowed))
	return out
}

// rewriteProjection replaces the projection list of the first
// SELECT ... FROM span with the given replacement. Only the first span is
// touched; nested subqueries keep their own projections.
func rewriteProjection(statement, replacement string) string {
	loc := selectFromSpan.FindStringIndex(statement)
	if loc == nil {
		return statement
	}
	return statement[:loc[0]] + "SELECT " + replacement + " FROM" + statement[loc[1]:]
}

// extractTable returns the first table name following FROM, optionally
// quoted. Empty string when no table can be determined.
func extractTable(statement string) string {
	m := fromTablePattern.FindStringSubmatch(statement)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractProjection returns the raw text between the first SELECT and FROM.
func extractProjection(statement string) (string, bool) {
	m := projectionPattern.FindStringSubmatch(statement)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// splitColumnRefs splits a projection list on top-level commas and reduces
// each item to a bare column reference: trailing aliases, leading table
// qualifiers, surrounding quotes and wrapping function calls are stripped.
// Literal 1, a bare star and the DISTINCT keyword are discarded as noise.
func splitColumnRefs(projection string) []string {
	items := splitTopLevel(projection, ',')

	var refs []string
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// A leading DISTINCT belongs to the projection, not the column.
		if i == 0 {
			if rest, found := strings.CutPrefix(strings.ToUpper(item), "DISTINCT "); found {
				item = strings.TrimSpace(item[len(item)-len(rest):])
			}
		}

		ref := cleanColumnRef(item)
		if ref == "" || ref == "1" || ref == "*" || strings.EqualFold(ref, "DISTINCT") {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// cleanColumnRef reduces one projection item to its effective column name.
func cleanColumnRef(item string) string {
	// Strip an explicit "AS alias" first, then a bare alias: the
	// expression ends at the first top-level whitespace.
	if idx := indexTopLevelWord(item, "AS"); idx >= 0 {
		item = strings.TrimSpace(item[:idx])
	} else if idx := indexTopLevelSpace(item); idx >= 0 {
		item = strings.TrimSpace(item[:idx])
	}

	// A function call contributes its inner argument as the effective
	// column reference, e.g. UPPER(email) -> email.
	if m := funcCallPattern.FindStringSubmatch(item); m != nil {
		item = strings.TrimSpace(m[1])
		// COUNT(DISTINCT email) -> email
		if rest, found := strings.CutPrefix(strings.ToUpper(item), "DISTINCT "); found {
			item = strings.TrimSpace(item[len(item)-len(rest):])
		}
	}

	// table.column -> column
	if strings.Contains(item, ".") {
		parts := strings.Split(item, ".")
		item = parts[len(parts)-1]
	}

	return strings.Trim(item, "`\"'[]")
}

// splitTopLevel splits on a separator, ignoring occurrences inside
// parentheses.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// indexTopLevelSpace returns the index of the first whitespace outside
// parentheses, or -1.
func indexTopLevelSpace(s string) int {
	depth := 0
	for i, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case (r == ' ' || r == '\t' || r == '\n') && depth == 0:
			return i
		}
	}
	return -1
}

// indexTopLevelWord returns the index of a standalone keyword (case
// insensitive, outside parentheses), or -1.
func indexTopLevelWord(s, word string) int {
	upper := strings.ToUpper(s)
	target := " " + strings.ToUpper(word) + " "
	depth := 0
	for i := 0; i+len(target) <= len(upper); i++ {
		switch upper[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && upper[i:i+len(target)] == target {
			return i
		}
	}
	return -1
}
