package validator

import (
	"regexp"
	"strings"

	"github.com/queryshield/queryshield/internal/queryshield/logger"
)

// Outcome is the result of validating one SQL statement.
type Outcome struct {
	Safe           bool   `json:"safe"`
	Reason         string `json:"reason,omitempty"`
	MatchedPattern string `json:"matched_pattern,omitempty"`
}

// denyRule pairs a human-readable name with a compiled pattern.
// The name is surfaced in rejection reasons so audit records can show
// which rule fired.
type denyRule struct {
	name    string
	pattern *regexp.Regexp
}

// Validator classifies raw SQL statements as safe-to-execute or rejected.
// It is a pure pattern-matching layer, not a SQL parser: statement shape is
// detected with regex heuristics against the raw text. Known limitation:
// the UNION and comment rules also fire inside string literals; this is
// deliberately conservative and must not be narrowed.
type Validator struct {
	denyRules []denyRule
}

// allowedPrefixes is the set of permitted leading statement keywords.
// Anything not starting with one of these is rejected.
var allowedPrefixes = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

// New compiles the denylist and returns a ready validator.
func New() *Validator {
	rules := []denyRule{
		{"drop_object", regexp.MustCompile(`(?i)\bDROP\s+(TABLE|DATABASE|SCHEMA|INDEX|VIEW)\b`)},
		{"truncate_table", regexp.MustCompile(`(?i)\bTRUNCATE\b`)},
		{"alter_object", regexp.MustCompile(`(?i)\bALTER\s+(TABLE|DATABASE|SCHEMA|VIEW)\b`)},
		{"create_object", regexp.MustCompile(`(?i)\bCREATE\s+(TABLE|DATABASE|SCHEMA|INDEX|VIEW)\b`)},
		{"grant_privilege", regexp.MustCompile(`(?i)\bGRANT\b`)},
		{"revoke_privilege", regexp.MustCompile(`(?i)\bREVOKE\b`)},
		{"dynamic_exec", regexp.MustCompile(`(?i)\bEXEC(UTE)?\b`)},
		{"union_select", regexp.MustCompile(`(?i)\bUNION\b[\s\S]*\bSELECT\b`)},
		{"chained_destructive", regexp.MustCompile(`(?i);\s*(DROP|DELETE)\b`)},
		{"line_comment", regexp.MustCompile(`--`)},
		{"block_comment", regexp.MustCompile(`/\*`)},
		{"shell_procedure", regexp.MustCompile(`(?i)\bxp_cmdshell\b`)},
		{"dynamic_sql_procedure", regexp.MustCompile(`(?i)\bsp_executesql\b`)},
	}
	return &Validator{denyRules: rules}
}

// Validate classifies a raw SQL statement. Checks run in a fixed order:
// denylist first (fail fast on the first match), then the read-only
// allow-set on the leading keyword, then the statement separator rule.
// The first violation found is the one reported. Pure function, no side
// effects beyond debug logging.
func (v *Validator) Validate(statement string) Outcome {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return Outcome{Safe: false, Reason: "empty statement"}
	}

	// Denylist: matched against the raw text so comment-based injection
	// still trips the comment rules.
	for _, rule := range v.denyRules {
		if rule.pattern.MatchString(trimmed) {
			logger.L().Debugw("Statement rejected by denylist",
				"rule", rule.name,
				"pattern", rule.pattern.String())
			return Outcome{
				Safe:           false,
				Reason:         "statement matches denylisted pattern: " + rule.name,
				MatchedPattern: rule.pattern.String(),
			}
		}
	}

	// Allow-set: statement must begin with a read-only keyword.
	upper := strings.ToUpper(trimmed)
	keyword := upper
	if i := strings.IndexAny(upper, " \t\r\n("); i > 0 {
		keyword = upper[:i]
	}
	allowed := false
	for _, prefix := range allowedPrefixes {
		if keyword == prefix {
			allowed = true
			break
		}
	}
	if !allowed {
		logger.L().Debugw("Statement rejected by allow-set", "keyword", keyword)
		return Outcome{
			Safe:   false,
			Reason: "only SELECT, SHOW, DESCRIBE and EXPLAIN statements are permitted (got " + keyword + ")",
		}
	}

	// Multi-statement batches are never permitted, even when every
	// segment would individually pass.
	if strings.Count(trimmed, ";") > 0 {
		logger.L().Debugw("Statement rejected: contains statement separator")
		return Outcome{
			Safe:           false,
			Reason:         "multi-statement batches are not permitted",
			MatchedPattern: ";",
		}
	}

	return Outcome{Safe: true}
}
