package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/queryshield/queryshield/internal/queryshield/config"
	"github.com/queryshield/queryshield/internal/queryshield/logger"
)

// GenericSafeAlternative replaces a fully blocked projection when no
// pattern-specific alternative is configured.
const GenericSafeAlternative = "COUNT(*) AS record_count"

// Catalog is the process-wide set of sensitive column patterns.
// Patterns are lowercase substrings matched case-insensitively against
// column names. The catalog is immutable after construction.
type Catalog struct {
	// categories in iteration order; patterns keep declaration order
	categories []string
	patterns   map[string][]string

	// pattern -> aggregate SQL fragment used when all columns are blocked
	safeAlternatives map[string]string
}

// Default returns the built-in catalog. It covers credential material,
// payment data, government identifiers and API/session secrets.
func Default() *Catalog {
	return build(map[string][]string{
		"credentials": {
			"password", "passwd", "pwd", "secret", "private_key", "auth_token",
			"security_answer", "otp",
		},
		"payment": {
			"credit_card", "card_number", "cvv", "cvc", "iban",
			"routing_number", "bank_account",
		},
		"pii": {
			"ssn", "social_security", "tax_id", "passport", "national_id",
			"license_number", "date_of_birth",
		},
		"tokens": {
			"token", "api_key", "apikey", "access_key", "session_key",
			"refresh_token", "client_secret",
		},
	}, map[string]string{
		"password":    "COUNT(*) as users_with_password",
		"ssn":         "COUNT(*) as ssn_count",
		"credit_card": "COUNT(*) as card_count",
		"card_number": "COUNT(*) as card_count",
		"api_key":     "COUNT(*) as api_key_count",
		"token":       "COUNT(*) as token_count",
	})
}

// Load reads and validates a catalog JSON file.
func Load(path string) (*Catalog, error) {
	logger.L().Debugw("Loading sensitive column catalog", "path", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file %s: %w", path, err)
	}
	defer file.Close()

	spec, categories, err := config.ValidateCatalog(file)
	if err != nil {
		return nil, fmt.Errorf("failed to validate catalog: %w", err)
	}

	logger.L().Debugw("Catalog validation successful",
		"categories", len(categories),
		"category_names", strings.Join(categories, ","))

	return build(spec.Categories, spec.SafeAlternatives), nil
}

func build(patterns map[string][]string, alternatives map[string]string) *Catalog {
	c := &Catalog{
		patterns:         make(map[string][]string, len(patterns)),
		safeAlternatives: make(map[string]string, len(alternatives)),
	}
	for category, pats := range patterns {
		c.categories = append(c.categories, category)
		c.patterns[category] = append([]string(nil), pats...)
	}
	// Deterministic category iteration order for first-match semantics.
	sort.Strings(c.categories)
	for pattern, alt := range alternatives {
		c.safeAlternatives[pattern] = alt
	}
	return c
}

// Match reports whether a column name contains any catalog pattern.
// Matching is case-insensitive substring containment, so a column named
// user_password_hash matches the "password" pattern. The first hit in
// category order wins.
func (c *Catalog) Match(column string) (pattern, category string, ok bool) {
	lower := strings.ToLower(column)
	for _, cat := range c.categories {
		for _, p := range c.patterns[cat] {
			if strings.Contains(lower, p) {
				return p, cat, true
			}
		}
	}
	return "", "", false
}

// SafeAlternative returns the configured aggregate fragment for a pattern.
func (c *Catalog) SafeAlternative(pattern string) (string, bool) {
	alt, ok := c.safeAlternatives[pattern]
	return alt, ok
}

// CategoryNames returns the catalog's categories in iteration order.
func (c *Catalog) CategoryNames() []string {
	return append([]string(nil), c.categories...)
}

// PatternCount returns the total number of patterns across all categories.
func (c *Catalog) PatternCount() int {
	n := 0
	for _, pats := range c.patterns {
		n += len(pats)
	}
	return n
}
