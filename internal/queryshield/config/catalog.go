package config

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// CatalogSpec is the on-disk shape of the sensitive column catalog.
// Categories = credentials, payment, pii, tokens, etc.
// SafeAlternatives maps a subset of patterns to aggregate SQL fragments
// used when every requested column is blocked.
type CatalogSpec struct {
	Categories       map[string][]string `json:"categories"`
	SafeAlternatives map[string]string   `json:"safe_alternatives"`
}

// ValidateCatalog validates the sensitive column catalog JSON.
// Returns the parsed spec and the sorted list of category names.
func ValidateCatalog(r io.Reader) (*CatalogSpec, []string, error) {
	var spec CatalogSpec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return nil, nil, fmt.Errorf("failed to decode catalog JSON: %w", err)
	}

	if len(spec.Categories) == 0 {
		return nil, nil, fmt.Errorf("no catalog categories found")
	}

	patterns := map[string]bool{}
	var categories []string
	for category, pats := range spec.Categories {
		if category == "" {
			return nil, nil, fmt.Errorf("catalog category name must not be empty")
		}
		if len(pats) == 0 {
			return nil, nil, fmt.Errorf("category %q must not be empty", category)
		}
		for i, p := range pats {
			if p == "" {
				return nil, nil, fmt.Errorf("pattern %d in %q is empty", i, category)
			}
			if p != strings.ToLower(p) {
				return nil, nil, fmt.Errorf("pattern %q in %q must be lowercase", p, category)
			}
			if patterns[p] {
				return nil, nil, fmt.Errorf("pattern %q declared more than once", p)
			}
			patterns[p] = true
		}
		categories = append(categories, category)
	}
	sort.Strings(categories)

	// Safe alternatives must reference declared patterns.
	for pattern, alt := range spec.SafeAlternatives {
		if !patterns[pattern] {
			return nil, nil, fmt.Errorf("safe alternative references unknown pattern %q", pattern)
		}
		if strings.TrimSpace(alt) == "" {
			return nil, nil, fmt.Errorf("safe alternative for %q is empty", pattern)
		}
	}

	return &spec, categories, nil
}
