package audit

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// EntryFilter reports whether an entry matches some criterion. Filters
// compose with AND logic; a missing or unparsable field is a non-match.
type EntryFilter func(Entry) bool

// FilterByUser matches entries by user identity, case-insensitively.
func FilterByUser(user string) EntryFilter {
	return func(e Entry) bool {
		return strings.EqualFold(e.UserID, user)
	}
}

// FilterByStatus matches entries with the given status
// (allowed, blocked, error).
func FilterByStatus(status string) EntryFilter {
	return func(e Entry) bool {
		return strings.EqualFold(e.Status, status)
	}
}

// FilterSince matches entries whose timestamp is on or after the cutoff.
// Timestamps that fail to parse are treated as non-matches.
func FilterSince(cutoff time.Time) EntryFilter {
	return func(e Entry) bool {
		ts, err := dateparse.ParseAny(e.Timestamp)
		if err != nil {
			return false
		}
		return !ts.Before(cutoff)
	}
}

// matchAll applies all filters with AND logic.
func matchAll(e Entry, filters []EntryFilter) bool {
	for _, f := range filters {
		if !f(e) {
			return false
		}
	}
	return true
}
