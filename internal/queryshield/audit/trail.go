package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/araddon/dateparse"

	"github.com/queryshield/queryshield/internal/queryshield/logger"
)

// Partition filename prefixes. One file per UTC calendar day per series.
const (
	queryPartitionPrefix     = "queries-"
	violationPartitionPrefix = "violations-"
	partitionExt             = ".ndjson"
)

// maxQueryPartitions bounds how many daily partitions a query scans.
// The trail is an audit preview, not a compliance archive; seven days is
// a deliberate cost/completeness trade-off.
const maxQueryPartitions = 7

// Trail is the append-only audit store. Partitions are NDJSON files named
// by UTC calendar date, created lazily on first write. Appends go through
// a mutex and a single write syscall so concurrent entries never
// interleave or truncate each other's lines.
type Trail struct {
	dir string
	mu  sync.Mutex
}

// NewTrail opens (creating if needed) the audit directory.
func NewTrail(dir string) (*Trail, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir %s: %w", dir, err)
	}
	return &Trail{dir: dir}, nil
}

// Record appends one entry to the day's query partition. Best-effort:
// failures are logged and swallowed so audit writes can never fail the
// primary request.
func (t *Trail) Record(e Entry) {
	t.append(queryPartitionPrefix, e.Timestamp, e)
}

// RecordViolation appends one HIGH severity entry to the day's violation
// partition. Same best-effort semantics as Record.
func (t *Trail) RecordViolation(v ViolationEntry) {
	t.append(violationPartitionPrefix, v.Timestamp, v)
}

func (t *Trail) append(prefix, timestamp string, record any) {
	line, err := json.Marshal(record)
	if err != nil {
		logger.L().Errorw("Failed to marshal audit record", "error", err)
		return
	}

	path := t.partitionPath(prefix, partitionDate(timestamp))

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.L().Errorw("Failed to open audit partition",
			"path", path,
			"error", err)
		return
	}
	defer f.Close()

	// One Write call per line keeps O_APPEND writes atomic.
	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.L().Errorw("Failed to append audit record",
			"path", path,
			"error", err)
	}
}

// QueryByUser returns at most limit entries for the given user, most
// recent first. It scans at most the 7 most recent daily query
// partitions, newest first, skipping malformed lines silently.
func (t *Trail) QueryByUser(userID string, limit int) []Entry {
	return t.Query(QueryOptions{User: userID, Limit: limit})
}

// QueryOptions narrows a partition scan. Zero values mean "no filter".
type QueryOptions struct {
	User       string
	Status     string
	Since      time.Time
	Limit      int
	Violations bool // scan the violation series instead
}

// Query scans recent partitions applying the options' filters. Entries
// come back most recent first. When Violations is set, violation records
// are unmarshaled into the Entry shape (shared field names) so callers
// get one result type.
func (t *Trail) Query(opts QueryOptions) []Entry {
	var filters []EntryFilter
	if opts.User != "" {
		filters = append(filters, FilterByUser(opts.User))
	}
	if opts.Status != "" {
		filters = append(filters, FilterByStatus(opts.Status))
	}
	if !opts.Since.IsZero() {
		filters = append(filters, FilterSince(opts.Since))
	}

	prefix := queryPartitionPrefix
	if opts.Violations {
		prefix = violationPartitionPrefix
	}

	var results []Entry
	today := time.Now().UTC()
	for day := 0; day < maxQueryPartitions; day++ {
		date := today.AddDate(0, 0, -day).Format("2006-01-02")
		path := t.partitionPath(prefix, date)

		entries := readPartition(path)
		// Lines within a file are oldest-first; walk backwards so the
		// overall result stays newest-first.
		for i := len(entries) - 1; i >= 0; i-- {
			if !matchAll(entries[i], filters) {
				continue
			}
			results = append(results, entries[i])
			if opts.Limit > 0 && len(results) >= opts.Limit {
				return results
			}
		}
	}
	return results
}

// readPartition parses one partition file into entries, skipping
// malformed lines. A missing file is an empty partition.
func readPartition(path string) []Entry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.L().Debugw("Skipping malformed audit line",
				"path", path,
				"error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		logger.L().Warnw("Partition scan aborted", "path", path, "error", err)
	}
	return entries
}

func (t *Trail) partitionPath(prefix, date string) string {
	return filepath.Join(t.dir, prefix+date+partitionExt)
}

// partitionDate extracts the UTC calendar date from an entry timestamp,
// falling back to today when the timestamp does not parse.
func partitionDate(timestamp string) string {
	if ts, err := dateparse.ParseAny(timestamp); err == nil {
		return ts.UTC().Format("2006-01-02")
	}
	return time.Now().UTC().Format("2006-01-02")
}
