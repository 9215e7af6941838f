package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/queryshield/queryshield/internal/queryshield/audit"
	"github.com/queryshield/queryshield/internal/queryshield/executor"
	"github.com/queryshield/queryshield/internal/queryshield/logger"
	"github.com/queryshield/queryshield/internal/queryshield/sanitize"
	"github.com/queryshield/queryshield/internal/queryshield/validator"
)

// Request is one pipeline invocation: a generated SQL statement plus the
// context needed to execute and audit it. Requests are independent; the
// pipeline holds no per-request state.
type Request struct {
	UserID     string
	Question   string // natural-language input, audit only
	Statement  string // candidate SQL from the translation step
	SchemaText string // textual schema description for wildcard expansion
	Target     executor.Target
}

// Result is what the caller gets back for display and audit purposes.
type Result struct {
	ExecutedStatement string                   `json:"executed_statement"`
	OriginalStatement string                   `json:"original_statement"`
	Blocked           []sanitize.BlockedColumn `json:"blocked_columns,omitempty"`
	Warnings          []string                 `json:"warnings,omitempty"`
	Success           bool                     `json:"success"`
	RowsReturned      int                      `json:"rows_returned"`
	ExecutionTimeMs   int64                    `json:"execution_time_ms"`
	Rows              *executor.Rowset         `json:"rows,omitempty"`
}

// Pipeline sequences Validator -> Sanitizer -> execution -> Audit Trail.
// Steps run sequentially and synchronously within one request; the only
// suspension point is the external execution call, which runs under a
// hard deadline.
type Pipeline struct {
	validator *validator.Validator
	sanitizer *sanitize.Sanitizer
	trail     *audit.Trail
	executor  executor.Executor // nil skips execution (dry run)
	timeout   time.Duration
}

// New assembles a pipeline. A nil executor makes Run stop after
// sanitization, which is how dry runs and tests drive the safety path.
func New(v *validator.Validator, s *sanitize.Sanitizer, t *audit.Trail, ex executor.Executor, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		validator: v,
		sanitizer: s,
		trail:     t,
		executor:  ex,
		timeout:   timeout,
	}
}

// Run flows one request through the pipeline exactly once: no step is
// retried, and exactly one audit entry is recorded whatever the outcome.
// A rejected or failed request still produces its entry; audit write
// failures are absorbed inside the trail and never affect the returned
// values.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	entry := audit.NewEntry(req.UserID)
	entry.Database = req.Target.Database
	entry.Backend = req.Target.Backend
	entry.Question = req.Question
	entry.Generated = req.Statement

	// Deferred so the entry lands even when the caller abandons the
	// request mid-flight.
	defer func() { p.trail.Record(entry) }()

	res := &Result{OriginalStatement: req.Statement}

	// Step 1: statement safety.
	outcome := p.validator.Validate(req.Statement)
	if !outcome.Safe {
		entry.Status = audit.StatusBlocked
		entry.Reason = outcome.Reason
		logger.L().Warnw("Statement rejected",
			"user", req.UserID,
			"reason", outcome.Reason,
			"pattern", outcome.MatchedPattern)
		return nil, &RejectedError{Reason: outcome.Reason, Pattern: outcome.MatchedPattern}
	}

	// Step 2: column sanitization.
	sanitized := p.sanitizer.Sanitize(req.Statement, req.SchemaText)
	res.ExecutedStatement = sanitized.Statement
	res.Blocked = sanitized.Blocked
	res.Warnings = sanitized.Warnings

	entry.Status = audit.StatusAllowed
	entry.Executed = sanitized.Statement
	entry.Blocked = sanitized.Blocked
	entry.Warnings = sanitized.Warnings

	// A blocked sensitive-column request is a security violation in its
	// own right, recorded on the HIGH severity series independently of
	// the regular entry.
	if len(sanitized.Blocked) > 0 {
		v := audit.NewViolation(req.UserID, req.Statement, sanitized.Blocked)
		v.Database = req.Target.Database
		v.Backend = req.Target.Backend
		v.Reason = "sensitive column access attempt"
		p.trail.RecordViolation(v)
	}

	// Step 3: external execution under a hard deadline.
	if p.executor == nil {
		res.Success = true
		return res, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	rowset, err := p.executor.Execute(execCtx, req.Target, sanitized.Statement)
	elapsed := time.Since(start).Milliseconds()
	res.ExecutionTimeMs = elapsed

	if err != nil {
		kind := KindBackend
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		entry.SetExecution(elapsed, 0)
		entry.SetError(err.Error())
		logger.L().Errorw("Execution failed",
			"user", req.UserID,
			"kind", kind,
			"error", err)
		return res, &ExecutionError{Kind: kind, Statement: sanitized.Statement, Err: err}
	}

	res.Success = true
	res.Rows = rowset
	if rowset != nil {
		res.RowsReturned = len(rowset.Rows)
	}
	entry.SetExecution(elapsed, res.RowsReturned)

	logger.L().Infow("Pipeline run completed",
		"user", req.UserID,
		"status", entry.Status,
		"blocked_columns", len(sanitized.Blocked),
		"rows", res.RowsReturned,
		"execution_ms", elapsed)

	return res, nil
}
