package loadgen

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/queryshield/queryshield/internal/queryshield/audit"
	"github.com/queryshield/queryshield/internal/queryshield/catalog"
	"github.com/queryshield/queryshield/internal/queryshield/executor"
	"github.com/queryshield/queryshield/internal/queryshield/pipeline"
	"github.com/queryshield/queryshield/internal/queryshield/sanitize"
	"github.com/queryshield/queryshield/internal/queryshield/validator"
)

// fakeExecutor satisfies executor.Executor with generated rows, so a load
// run exercises the full pipeline without a live database.
type fakeExecutor struct{}

func (fakeExecutor) Execute(ctx context.Context, target executor.Target, statement string) (*executor.Rowset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := gofakeit.Number(1, 20)
	rs := &executor.Rowset{Columns: []string{"value"}}
	for i := 0; i < rows; i++ {
		rs.Rows = append(rs.Rows, map[string]any{"value": gofakeit.Word()})
	}
	return rs, nil
}

// Run feeds a generated request file through the safety pipeline,
// populating the audit partitions under cfg.AuditDir.
func Run(configPath *string) {
	cfg, err := readConfig(*configPath)
	if err != nil {
		log.Fatalf("[FATAL] Error loading config: %v", err)
	}

	gofakeit.Seed(cfg.Seed)

	trail, err := audit.NewTrail(cfg.AuditDir)
	if err != nil {
		log.Fatalf("[FATAL] open audit trail: %v", err)
	}

	p := pipeline.New(validator.New(), sanitize.New(catalog.Default()), trail, fakeExecutor{}, 10*time.Second)

	f, err := os.Open(cfg.Output)
	if err != nil {
		log.Fatalf("[FATAL] open request file: %v", err)
	}
	defer f.Close()

	var total, allowed, blocked, sanitized int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("[WARN] skipping malformed request line: %v", err)
			continue
		}
		total++

		result, err := p.Run(context.Background(), pipeline.Request{
			UserID:     req.User,
			Question:   req.Question,
			Statement:  req.Statement,
			SchemaText: RetailSchema,
			Target:     executor.Target{Backend: "mysql", Database: "retail"},
		})

		var rejected *pipeline.RejectedError
		switch {
		case errors.As(err, &rejected):
			blocked++
		case err != nil:
			log.Printf("[WARN] pipeline error: %v", err)
		default:
			allowed++
			if result != nil && len(result.Blocked) > 0 {
				sanitized++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("[FATAL] read request file: %v", err)
	}

	fmt.Printf("processed %d requests: %d allowed (%d sanitized), %d rejected\n",
		total, allowed, sanitized, blocked)
}
