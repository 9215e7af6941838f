package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/queryshield/queryshield/internal/queryshield/audit"
	"github.com/queryshield/queryshield/internal/queryshield/catalog"
	"github.com/queryshield/queryshield/internal/queryshield/config"
	"github.com/queryshield/queryshield/internal/queryshield/executor"
	"github.com/queryshield/queryshield/internal/queryshield/logger"
	"github.com/queryshield/queryshield/internal/queryshield/pipeline"
	"github.com/queryshield/queryshield/internal/queryshield/sanitize"
	"github.com/queryshield/queryshield/internal/queryshield/validator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one SQL statement through the safety pipeline",
	Long: `Run validates a generated SQL statement, strips or substitutes
sensitive column access, optionally executes the sanitized statement
against a configured backend, and records the decision on the audit
trail.

The statement is assumed to come from an external natural-language
translation step; the question itself is recorded for audit purposes
only. With --dry-run the pipeline stops after sanitization and prints
the statement that would have been executed.`,
	RunE: runPipeline,
}

var (
	runFlagUser      string
	runFlagBackend   string
	runFlagQuestion  string
	runFlagStatement string
	runFlagInput     string
	runFlagSchema    string
	runFlagDryRun    bool
)

func init() {
	runCmd.Flags().StringVar(&runFlagUser, "user", "", "user identity for audit records (required)")
	runCmd.Flags().StringVar(&runFlagBackend, "backend", "", "named backend from config (required unless --dry-run)")
	runCmd.Flags().StringVar(&runFlagQuestion, "question", "", "original natural-language question (audit only)")
	runCmd.Flags().StringVar(&runFlagStatement, "statement", "", "SQL statement to run")
	runCmd.Flags().StringVar(&runFlagInput, "input", "", "file containing the SQL statement (alternative to --statement)")
	runCmd.Flags().StringVar(&runFlagSchema, "schema", "", "file containing the textual schema description")
	runCmd.Flags().BoolVar(&runFlagDryRun, "dry-run", false, "stop after sanitization, do not execute")

	runCmd.MarkFlagRequired("user")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	statement := runFlagStatement
	if statement == "" && runFlagInput != "" {
		data, err := os.ReadFile(runFlagInput)
		if err != nil {
			return fmt.Errorf("read statement file: %w", err)
		}
		statement = strings.TrimSpace(string(data))
	}
	if statement == "" {
		return fmt.Errorf("either --statement or --input is required")
	}

	var schemaText string
	if runFlagSchema != "" {
		data, err := os.ReadFile(runFlagSchema)
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		schemaText = string(data)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	trail, err := audit.NewTrail(cfg.Audit.Dir)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}

	var target executor.Target
	var exec executor.Executor
	if !runFlagDryRun {
		backend, ok := cfg.Backends[runFlagBackend]
		if !ok {
			return fmt.Errorf("backend %q not found in config", runFlagBackend)
		}
		target = executor.Target{
			Backend:  backend.Kind,
			DSN:      backend.DSN,
			Database: runFlagBackend,
		}
		exec = executor.NewSQLExecutor()
	}

	p := pipeline.New(validator.New(), sanitize.New(cat), trail, exec, cfg.ExecutionTimeout())

	result, err := p.Run(context.Background(), pipeline.Request{
		UserID:     runFlagUser,
		Question:   runFlagQuestion,
		Statement:  statement,
		SchemaText: schemaText,
		Target:     target,
	})

	var rejected *pipeline.RejectedError
	if errors.As(err, &rejected) {
		fmt.Fprintf(os.Stderr, "REJECTED: %s\n", rejected.Reason)
		os.Exit(2)
	}

	// Execution errors still carry a result worth showing.
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return fmt.Errorf("encode result: %w", encErr)
		}
	}
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	return nil
}

// loadCatalog returns the configured catalog file or the built-in default.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.File == "" {
		logger.L().Debug("No catalog file configured, using built-in catalog")
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}
