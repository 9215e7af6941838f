package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/queryshield/queryshield/internal/queryshield/audit"
	"github.com/queryshield/queryshield/internal/queryshield/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query recent audit trail entries",
	Long: `Audit scans the most recent daily audit partitions (up to seven
days) and prints matching entries as NDJSON, newest first. With
--violations the HIGH severity security violation series is scanned
instead. This is a preview over recent activity, not an archive export.`,
	RunE: runAudit,
}

var (
	auditFlagUser       string
	auditFlagStatus     string
	auditFlagSince      string
	auditFlagLimit      int
	auditFlagViolations bool
	auditFlagSummary    bool
)

func init() {
	auditCmd.Flags().StringVar(&auditFlagUser, "user", "", "filter by user identity")
	auditCmd.Flags().StringVar(&auditFlagStatus, "status", "", "filter by status (allowed, blocked, error)")
	auditCmd.Flags().StringVar(&auditFlagSince, "since", "", "only entries on or after this time (any common format)")
	auditCmd.Flags().IntVar(&auditFlagLimit, "limit", 50, "maximum entries to return (0 = no limit)")
	auditCmd.Flags().BoolVar(&auditFlagViolations, "violations", false, "scan the security violation series")
	auditCmd.Flags().BoolVar(&auditFlagSummary, "summary", false, "print status counts instead of entries")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	trail, err := audit.NewTrail(cfg.Audit.Dir)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}

	opts := audit.QueryOptions{
		User:       auditFlagUser,
		Status:     auditFlagStatus,
		Limit:      auditFlagLimit,
		Violations: auditFlagViolations,
	}
	if auditFlagSince != "" {
		since, err := dateparse.ParseAny(auditFlagSince)
		if err != nil {
			return fmt.Errorf("parse --since value %q: %w", auditFlagSince, err)
		}
		opts.Since = since.UTC()
	}

	entries := trail.Query(opts)

	if auditFlagSummary {
		counts := map[string]int{}
		for _, e := range entries {
			counts[e.Status]++
		}
		fmt.Fprintf(os.Stderr, "entries: %d\n", len(entries))
		for status, n := range counts {
			fmt.Fprintf(os.Stderr, "  %s: %d\n", status, n)
		}
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
	}
	return nil
}
