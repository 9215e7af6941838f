package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/queryshield/queryshield/internal/queryshield/config"
)

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and validate sensitive column catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a sensitive column catalog JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if catalogFile == "" {
			return fmt.Errorf("--catalog is required")
		}

		f, err := os.Open(catalogFile)
		if err != nil {
			return fmt.Errorf("open catalog file: %w", err)
		}
		defer f.Close()

		spec, categories, err := config.ValidateCatalog(f)
		if err != nil {
			return fmt.Errorf("catalog validation failed: %w", err)
		}

		patterns := 0
		for _, pats := range spec.Categories {
			patterns += len(pats)
		}
		fmt.Fprintf(os.Stdout, "catalog validated successfully\n")
		fmt.Fprintf(os.Stdout, "categories: %d, patterns: %d, safe alternatives: %d\n",
			len(categories), patterns, len(spec.SafeAlternatives))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd)

	catalogValidateCmd.Flags().StringVar(&catalogFile, "catalog", "", "Path to sensitive column catalog JSON file")

	_ = catalogValidateCmd.MarkFlagRequired("catalog")
}
