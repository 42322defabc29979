package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"veridion-hq/sentinel/pkg/cli"
	"veridion-hq/sentinel/pkg/policy"
)

var validateFlags struct {
	file   string
	dir    string
	format string
}

type validateResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Policies int      `json:"policies"`
	Errors   []string `json:"errors,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate policy files",
	Long: `Validate policy files for syntax and configuration errors.

The validate command parses policy files and checks:
  - YAML syntax
  - Policy types and rule configurations
  - Circuit breaker settings (thresholds, windows, cooldowns)
  - Canary settings (percentages, promotion/rollback thresholds)

Examples:
  # Validate a single file
  sentinel validate --file policies.yaml

  # Validate a directory of policy files
  sentinel validate --dir policies/

  # JSON output for CI
  sentinel validate --file policies.yaml --format json`,
	RunE: validatePolicies,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "policy file to validate")
	validateCmd.Flags().StringVarP(&validateFlags.dir, "dir", "d", "", "directory of policy files")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validatePolicies(cmd *cobra.Command, args []string) error {
	if validateFlags.file == "" && validateFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if validateFlags.file != "" {
		files = append(files, validateFlags.file)
	}
	if validateFlags.dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(validateFlags.dir, pattern))
			if err != nil {
				return fmt.Errorf("failed to list policy files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no policy files found")
	}

	results := make([]validateResult, 0, len(files))
	failed := false
	for _, file := range files {
		res := validateFile(file)
		if !res.Valid {
			failed = true
		}
		results = append(results, res)
	}

	if validateFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		if err := formatter.FormatTo(os.Stdout, results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.Valid {
				fmt.Printf("✓ %s (%d policies)\n", res.File, res.Policies)
				continue
			}
			fmt.Printf("✗ %s\n", res.File)
			for _, msg := range res.Errors {
				fmt.Printf("    %s\n", msg)
			}
		}
	}

	if failed {
		return cli.NewCommandError("validate", fmt.Errorf("validation failed"))
	}
	return nil
}

func validateFile(path string) validateResult {
	res := validateResult{File: path}

	src := policy.NewFileSource(path, nil)
	policies, err := src.Load()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	res.Policies = len(policies)
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if err := policy.ValidatePolicy(p); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
		if seen[p.ID] {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate policy id %q", p.ID))
		}
		seen[p.ID] = true
	}

	res.Valid = len(res.Errors) == 0
	return res
}
