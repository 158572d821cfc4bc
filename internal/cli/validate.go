package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate workflow syntax and semantics",
	Long: `Validate workflow documents for YAML syntax, schema compliance, and
semantic correctness (registry references, expression syntax, subworkflow
cycles).

Examples:
  laq validate workflow.laq.yaml
  laq validate *.laq.yaml
  laq validate --recursive ./workflows
  laq validate --output json workflow.laq.yaml`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateWorkflows(cmd, args); err != nil {
			os.Exit(1)
		}
	},
}

var (
	validateRecursive bool
	validateShowAll   bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVarP(&validateRecursive, "recursive", "r", false, "recursively validate files in directories")
	validateCmd.Flags().BoolVar(&validateShowAll, "show-all", false, "show all validation results, including successful ones")
}

// ValidationResult is the outcome of validating a single workflow file.
type ValidationResult struct {
	File     string   `json:"file" yaml:"file"`
	Valid    bool     `json:"valid" yaml:"valid"`
	Duration int64    `json:"duration_ms" yaml:"duration_ms"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// NewValidationResult starts a ValidationResult assumed valid until an
// error is collected.
func NewValidationResult(file string) *ValidationResult {
	return &ValidationResult{File: file, Valid: true}
}

// CollectError records a failure and flips the result to invalid.
func (r *ValidationResult) CollectError(err error) {
	r.Valid = false
	r.Errors = append(r.Errors, err.Error())
}

// ValidationSummary aggregates the results across every file validated in
// one invocation.
type ValidationSummary struct {
	Total   int                `json:"total" yaml:"total"`
	Valid   int                `json:"valid" yaml:"valid"`
	Invalid int                `json:"invalid" yaml:"invalid"`
	Results []ValidationResult `json:"results" yaml:"results"`
}

func validateWorkflows(cmd *cobra.Command, paths []string) error {
	files, err := collectWorkflowFiles(paths, validateRecursive)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", errorIcon, err)
		return err
	}

	summary := ValidationSummary{Total: len(files)}
	reg := buildRegistry()
	validator := engine.NewValidator(reg)

	for _, file := range files {
		start := time.Now()
		result := NewValidationResult(file)

		wf, err := ast.LoadFile(file)
		if err != nil {
			result.CollectError(err)
		} else if err := validator.Validate(wf); err != nil {
			result.CollectError(err)
		}

		result.Duration = time.Since(start).Milliseconds()
		if result.Valid {
			summary.Valid++
		} else {
			summary.Invalid++
		}
		summary.Results = append(summary.Results, *result)
	}

	printValidationSummary(cmd.OutOrStdout(), summary)

	if summary.Invalid > 0 {
		return fmt.Errorf("%d of %d workflows failed validation", summary.Invalid, summary.Total)
	}
	return nil
}

func collectWorkflowFiles(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory; pass --recursive to validate its contents", p)
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.HasSuffix(path, ".laq.yaml") || strings.HasSuffix(path, ".laq.yml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func printValidationSummary(w io.Writer, summary ValidationSummary) {
	switch viper.GetString("output") {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
		return
	case "yaml":
		out, _ := yaml.Marshal(summary)
		fmt.Fprint(w, string(out))
		return
	}

	for _, r := range summary.Results {
		if r.Valid && !validateShowAll {
			continue
		}
		if r.Valid {
			fmt.Fprintf(w, "%s %s\n", successIcon, r.File)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", errorIcon, r.File)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}

	fmt.Fprintln(w)
	summaryLine := lipgloss.NewStyle().Bold(true).Render(
		fmt.Sprintf("%d valid, %d invalid, %d total", summary.Valid, summary.Invalid, summary.Total))
	fmt.Fprintln(w, summaryLine)
}
