package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graveldb/gravel/internal/domdef"
)

// Error codes used in CLI output.
const (
	ErrCodeGeneric = "E001"
	ErrCodeLoad    = "E002"
	ErrCodeCompile = "E003"
)

// ValidationIssue is one problem found in a domain definition.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds the outcome of validating a definition directory.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Domain string            `json:"domain,omitempty"`
	Roots  int               `json:"roots"`
	Timers int               `json:"timers"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition-dir>",
		Short: "Validate a CUE domain definition",
		Long: `Validate a CUE domain definition directory without materializing it.

Checks the top-level domain struct: name, secret, snapshot policy, declared
roots, and timer schedules.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	def, err := domdef.Load(dir)
	if err != nil {
		var cerr *domdef.CompileError
		if errors.As(err, &cerr) {
			return outputValidationErrors(formatter, []ValidationIssue{{
				Field:   cerr.Field,
				Message: cerr.Message,
				Line:    lineOf(cerr),
			}})
		}
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading definition", err)
	}

	formatter.VerboseLog("Compiled domain %q: %d root(s), %d timer(s)",
		def.Name, len(def.Roots), len(def.Timers))

	result := ValidationResult{
		Valid:  true,
		Domain: def.Name,
		Roots:  len(def.Roots),
		Timers: len(def.Timers),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ domain %q valid (%d roots, %d timers)\n",
		def.Name, len(def.Roots), len(def.Timers))
	return nil
}

func lineOf(cerr *domdef.CompileError) int {
	if cerr.Pos.IsValid() {
		return cerr.Pos.Line()
	}
	return 0
}

func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: false, Errors: issues}
		if err := formatter.Error(ErrCodeCompile, issues[0].Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "  %s (line %d): %s\n", issue.Field, issue.Line, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Field, issue.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
