package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graveldb/gravel/internal/harness"
)

// ScenarioReport is the outcome of one scenario.
type ScenarioReport struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Commits int      `json:"commits"`
	Errors  []string `json:"errors,omitempty"`
}

// TestSummary aggregates a scenario run.
type TestSummary struct {
	Total   int              `json:"total"`
	Passed  int              `json:"passed"`
	Failed  int              `json:"failed"`
	Results []ScenarioReport `json:"results"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run YAML conformance scenarios",
		Long: `Run YAML conformance scenarios against fresh domains.

Each scenario executes its transactions with a deterministic clock and
secret, then checks its assertions against the change feed and the final
object graph.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(rootOpts, args[0], filter, cmd)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "run only scenarios whose name contains this substring")

	return cmd
}

func runTest(opts *RootOptions, dir, filter string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenarios, err := harness.LoadScenarios(dir)
	if err != nil {
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading scenarios", err)
	}
	if filter != "" {
		kept := scenarios[:0]
		for _, s := range scenarios {
			if strings.Contains(s.Name, filter) {
				kept = append(kept, s)
			}
		}
		scenarios = kept
	}
	if len(scenarios) == 0 {
		_ = formatter.Error(ErrCodeGeneric, "no scenarios matched", nil)
		return NewExitError(ExitCommandError, "no scenarios matched")
	}

	summary := TestSummary{Total: len(scenarios)}
	for _, s := range scenarios {
		formatter.VerboseLog("Running scenario %q (%d transaction(s))", s.Name, len(s.Transactions))
		rep := ScenarioReport{Name: s.Name}
		out, err := harness.Run(s)
		if err != nil {
			rep.Errors = []string{err.Error()}
		} else {
			rep.Pass = out.Pass
			rep.Commits = len(out.Trace)
			rep.Errors = out.Errors
		}
		if rep.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, rep)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(summary); err != nil {
			return err
		}
	} else {
		for _, rep := range summary.Results {
			if rep.Pass {
				fmt.Fprintf(formatter.Writer, "✓ %s (%d commit(s))\n", rep.Name, rep.Commits)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", rep.Name)
			for _, msg := range rep.Errors {
				fmt.Fprintf(formatter.Writer, "    %s\n", msg)
			}
		}
		fmt.Fprintf(formatter.Writer, "\n%d passed, %d failed (%d total)\n",
			summary.Passed, summary.Failed, summary.Total)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}
