package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pilot/internal/app"
)

func newReplayCmd() *cobra.Command {
	var (
		journalPath string
		showMetrics bool
		plain       bool
	)

	cmd := &cobra.Command{
		Use:   "replay <scenario-glob>",
		Short: "Replay recorded sessions through the control layer",
		Long: `Replay runs each scenario file through memory management, confidence
tracking, reflection and the action gate, then prints what was decided at
every step. Patterns support ** (for example "scenarios/**/*.yaml").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			scenarios, err := app.LoadScenarios(args[0])
			if err != nil {
				return err
			}

			ctx, cleanup := app.WithSignalCancel(context.Background())
			defer cleanup()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, sc := range scenarios {
				report, err := a.Replay(ctx, sc)
				if report != nil {
					printReport(out, report, plain)
				}
				if err != nil {
					return err
				}
				if !report.Passed() {
					failed++
				}
			}

			if journalPath != "" {
				if err := writeJournal(a, journalPath); err != nil {
					return err
				}
			}
			if showMetrics && a.Metrics() != nil {
				fmt.Fprintln(out)
				if err := a.Metrics().WriteText(out); err != nil {
					return err
				}
			}

			printSummary(out, len(scenarios), failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios had expectation mismatches", failed, len(scenarios))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "write the decision journal as JSON lines to this file")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print metrics in Prometheus text format after the run")
	cmd.Flags().BoolVar(&plain, "plain", false, "print raw markdown instead of rendering it")
	return cmd
}

func writeJournal(a *app.App, path string) error {
	if a.Journal() == nil {
		return fmt.Errorf("audit journal is disabled in the configuration")
	}
	f, err := os.Create(path)
	if err != nil {
		return app.NewAppError(app.ErrCodeIO, "failed to create journal file", err)
	}
	defer f.Close()
	return a.Journal().WriteJSONL(f)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [scenario-glob]",
		Short: "Check the configuration and, optionally, scenario files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, okStyle.Render("config ok"))

			if len(args) == 0 {
				return nil
			}
			scenarios, err := app.LoadScenarios(args[0])
			if err != nil {
				return err
			}
			for _, sc := range scenarios {
				fmt.Fprintf(out, "%s %s (%d steps)\n", okStyle.Render("ok"), sc.Path(), len(sc.Steps))
			}
			return nil
		},
	}
}
