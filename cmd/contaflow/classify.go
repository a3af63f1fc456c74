// Package main contains the contaflow CLI commands.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amplafin/contaflow/internal/cli"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify and post a month of bank transactions",
		Long: `Classify every pending transaction of a period.

Each transaction runs through the user-defined rules first, then the
heuristic fallback chain. Confident decisions are posted as balanced
double-entry records immediately; uncertain ones are escalated with a
question for human review.

Examples:
  contaflow classify --period 2025-03
  contaflow classify --period 2025-03 --auto-threshold 0.9`,
		RunE: runClassify,
	}

	cmd.Flags().StringP("period", "p", "", "Period to classify (format: 2025-01)")
	cmd.Flags().Float64("auto-threshold", 0, "Override the minimum confidence for automatic posting")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("classify.period", cmd.Flags().Lookup("period"))
	_ = viper.BindPFlag("classify.auto_threshold", cmd.Flags().Lookup("auto-threshold"))

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	year, month, err := parsePeriod(viper.GetString("classify.period"))
	if err != nil {
		return err
	}

	slog.Info("Starting transaction classification",
		"year", year,
		"month", month)

	workflow, store, err := initWorkflow(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if threshold := viper.GetFloat64("classify.auto_threshold"); threshold > 0 {
		if threshold > 1 {
			return fmt.Errorf("auto-threshold must be in (0, 1], got %.2f", threshold)
		}
		workflow.SetAutoThreshold(threshold)
	}

	var bar *progressbar.ProgressBar
	stats, err := workflow.ClassifyMonth(ctx, year, month, func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]Classifying transactions...[reset]"),
			)
		}
		_ = bar.Set(done)
	})
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	summary := strings.Join([]string{
		fmt.Sprintf("Transactions: %d", stats.Total),
		cli.SuccessStyle.Render(fmt.Sprintf("Posted automatically: %d", stats.Auto)),
		cli.WarningStyle.Render(fmt.Sprintf("Escalated for review: %d", stats.Escalated)),
		cli.InfoStyle.Render(fmt.Sprintf("Skipped: %d", stats.Skipped)),
		cli.ErrorStyle.Render(fmt.Sprintf("Errors: %d", stats.Errors)),
		cli.SubtleStyle.Render(fmt.Sprintf("Took %s", stats.Duration.Round(time.Millisecond))),
	}, "\n")
	fmt.Println(cli.RenderBox(fmt.Sprintf("Classification %04d-%02d", year, month), summary))

	return nil
}

// parsePeriod parses a YYYY-MM period string, defaulting to the previous
// month when empty.
func parsePeriod(period string) (int, int, error) {
	if period == "" {
		now := time.Now().UTC()
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return prev.Year(), int(prev.Month()), nil
	}

	parsed, err := time.Parse("2006-01", period)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid period format (use YYYY-MM): %w", err)
	}
	return parsed.Year(), int(parsed.Month()), nil
}
