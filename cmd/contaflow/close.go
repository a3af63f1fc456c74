package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amplafin/contaflow/internal/cli"
	"github.com/amplafin/contaflow/internal/model"
)

func closeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close a month once every guard check passes",
		Long: `Close an accounting period.

A month can only close when every transaction is reconciled, every ledger
entry balances, and every suspense account nets to zero. When any check
fails the period is marked blocked with the full list of reasons instead
of closing.

Examples:
  contaflow close --period 2025-03
  contaflow close --period 2025-03 --dry-run`,
		RunE: runClose,
	}

	cmd.Flags().StringP("period", "p", "", "Period to close (format: 2025-01)")
	cmd.Flags().Bool("dry-run", false, "Report the guard checks without changing the period state")

	_ = viper.BindPFlag("close.period", cmd.Flags().Lookup("period"))
	_ = viper.BindPFlag("close.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

func runClose(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	year, month, err := parsePeriod(viper.GetString("close.period"))
	if err != nil {
		return err
	}
	dryRun := viper.GetBool("close.dry_run")

	workflow, store, err := initWorkflow(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	status, err := workflow.MonthStatus(ctx, year, month)
	if err != nil {
		return fmt.Errorf("failed to load month status: %w", err)
	}

	lines := []string{
		fmt.Sprintf("Status: %s", renderStatus(status.Closing.Status)),
		fmt.Sprintf("Transactions: %d (%d reconciled, %d pending)",
			status.Total, status.Reconciled, status.Pending),
	}
	for _, balance := range status.SuspenseBalances {
		line := fmt.Sprintf("Suspense %s (%s): %.2f", balance.Account, balance.AccountName, balance.Net())
		if balance.IsZero() {
			lines = append(lines, cli.SuccessStyle.Render(line))
		} else {
			lines = append(lines, cli.WarningStyle.Render(line))
		}
	}
	fmt.Println(cli.RenderBox(fmt.Sprintf("Period %04d-%02d", year, month), strings.Join(lines, "\n")))

	if dryRun {
		zero, _, validateErr := workflow.ValidateTransitoryZero(ctx, year, month)
		if validateErr != nil {
			return fmt.Errorf("validation failed: %w", validateErr)
		}
		if zero && status.Pending == 0 {
			fmt.Println(cli.FormatSuccess("All guard checks pass, the period is ready to close"))
		} else {
			fmt.Println(cli.FormatWarning("The period is not ready to close"))
		}
		return nil
	}

	result, err := workflow.CloseMonthGuarded(ctx, year, month)
	if err != nil {
		return fmt.Errorf("close failed: %w", err)
	}

	if !result.OK {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Period %04d-%02d is blocked:", year, month)))
		for _, reason := range result.BlockedBy {
			fmt.Println("  " + cli.ErrorStyle.Render("• "+reason))
		}
		return nil
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s Period %04d-%02d closed", cli.LockIcon, year, month)))
	return nil
}

func renderStatus(status model.ClosingStatus) string {
	switch status {
	case model.ClosingClosed:
		return cli.SuccessStyle.Render(string(status))
	case model.ClosingBlocked:
		return cli.ErrorStyle.Render(string(status))
	default:
		return cli.InfoStyle.Render(string(status))
	}
}
