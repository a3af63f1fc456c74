package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amplafin/contaflow/internal/cli"
	"github.com/amplafin/contaflow/internal/posting"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review and resolve escalated transactions",
		Long: `Work through the transactions classification could not decide on its own.

Each escalated transaction carries a question and, usually, a list of
suggested answers. Resolving one posts the confirmed accounts as a
balanced entry and teaches the classifier the description pattern, so
the next similar movement books automatically.

Examples:
  contaflow review list --period 2025-03
  contaflow review resolve txn-0042 --answer "supplier payment"`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions waiting for a human answer",
		RunE:  runReviewList,
	}
	list.Flags().StringP("period", "p", "", "Period to review (format: 2025-01)")
	_ = viper.BindPFlag("review.period", list.Flags().Lookup("period"))

	resolve := &cobra.Command{
		Use:   "resolve <transaction-id>",
		Short: "Answer an escalated transaction's question and post it",
		Args:  cobra.ExactArgs(1),
		RunE:  runReviewResolve,
	}
	resolve.Flags().String("answer", "", "Answer to the transaction's question")
	_ = resolve.MarkFlagRequired("answer")

	cmd.AddCommand(list)
	cmd.AddCommand(resolve)
	return cmd
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	year, month, err := parsePeriod(viper.GetString("review.period"))
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	escalations, err := store.GetEscalatedTransactions(ctx, year, month)
	if err != nil {
		return fmt.Errorf("failed to load escalated transactions: %w", err)
	}

	if len(escalations) == 0 {
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Nothing waiting for review in %04d-%02d", year, month)))
		return nil
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Pending Review %04d-%02d", year, month)))
	for _, esc := range escalations {
		txn := esc.Transaction
		fmt.Printf("%s  %s  %s %.2f\n",
			cli.BoldStyle.Render(txn.ID),
			txn.Date.Format("2006-01-02"),
			txn.Direction,
			txn.Amount)
		fmt.Println("  " + cli.SubtleStyle.Render(txn.Description))
		fmt.Println("  " + cli.InfoStyle.Render(esc.Decision.Question))
		for _, option := range esc.Decision.Options {
			fmt.Println("    • " + option)
		}
	}

	return nil
}

func runReviewResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	transactionID := args[0]
	answer, _ := cmd.Flags().GetString("answer")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	cfg, err := loadClassification()
	if err != nil {
		return err
	}

	svc := posting.NewService(store, cfg)
	entryID, decision, err := svc.Resolve(ctx, transactionID, answer)
	if err != nil {
		return fmt.Errorf("failed to resolve transaction: %w", err)
	}

	if entryID == "" {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("Answer %q was not understood", answer)))
		fmt.Println("  " + cli.InfoStyle.Render(decision.Question))
		for _, option := range decision.Options {
			fmt.Println("    • " + option)
		}
		return nil
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Posted %s -> %s as entry %s",
		decision.DebitAccount, decision.CreditAccount, entryID)))
	return nil
}
