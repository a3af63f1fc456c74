package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amplafin/contaflow/internal/cli"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage classification rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active classification rules by priority",
		RunE:  runRulesList,
	})

	return cmd
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	rules, err := store.GetActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if len(rules) == 0 {
		fmt.Println(cli.FormatInfo("No active rules configured"))
		return nil
	}

	fmt.Println(cli.FormatTitle("Classification Rules"))
	header := fmt.Sprintf("%-4s %-24s %-10s %-28s %-12s %s",
		"Pri", "Name", "Match", "Value", "Direction", "Accounts")
	fmt.Println(cli.TableHeaderStyle.Render(header))

	for _, rule := range rules {
		direction := "any"
		if rule.Direction != nil {
			direction = string(*rule.Direction)
		}
		accounts := fmt.Sprintf("%s / %s", rule.DebitAccount, rule.CreditAccount)
		if rule.IsRedirect() {
			accounts = cli.WarningStyle.Render("redirect")
		}
		row := fmt.Sprintf("%-4d %-24s %-10s %-28s %-12s %s",
			rule.Priority,
			truncate(rule.Name, 24),
			rule.MatchType,
			truncate(rule.MatchValue, 28),
			direction,
			accounts)
		if rule.RequiresApproval {
			row += " " + cli.SubtleStyle.Render("(requires approval)")
		}
		fmt.Println(row)
	}

	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.TrimSpace(s[:limit-1]) + "…"
}
