package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amplafin/contaflow/internal/cli"
)

func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the company registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active companies and their partners",
		RunE:  runRegistryList,
	})

	return cmd
}

func runRegistryList(cmd *cobra.Command, _ []string) error {
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

	companies, err := store.GetActiveCompanies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load companies: %w", err)
	}

	if len(companies) == 0 {
		fmt.Println(cli.FormatInfo("No active companies in the registry"))
		return nil
	}

	fmt.Println(cli.FormatTitle("Company Registry"))
	for _, company := range companies {
		name := company.LegalName
		if company.TradeName != "" && company.TradeName != company.LegalName {
			name = fmt.Sprintf("%s (%s)", company.LegalName, company.TradeName)
		}
		fmt.Printf("%s %s\n", cli.BoldStyle.Render(company.ID), name)
		if company.TaxID != "" {
			fmt.Println("  " + cli.SubtleStyle.Render("Tax ID: "+company.TaxID))
		}
		for _, partner := range company.Partners {
			fmt.Printf("  %s %s\n", cli.SubtleStyle.Render("partner:"),
				fmt.Sprintf("%s (%s)", partner.Name, partner.Role))
		}
	}

	return nil
}
