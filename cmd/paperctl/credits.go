package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/paperscore/internal/infra/db/postgres"
	"github.com/bryanwahyu/paperscore/internal/middleware"
)

func newCreditsCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant owner credits",
	}

	var reason string
	grant := &cobra.Command{
		Use:   "grant <owner> <amount>",
		Short: "Add credits to an owner's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := middleware.ValidateOwnerID(args[0]); err != nil {
				return err
			}
			amount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			balance, err := postgres.NewCreditLedger(db).Grant(cmd.Context(), args[0], amount, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s, balance %d\n", amount, args[0], balance)
			return nil
		},
	}
	grant.Flags().StringVar(&reason, "reason", "manual grant", "ledger note")

	balance := &cobra.Command{
		Use:   "balance <owner>",
		Short: "Show balance and usage of an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			bal, err := postgres.NewCreditLedger(db).Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			usage, err := postgres.NewDocumentRepository(db).Usage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			last := "-"
			if usage.LastAnalysisAt != nil {
				last = usage.LastAnalysisAt.Format("2006-01-02 15:04")
			}
			renderTable(cmd.OutOrStdout(),
				[]any{"Owner", "Balance", "Documents", "Pages", "Last analysis"},
				[][]any{{args[0], bal, usage.DocumentsAnalyzed, usage.PagesAnalyzed, last}})
			return nil
		},
	}

	cmd.AddCommand(grant, balance)
	return cmd
}
