package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeadLettersCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and requeue messages that exhausted their retries",
	}

	var limit int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, closeFn, err := g.openQueue()
			if err != nil {
				return err
			}
			defer closeFn()

			msgs, err := q.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]any, 0, len(msgs))
			for _, m := range msgs {
				rows = append(rows, []any{
					m.ID, m.URL, fmt.Sprintf("%d/%d", m.Attempt, m.MaxAttempts),
					truncate(m.LastError, 60), m.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			renderTable(cmd.OutOrStdout(), []any{"ID", "URL", "Attempts", "Last error", "Created"}, rows)
			return nil
		},
	}
	list.Flags().Int64Var(&limit, "limit", 20, "maximum messages to show")

	requeue := &cobra.Command{
		Use:   "requeue <message-id>",
		Short: "Move a dead-lettered message back to the ready list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := g.openQueue()
			if err != nil {
				return err
			}
			defer closeFn()

			ok, err := q.RequeueDead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("message %s is not in the dead-letter list", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, requeue)
	return cmd
}
