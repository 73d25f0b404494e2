package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	appanalysis "github.com/bryanwahyu/paperscore/internal/application/analysis"
	"github.com/bryanwahyu/paperscore/internal/infra/db/postgres"
	minioStore "github.com/bryanwahyu/paperscore/internal/infra/storage"
	"github.com/bryanwahyu/paperscore/internal/middleware"
)

type apiFlags struct {
	url string
	key string
}

func (f *apiFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "api", "", "API base URL (default queue.public_base_url)")
	cmd.Flags().StringVar(&f.key, "key", os.Getenv("PAPERSCORE_API_KEY"), "API key")
}

func (f *apiFlags) client(g *globals) *apiClient {
	base := f.url
	if base == "" {
		base = g.cfg.Queue.PublicBaseURL
	}
	return newAPIClient(base, f.key)
}

// uploadKey keeps uploads of one owner together and unique.
func uploadKey(owner, path string) string {
	return fmt.Sprintf("uploads/%s/%s-%s", owner, uuid.NewString()[:8], filepath.Base(path))
}

func newSubmitCommand(g *globals) *cobra.Command {
	var (
		api   apiFlags
		owner string
	)
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a document and submit it for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := filepath.Base(args[0])
			if err := middleware.ValidateFileName(name); err != nil {
				return err
			}

			store, err := minioStore.New(ctx,
				g.cfg.Minio.Endpoint,
				g.cfg.Minio.Region,
				g.cfg.Minio.BucketName,
				g.cfg.Minio.AccessKey,
				g.cfg.Minio.SecretKey,
				g.cfg.Minio.UseSSL,
			)
			if err != nil {
				return fmt.Errorf("minio init: %w", err)
			}
			ref, err := store.Upload(ctx, args[0], uploadKey(owner, args[0]))
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}

			var res appanalysis.SubmitResult
			err = api.client(g).do(ctx, http.MethodPost, "/v1/analyses", appanalysis.SubmitCommand{
				OwnerID:  owner,
				FileRef:  ref,
				FileName: name,
			}, &res)
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(),
				[]any{"ID", "Tier", "Pages", "Credits", "Balance"},
				[][]any{{res.ID, res.Tier, res.EstimatedPages, res.CreditsCharged, res.Balance}})
			return nil
		},
	}
	api.bind(cmd)
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (taken from the API key when empty)")
	return cmd
}

func newStatusCommand(g *globals) *cobra.Command {
	var api apiFlags
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the progress of an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := middleware.ValidateJobID(args[0]); err != nil {
				return err
			}
			var view appanalysis.StatusView
			if err := api.client(g).do(cmd.Context(), http.MethodGet, "/v1/analyses/"+args[0]+"/status", nil, &view); err != nil {
				return err
			}
			step, total, name, progress := view.Progress.Step, view.Progress.TotalSteps, view.Progress.StepName, view.Progress.Progress
			if view.Live != nil {
				step, total, name, progress = view.Live.Step, view.Live.TotalSteps, view.Live.StepName, view.Live.Progress
			}
			renderTable(cmd.OutOrStdout(),
				[]any{"ID", "Status", "Step", "Stage", "Progress", "Error"},
				[][]any{{view.ID, view.Status, fmt.Sprintf("%d/%d", step, total), name, fmt.Sprintf("%d%%", progress), truncate(view.Error, 60)}})
			return nil
		},
	}
	api.bind(cmd)
	return cmd
}

func newInspectCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <job-id>",
		Short: "Show the stored record, agent results and stage errors of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, id, out := cmd.Context(), args[0], cmd.OutOrStdout()
			db, err := g.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			doc, err := postgres.NewDocumentRepository(db).Get(ctx, id)
			if err != nil {
				return err
			}
			score := "-"
			if doc.OverallScore != nil {
				score = fmt.Sprintf("%d (%s)", *doc.OverallScore, doc.Grade)
			}
			renderTable(out,
				[]any{"ID", "Owner", "File", "Tier", "Status", "Score", "Credits"},
				[][]any{{doc.ID, doc.OwnerID, doc.FileName, doc.Tier, doc.Status, score, doc.CreditsCharged}})

			agents, err := postgres.NewAnalystRepository(db).ListByJob(ctx, id)
			if err != nil {
				return err
			}
			if len(agents) > 0 {
				rows := make([][]any, 0, len(agents))
				for _, a := range agents {
					rows = append(rows, []any{a.AgentID, a.AgentName, a.Weight, a.Score, a.Degraded})
				}
				renderTable(out, []any{"Agent", "Name", "Weight", "Score", "Degraded"}, rows)
			}

			failures, err := postgres.NewStageErrorRepository(db).ListByJob(ctx, id, 20)
			if err != nil {
				return err
			}
			if len(failures) > 0 {
				rows := make([][]any, 0, len(failures))
				for _, f := range failures {
					rows = append(rows, []any{f.CreatedAt.Format("2006-01-02 15:04:05"), f.Stage, f.Step, truncate(f.Message, 80)})
				}
				renderTable(out, []any{"At", "Stage", "Step", "Message"}, rows)
			}
			return nil
		},
	}
}
