package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/paperscore/internal/infra/cache"
	"github.com/bryanwahyu/paperscore/internal/infra/db/postgres"
	"github.com/bryanwahyu/paperscore/internal/infra/queue"
)

func (g *globals) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := postgres.Connect(ctx, g.cfg.DSN(), postgres.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return db, nil
}

func (g *globals) openQueue() (*queue.RedisQ, func(), error) {
	rdb, err := cache.NewClient(cache.Options{Addr: g.cfg.Redis.Addr, Password: g.cfg.Redis.Password, DB: g.cfg.Redis.DB})
	if err != nil {
		return nil, nil, fmt.Errorf("redis connect: %w", err)
	}
	return queue.New(rdb, g.cfg.Store.TTL, g.logger.Named("queue")), func() { _ = rdb.Close() }, nil
}

func newMigrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := g.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
