package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spinup/spinup/internal/logger"
	"github.com/spinup/spinup/internal/scheduler"
	"github.com/spinup/spinup/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx := cmd.Context()

			sched := scheduler.New(cfg.Store.DataDir, logger.Component("scheduler"))
			a, err := newApp(ctx, cfg, root.baseDir, appOptions{extra: sched.Actions()})
			if err != nil {
				return err
			}
			defer a.Close()

			jobs := make([]scheduler.Job, 0, len(cfg.Schedule))
			for _, j := range cfg.Schedule {
				jobs = append(jobs, scheduler.Job{Name: j.Name, Cron: j.Cron, Query: j.Query, Input: j.Input})
			}
			if err := sched.Start(a.engine, jobs); err != nil {
				return err
			}
			defer sched.Stop()

			logger.Get().Info().
				Strs("actions", a.registry.IDs()).
				Str("store", cfg.Store.Driver).
				Str("data_dir", filepath.Clean(cfg.Store.DataDir)).
				Msg("spinup ready")

			srv := server.New(server.Deps{
				Engine:  a.engine,
				Store:   a.store,
				Metrics: a.metrics.Handler(),
				Jobs:    sched,
				Logger:  logger.Get(),
			})
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
