package main

import (
	"github.com/spf13/cobra"

	"github.com/mikequentel/socpost/internal/metrics"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/server"
	"github.com/mikequentel/socpost/internal/staging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			log := ctx.logger()

			uploads, err := staging.New(cfg.Server.UploadDir, log)
			if err != nil {
				return err
			}
			rec := metrics.New()
			observers := []publish.Observer{rec}
			opts := []server.Option{server.WithLogger(log), server.WithMetrics(rec)}

			store, err := ctx.openHistory(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				observers = append(observers, store)
				opts = append(opts, server.WithHistory(store))
			}

			orch := ctx.orchestrator(cfg, rec.RetryHook, observers...)
			srv := server.New(server.Config{
				Bind:           cfg.Server.Bind,
				MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			}, orch, uploads, opts...)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.bind)")
	return cmd
}
