package main

import (
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/fieldmemo/internal/api"
	"github.com/dharsanguruparan/fieldmemo/internal/auth"
	"github.com/dharsanguruparan/fieldmemo/internal/processing"
	"github.com/dharsanguruparan/fieldmemo/internal/queue"
	"github.com/dharsanguruparan/fieldmemo/internal/worker"
)

func newAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "fieldmemo-api")
			if err != nil {
				return err
			}
			defer a.Close()

			authn, err := auth.New(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			opts := []api.Option{api.WithLogger(a.log)}
			if a.media != nil {
				opts = append(opts, api.WithMedia(a.media, a.signer))
			}
			if a.cfg.Async {
				if a.cfg.Redis.Enabled() {
					if a.media != nil {
						return errSharedStoreRequired
					}
					client := queue.NewClient(a.cfg.Redis)
					defer client.Close()
					opts = append(opts, api.WithDispatcher(client))
				} else {
					pool := processing.New(a.pipeline, a.cfg.ProcessingPool, a.log)
					pool.Start(ctx)
					defer pool.Wait()
					opts = append(opts, api.WithDispatcher(pool))
				}
			}
			srv := api.New(a.cfg, a.pipeline, a.store, a.blobs, authn, opts...)
			return srv.Run(ctx)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run queued pipeline jobs from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "fieldmemo-worker")
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.cfg.Redis.Enabled() {
				return errRedisRequired
			}
			if a.media != nil {
				return errSharedStoreRequired
			}

			server := worker.NewServer(queue.RedisOpt(a.cfg.Redis), a.cfg.ProcessingPool, a.log)
			mux := worker.NewProcessor(a.pipeline, a.log).Handler()
			go func() {
				<-ctx.Done()
				server.Shutdown()
			}()
			a.log.Info("worker started", map[string]interface{}{"concurrency": a.cfg.ProcessingPool})
			return server.Run(mux)
		},
	}
}
