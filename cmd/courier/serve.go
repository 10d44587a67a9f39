package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/courier/internal/api"
	"github.com/seantiz/courier/internal/config"
	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/foreground"
	"github.com/seantiz/courier/internal/httpcall"
	"github.com/seantiz/courier/internal/invocation"
	"github.com/seantiz/courier/internal/store"
)

func serveCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control plane",
		Long:  "Run the courier HTTP control plane. Settings come from the config file, .env and COURIER_* environment variables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			logger := config.NewLogger(os.Stdout, cfg.LogLevel)

			logger.Info("courier: starting",
				"listen_addr", cfg.ListenAddr,
				"db_path", cfg.DBPath,
				"max_workers", cfg.MaxWorkers,
				"call_timeout", cfg.CallTimeout,
			)

			db, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			// The loop outlives the signal: it must keep serving the
			// invocations that settle after the server stops.
			loop := foreground.NewLoop(logger)
			loop.Start(cmd.Context())

			var opts []invocation.HostOption
			if cfg.MaxWorkers > 0 {
				opts = append(opts, invocation.WithExecutor(invocation.NewBoundedExecutor(int64(cfg.MaxWorkers))))
			}
			host := invocation.NewHost(loop, logger, opts...)
			eng := engine.NewEngine(db, host, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := api.NewServer(cfg.ListenAddr, db, eng, httpcall.NewClient(cfg.CallTimeout), logger)
			runErr := srv.Run(ctx)

			// Let in-flight invocations settle before the foreground stops.
			logger.Info("waiting for in-flight invocations")
			eng.Wait()
			loop.Stop()
			<-loop.Done()

			return runErr
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides COURIER_LISTEN_ADDR)")

	return cmd
}
