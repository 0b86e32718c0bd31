package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/viyaOS/internal/core/services"
	"github.com/manthysbr/viyaOS/pkg/kernel"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()
			cfg, logger, orch := a.cfg, a.logger, a.orch
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			logger.Info("starting viya kernel", "version", services.Version)

			apiServer, err := kernel.NewServer(logger, orch, services.NewChatService(logger, services.KeywordClassifier{}, orch))
			if err != nil {
				return err
			}

			c := cors.New(cors.Options{
				AllowedOrigins:   cfg.Server.CORSOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: true,
			})

			httpServer := &http.Server{
				Addr:              cfg.Server.ListenAddr,
				Handler:           otelhttp.NewHandler(c.Handler(apiServer.Handler()), "viya-kernel"),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gCtx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return orch.Serve(gCtx)
			})

			g.Go(func() error {
				logger.Info("starting api server", "addr", cfg.Server.ListenAddr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("api server failed: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-gCtx.Done()
				logger.Info("shutting down api server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides VIYA_LISTEN_ADDR)")
	return cmd
}
