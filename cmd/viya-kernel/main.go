package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/manthysbr/viyaOS/internal/adapters/viya"
	appconfig "github.com/manthysbr/viyaOS/internal/config"
	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/services"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := newServeCmd()

	rootCmd := &cobra.Command{
		Use:   "viya-kernel",
		Short: "Submit, track and collect SAS Viya compute jobs",
		RunE:  serve.RunE,
	}
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(
		serve,
		newExecCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the orchestrator version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), services.Version)
			return nil
		},
	}
}

type app struct {
	cfg    *domain.AppConfig
	logger *slog.Logger
	orch   *services.Orchestrator
	tp     *sdktrace.TracerProvider
}

// shutdown flushes pending spans.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tp.Shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", "error", err)
	}
}

// bootstrap loads configuration and builds the logger, the tracer provider
// and the facade.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, err
	}

	logger, err := appconfig.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		return nil, err
	}

	tp, err := appconfig.NewTracerProvider(ctx, cfg.Trace)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	creds, err := appconfig.NewStaticCredentials(cfg.Viya)
	if err != nil {
		return nil, err
	}
	logger.Info("compute engine configured",
		"credentials", creds.String(),
		"context_name", cfg.Viya.ContextName,
		"tls_verify", cfg.Viya.TLSVerify,
		"trace_exporter", cfg.Trace.Exporter,
	)

	gateway := viya.NewGateway(logger, creds, viya.NewHTTPClient(cfg.Viya), cfg.Viya.RateLimit, viya.WithTracerProvider(tp))
	poller := services.NewJobPoller(logger, gateway, services.PollerConfig{
		Interval:    cfg.Poll.Interval,
		MaxAttempts: cfg.Poll.MaxAttempts,
	})
	orch := services.NewOrchestrator(
		logger,
		gateway,
		poller,
		services.NewResultAssembler(logger, gateway),
		services.NewContextStore(cfg.HistoryLimit),
		services.NewRewriter(),
		services.NewWatchScheduler(logger, services.SchedulerConfig{MaxConcurrentWatches: cfg.MaxWatches}),
		services.NewEventBus(logger),
		services.OrchestratorConfig{ContextName: cfg.Viya.ContextName},
	)
	return &app{cfg: cfg, logger: logger, orch: orch, tp: tp}, nil
}
