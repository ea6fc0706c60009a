package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/covailent/mcpd/config"
	"github.com/covailent/mcpd/history"
	mcpdotel "github.com/covailent/mcpd/otel"
	"github.com/covailent/mcpd/server"
	"github.com/covailent/mcpd/tool"
	"github.com/covailent/mcpd/tools"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool dispatch HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().String("config", "", "Path to mcpd.yaml (default: ./mcpd.yaml, then ~/.mcpd/config.yaml)")
	cmd.Flags().String("listen", "", "Listen address, overriding the config file")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 10*time.Minute, "HTTP write timeout")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	listenFlag, _ := cmd.Flags().GetString("listen")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listenFlag != "" {
		cfg.Listen = listenFlag
	}
	logger := slog.Default()

	// Trace export is opt-in; the observer below records against the global
	// providers either way.
	if cfg.OTLPEndpoint != "" {
		shutdown, err := mcpdotel.InitTracing(cmd.Context(), cfg.OTLPEndpoint, "mcpd")
		if err != nil {
			return fmt.Errorf("initializing trace export: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	dispatchObserver, err := mcpdotel.NewDispatchObserver(
		otelapi.GetMeterProvider().Meter("mcpd/dispatch"),
		otelapi.GetTracerProvider().Tracer("mcpd/dispatch"),
	)
	if err != nil {
		return fmt.Errorf("initializing dispatch observability: %w", err)
	}

	// Discovery runs to completion before the listener starts; the registry
	// is sealed from here on.
	registry := tool.Discover(tools.Constructors(cfg.Tools), logger)
	logger.Info("tool discovery complete", "tools", registry.Len())

	observers := []tool.Observer{dispatchObserver}
	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
		observers = append(observers, history.NewRecorder(journal, logger))
	}

	dispatcher, err := tool.NewDispatcher(tool.DispatcherConfig{
		Registry: registry,
		Logger:   logger,
		Observer: tool.MultiObserver(observers...),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	if cfg.HealthSchedule != "" {
		monitor, err := tool.NewMonitor(tool.MonitorConfig{
			Registry: registry,
			Schedule: cfg.HealthSchedule,
			Logger:   logger,
		})
		if err != nil {
			return exitError(exitValidation, "invalid health schedule: %v", err)
		}
		monitor.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = monitor.Stop(stopCtx)
		}()
	}

	apiServer, err := server.NewServer(server.Config{
		Registry:   registry,
		Dispatcher: dispatcher,
		History:    journal,
		CORSOrigin: cfg.CORSOrigin,
		MaxBody:    cfg.MaxBodyBytes,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "mcpd listening on %s\n", cfg.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// loadConfig resolves and loads the config file named by --config, falling
// back to discovery and then to defaults when nothing is found.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicitPath, _ := cmd.Flags().GetString("config")
	path, found, err := config.DiscoverPath(explicitPath)
	if err != nil {
		return config.Config{}, exitError(exitValidation, "%v", err)
	}
	if !found {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, exitError(exitValidation, "%v", err)
	}
	return cfg, nil
}

// openJournal opens the invocation journal per config: "off" disables it,
// empty selects the default path under the user's home.
func openJournal(cfg config.Config) (*history.Store, error) {
	path := strings.TrimSpace(cfg.HistoryPath)
	if strings.EqualFold(path, "off") {
		return nil, nil
	}
	if path == "" {
		defaultPath, err := history.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving journal path: %w", err)
		}
		path = defaultPath
	}
	journal, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening invocation journal: %w", err)
	}
	return journal, nil
}
