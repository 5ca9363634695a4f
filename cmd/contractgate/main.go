// Package main implements the entry point for the ContractGate gateway.
// ContractGate routes multi-tenant API traffic to upstream services and
// enforces cross-service contracts at the boundary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/contractgate/config"
	"github.com/c360/contractgate/contract"
	gatewayhttp "github.com/c360/contractgate/gateway/http"
	"github.com/c360/contractgate/health"
	"github.com/c360/contractgate/metric"
	"github.com/c360/contractgate/schema"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "contractgate"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(
		firstNonEmpty(cliCfg.LogLevel, cfg.LogLevel),
		firstNonEmpty(cliCfg.LogFormat, cfg.LogFormat),
	)
	slog.SetDefault(logger)

	slog.Info("Starting ContractGate",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	metrics := metric.New()
	server, err := gatewayhttp.NewServer(cfg.Gateway, registry, metrics, logger)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	if cliCfg.Validate {
		return validateOnly(cfg, registry)
	}

	return serve(cliCfg, cfg, server, metrics)
}

// initializeCLI parses flags and handles version/help early exits
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// buildRegistry loads the schema directory when one is configured. With
// no schema directory the gateway runs in pure routing mode; routes that
// declare contracts will fail server construction.
func buildRegistry(cfg *config.Config) (*schema.Registry, error) {
	if cfg.SchemaDir == "" {
		return nil, nil
	}

	registry, err := schema.LoadDir(cfg.SchemaDir)
	if err != nil {
		return nil, err
	}
	slog.Info("Schemas loaded", "dir", cfg.SchemaDir, "count", registry.Len())
	return registry, nil
}

// validateOnly runs config, schema and contract validation and exits.
// Server construction has already proven the routes coherent by the time
// this runs.
func validateOnly(cfg *config.Config, registry *schema.Registry) error {
	slog.Info("Configuration is valid",
		"routes", len(cfg.Gateway.Routes),
		"upstreams", len(cfg.Gateway.Upstreams))

	if cfg.ContractsPath == "" {
		return nil
	}

	defs, err := contract.LoadDefinitionPath(cfg.ContractsPath)
	if err != nil {
		return fmt.Errorf("load contracts: %w", err)
	}

	report, err := contract.NewRunner(registry, slog.Default()).Run(defs)
	if err != nil {
		return fmt.Errorf("run contracts: %w", err)
	}

	for _, c := range report.Contracts {
		slog.Info("contract evaluated", "name", c.Name, "passed", c.Passed)
	}
	if !report.Passed {
		return fmt.Errorf("%d contract(s) failed validation", failedCount(report))
	}

	slog.Info("All contracts valid", "count", len(report.Contracts))
	return nil
}

func failedCount(report *contract.Report) int {
	failed := 0
	for _, c := range report.Contracts {
		if !c.Passed {
			failed++
		}
	}
	return failed
}

// serve runs the HTTP listener until a shutdown signal arrives. SIGHUP
// reloads the route table (and schemas) without dropping connections.
func serve(cliCfg *CLIConfig, cfg *config.Config, server *gatewayhttp.Server, metrics *metric.Metrics) error {
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	monitor := health.NewMonitor(server)

	mux := http.NewServeMux()
	mux.Handle("/healthz", monitor.Handler())
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", server)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	group, ctx := errgroup.WithContext(signalCtx)

	group.Go(func() error {
		slog.Info("ContractGate listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		slog.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		return reloadLoop(ctx, cliCfg.ConfigPath, server)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	slog.Info("ContractGate shutdown complete")
	return nil
}

// reloadLoop swaps in a fresh route table on SIGHUP. A reload that fails
// validation leaves the running table untouched.
func reloadLoop(ctx context.Context, configPath string, server *gatewayhttp.Server) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			slog.Info("Reload requested", "config_path", configPath)

			fresh, err := config.LoadFile(configPath)
			if err != nil {
				slog.Error("Reload aborted: config invalid", "error", err)
				continue
			}
			if err := server.Reload(fresh.Gateway.Routes); err != nil {
				slog.Error("Reload aborted: route table invalid", "error", err)
				continue
			}
			slog.Info("Reload complete", "routes", len(fresh.Gateway.Routes))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
