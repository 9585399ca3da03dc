// Package main implements the entry point for the ledgergate application.
// Ledgergate exposes a distributed-ledger node over HTTP: counterparty
// discovery, vault reads and obligation issuance through the node's
// asynchronous flow machinery.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corda/ledgergate/config"
	"github.com/corda/ledgergate/flowbridge"
	"github.com/corda/ledgergate/gateway"
	"github.com/corda/ledgergate/health"
	"github.com/corda/ledgergate/identity"
	"github.com/corda/ledgergate/metric"
	"github.com/corda/ledgergate/nodeclient"
	"github.com/corda/ledgergate/pkg/retry"
	"github.com/corda/ledgergate/vault"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ledgergate"
)

func main() {
	// Add panic recovery
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
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connectNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()

	registry := metric.NewRegistry()

	directory, err := identity.NewDirectory(client, cfg.Identity.ReservedOrgs, logger)
	if err != nil {
		return fmt.Errorf("create peer directory: %w", err)
	}

	slog.Info("Loading peer directory")
	if err := directory.Load(ctx); err != nil {
		return fmt.Errorf("load peer directory: %w", err)
	}

	vaultService, err := vault.NewService(client, logger)
	if err != nil {
		return fmt.Errorf("create vault service: %w", err)
	}

	hub := gateway.NewHub(logger)

	bridge, err := flowbridge.NewBridge(client,
		flowbridge.WithLogger(logger),
		flowbridge.WithMetrics(registry.Metrics()),
		flowbridge.WithFlowTimeout(cfg.Flows.Timeout()),
		flowbridge.WithTerminalHook(hub.Broadcast),
	)
	if err != nil {
		return fmt.Errorf("create flow bridge: %w", err)
	}

	apiServer, err := gateway.NewServer(cfg.HTTP, directory, vaultService, bridge, hub,
		registry.Metrics(), logger)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	return supervise(ctx, cfg, cliCfg.ShutdownTimeout, apiServer, registry, client, directory)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting ledgergate",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// connectNode dials the node transport, retrying while the node comes up
func connectNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*nodeclient.Client, error) {
	client, err := nodeclient.New(strings.Join(cfg.Node.URLs, ","),
		nodeclient.WithSubjectPrefix(cfg.Node.SubjectPrefix),
		nodeclient.WithRequestTimeout(cfg.Node.RequestTimeout()),
		nodeclient.WithDisconnectHandler(func(err error) {
			logger.Warn("node connection lost", "error", err)
		}),
		nodeclient.WithReconnectHandler(func() {
			logger.Info("node connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create node client: %w", err)
	}

	slog.Info("Connecting to node", "urls", cfg.Node.URLs)
	if err := retry.Do(ctx, retry.Startup(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		return nil, fmt.Errorf("connect to node: %w", err)
	}

	return client, nil
}

// supervise runs the API server, the operational server and the directory
// refresher until a signal arrives, then shuts everything down.
func supervise(
	ctx context.Context,
	cfg *config.Config,
	shutdownTimeout time.Duration,
	apiServer *gateway.Server,
	registry *metric.Registry,
	client *nodeclient.Client,
	directory *identity.Directory,
) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return apiServer.Start()
	})

	var opsServer *metric.Server
	if cfg.Metrics.Port > 0 {
		opsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry,
			healthCheck(client, directory, cfg.Identity.RefreshInterval()))
		group.Go(func() error {
			return opsServer.Start()
		})
	}

	group.Go(func() error {
		err := directory.Run(groupCtx, cfg.Identity.RefreshInterval())
		if err == context.Canceled {
			return nil
		}
		return err
	})

	group.Go(func() error {
		observeNode(groupCtx, client, directory, registry.Metrics())
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down", "timeout", shutdownTimeout)

		if err := apiServer.Stop(shutdownTimeout); err != nil {
			slog.Warn("API server shutdown failed", "error", err)
		}
		if opsServer != nil {
			if err := opsServer.Stop(); err != nil {
				slog.Warn("operational server shutdown failed", "error", err)
			}
		}
		return nil
	})

	slog.Info("ledgergate started")
	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}

	slog.Info("ledgergate shutdown complete")
	return nil
}

// healthCheck aggregates node connectivity and directory freshness
func healthCheck(client *nodeclient.Client, directory *identity.Directory, refreshInterval time.Duration) metric.HealthFunc {
	return func() health.Status {
		var node health.Status
		if client.IsHealthy() {
			node = health.Healthy("node")
		} else {
			node = health.Unhealthy("node", "connection "+client.Status().String())
		}

		var dir health.Status
		age := time.Since(directory.LastRefresh())
		if age > 3*refreshInterval {
			dir = health.Degraded("directory", fmt.Sprintf("snapshot is %s old", age.Round(time.Second)))
		} else {
			dir = health.Healthy("directory")
		}

		return health.Aggregate(appName, node, dir)
	}
}

// observeNode keeps the node connectivity gauges current
func observeNode(ctx context.Context, client *nodeclient.Client, directory *identity.Directory, metrics *metric.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if client.IsHealthy() {
				metrics.NodeConnected.Set(1)
				if rtt, err := client.RTT(); err == nil {
					metrics.NodeRTT.Set(float64(rtt.Milliseconds()))
				}
			} else {
				metrics.NodeConnected.Set(0)
			}
			metrics.DirectoryPeers.Set(float64(len(directory.Snapshot())))
		}
	}
}
