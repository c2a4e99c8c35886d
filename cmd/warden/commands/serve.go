package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/executor"
	"github.com/MEKXH/warden/internal/gateway"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/rpc"
	"github.com/MEKXH/warden/internal/tools"
)

const shutdownTimeout = 5 * time.Second

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run"},
		Short:   "Start the sandbox servers",
		RunE:    runServe,
	}
}

// services is everything serve wires together. The policy is loaded once;
// every executor reads it through the holder so reloads take effect on the
// next request.
type services struct {
	holder   *policy.Holder
	files    *executor.Files
	commands *executor.Commands
	tools    *tools.Registry
	metrics  *metrics.RuntimeMetrics
	gateway  *gateway.Server
	rpc      *rpc.Server
	watcher  *policy.Watcher
}

func policyOptions(cfg *config.Config) policy.Options {
	opts := policy.DefaultOptions()
	if dir := strings.TrimSpace(cfg.Policy.WorkDir); dir != "" {
		opts.WorkDir = dir
	}
	return opts
}

// loadPolicy is fatal at startup: a service without a valid policy must not
// accept requests.
func loadPolicy(cfg *config.Config) (*policy.Validator, error) {
	p, err := policy.LoadWithOptions(cfg.Policy.Path, policyOptions(cfg))
	if err != nil {
		return nil, err
	}
	return policy.NewValidator(p), nil
}

func buildServices(cfg *config.Config) (*services, error) {
	v, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}
	logPolicySummary(v.Policy().Summary())

	holder := policy.NewHolder(v)
	stats := metrics.NewRuntimeMetrics(config.ConfigDir())
	recorder := audit.Multi{audit.NewLogger(nil), stats}
	files := executor.NewFiles(holder, recorder)
	commands := executor.NewCommands(holder, recorder)
	registry, err := tools.NewSandboxRegistry(files, commands)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	svc := &services{
		holder:   holder,
		files:    files,
		commands: commands,
		tools:    registry,
		metrics:  stats,
	}
	if cfg.Server.Enabled {
		svc.gateway = gateway.New(cfg.Server, gateway.Deps{
			Files:    files,
			Commands: commands,
			Tools:    registry,
			Metrics:  stats,
		})
	}
	if cfg.GRPC.Enabled {
		svc.rpc = rpc.New(cfg.GRPC, rpc.NewService(files, commands))
	}
	if cfg.Policy.Watch {
		svc.watcher = policy.NewWatcher(cfg.Policy.Path, policyOptions(cfg), holder)
	}
	return svc, nil
}

func logPolicySummary(s policy.Summary) {
	slog.Info("security policy loaded",
		"read_extensions", s.ReadExtensions,
		"write_extensions", s.WriteExtensions,
		"blocked_paths", len(s.BlockedPaths),
		"allowed_directories", len(s.AllowedDirectories),
		"commands_enabled", s.CommandsEnabled,
		"command_timeout", s.CommandTimeout,
	)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, err := buildServices(cfg)
	if err != nil {
		return fmt.Errorf("failed to load security policy: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if svc.gateway != nil {
		g.Go(func() error {
			if err := svc.gateway.Start(); err != nil {
				return fmt.Errorf("gateway server failed: %w", err)
			}
			return nil
		})
	}
	if svc.rpc != nil {
		g.Go(func() error {
			if err := svc.rpc.Start(); err != nil {
				return fmt.Errorf("grpc server failed: %w", err)
			}
			return nil
		})
	}
	if svc.watcher != nil {
		g.Go(func() error {
			if err := svc.watcher.Run(gctx); err != nil {
				slog.Warn("policy watcher stopped, live reload disabled", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdown(svc)
		return nil
	})

	printBanner(cmd, svc)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server component failed", "error", err)
		return err
	}
	return nil
}

func shutdown(svc *services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if svc.gateway != nil {
		if err := svc.gateway.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("gateway shutdown failed", "error", err)
		}
	}
	if svc.rpc != nil {
		if err := svc.rpc.Shutdown(ctx); err != nil {
			slog.Warn("grpc shutdown failed", "error", err)
		}
	}
}

func printBanner(cmd *cobra.Command, svc *services) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Warden running.")
	if svc.gateway != nil {
		fmt.Fprintf(out, "  HTTP: http://%s\n", svc.gateway.Addr())
	}
	if svc.rpc != nil {
		fmt.Fprintf(out, "  gRPC: %s (%s)\n", svc.rpc.Addr(), rpc.ServiceName)
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop.")
}
