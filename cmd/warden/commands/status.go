package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/executor"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/tools"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Warden configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(out, policyHeaderStyle.Render("Warden Status"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Config")
	fmt.Fprintf(out, "  Path:   %s\n", configPath())

	fmt.Fprintln(out, "\nPolicy")
	fmt.Fprintf(out, "  Path:   %s\n", cfg.Policy.Path)
	fmt.Fprintf(out, "  Watch:  %t\n", cfg.Policy.Watch)
	v, err := loadPolicy(cfg)
	if err != nil {
		fmt.Fprintf(out, "  Status: %s\n", denyStyle.Render("invalid"))
		fmt.Fprintf(out, "  Error:  %v\n", err)
	} else {
		s := v.Policy().Summary()
		fmt.Fprintf(out, "  Status: %s\n", allowStyle.Render("OK"))
		fmt.Fprintf(out, "  Allowed directories: %d, blocked paths: %d\n", len(s.AllowedDirectories), len(s.BlockedPaths))
		commands := "disabled"
		if s.CommandsEnabled {
			commands = fmt.Sprintf("enabled (%d allowlisted, timeout=%s)", len(s.CommandAllowlist), s.CommandTimeout)
		}
		fmt.Fprintf(out, "  Commands: %s\n", commands)

		fmt.Fprintln(out, "\nTools")
		registry, err := tools.NewSandboxRegistry(executor.NewFiles(v, nil), executor.NewCommands(v, nil))
		if err != nil {
			return err
		}
		infos, err := registry.Infos(cmd.Context())
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(out, "  %s: ready\n", info.Name)
		}
	}

	fmt.Fprintln(out, "\nHTTP gateway")
	if cfg.Server.Enabled {
		fmt.Fprintf(out, "  Address: %s\n", cfg.ServerAddr())
		if strings.TrimSpace(cfg.Server.Token) != "" {
			fmt.Fprintln(out, "  Auth:    token configured")
		} else {
			fmt.Fprintln(out, "  Auth:    no token (open)")
		}
	} else {
		fmt.Fprintln(out, "  disabled")
	}

	fmt.Fprintln(out, "\ngRPC")
	if cfg.GRPC.Enabled {
		fmt.Fprintf(out, "  Address: %s\n", cfg.GRPCAddr())
	} else {
		fmt.Fprintln(out, "  disabled")
	}

	fmt.Fprintln(out, "\nRuntime Metrics")
	snap, err := metrics.ReadRuntimeSnapshot(config.ConfigDir())
	switch {
	case err != nil:
		fmt.Fprintf(out, "  unavailable: %v\n", err)
	case !snap.HasData():
		fmt.Fprintln(out, "  no runtime data yet")
	default:
		r := snap.Requests
		fmt.Fprintf(out, "  Requests: %d total, %d ok, %d denied (%.1f%%), %d errors\n",
			r.Total, r.OK, r.Denied, r.DenyRatio()*100, r.Errors)
		c := snap.Command
		fmt.Fprintf(out, "  Commands: %d runs, %d timeouts, avg %.0fms, p95~%dms\n",
			c.Runs, c.Timeouts, c.AvgLatencyMs(), c.P95ProxyLatencyMs)
		fmt.Fprintf(out, "  Updated:  %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}

	if cfg.Log.File != "" {
		fmt.Fprintln(out, "\nLog")
		status := "not created yet"
		if _, err := os.Stat(cfg.Log.File); err == nil {
			status = "OK"
		}
		fmt.Fprintf(out, "  File:   %s (%s)\n", cfg.Log.File, status)
	}
	return nil
}
