package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MEKXH/warden/internal/config"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Warden configuration and a starter policy",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := configPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
		return nil
	}

	cfg := config.DefaultConfig()
	workspace := filepath.Join(config.ConfigDir(), "workspace")
	for _, dir := range []string{filepath.Dir(cfgPath), filepath.Dir(cfg.Policy.Path), workspace} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := config.SaveTo(cfg, cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if _, err := os.Stat(cfg.Policy.Path); os.IsNotExist(err) {
		if err := os.WriteFile(cfg.Policy.Path, []byte(defaultPolicyDocument()), 0o600); err != nil {
			return fmt.Errorf("failed to write policy: %w", err)
		}
	}

	fmt.Fprintf(out, "Warden initialized!\n")
	fmt.Fprintf(out, "Config: %s\n", cfgPath)
	fmt.Fprintf(out, "Policy: %s\n", cfg.Policy.Path)
	fmt.Fprintf(out, "Workspace: %s\n", workspace)
	fmt.Fprintf(out, "\nNext steps:\n")
	fmt.Fprintf(out, "1. Edit %s to open the directories and commands you need\n", cfg.Policy.Path)
	fmt.Fprintf(out, "2. Run 'warden policy show' to review it\n")
	fmt.Fprintf(out, "3. Run 'warden serve' to start the servers\n")
	return nil
}
