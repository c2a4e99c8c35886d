package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/warden/internal/config"
)

var (
	logLevelOverride string
	configPathFlag   string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - policy-enforcing file and command sandbox",
		Long: `Warden mediates file and command requests from untrusted callers.
Every request is checked against a declarative security policy before it
touches the host.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error|audit)")
	cmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Config file path (default ~/.warden/config.json)")

	cmd.AddCommand(
		NewInitCmd(),
		NewServeCmd(),
		NewPolicyCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}

func configPath() string {
	if p := strings.TrimSpace(configPathFlag); p != "" {
		return p
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.LoadFrom(configPath())
}
