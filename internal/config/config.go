package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds service settings. The security policy itself lives in its own
// document referenced by Policy.Path.
type Config struct {
	Server ServerConfig `mapstructure:"server" json:"server"`
	GRPC   GRPCConfig   `mapstructure:"grpc" json:"grpc"`
	Policy PolicyConfig `mapstructure:"policy" json:"policy"`
	Log    LogConfig    `mapstructure:"log" json:"log"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port"`
	Token   string `mapstructure:"token" json:"token"`
}

// GRPCConfig configures the gRPC tool executor service.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port"`
}

type PolicyConfig struct {
	Path string `mapstructure:"path" json:"path"`
	// Watch reloads the policy when the file changes.
	Watch bool `mapstructure:"watch" json:"watch"`
	// WorkDir anchors relative request paths; empty means the process cwd.
	WorkDir string `mapstructure:"work_dir" json:"work_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	File  string `mapstructure:"file" json:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18790,
			Token:   "",
		},
		GRPC: GRPCConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    50055,
		},
		Policy: PolicyConfig{
			Path:  filepath.Join(ConfigDir(), "security.yaml"),
			Watch: true,
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".warden")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads the config file, creating it with defaults on first run.
// WARDEN_* environment variables override file values.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveTo(cfg, configPath); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// bindEnv registers every known key so AutomaticEnv can override keys the
// file does not mention.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.enabled", "server.host", "server.port", "server.token",
		"grpc.enabled", "grpc.host", "grpc.port",
		"policy.path", "policy.watch", "policy.work_dir",
		"log.level", "log.file",
	} {
		_ = v.BindEnv(key)
	}
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

func Save(cfg *Config) error {
	return SaveTo(cfg, ConfigPath())
}

func SaveTo(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		return fmt.Errorf("grpc.port must be between 1 and 65535, got %d", c.GRPC.Port)
	}
	if !c.Server.Enabled && !c.GRPC.Enabled {
		return fmt.Errorf("at least one of server.enabled or grpc.enabled must be true")
	}

	if strings.TrimSpace(c.Policy.Path) == "" {
		return fmt.Errorf("policy.path must be non-empty")
	}
	c.Policy.Path = expandHome(strings.TrimSpace(c.Policy.Path))
	c.Policy.WorkDir = expandHome(strings.TrimSpace(c.Policy.WorkDir))

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
			"audit": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error, audit; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// ServerAddr is the HTTP listen address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GRPCAddr is the gRPC listen address.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.GRPC.Host, c.GRPC.Port)
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	rest := path[1:]
	rest = strings.TrimPrefix(rest, string(filepath.Separator))
	rest = strings.TrimPrefix(rest, "/")
	return filepath.Join(homeDir, rest)
}
