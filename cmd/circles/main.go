package main

import (
	"circles/client"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config is stored in ~/.circles/config.toml. CIRCLES_* variables override it.
type Config struct {
	ServerURL string `toml:"server_url"`
	Token     string `toml:"token"`
	UserID    int64  `toml:"user_id"`
	Colours   bool   `toml:"colours"`
	LogLevel  string `toml:"log_level"`
}

type envOverrides struct {
	ServerURL string `envconfig:"SERVER_URL"`
	Token     string `envconfig:"TOKEN"`
	UserID    int64  `envconfig:"USER_ID"`
	Colours   *bool  `envconfig:"COLOURS"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
}

func defaultConfig() Config {
	return Config{ServerURL: "http://localhost:8080", Colours: true, LogLevel: "WARN"}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".circles")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return filepath.Join(dir, "config.toml"), nil
}

// readConfig parses the file at path. A missing file yields the defaults.
func readConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("cannot read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

func writeConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	var o envOverrides
	if err := envconfig.Process("CIRCLES", &o); err != nil {
		return cfg, fmt.Errorf("invalid CIRCLES_* variable: %w", err)
	}
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
	}
	if o.Token != "" {
		cfg.Token = o.Token
	}
	if o.UserID != 0 {
		cfg.UserID = o.UserID
	}
	if o.Colours != nil {
		cfg.Colours = *o.Colours
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "server_url":
		cfg.ServerURL = strings.TrimRight(value, "/")
	case "token":
		cfg.Token = value
	case "user_id":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("user_id must be a positive number, got %q", value)
		}
		cfg.UserID = id
	case "colours":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("colours must be true or false, got %q", value)
		}
		cfg.Colours = b
	case "log_level":
		cfg.LogLevel = strings.ToUpper(value)
	default:
		return fmt.Errorf("unknown config key %q (valid: server_url, token, user_id, colours, log_level)", key)
	}
	return nil
}

// loadConfig reads the file then applies the environment.
func loadConfig() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	cfg, err := readConfig(path)
	if err != nil {
		return cfg, err
	}
	return applyEnv(cfg)
}

// session holds what every API command needs.
type session struct {
	cfg Config
	api *client.HTTPClient
	log *slog.Logger
}

func connect() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" || cfg.UserID == 0 {
		return nil, fmt.Errorf("not logged in: run 'circles login <user-id> <token>' first")
	}
	return &session{
		cfg: cfg,
		api: client.NewHTTPClient(cfg.ServerURL, cfg.Token),
		log: logs.GetLoggerFromString(cfg.LogLevel),
	}, nil
}

var rootCmd = &cobra.Command{
	Use:           "circles",
	Short:         "Circles direct messages from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
