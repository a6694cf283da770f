package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd, loginCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the CLI configuration",
	Long:  "View or modify the configuration stored in ~/.circles/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token := "(none)"
		if len(cfg.Token) > 12 {
			token = cfg.Token[:12] + "..."
		}
		fmt.Printf("server_url = %s\nuser_id    = %d\ntoken      = %s\ncolours    = %t\nlog_level  = %s\n",
			cfg.ServerURL, cfg.UserID, token, cfg.Colours, cfg.LogLevel)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConfig(func(cfg *Config) error {
			return setConfigValue(cfg, args[0], args[1])
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <user-id> <token>",
	Short: "Store the identity used by every command",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("user id must be a number, got %q", args[0])
		}
		err := updateConfig(func(cfg *Config) error {
			if err := setConfigValue(cfg, "user_id", args[0]); err != nil {
				return err
			}
			return setConfigValue(cfg, "token", args[1])
		})
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as user %s\n", args[0])
		return nil
	},
}

// updateConfig edits the file only, environment overrides are not persisted.
func updateConfig(edit func(cfg *Config) error) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := readConfig(path)
	if err != nil {
		return err
	}
	if err := edit(&cfg); err != nil {
		return err
	}
	return writeConfig(path, cfg)
}
