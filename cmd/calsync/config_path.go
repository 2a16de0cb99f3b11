package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/calsync/internal/client/config"
	"github.com/openmined/calsync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CALSYNC"

var home, _ = os.UserHomeDir()

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) CALSYNC_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := []string{
		config.DefaultConfigPath,
		filepath.Join(home, ".config", "calsync", "config.json"),
	}

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return config.DefaultConfigPath
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"http-addr":  "http_addr",
	"http-token": "http_token",
	"state-dir":  "state_dir",
}

// loadConfig merges defaults, the config file, CALSYNC_ environment variables
// and flags, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfg := config.FromViper(v)
	cfg.Path = configPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
