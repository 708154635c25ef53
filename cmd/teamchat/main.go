package main

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config is the CLI configuration stored in ~/.teamchat/config.toml.
type Config struct {
	Server string `toml:"server"`
	Name   string `toml:"name"`
	UserID string `toml:"user_id"`
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".teamchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads the config file, returning a zero-value Config when it
// does not exist yet.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

var (
	flagServer  string
	flagName    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "teamchat",
	Short: "Terminal client for the teamchat server",
	Long:  "teamchat connects to a teamchat server, synchronizes channel messages,\nand keeps working offline by queueing sends until the connection returns.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server base URL (default http://localhost:4000)")
	rootCmd.PersistentFlags().StringVar(&flagName, "name", "", "display name to announce")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log connection internals")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
