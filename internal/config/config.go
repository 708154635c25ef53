package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teamchat/teamchat/internal/domain"
)

type Config struct {
	ServerPort   string
	ChannelsFile string
	LogLevel     string
	Development  bool
}

// Load reads configuration from the environment, after loading a local .env
// file if one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "4000"),
		ChannelsFile: getEnv("CHANNELS_FILE", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Development:  getEnv("APP_ENV", "development") != "production",
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

type channelsFile struct {
	Channels []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"channels"`
}

// Channels returns the channel roster. With no file configured the built-in
// roster is used; the set is fixed for the life of the process either way.
func (c *Config) Channels() ([]domain.Channel, error) {
	if c.ChannelsFile == "" {
		return domain.DefaultChannels(), nil
	}
	data, err := os.ReadFile(c.ChannelsFile)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var f channelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	if len(f.Channels) == 0 {
		return nil, fmt.Errorf("channels file %s defines no channels", c.ChannelsFile)
	}
	channels := make([]domain.Channel, 0, len(f.Channels))
	for _, ch := range f.Channels {
		if ch.ID == "" {
			return nil, fmt.Errorf("channels file %s: channel with empty id", c.ChannelsFile)
		}
		name := ch.Name
		if name == "" {
			name = ch.ID
		}
		channels = append(channels, domain.Channel{ID: ch.ID, Name: name})
	}
	return channels, nil
}
