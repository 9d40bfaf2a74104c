// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the configuration struct
type Config struct {
	Cache       string `json:"cache" mapstructure:"cache"`
	Proxy       string `json:"proxy" mapstructure:"proxy"`
	Insecure    bool   `json:"insecure" mapstructure:"insecure"`
	GithubToken string `json:"github-token" mapstructure:"github-token"`
	Gradle      string `json:"gradle" mapstructure:"gradle"`
}

func (c *Config) verify() error {
	if c.Cache == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("config: failed to get user cache directory: %v", err)
		}
		c.Cache = filepath.Join(cache, "ghidra-dmg")
	}
	if c.Gradle == "" {
		c.Gradle = "gradle"
	}
	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
