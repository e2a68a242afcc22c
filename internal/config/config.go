// Package config loads config.json, the non-secret settings of the tool.
// Credentials live in a separate creds.secret file handled by the creds
// package.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"hamup/internal/creds"
	"hamup/internal/hamster"
)

// Config defines the configuration for hamup.
type Config struct {
	WorkingPath string `mapstructure:"working_path" json:"working_path"`
	UploadMode  string `mapstructure:"upload_mode" json:"upload_mode"`
	SiteURL     string `mapstructure:"site_url" json:"site_url"`

	path string `mapstructure:"-" json:"-"`
}

// ConfigPath returns the file this config was loaded from (or would be
// saved to).
func (c Config) ConfigPath() string {
	return c.path
}

// CredsPath returns the credentials file path, a sibling of the config file.
func (c Config) CredsPath() string {
	return filepath.Join(filepath.Dir(c.path), creds.DefaultFileName)
}

func (c *Config) Validate() error {
	if c.SiteURL == "" {
		c.SiteURL = hamster.DefaultBaseURL
	}
	if c.UploadMode != "" && c.UploadMode != "single" && c.UploadMode != "group" {
		return fmt.Errorf("invalid upload_mode %q (%s)", c.UploadMode, c.path)
	}
	return nil
}

// DefaultConfigPath returns the default path for the hamup config file.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user config dir: %w", err)
	}
	return filepath.Join(dir, "hamup", "config.json"), nil
}

// getConfigPath determines where the config file lives.
func getConfigPath(configPathFlag string) (string, error) {
	// Prefer user-specific config file path if specified.
	if configPathFlag != "" {
		return configPathFlag, nil
	}
	return DefaultConfigPath()
}

// LoadConfig reads the config file. A missing file is not an error; flags
// and environment variables can carry a full configuration on their own.
func LoadConfig(configPathFlag string) (Config, error) {
	path, err := getConfigPath(configPathFlag)
	if err != nil {
		return Config{}, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	// Allow users to override config values with environment variables.
	v.SetEnvPrefix("HAMUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces keys viper already knows about.
	for _, key := range []string{"working_path", "upload_mode", "site_url"} {
		v.SetDefault(key, "")
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error reading (%s): %w", path, err)
	}
	config := Config{path: path}
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling (%s): %w", path, err)
	}
	return config, nil
}

// Save writes the config file, creating its directory if needed.
func (c Config) Save() error {
	if c.path == "" {
		return errors.New("config has no path to save to")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open config file %s for writing: %w", c.path, err)
	}
	defer f.Close()
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to %s: %w", c.path, err)
	}
	return nil
}
