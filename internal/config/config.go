package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Image destination directory; images land at <image-dir>/<host>.img
	ImageDir string `mapstructure:"image-dir"`

	// S3 source configuration
	S3Region    string `mapstructure:"s3-region"`
	S3Anonymous bool   `mapstructure:"s3-anonymous"`

	// Fetch job observation
	PollInterval time.Duration `mapstructure:"poll-interval"`
	FetchTimeout time.Duration `mapstructure:"fetch-timeout"`

	// Preflight
	MinDiskFreeMB int64 `mapstructure:"min-disk-free-mb"`

	// Destination policy for existing files
	OverwriteExisting bool `mapstructure:"overwrite-existing"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/deployments.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("image-dir", "/tmp")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("s3-anonymous", false)
	viper.SetDefault("poll-interval", "15s")
	viper.SetDefault("fetch-timeout", "600s")
	viper.SetDefault("min-disk-free-mb", 0)
	viper.SetDefault("overwrite-existing", false)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be NODEPREP_IMAGE_DIR, etc.)
	viper.SetEnvPrefix("NODEPREP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.nodeprep")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.ImageDir == "" {
		return fmt.Errorf("image-dir cannot be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be positive")
	}
	if c.FetchTimeout < c.PollInterval {
		return fmt.Errorf("fetch-timeout must not be shorter than poll-interval")
	}
	if c.MinDiskFreeMB < 0 {
		return fmt.Errorf("min-disk-free-mb must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
