package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/jchantrell/appbundle/internal/bundle"
)

type Config struct {
	ExtractDir    string `mapstructure:"extract_dir"`
	Catalog       string `mapstructure:"catalog"`
	ReaderVersion string `mapstructure:"reader_version"`
	MaxPathLength int    `mapstructure:"max_path_length"`
	Overwrite     bool   `mapstructure:"overwrite"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
}

// Load initializes and loads configuration from file. The result is not
// validated, since command-line flags may still override it; call Validate
// once they are applied.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("extract_dir", "")
	v.SetDefault("catalog", defaultCatalogPath())
	v.SetDefault("reader_version", bundle.CurrentVersion.String())
	v.SetDefault("max_path_length", bundle.DefaultMaxPathLength)
	v.SetDefault("overwrite", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// APPBUNDLE_LOG_LEVEL etc.
	v.SetEnvPrefix("appbundle")
	v.AutomaticEnv()

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("appbundle")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that may also have been set from flags
func (c *Config) Validate() error {
	if err := validateLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := validateLogFormat(c.LogFormat); err != nil {
		return err
	}
	if _, err := c.Reader(); err != nil {
		return err
	}
	if c.MaxPathLength <= 0 {
		return fmt.Errorf("max_path_length must be positive, got %d", c.MaxPathLength)
	}
	return nil
}

// Reader returns the manifest reader version to parse with
func (c *Config) Reader() (bundle.Version, error) {
	v, err := bundle.ParseVersion(c.ReaderVersion)
	if err != nil {
		return bundle.Version{}, fmt.Errorf("reader_version: %w", err)
	}
	if v.Compare(bundle.CurrentVersion) > 0 {
		return bundle.Version{}, fmt.Errorf("reader_version %s is newer than the supported format %s", v, bundle.CurrentVersion)
	}
	return v, nil
}

// BundleOptions converts the configuration into manifest parsing options
func (c *Config) BundleOptions() []bundle.Option {
	opts := []bundle.Option{bundle.WithMaxPathLength(c.MaxPathLength)}
	if v, err := c.Reader(); err == nil {
		opts = append(opts, bundle.WithReaderVersion(v))
	}
	return opts
}

func defaultCatalogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "appbundle.db"
	}
	return home + string(os.PathSeparator) + ".appbundle" + string(os.PathSeparator) + "catalog.db"
}
