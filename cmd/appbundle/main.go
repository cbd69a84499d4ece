package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/appbundle/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	extractDir    string
	catalogPath   string
	readerVersion string
	overwrite     bool
	logLevel      string
	logFormat     string
	noProgress    bool
)

var rootCmd = &cobra.Command{
	Use:   "appbundle",
	Short: "Inspect and extract single-file application bundles",
	Long: `appbundle reads the manifest of a single-file application bundle: a host
executable with its libraries, configuration and assets appended to it.

It validates the manifest (format version, file count, every offset and size)
before touching the file system, extracts the embedded files into a per-bundle
directory, and records what it extracted in a local SQLite catalog.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("extract-dir") {
			cfg.ExtractDir = extractDir
		}
		if cmd.Flags().Changed("catalog") {
			cfg.Catalog = catalogPath
		}
		if cmd.Flags().Changed("reader-version") {
			cfg.ReaderVersion = readerVersion
		}
		if cmd.Flags().Changed("overwrite") {
			cfg.Overwrite = overwrite
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		slog.SetDefault(slog.New(newLogHandler(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)))

		slog.Debug("Configuration",
			"extract_dir", cfg.ExtractDir,
			"catalog", cfg.Catalog,
			"reader_version", cfg.ReaderVersion,
			"max_path_length", cfg.MaxPathLength,
			"overwrite", cfg.Overwrite,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

func newLogHandler(w io.Writer, logLevel, logFormat string) slog.Handler {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if logFormat == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}
	return tint.NewHandler(w, &tint.Options{
		Level: level,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is appbundle.yaml in $HOME or pwd)")
	rootCmd.PersistentFlags().StringVar(&extractDir, "extract-dir", "", "base directory for extracted bundles")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog database path (empty string disables the catalog)")
	rootCmd.PersistentFlags().StringVar(&readerVersion, "reader-version", "", "parse as an older manifest reader (major.minor)")
	rootCmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "replace an existing extraction instead of reusing it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
