package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/cache"
	"github.com/jchantrell/appbundle/internal/database"
	"github.com/jchantrell/appbundle/internal/extract"
	"github.com/jchantrell/appbundle/internal/utils"
)

type ExtractionStats struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalFiles   int
	FilesWritten int
	BytesWritten uint64
	Reused       bool
}

var (
	forceDownload bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <container|url>",
	Short: "Extract the embedded files of a bundle into the extraction cache",
	Long: `Extract reads the bundle manifest, validates every entry against the container,
and writes the embedded files to <extract-dir>/<bundle-id>.

An existing complete extraction of the same bundle id is reused unless
--overwrite is given. The container may be an http(s) URL, in which case it is
downloaded into the cache first (use --force to download it again).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		stats := &ExtractionStats{
			StartTime: time.Now(),
		}

		var memStatsStart runtime.MemStats
		runtime.ReadMemStats(&memStatsStart)

		cache := cache.CacheManager(cfg.ExtractDir)

		container, err := openContainer(ctx, cache, args[0])
		if err != nil {
			return err
		}
		defer container.Close()

		m := container.Manifest
		stats.TotalFiles = len(m.Entries)

		slog.Info("Starting extract...",
			"bundle_id", m.Header.BundleID(),
			"version", m.Header.Version().String(),
			"files", len(m.Entries))

		db, err := openCatalog()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
			if err := db.RecordManifest(ctx, container.Path, m); err != nil {
				return fmt.Errorf("recording manifest: %w", err)
			}
		}

		progress := utils.NewProgress(int64(m.TotalSize()), !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug"))

		var written int64
		extractor := extract.NewExtractor(container, cache, extract.Options{
			Overwrite: cfg.Overwrite,
			Progress: func(current, total int, description string) {
				if e, ok := m.Entry(description); ok {
					written += int64(e.Size)
				}
				progress.Update(written, description)
			},
		})

		result, err := extractor.Extract(ctx)
		progress.Finish()
		if err != nil {
			return fmt.Errorf("extracting bundle: %w", err)
		}

		stats.Reused = result.Reused
		stats.FilesWritten = result.FilesWritten
		stats.BytesWritten = result.BytesWritten
		stats.EndTime = time.Now()

		if db != nil {
			if err := db.MarkExtracted(ctx, m.Header.BundleID(), result.Dir, stats.EndTime); err != nil {
				return fmt.Errorf("updating catalog: %w", err)
			}
		}

		var memStatsEnd runtime.MemStats
		runtime.ReadMemStats(&memStatsEnd)

		printExtractionSummary(cmd, stats, result.Dir, memStatsStart, memStatsEnd)
		return nil
	},
}

// openContainer resolves target to a local file, downloading URLs into the
// cache, and parses its manifest with the configured reader options.
func openContainer(ctx context.Context, cache *cache.Cache, target string) (*extract.Container, error) {
	path := target
	if utils.IsURL(target) {
		path = cache.GetDownloadPath(downloadName(target))
		if forceDownload || !cache.FileExists(path) {
			slog.Info("Downloading container", "url", target, "path", path)
			if err := cache.EnsureDir(filepath.Dir(path)); err != nil {
				return nil, fmt.Errorf("creating download directory: %w", err)
			}
			if err := utils.DownloadFile(ctx, path, target); err != nil {
				return nil, fmt.Errorf("downloading %s: %w", target, err)
			}
		} else {
			slog.Debug("Using cached download", "path", path, "size", cache.GetFileSize(path))
		}
	}

	container, err := extract.OpenContainer(path, cfg.BundleOptions()...)
	if err != nil {
		var fe *bundle.FormatError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%s: %w", bundle.Describe(err), err)
		}
		return nil, err
	}
	return container, nil
}

// downloadName picks a cache file name for a URL
func downloadName(url string) string {
	name := path.Base(url)
	if name == "." || name == "/" || name == "" {
		return "container"
	}
	return name
}

// openCatalog opens the configured catalog, or returns nil when it is disabled
func openCatalog() (*database.Database, error) {
	if cfg.Catalog == "" {
		return nil, nil
	}
	db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Catalog))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	return db, nil
}

func printExtractionSummary(cmd *cobra.Command, stats *ExtractionStats, dir string, start, end runtime.MemStats) {
	out := cmd.OutOrStdout()
	duration := stats.EndTime.Sub(stats.StartTime)

	fmt.Fprintln(out)
	if stats.Reused {
		fmt.Fprintf(out, "Reused existing extraction in %s\n", dir)
		return
	}
	fmt.Fprintf(out, "Extracted to %s\n", dir)
	fmt.Fprintf(out, "  Files:    %s / %s\n", utils.Number(int64(stats.FilesWritten)), utils.Number(int64(stats.TotalFiles)))
	fmt.Fprintf(out, "  Size:     %s\n", utils.Bytes(stats.BytesWritten))
	fmt.Fprintf(out, "  Duration: %s\n", utils.Duration(duration))

	slog.Debug("Memory usage",
		"alloc_start", utils.Bytes(start.Alloc),
		"alloc_end", utils.Bytes(end.Alloc),
		"total_alloc", utils.Bytes(end.TotalAlloc-start.TotalAlloc),
		"num_gc", end.NumGC-start.NumGC)
}

func init() {
	extractCmd.Flags().BoolVar(&forceDownload, "force", false, "download the container again even if it is cached")

	rootCmd.AddCommand(extractCmd)
}
