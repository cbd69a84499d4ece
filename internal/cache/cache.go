package cache

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvExtractBaseDir overrides the extraction base directory.
const EnvExtractBaseDir = "APPBUNDLE_EXTRACT_BASE_DIR"

// Cache resolves where bundles are extracted and downloaded to.
type Cache struct {
	baseDir string
}

// CacheManager creates a cache rooted at baseDir. An empty baseDir falls back
// to $APPBUNDLE_EXTRACT_BASE_DIR, then to ~/.appbundle/extract.
func CacheManager(baseDir string) *Cache {
	return &Cache{baseDir: baseDir}
}

// GetBaseDir returns the extraction base directory
func (m *Cache) GetBaseDir() string {
	if m.baseDir != "" {
		return m.baseDir
	}
	if dir := os.Getenv(EnvExtractBaseDir); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".appbundle", "extract")
	}
	return filepath.Join(homeDir, ".appbundle", "extract")
}

// GetBundleDir returns the extraction root for a bundle id
func (m *Cache) GetBundleDir(bundleID string) string {
	return filepath.Join(m.GetBaseDir(), bundleID)
}

// GetStagingDir returns a sibling of the bundle dir used while extracting
func (m *Cache) GetStagingDir(bundleID string) string {
	return filepath.Join(m.GetBaseDir(), ".staging", bundleID)
}

// GetDownloadPath returns where a remotely fetched container is stored
func (m *Cache) GetDownloadPath(name string) string {
	safeName := strings.ReplaceAll(name, "/", "_")
	safeName = strings.ReplaceAll(safeName, " ", "_")
	return filepath.Join(m.GetBaseDir(), ".downloads", safeName)
}

// EnsureDir creates a directory and all parent directories
func (m *Cache) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (m *Cache) FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// GetFileSize returns the size of a file, or 0 if it doesn't exist
func (m *Cache) GetFileSize(filename string) int64 {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	return info.Size()
}
