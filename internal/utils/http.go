package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// IsURL reports whether s should be fetched rather than opened
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// DownloadFile downloads a file from the given URL to the specified filepath.
// The file is written under a temporary name and renamed once complete.
func DownloadFile(ctx context.Context, filepath string, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	// Get the data
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Check server response
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	// Create the file
	tmp := filepath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	// Copy the response body to file
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, filepath)
}
