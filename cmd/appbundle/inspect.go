package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jchantrell/appbundle/internal/bundle"
	"github.com/jchantrell/appbundle/internal/cache"
	"github.com/jchantrell/appbundle/internal/extract"
	"github.com/jchantrell/appbundle/internal/utils"
)

var (
	inspectJSON bool
	inspectCat  string
)

type manifestView struct {
	Container      string      `json:"container"`
	ManifestOffset int64       `json:"manifest_offset"`
	Version        string      `json:"version"`
	BundleID       string      `json:"bundle_id"`
	Flags          uint64      `json:"flags"`
	DepsJSON       *locView    `json:"deps_json,omitempty"`
	RuntimeConfig  *locView    `json:"runtimeconfig_json,omitempty"`
	TotalSize      uint64      `json:"total_size"`
	Entries        []entryView `json:"entries"`
}

type locView struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

type entryView struct {
	Path           string `json:"path"`
	Type           string `json:"type"`
	Offset         uint64 `json:"offset"`
	Size           uint64 `json:"size"`
	CompressedSize uint64 `json:"compressed_size"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <container|url>",
	Short: "Print the manifest of a bundle",
	Long: `Inspect reads and validates the bundle manifest and prints its header and
file entries in manifest order. With --cat, the decoded content of a single
embedded file is written to stdout instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer(cmd.Context(), cache.CacheManager(cfg.ExtractDir), args[0])
		if err != nil {
			return err
		}
		defer container.Close()

		out := cmd.OutOrStdout()
		if inspectCat != "" {
			ex := extract.NewExtractor(container, nil, extract.Options{})
			return ex.WriteTo(out, inspectCat)
		}

		view := newManifestView(container)
		if inspectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		return printManifest(out, view)
	},
}

func newManifestView(c *extract.Container) manifestView {
	h := c.Manifest.Header
	view := manifestView{
		Container:      c.Path,
		ManifestOffset: c.ManifestOffset,
		Version:        h.Version().String(),
		BundleID:       h.BundleID(),
		Flags:          h.Flags(),
		TotalSize:      c.Manifest.TotalSize(),
		Entries:        make([]entryView, 0, len(c.Manifest.Entries)),
	}
	if l := h.DepsJSON(); !l.IsZero() {
		view.DepsJSON = &locView{Offset: l.Offset, Size: l.Size}
	}
	if l := h.RuntimeConfig(); !l.IsZero() {
		view.RuntimeConfig = &locView{Offset: l.Offset, Size: l.Size}
	}
	for _, e := range c.Manifest.Entries {
		view.Entries = append(view.Entries, entryView{
			Path:           e.RelativePath,
			Type:           e.Type.String(),
			Offset:         e.Offset,
			Size:           e.Size,
			CompressedSize: e.CompressedSize,
		})
	}
	return view
}

func printManifest(out io.Writer, view manifestView) error {
	fmt.Fprintf(out, "Bundle:    %s\n", view.BundleID)
	fmt.Fprintf(out, "Version:   %s\n", view.Version)
	fmt.Fprintf(out, "Manifest:  offset %d\n", view.ManifestOffset)
	if view.Flags&bundle.FlagNetcoreApp3CompatMode != 0 {
		fmt.Fprintln(out, "Flags:     netcoreapp3 compatibility mode")
	}
	if view.DepsJSON != nil {
		fmt.Fprintf(out, "deps.json: offset %d, %s\n", view.DepsJSON.Offset, utils.Bytes(uint64(view.DepsJSON.Size)))
	}
	if view.RuntimeConfig != nil {
		fmt.Fprintf(out, "runtimeconfig.json: offset %d, %s\n", view.RuntimeConfig.Offset, utils.Bytes(uint64(view.RuntimeConfig.Size)))
	}
	fmt.Fprintf(out, "Files:     %s (%s)\n\n", utils.Number(int64(len(view.Entries))), utils.Bytes(view.TotalSize))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tOFFSET\tSIZE\tSTORED\tPATH")
	for _, e := range view.Entries {
		stored := "-"
		if e.CompressedSize != e.Size {
			stored = utils.Bytes(e.CompressedSize)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", e.Type, e.Offset, utils.Bytes(e.Size), stored, e.Path)
	}
	return w.Flush()
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the manifest as JSON")
	inspectCmd.Flags().StringVar(&inspectCat, "cat", "", "write the decoded content of one embedded file to stdout")

	rootCmd.AddCommand(inspectCmd)
}
