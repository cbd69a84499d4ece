package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jchantrell/appbundle/internal/database"
	"github.com/jchantrell/appbundle/internal/utils"
)

var purgeExtraction bool

var errCatalogDisabled = errors.New("catalog is disabled, set --catalog or APPBUNDLE_CATALOG")

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the bundles recorded in the catalog",
	Long: `Catalog lists every bundle recorded by extract, with its format version,
file count and extraction directory. Subcommands show the entries of one
bundle, look up a single path, forget a bundle or run SQL against the catalog.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireCatalog()
		if err != nil {
			return err
		}
		defer db.Close()

		bundles, err := db.ListBundles(cmd.Context())
		if err != nil {
			return err
		}
		if len(bundles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No bundles recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BUNDLE\tVERSION\tFILES\tSIZE\tEXTRACTED\tCONTAINER")
		for _, b := range bundles {
			extracted := "-"
			if !b.ExtractedAt.IsZero() {
				extracted = b.ExtractDir
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				b.BundleID, b.Version, utils.Number(int64(b.FileCount)), utils.Bytes(b.TotalSize), extracted, b.Container)
		}
		return w.Flush()
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <bundle-id>",
	Short: "List the catalogued entries of a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireCatalog()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListEntries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("bundle %s: %w", args[0], database.ErrNotFound)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTYPE\tOFFSET\tSIZE\tSTORED\tPATH")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n", e.Ordinal, e.FileType, e.Offset, e.Size, e.CompressedSize, e.RelativePath)
		}
		return w.Flush()
	},
}

var catalogLookupCmd = &cobra.Command{
	Use:   "lookup <bundle-id> <path>",
	Short: "Show where a file lives inside a catalogued bundle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireCatalog()
		if err != nil {
			return err
		}
		defer db.Close()

		e, err := db.LookupEntry(cmd.Context(), args[0], args[1])
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("%s in bundle %s: %w", args[1], args[0], err)
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Path:       %s\n", e.RelativePath)
		fmt.Fprintf(out, "Ordinal:    %d\n", e.Ordinal)
		fmt.Fprintf(out, "Type:       %s\n", e.FileType)
		fmt.Fprintf(out, "Offset:     %d\n", e.Offset)
		fmt.Fprintf(out, "Size:       %s\n", utils.Bytes(uint64(e.Size)))
		if e.CompressedSize != e.Size {
			fmt.Fprintf(out, "Compressed: %s\n", utils.Bytes(uint64(e.CompressedSize)))
		}
		return nil
	},
}

var catalogForgetCmd = &cobra.Command{
	Use:   "forget <bundle-id>",
	Short: "Remove a bundle from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireCatalog()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		var extractDir string
		if purgeExtraction {
			bundles, err := db.ListBundles(ctx)
			if err != nil {
				return err
			}
			for _, b := range bundles {
				if b.BundleID == args[0] {
					extractDir = b.ExtractDir
				}
			}
		}

		if err := db.Forget(ctx, args[0]); err != nil {
			return fmt.Errorf("forgetting %s: %w", args[0], err)
		}

		if extractDir != "" {
			slog.Info("Removing extraction", "dir", extractDir)
			if err := os.RemoveAll(extractDir); err != nil {
				return fmt.Errorf("removing %s: %w", extractDir, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", args[0])
		return nil
	},
}

var catalogQueryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SQL query against the catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Catalog == "" {
			return errCatalogDisabled
		}
		options := database.DefaultDatabaseOptions(cfg.Catalog)
		options.QueryOnly = true
		db, err := database.NewDatabase(options)
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer db.Close()

		query := args[0]
		slog.Debug("Executing SQL query", "query", query)

		rows, err := db.Query(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("executing query: %w", err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("getting column names: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, strings.Join(columns, "\t"))
		separators := make([]string, len(columns))
		for i, col := range columns {
			separators[i] = strings.Repeat("-", len(col))
		}
		fmt.Fprintln(out, strings.Join(separators, "\t"))

		for rows.Next() {
			values := make([]interface{}, len(columns))
			valuePtrs := make([]interface{}, len(columns))
			for i := range values {
				valuePtrs[i] = &values[i]
			}

			if err := rows.Scan(valuePtrs...); err != nil {
				return fmt.Errorf("scanning row: %w", err)
			}
			printRow(out, values)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating rows: %w", err)
		}
		return nil
	},
}

func printRow(out io.Writer, values []interface{}) {
	cells := make([]string, len(values))
	for i, val := range values {
		switch v := val.(type) {
		case nil:
			cells[i] = "NULL"
		case []byte:
			cells[i] = string(v)
		default:
			cells[i] = fmt.Sprint(v)
		}
	}
	fmt.Fprintln(out, strings.Join(cells, "\t"))
}

// requireCatalog opens the catalog for commands that cannot run without it
func requireCatalog() (*database.Database, error) {
	db, err := openCatalog()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errCatalogDisabled
	}
	return db, nil
}

func init() {
	catalogForgetCmd.Flags().BoolVar(&purgeExtraction, "purge", false, "also delete the extracted files")

	catalogCmd.AddCommand(catalogShowCmd, catalogLookupCmd, catalogForgetCmd, catalogQueryCmd)
	rootCmd.AddCommand(catalogCmd)
}
