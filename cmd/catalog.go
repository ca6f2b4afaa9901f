package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/siteselect-cli/internal/db"
	"github.com/sells-group/siteselect-cli/internal/facts"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Load reference fact tables",
	Long:  "Bulk-loads the ZIP catalog and county fact tables from CSV files.",
}

var catalogLoadZipsCmd = &cobra.Command{
	Use:   "load-zips <file.csv>",
	Short: "Upsert ZIP reference rows from a headed CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadCatalogCSV(cmd, args[0], facts.LoadZIPCatalog)
	},
}

var catalogLoadCountiesCmd = &cobra.Command{
	Use:   "load-counties <file.csv>",
	Short: "Upsert county fact rows from a headed CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadCatalogCSV(cmd, args[0], facts.LoadCountyFacts)
	},
}

func loadCatalogCSV(cmd *cobra.Command, path string, load func(ctx context.Context, pool db.Pool, r io.Reader) (int64, error)) error {
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := migrateAll(ctx, pool); err != nil {
		return err
	}

	n, err := load(ctx, pool, f)
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	p.Printf("Loaded %d rows from %s\n", n, path)
	return nil
}

func init() {
	catalogCmd.AddCommand(catalogLoadZipsCmd)
	catalogCmd.AddCommand(catalogLoadCountiesCmd)
	rootCmd.AddCommand(catalogCmd)
}
