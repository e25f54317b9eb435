package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/store"
)

var importTo string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the configured dataset into the cell store",
	Long:  "Reads the configured dataset source and replaces every cell in the SQLite or PostGIS store with it. Sample data is never imported.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if importTo != "" {
			cfg.Store.Driver = importTo
		}
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		if cfg.Dataset.Source == "store" {
			return eris.New("import: dataset.source store would import the store into itself")
		}
		ctx := cmd.Context()

		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		_, ds, closeData, err := loadDataset(ctx, reg)
		if err != nil {
			return err
		}
		defer closeData()
		if ds.IsFallback() {
			return eris.Wrap(ds.LoadErr(), "import: dataset did not load")
		}

		st, err := store.Open(ctx, storeConfig())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		imp, err := st.ReplaceAll(ctx, ds.Source(), ds.Records())
		if err != nil {
			return err
		}
		zap.L().Info("import complete",
			zap.String("driver", cfg.Store.Driver),
			zap.String("import_id", imp.ID),
			zap.Int("records", imp.Records),
		)
		formatImport(cmd.OutOrStdout(), imp)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importTo, "to", "", "store driver: sqlite or postgres (default: store.driver)")
	rootCmd.AddCommand(importCmd)
}

func formatImport(out io.Writer, imp *store.Import) {
	_, _ = fmt.Fprintf(out, "imported %d cells from %s (import %s at %s)\n",
		imp.Records, imp.Source, imp.ID, imp.ImportedAt.Format("2006-01-02 15:04:05"))
}
