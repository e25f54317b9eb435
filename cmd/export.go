package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/export"
	"github.com/sells-group/hexplorer/internal/metric"
)

var (
	exportFormat string
	exportOut    string
	exportMetric string
	exportMin    float64
	exportMax    float64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the dataset's cells to GeoJSON or a shapefile",
	Long:  "Writes every cell, or with --metric --min --max only the cells the map would show under that filter, with all registry metrics as attributes.",
	Example: `  hexplorer export --format geojson --out cells.geojson
  hexplorer export --format shp --out out/cells.shp --metric LDAC_suitability_elec --min 2 --max 4`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		format := strings.ToLower(exportFormat)
		if format != "geojson" && format != "shp" {
			return eris.Errorf("export: --format %q must be geojson or shp", exportFormat)
		}
		if exportOut == "" {
			return eris.New("export: --out is required")
		}
		ctx := cmd.Context()

		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		filter := export.Filter{Metric: exportMetric}
		if exportMetric != "" {
			if !reg.Has(exportMetric) {
				return eris.Wrapf(metric.ErrUnknownMetric, "export: %q", exportMetric)
			}
			filter.Range, err = flagFilter(cmd, "min", "max", exportMin, exportMax)
			if err != nil {
				return err
			}
		}

		_, ds, closeData, err := loadDataset(ctx, reg)
		if err != nil {
			return err
		}
		defer closeData()
		if ds.IsFallback() {
			zap.L().Warn("export: writing sample data", zap.Error(ds.LoadErr()))
		}

		records := export.Select(ds.Records(), filter)
		if dir := filepath.Dir(exportOut); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return eris.Wrapf(err, "export: create %s", dir)
			}
		}

		var n int
		switch format {
		case "geojson":
			n, err = writeGeoJSONFile(cmd, exportOut, records, reg.Keys())
		case "shp":
			n, err = export.WriteShapefile(exportOut, records, reg.All())
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d of %d cells to %s\n", n, ds.Len(), exportOut)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFormat, "format", "geojson", "output format: geojson or shp")
	f.StringVarP(&exportOut, "out", "o", "", "output path (.geojson or .shp)")
	f.StringVar(&exportMetric, "metric", "", "filter metric key")
	f.Float64Var(&exportMin, "min", 0, "filter lower bound, inclusive")
	f.Float64Var(&exportMax, "max", 0, "filter upper bound, inclusive")
	rootCmd.AddCommand(exportCmd)
}

func writeGeoJSONFile(cmd *cobra.Command, path string, records []dataset.Record, keys []string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	bw := bufio.NewWriter(f)
	n, err := export.WriteGeoJSON(cmd.Context(), bw, records, keys)
	if err == nil {
		err = eris.Wrap(bw.Flush(), "export: flush")
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = eris.Wrap(cerr, "export: close")
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return n, err
}
