package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/render"
)

var (
	queryMetric string
	colorValue  float64
	paintMin    float64
	paintMax    float64
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List the metric registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		formatMetrics(cmd.OutOrStdout(), reg, defaultMetric(reg))
		return nil
	},
}

var colorCmd = &cobra.Command{
	Use:   "color",
	Short: "Resolve one value to its color",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		d, err := lookupMetric()
		if err != nil {
			return err
		}
		present := cmd.Flags().Changed("value")
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.FormatValue(colorValue, present), d.Color(colorValue, present))
		return nil
	},
}

var paintCmd = &cobra.Command{
	Use:   "paint",
	Short: "Print the compiled paint rule as JSON",
	Long:  "Prints the fill color expression and, with --min and --max, the fill and outline filters the renderer would apply.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		d, err := lookupMetric()
		if err != nil {
			return err
		}
		filter, err := flagFilter(cmd, "min", "max", paintMin, paintMax)
		if err != nil {
			return err
		}
		opts, err := renderOptions()
		if err != nil {
			return err
		}
		return writeIndentedJSON(cmd.OutOrStdout(), render.Compose(d, filter, opts))
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Find a metric's range over the configured dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("query"); err != nil {
			return err
		}
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		d, err := reg.Lookup(queryMetric)
		if err != nil {
			return err
		}
		_, ds, closeData, err := loadDataset(cmd.Context(), reg)
		if err != nil {
			return err
		}
		defer closeData()

		formatRange(cmd.OutOrStdout(), d, ds)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{colorCmd, paintCmd, rangeCmd} {
		c.Flags().StringVar(&queryMetric, "metric", "", "metric key (default: the registry default)")
	}
	colorCmd.Flags().Float64Var(&colorValue, "value", 0, "value to resolve (omit for a missing value)")
	paintCmd.Flags().Float64Var(&paintMin, "min", 0, "filter lower bound, inclusive")
	paintCmd.Flags().Float64Var(&paintMax, "max", 0, "filter upper bound, inclusive")
	rootCmd.AddCommand(metricsCmd, colorCmd, paintCmd, rangeCmd)
}

// lookupMetric resolves --metric against the configured registry.
func lookupMetric() (metric.Descriptor, error) {
	reg, err := loadRegistry()
	if err != nil {
		return metric.Descriptor{}, err
	}
	key := queryMetric
	if key == "" {
		key = defaultMetric(reg)
	}
	return reg.Lookup(key)
}

// flagFilter reads an inclusive range from a pair of flags. Neither flag
// set means no filter.
func flagFilter(cmd *cobra.Command, minFlag, maxFlag string, lo, hi float64) (*dataset.Range, error) {
	hasMin, hasMax := cmd.Flags().Changed(minFlag), cmd.Flags().Changed(maxFlag)
	if !hasMin && !hasMax {
		return nil, nil
	}
	if hasMin != hasMax {
		return nil, eris.Errorf("--%s and --%s must be given together", minFlag, maxFlag)
	}
	r := dataset.Range{Min: lo, Max: hi}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// formatMetrics writes a tabular listing of the registry to out.
func formatMetrics(out io.Writer, reg *metric.Registry, def string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tPOLICY\tSTOPS\tDOMAIN\tDERIVED")
	_, _ = fmt.Fprintln(w, "---\t----\t------\t-----\t------\t-------")
	for _, d := range reg.All() {
		key := d.Key
		if key == def {
			key += " *"
		}
		derived := ""
		if d.Derived() {
			derived = d.Derive
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s – %s\t%s\n",
			key,
			d.Name,
			d.Policy,
			d.Scale().Len(),
			d.Format(d.DefaultDomain.Min),
			d.Format(d.DefaultDomain.Max),
			derived,
		)
	}
	_ = w.Flush()
}

// formatRange writes the metric's range over ds and the slider step.
func formatRange(out io.Writer, d metric.Descriptor, ds *dataset.Dataset) {
	r := d.Range(ds)
	_, _ = fmt.Fprintf(out, "%s\tmin=%s\tmax=%s\tstep=%g\tcells=%d\tsource=%s",
		d.Key, d.Format(r.Min), d.Format(r.Max), r.Step(d.Precision), ds.Len(), ds.Source())
	if ds.IsFallback() {
		_, _ = fmt.Fprint(out, " (sample data)")
	}
	_, _ = fmt.Fprintln(out)
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}
