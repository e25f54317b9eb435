// Package metric holds the registry of displayable cell metrics: their
// labels, color scales, value formatting and derivation rules.
package metric

import (
	"math"

	"github.com/Knetic/govaluate"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
)

// NoData is the formatted form of a missing value.
const NoData = "no data"

// Descriptor describes one metric. It is immutable once registered.
type Descriptor struct {
	Key         string
	Name        string
	Description string
	Unit        string

	Stops     []colorscale.Stop
	Policy    colorscale.Policy
	Sentinel  colorscale.ColorSpec
	Precision int

	// DefaultDomain is the slider domain when the dataset is empty.
	DefaultDomain dataset.Range

	// Derive is an optional expression over other metric keys. It fills the
	// metric on records whose source did not provide it.
	Derive string

	// Aliases are extra header names accepted for the metric's column.
	Aliases []string

	// ShapeField is the column name used in shapefile exports, at most 10
	// bytes. Empty means derived from Key.
	ShapeField string

	scale  colorscale.Scale
	derive *govaluate.EvaluableExpression
}

// Scale is the normalized color scale.
func (d Descriptor) Scale() colorscale.Scale { return d.scale }

// Color resolves a single value against the metric's scale.
func (d Descriptor) Color(v float64, present bool) colorscale.ColorSpec {
	return d.scale.Resolve(v, present)
}

// Derived reports whether the metric has a derivation rule.
func (d Descriptor) Derived() bool { return d.derive != nil }

// Format renders v with the metric's precision and English digit grouping,
// e.g. 4.6 or 1,234.5.
func (d Descriptor) Format(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoData
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(number.Decimal(v, number.Scale(d.Precision)))
}

// FormatValue is Format for a value that may be missing.
func (d Descriptor) FormatValue(v float64, present bool) string {
	if !present {
		return NoData
	}
	return d.Format(v)
}

// Range is the metric's domain over ds, or DefaultDomain when ds is empty
// or nil.
func (d Descriptor) Range(ds *dataset.Dataset) dataset.Range {
	if ds == nil {
		return d.DefaultDomain
	}
	return ds.Range(d.Key, d.DefaultDomain)
}

// Legend labels the scale's stops with Format.
func (d Descriptor) Legend() []colorscale.LegendEntry {
	return d.scale.Legend(d.Format)
}

func (d Descriptor) clone() Descriptor {
	d.Stops = append([]colorscale.Stop(nil), d.Stops...)
	d.Aliases = append([]string(nil), d.Aliases...)
	return d
}
