// Package render bridges sessions to the browser map renderer: it composes
// paint rules, holds them until the renderer is ready, and relays click and
// hover events back as formatted panels.
package render

import (
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/expr"
	"github.com/sells-group/hexplorer/internal/metric"
)

// Update is everything the renderer applies for one selection: the fill
// color rule and identical-bounds filters for the fill and outline layers.
// A nil filter clears the layer filter.
type Update struct {
	Metric         string    `json:"metric"`
	FillColor      expr.Expr `json:"fill_color"`
	Filter         expr.Expr `json:"filter"`
	OutlineFilter  expr.Expr `json:"outline_filter"`
	FillOpacity    float64   `json:"fill_opacity"`
	OutlineColor   string    `json:"outline_color"`
	Fallback       bool      `json:"fallback"`
	DatasetVersion uint64    `json:"dataset_version"`
	SessionVersion uint64    `json:"session_version,omitempty"`
}

// Options are the layer styling knobs.
type Options struct {
	FillOpacity   float64
	OutlineColor  colorscale.ColorSpec
	FallbackColor colorscale.ColorSpec
}

// DefaultOptions match the stock fill and outline layers.
func DefaultOptions() Options {
	return Options{
		FillOpacity:   0.7,
		OutlineColor:  colorscale.RGB(0xff, 0xff, 0xff),
		FallbackColor: colorscale.Neutral,
	}
}

// Compose builds the Update for desc with an optional inclusive filter. A
// scale too small to compile is painted with a flat color instead; the
// session keeps working.
func Compose(desc metric.Descriptor, filter *dataset.Range, opts Options) Update {
	u := Update{
		Metric:       desc.Key,
		FillOpacity:  opts.FillOpacity,
		OutlineColor: opts.OutlineColor.String(),
	}

	fill, err := expr.Compile(desc.Key, desc.Scale())
	if err != nil {
		if !errors.Is(err, expr.ErrInsufficientStops) {
			zap.L().Error("render: compile failed", zap.String("metric", desc.Key), zap.Error(err))
		} else {
			zap.L().Warn("render: using flat fill", zap.String("metric", desc.Key), zap.Error(err))
		}
		fill = expr.Flat(opts.FallbackColor)
		u.Fallback = true
	}
	u.FillColor = fill

	if filter != nil {
		u.Filter = expr.RangeFilter(desc.Key, filter.Min, filter.Max)
		u.OutlineFilter = expr.RangeFilter(desc.Key, filter.Min, filter.Max)
	}
	return u
}
