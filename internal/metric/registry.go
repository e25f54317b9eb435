package metric

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/colorscale"
	"github.com/sells-group/hexplorer/internal/dataset"
)

var (
	// ErrUnknownMetric is a lookup of an unregistered key.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrDuplicateMetric is two descriptors with the same key.
	ErrDuplicateMetric = errors.New("duplicate metric")
)

// Registry is the read-only set of metrics, in declaration order.
type Registry struct {
	order []string
	byKey map[string]*Descriptor
}

// New validates descs and builds each scale and derivation once.
func New(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, eris.New("metric: registry is empty")
	}
	r := &Registry{byKey: make(map[string]*Descriptor, len(descs))}
	for _, in := range descs {
		d := in.clone()
		if strings.TrimSpace(d.Key) == "" {
			return nil, eris.New("metric: descriptor without key")
		}
		if _, dup := r.byKey[d.Key]; dup {
			return nil, eris.Wrapf(ErrDuplicateMetric, "metric: %q", d.Key)
		}
		if d.Name == "" {
			d.Name = d.Key
		}
		if d.DefaultDomain == (dataset.Range{}) {
			d.DefaultDomain = dataset.GenericRange
		}
		if err := d.DefaultDomain.Validate(); err != nil {
			return nil, eris.Wrapf(err, "metric: %q default domain", d.Key)
		}

		scale, err := colorscale.NewScale(d.Stops, d.Policy, d.Sentinel)
		if err != nil {
			return nil, eris.Wrapf(err, "metric: %q scale", d.Key)
		}
		d.scale = scale

		if d.Derive != "" {
			expr, err := govaluate.NewEvaluableExpressionWithFunctions(d.Derive, deriveFunctions)
			if err != nil {
				return nil, eris.Wrapf(err, "metric: %q derive expression", d.Key)
			}
			if slices.Contains(expr.Vars(), d.Key) {
				return nil, eris.Errorf("metric: %q derive expression references itself", d.Key)
			}
			d.derive = expr
		}

		r.byKey[d.Key] = &d
		r.order = append(r.order, d.Key)
	}
	return r, nil
}

// Keys lists metric keys in declaration order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.order...)
}

// All lists descriptors in declaration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.order))
	for i, k := range r.order {
		out[i] = r.byKey[k].clone()
	}
	return out
}

// Lookup returns the descriptor for key or ErrUnknownMetric.
func (r *Registry) Lookup(key string) (Descriptor, error) {
	d, ok := r.byKey[key]
	if !ok {
		return Descriptor{}, eris.Wrapf(ErrUnknownMetric, "metric: %q", key)
	}
	return d.clone(), nil
}

// MustLookup panics on an unknown key. Keys come from a closed set, so a
// miss is a programming error.
func (r *Registry) MustLookup(key string) Descriptor {
	d, err := r.Lookup(key)
	if err != nil {
		panic(err)
	}
	return d
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

// First is the first declared key.
func (r *Registry) First() string { return r.order[0] }

// Schema is the tabular layout that reads every registered metric. Shapefile
// field names count as aliases so exported shapefiles read back.
func (r *Registry) Schema() dataset.Schema {
	s := dataset.DefaultSchema(r.order...)
	for _, k := range r.order {
		d := r.byKey[k]
		aliases := d.Aliases
		if d.ShapeField != "" {
			aliases = append(append([]string(nil), aliases...), d.ShapeField)
		}
		if len(aliases) > 0 {
			s = s.WithAliases(k, aliases...)
		}
	}
	return s
}

// Derive fills derived metrics on records that lack them. Variables missing
// from a record count as 0. It has the dataset.Transform signature.
func (r *Registry) Derive(records []dataset.Record) {
	for _, k := range r.order {
		d := r.byKey[k]
		if d.derive == nil {
			continue
		}
		vars := d.derive.Vars()
		params := make(map[string]any, len(vars))

		var filled, failed int
		var firstErr error
		for i := range records {
			rec := &records[i]
			if _, ok := rec.Value(k); ok {
				continue
			}
			for _, v := range vars {
				val, _ := rec.Value(v)
				params[v] = val
			}
			out, err := d.derive.Evaluate(params)
			if err == nil {
				f, ok := out.(float64)
				if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
					err = fmt.Errorf("result %v is not a finite number", out)
				} else {
					rec.Set(k, f)
					filled++
					continue
				}
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}

		if failed > 0 {
			zap.L().Warn("metric: derive failed for some records",
				zap.String("metric", k),
				zap.Int("failed", failed),
				zap.Error(firstErr),
			)
		}
		if filled > 0 {
			zap.L().Debug("metric: derived values", zap.String("metric", k), zap.Int("filled", filled))
		}
	}
}

var deriveFunctions = map[string]govaluate.ExpressionFunction{
	"round1": func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("round1 expects 1 argument, got %d", len(args))
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("round1 expects a number, got %T", args[0])
		}
		return roundTo(x, 1), nil
	},
	"round": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("round expects 2 arguments, got %d", len(args))
		}
		x, ok1 := args[0].(float64)
		n, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("round expects numbers")
		}
		return roundTo(x, int(n)), nil
	},
	"max": func(args ...any) (any, error) { return fold(args, math.Max) },
	"min": func(args ...any) (any, error) { return fold(args, math.Min) },
}

func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func fold(args []any, fn func(a, b float64) float64) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expects at least 1 argument")
	}
	acc, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("expects numbers, got %T", args[0])
	}
	for _, a := range args[1:] {
		f, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("expects numbers, got %T", a)
		}
		acc = fn(acc, f)
	}
	return acc, nil
}
