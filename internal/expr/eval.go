package expr

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexplorer/internal/colorscale"
)

// Eval evaluates an expression against feature properties. It covers the
// operators this package emits plus the common logical ones, with the
// renderer's semantics: step takes the output of the last threshold <= input,
// interpolate clamps to its edge stops and blends colors per RGB channel.
func Eval(e any, props map[string]any) (any, error) {
	switch v := e.(type) {
	case Expr:
		return evalCall([]any(v), props)
	case []any:
		return evalCall(v, props)
	default:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		return v, nil
	}
}

// Matches evaluates a filter. A nil filter matches everything; an evaluation
// error does not match, as in the renderer.
func Matches(filter Expr, props map[string]any) bool {
	if filter == nil {
		return true
	}
	out, err := Eval(filter, props)
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

func evalCall(call []any, props map[string]any) (any, error) {
	if len(call) == 0 {
		return nil, eris.New("expr: empty expression")
	}
	op, ok := call[0].(string)
	if !ok {
		return nil, eris.Errorf("expr: operator must be a string, got %T", call[0])
	}
	args := call[1:]

	switch op {
	case "literal":
		if len(args) != 1 {
			return nil, arity(op, 1, len(args))
		}
		return args[0], nil

	case "get":
		name, err := stringArg(op, args)
		if err != nil {
			return nil, err
		}
		val, ok := props[name]
		if !ok {
			return nil, nil
		}
		if f, ok := toFloat(val); ok {
			// Feature properties travel as JSON, where NaN has no form and
			// arrives as null.
			if math.IsNaN(f) {
				return nil, nil
			}
			return f, nil
		}
		return val, nil

	case "has":
		name, err := stringArg(op, args)
		if err != nil {
			return nil, err
		}
		_, ok := props[name]
		return ok, nil

	case "coalesce":
		for _, a := range args {
			out, err := Eval(a, props)
			if err != nil {
				return nil, err
			}
			if out != nil {
				return out, nil
			}
		}
		return nil, nil

	case "to-number":
		if len(args) == 0 {
			return nil, arity(op, 1, 0)
		}
		out, err := Eval(args[0], props)
		if err != nil {
			return nil, err
		}
		return toNumber(out)

	case "to-color":
		if len(args) == 0 {
			return nil, arity(op, 1, 0)
		}
		out, err := Eval(args[0], props)
		if err != nil {
			return nil, err
		}
		s, ok := out.(string)
		if !ok {
			return nil, eris.Errorf("expr: to-color expects a string, got %T", out)
		}
		c, err := colorscale.ParseColor(s)
		if err != nil {
			return nil, err
		}
		return c.String(), nil

	case "==", "!=":
		a, b, err := evalPair(op, args, props)
		if err != nil {
			return nil, err
		}
		eq := equal(a, b)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil

	case "<", "<=", ">", ">=":
		a, b, err := evalPair(op, args, props)
		if err != nil {
			return nil, err
		}
		x, okA := toFloat(a)
		y, okB := toFloat(b)
		if !okA || !okB {
			return nil, eris.Errorf("expr: %s expects numbers, got %T and %T", op, a, b)
		}
		switch op {
		case "<":
			return x < y, nil
		case "<=":
			return x <= y, nil
		case ">":
			return x > y, nil
		default:
			return x >= y, nil
		}

	case "!":
		if len(args) != 1 {
			return nil, arity(op, 1, len(args))
		}
		b, err := evalBool(args[0], props)
		if err != nil {
			return nil, err
		}
		return !b, nil

	case "all", "any":
		want := op == "any"
		for _, a := range args {
			b, err := evalBool(a, props)
			if err != nil {
				return nil, err
			}
			if b == want {
				return want, nil
			}
		}
		return !want, nil

	case "case":
		if len(args) < 3 || len(args)%2 == 0 {
			return nil, eris.Errorf("expr: case needs condition/output pairs and a fallback, got %d args", len(args))
		}
		for i := 0; i+1 < len(args); i += 2 {
			b, err := evalBool(args[i], props)
			if err != nil {
				return nil, err
			}
			if b {
				return Eval(args[i+1], props)
			}
		}
		return Eval(args[len(args)-1], props)

	case "step":
		return evalStep(args, props)

	case "interpolate":
		return evalInterpolate(args, props)
	}

	return nil, eris.Errorf("expr: unsupported operator %q", op)
}

func evalStep(args []any, props map[string]any) (any, error) {
	if len(args) < 2 || len(args)%2 != 0 {
		return nil, eris.Errorf("expr: step needs input, base and threshold/output pairs, got %d args", len(args))
	}
	in, err := evalNumber("step", args[0], props)
	if err != nil {
		return nil, err
	}

	out := args[1]
	prev := 0.0
	for i := 2; i < len(args); i += 2 {
		th, ok := toFloat(args[i])
		if !ok {
			return nil, eris.Errorf("expr: step threshold must be a number, got %T", args[i])
		}
		if i > 2 && th <= prev {
			return nil, eris.New("expr: step thresholds must be strictly ascending")
		}
		prev = th
		if in >= th {
			out = args[i+1]
		}
	}
	return Eval(out, props)
}

func evalInterpolate(args []any, props map[string]any) (any, error) {
	if len(args) < 4 || len(args)%2 != 0 {
		return nil, eris.Errorf("expr: interpolate needs type, input and stop pairs, got %d args", len(args))
	}
	kind, ok := asCall(args[0])
	if !ok || len(kind) != 1 || kind[0] != "linear" {
		return nil, eris.Errorf("expr: only linear interpolation is supported, got %v", args[0])
	}
	in, err := evalNumber("interpolate", args[1], props)
	if err != nil {
		return nil, err
	}

	type stop struct {
		at  float64
		out any
	}
	stops := make([]stop, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		at, ok := toFloat(args[i])
		if !ok {
			return nil, eris.Errorf("expr: interpolate stop must be a number, got %T", args[i])
		}
		if len(stops) > 0 && at <= stops[len(stops)-1].at {
			return nil, eris.New("expr: interpolate stops must be strictly ascending")
		}
		out, err := Eval(args[i+1], props)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop{at: at, out: out})
	}

	n := len(stops)
	if in <= stops[0].at {
		return stops[0].out, nil
	}
	if in >= stops[n-1].at {
		return stops[n-1].out, nil
	}
	for i := 1; i < n; i++ {
		lo, hi := stops[i-1], stops[i]
		if in == lo.at {
			return lo.out, nil
		}
		if in >= hi.at {
			continue
		}
		f := (in - lo.at) / (hi.at - lo.at)
		return blend(lo.out, hi.out, f)
	}
	return stops[n-1].out, nil
}

// blend interpolates two numbers or two colors.
func blend(a, b any, f float64) (any, error) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return nil, eris.Errorf("expr: cannot interpolate %T with %T", a, b)
		}
		return x + f*(y-x), nil
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if !okA || !okB {
		return nil, eris.Errorf("expr: cannot interpolate %T with %T", a, b)
	}
	ca, err := colorscale.ParseColor(sa)
	if err != nil {
		return nil, err
	}
	cb, err := colorscale.ParseColor(sb)
	if err != nil {
		return nil, err
	}
	return colorscale.Lerp(ca, cb, f).String(), nil
}

func evalPair(op string, args []any, props map[string]any) (any, any, error) {
	if len(args) != 2 {
		return nil, nil, arity(op, 2, len(args))
	}
	a, err := Eval(args[0], props)
	if err != nil {
		return nil, nil, err
	}
	b, err := Eval(args[1], props)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func evalBool(e any, props map[string]any) (bool, error) {
	out, err := Eval(e, props)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, eris.Errorf("expr: expected boolean, got %T", out)
	}
	return b, nil
}

func evalNumber(op string, e any, props map[string]any) (float64, error) {
	out, err := Eval(e, props)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(out)
	if !ok {
		return 0, eris.Errorf("expr: %s input must be a number, got %T", op, out)
	}
	return f, nil
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	return a == b
}

func toNumber(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return 0.0, nil
	case bool:
		if t {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "expr: to-number %q", t)
		}
		return f, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, eris.Errorf("expr: cannot convert %T to number", v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func asCall(v any) ([]any, bool) {
	switch t := v.(type) {
	case Expr:
		return []any(t), true
	case []any:
		return t, true
	}
	return nil, false
}

func stringArg(op string, args []any) (string, error) {
	if len(args) != 1 {
		return "", arity(op, 1, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", eris.Errorf("expr: %s expects a string argument, got %T", op, args[0])
	}
	return s, nil
}

func arity(op string, want, got int) error {
	return eris.Errorf("expr: %s expects %d args, got %d", op, want, got)
}
