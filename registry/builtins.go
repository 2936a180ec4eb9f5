package registry

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	categoryMath       = "math"
	categoryStatistics = "statistics"
	categoryBusiness   = "business"
)

func registerBuiltins(r *Registry) {
	// math
	r.Register("abs", unary("abs", math.Abs),
		Meta{Category: categoryMath, Description: "absolute value", Arity: 1})
	r.Register("sqrt", unary("sqrt", math.Sqrt),
		Meta{Category: categoryMath, Description: "square root", Arity: 1})
	r.Register("floor", unary("floor", math.Floor),
		Meta{Category: categoryMath, Description: "round down", Arity: 1})
	r.Register("ceil", unary("ceil", math.Ceil),
		Meta{Category: categoryMath, Description: "round up", Arity: 1})
	r.Register("log", unary("log", math.Log),
		Meta{Category: categoryMath, Description: "natural logarithm", Arity: 1})
	r.Register("exp", unary("exp", math.Exp),
		Meta{Category: categoryMath, Description: "e raised to the argument", Arity: 1})
	r.Register("pow", binary("pow", math.Pow),
		Meta{Category: categoryMath, Description: "base raised to exponent", Arity: 2})
	r.Register("round", builtinRound,
		Meta{Category: categoryMath, Description: "round to the nearest integer, or to N digits", Arity: -1})
	r.Register("min", builtinMin,
		Meta{Category: categoryMath, Description: "smallest of the arguments", Arity: -1})
	r.Register("max", builtinMax,
		Meta{Category: categoryMath, Description: "largest of the arguments", Arity: -1})

	// statistics
	r.Register("sum", reducing("sum", func(vals []float64) float64 {
		total := 0.0
		for _, v := range vals {
			total += v
		}
		return total
	}), Meta{Category: categoryStatistics, Description: "sum of the arguments", Arity: -1})
	r.Register("avg", reducing("avg", func(vals []float64) float64 {
		total := 0.0
		for _, v := range vals {
			total += v
		}
		return total / float64(len(vals))
	}), Meta{Category: categoryStatistics, Description: "arithmetic mean", Arity: -1})
	r.Register("count", func(args []any) (any, error) {
		return float64(len(flatten(args))), nil
	}, Meta{Category: categoryStatistics, Description: "number of arguments", Arity: -1})
	r.Register("median", reducing("median", median),
		Meta{Category: categoryStatistics, Description: "middle value", Arity: -1})
	r.Register("variance", reducing("variance", variance),
		Meta{Category: categoryStatistics, Description: "population variance", Arity: -1})
	r.Register("stddev", reducing("stddev", func(vals []float64) float64 {
		return math.Sqrt(variance(vals))
	}), Meta{Category: categoryStatistics, Description: "population standard deviation", Arity: -1})
	r.Register("percentile", builtinPercentile,
		Meta{Category: categoryStatistics, Description: "percentile(p, values...)", Arity: -1})

	// business
	r.Register("percentage", binaryF("percentage", func(part, whole float64) (float64, error) {
		if whole == 0 {
			return 0, fmt.Errorf("percentage: whole must not be zero")
		}
		return part / whole * 100, nil
	}), Meta{Category: categoryBusiness, Description: "part as a percentage of whole", Arity: 2})
	r.Register("discount", binaryF("discount", func(price, percent float64) (float64, error) {
		return price * (1 - percent/100), nil
	}), Meta{Category: categoryBusiness, Description: "price after a percentage discount", Arity: 2})
	r.Register("compound_interest", builtinCompoundInterest,
		Meta{Category: categoryBusiness, Description: "compound_interest(principal, rate, periods)", Arity: 3})
	r.Register("pmt", builtinPMT,
		Meta{Category: categoryBusiness, Description: "pmt(principal, monthly_rate, months): loan payment", Arity: 3})
	r.Register("bmi", binaryF("bmi", func(weightKg, heightM float64) (float64, error) {
		if heightM <= 0 {
			return 0, fmt.Errorf("bmi: height must be positive")
		}
		return weightKg / (heightM * heightM), nil
	}), Meta{Category: categoryBusiness, Description: "body mass index from kg and meters", Arity: 2})
	r.Register("age_from_year", builtinAgeFromYear,
		Meta{Category: categoryBusiness, Description: "age in years given a birth year", Arity: 1})
	r.Register("clamp", builtinClamp,
		Meta{Category: categoryBusiness, Description: "clamp(value, low, high)", Arity: 3})
	r.Register("normalize", builtinNormalize,
		Meta{Category: categoryBusiness, Description: "normalize(value, low, high) to 0..1", Arity: 3})
}

func unary(name string, f func(float64) float64) Func {
	return func(args []any) (any, error) {
		v, err := numArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return f(v), nil
	}
}

func binary(name string, f func(float64, float64) float64) Func {
	return func(args []any) (any, error) {
		a, err := numArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := numArg(name, args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func binaryF(name string, f func(float64, float64) (float64, error)) Func {
	return func(args []any) (any, error) {
		a, err := numArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := numArg(name, args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b)
	}
}

// reducing builds a function over one or more numbers. List arguments are
// flattened first, so both sum(1, 2, 3) and sum(values) work.
func reducing(name string, f func([]float64) float64) Func {
	return func(args []any) (any, error) {
		vals, err := numbers(name, flatten(args))
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("%s: at least one value required", name)
		}
		return f(vals), nil
	}
}

func builtinRound(args []any) (any, error) {
	v, err := numArg("round", args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return math.Round(v), nil
	}
	digits, err := numArg("round", args, 1)
	if err != nil {
		return nil, err
	}
	scale := math.Pow(10, digits)
	return math.Round(v*scale) / scale, nil
}

func builtinMin(args []any) (any, error) {
	vals, err := numbers("min", flatten(args))
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("min: at least one value required")
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m, nil
}

func builtinMax(args []any) (any, error) {
	vals, err := numbers("max", flatten(args))
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("max: at least one value required")
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m, nil
}

func builtinPercentile(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("percentile: need a percentile and at least one value")
	}
	p, err := numArg("percentile", args, 0)
	if err != nil {
		return nil, err
	}
	if p < 0 || p > 100 {
		return nil, fmt.Errorf("percentile: p must be between 0 and 100, got %v", p)
	}
	vals, err := numbers("percentile", flatten(args[1:]))
	if err != nil {
		return nil, err
	}
	sort.Float64s(vals)
	// Linear interpolation between the closest ranks.
	rank := p / 100 * float64(len(vals)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return vals[lo], nil
	}
	frac := rank - float64(lo)
	return vals[lo] + (vals[hi]-vals[lo])*frac, nil
}

func builtinCompoundInterest(args []any) (any, error) {
	principal, err := numArg("compound_interest", args, 0)
	if err != nil {
		return nil, err
	}
	rate, err := numArg("compound_interest", args, 1)
	if err != nil {
		return nil, err
	}
	periods, err := numArg("compound_interest", args, 2)
	if err != nil {
		return nil, err
	}
	return principal * math.Pow(1+rate, periods), nil
}

func builtinPMT(args []any) (any, error) {
	principal, err := numArg("pmt", args, 0)
	if err != nil {
		return nil, err
	}
	rate, err := numArg("pmt", args, 1)
	if err != nil {
		return nil, err
	}
	months, err := numArg("pmt", args, 2)
	if err != nil {
		return nil, err
	}
	if months <= 0 {
		return nil, fmt.Errorf("pmt: months must be positive")
	}
	if rate == 0 {
		return principal / months, nil
	}
	factor := math.Pow(1+rate, months)
	return principal * rate * factor / (factor - 1), nil
}

func builtinAgeFromYear(args []any) (any, error) {
	year, err := numArg("age_from_year", args, 0)
	if err != nil {
		return nil, err
	}
	return float64(time.Now().Year()) - year, nil
}

func builtinClamp(args []any) (any, error) {
	v, err := numArg("clamp", args, 0)
	if err != nil {
		return nil, err
	}
	lo, err := numArg("clamp", args, 1)
	if err != nil {
		return nil, err
	}
	hi, err := numArg("clamp", args, 2)
	if err != nil {
		return nil, err
	}
	return math.Min(math.Max(v, lo), hi), nil
}

func builtinNormalize(args []any) (any, error) {
	v, err := numArg("normalize", args, 0)
	if err != nil {
		return nil, err
	}
	lo, err := numArg("normalize", args, 1)
	if err != nil {
		return nil, err
	}
	hi, err := numArg("normalize", args, 2)
	if err != nil {
		return nil, err
	}
	if hi == lo {
		return nil, fmt.Errorf("normalize: range must not be empty")
	}
	return (v - lo) / (hi - lo), nil
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func variance(vals []float64) float64 {
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vals))
}

// flatten expands slice arguments one level, so functions accept both
// variadic numbers and a single list value from the context.
func flatten(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		switch s := a.(type) {
		case []any:
			out = append(out, s...)
		case []float64:
			for _, v := range s {
				out = append(out, v)
			}
		default:
			out = append(out, a)
		}
	}
	return out
}

func numArg(name string, args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s: missing argument %d", name, i+1)
	}
	v, ok := toNumber(args[i])
	if !ok {
		return 0, fmt.Errorf("%s: argument %d must be numeric, got %T", name, i+1, args[i])
	}
	return v, nil
}

func numbers(name string, args []any) ([]float64, error) {
	vals := make([]float64, 0, len(args))
	for i, a := range args {
		v, ok := toNumber(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d must be numeric, got %T", name, i+1, a)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
