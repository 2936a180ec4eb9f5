package codegen_test

import (
	"encoding/json"
	"errors"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/matryer/is"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
	"github.com/Jedsadha1777/RuleFlow-sub002/codegen"
)

func mustSpec(t *testing.T, src string) *ruleflow.Spec {
	t.Helper()
	var spec ruleflow.Spec
	if err := json.Unmarshal([]byte(src), &spec); err != nil {
		t.Fatalf("bad spec JSON: %v", err)
	}
	return &spec
}

// parseGo fails the test if src is not a syntactically valid Go file.
func parseGo(t *testing.T, src string) {
	t.Helper()
	if _, err := parser.ParseFile(token.NewFileSet(), "generated.go", src, 0); err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, src)
	}
}

const loanSpec = `{
	"formulas": [
		{
			"id": "dti",
			"formula": "monthly_debt / monthly_income",
			"inputs": ["monthly_debt", "monthly_income"],
			"as": "$debt_ratio"
		},
		{
			"id": "credit_score",
			"rules": [
				{
					"var": "$income",
					"ranges": [
						{"if": {"op": ">=", "value": 50000}, "score": 40, "band": "upper"},
						{"if": {"op": "between", "value": [20000, 49999]}, "score": 25}
					]
				},
				{"var": "$has_property", "if": {"op": "==", "value": true}, "score": 30, "weight": 2}
			]
		},
		{
			"id": "decision",
			"switch": "$credit_score",
			"when": [
				{
					"if": {"and": [
						{"op": ">=", "value": 60},
						{"var": "$debt_ratio", "op": "<", "value": 0.4}
					]},
					"result": "approved",
					"set_vars": {"$limit": "$income * 0.5"}
				},
				{"if": {"op": "in", "value": [40, 50]}, "result": "review"}
			],
			"default": "rejected"
		},
		{
			"id": "premium",
			"scoring": {
				"ifs": {
					"vars": ["$age", "$risk"],
					"tree": [
						{
							"if": {"op": "between", "value": [18, 30]},
							"ranges": [
								{"if": {"op": "==", "value": "low"}, "score": 500, "plan": "starter"}
							]
						}
					]
				}
			}
		}
	]
}`

func TestGenerateProducesValidGo(t *testing.T) {
	is := is.New(t)

	gen, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{
		FunctionName:    "EvaluateLoan",
		PackageName:     "loan",
		IncludeComments: true,
	})
	is.NoErr(err)

	parseGo(t, gen.Code)
	parseGo(t, "package loan\n\n"+gen.Interfaces)

	is.True(strings.Contains(gen.Code, "package loan"))
	is.True(strings.Contains(gen.Code, "func EvaluateLoan(inputs map[string]any) (map[string]any, error)"))
}

func TestGenerateIsDeterministic(t *testing.T) {
	is := is.New(t)
	opts := codegen.Options{IncludeComments: true, IncludeExamples: true}

	first, err := codegen.Generate(mustSpec(t, loanSpec), opts)
	is.NoErr(err)
	second, err := codegen.Generate(mustSpec(t, loanSpec), opts)
	is.NoErr(err)

	is.Equal(first.Code, second.Code) // byte-for-byte
	is.Equal(first.Interfaces, second.Interfaces)
}

func TestGeneratedOperatorTranslations(t *testing.T) {
	is := is.New(t)

	gen, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{})
	is.NoErr(err)
	code := gen.Code

	// Required-input pre-flight check.
	is.True(strings.Contains(code, `"monthly_debt", "monthly_income"`))
	is.True(strings.Contains(code, "missing input"))

	// Expression formula with alias.
	is.True(strings.Contains(code, `out["dti"]`))
	is.True(strings.Contains(code, `out["debt_ratio"]`))

	// between lowers to an inclusive two-sided check behind a numeric guard.
	is.True(strings.Contains(code, `btw(out["income"], 20000.0, 49999.0)`))

	// Ordering comparisons go through the type-checked helper.
	is.True(strings.Contains(code, `ordNum(`))

	// An equality leaf naming its own variable carries a presence check.
	is.True(strings.Contains(code, `eqK(out, "has_property", true, true)`))

	// in lowers to a disjunction of equality checks.
	is.True(strings.Contains(code, "eq("))

	// Extra range properties land under namespaced keys.
	is.True(strings.Contains(code, `out["credit_score_band"]`))
	is.True(strings.Contains(code, `out["premium_plan"]`))

	// Weighted single-condition rule folds score*weight at generation time.
	is.True(strings.Contains(code, "+= 60.0"))

	is.True(strings.Contains(code, `out["limit"]`))
}

// Condition leaves must not coerce an absent or mistyped value into a
// comparable one; the lowered form goes through guarded helpers so an
// unbound variable fails the leaf the same way the interpreter does.
func TestGeneratedLeafGuards(t *testing.T) {
	is := is.New(t)
	spec := mustSpec(t, `{
		"formulas": [
			{
				"id": "band",
				"switch": "$score",
				"when": [{"if": {"op": ">=", "value": 0}, "result": "nonneg"}],
				"default": "unknown"
			},
			{
				"id": "bonus",
				"rules": [
					{"var": "$tag", "if": {"var": "$tag", "op": "not_in", "value": ["blocked"]}, "score": 5}
				]
			}
		]
	}`)

	gen, err := codegen.Generate(spec, codegen.Options{})
	is.NoErr(err)
	parseGo(t, gen.Code)

	// Numeric ordering is type-checked, never a bare coercion to 0.
	is.True(strings.Contains(gen.Code, `ordNum(out["score"], ">=", 0.0)`))
	is.True(strings.Contains(gen.Code, "toNum := func"))
	is.True(!strings.Contains(gen.Code, `num(out["score"]) >=`))

	// A leaf naming its own variable reads it through a presence check, so
	// not_in cannot match when the variable is unbound.
	is.True(strings.Contains(gen.Code, `inK(out, "tag", false, "blocked")`))
}

func TestGeneratedPowerAndFunctions(t *testing.T) {
	is := is.New(t)
	spec := mustSpec(t, `{
		"formulas": [
			{"id": "a", "formula": "base ** 2 + sqrt(base)", "inputs": ["base"]},
			{"id": "b", "formula": "custom_adjust(a, 3)"}
		]
	}`)

	gen, err := codegen.Generate(spec, codegen.Options{})
	is.NoErr(err)
	parseGo(t, gen.Code)

	is.True(strings.Contains(gen.Code, "math.Pow("))
	is.True(strings.Contains(gen.Code, "math.Sqrt("))
	// Out-of-catalog functions become ordinary lowerCamel calls.
	is.True(strings.Contains(gen.Code, "customAdjust("))
	is.True(strings.Contains(gen.Code, `"math"`))
}

func TestGenerateDefaults(t *testing.T) {
	is := is.New(t)
	spec := mustSpec(t, `{
		"formulas": [{"id": "x", "formula": "1 + 1"}]
	}`)

	gen, err := codegen.Generate(spec, codegen.Options{})
	is.NoErr(err)
	parseGo(t, gen.Code)
	is.True(strings.Contains(gen.Code, "package main"))
	is.True(strings.Contains(gen.Code, "func Evaluate("))
}

func TestGenerateMetadata(t *testing.T) {
	is := is.New(t)

	gen, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{})
	is.NoErr(err)

	is.Equal(gen.Metadata.InputCount, 2)  // monthly_debt, monthly_income
	is.Equal(gen.Metadata.OutputCount, 5) // dti, debt_ratio, credit_score, decision, premium
	is.True(gen.Metadata.EstimatedGain != "")
}

func TestGenerateInterfaces(t *testing.T) {
	is := is.New(t)

	gen, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{FunctionName: "Score"})
	is.NoErr(err)

	is.True(strings.Contains(gen.Interfaces, "type ScoreInputs struct"))
	is.True(strings.Contains(gen.Interfaces, "type ScoreOutputs struct"))
	is.True(strings.Contains(gen.Interfaces, "MonthlyDebt"))
	is.True(strings.Contains(gen.Interfaces, "`json:\"credit_score\"`"))
}

func TestGenerateRejectsInvalidSpecs(t *testing.T) {
	is := is.New(t)

	_, err := codegen.Generate(nil, codegen.Options{})
	is.True(errors.Is(err, ruleflow.ErrInvalidConfiguration))

	_, err = codegen.Generate(mustSpec(t, `{"formulas": [{"id": "x"}]}`), codegen.Options{})
	is.True(errors.Is(err, ruleflow.ErrInvalidConfiguration))

	_, err = codegen.Generate(mustSpec(t, `{
		"formulas": [
			{"id": "early", "formula": "late + 1"},
			{"id": "late", "formula": "2"}
		]
	}`), codegen.Options{})
	is.True(errors.Is(err, ruleflow.ErrForwardReference))
}

func TestGenerateExamplesBlock(t *testing.T) {
	is := is.New(t)

	gen, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{IncludeExamples: true})
	is.NoErr(err)
	parseGo(t, gen.Code)
	is.True(strings.Contains(gen.Code, "// Example:"))
	is.True(strings.Contains(gen.Code, `"monthly_debt": 0.0`))
}

func TestGeneratedCommentsTagFormulas(t *testing.T) {
	is := is.New(t)

	with, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{IncludeComments: true})
	is.NoErr(err)
	without, err := codegen.Generate(mustSpec(t, loanSpec), codegen.Options{})
	is.NoErr(err)

	is.True(strings.Contains(with.Code, "// formula credit_score (rules)"))
	is.True(!strings.Contains(without.Code, "// formula credit_score"))
}
