package codegen_test

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matryer/is"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
	"github.com/Jedsadha1777/RuleFlow-sub002/codegen"
)

const parityDriver = `package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func main() {
	var inputs map[string]any
	if err := json.Unmarshal([]byte(os.Args[1]), &inputs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	result, err := Evaluate(inputs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	enc, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Stdout.Write(enc)
}
`

// runGenerated builds the generated function into a throwaway main package
// and executes it with the go tool, returning the result map it prints.
func runGenerated(t *testing.T, code string, inputs map[string]any) map[string]any {
	t.Helper()
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not available")
	}

	dir := t.TempDir()
	files := map[string]string{
		"go.mod":  "module paritycheck\n\ngo 1.21\n",
		"gen.go":  code,
		"main.go": parityDriver,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	arg, err := json.Marshal(inputs)
	if err != nil {
		t.Fatalf("marshaling inputs: %v", err)
	}
	cmd := exec.Command(goBin, "run", ".", string(arg))
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			t.Fatalf("generated program failed: %v\n%s\n%s", err, ee.Stderr, code)
		}
		t.Fatalf("generated program failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("generated program printed bad JSON: %v\n%s", err, out)
	}
	return result
}

// jsonNormalize round-trips a result map through JSON so interpreted and
// generated values compare on shape, not on Go dynamic type.
func jsonNormalize(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("normalizing: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("normalizing: %v", err)
	}
	return out
}

// The generated function and the interpreter must agree field for field on
// every formula shape, including the leniency rules for absent and
// mistyped condition subjects.
func TestGeneratedCodeMatchesInterpreter(t *testing.T) {
	cases := map[string]struct {
		spec   string
		inputs map[string]any
	}{
		"expression with alias": {
			spec: `{
				"formulas": [
					{"id": "total", "formula": "a * 2 + b", "inputs": ["a", "b"], "as": "$grand_total"}
				]
			}`,
			inputs: map[string]any{"a": 3.0, "b": 4.0},
		},
		"switch with unbound subject": {
			spec: `{
				"formulas": [
					{
						"id": "band",
						"switch": "$score",
						"when": [{"if": {"op": ">=", "value": 0}, "result": "nonneg"}],
						"default": "unknown"
					}
				]
			}`,
			inputs: map[string]any{},
		},
		"switch with string subject and numeric bound": {
			spec: `{
				"formulas": [
					{
						"id": "size",
						"switch": "$score",
						"when": [{"if": {"op": "<", "value": 5}, "result": "small"}],
						"default": "other"
					}
				]
			}`,
			inputs: map[string]any{"score": "abc"},
		},
		"switch set_vars referencing own result": {
			spec: `{
				"formulas": [
					{
						"id": "grade",
						"switch": "$score",
						"when": [
							{"if": {"op": ">=", "value": 50}, "result": "pass", "set_vars": {"$message": "$grade"}}
						],
						"default": "fail",
						"default_vars": {"$message": "$grade"}
					}
				]
			}`,
			inputs: map[string]any{"score": 75.0},
		},
		"rules with unbound rule variable": {
			spec: `{
				"formulas": [
					{
						"id": "credit",
						"rules": [
							{
								"var": "$income",
								"ranges": [
									{"if": {"op": ">=", "value": 50000}, "score": 40, "band": "upper"},
									{"if": {"op": "between", "value": [20000, 49999]}, "score": 25}
								]
							},
							{"var": "$tag", "if": {"var": "$tag", "op": "not_in", "value": ["blocked"]}, "score": 5}
						]
					}
				]
			}`,
			inputs: map[string]any{"income": 60000.0},
		},
		"scoring tree with extras": {
			spec: `{
				"formulas": [
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
			}`,
			inputs: map[string]any{"age": 25.0, "risk": "low"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			spec := mustSpec(t, tc.spec)

			want, err := ruleflow.NewEngine().Evaluate(spec, tc.inputs)
			is.NoErr(err)

			gen, err := codegen.Generate(spec, codegen.Options{})
			is.NoErr(err)

			got := runGenerated(t, gen.Code, tc.inputs)
			if !reflect.DeepEqual(jsonNormalize(t, want), jsonNormalize(t, got)) {
				t.Fatalf("interpreted and generated results differ\ninterpreted: %#v\ngenerated:   %#v", want, got)
			}
		})
	}
}
