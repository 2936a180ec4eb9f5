// Package codegen compiles a ruleflow specification into the source text of
// a plain Go function with the same externally observable behavior as
// Engine.Evaluate, with no interpretation at call time.
//
// Generation is pure and deterministic: it needs no runtime input values,
// and identical specs with identical options produce byte-identical output,
// so generated files can be diffed and golden-tested.
//
// Functions from the builtin math catalog (abs, sqrt, round, min, max, ...)
// are inlined to math intrinsics. Any other function is emitted as an
// ordinary call; the enclosing package must provide it with the signature
// used at the call site.
package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
)

// Options control generation.
type Options struct {
	// FunctionName is the name of the emitted function. Default "Evaluate".
	FunctionName string

	// PackageName is the package clause of the emitted file. Default "main".
	PackageName string

	// IncludeComments adds a comment above each formula's block.
	IncludeComments bool

	// IncludeExamples appends a commented example invocation.
	IncludeExamples bool
}

// Metadata summarizes the generated function.
type Metadata struct {
	InputCount    int
	OutputCount   int
	EstimatedGain string
}

// Generated is the result of one generation run.
type Generated struct {
	// Code is a complete Go source file containing the function.
	Code string

	// Interfaces declares input/output struct types documenting the
	// function's data contract.
	Interfaces string

	Metadata Metadata
}

// Generate compiles the spec. The spec must pass ruleflow.Validate; a
// structurally invalid spec fails before any code is emitted.
func Generate(spec *ruleflow.Spec, opts Options) (*Generated, error) {
	if spec == nil || len(spec.Formulas) == 0 {
		return nil, errors.Wrap(ruleflow.ErrInvalidConfiguration, "spec has no formulas")
	}
	if err := ruleflow.Validate(spec); err != nil {
		return nil, errors.Wrap(err, "generate")
	}
	if opts.FunctionName == "" {
		opts.FunctionName = "Evaluate"
	}
	if opts.PackageName == "" {
		opts.PackageName = "main"
	}

	g := &generator{
		spec:    spec,
		opts:    opts,
		locals:  map[string]local{},
		helpers: map[string]bool{},
	}
	if err := g.run(); err != nil {
		return nil, errors.Wrapf(err, "generating %s", opts.FunctionName)
	}

	code, err := g.render()
	if err != nil {
		return nil, errors.Wrap(err, "rendering generated code")
	}

	return &Generated{
		Code:       code,
		Interfaces: g.interfaces(),
		Metadata: Metadata{
			InputCount:    len(g.requiredInputs()),
			OutputCount:   len(g.outputNames()),
			EstimatedGain: "10-50x over interpreted evaluation",
		},
	}, nil
}

// local is a Go local bound to an aliased formula output, so later
// formulas reference a variable instead of re-deriving a map lookup.
type local struct {
	goName string
	// numeric locals hold float64; others hold any and need num() at
	// numeric use sites.
	numeric bool
}

type generator struct {
	spec *ruleflow.Spec
	opts Options

	body bytes.Buffer

	// locals maps a context name (alias) to its Go local.
	locals map[string]local

	// helpers marks the coercion/comparison closures the body calls;
	// writeHelpers emits only those, plus their prerequisites.
	helpers map[string]bool

	// import usage, discovered while emitting the body.
	needMath    bool
	needStrings bool
	needFmt     bool
}

func (g *generator) need(names ...string) {
	for _, n := range names {
		g.helpers[n] = true
	}
}

// helperDeps lists the helpers each helper calls, so marking a call site
// pulls in its prerequisites.
var helperDeps = map[string][]string{
	"num":    {"toNum"},
	"eq":     {"toNum"},
	"ordNum": {"toNum"},
	"cmpOrd": {"toNum", "ordNum", "ordStr"},
	"btw":    {"toNum"},
	"btwRef": {"btw"},
	"eqK":    {"eq"},
	"inK":    {"eq"},
	"inRef":  {"eq"},
	"inRefK": {"inRef"},
	"strOpK": {"str"},
}

func (g *generator) closeHelpers() {
	for changed := true; changed; {
		changed = false
		for name := range g.helpers {
			for _, dep := range helperDeps[name] {
				if !g.helpers[dep] {
					g.helpers[dep] = true
					changed = true
				}
			}
		}
	}
}

func (g *generator) run() error {
	for i, f := range g.spec.Formulas {
		if g.opts.IncludeComments {
			g.linef(1, "// formula %s (%s)", f.ID, shapeOf(f))
		}
		var err error
		switch {
		case f.Formula != "":
			err = g.emitExpression(i, f)
		case f.Switch != "":
			err = g.emitSwitch(i, f)
		case len(f.Rules) > 0:
			err = g.emitRules(i, f)
		case f.Scoring != nil:
			err = g.emitScoring(i, f)
		}
		if err != nil {
			return errors.Wrapf(err, "formula %s", f.ID)
		}
		g.linef(0, "")
	}
	g.linef(1, "return out, nil")
	return nil
}

func shapeOf(f *ruleflow.Formula) string {
	switch {
	case f.Formula != "":
		return "expression"
	case f.Switch != "":
		return "switch"
	case len(f.Rules) > 0:
		return "rules"
	default:
		return "scoring"
	}
}

func (g *generator) linef(indent int, format string, args ...any) {
	g.body.WriteString(strings.Repeat("\t", indent))
	fmt.Fprintf(&g.body, format, args...)
	g.body.WriteByte('\n')
}

// requiredInputs is the sorted union of every formula's declared inputs.
func (g *generator) requiredInputs() []string {
	seen := map[string]bool{}
	var names []string
	for _, f := range g.spec.Formulas {
		for _, in := range f.Inputs {
			n := ruleflow.CanonicalName(in)
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

// outputNames is the sorted list of formula IDs and aliases the function
// binds.
func (g *generator) outputNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, f := range g.spec.Formulas {
		if !seen[f.ID] {
			seen[f.ID] = true
			names = append(names, f.ID)
		}
		if f.As != "" {
			n := ruleflow.CanonicalName(f.As)
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

var fileTemplate = template.Must(template.New("file").Parse(`// Code generated by ruleflow codegen. DO NOT EDIT.
//
// Source spec: {{.FormulaCount}} formula(s). Functions outside the builtin
// math catalog are emitted as ordinary calls and must be provided by this
// package.

package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	"{{.}}"
{{- end}}
)
{{end}}
// {{.Name}} evaluates the compiled formula pipeline against the inputs and
// returns the resulting context.
func {{.Name}}(inputs map[string]any) (map[string]any, error) {
{{.Prologue}}{{.Body}}}
{{if .Example}}
{{.Example}}{{end}}`))

func (g *generator) render() (string, error) {
	g.closeHelpers()
	required := g.requiredInputs()
	if len(required) > 0 || g.helpers["str"] || g.helpers["eq"] {
		g.needFmt = true
	}

	var imports []string
	if g.needFmt {
		imports = append(imports, "fmt")
	}
	if g.needMath {
		imports = append(imports, "math")
	}
	if g.needStrings {
		imports = append(imports, "strings")
	}
	sort.Strings(imports)

	var p bytes.Buffer
	if len(required) > 0 {
		quoted := make([]string, len(required))
		for i, r := range required {
			quoted[i] = fmt.Sprintf("%q", r)
		}
		fmt.Fprintf(&p, "\tfor _, k := range []string{%s} {\n", strings.Join(quoted, ", "))
		p.WriteString("\t\tif _, ok := inputs[k]; !ok {\n")
		p.WriteString("\t\t\treturn nil, fmt.Errorf(\"missing input: %s\", k)\n")
		p.WriteString("\t\t}\n\t}\n")
	}
	p.WriteString("\tout := make(map[string]any, len(inputs))\n")
	p.WriteString("\tfor k, v := range inputs {\n\t\tout[k] = v\n\t}\n")
	g.writeHelpers(&p)
	p.WriteString("\n")

	data := struct {
		Package      string
		Name         string
		Imports      []string
		Prologue     string
		Body         string
		Example      string
		FormulaCount int
	}{
		Package:      g.opts.PackageName,
		Name:         g.opts.FunctionName,
		Imports:      imports,
		Prologue:     p.String(),
		Body:         g.body.String(),
		Example:      g.example(),
		FormulaCount: len(g.spec.Formulas),
	}

	var out bytes.Buffer
	if err := fileTemplate.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}

// helperSources holds the coercion and comparison closures the emitted body
// can call, in dependency order. The condition helpers mirror the
// interpreter's leaf semantics: a value that is absent or of the wrong kind
// fails the comparison instead of being coerced.
var helperSources = []struct {
	name string
	src  string
}{
	{"toNum", `	toNum := func(v any) (float64, bool) {
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
		return 0, false
	}
`},
	{"num", `	num := func(v any) float64 {
		n, _ := toNum(v)
		return n
	}
`},
	{"str", `	str := func(v any) string {
		switch s := v.(type) {
		case string:
			return s
		case float64:
			if s == float64(int64(s)) {
				return fmt.Sprintf("%d", int64(s))
			}
		}
		return fmt.Sprintf("%v", v)
	}
`},
	{"eq", `	eq := func(a, b any) bool {
		an, aok := toNum(a)
		bn, bok := toNum(b)
		if aok && bok {
			return an == bn
		}
		if aok != bok {
			return false
		}
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
`},
	{"ordNum", `	ordNum := func(v any, op string, b float64) bool {
		n, ok := toNum(v)
		if !ok {
			return false
		}
		switch op {
		case ">":
			return n > b
		case ">=":
			return n >= b
		case "<":
			return n < b
		}
		return n <= b
	}
`},
	{"ordStr", `	ordStr := func(v any, op string, b string) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		switch op {
		case ">":
			return s > b
		case ">=":
			return s >= b
		case "<":
			return s < b
		}
		return s <= b
	}
`},
	{"cmpOrd", `	cmpOrd := func(a, b any, op string) bool {
		if bn, ok := toNum(b); ok {
			return ordNum(a, op, bn)
		}
		if bs, ok := b.(string); ok {
			return ordStr(a, op, bs)
		}
		return false
	}
`},
	{"btw", `	btw := func(v any, lo, hi float64) bool {
		n, ok := toNum(v)
		return ok && n >= lo && n <= hi
	}
`},
	{"btwRef", `	btwRef := func(v any, pair any) bool {
		p, ok := pair.([]any)
		if !ok || len(p) != 2 {
			return false
		}
		lo, ok1 := toNum(p[0])
		hi, ok2 := toNum(p[1])
		if !ok1 || !ok2 {
			return false
		}
		return btw(v, lo, hi)
	}
`},
	{"eqK", `	eqK := func(m map[string]any, k string, b any, want bool) bool {
		v, ok := m[k]
		if !ok {
			return false
		}
		return eq(v, b) == want
	}
`},
	{"inK", `	inK := func(m map[string]any, k string, want bool, items ...any) bool {
		v, ok := m[k]
		if !ok {
			return false
		}
		for _, item := range items {
			if eq(v, item) {
				return want
			}
		}
		return !want
	}
`},
	{"inRef", `	inRef := func(v any, coll any) bool {
		items, ok := coll.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if eq(v, item) {
				return true
			}
		}
		return false
	}
`},
	{"inRefK", `	inRefK := func(m map[string]any, k string, coll any, want bool) bool {
		v, ok := m[k]
		if !ok {
			return false
		}
		return inRef(v, coll) == want
	}
`},
	{"strOpK", `	strOpK := func(m map[string]any, k string, fn func(string, string) bool, b string) bool {
		v, ok := m[k]
		if !ok {
			return false
		}
		return fn(str(v), b)
	}
`},
}

// writeHelpers emits only the closures the body actually uses, so the
// generated file never declares an unused variable.
func (g *generator) writeHelpers(p *bytes.Buffer) {
	for _, h := range helperSources {
		if g.helpers[h.name] {
			p.WriteString(h.src)
		}
	}
}

func (g *generator) example() string {
	if !g.opts.IncludeExamples {
		return ""
	}
	var b strings.Builder
	b.WriteString("// Example:\n//\n")
	fmt.Fprintf(&b, "//\tresult, err := %s(map[string]any{\n", g.opts.FunctionName)
	for _, in := range g.requiredInputs() {
		fmt.Fprintf(&b, "//\t\t%q: 0.0,\n", in)
	}
	b.WriteString("//\t})\n")
	return b.String()
}

// interfaces emits input/output struct declarations documenting the
// function's data contract. Values are late-bound, so every field is any.
func (g *generator) interfaces() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %sInputs lists the inputs %s requires.\n", g.opts.FunctionName, g.opts.FunctionName)
	fmt.Fprintf(&b, "type %sInputs struct {\n", g.opts.FunctionName)
	for _, in := range g.requiredInputs() {
		fmt.Fprintf(&b, "\t%s any `json:%q`\n", exportName(in), in)
	}
	b.WriteString("}\n\n")
	fmt.Fprintf(&b, "// %sOutputs lists the values %s binds in its result.\n", g.opts.FunctionName, g.opts.FunctionName)
	fmt.Fprintf(&b, "type %sOutputs struct {\n", g.opts.FunctionName)
	for _, out := range g.outputNames() {
		fmt.Fprintf(&b, "\t%s any `json:%q`\n", exportName(out), out)
	}
	b.WriteString("}\n")
	return b.String()
}

func exportName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
