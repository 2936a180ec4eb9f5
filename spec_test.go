package ruleflow_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/matryer/is"

	ruleflow "github.com/Jedsadha1777/RuleFlow-sub002"
)

func TestSpecString(t *testing.T) {
	is := is.New(t)
	spec := mustSpec(t, `{
		"formulas": [
			{"id": "score", "formula": "a + b", "inputs": ["a", "b"], "as": "$s"},
			{"id": "grade", "switch": "$s", "when": [{"if": {"op": ">", "value": 1}, "result": "x"}], "default": "y"},
			{"id": "bonus", "rules": [{"var": "$s", "if": {"op": ">", "value": 0}, "score": 1}]}
		]
	}`)

	out := spec.String()
	is.True(strings.Contains(out, "RULEFLOW SPEC"))
	is.True(strings.Contains(out, "score"))
	is.True(strings.Contains(out, "expression"))
	is.True(strings.Contains(out, "switch"))
	is.True(strings.Contains(out, "rules"))
	is.True(strings.Contains(out, "a + b"))
}

func TestConditionTree(t *testing.T) {
	is := is.New(t)

	cond := &ruleflow.Condition{
		And: []*ruleflow.Condition{
			{Var: "$age", Op: ">", Value: 25.0},
			{
				Or: []*ruleflow.Condition{
					{Var: "$income", Op: ">", Value: 30000.0},
					{Var: "$has_collateral", Op: "==", Value: true},
				},
			},
			{Var: "$status", Op: "!=", Value: "blacklist"},
		},
	}

	out := cond.Tree()
	is.True(strings.HasPrefix(out, "AND\n"))
	is.True(strings.Contains(out, "├── age > 25"))
	is.True(strings.Contains(out, "├── OR"))
	is.True(strings.Contains(out, "│   ├── income > 30000"))
	is.True(strings.Contains(out, "│   └── has_collateral == true"))
	is.True(strings.Contains(out, `└── status != "blacklist"`))
}

func TestRangeNodeKeepsExtraProperties(t *testing.T) {
	is := is.New(t)

	var rn ruleflow.RangeNode
	err := json.Unmarshal([]byte(`{
		"if": {"op": ">", "value": 10},
		"score": 5,
		"set_vars": {"$x": 1},
		"grade": "A",
		"decision": "approve"
	}`), &rn)
	is.NoErr(err)
	is.Equal(rn.Score, 5.0)
	is.Equal(rn.Extra["grade"], "A")
	is.Equal(rn.Extra["decision"], "approve")

	// Marshal puts the extras back at the top level.
	b, err := json.Marshal(&rn)
	is.NoErr(err)
	var round map[string]any
	is.NoErr(json.Unmarshal(b, &round))
	is.Equal(round["grade"], "A")
	is.Equal(round["score"], 5.0)
}

func TestCanonicalNameAndReference(t *testing.T) {
	is := is.New(t)

	is.Equal(ruleflow.CanonicalName("$rate"), "rate")
	is.Equal(ruleflow.CanonicalName("rate"), "rate")

	name, ok := ruleflow.Reference("$rate")
	is.True(ok)
	is.Equal(name, "rate")

	_, ok = ruleflow.Reference("rate")
	is.Equal(ok, false)
	_, ok = ruleflow.Reference(42.0)
	is.Equal(ok, false)
	_, ok = ruleflow.Reference("$")
	is.Equal(ok, false)
}

func TestAsFunctionCallForms(t *testing.T) {
	is := is.New(t)

	fc, ok := ruleflow.AsFunctionCall(map[string]any{
		"function": "pmt",
		"params":   []any{"$principal", 0.01, 12.0},
	})
	is.True(ok)
	is.Equal(fc.Function, "pmt")
	is.Equal(len(fc.Params), 3)

	fc, ok = ruleflow.AsFunctionCall(ruleflow.FunctionCall{Function: "max"})
	is.True(ok)
	is.Equal(fc.Function, "max")

	_, ok = ruleflow.AsFunctionCall("not a call")
	is.Equal(ok, false)
	_, ok = ruleflow.AsFunctionCall(map[string]any{"result": 1.0})
	is.Equal(ok, false)
}

func TestSortedKeys(t *testing.T) {
	is := is.New(t)

	keys := ruleflow.SortedKeys(map[string]any{"b": 1, "a": 2, "c": 3})
	is.Equal(keys, []string{"a", "b", "c"})
}
