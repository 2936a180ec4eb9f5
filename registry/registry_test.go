package registry_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/Jedsadha1777/RuleFlow-sub002/registry"
)

func TestBuiltinCatalog(t *testing.T) {
	is := is.New(t)
	r := registry.New()

	cases := []struct {
		name string
		args []any
		want any
	}{
		{"abs", []any{-3.5}, 3.5},
		{"sqrt", []any{144.0}, 12.0},
		{"floor", []any{2.9}, 2.0},
		{"ceil", []any{2.1}, 3.0},
		{"pow", []any{3.0, 4.0}, 81.0},
		{"round", []any{2.567, 2.0}, 2.57},
		{"min", []any{5.0, 1.0, 9.0}, 1.0},
		{"max", []any{5.0, 1.0, 9.0}, 9.0},
		{"sum", []any{1.0, 2.0, 3.0}, 6.0},
		{"avg", []any{2.0, 4.0, 6.0}, 4.0},
		{"count", []any{1.0, 2.0, 3.0, 4.0}, 4.0},
		{"median", []any{5.0, 1.0, 3.0}, 3.0},
		{"percentage", []any{50.0, 200.0}, 25.0},
		{"discount", []any{200.0, 10.0}, 180.0},
		{"clamp", []any{15.0, 0.0, 10.0}, 10.0},
	}
	for _, c := range cases {
		got, err := r.Call(c.name, c.args)
		is.NoErr(err)
		is.Equal(got, c.want) // c.name
	}
}

func TestUnknownFunction(t *testing.T) {
	is := is.New(t)

	_, err := registry.New().Call("no_such_thing", nil)
	is.True(errors.Is(err, registry.ErrUnknownFunction))
	is.True(strings.Contains(err.Error(), "no_such_thing"))
}

func TestArityChecked(t *testing.T) {
	is := is.New(t)
	r := registry.New()

	_, err := r.Call("sqrt", []any{1.0, 2.0})
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "expects"))
}

func TestRegisterCustomFunction(t *testing.T) {
	is := is.New(t)
	r := registry.New()

	r.Register("double", func(args []any) (any, error) {
		return args[0].(float64) * 2, nil
	}, registry.Meta{Category: "custom", Description: "doubles a number", Arity: 1})

	got, err := r.Call("double", []any{21.0})
	is.NoErr(err)
	is.Equal(got, 42.0)

	meta, ok := r.Describe("double")
	is.True(ok)
	is.Equal(meta.Category, "custom")
}

func TestCategoriesAreSorted(t *testing.T) {
	is := is.New(t)
	r := registry.New()

	cats := r.Categories()
	mathFns, ok := cats["math"]
	is.True(ok)
	is.True(len(mathFns) > 0)
	for i := 1; i < len(mathFns); i++ {
		is.True(mathFns[i-1] < mathFns[i])
	}
}
