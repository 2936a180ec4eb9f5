package ruleflow

import (
	"fmt"
	"strings"

	"github.com/Delta456/box-cli-maker/v2"
	"github.com/alexeyco/simpletable"
)

// ValueSource tells where a traced value came from.
type ValueSource int

const (
	// Input values were supplied by the caller.
	Input ValueSource = iota
	// Evaluated values were produced by a formula.
	Evaluated
)

func (s ValueSource) String() string {
	switch s {
	case Input:
		return "input"
	default:
		return "evaluated"
	}
}

// TraceStep records one pipeline event: an input binding or a formula
// evaluation, including which branch produced the value.
type TraceStep struct {
	Name   string
	Shape  string
	Branch string
	Value  any
	Source ValueSource
}

// Trace is the ordered record of one evaluation, produced by
// EvaluateTraced.
type Trace struct {
	Steps []TraceStep
}

func (t *Trace) add(s TraceStep) {
	t.Steps = append(t.Steps, s)
}

// String renders the steps as a table.
func (t *Trace) String() string {
	return t.stepTable().String()
}

// Report renders a full evaluation report: the spec's formulas, the
// pipeline steps, and the final result values.
func (t *Trace) Report(spec *Spec, result map[string]any) string {
	b := box.New(box.Config{Px: 2, Py: 1, Type: "Double", Color: "Cyan", TitlePos: "Top", ContentAlign: "Left"})

	s := strings.Builder{}
	if spec != nil {
		s.WriteString("Spec:\n")
		s.WriteString("-----\n")
		s.WriteString(spec.String())
		s.WriteString("\n\n")
	}

	s.WriteString("Pipeline:\n")
	s.WriteString("---------\n")
	s.WriteString(t.stepTable().String())

	if result != nil {
		s.WriteString("\n\n")
		s.WriteString("Result:\n")
		s.WriteString("-------\n")
		s.WriteString(resultTable(result).String())
	}
	return b.String("RULEFLOW EVALUATION TRACE", s.String())
}

func (t *Trace) stepTable() *simpletable.Table {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Step"},
			{Align: simpletable.AlignCenter, Text: "Name"},
			{Align: simpletable.AlignCenter, Text: "Shape"},
			{Align: simpletable.AlignCenter, Text: "Branch"},
			{Align: simpletable.AlignCenter, Text: "Value"},
			{Align: simpletable.AlignCenter, Text: "Source"},
		},
	}

	for i, step := range t.Steps {
		r := []*simpletable.Cell{
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", i+1)},
			{Text: step.Name},
			{Text: step.Shape},
			{Text: step.Branch},
			{Text: fmt.Sprintf("%v", step.Value)},
			{Text: step.Source.String()},
		}
		table.Body.Cells = append(table.Body.Cells, r)
	}

	table.SetStyle(simpletable.StyleUnicode)
	return table
}

func resultTable(result map[string]any) *simpletable.Table {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Name"},
			{Align: simpletable.AlignCenter, Text: "Value"},
		},
	}

	for _, k := range SortedKeys(result) {
		r := []*simpletable.Cell{
			{Text: k},
			{Text: fmt.Sprintf("%v", result[k])},
		}
		table.Body.Cells = append(table.Body.Cells, r)
	}

	table.SetStyle(simpletable.StyleUnicode)
	return table
}
