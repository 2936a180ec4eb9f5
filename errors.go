package ruleflow

import "errors"

// Error values returned by evaluation and validation. All of them abort the
// current call; test with errors.Is. The wrapped message names the offending
// variable, formula or operator.
var (
	// ErrMissingInput is returned by the pre-flight input check when a
	// declared required input is absent, before any formula runs.
	ErrMissingInput = errors.New("missing input")

	// ErrConditionVariableNotFound is returned when a "$"-prefixed
	// comparison value inside a condition is not bound in the context.
	ErrConditionVariableNotFound = errors.New("condition variable not found")

	// ErrReferenceVariableNotFound is returned when a "$"-reference inside
	// a set_vars or default_vars clause is not bound in the context.
	ErrReferenceVariableNotFound = errors.New("reference variable not found")

	// ErrInvalidOperatorUsage is returned when an operator is given an
	// operand of the wrong shape, such as "between" without a [low, high]
	// pair or "in" without a collection.
	ErrInvalidOperatorUsage = errors.New("invalid operator usage")

	// ErrInvalidConfiguration is returned for structurally malformed
	// specifications: no formulas, duplicate IDs, a formula with no
	// recognizable shape, or a condition that is neither a predicate nor
	// an and/or composite.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrForwardReference is returned by Validate when a formula requires
	// a value that is only produced by a formula declared after it.
	ErrForwardReference = errors.New("circular or forward reference")
)
