// Package ruleflow is a configuration-driven formula and decision engine.
//
// A specification (usually decoded from JSON) describes an ordered list of
// named formulas: arithmetic expressions, switch/when branches, accumulative
// scoring rules, or two-level scoring decision trees. The engine evaluates
// the formulas in declaration order against a set of caller-supplied inputs,
// threading a mutable variable context through the pipeline, and returns the
// resulting context as a map.
//
// Typical use is as follows:
//
//  1. Decode or construct a Spec.
//  2. Call Validate to catch structural problems and forward references.
//  3. Create an Engine.
//  4. Call Evaluate with the input values.
//  5. Read formula outputs (and their aliases) from the returned map.
//
// # Variables and the $ prefix
//
// Every formula's output is bound in the context under the formula ID, and
// under its alias if the formula declares one with "as". A variable may be
// referenced with or without a leading "$"; both forms resolve to the same
// slot. Inside set_vars and default_vars clauses, a value that is exactly a
// "$name" reference is copied without any type coercion, and any other
// string value containing "$" is evaluated as an expression against the
// context as it stands at that point in the pipeline. There is no literal
// fallback for such strings; one that does not parse is a syntax error.
//
// # Evaluation order
//
// Formulas run strictly in declaration order. A value bound by formula N is
// visible to every later formula but never to an earlier one; a formula that
// needs a later formula's output is a configuration error, reported by
// Validate as a forward reference.
//
// # Concurrency
//
// A Spec is read-only during evaluation and may be shared across goroutines.
// Each Evaluate call builds its own context, so concurrent evaluations of
// the same spec on the same Engine are safe. Registering custom functions is
// a setup-time operation; see package registry.
//
// # Code generation
//
// Package codegen compiles the same specification into the source of a
// plain Go function with identical externally observable behavior, for
// callers that need to evaluate one fixed spec at high throughput.
package ruleflow
