// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/armature-robotics/armature/wire"
)

// Condition is a boolean expression over real-time state variables,
// evaluated by the control server once per control cycle. Conditions
// are immutable values built with the factory functions below
// ([IsTrue], [IsEqual], [AllOf], ...) and compose into expression
// trees.
//
// The variant set is closed: comparison, negation, conjunction.
type Condition interface {
	// wireCondition converts the condition to its wire form. It also
	// seals the interface: only this package defines variants.
	wireCondition() (wire.Condition, error)
}

// Operand constrains the operand types a comparison accepts. The
// three wire representations (bool, int64, double) are deliberately
// non-interchangeable: control-loop state variables are typed, and
// comparing a bool variable against the integer 1 is a server-side
// error, not an equivalent spelling.
type Operand interface {
	bool | int | int64 | float64
}

// NumericOperand constrains the operand types for ordering and
// approximate comparisons, where a bool has no meaning.
type NumericOperand interface {
	int | int64 | float64
}

// operandKind discriminates the stored operand of a comparison.
type operandKind uint8

const (
	operandBool operandKind = iota + 1
	operandInt64
	operandDouble
)

// comparisonCondition compares one state variable against a constant.
type comparisonCondition struct {
	stateVariable string
	operation     wire.ComparisonOp

	kind        operandKind
	boolValue   bool
	int64Value  int64
	doubleValue float64

	hasTolerance bool
	tolerance    float64
}

func (c comparisonCondition) wireCondition() (wire.Condition, error) {
	comparison := &wire.Comparison{
		StateVariable: c.stateVariable,
		Operation:     c.operation,
	}
	switch c.kind {
	case operandBool:
		value := c.boolValue
		comparison.BoolValue = &value
	case operandInt64:
		value := c.int64Value
		comparison.Int64Value = &value
	case operandDouble:
		value := c.doubleValue
		comparison.DoubleValue = &value
	default:
		return wire.Condition{}, fmt.Errorf("session: invalid comparison operand discriminator %d", c.kind)
	}
	if c.hasTolerance {
		tolerance := c.tolerance
		comparison.MaxAbsError = &tolerance
	}
	return wire.Condition{Comparison: comparison}, nil
}

// negatedCondition inverts its child condition.
type negatedCondition struct {
	child Condition
}

func (c negatedCondition) wireCondition() (wire.Condition, error) {
	child, err := c.child.wireCondition()
	if err != nil {
		return wire.Condition{}, err
	}
	return wire.Condition{Negated: &child}, nil
}

// conjunctionCondition combines its children with ALL_OF or ANY_OF.
type conjunctionCondition struct {
	operation wire.ConjunctionOp
	children  []Condition
}

func (c conjunctionCondition) wireCondition() (wire.Condition, error) {
	if len(c.children) == 0 {
		return wire.Condition{}, fmt.Errorf("session: %s condition requires at least one child", c.operation)
	}
	children := make([]wire.Condition, 0, len(c.children))
	for _, child := range c.children {
		converted, err := child.wireCondition()
		if err != nil {
			return wire.Condition{}, err
		}
		children = append(children, converted)
	}
	return wire.Condition{Conjunction: &wire.Conjunction{
		Operation:  c.operation,
		Conditions: children,
	}}, nil
}

// storeOperand captures the operand into the comparison's typed slot.
// int widens to int64; bool, int64, and float64 map to their own wire
// representations. The Operand constraint limits value to exactly
// these four types.
func storeOperand(comparison *comparisonCondition, value any) {
	switch v := value.(type) {
	case bool:
		comparison.kind = operandBool
		comparison.boolValue = v
	case int:
		comparison.kind = operandInt64
		comparison.int64Value = int64(v)
	case int64:
		comparison.kind = operandInt64
		comparison.int64Value = v
	case float64:
		comparison.kind = operandDouble
		comparison.doubleValue = v
	}
}

// newComparison builds a comparison condition for the given operator
// and operand.
func newComparison(stateVariable string, operation wire.ComparisonOp, value any) Condition {
	comparison := comparisonCondition{
		stateVariable: stateVariable,
		operation:     operation,
	}
	storeOperand(&comparison, value)
	return comparison
}

// doneStateVariable is the server-defined state variable that becomes
// true when the associated action reports completion.
const doneStateVariable = "is_done"

// IsTrue matches when the named boolean state variable is true.
func IsTrue(stateVariable string) Condition {
	return newComparison(stateVariable, wire.OpEqual, true)
}

// IsFalse matches when the named boolean state variable is false.
func IsFalse(stateVariable string) Condition {
	return newComparison(stateVariable, wire.OpEqual, false)
}

// IsDone matches when the associated action reports completion.
// Shorthand for IsTrue on the well-known done state variable; only
// meaningful in reactions attached to an action.
func IsDone() Condition {
	return IsTrue(doneStateVariable)
}

// IsEqual matches when the state variable equals value.
func IsEqual[T Operand](stateVariable string, value T) Condition {
	return newComparison(stateVariable, wire.OpEqual, value)
}

// IsNotEqual matches when the state variable differs from value.
func IsNotEqual[T Operand](stateVariable string, value T) Condition {
	return newComparison(stateVariable, wire.OpNotEqual, value)
}

// IsApproxEqual matches when the state variable is within tolerance
// of value.
func IsApproxEqual[T NumericOperand](stateVariable string, value T, tolerance float64) Condition {
	comparison := comparisonCondition{
		stateVariable: stateVariable,
		operation:     wire.OpApproxEqual,
		hasTolerance:  true,
		tolerance:     tolerance,
	}
	storeOperand(&comparison, value)
	return comparison
}

// IsGreaterThan matches when the state variable exceeds value.
func IsGreaterThan[T NumericOperand](stateVariable string, value T) Condition {
	return newComparison(stateVariable, wire.OpGreaterThan, value)
}

// IsGreaterThanOrEqual matches when the state variable is at least
// value.
func IsGreaterThanOrEqual[T NumericOperand](stateVariable string, value T) Condition {
	return newComparison(stateVariable, wire.OpGreaterThanOrEqual, value)
}

// IsLessThan matches when the state variable is below value.
func IsLessThan[T NumericOperand](stateVariable string, value T) Condition {
	return newComparison(stateVariable, wire.OpLessThan, value)
}

// IsLessThanOrEqual matches when the state variable is at most value.
func IsLessThanOrEqual[T NumericOperand](stateVariable string, value T) Condition {
	return newComparison(stateVariable, wire.OpLessThanOrEqual, value)
}

// IsNot inverts a condition.
func IsNot(condition Condition) Condition {
	return negatedCondition{child: condition}
}

// AnyOf matches when at least one child condition matches. Requires
// at least one child.
func AnyOf(conditions ...Condition) Condition {
	return conjunctionCondition{operation: wire.ConjunctionAnyOf, children: conditions}
}

// AllOf matches when every child condition matches. Requires at
// least one child.
func AllOf(conditions ...Condition) Condition {
	return conjunctionCondition{operation: wire.ConjunctionAllOf, children: conditions}
}
