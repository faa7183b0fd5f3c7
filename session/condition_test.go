// Copyright 2026 The Armature Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"

	"github.com/armature-robotics/armature/wire"
)

// mustWire converts a condition, failing the test on error.
func mustWire(t *testing.T, condition Condition) wire.Condition {
	t.Helper()
	converted, err := condition.wireCondition()
	if err != nil {
		t.Fatalf("wireCondition: %v", err)
	}
	return converted
}

func TestComparisonOperators(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		condition Condition
		want      wire.ComparisonOp
	}{
		{"IsEqual", IsEqual("v", int64(3)), wire.OpEqual},
		{"IsNotEqual", IsNotEqual("v", int64(3)), wire.OpNotEqual},
		{"IsGreaterThan", IsGreaterThan("v", 3.0), wire.OpGreaterThan},
		{"IsGreaterThanOrEqual", IsGreaterThanOrEqual("v", 3.0), wire.OpGreaterThanOrEqual},
		{"IsLessThan", IsLessThan("v", 3.0), wire.OpLessThan},
		{"IsLessThanOrEqual", IsLessThanOrEqual("v", 3.0), wire.OpLessThanOrEqual},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			converted := mustWire(t, test.condition)
			comparison := converted.Comparison
			if comparison == nil {
				t.Fatal("no comparison in wire condition")
			}
			if comparison.Operation != test.want {
				t.Fatalf("operation = %s, want %s", comparison.Operation, test.want)
			}
			if comparison.StateVariable != "v" {
				t.Fatalf("state variable = %q, want v", comparison.StateVariable)
			}
		})
	}
}

// The three operand representations are distinct on the wire: a bool
// comparison and an integer comparison of "the same" value must not
// collapse into one encoding.
func TestOperandRepresentations(t *testing.T) {
	t.Parallel()

	boolComparison := mustWire(t, IsEqual("v", true)).Comparison
	if boolComparison.BoolValue == nil || !*boolComparison.BoolValue {
		t.Fatalf("bool operand = %+v, want BoolValue true", boolComparison)
	}
	if boolComparison.Int64Value != nil || boolComparison.DoubleValue != nil {
		t.Fatal("bool operand set a numeric field")
	}

	intComparison := mustWire(t, IsEqual("v", 1)).Comparison
	if intComparison.Int64Value == nil || *intComparison.Int64Value != 1 {
		t.Fatalf("int operand = %+v, want Int64Value 1", intComparison)
	}
	if intComparison.BoolValue != nil || intComparison.DoubleValue != nil {
		t.Fatal("int operand set a non-integer field")
	}

	int64Comparison := mustWire(t, IsEqual("v", int64(1))).Comparison
	if int64Comparison.Int64Value == nil || *int64Comparison.Int64Value != 1 {
		t.Fatalf("int64 operand = %+v, want Int64Value 1", int64Comparison)
	}

	doubleComparison := mustWire(t, IsEqual("v", 1.0)).Comparison
	if doubleComparison.DoubleValue == nil || *doubleComparison.DoubleValue != 1.0 {
		t.Fatalf("float64 operand = %+v, want DoubleValue 1", doubleComparison)
	}
	if doubleComparison.Int64Value != nil || doubleComparison.BoolValue != nil {
		t.Fatal("float64 operand set a non-double field")
	}
}

func TestBoolSugar(t *testing.T) {
	t.Parallel()

	isTrue := mustWire(t, IsTrue("gripper_closed")).Comparison
	if isTrue.Operation != wire.OpEqual || isTrue.BoolValue == nil || !*isTrue.BoolValue {
		t.Fatalf("IsTrue = %+v", isTrue)
	}

	isFalse := mustWire(t, IsFalse("gripper_closed")).Comparison
	if isFalse.Operation != wire.OpEqual || isFalse.BoolValue == nil || *isFalse.BoolValue {
		t.Fatalf("IsFalse = %+v", isFalse)
	}

	isDone := mustWire(t, IsDone()).Comparison
	if isDone.StateVariable != "is_done" || isDone.BoolValue == nil || !*isDone.BoolValue {
		t.Fatalf("IsDone = %+v", isDone)
	}
}

func TestApproxEqualCarriesTolerance(t *testing.T) {
	t.Parallel()
	comparison := mustWire(t, IsApproxEqual("joint_angle", 1.57, 0.01)).Comparison
	if comparison.Operation != wire.OpApproxEqual {
		t.Fatalf("operation = %s, want %s", comparison.Operation, wire.OpApproxEqual)
	}
	if comparison.DoubleValue == nil || *comparison.DoubleValue != 1.57 {
		t.Fatalf("operand = %+v, want DoubleValue 1.57", comparison)
	}
	if comparison.MaxAbsError == nil || *comparison.MaxAbsError != 0.01 {
		t.Fatalf("tolerance = %v, want 0.01", comparison.MaxAbsError)
	}

	// Other operators never carry a tolerance.
	plain := mustWire(t, IsEqual("joint_angle", 1.57)).Comparison
	if plain.MaxAbsError != nil {
		t.Fatalf("IsEqual carries tolerance %v", *plain.MaxAbsError)
	}
}

func TestNegationNests(t *testing.T) {
	t.Parallel()
	converted := mustWire(t, IsNot(IsNot(IsTrue("v"))))
	if converted.Negated == nil || converted.Negated.Negated == nil {
		t.Fatalf("double negation = %+v", converted)
	}
	inner := converted.Negated.Negated.Comparison
	if inner == nil || inner.StateVariable != "v" {
		t.Fatalf("inner comparison = %+v", inner)
	}
}

func TestConjunctionsPreserveOrder(t *testing.T) {
	t.Parallel()

	all := mustWire(t, AllOf(IsTrue("a"), IsTrue("b"), IsTrue("c"))).Conjunction
	if all == nil || all.Operation != wire.ConjunctionAllOf {
		t.Fatalf("AllOf = %+v", all)
	}
	for i, name := range []string{"a", "b", "c"} {
		if got := all.Conditions[i].Comparison.StateVariable; got != name {
			t.Fatalf("AllOf child %d = %q, want %q", i, got, name)
		}
	}

	any := mustWire(t, AnyOf(IsTrue("a"), IsDone())).Conjunction
	if any == nil || any.Operation != wire.ConjunctionAnyOf {
		t.Fatalf("AnyOf = %+v", any)
	}
	if len(any.Conditions) != 2 {
		t.Fatalf("AnyOf has %d children, want 2", len(any.Conditions))
	}
}

func TestEmptyConjunctionIsRejected(t *testing.T) {
	t.Parallel()
	if _, err := AllOf().wireCondition(); err == nil {
		t.Fatal("empty AllOf converted without error")
	}
	if _, err := AnyOf().wireCondition(); err == nil {
		t.Fatal("empty AnyOf converted without error")
	}
	// The error surfaces through enclosing nodes too.
	if _, err := IsNot(AnyOf()).wireCondition(); err == nil {
		t.Fatal("negated empty AnyOf converted without error")
	}
}
