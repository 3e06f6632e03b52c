package scvm_test

import (
	"math"
	"testing"

	"scvm/vm"
)

// TestFloatGreaterCompareOrdering guards IEEE-754 ordering for > and >=:
// both must be false whenever either operand is NaN, unlike a naive
// "not less-than"/"not less-or-equal" negation which flips unordered
// comparisons to true.
func TestFloatGreaterCompareOrdering(t *testing.T) {
	sf := scvm.DefaultSFState()
	nan := scvm.BlockFromF64(math.NaN())
	one := scvm.BlockFromF64(1)
	two := scvm.BlockFromF64(2)

	cases := []struct {
		name     string
		op       scvm.NumOp
		a, b     scvm.CodeBlock
		wantTrue bool
	}{
		{"2 > 1", scvm.OpNumGt, two, one, true},
		{"1 > 2", scvm.OpNumGt, one, two, false},
		{"1 > 1", scvm.OpNumGt, one, one, false},
		{"NaN > 1", scvm.OpNumGt, nan, one, false},
		{"1 > NaN", scvm.OpNumGt, one, nan, false},
		{"2 >= 1", scvm.OpNumGe, two, one, true},
		{"1 >= 1", scvm.OpNumGe, one, one, true},
		{"1 >= 2", scvm.OpNumGe, one, two, false},
		{"NaN >= 1", scvm.OpNumGe, nan, one, false},
		{"1 >= NaN", scvm.OpNumGe, one, nan, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, fk := scvm.EvalNumOp(&sf, scvm.KindF64, c.op, c.a, c.b)
			if fk != scvm.FaultNone {
				t.Fatalf("unexpected fault: %v", fk)
			}
			got := r.AsI64() != 0
			if got != c.wantTrue {
				t.Fatalf("got %v, want %v", got, c.wantTrue)
			}
		})
	}
}
