package scvm_test

import (
	"math"
	"testing"

	"scvm/vm"
)

func TestSFAddBasic(t *testing.T) {
	s := scvm.DefaultSFState()
	got, _ := scvm.SFAdd64(s, 1.5, 2.25)
	if got != 3.75 {
		t.Fatalf("1.5+2.25 = %v, want 3.75", got)
	}
}

func TestSFDivByZeroSetsFlagNotCrashByDefault(t *testing.T) {
	s := scvm.DefaultSFState()
	got, ns := scvm.SFDiv64(s, 1, 0)
	if !math.IsInf(got, 1) {
		t.Fatalf("1/0 = %v, want +Inf", got)
	}
	if ns.Flags&scvm.FlagDivByZero == 0 {
		t.Fatal("expected FlagDivByZero set")
	}
	if ns.Crashed() != scvm.FaultNone {
		t.Fatalf("Crashed() = %v, want FaultNone (crash mask empty by default)", ns.Crashed())
	}
}

func TestSFDivByZeroCrashesWhenMasked(t *testing.T) {
	s := scvm.DefaultSFState()
	s.CrashMask = scvm.FlagDivByZero
	_, ns := scvm.SFDiv64(s, 1, 0)
	if ns.Crashed() != scvm.FaultFloatingPointDivByZero {
		t.Fatalf("Crashed() = %v, want FaultFloatingPointDivByZero", ns.Crashed())
	}
}

func TestSFZeroOverZeroIsInvalid(t *testing.T) {
	s := scvm.DefaultSFState()
	got, ns := scvm.SFDiv64(s, 0, 0)
	if !math.IsNaN(got) {
		t.Fatalf("0/0 = %v, want NaN", got)
	}
	if ns.Flags&scvm.FlagInvalid == 0 {
		t.Fatal("expected FlagInvalid set for 0/0")
	}
}

func TestSFSqrtNegativeIsInvalid(t *testing.T) {
	s := scvm.DefaultSFState()
	got, ns := scvm.SFSqrt64(s, -4)
	if !math.IsNaN(got) {
		t.Fatalf("sqrt(-4) = %v, want NaN", got)
	}
	if ns.Flags&scvm.FlagInvalid == 0 {
		t.Fatal("expected FlagInvalid set for sqrt of a negative")
	}
}

func TestSFSqrtPositive(t *testing.T) {
	s := scvm.DefaultSFState()
	got, _ := scvm.SFSqrt64(s, 9)
	if got != 3 {
		t.Fatalf("sqrt(9) = %v, want 3", got)
	}
}

func TestSFCompareOrdering(t *testing.T) {
	s := scvm.DefaultSFState()
	if lt, _ := scvm.SFLt(s, 1, 2); !lt {
		t.Fatal("1 < 2 should be true")
	}
	if eq, _ := scvm.SFEq(s, 2, 2); !eq {
		t.Fatal("2 == 2 should be true")
	}
	if le, _ := scvm.SFLe(s, 2, 2); !le {
		t.Fatal("2 <= 2 should be true")
	}
}

func TestSFCompareQuietNaNDoesNotRaise(t *testing.T) {
	s := scvm.DefaultSFState()
	nan := math.NaN()
	_, ns := scvm.SFLeQuiet(s, nan, 1)
	if ns.Flags&scvm.FlagInvalid != 0 {
		t.Fatal("quiet compare against a quiet NaN must not raise invalid")
	}
}

func TestSFRoundToIntTowardZero(t *testing.T) {
	s := scvm.DefaultSFState()
	s.Round = scvm.RoundToZero
	got, _ := scvm.SFRoundToInt64(s, 2.7)
	if got != 2 {
		t.Fatalf("round-to-zero(2.7) = %v, want 2", got)
	}
	got, _ = scvm.SFRoundToInt64(s, -2.7)
	if got != -2 {
		t.Fatalf("round-to-zero(-2.7) = %v, want -2", got)
	}
}

func TestSFFloatToIntConversions(t *testing.T) {
	s := scvm.DefaultSFState()
	i, ns := scvm.SFFloatToInt64(s, 42.0)
	if i != 42 || ns.Flags&scvm.FlagInvalid != 0 {
		t.Fatalf("FloatToInt64(42) = %d, flags=%v", i, ns.Flags)
	}
	u, ns2 := scvm.SFFloatToUint64(s, 7.0)
	if u != 7 || ns2.Flags&scvm.FlagInvalid != 0 {
		t.Fatalf("FloatToUint64(7) = %d, flags=%v", u, ns2.Flags)
	}
	_, ns3 := scvm.SFFloatToUint64(s, -1.0)
	if ns3.Flags&scvm.FlagInvalid == 0 {
		t.Fatal("FloatToUint64 of a negative value must raise invalid")
	}
}

func TestSFIntToFloatRoundTrip(t *testing.T) {
	s := scvm.DefaultSFState()
	f, _ := scvm.SFIntToFloat64(s, int64(-17))
	if f != -17 {
		t.Fatalf("IntToFloat64(-17) = %v, want -17", f)
	}
	i, _ := scvm.SFFloatToInt64(s, f)
	if i != -17 {
		t.Fatalf("FloatToInt64(IntToFloat64(-17)) = %d, want -17", i)
	}
}

func TestSFNegFlipsSign(t *testing.T) {
	if got := scvm.SFNeg64(3.5); got != -3.5 {
		t.Fatalf("SFNeg64(3.5) = %v, want -3.5", got)
	}
	if got := scvm.SFNeg32(3.5); got != -3.5 {
		t.Fatalf("SFNeg32(3.5) = %v, want -3.5", got)
	}
}
