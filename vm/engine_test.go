package scvm_test

import (
	"context"
	"testing"

	"scvm/internal/asmfixture"
	"scvm/vm"
)

type nilFinder struct{}

func (nilFinder) FindSyscall(string) (scvm.SyscallCallable, bool) { return nil, false }
func (nilFinder) FindPd(string) (scvm.ProtectionDomain, bool)     { return nil, false }
func (nilFinder) FindFacility(string) (scvm.Facility, bool)       { return nil, false }

func buildProgram(t *testing.T, cs *scvm.CodeSection) *scvm.Program {
	t.Helper()
	unit := &scvm.LinkingUnit{Code: []*scvm.CodeSection{cs}}
	prog, err := scvm.NewProgram([]*scvm.LinkingUnit{unit}, 0, nilFinder{}, nilFinder{}, nilFinder{})
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	return prog
}

func runToCompletion(t *testing.T, cs *scvm.CodeSection) *scvm.Process {
	t.Helper()
	proc := scvm.NewProcess(buildProgram(t, cs))
	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return proc
}

func assertFinished(t *testing.T, proc *scvm.Process, want int64) {
	t.Helper()
	if proc.State() != scvm.StateFinished {
		t.Fatalf("state = %v, fault = %v, want Finished", proc.State(), proc.LastFault())
	}
	if got := proc.ExitValue().AsI64(); got != want {
		t.Fatalf("exit value = %d, want %d", got, want)
	}
}

func assertCrashed(t *testing.T, proc *scvm.Process, want scvm.FaultKind) {
	t.Helper()
	if proc.State() != scvm.StateCrashed {
		t.Fatalf("state = %v, want Crashed", proc.State())
	}
	if got := proc.LastFault().Kind; got != want {
		t.Fatalf("fault = %v, want %v", got, want)
	}
}

// Registers only exist once pushed (PushImm/PushReg); LoadImm/Num/Shift
// write to an existing register index and fault on anything else, so every
// fixture below pushes placeholders for destination registers before using
// them.

func TestHelloHalt(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(42))
	b.Halt(0)
	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertFinished(t, runToCompletion(t, cs), 42)
}

func TestCallReturnAdd(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(7)) // r0
	b.PushImm(scvm.BlockFromI64(8)) // r1
	b.ArgPushReg(0)
	b.ArgPushReg(1)
	b.Call("add", 0, true, 2)
	b.Halt(0)
	b.Label("add")
	b.Num(scvm.KindI64, scvm.OpNumAdd, 0, 0, 1)
	b.Return(0, true)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertFinished(t, runToCompletion(t, cs), 15)
}

func TestMemAllocFree(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromU64(16)) // r0: size
	b.PushImm(scvm.BlockFromI64(0))  // r1: dest placeholder for handle
	b.MemAlloc(0, 1)
	b.MemFree(1)
	b.Halt(0)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertFinished(t, runToCompletion(t, cs), 16)
}

func TestMemFreeInUseFaults(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromU64(16)) // r0: size
	b.PushImm(scvm.BlockFromI64(0))  // r1: dest placeholder for handle
	b.MemAlloc(0, 1)
	b.PushImm(scvm.BlockFromI64(0))  // r2: offset
	b.PushImm(scvm.BlockFromI64(16)) // r3: size
	b.ArgPushCRefFromSlot(1, 2, 3)   // bumps the slot's ref count, never released
	b.MemFree(1)
	b.Halt(1)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertCrashed(t, runToCompletion(t, cs), scvm.FaultMemoryInUse)
}

// TestMemFreeSucceedsAfterCallReleasesArgRef guards against a reference
// leak on frame pop: a ref passed as a call argument must be released when
// the callee returns, or mem_free on its backing handle would fail with
// MemoryInUse forever even though no reference to it is still live.
func TestMemFreeSucceedsAfterCallReleasesArgRef(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromU64(16)) // r0: size
	b.PushImm(scvm.BlockFromI64(0))  // r1: dest placeholder for handle
	b.MemAlloc(0, 1)
	b.PushImm(scvm.BlockFromI64(0))  // r2: offset
	b.PushImm(scvm.BlockFromU64(16)) // r3: size
	b.ArgPushRefFromSlot(1, 2, 3)
	b.Call("noop", 0, false, 1)
	b.MemFree(1)
	b.Halt(0) // r0: still the untouched size value, proving MemFree above succeeded
	b.Label("noop")
	b.Return(0, false)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertFinished(t, runToCompletion(t, cs), 16)
}

// TestInvalidStackIndexInCalledFrame checks spec §4.5's distinction between
// a register-index fault in the global frame and a stack-index fault in any
// called frame: the same out-of-range access faults differently depending
// on which frame it happens in.
func TestInvalidStackIndexInCalledFrame(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(0)) // r0
	b.Call("bad", 0, false, 0)
	b.Halt(0)
	b.Label("bad")
	b.Move(0, 0) // r0 doesn't exist in this fresh, empty callee frame

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertCrashed(t, runToCompletion(t, cs), scvm.FaultInvalidStackIndex)
}

func TestIntegerDivideByZeroFaults(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(5)) // r0
	b.PushImm(scvm.BlockFromI64(0)) // r1
	b.PushImm(scvm.BlockFromI64(0)) // r2: dest placeholder
	b.Num(scvm.KindI32, scvm.OpNumDiv, 2, 0, 1)
	b.Halt(2)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertCrashed(t, runToCompletion(t, cs), scvm.FaultIntegerDivideByZero)
}

func TestFloatDivideByZeroCrashMask(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromF64(1)) // r0
	b.PushImm(scvm.BlockFromF64(0)) // r1
	b.PushImm(scvm.BlockFromF64(0)) // r2: dest placeholder
	b.Num(scvm.KindF64, scvm.OpNumDiv, 2, 0, 1)
	b.Halt(2)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	proc := scvm.NewProcess(buildProgram(t, cs))
	sf := proc.SoftFloatState()
	sf.CrashMask |= scvm.FlagDivByZero
	proc.SetSoftFloatState(sf)

	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertCrashed(t, proc, scvm.FaultFloatingPointDivByZero)
}

func TestShiftLeftZeroFill(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromU64(0x01)) // r0
	b.PushImm(scvm.BlockFromU64(4))    // r1
	b.PushImm(scvm.BlockFromU64(0))    // r2: dest placeholder
	b.Shift(scvm.KindU8, scvm.OpShlZero, 2, 0, 1)
	b.Halt(2)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertFinished(t, runToCompletion(t, cs), 0x10)
}

func TestRefStoreLoadRoundTrip(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromU64(8)) // r0: alloc size
	b.PushImm(scvm.BlockFromI64(0)) // r1: dest placeholder for handle
	b.MemAlloc(0, 1)
	b.PushImm(scvm.BlockFromI64(0)) // r2: ref offset
	b.PushImm(scvm.BlockFromU64(8)) // r3: ref size
	b.PushImm(scvm.BlockFromI64(0)) // r4: dest placeholder for the call's return value
	b.ArgPushRefFromSlot(1, 2, 3)
	b.Call("roundtrip", 4, true, 1)
	b.Halt(4)
	b.Label("roundtrip")
	b.PushImm(scvm.BlockFromI64(99)) // r0: value to store
	b.RefStore(0, 0)
	b.PushImm(scvm.BlockFromI64(0)) // r1: dest placeholder for the re-read value
	b.RefLoad(0, 1)
	b.Return(1, true)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	assertFinished(t, runToCompletion(t, cs), 99)
}

func TestPauseTrapsBeforeNextInstruction(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(1)) // r0
	b.Halt(0)

	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	proc := scvm.NewProcess(buildProgram(t, cs))
	proc.Pause()

	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if proc.State() != scvm.StateTrapped {
		t.Fatalf("state = %v, want Trapped", proc.State())
	}
	if got := proc.LastFault().Kind; got != scvm.FaultTrap {
		t.Fatalf("fault = %v, want FaultTrap", got)
	}

	if err := proc.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertFinished(t, proc, 1)
}

func TestUndefinedLabelFailsToAssemble(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(0))
	b.Jmp("nowhere")
	if _, err := b.CodeSection(); err == nil {
		t.Fatal("expected undefined label error")
	}
}
