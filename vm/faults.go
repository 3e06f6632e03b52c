package scvm

import "fmt"

// FaultKind enumerates every runtime fault the engine can raise (spec §4.5).
// Every variant transitions the owning Process to Crashed when it escapes
// to the host, except Trap which leaves the process Trapped.
type FaultKind int

const (
	FaultNone FaultKind = iota

	FaultJumpToInvalidAddress
	FaultInvalidStackIndex
	FaultInvalidRegisterIndex
	FaultInvalidReferenceIndex
	FaultInvalidConstReferenceIndex
	FaultInvalidSyscallIndex
	FaultInvalidMemoryHandle
	FaultOutOfBoundsRead
	FaultOutOfBoundsWrite
	FaultWriteDenied
	FaultOutOfBoundsReferenceOffset
	FaultOutOfBoundsReferenceSize
	FaultIntegerDivideByZero
	FaultIntegerOverflow
	FaultMemoryInUse
	FaultOutOfMemory

	FaultFloatingPointDivByZero
	FaultFloatingPointOverflow
	FaultFloatingPointUnderflow
	FaultFloatingPointInexactResult
	FaultFloatingPointInvalidOperation
	FaultFloatingPointUnknown

	FaultSystemCallError
	FaultUserDefinedException
	FaultTrap
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultJumpToInvalidAddress:
		return "jump to invalid address"
	case FaultInvalidStackIndex:
		return "invalid stack index"
	case FaultInvalidRegisterIndex:
		return "invalid register index"
	case FaultInvalidReferenceIndex:
		return "invalid reference index"
	case FaultInvalidConstReferenceIndex:
		return "invalid const-reference index"
	case FaultInvalidSyscallIndex:
		return "invalid syscall index"
	case FaultInvalidMemoryHandle:
		return "invalid memory handle"
	case FaultOutOfBoundsRead:
		return "out of bounds read"
	case FaultOutOfBoundsWrite:
		return "out of bounds write"
	case FaultWriteDenied:
		return "write denied"
	case FaultOutOfBoundsReferenceOffset:
		return "out of bounds reference offset"
	case FaultOutOfBoundsReferenceSize:
		return "out of bounds reference size"
	case FaultIntegerDivideByZero:
		return "integer divide by zero"
	case FaultIntegerOverflow:
		return "integer overflow"
	case FaultMemoryInUse:
		return "memory in use"
	case FaultOutOfMemory:
		return "out of memory"
	case FaultFloatingPointDivByZero:
		return "floating point divide by zero"
	case FaultFloatingPointOverflow:
		return "floating point overflow"
	case FaultFloatingPointUnderflow:
		return "floating point underflow"
	case FaultFloatingPointInexactResult:
		return "floating point inexact result"
	case FaultFloatingPointInvalidOperation:
		return "floating point invalid operation"
	case FaultFloatingPointUnknown:
		return "floating point unknown exception"
	case FaultSystemCallError:
		return "system call error"
	case FaultUserDefinedException:
		return "user defined exception"
	case FaultTrap:
		return "trap"
	default:
		return "unknown fault"
	}
}

// Fault is the single error type raised by the engine for every runtime
// fault in spec §4.5's table. Load-time failures (spec §7's "load errors")
// are returned as plain errors from Program construction instead; Fault is
// reserved for faults that occur while a Process is running.
type Fault struct {
	Kind FaultKind
	// IP is the offset of the faulting instruction, saved before the
	// fault propagates to the host (spec §7).
	IP uint64
	// UserCode carries the 64-bit code for FaultUserDefinedException.
	UserCode int64
	// HostErr carries the host's original error for FaultSystemCallError.
	HostErr error
}

func (f *Fault) Error() string {
	switch f.Kind {
	case FaultUserDefinedException:
		return fmt.Sprintf("user exception %d at ip=%d", f.UserCode, f.IP)
	case FaultSystemCallError:
		return fmt.Sprintf("system call error at ip=%d: %v", f.IP, f.HostErr)
	default:
		return fmt.Sprintf("%s at ip=%d", f.Kind, f.IP)
	}
}

func (f *Fault) Unwrap() error { return f.HostErr }

func newFault(kind FaultKind) *Fault { return &Fault{Kind: kind} }

// Load errors: failures that keep a Program from ever becoming ready.
// Modeled as plain sentinel errors in GVM's style (vm.go's errProgramFinished
// et al.), since these never need to carry the structured IP/Kind a runtime
// Fault does.
type LoadError string

func (e LoadError) Error() string { return string(e) }

const (
	ErrInvalidHeader              LoadError = "invalid header"
	ErrVersionMismatch             LoadError = "version mismatch"
	ErrInvalidInputFile            LoadError = "invalid input file"
	ErrNoCodeSections              LoadError = "unit has no code sections"
	ErrInvalidInstruction          LoadError = "invalid instruction"
	ErrInvalidInstructionArguments LoadError = "invalid instruction arguments"
	ErrUndefinedSyscallBind        LoadError = "undefined syscall binding"
	ErrUndefinedPdBind             LoadError = "undefined protection domain binding"
	ErrDuplicatePdBind             LoadError = "duplicate protection domain binding"
	ErrImplementationLimits        LoadError = "implementation limits exceeded"

	ErrNotInitializedState LoadError = "process is not in the initialized state"
	ErrNotTrappedState     LoadError = "process is not in the trapped state"
)
