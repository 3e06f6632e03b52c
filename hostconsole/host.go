// Package hostconsole is a reference host environment: a concrete
// syscall_finder/pd_finder/facility_finder triple (spec §6) wired to the
// process's own stdin/stdout instead of a network or test harness. It is
// the thing a standalone interpreter binary links against; library users
// embedding the engine elsewhere supply their own.
package hostconsole

import (
	"context"
	"fmt"
	"io"
	"time"

	"scvm/vm"
)

// Host is the default syscall/pd/facility namespace: console read/write,
// a millisecond clock, and a "null" protection domain stub that syscalls
// can bind to without a real storage backend.
type Host struct {
	out io.Writer
	in  *TerminalReader

	syscalls   map[string]scvm.SyscallCallable
	pds        map[string]scvm.ProtectionDomain
	facilities map[string]scvm.Facility
}

// NewHost builds a Host writing to out and reading interactive input
// through in (nil is fine if the process never calls console.read).
func NewHost(out io.Writer, in *TerminalReader) *Host {
	h := &Host{
		out:        out,
		in:         in,
		syscalls:   make(map[string]scvm.SyscallCallable),
		pds:        make(map[string]scvm.ProtectionDomain),
		facilities: make(map[string]scvm.Facility),
	}
	h.syscalls["console.write"] = syscallFunc(h.consoleWrite)
	h.syscalls["console.read"] = syscallFunc(h.consoleRead)
	h.syscalls["clock.time_ms"] = syscallFunc(h.clockTimeMs)
	h.pds["null"] = nullPd{}
	h.facilities["clock"] = systemClock{}
	return h
}

func (h *Host) FindSyscall(signature string) (scvm.SyscallCallable, bool) {
	c, ok := h.syscalls[signature]
	return c, ok
}

func (h *Host) FindPd(signature string) (scvm.ProtectionDomain, bool) {
	pd, ok := h.pds[signature]
	return pd, ok
}

func (h *Host) FindFacility(name string) (scvm.Facility, bool) {
	f, ok := h.facilities[name]
	return f, ok
}

// syscallFunc adapts a plain function to scvm.SyscallCallable, the same
// function-as-interface pattern GVM's devices.go uses for its hardware
// device callbacks.
type syscallFunc func(ctx context.Context, proc *scvm.Process, args scvm.SyscallArgs) (scvm.CodeBlock, error)

func (f syscallFunc) Invoke(ctx context.Context, proc *scvm.Process, args scvm.SyscallArgs) (scvm.CodeBlock, error) {
	return f(ctx, proc, args)
}

// consoleWrite writes the bytes of the first pushed const-reference (or
// reference, for a caller that didn't bother with a cref) to stdout and
// returns the byte count written.
func (h *Host) consoleWrite(_ context.Context, _ *scvm.Process, args scvm.SyscallArgs) (scvm.CodeBlock, error) {
	var data []byte
	switch {
	case len(args.CRefs) > 0:
		data = args.CRefs[0].Bytes()
	case len(args.Refs) > 0:
		data = args.Refs[0].Bytes()
	default:
		return 0, fmt.Errorf("console.write: no buffer pushed")
	}
	n, err := h.out.Write(data)
	return scvm.BlockFromU64(uint64(n)), err
}

// consoleRead blocks until at least one byte of interactive input is
// available (or ctx is done) and copies up to len(buffer) bytes into the
// first pushed reference, returning the count read.
func (h *Host) consoleRead(ctx context.Context, _ *scvm.Process, args scvm.SyscallArgs) (scvm.CodeBlock, error) {
	if len(args.Refs) == 0 {
		return 0, fmt.Errorf("console.read: no destination buffer pushed")
	}
	if h.in == nil {
		return 0, fmt.Errorf("console.read: no interactive reader attached")
	}
	n, err := h.in.Read(ctx, args.Refs[0].Bytes())
	return scvm.BlockFromU64(uint64(n)), err
}

func (h *Host) clockTimeMs(_ context.Context, _ *scvm.Process, _ scvm.SyscallArgs) (scvm.CodeBlock, error) {
	return scvm.BlockFromU64(uint64(time.Now().UnixMilli())), nil
}

// nullPd is a protection domain stub: it exists so a linking unit can bind
// a "null" pd and pass syscalls a non-nil scvm.ProtectionDomain without the
// engine shipping a real storage backend.
type nullPd struct{}

func (nullPd) Name() string { return "null" }

type systemClock struct{}
