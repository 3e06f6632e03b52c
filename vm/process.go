package scvm

import "sync/atomic"

// RunState is a Process's lifecycle stage (spec §4.5/§7).
type RunState int

const (
	StateInitialized RunState = iota
	StateRunning
	StateTrapped
	StateFinished
	StateCrashed
)

func (s RunState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateTrapped:
		return "trapped"
	case StateFinished:
		return "finished"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// pdpiCache is the per-process protection-domain instance cache (spec §3's
// "pdpi cache"): started when a Process first runs, stopped the moment it
// reaches a terminal state other than Trapped (a trapped process may still
// resume and reuse its pdpis).
type pdpiCache struct {
	started bool
	stopped bool
	byPd    map[ProtectionDomain]any
}

func newPdpiCache() *pdpiCache { return &pdpiCache{byPd: make(map[ProtectionDomain]any)} }

func (c *pdpiCache) start() { c.started = true }

func (c *pdpiCache) stop() {
	if c.started && !c.stopped {
		c.stopped = true
		c.byPd = nil
	}
}

// Process is one independent, mutable execution of a Program's active
// linking unit (spec §2: "Program is immutable and shared; Process is
// independent mutable state"). Each Process owns its own memory map,
// register/reference stack, FPU state, and run state; nothing here is
// shared with a sibling Process of the same Program.
type Process struct {
	program *Program
	unit    *LinkingUnit

	state RunState

	ip     int
	frames []*Frame
	next   *Frame // staged for the pending call/syscall, created lazily

	mm    *MemoryMap
	pmm   *PrivateMemoryMap
	usage MemoryUsageCounters

	sf SFState

	trapRequested    atomic.Bool
	lastFault        *Fault
	exitValue        CodeBlock
	syscallException error

	pdpi *pdpiCache
}

// NewProcess instantiates per-process state for prog's active linking
// unit: fresh rodata/data/bss-backed memory slots at handles 1-3, an empty
// bottom frame, and default FPU state (spec §4.1, §4.2, §4.3).
func NewProcess(prog *Program) *Process {
	unit := prog.Units[prog.ActiveUnit]
	p := &Process{
		program: prog,
		unit:    unit,
		state:   StateInitialized,
		sf:      DefaultSFState(),
		pdpi:    newPdpiCache(),
	}
	p.usage.Reserved.Limit = 0
	p.mm = NewMemoryMap(&p.usage)
	p.pmm = NewPrivateMemoryMap(&p.usage)

	if unit.Rodata != nil {
		p.mm.InsertDataSection(HandleRodata, newRodataSlot(unit.Rodata.Bytes))
	} else {
		p.mm.InsertDataSection(HandleRodata, newRodataSlot(nil))
	}
	if unit.Data != nil {
		p.mm.InsertDataSection(HandleData, newOwnedSlot(append([]byte{}, unit.Data.Bytes...)))
	} else {
		p.mm.InsertDataSection(HandleData, newOwnedSlot(nil))
	}
	bssSize := uint64(0)
	if unit.Bss != nil {
		bssSize = unit.Bss.Size
	}
	p.mm.InsertDataSection(HandleBss, newOwnedSlot(make([]byte, bssSize)))

	bottom := newFrame()
	bottom.ReturnValid = false
	p.frames = append(p.frames, bottom)
	return p
}

// SetMemoryLimits configures the usage limits (spec §3); zero means
// unbounded. mem_alloc checks the total and public-heap limits;
// PrivateMemoryMap.Track records private usage without checking any limit.
func (p *Process) SetMemoryLimits(total, publicHeap, private uint64) {
	p.usage.Total.Limit = total
	p.usage.PublicHeap.Limit = publicHeap
	p.usage.Private.Limit = private
}

func (p *Process) State() RunState { return p.state }

// SoftFloatState/SetSoftFloatState expose the process's single live FPU
// state (spec §4.1), letting a host configure rounding/crash-mask before
// Run or inspect sticky flags after it.
func (p *Process) SoftFloatState() SFState     { return p.sf }
func (p *Process) SetSoftFloatState(s SFState) { p.sf = s }

// LastFault reports the Fault that moved this process to Crashed or
// Trapped, or nil if it never faulted.
func (p *Process) LastFault() *Fault { return p.lastFault }

// ExitValue reports the halt/top-level-return value once Finished.
func (p *Process) ExitValue() CodeBlock { return p.exitValue }

// SyscallException reports the host's original error from the most recent
// syscall that failed, or nil if none has (spec §3/§6/§7: the syscall
// exception is stored on the process for later inspection, independently of
// the Fault the engine raises for that same failure).
func (p *Process) SyscallException() error { return p.syscallException }

// Pause requests a trap at the next instruction boundary: Step checks the
// request before every instruction (spec §5). It is the only sanctioned cross-goroutine call into a running
// Process, mirrored on the pdpi/host-interaction pattern a console reader
// goroutine needs.
func (p *Process) Pause() { p.trapRequested.Store(true) }

// Resume clears a pending trap and transitions Trapped back to Running so
// Run can continue from the saved instruction pointer (spec §7).
func (p *Process) Resume() error {
	if p.state != StateTrapped {
		return ErrNotTrappedState
	}
	p.trapRequested.Store(false)
	p.state = StateRunning
	return nil
}

// IP reports the current instruction offset within the active code
// section, for a debugger/disassembler front end.
func (p *Process) IP() int { return p.ip }

// Register reads a register from the currently active call frame without
// mutating anything, for a debugger/repl to inspect state between steps.
func (p *Process) Register(idx Register) (CodeBlock, bool) {
	return p.thisFrame().Register(idx)
}

// FrameDepth reports how many call frames are currently live (always >=
// 1, the bottom frame), for a debugger to show call-stack depth.
func (p *Process) FrameDepth() int { return len(p.frames) }

// RegisterCount reports how many registers the active call frame
// currently holds, for a debugger printing the whole register file.
func (p *Process) RegisterCount() int { return len(p.thisFrame().Registers) }

func (p *Process) thisFrame() *Frame { return p.frames[len(p.frames)-1] }

func (p *Process) ensureNextFrame() *Frame {
	if p.next == nil {
		p.next = newFrame()
	}
	return p.next
}

func (p *Process) activeCode() *CodeSection { return p.unit.Code[0] }
