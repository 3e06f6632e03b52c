package scvm

import "context"

// SyscallArgs is the argument bundle passed to a bound syscall (spec §6).
// Args/Refs/CRefs are the argument registers, refs and crefs staged by the
// ArgPush* instructions before the call; a syscall mutates process state only through
// Process, never by retaining these slices past Invoke's return.
type SyscallArgs struct {
	Args  []CodeBlock
	Refs  []Reference
	CRefs []ConstReference
	Pd    ProtectionDomain // always nil: OpSyscall does not name a protection domain
}

// SyscallCallable is a bound host routine (spec §6's "syscall_callable").
// Invoke returns the 64-bit result delivered to the call's ret_dest, or an
// error which the engine wraps as FaultSystemCallError.
type SyscallCallable interface {
	Invoke(ctx context.Context, proc *Process, args SyscallArgs) (CodeBlock, error)
}

// SyscallFinder resolves a linking unit's syscall bind table at Program
// load time (spec §6's "syscall_finder").
type SyscallFinder interface {
	FindSyscall(signature string) (SyscallCallable, bool)
}

// ProtectionDomain is an opaque per-backend handle a pd-bound syscall can
// type-assert down to its concrete backend type (spec §6).
type ProtectionDomain interface {
	Name() string
}

// PdFinder resolves a linking unit's protection-domain bind table.
type PdFinder interface {
	FindPd(signature string) (ProtectionDomain, bool)
}

// Facility is an opaque host resource (loggers, RNGs, clocks) looked up by
// name rather than bound at link time (spec §6's "facility_finder").
type Facility interface{}

type FacilityFinder interface {
	FindFacility(name string) (Facility, bool)
}

// LinkingUnit is one compilation unit of a Program: its own code sections
// plus rodata/data/bss and the symbol tables that name the syscalls and
// protection domains its code references (spec §3, §6).
type LinkingUnit struct {
	Code   []*CodeSection
	Rodata *DataSection
	Data   *DataSection
	Bss    *BssSection

	SyscallBinds []string
	PdBinds      []string

	syscalls []SyscallCallable  // resolved 1:1 with SyscallBinds
	pds      []ProtectionDomain // resolved 1:1 with PdBinds
}

// Program is the immutable, shared definition produced by preparation
// (spec §2): a sequence of linking units plus their resolved syscall/pd
// bindings. Every Process derived from the same Program shares this value
// and mutates none of it; per-process state lives entirely in Process.
type Program struct {
	Units      []*LinkingUnit
	ActiveUnit int

	sf       SyscallFinder
	pf       PdFinder
	ff       FacilityFinder
}

// NewProgram links and verifies every linking unit's bytecode and resolves
// its syscall/pd bind tables against the given host finders (spec §2's
// preparation pipeline, §7's load errors). activeUnit selects which unit's
// code section 0 is the process entry point.
func NewProgram(units []*LinkingUnit, activeUnit int, sf SyscallFinder, pf PdFinder, ff FacilityFinder) (*Program, error) {
	if len(units) == 0 {
		return nil, ErrNoCodeSections
	}
	for _, u := range units {
		if len(u.Code) == 0 {
			return nil, ErrNoCodeSections
		}
		if err := resolveBinds(u, sf, pf); err != nil {
			return nil, err
		}
		for _, cs := range u.Code {
			if err := prepareCodeSection(cs); err != nil {
				return nil, err
			}
		}
	}
	for _, cs := range units[activeUnit].Code {
		if err := verifyJumpTargets(cs); err != nil {
			return nil, err
		}
	}
	return &Program{Units: units, ActiveUnit: activeUnit, sf: sf, pf: pf, ff: ff}, nil
}

func resolveBinds(u *LinkingUnit, sf SyscallFinder, pf PdFinder) error {
	u.syscalls = make([]SyscallCallable, len(u.SyscallBinds))
	for i, sig := range u.SyscallBinds {
		c, ok := sf.FindSyscall(sig)
		if !ok {
			return ErrUndefinedSyscallBind
		}
		u.syscalls[i] = c
	}
	u.pds = make([]ProtectionDomain, len(u.PdBinds))
	seen := make(map[string]bool, len(u.PdBinds))
	for i, sig := range u.PdBinds {
		if seen[sig] {
			return ErrDuplicatePdBind
		}
		seen[sig] = true
		pd, ok := pf.FindPd(sig)
		if !ok {
			return ErrUndefinedPdBind
		}
		u.pds[i] = pd
	}
	return nil
}

func (u *LinkingUnit) syscallAt(idx int) (SyscallCallable, bool) {
	if idx < 0 || idx >= len(u.syscalls) {
		return nil, false
	}
	return u.syscalls[idx], true
}

func (u *LinkingUnit) pdAt(idx int) (ProtectionDomain, bool) {
	if idx < 0 || idx >= len(u.pds) {
		return nil, false
	}
	return u.pds[idx], true
}

// PdCount reports how many protection domains the active linking unit has
// resolved, for a host enumerating its bind table (spec §6).
func (p *Program) PdCount() int { return len(p.Units[p.ActiveUnit].pds) }

// Pd returns the protection domain bound at idx in the active linking unit,
// the exported counterpart to LinkingUnit.pdAt that the syscall/pd bind
// machinery already resolves internally (spec §6).
func (p *Program) Pd(idx int) (ProtectionDomain, bool) {
	return p.Units[p.ActiveUnit].pdAt(idx)
}

// Instruction decodes the instruction starting at index within the active
// unit's sectionIdx'th code section, the read path spec §3's descriptor map
// exists to serve: a disassembler or debugger front end has no other way to
// look up one instruction's opcode/args without re-running prepare's own
// bookkeeping.
func (p *Program) Instruction(sectionIdx, index int) (InstructionDescriptor, bool) {
	unit := p.Units[p.ActiveUnit]
	if sectionIdx < 0 || sectionIdx >= len(unit.Code) {
		return InstructionDescriptor{}, false
	}
	cs := unit.Code[sectionIdx]
	if !cs.IsInstructionStart(index) {
		return InstructionDescriptor{}, false
	}
	return cs.Descriptor(index)
}
