package scvm

import (
	"context"
	"encoding/binary"
)

// stepResult is the {Continue, Halt} pair spec §9 calls for: Go has no
// computed goto, so the dispatch model chosen here is a single switch over
// the opcode in execute, and every case returns one of these two values
// instead of falling through to a shared loop tail.
type stepResult int

const (
	stepContinue stepResult = iota
	stepHalt
)

// StepOutcome reports what one call to Step observed: whether the process
// kept running, finished, trapped, or crashed.
type StepOutcome int

const (
	StepRunning StepOutcome = iota
	StepFinished
	StepTrapped
	StepCrashed
)

// Step executes at most one instruction (spec §4.4's main loop body,
// pulled out of Run so a single-step debugger can drive the process one
// instruction at a time instead of to completion). If a trap is pending
// it transitions to Trapped without executing anything. Run is Step
// looped until it stops reporting StepRunning.
func (p *Process) Step(ctx context.Context) (StepOutcome, error) {
	switch p.state {
	case StateInitialized:
		p.state = StateRunning
		p.pdpi.start()
	case StateTrapped:
		return StepTrapped, ErrNotInitializedState // caller must Resume() first
	case StateRunning:
		// already running; re-entrant Step/Run is a caller bug, not a fault.
	default:
		return StepCrashed, ErrNotInitializedState
	}

	if p.trapRequested.Load() {
		p.state = StateTrapped
		p.lastFault = newFault(FaultTrap)
		p.lastFault.IP = uint64(p.ip)
		return StepTrapped, nil
	}

	cs := p.activeCode()
	if !cs.IsInstructionStart(p.ip) {
		return StepCrashed, p.crash(newFault(FaultJumpToInvalidAddress))
	}
	d, _ := cs.Descriptor(p.ip)

	res, fault := p.execute(ctx, cs, d)
	if fault != nil {
		fault.IP = uint64(p.ip)
		if fault.Kind == FaultTrap {
			p.state = StateTrapped
			p.lastFault = fault
			return StepTrapped, nil
		}
		return StepCrashed, p.crash(fault)
	}
	if res == stepHalt {
		p.state = StateFinished
		p.pdpi.stop()
		return StepFinished, nil
	}
	return StepRunning, nil
}

// Run drives the process from its current state to a terminal one (or
// until it traps), dispatching one instruction per iteration (spec §4.4's
// main loop); the cooperative trap check is the one Step makes before
// every instruction.
// ctx is threaded to every syscall invocation.
func (p *Process) Run(ctx context.Context) error {
	if p.state == StateTrapped {
		return ErrNotInitializedState
	}
	for {
		res, err := p.Step(ctx)
		if err != nil {
			return err
		}
		if res != StepRunning {
			return nil
		}
	}
}

// registerFault picks the fault kind for a failed register-index access:
// spec §4.5 distinguishes FaultInvalidStackIndex for any called (non-global)
// frame from FaultInvalidRegisterIndex for the bottom/global frame.
func (p *Process) registerFault() *Fault {
	if len(p.frames) > 1 {
		return newFault(FaultInvalidStackIndex)
	}
	return newFault(FaultInvalidRegisterIndex)
}

func (p *Process) crash(f *Fault) error {
	p.state = StateCrashed
	p.lastFault = f
	p.pdpi.stop()
	return nil
}

// execute dispatches one instruction and advances p.ip past it on
// stepContinue (branches/calls/returns set p.ip themselves and must not be
// double-advanced, so they return early via a named return trick below).
func (p *Process) execute(ctx context.Context, cs *CodeSection, d InstructionDescriptor) (res stepResult, fault *Fault) {
	advance := true
	defer func() {
		if advance && res == stepContinue && fault == nil {
			p.ip += 1 + len(d.Args)
		}
	}()

	f := p.thisFrame()
	a := d.Args

	if k, nop, ok := decodeNumericOpcode(d.Opcode); ok {
		if nop.isUnary() {
			dst, src := Register(a[0]), Register(a[1])
			sv, ok := f.Register(src)
			if !ok {
				return stepContinue, p.registerFault()
			}
			r, fk := EvalNumOp(&p.sf, k, nop, sv, 0)
			if fk != FaultNone {
				return stepContinue, newFault(fk)
			}
			if !f.SetRegister(dst, r) {
				return stepContinue, p.registerFault()
			}
			return stepContinue, sfCrash(&p.sf)
		}
		dst, lhs, rhs := Register(a[0]), Register(a[1]), Register(a[2])
		lv, ok1 := f.Register(lhs)
		rv, ok2 := f.Register(rhs)
		if !ok1 || !ok2 {
			return stepContinue, p.registerFault()
		}
		r, fk := EvalNumOp(&p.sf, k, nop, lv, rv)
		if fk != FaultNone {
			return stepContinue, newFault(fk)
		}
		if !f.SetRegister(dst, r) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, sfCrash(&p.sf)
	}

	if k, sop, ok := decodeShiftOpcode(d.Opcode); ok {
		dst, src, amt := Register(a[0]), Register(a[1]), Register(a[2])
		sv, ok1 := f.Register(src)
		av, ok2 := f.Register(amt)
		if !ok1 || !ok2 {
			return stepContinue, p.registerFault()
		}
		r := EvalShiftOp(k, sop, sv, av)
		if !f.SetRegister(dst, r) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil
	}

	switch d.Opcode {
	case OpNop, OpClearStack:
		if d.Opcode == OpClearStack {
			f.ClearStack()
		}
		return stepContinue, nil

	case OpLoadImm:
		dst := Register(a[0])
		if !f.SetRegister(dst, a[1]) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil

	case OpMove:
		dst, src := Register(a[0]), Register(a[1])
		v, ok := f.Register(src)
		if !ok || !f.SetRegister(dst, v) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil

	case OpPushImm:
		f.PushRegister(a[0])
		return stepContinue, nil

	case OpPushReg:
		v, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		f.PushRegister(v)
		return stepContinue, nil

	case OpResizeStack:
		n, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		f.Resize(int(n))
		return stepContinue, nil

	case OpArgPushReg:
		v, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		p.ensureNextFrame().PushRegister(v)
		return stepContinue, nil

	case OpArgPushImm:
		p.ensureNextFrame().PushRegister(a[0])
		return stepContinue, nil

	case OpArgPushRefFromBlock, OpArgPushCRefFromBlock:
		srcIdx, offIdx, sizeIdx := Register(a[0]), Register(a[1]), Register(a[2])
		if int(srcIdx) >= len(f.Registers) {
			return stepContinue, p.registerFault()
		}
		off, ok1 := f.Register(offIdx)
		sz, ok2 := f.Register(sizeIdx)
		if !ok1 || !ok2 {
			return stepContinue, p.registerFault()
		}
		full := newBlockReference(&f.Registers[srcIdx])
		r, fk := subReference(full, uint64(off), uint64(sz))
		if fk != FaultNone {
			return stepContinue, newFault(fk)
		}
		if d.Opcode == OpArgPushRefFromBlock {
			p.ensureNextFrame().PushRef(r)
		} else {
			p.ensureNextFrame().PushCRef(toConstReference(r))
		}
		return stepContinue, nil

	case OpArgPushRefFromSlot, OpArgPushCRefFromSlot:
		handleIdx, offIdx, sizeIdx := Register(a[0]), Register(a[1]), Register(a[2])
		hv, ok1 := f.Register(handleIdx)
		off, ok2 := f.Register(offIdx)
		sz, ok3 := f.Register(sizeIdx)
		if !ok1 || !ok2 || !ok3 {
			return stepContinue, p.registerFault()
		}
		h := Handle(hv)
		slot, ok := p.mm.Get(h)
		if !ok {
			return stepContinue, newFault(FaultInvalidMemoryHandle)
		}
		if fk := boundsFault(slot.Size(), uint64(off), uint64(sz)); fk != FaultNone {
			return stepContinue, newFault(fk)
		}
		r, ok := newSlotReference(h, slot, uint64(off), uint64(sz))
		if !ok {
			// bounds already validated above; only a saturated ref count
			// can fail here (spec §4.2's overflow-proof counter).
			return stepContinue, newFault(FaultOutOfMemory)
		}
		if d.Opcode == OpArgPushRefFromSlot {
			p.ensureNextFrame().PushRef(r)
		} else {
			p.ensureNextFrame().PushCRef(toConstReference(r))
		}
		return stepContinue, nil

	case OpArgPushRefFromRef, OpArgPushCRefFromRef:
		refIdx, offIdx, sizeIdx := int(a[0]), Register(a[1]), Register(a[2])
		src, ok := f.Ref(refIdx)
		if !ok {
			return stepContinue, newFault(FaultInvalidReferenceIndex)
		}
		off, ok1 := f.Register(offIdx)
		sz, ok2 := f.Register(sizeIdx)
		if !ok1 || !ok2 {
			return stepContinue, p.registerFault()
		}
		r, fk := subReference(src, uint64(off), uint64(sz))
		if fk != FaultNone {
			return stepContinue, newFault(fk)
		}
		if d.Opcode == OpArgPushRefFromRef {
			p.ensureNextFrame().PushRef(r)
		} else {
			p.ensureNextFrame().PushCRef(toConstReference(r))
		}
		return stepContinue, nil

	case OpCall:
		advance = false
		addr := int(a[0])
		rd, rdValid := decodeOptionalRegister(a[1])
		nf := p.ensureNextFrame()
		nf.ReturnSection = 0
		nf.ReturnOffset = uint64(p.ip + 1 + len(a))
		nf.ReturnValid = true
		nf.RetDest = int(rd)
		nf.RetDestValid = rdValid
		p.frames = append(p.frames, nf)
		p.next = nil
		p.ip = addr
		return stepContinue, nil

	case OpSyscall:
		bindIdx := int(a[0])
		rd, rdValid := decodeOptionalRegister(a[1])
		callable, ok := p.unit.syscallAt(bindIdx)
		if !ok {
			return stepContinue, newFault(FaultInvalidSyscallIndex)
		}
		nf := p.ensureNextFrame()
		args := SyscallArgs{Args: append([]CodeBlock{}, nf.Registers...), Refs: nf.Refs, CRefs: nf.CRefs}
		p.next = nil
		result, err := callable.Invoke(ctx, p, args)
		nf.releaseRefs()
		if err != nil {
			p.syscallException = err
			return stepContinue, &Fault{Kind: FaultSystemCallError, HostErr: err}
		}
		if rdValid {
			if !f.SetRegister(rd, result) {
				return stepContinue, p.registerFault()
			}
		}
		return stepContinue, nil

	case OpReturn:
		advance = false
		var v CodeBlock
		if rsrc, has := decodeOptionalRegister(a[0]); has {
			rv, ok := f.Register(rsrc)
			if !ok {
				return stepContinue, p.registerFault()
			}
			v = rv
		}
		popped := f
		if len(p.frames) == 1 {
			popped.releaseRefs()
			p.exitValue = v
			return stepHalt, nil
		}
		p.frames = p.frames[:len(p.frames)-1]
		popped.releaseRefs()
		if !popped.ReturnValid {
			p.exitValue = v
			return stepHalt, nil
		}
		caller := p.thisFrame()
		if popped.RetDestValid {
			if !caller.SetRegister(Register(popped.RetDest), v) {
				return stepContinue, p.registerFault()
			}
		}
		p.ip = int(popped.ReturnOffset)
		return stepContinue, nil

	case OpHalt:
		advance = false
		v, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		p.exitValue = v
		return stepHalt, nil

	case OpExcept:
		return stepContinue, &Fault{Kind: FaultUserDefinedException, UserCode: int64(a[0])}

	case OpJmp:
		advance = false
		p.ip = int(a[0])
		return stepContinue, nil

	case OpJz, OpJnz, OpJl, OpJle, OpJg, OpJge:
		cond, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		if jumpTaken(d.Opcode, cond) {
			advance = false
			p.ip = int(a[1])
		}
		return stepContinue, nil

	case OpMemAlloc:
		szReg, dstReg := Register(a[0]), Register(a[1])
		sz, ok := f.Register(szReg)
		if !ok {
			return stepContinue, p.registerFault()
		}
		h, ok := p.mm.Allocate(uint64(sz))
		if !ok {
			return stepContinue, newFault(FaultOutOfMemory)
		}
		if !f.SetRegister(dstReg, CodeBlock(h)) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil

	case OpMemFree:
		hv, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		switch p.mm.Free(Handle(hv)) {
		case FreeInvalidHandle:
			return stepContinue, newFault(FaultInvalidMemoryHandle)
		case FreeInUse:
			return stepContinue, newFault(FaultMemoryInUse)
		}
		return stepContinue, nil

	case OpMemGetSize:
		hv, ok := f.Register(Register(a[0]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		sz, ok := p.mm.SlotSize(Handle(hv))
		if !ok {
			return stepContinue, newFault(FaultInvalidMemoryHandle)
		}
		if !f.SetRegister(Register(a[1]), CodeBlock(sz)) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil

	case OpMemCopy:
		return stepContinue, p.memCopy(f, a)

	case OpRefLoad, OpCRefLoad:
		idx := int(a[0])
		var bytes []byte
		if d.Opcode == OpRefLoad {
			r, ok := f.Ref(idx)
			if !ok {
				return stepContinue, newFault(FaultInvalidReferenceIndex)
			}
			bytes = r.Bytes()
		} else {
			r, ok := f.CRef(idx)
			if !ok {
				return stepContinue, newFault(FaultInvalidConstReferenceIndex)
			}
			bytes = r.Bytes()
		}
		if !f.SetRegister(Register(a[1]), loadBlock(bytes)) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil

	case OpRefStore:
		idx := int(a[0])
		r, ok := f.Ref(idx)
		if !ok {
			return stepContinue, newFault(FaultInvalidReferenceIndex)
		}
		v, ok := f.Register(Register(a[1]))
		if !ok {
			return stepContinue, p.registerFault()
		}
		storeBlock(r.Bytes(), v)
		return stepContinue, nil

	case OpCheckSyscall:
		idx := int(a[0])
		if _, ok := p.unit.syscallAt(idx); !ok {
			return stepContinue, newFault(FaultInvalidSyscallIndex)
		}
		if !f.SetRegister(Register(a[1]), 1) {
			return stepContinue, p.registerFault()
		}
		return stepContinue, nil
	}

	return stepContinue, newFault(FaultJumpToInvalidAddress)
}

func jumpTaken(op Opcode, cond CodeBlock) bool {
	v := int64(cond)
	switch op {
	case OpJz:
		return v == 0
	case OpJnz:
		return v != 0
	case OpJl:
		return v < 0
	case OpJle:
		return v <= 0
	case OpJg:
		return v > 0
	case OpJge:
		return v >= 0
	}
	return false
}

func (p *Process) memCopy(f *Frame, a []CodeBlock) *Fault {
	dstH, dstOff, srcH, srcOff, size := a[0], a[1], a[2], a[3], a[4]
	dstHv, ok1 := f.Register(Register(dstH))
	dstOffv, ok2 := f.Register(Register(dstOff))
	srcHv, ok3 := f.Register(Register(srcH))
	srcOffv, ok4 := f.Register(Register(srcOff))
	sizev, ok5 := f.Register(Register(size))
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return p.registerFault()
	}
	dstSlot, ok := p.mm.Get(Handle(dstHv))
	if !ok {
		return newFault(FaultInvalidMemoryHandle)
	}
	srcSlot, ok := p.mm.Get(Handle(srcHv))
	if !ok {
		return newFault(FaultInvalidMemoryHandle)
	}
	n := uint64(sizev)
	do, so := uint64(dstOffv), uint64(srcOffv)
	if n > dstSlot.Size() || do > dstSlot.Size()-n {
		return newFault(FaultOutOfBoundsWrite)
	}
	if n > srcSlot.Size() || so > srcSlot.Size()-n {
		return newFault(FaultOutOfBoundsRead)
	}
	if !dstSlot.IsWritable() {
		return newFault(FaultWriteDenied)
	}
	copy(dstSlot.Data()[do:do+n], srcSlot.Data()[so:so+n])
	return nil
}

func subReference(r Reference, offset, size uint64) (Reference, FaultKind) {
	if fk := boundsFault(r.Len(), offset, size); fk != FaultNone {
		return Reference{}, fk
	}
	out, _ := r.Sub(offset, size)
	return out, FaultNone
}

func boundsFault(length, offset, size uint64) FaultKind {
	if offset > length {
		return FaultOutOfBoundsReferenceOffset
	}
	if size > length-offset {
		return FaultOutOfBoundsReferenceSize
	}
	return FaultNone
}

func loadBlock(b []byte) CodeBlock {
	var buf [8]byte
	n := copy(buf[:], b)
	_ = n
	return CodeBlock(binary.LittleEndian.Uint64(buf[:]))
}

func storeBlock(dst []byte, v CodeBlock) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	copy(dst, buf[:len(dst)])
}

// sfCrash converts a sticky FPU exception newly masked for crash into a
// Fault, clearing nothing: flags stay sticky until the host inspects them
// (spec §4.1).
func sfCrash(sf *SFState) *Fault {
	if fk := sf.Crashed(); fk != FaultNone {
		return newFault(fk)
	}
	return nil
}
