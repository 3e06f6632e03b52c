package scvm

// prepareCodeSection runs the two-pass preparation spec §4.4 describes.
//
// Pass 1 walks the block stream purely to find instruction boundaries: at
// each candidate offset it reads the opcode, looks up its fixed operand
// count, and marks the offset as an instruction start before skipping over
// the operands. An unrecognized opcode or an operand run past the
// section's end fails the whole unit.
//
// Pass 2 walks the now-known instruction offsets and installs each one's
// dispatch token plus a decoded InstructionDescriptor. In this engine a
// dispatch token and the opcode it replaces share the same numeric space
// (instructions.go), so pass 2's "installation" is a documented identity
// rewrite rather than a no-op it would be tempting to skip — preparation
// always performs it so a future non-identity token scheme is a local
// change, not a redesign.
func prepareCodeSection(cs *CodeSection) error {
	size := cs.Size()
	offsets := make([]int, 0, size)

	offset := 0
	for offset < size {
		raw := cs.Block(offset)
		op := Opcode(raw)
		n, ok := numArgs(op)
		if !ok {
			return ErrInvalidInstruction
		}
		if offset+1+n > size {
			return ErrInvalidInstructionArguments
		}
		cs.markInstructionStart(offset)
		offsets = append(offsets, offset)
		offset += 1 + n
	}

	for _, off := range offsets {
		op := Opcode(cs.Block(off))
		n, _ := numArgs(op)
		args := make([]CodeBlock, n)
		for i := 0; i < n; i++ {
			args[i] = cs.Block(off + 1 + i)
		}
		cs.setBlock(off, CodeBlock(op)) // install dispatch token
		cs.setDescriptor(off, InstructionDescriptor{Opcode: op, Args: args})
	}

	cs.prepared = true
	return nil
}

// verifyJumpTargets checks every control-flow instruction's immediate
// address operand against the now-complete instruction-start bitmap (spec
// §4.4/§8's "every jump/call target is an instruction start in its code
// section" invariant). Addresses are section-relative: a call or jump can
// only target an instruction within the same code section it occurs in,
// the same restriction GVM's single flat instruction memory enforces
// implicitly by having only one section.
func verifyJumpTargets(cs *CodeSection) error {
	for off := 0; off < cs.Size(); off++ {
		if !cs.IsInstructionStart(off) {
			continue
		}
		d, _ := cs.Descriptor(off)
		addrArgIdx, ok := jumpAddrArgIndex(d.Opcode)
		if !ok {
			continue
		}
		target := int(d.Args[addrArgIdx])
		if !cs.IsInstructionStart(target) {
			return ErrInvalidInstructionArguments
		}
	}
	return nil
}

// jumpAddrArgIndex reports which inline argument of an instruction (if any)
// is a code-offset that must land on an instruction start.
func jumpAddrArgIndex(op Opcode) (int, bool) {
	switch op {
	case OpJmp, OpCall:
		return 0, true
	case OpJz, OpJnz, OpJl, OpJle, OpJg, OpJge:
		return 1, true
	default:
		return 0, false
	}
}
