// Package asmfixture is a small in-process assembler used only by tests
// and the CLI's sample programs. The real assembler/linker producing the
// on-disk container format is out of scope; this package gives test code a
// readable way to build a *scvm.CodeSection directly in Go instead of
// hand-writing opcode/operand slices.
//
// It follows the same two-pass, label-patching shape GVM's compile.go
// uses for its text assembler (emit with a placeholder, record every
// forward reference, patch them all once every label is known), adapted
// to a fluent builder API since this engine's opcode catalogue has no
// externally specified mnemonic syntax to parse.
package asmfixture

import (
	"fmt"

	"scvm/vm"
)

type labelPatch struct {
	blockIndex int
	label      string
}

// Builder accumulates a CodeBlock stream and resolves label references on
// Build.
type Builder struct {
	blocks  []scvm.CodeBlock
	labels  map[string]int
	patches []labelPatch
}

func New() *Builder {
	return &Builder{labels: make(map[string]int)}
}

// Label marks the current offset under name, resolvable by any Jmp/Jz.../
// Call emitted before or after it.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = len(b.blocks)
	return b
}

func (b *Builder) emit(op scvm.Opcode, args ...scvm.CodeBlock) *Builder {
	b.blocks = append(b.blocks, scvm.CodeBlock(op))
	b.blocks = append(b.blocks, args...)
	return b
}

func (b *Builder) emitWithLabel(op scvm.Opcode, pre []scvm.CodeBlock, label string, post []scvm.CodeBlock) *Builder {
	b.blocks = append(b.blocks, scvm.CodeBlock(op))
	b.blocks = append(b.blocks, pre...)
	patchIdx := len(b.blocks)
	b.blocks = append(b.blocks, 0)
	b.blocks = append(b.blocks, post...)
	b.patches = append(b.patches, labelPatch{blockIndex: patchIdx, label: label})
	return b
}

// Build resolves every recorded label reference and returns the finished
// block stream, or an error naming the first undefined label.
func (b *Builder) Build() ([]scvm.CodeBlock, error) {
	out := append([]scvm.CodeBlock{}, b.blocks...)
	for _, p := range b.patches {
		off, ok := b.labels[p.label]
		if !ok {
			return nil, fmt.Errorf("asmfixture: undefined label %q", p.label)
		}
		out[p.blockIndex] = scvm.CodeBlock(uint64(off))
	}
	return out, nil
}

// CodeSection builds and wraps the result in a ready-to-prepare
// *scvm.CodeSection.
func (b *Builder) CodeSection() (*scvm.CodeSection, error) {
	blocks, err := b.Build()
	if err != nil {
		return nil, err
	}
	return scvm.NewCodeSection(blocks), nil
}

// Control flow and frame instructions.

func (b *Builder) Nop() *Builder        { return b.emit(scvm.OpNop) }
func (b *Builder) ClearStack() *Builder { return b.emit(scvm.OpClearStack) }

func (b *Builder) LoadImm(dest scvm.Register, imm scvm.CodeBlock) *Builder {
	return b.emit(scvm.OpLoadImm, scvm.CodeBlock(dest), imm)
}

func (b *Builder) Move(dest, src scvm.Register) *Builder {
	return b.emit(scvm.OpMove, scvm.CodeBlock(dest), scvm.CodeBlock(src))
}

func (b *Builder) PushImm(v scvm.CodeBlock) *Builder { return b.emit(scvm.OpPushImm, v) }
func (b *Builder) PushReg(src scvm.Register) *Builder {
	return b.emit(scvm.OpPushReg, scvm.CodeBlock(src))
}

func (b *Builder) ResizeStack(n scvm.Register) *Builder {
	return b.emit(scvm.OpResizeStack, scvm.CodeBlock(n))
}

func (b *Builder) ArgPushReg(src scvm.Register) *Builder {
	return b.emit(scvm.OpArgPushReg, scvm.CodeBlock(src))
}
func (b *Builder) ArgPushImm(v scvm.CodeBlock) *Builder { return b.emit(scvm.OpArgPushImm, v) }

func (b *Builder) ArgPushRefFromBlock(src, off, size scvm.Register) *Builder {
	return b.emit(scvm.OpArgPushRefFromBlock, scvm.CodeBlock(src), scvm.CodeBlock(off), scvm.CodeBlock(size))
}
func (b *Builder) ArgPushRefFromSlot(handle, off, size scvm.Register) *Builder {
	return b.emit(scvm.OpArgPushRefFromSlot, scvm.CodeBlock(handle), scvm.CodeBlock(off), scvm.CodeBlock(size))
}
func (b *Builder) ArgPushCRefFromSlot(handle, off, size scvm.Register) *Builder {
	return b.emit(scvm.OpArgPushCRefFromSlot, scvm.CodeBlock(handle), scvm.CodeBlock(off), scvm.CodeBlock(size))
}

func (b *Builder) Jmp(label string) *Builder {
	return b.emitWithLabel(scvm.OpJmp, nil, label, nil)
}

func (b *Builder) jumpCond(op scvm.Opcode, cond scvm.Register, label string) *Builder {
	return b.emitWithLabel(op, []scvm.CodeBlock{scvm.CodeBlock(cond)}, label, nil)
}

func (b *Builder) Jz(cond scvm.Register, label string) *Builder {
	return b.jumpCond(scvm.OpJz, cond, label)
}
func (b *Builder) Jnz(cond scvm.Register, label string) *Builder {
	return b.jumpCond(scvm.OpJnz, cond, label)
}
func (b *Builder) Jl(cond scvm.Register, label string) *Builder {
	return b.jumpCond(scvm.OpJl, cond, label)
}
func (b *Builder) Jle(cond scvm.Register, label string) *Builder {
	return b.jumpCond(scvm.OpJle, cond, label)
}
func (b *Builder) Jg(cond scvm.Register, label string) *Builder {
	return b.jumpCond(scvm.OpJg, cond, label)
}
func (b *Builder) Jge(cond scvm.Register, label string) *Builder {
	return b.jumpCond(scvm.OpJge, cond, label)
}

func (b *Builder) Call(label string, retDest scvm.Register, hasRet bool, nargs uint64) *Builder {
	rd := scvm.EncodeOptionalRegister(retDest, hasRet)
	return b.emitWithLabel(scvm.OpCall, nil, label, []scvm.CodeBlock{rd, scvm.CodeBlock(nargs)})
}

func (b *Builder) Syscall(bindIdx int, retDest scvm.Register, hasRet bool, nargs uint64) *Builder {
	rd := scvm.EncodeOptionalRegister(retDest, hasRet)
	return b.emit(scvm.OpSyscall, scvm.CodeBlock(uint64(bindIdx)), rd, scvm.CodeBlock(nargs))
}

func (b *Builder) Return(src scvm.Register, has bool) *Builder {
	return b.emit(scvm.OpReturn, scvm.EncodeOptionalRegister(src, has))
}

func (b *Builder) Halt(src scvm.Register) *Builder { return b.emit(scvm.OpHalt, scvm.CodeBlock(src)) }

func (b *Builder) Except(code int64) *Builder {
	return b.emit(scvm.OpExcept, scvm.BlockFromI64(code))
}

// Memory instructions.

func (b *Builder) MemAlloc(size, dest scvm.Register) *Builder {
	return b.emit(scvm.OpMemAlloc, scvm.CodeBlock(size), scvm.CodeBlock(dest))
}
func (b *Builder) MemFree(h scvm.Register) *Builder { return b.emit(scvm.OpMemFree, scvm.CodeBlock(h)) }
func (b *Builder) MemGetSize(h, dest scvm.Register) *Builder {
	return b.emit(scvm.OpMemGetSize, scvm.CodeBlock(h), scvm.CodeBlock(dest))
}
func (b *Builder) MemCopy(dstHandle, dstOff, srcHandle, srcOff, size scvm.Register) *Builder {
	return b.emit(scvm.OpMemCopy,
		scvm.CodeBlock(dstHandle), scvm.CodeBlock(dstOff),
		scvm.CodeBlock(srcHandle), scvm.CodeBlock(srcOff), scvm.CodeBlock(size))
}

func (b *Builder) RefLoad(refIdx int, dest scvm.Register) *Builder {
	return b.emit(scvm.OpRefLoad, scvm.CodeBlock(refIdx), scvm.CodeBlock(dest))
}
func (b *Builder) RefStore(refIdx int, src scvm.Register) *Builder {
	return b.emit(scvm.OpRefStore, scvm.CodeBlock(refIdx), scvm.CodeBlock(src))
}

// Numeric instructions.

func (b *Builder) Num(kind scvm.NumKind, op scvm.NumOp, dest, lhs, rhs scvm.Register) *Builder {
	return b.emit(scvm.NumericOpcode(kind, op), scvm.CodeBlock(dest), scvm.CodeBlock(lhs), scvm.CodeBlock(rhs))
}

func (b *Builder) NumUnary(kind scvm.NumKind, op scvm.NumOp, dest, src scvm.Register) *Builder {
	return b.emit(scvm.NumericOpcode(kind, op), scvm.CodeBlock(dest), scvm.CodeBlock(src))
}

func (b *Builder) Shift(kind scvm.NumKind, op scvm.ShiftOp, dest, src, amt scvm.Register) *Builder {
	return b.emit(scvm.ShiftOpcode(kind, op), scvm.CodeBlock(dest), scvm.CodeBlock(src), scvm.CodeBlock(amt))
}
