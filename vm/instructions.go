package scvm

// Opcode identifies an instruction handler. Before preparation the first
// code block of every instruction holds one of these values verbatim;
// after preparation's pass 2 it holds the dispatch Token for the same
// opcode (spec §4.4/§4.5). In this implementation Token and Opcode share
// the same numeric space (see prepare.go), so the "install a dispatch
// token" step is a real, separately-named step even though, for the
// functional/match dispatch variant chosen here (spec §9), the token's bit
// pattern happens to equal the opcode it replaces.
type Opcode uint16

const (
	OpNop Opcode = iota

	OpLoadImm // dest, imm
	OpMove    // dest, src

	OpPushImm // imm
	OpPushReg // src

	OpResizeStack // nreg
	OpClearStack  // (no args)

	OpArgPushReg // src
	OpArgPushImm // imm

	OpArgPushRefFromBlock  // srcreg, offsetreg, sizereg
	OpArgPushRefFromSlot   // handlereg, offsetreg, sizereg
	OpArgPushRefFromRef    // refidxImm, offsetreg, sizereg
	OpArgPushCRefFromBlock // srcreg, offsetreg, sizereg
	OpArgPushCRefFromSlot  // handlereg, offsetreg, sizereg
	OpArgPushCRefFromRef   // refidxImm, offsetreg, sizereg

	OpCall    // addrImm, retDestEnc, nargsImm
	OpSyscall // bindIdxImm, retDestEnc, nargsImm
	OpReturn  // srcEnc
	OpHalt    // srcreg
	OpExcept  // codeImm

	OpJmp // addrImm
	OpJz  // condreg, addrImm
	OpJnz // condreg, addrImm
	OpJl  // condreg, addrImm
	OpJle // condreg, addrImm
	OpJg  // condreg, addrImm
	OpJge // condreg, addrImm

	OpMemAlloc   // sizereg, destreg
	OpMemFree    // handlereg
	OpMemGetSize // handlereg, destreg
	OpMemCopy    // dstHandleReg, dstOffsetReg, srcHandleReg, srcOffsetReg, sizeReg

	OpRefLoad  // refidxImm, destreg
	OpCRefLoad // crefidxImm, destreg
	OpRefStore // refidxImm, srcreg

	OpCheckSyscall // bindIdxImm, destreg -- validates a syscall index at runtime

	opControlCount
)

// noRegister is the sentinel encoding for "no destination register" used
// by OpCall/OpSyscall/OpReturn's encoded-register operands.
const noRegister uint64 = ^uint64(0)

func encodeOptionalRegister(r Register, has bool) CodeBlock {
	if !has {
		return CodeBlock(noRegister)
	}
	return CodeBlock(uint64(r))
}

func decodeOptionalRegister(b CodeBlock) (Register, bool) {
	if uint64(b) == noRegister {
		return 0, false
	}
	return Register(b), true
}

// EncodeOptionalRegister exposes the call/syscall/return "no destination"
// sentinel encoding to callers assembling instructions outside the package.
func EncodeOptionalRegister(r Register, has bool) CodeBlock { return encodeOptionalRegister(r, has) }

// NumKind enumerates every scalar type the numeric operation catalogue is
// instantiated over (spec §4.5's numeric operations table).
type NumKind uint8

const (
	KindI8 NumKind = iota
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	numKinds
)

func (k NumKind) IsFloat() bool { return k == KindF32 || k == KindF64 }
func (k NumKind) IsSigned() bool {
	return k == KindI8 || k == KindI16 || k == KindI32 || k == KindI64 || k.IsFloat()
}

// NumOp enumerates the arithmetic/compare family, uniform across every
// NumKind (spec §4.5: unary, binary, ternary, comparisons).
//
// spec §4.5 also lists non-commutative "sub2/div2/mod2" forms whose only
// purpose is to let a stack-accumulator ISA compute (imm - reg) as cheaply
// as (reg - imm); our ISA is register-indexed and ternary (dest,lhs,rhs),
// so the same effect is free — the caller just swaps which register holds
// lhs vs rhs. We fold sub2/div2/mod2 into Sub/Div/Mod rather than carry
// redundant opcodes (see DESIGN.md).
type NumOp uint8

const (
	OpNumNeg NumOp = iota
	OpNumInc
	OpNumDec
	OpNumAdd
	OpNumSub
	OpNumMul
	OpNumDiv
	OpNumMod
	OpNumEq
	OpNumNe
	OpNumLt
	OpNumLe
	OpNumGt
	OpNumGe
	OpNumCmp3 // tri-state compare: -1/0/1 (spec's cmpu/cmps/cmpf family)
	numNumOps
)

func (op NumOp) isUnary() bool { return op == OpNumNeg || op == OpNumInc || op == OpNumDec }

// ShiftOp enumerates the shift/rotate family, defined only for integer
// kinds (spec §4.5: "shifts saturate/extend per three modes per
// direction...; rotates use modular shift amounts").
type ShiftOp uint8

const (
	OpShlZero ShiftOp = iota
	OpShlOne
	OpShrZero
	OpShrOne
	OpShrSign
	OpRotl
	OpRotr
	numShiftOps
)

// numericOpcodeBase/shiftOpcodeBase partition the Opcode space: control
// opcodes occupy [0, opControlCount), the arithmetic/compare catalogue
// occupies [numericOpcodeBase, numericOpcodeBase + 10*numNumOps), and the
// shift/rotate catalogue (integer kinds only) follows it.
const numericOpcodeBase Opcode = 0x1000

var shiftOpcodeBase = numericOpcodeBase + Opcode(numKinds)*Opcode(numNumOps)

func numericOpcode(k NumKind, op NumOp) Opcode {
	return numericOpcodeBase + Opcode(k)*Opcode(numNumOps) + Opcode(op)
}

// NumericOpcode and ShiftOpcode expose the numeric/shift catalogue's opcode
// assignment to callers outside the package (an assembler or disassembler)
// that need to emit or name a specific (kind, op) instruction.
func NumericOpcode(k NumKind, op NumOp) Opcode { return numericOpcode(k, op) }

func decodeNumericOpcode(o Opcode) (NumKind, NumOp, bool) {
	if o < numericOpcodeBase || o >= shiftOpcodeBase {
		return 0, 0, false
	}
	rel := o - numericOpcodeBase
	return NumKind(rel / Opcode(numNumOps)), NumOp(rel % Opcode(numNumOps)), true
}

func shiftOpcode(k NumKind, op ShiftOp) Opcode {
	return shiftOpcodeBase + Opcode(k)*Opcode(numShiftOps) + Opcode(op)
}

func ShiftOpcode(k NumKind, op ShiftOp) Opcode { return shiftOpcode(k, op) }

func decodeShiftOpcode(o Opcode) (NumKind, ShiftOp, bool) {
	end := shiftOpcodeBase + Opcode(8)*Opcode(numShiftOps)
	if o < shiftOpcodeBase || o >= end {
		return 0, 0, false
	}
	rel := o - shiftOpcodeBase
	return NumKind(rel / Opcode(numShiftOps)), ShiftOp(rel % Opcode(numShiftOps)), true
}

// numArgs returns the number of inline operand CodeBlocks that follow an
// instruction's opcode slot, used by preparation pass 1 to find the next
// instruction boundary (spec §4.4). Every register/handle/index operand is
// one inline block regardless of the register file's own width.
func numArgs(op Opcode) (int, bool) {
	if k, nop, ok := decodeNumericOpcode(op); ok {
		_ = k
		if nop.isUnary() {
			return 2, true
		}
		return 3, true
	}
	if k, _, ok := decodeShiftOpcode(op); ok {
		if int(k) >= 8 {
			return 0, false // shifts are undefined for float kinds
		}
		return 3, true
	}

	switch op {
	case OpNop, OpClearStack:
		return 0, true
	case OpLoadImm, OpMove:
		return 2, true
	case OpPushImm, OpPushReg, OpResizeStack, OpArgPushReg, OpArgPushImm,
		OpMemFree, OpHalt, OpExcept, OpJmp:
		return 1, true
	case OpArgPushRefFromBlock, OpArgPushRefFromSlot, OpArgPushRefFromRef,
		OpArgPushCRefFromBlock, OpArgPushCRefFromSlot, OpArgPushCRefFromRef,
		OpCall, OpSyscall:
		return 3, true
	case OpReturn:
		return 1, true
	case OpJz, OpJnz, OpJl, OpJle, OpJg, OpJge, OpMemAlloc, OpMemGetSize,
		OpRefLoad, OpCRefLoad, OpRefStore, OpCheckSyscall:
		return 2, true
	case OpMemCopy:
		return 5, true
	default:
		return 0, false
	}
}
