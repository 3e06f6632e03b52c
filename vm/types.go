// Package scvm implements the interpreter core of a stack-based bytecode
// virtual machine: instruction dispatch, the stack-frame/register model,
// the handle-indexed memory map, the two-pass bytecode verifier and
// deterministic IEEE-754 arithmetic. It loads an already-linked executable
// produced by an external assembler/linker and runs independent processes
// against it.
package scvm

import "math"

// CodeBlock is the fundamental unit of code and data storage: a 64-bit
// word reinterpretable as a signed/unsigned integer of any width, a
// 32/64-bit IEEE float, a raw length/offset, or a dispatch token.
type CodeBlock uint64

func blockFromI64(v int64) CodeBlock  { return CodeBlock(uint64(v)) }
func blockFromU64(v uint64) CodeBlock { return CodeBlock(v) }
func blockFromF32(v float32) CodeBlock {
	return CodeBlock(uint64(math.Float32bits(v)))
}
func blockFromF64(v float64) CodeBlock { return CodeBlock(math.Float64bits(v)) }

func (b CodeBlock) asI64() int64   { return int64(b) }
func (b CodeBlock) asU64() uint64  { return uint64(b) }
func (b CodeBlock) asF32() float32 { return math.Float32frombits(uint32(b)) }
func (b CodeBlock) asF64() float64 { return math.Float64frombits(uint64(b)) }

// BlockFromI64/BlockFromU64/BlockFromF32/BlockFromF64 build an immediate
// CodeBlock from a host value, for callers outside the package (an
// assembler or disassembler) that need to emit or print one.
func BlockFromI64(v int64) CodeBlock   { return blockFromI64(v) }
func BlockFromU64(v uint64) CodeBlock  { return blockFromU64(v) }
func BlockFromF32(v float32) CodeBlock { return blockFromF32(v) }
func BlockFromF64(v float64) CodeBlock { return blockFromF64(v) }

func (b CodeBlock) AsI64() int64   { return b.asI64() }
func (b CodeBlock) AsU64() uint64  { return b.asU64() }
func (b CodeBlock) AsF32() float32 { return b.asF32() }
func (b CodeBlock) AsF64() float64 { return b.asF64() }

// Register is a per-frame index into a Frame's register vector.
type Register uint32

// Handle addresses a memory slot within a Process's MemoryMap. Handles 0-3
// are reserved: 0 is invalid, 1/2/3 are the active linking unit's
// rodata/rw-data/bss sections.
type Handle uint64

const (
	HandleNull  Handle = 0
	HandleRodata Handle = 1
	HandleData  Handle = 2
	HandleBss   Handle = 3
	firstFreeHandle Handle = 4
)
