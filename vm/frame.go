package scvm

import "unsafe"

// Reference is a bytecode-addressable, writable view onto a sized byte
// range, optionally ref-counted to a backing memory slot (spec §3, §4.3).
// A reference derived from a memory slot increments that slot's ref count
// on creation and must be released exactly once. A zero-length reference
// still carries a non-nil data slice so that it is distinguishable from an
// absent/sentinel reference.
type Reference struct {
	slot   MemorySlot // nil if this reference is backed by a register/stack cell
	handle Handle     // valid only when slot != nil
	data   []byte
}

func newSlotReference(h Handle, slot MemorySlot, offset, size uint64) (Reference, bool) {
	if offset > slot.Size() || size > slot.Size()-offset {
		return Reference{}, false
	}
	if !slot.Ref() {
		return Reference{}, false
	}
	return Reference{slot: slot, handle: h, data: slot.Data()[offset : offset+size]}, true
}

// newBlockReference builds a reference onto a code block (a register/stack
// cell treated as 8 bytes); it carries no slot ownership (spec §4.3).
func newBlockReference(cell *CodeBlock) Reference {
	return Reference{data: blockBytes(cell)[:]}
}

func (r Reference) Release() {
	if r.slot != nil {
		r.slot.Deref()
	}
}

func (r Reference) Bytes() []byte { return r.data }
func (r Reference) Len() uint64   { return uint64(len(r.data)) }

// Sub derives a sub-range reference, propagating the backing slot (if any)
// and incrementing its ref count again (spec §4.3). offset>size or
// offset+size>source_size faults with OutOfBoundsReferenceOffset/Size at
// the call site in the engine.
func (r Reference) Sub(offset, size uint64) (Reference, bool) {
	n := uint64(len(r.data))
	if offset > n || size > n-offset {
		return Reference{}, false
	}
	if r.slot != nil {
		if !r.slot.Ref() {
			return Reference{}, false
		}
	}
	return Reference{slot: r.slot, handle: r.handle, data: r.data[offset : offset+size]}, true
}

// ConstReference is the read-only counterpart of Reference, identical in
// shape; bytecode pushes values to crefs instead of refs when the callee
// must not mutate them (spec §4.3).
type ConstReference struct {
	slot   MemorySlot
	handle Handle
	data   []byte
}

func (r ConstReference) Release() {
	if r.slot != nil {
		r.slot.Deref()
	}
}

func (r ConstReference) Bytes() []byte { return r.data }
func (r ConstReference) Len() uint64   { return uint64(len(r.data)) }

func toConstReference(r Reference) ConstReference {
	return ConstReference{slot: r.slot, handle: r.handle, data: r.data}
}

// Frame is the per-call structure of spec §3/§4.3: a resizable register
// vector (the bytecode-visible "stack"), a reference vector, a
// const-reference vector, the return address, and an optional destination
// for the return value. The bottom (global) frame has ReturnValid == false,
// which signals halt-on-return.
type Frame struct {
	Registers []CodeBlock
	Refs      []Reference
	CRefs     []ConstReference

	ReturnSection int
	ReturnOffset  uint64
	ReturnValid   bool

	RetDest      int
	RetDestValid bool
}

func newFrame() *Frame {
	return &Frame{}
}

func (f *Frame) Resize(n int) {
	if n <= len(f.Registers) {
		f.Registers = f.Registers[:n]
		return
	}
	grown := make([]CodeBlock, n)
	copy(grown, f.Registers)
	f.Registers = grown
}

// releaseRefs runs the destructor on every reference and const-reference
// the frame currently holds, decrementing any backing slot's ref count
// (spec §4.3). Called whenever a frame stops being live: clear-stack,
// frame pop on return, and staged-frame consumption on syscall.
func (f *Frame) releaseRefs() {
	for _, r := range f.Refs {
		r.Release()
	}
	for _, r := range f.CRefs {
		r.Release()
	}
}

// ClearStack is the bytecode-visible "clear stack": resize to zero and
// release every held reference (spec §4.3).
func (f *Frame) ClearStack() {
	f.releaseRefs()
	f.Registers = f.Registers[:0]
	f.Refs = f.Refs[:0]
	f.CRefs = f.CRefs[:0]
}

func (f *Frame) PushRegister(v CodeBlock) { f.Registers = append(f.Registers, v) }

func (f *Frame) Register(idx Register) (CodeBlock, bool) {
	if int(idx) >= len(f.Registers) {
		return 0, false
	}
	return f.Registers[idx], true
}

func (f *Frame) SetRegister(idx Register, v CodeBlock) bool {
	if int(idx) >= len(f.Registers) {
		return false
	}
	f.Registers[idx] = v
	return true
}

func (f *Frame) PushRef(r Reference)          { f.Refs = append(f.Refs, r) }
func (f *Frame) PushCRef(r ConstReference)    { f.CRefs = append(f.CRefs, r) }

func (f *Frame) Ref(idx int) (Reference, bool) {
	if idx < 0 || idx >= len(f.Refs) {
		return Reference{}, false
	}
	return f.Refs[idx], true
}

func (f *Frame) CRef(idx int) (ConstReference, bool) {
	if idx < 0 || idx >= len(f.CRefs) {
		return ConstReference{}, false
	}
	return f.CRefs[idx], true
}

// blockBytes exposes a CodeBlock's little-endian byte representation so it
// can back a Reference without copying. The eight bytes alias the block's
// storage directly: mutating them through a register/stack reference is
// observable as a register/stack write, matching spec §4.3 ("references to
// block-backed regions carry no slot ownership").
func blockBytes(b *CodeBlock) *[8]byte {
	return (*[8]byte)(unsafe.Pointer(b))
}
