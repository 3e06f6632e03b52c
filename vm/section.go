package scvm

// InstructionDescriptor records, for one instruction's starting block
// index, its opcode and resolved inline operands — used for debug and
// introspection (spec §3's "offset → instruction-descriptor mapping").
type InstructionDescriptor struct {
	Opcode Opcode
	Args   []CodeBlock
}

// CodeSection is an ordered sequence of code blocks plus the two auxiliary
// structures populated at preparation time: an instruction-start bitmap
// and an offset->descriptor map (spec §3). Size is fixed at load time, and
// one extra trailing slot holds an EOF sentinel token so any fall-through
// or off-end dispatch lands on a deterministic fault handler.
//
// size excludes the trailing sentinel slot (the Open Question in spec §9 is
// resolved this way throughout the engine): every bounds check compares
// against size, never len(blocks).
type CodeSection struct {
	blocks      []CodeBlock
	instrStart  []bool
	descriptors map[int]InstructionDescriptor
	prepared    bool
}

func NewCodeSection(blocks []CodeBlock) *CodeSection {
	cs := &CodeSection{
		blocks:      append(append([]CodeBlock{}, blocks...), CodeBlock(0)),
		instrStart:  make([]bool, len(blocks)+1),
		descriptors: make(map[int]InstructionDescriptor),
	}
	return cs
}

func (c *CodeSection) Size() int { return len(c.blocks) - 1 }

// Block returns the raw code block at offset, including the sentinel slot
// at Size().
func (c *CodeSection) Block(offset int) CodeBlock { return c.blocks[offset] }

func (c *CodeSection) setBlock(offset int, v CodeBlock) { c.blocks[offset] = v }

// IsInstructionStart reports whether offset is both in range and marked as
// the start of an instruction by the preparer (spec §3/§8's universal
// invariant 1).
func (c *CodeSection) IsInstructionStart(offset int) bool {
	if offset < 0 || offset >= len(c.instrStart) {
		return false
	}
	return c.instrStart[offset]
}

func (c *CodeSection) markInstructionStart(offset int) { c.instrStart[offset] = true }

func (c *CodeSection) Descriptor(offset int) (InstructionDescriptor, bool) {
	d, ok := c.descriptors[offset]
	return d, ok
}

func (c *CodeSection) setDescriptor(offset int, d InstructionDescriptor) {
	c.descriptors[offset] = d
}

// DataSection is an immutable or mutable sized byte buffer backing
// rodata/data sections (spec §3); Bss sections only declare a size and are
// materialized per-process at NewProcess time.
type DataSection struct {
	Bytes []byte
}

func NewDataSection(b []byte) *DataSection {
	return &DataSection{Bytes: append([]byte{}, b...)}
}

// BssSection declares a per-process zero-initialized region's size.
type BssSection struct {
	Size uint64
}
