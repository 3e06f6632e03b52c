package scvm_test

import (
	"bytes"
	"testing"

	"scvm/internal/asmfixture"
	"scvm/vm"
)

func TestContainerRoundTrip(t *testing.T) {
	b := asmfixture.New()
	b.PushImm(scvm.BlockFromI64(9))
	b.Halt(0)
	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}

	unit := &scvm.LinkingUnit{
		Code:         []*scvm.CodeSection{cs},
		Rodata:       scvm.NewDataSection([]byte("hello")),
		Data:         scvm.NewDataSection([]byte{1, 2, 3}),
		Bss:          &scvm.BssSection{Size: 32},
		SyscallBinds: []string{"console.write", "console.read"},
		PdBinds:      []string{"null"},
	}

	var buf bytes.Buffer
	if err := scvm.WriteContainer(&buf, []*scvm.LinkingUnit{unit}); err != nil {
		t.Fatalf("WriteContainer: %v", err)
	}

	units, err := scvm.ReadContainer(&buf)
	if err != nil {
		t.Fatalf("ReadContainer: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	got := units[0]

	if got.Code[0].Size() != cs.Size() {
		t.Fatalf("code section size = %d, want %d", got.Code[0].Size(), cs.Size())
	}
	for i := 0; i < cs.Size(); i++ {
		if got.Code[0].Block(i) != cs.Block(i) {
			t.Fatalf("block %d = %v, want %v", i, got.Code[0].Block(i), cs.Block(i))
		}
	}
	if !bytes.Equal(got.Rodata.Bytes, []byte("hello")) {
		t.Fatalf("rodata = %q, want %q", got.Rodata.Bytes, "hello")
	}
	if !bytes.Equal(got.Data.Bytes, []byte{1, 2, 3}) {
		t.Fatalf("data = %v, want [1 2 3]", got.Data.Bytes)
	}
	if got.Bss.Size != 32 {
		t.Fatalf("bss size = %d, want 32", got.Bss.Size)
	}
	if len(got.SyscallBinds) != 2 || got.SyscallBinds[0] != "console.write" || got.SyscallBinds[1] != "console.read" {
		t.Fatalf("syscall binds = %v", got.SyscallBinds)
	}
	if len(got.PdBinds) != 1 || got.PdBinds[0] != "null" {
		t.Fatalf("pd binds = %v", got.PdBinds)
	}
}

func TestReadContainerRejectsBadMagic(t *testing.T) {
	_, err := scvm.ReadContainer(bytes.NewReader([]byte("not a container at all")))
	if err != scvm.ErrInvalidHeader {
		t.Fatalf("err = %v, want ErrInvalidHeader", err)
	}
}

func TestReadContainerRejectsEmptyInput(t *testing.T) {
	_, err := scvm.ReadContainer(bytes.NewReader(nil))
	if err != scvm.ErrInvalidHeader {
		t.Fatalf("err = %v, want ErrInvalidHeader", err)
	}
}

func TestReadContainerRejectsVersionMismatch(t *testing.T) {
	b := asmfixture.New()
	b.Halt(0)
	cs, err := b.CodeSection()
	if err != nil {
		t.Fatal(err)
	}
	unit := &scvm.LinkingUnit{Code: []*scvm.CodeSection{cs}}

	var buf bytes.Buffer
	if err := scvm.WriteContainer(&buf, []*scvm.LinkingUnit{unit}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[4] = 0xFF // version is the uint16 right after the 4-byte magic
	raw[5] = 0xFF

	_, err = scvm.ReadContainer(bytes.NewReader(raw))
	if err != scvm.ErrVersionMismatch {
		t.Fatalf("err = %v, want ErrVersionMismatch", err)
	}
}
