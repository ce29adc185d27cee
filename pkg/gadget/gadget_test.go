package gadget

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/machog/machog/pkg/macho"
)

type testSegment struct {
	name                     string
	addr, memsz, off, filesz uint64
	maxprot, prot            macho.VmProt
}

// buildImage assembles a minimal 64-bit Mach-O: a mach header plus plain
// segment commands (no sections), zero-extended to total bytes.
func buildImage(t *testing.T, total int, segs []testSegment) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, struct {
		Magic, Cpu, SubCpu, Type, Ncmd, Cmdsz, Flags, Reserved uint32
	}{Magic: macho.Magic64, Type: 2, Ncmd: uint32(len(segs)), Cmdsz: uint32(len(segs)) * 72})

	for _, s := range segs {
		var name [16]byte
		copy(name[:], s.name)
		binary.Write(buf, binary.LittleEndian, struct {
			Cmd, Len                    uint32
			Name                        [16]byte
			Addr, Memsz, Offset, Filesz uint64
			Maxprot, Prot               int32
			Nsect, Flag                 uint32
		}{
			Cmd: uint32(macho.LoadCmdSegment64), Len: 72, Name: name,
			Addr: s.addr, Memsz: s.memsz, Offset: s.off, Filesz: s.filesz,
			Maxprot: int32(s.maxprot), Prot: int32(s.prot),
		})
	}

	data := buf.Bytes()
	if len(data) < total {
		data = append(data, make([]byte, total-len(data))...)
	}
	return data
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *Gadget
		wantErr bool
	}{
		{
			name: "big endian",
			in:   "ret:c3",
			want: &Gadget{Name: "ret", Data: []byte{0xc3}},
		},
		{
			name: "little endian is byte-reversed",
			in:   "mov:0x0011223344",
			want: &Gadget{Name: "mov", Data: []byte{0x44, 0x33, 0x22, 0x11, 0x00}},
		},
		{
			name: "groups concatenate",
			in:   "g:aabb,0xccdd,ee",
			want: &Gadget{Name: "g", Data: []byte{0xaa, 0xbb, 0xdd, 0xcc, 0xee}},
		},
		{name: "no colon", in: "retc3", wantErr: true},
		{name: "missing data", in: "ret:", wantErr: true},
		{name: "odd-length hex", in: "ret:c3f", wantErr: true},
		{name: "invalid hex", in: "ret:zz", wantErr: true},
		{name: "empty little-endian group", in: "ret:0x", wantErr: true},
		{name: "empty middle group", in: "ret:aa,,bb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Name != tt.want.Name || !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("Decode(%q) = %s:% x, want %s:% x", tt.in, got.Name, got.Data, tt.want.Name, tt.want.Data)
			}
			if got.Address != 0 {
				t.Errorf("Decode(%q).Address = %#x, want 0", tt.in, got.Address)
			}
		})
	}
}

func TestFind(t *testing.T) {
	rx := macho.VmProtRead | macho.VmProtExecute
	rw := macho.VmProtRead | macho.VmProtWrite

	segs := []testSegment{
		{name: "__TEXT", addr: 0x1000, memsz: 0x1000, off: 0x400, filesz: 0x400, maxprot: rx, prot: rx},
		{name: "__TEXT2", addr: 0x4000, memsz: 0x1000, off: 0x800, filesz: 0x400, maxprot: rx, prot: rx},
		{name: "__DATA", addr: 0x8000, memsz: 0x1000, off: 0xc00, filesz: 0x400, maxprot: rw, prot: rw},
	}
	data := buildImage(t, 0x1000, segs)
	copy(data[0x480:], []byte{0xc3})                   // ret in __TEXT
	copy(data[0x810:], []byte{0x0f, 0x05, 0xc3})       // syscall;ret in __TEXT2 (also contains a ret)
	copy(data[0xc10:], []byte{0x5d, 0xc3})             // pop rbp;ret, but only in __DATA

	img, err := macho.NewImage(data)
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}

	gadgets := []*Gadget{
		{Name: "ret", Data: []byte{0xc3}},
		{Name: "syscall_ret", Data: []byte{0x0f, 0x05, 0xc3}},
		{Name: "pop_rbp_ret", Data: []byte{0x5d, 0xc3}},
		{Name: "prefound", Data: []byte{0xc3}, Address: 0xdead},
	}
	Find(img, gadgets)

	// first executable segment in command order wins
	if gadgets[0].Address != 0x1000+0x80 {
		t.Errorf("ret found at %#x, want 0x1080", gadgets[0].Address)
	}
	if gadgets[1].Address != 0x4000+0x10 {
		t.Errorf("syscall_ret found at %#x, want 0x4010", gadgets[1].Address)
	}
	// never matched inside a non-executable segment
	if gadgets[2].Address != 0 {
		t.Errorf("pop_rbp_ret found at %#x, want 0 (only occurrence is not executable)", gadgets[2].Address)
	}
	// an already-located gadget is left untouched
	if gadgets[3].Address != 0xdead {
		t.Errorf("prefound moved to %#x, want 0xdead", gadgets[3].Address)
	}
}

func TestFindSkipsWriteableMax(t *testing.T) {
	rx := macho.VmProtRead | macho.VmProtExecute

	// initprot says r-x but maxprot lacks execute: skip it
	segs := []testSegment{
		{name: "__ODD", addr: 0x1000, memsz: 0x1000, off: 0x400, filesz: 0x400, maxprot: macho.VmProtRead, prot: rx},
	}
	data := buildImage(t, 0x800, segs)
	copy(data[0x410:], []byte{0xc3})

	img, err := macho.NewImage(data)
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}

	gadgets := []*Gadget{{Name: "ret", Data: []byte{0xc3}}}
	Find(img, gadgets)
	if gadgets[0].Address != 0 {
		t.Errorf("ret found at %#x in segment without executable maxprot, want 0", gadgets[0].Address)
	}
}
