// Mach-O on-disk structures and their width-normalized views.

package macho

import "encoding/binary"

const (
	Magic32 uint32 = 0xfeedface
	Magic64 uint32 = 0xfeedfacf
)

// A LoadCmd is a Mach-O load command type.
type LoadCmd uint32

const (
	LoadCmdSegment   LoadCmd = 0x1
	LoadCmdSymtab    LoadCmd = 0x2
	LoadCmdSegment64 LoadCmd = 0x19
)

// A VmProt is a Mach-O segment memory protection mask.
type VmProt int32

const (
	VmProtRead    VmProt = 0x1
	VmProtWrite   VmProt = 0x2
	VmProtExecute VmProt = 0x4
)

func (p VmProt) String() string {
	s := []byte("---")
	if p&VmProtRead != 0 {
		s[0] = 'r'
	}
	if p&VmProtWrite != 0 {
		s[1] = 'w'
	}
	if p&VmProtExecute != 0 {
		s[2] = 'x'
	}
	return string(s)
}

// nlist n_type fields.
const (
	nStab     uint8 = 0xe0 // mask for stab (debug) entries
	nTypeMask uint8 = 0x0e // mask for the type bits
	nUndf     uint8 = 0x0  // undefined symbol
	nSect     uint8 = 0xe  // section-relative symbol
	noSect    uint8 = 0    // n_sect sentinel: symbol not in any section
)

// A LoadCommand is one entry of the load command table. It records where
// the command lives in the image so that variant data following the common
// header can be decoded on demand.
type LoadCommand struct {
	Cmd LoadCmd
	Len uint32
	off uint32
}

// A Segment is a width-normalized view of a segment load command.
type Segment struct {
	LoadCommand
	Name    string
	Addr    uint64 // vmaddr
	Memsz   uint64 // vmsize
	Offset  uint64 // fileoff
	Filesz  uint64
	Maxprot VmProt
	Prot    VmProt // initprot
	Nsect   uint32
	Flag    uint32
}

// A Section is a width-normalized view of a section header.
type Section struct {
	Name string
	Seg  string
	Addr uint64
	Size uint64
}

// An Nlist is a width-normalized view of a symbol table entry.
type Nlist struct {
	Name  uint32 // index into the string table
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}

// A Symtab is the decoded LC_SYMTAB command locating the symbol array and
// string table within the image.
type Symtab struct {
	LoadCommand
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
}

// A layout decodes the width-dependent Mach-O structures of one flavor
// into their normalized views. Each decoder expects a slice holding at
// least the corresponding struct size; callers derive those slices from
// validated iteration, never from raw caller-supplied offsets.
type layout interface {
	headerSize() uint32
	segmentCmd() LoadCmd
	segmentSize() uint32
	sectionSize() uint32
	nlistSize() uint32
	segment(b []byte) Segment
	section(b []byte) Section
	nlist(b []byte) Nlist
}

var (
	_ layout = layout32{}
	_ layout = layout64{}
)

type layout32 struct{}

func (layout32) headerSize() uint32  { return 28 }
func (layout32) segmentCmd() LoadCmd { return LoadCmdSegment }
func (layout32) segmentSize() uint32 { return 56 }
func (layout32) sectionSize() uint32 { return 68 }
func (layout32) nlistSize() uint32   { return 12 }

func (layout32) segment(b []byte) Segment {
	return Segment{
		Name:    cstring(b[8:24]),
		Addr:    uint64(binary.LittleEndian.Uint32(b[24:])),
		Memsz:   uint64(binary.LittleEndian.Uint32(b[28:])),
		Offset:  uint64(binary.LittleEndian.Uint32(b[32:])),
		Filesz:  uint64(binary.LittleEndian.Uint32(b[36:])),
		Maxprot: VmProt(binary.LittleEndian.Uint32(b[40:])),
		Prot:    VmProt(binary.LittleEndian.Uint32(b[44:])),
		Nsect:   binary.LittleEndian.Uint32(b[48:]),
		Flag:    binary.LittleEndian.Uint32(b[52:]),
	}
}

func (layout32) section(b []byte) Section {
	return Section{
		Name: cstring(b[0:16]),
		Seg:  cstring(b[16:32]),
		Addr: uint64(binary.LittleEndian.Uint32(b[32:])),
		Size: uint64(binary.LittleEndian.Uint32(b[36:])),
	}
}

func (layout32) nlist(b []byte) Nlist {
	return Nlist{
		Name:  binary.LittleEndian.Uint32(b[0:]),
		Type:  b[4],
		Sect:  b[5],
		Desc:  binary.LittleEndian.Uint16(b[6:]),
		Value: uint64(binary.LittleEndian.Uint32(b[8:])),
	}
}

type layout64 struct{}

func (layout64) headerSize() uint32  { return 32 }
func (layout64) segmentCmd() LoadCmd { return LoadCmdSegment64 }
func (layout64) segmentSize() uint32 { return 72 }
func (layout64) sectionSize() uint32 { return 80 }
func (layout64) nlistSize() uint32   { return 16 }

func (layout64) segment(b []byte) Segment {
	return Segment{
		Name:    cstring(b[8:24]),
		Addr:    binary.LittleEndian.Uint64(b[24:]),
		Memsz:   binary.LittleEndian.Uint64(b[32:]),
		Offset:  binary.LittleEndian.Uint64(b[40:]),
		Filesz:  binary.LittleEndian.Uint64(b[48:]),
		Maxprot: VmProt(binary.LittleEndian.Uint32(b[56:])),
		Prot:    VmProt(binary.LittleEndian.Uint32(b[60:])),
		Nsect:   binary.LittleEndian.Uint32(b[64:]),
		Flag:    binary.LittleEndian.Uint32(b[68:]),
	}
}

func (layout64) section(b []byte) Section {
	return Section{
		Name: cstring(b[0:16]),
		Seg:  cstring(b[16:32]),
		Addr: binary.LittleEndian.Uint64(b[32:]),
		Size: binary.LittleEndian.Uint64(b[40:]),
	}
}

func (layout64) nlist(b []byte) Nlist {
	return Nlist{
		Name:  binary.LittleEndian.Uint32(b[0:]),
		Type:  b[4],
		Sect:  b[5],
		Desc:  binary.LittleEndian.Uint16(b[6:]),
		Value: binary.LittleEndian.Uint64(b[8:]),
	}
}

// cstring returns the fixed-width name field b as a string. The field is
// not necessarily null-terminated.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
