package macho

import (
	"bytes"
	"encoding/binary"
	"testing"
)

var le = binary.LittleEndian

// raw on-disk layouts, used to assemble synthetic images

type rawHeader32 struct {
	Magic, Cpu, SubCpu, Type, Ncmd, Cmdsz, Flags uint32
}

type rawHeader64 struct {
	Magic, Cpu, SubCpu, Type, Ncmd, Cmdsz, Flags, Reserved uint32
}

type rawSegment32 struct {
	Cmd, Len                    uint32
	Name                        [16]byte
	Addr, Memsz, Offset, Filesz uint32
	Maxprot, Prot               int32
	Nsect, Flag                 uint32
}

type rawSegment64 struct {
	Cmd, Len                    uint32
	Name                        [16]byte
	Addr, Memsz, Offset, Filesz uint64
	Maxprot, Prot               int32
	Nsect, Flag                 uint32
}

type rawSection32 struct {
	Name, Seg                 [16]byte
	Addr, Size                uint32
	Offset, Align, Reloff     uint32
	Nreloc, Flags, Res1, Res2 uint32
}

type rawSection64 struct {
	Name, Seg                       [16]byte
	Addr, Size                      uint64
	Offset, Align, Reloff           uint32
	Nreloc, Flags, Res1, Res2, Res3 uint32
}

type rawSymtab struct {
	Cmd, Len, Symoff, Nsyms, Stroff, Strsize uint32
}

type rawNlist32 struct {
	Strx  uint32
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint32
}

type rawNlist64 struct {
	Strx  uint32
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}

type testSection struct {
	name       string
	addr, size uint64
}

type testSegment struct {
	name                     string
	addr, memsz, off, filesz uint64
	maxprot, prot            VmProt
	sects                    []testSection
}

type testSymbol struct {
	name  string
	typ   uint8
	sect  uint8
	value uint64
}

func strName(s string) (n [16]byte) {
	copy(n[:], s)
	return
}

// buildImage assembles a synthetic Mach-O image of the given width: mach
// header, segment commands with their section runs, and, when syms is
// non-nil, an LC_SYMTAB with the symbol array and string table laid out
// right after the command table. The buffer is zero-extended to total.
func buildImage(t *testing.T, is64 bool, total int, segs []testSegment, syms []testSymbol) []byte {
	t.Helper()

	hdrSize, segSize, sectSize, nlSize := 28, 56, 68, 12
	if is64 {
		hdrSize, segSize, sectSize, nlSize = 32, 72, 80, 16
	}

	cmdsLen := 0
	for _, s := range segs {
		cmdsLen += segSize + len(s.sects)*sectSize
	}
	ncmds := len(segs)
	if syms != nil {
		cmdsLen += 24
		ncmds++
	}
	symoff := hdrSize + cmdsLen
	stroff := symoff + len(syms)*nlSize

	strtab := []byte{0, 0, 0, 0}
	strx := make([]uint32, len(syms))
	for i, sym := range syms {
		strx[i] = uint32(len(strtab))
		strtab = append(strtab, sym.name...)
		strtab = append(strtab, 0)
	}

	buf := new(bytes.Buffer)
	if is64 {
		binary.Write(buf, le, rawHeader64{Magic: Magic64, Type: 2, Ncmd: uint32(ncmds), Cmdsz: uint32(cmdsLen)})
	} else {
		binary.Write(buf, le, rawHeader32{Magic: Magic32, Type: 2, Ncmd: uint32(ncmds), Cmdsz: uint32(cmdsLen)})
	}
	for _, s := range segs {
		cmdsize := uint32(segSize + len(s.sects)*sectSize)
		if is64 {
			binary.Write(buf, le, rawSegment64{
				Cmd: uint32(LoadCmdSegment64), Len: cmdsize, Name: strName(s.name),
				Addr: s.addr, Memsz: s.memsz, Offset: s.off, Filesz: s.filesz,
				Maxprot: int32(s.maxprot), Prot: int32(s.prot), Nsect: uint32(len(s.sects)),
			})
			for _, sect := range s.sects {
				binary.Write(buf, le, rawSection64{
					Name: strName(sect.name), Seg: strName(s.name),
					Addr: sect.addr, Size: sect.size,
				})
			}
		} else {
			binary.Write(buf, le, rawSegment32{
				Cmd: uint32(LoadCmdSegment), Len: cmdsize, Name: strName(s.name),
				Addr: uint32(s.addr), Memsz: uint32(s.memsz), Offset: uint32(s.off), Filesz: uint32(s.filesz),
				Maxprot: int32(s.maxprot), Prot: int32(s.prot), Nsect: uint32(len(s.sects)),
			})
			for _, sect := range s.sects {
				binary.Write(buf, le, rawSection32{
					Name: strName(sect.name), Seg: strName(s.name),
					Addr: uint32(sect.addr), Size: uint32(sect.size),
				})
			}
		}
	}
	if syms != nil {
		binary.Write(buf, le, rawSymtab{
			Cmd: uint32(LoadCmdSymtab), Len: 24,
			Symoff: uint32(symoff), Nsyms: uint32(len(syms)),
			Stroff: uint32(stroff), Strsize: uint32(len(strtab)),
		})
		for i, sym := range syms {
			if is64 {
				binary.Write(buf, le, rawNlist64{Strx: strx[i], Type: sym.typ, Sect: sym.sect, Value: sym.value})
			} else {
				binary.Write(buf, le, rawNlist32{Strx: strx[i], Type: sym.typ, Sect: sym.sect, Value: uint32(sym.value)})
			}
		}
		buf.Write(strtab)
	}

	data := buf.Bytes()
	if len(data) < total {
		data = append(data, make([]byte, total-len(data))...)
	}
	return data
}

func mustImage(t *testing.T, data []byte) *Image {
	t.Helper()
	img, err := NewImage(data)
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}
	return img
}
