// Package macho provides read-only structural introspection of 32-bit and
// 64-bit Mach-O images already mapped or copied into memory. The package
// never performs I/O and never mutates the image buffer; every Segment,
// Section and Nlist value is a decoded view whose validity ends with the
// backing buffer.
package macho

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotFound is returned for well-formed negative results: a name that is
// absent, an address outside every segment, an undefined symbol. Structural
// corruption is reported with descriptive errors instead.
var ErrNotFound = errors.New("not found")

// offset of sizeofcmds in the mach header, identical for both widths
const sizeofcmdsOffset = 20

// An Image wraps a Mach-O buffer together with its width, fixed at
// construction from the magic value. The buffer is borrowed from the
// caller and treated as read-only, so an Image may be shared across
// goroutines as long as the backing memory stays mapped.
type Image struct {
	data  []byte
	magic uint32
	lay   layout
}

// Validate checks that data looks like a Mach-O image: a recognized magic
// value, a buffer at least as large as the width-specific mach header, and
// a declared load-command table no larger than the buffer. Individual
// command contents are not validated; deeper malformation surfaces at the
// point of use.
func Validate(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("mach-o too small: %d bytes", len(data))
	}
	switch binary.LittleEndian.Uint32(data) {
	case Magic32:
		return validate(data, layout32{}, "32-bit mach-o")
	case Magic64:
		return validate(data, layout64{}, "64-bit mach-o")
	default:
		return fmt.Errorf("invalid mach-o magic: %#x", binary.LittleEndian.Uint32(data))
	}
}

func validate(data []byte, lay layout, flavor string) error {
	if uint64(len(data)) < uint64(lay.headerSize()) {
		return fmt.Errorf("%s too small: %d bytes", flavor, len(data))
	}
	if sizeofcmds := binary.LittleEndian.Uint32(data[sizeofcmdsOffset:]); uint64(sizeofcmds) > uint64(len(data)) {
		return fmt.Errorf("%s sizeofcmds %d greater than image size %d", flavor, sizeofcmds, len(data))
	}
	return nil
}

// NewImage validates data and wraps it in an Image.
func NewImage(data []byte) (*Image, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	m := &Image{data: data, magic: binary.LittleEndian.Uint32(data)}
	if m.magic == Magic64 {
		m.lay = layout64{}
	} else {
		m.lay = layout32{}
	}
	return m, nil
}

// Magic returns the image's magic value.
func (m *Image) Magic() uint32 { return m.magic }

// Is32 reports whether the image is a 32-bit Mach-O.
func (m *Image) Is32() bool { return m.magic == Magic32 }

// Is64 reports whether the image is a 64-bit Mach-O.
func (m *Image) Is64() bool { return m.magic == Magic64 }

// HeaderSize returns the size of the image's mach header.
func (m *Image) HeaderSize() uint32 { return m.lay.headerSize() }

// Size returns the size of the image buffer.
func (m *Image) Size() uint64 { return uint64(len(m.data)) }

// view returns n bytes of the image starting at off, or nil if the range
// falls outside the buffer.
func (m *Image) view(off, n uint64) []byte {
	if off > uint64(len(m.data)) || n > uint64(len(m.data))-off {
		return nil
	}
	return m.data[off : off+n]
}

func (m *Image) sizeofcmds() uint32 {
	return binary.LittleEndian.Uint32(m.data[sizeofcmdsOffset:])
}

// NextLoadCommand returns the load command following prev, or the first
// load command if prev is nil. It returns nil once the cursor reaches the
// end of the declared command table. A command with a zero length, or one
// whose header would read past the buffer, terminates iteration rather
// than stalling it.
func (m *Image) NextLoadCommand(prev *LoadCommand) *LoadCommand {
	start := uint64(m.HeaderSize())
	end := start + uint64(m.sizeofcmds())
	off := start
	if prev != nil {
		if prev.Len == 0 {
			return nil
		}
		off = uint64(prev.off) + uint64(prev.Len)
	}
	if off >= end {
		return nil
	}
	b := m.view(off, 8)
	if b == nil {
		return nil
	}
	return &LoadCommand{
		Cmd: LoadCmd(binary.LittleEndian.Uint32(b)),
		Len: binary.LittleEndian.Uint32(b[4:]),
		off: uint32(off),
	}
}

// FindLoadCommand returns the next load command after prev whose type is
// cmd, or nil if no such command remains.
func (m *Image) FindLoadCommand(prev *LoadCommand, cmd LoadCmd) *LoadCommand {
	for lc := m.NextLoadCommand(prev); lc != nil; lc = m.NextLoadCommand(lc) {
		if lc.Cmd == cmd {
			return lc
		}
	}
	return nil
}

// segmentAt decodes the segment command at lc.
func (m *Image) segmentAt(lc *LoadCommand) *Segment {
	b := m.view(uint64(lc.off), uint64(m.lay.segmentSize()))
	if b == nil {
		return nil
	}
	seg := m.lay.segment(b)
	seg.LoadCommand = *lc
	return &seg
}

// NextSegment returns the segment command following prev in command order,
// or the first one if prev is nil.
func (m *Image) NextSegment(prev *Segment) *Segment {
	var lc *LoadCommand
	if prev != nil {
		lc = &prev.LoadCommand
	}
	lc = m.FindLoadCommand(lc, m.lay.segmentCmd())
	if lc == nil {
		return nil
	}
	return m.segmentAt(lc)
}

// Segment returns the segment command with the given name, or nil. Names
// compare for exact equality.
func (m *Image) Segment(name string) *Segment {
	for seg := m.NextSegment(nil); seg != nil; seg = m.NextSegment(seg) {
		if seg.Name == name {
			return seg
		}
	}
	return nil
}

// sectionAt decodes the idx'th section header of seg.
func (m *Image) sectionAt(seg *Segment, idx uint32) *Section {
	ssize := uint64(m.lay.sectionSize())
	off := uint64(seg.off) + uint64(m.lay.segmentSize()) + uint64(idx)*ssize
	b := m.view(off, ssize)
	if b == nil {
		return nil
	}
	sect := m.lay.section(b)
	return &sect
}

// Section returns the named section of seg, or nil.
func (m *Image) Section(seg *Segment, name string) *Section {
	for i := uint32(0); i < seg.Nsect; i++ {
		sect := m.sectionAt(seg, i)
		if sect == nil {
			return nil
		}
		if sect.Name == name {
			return sect
		}
	}
	return nil
}

// Sections returns all section headers of seg in command order.
func (m *Image) Sections(seg *Segment) []Section {
	var sects []Section
	for i := uint32(0); i < seg.Nsect; i++ {
		sect := m.sectionAt(seg, i)
		if sect == nil {
			break
		}
		sects = append(sects, *sect)
	}
	return sects
}

// SegmentData returns seg's file-backed bytes along with its runtime
// address and size. The data slice is nil when the segment's declared file
// range falls outside the buffer; addr and size are returned regardless.
func (m *Image) SegmentData(seg *Segment) (data []byte, addr, size uint64) {
	return m.view(seg.Offset, seg.Filesz), seg.Addr, seg.Memsz
}

// SectionData returns sect's file-backed bytes along with its runtime
// address and size. The file location is derived from the owning segment:
// within one segment the file image mirrors the runtime layout, so the
// section's bytes live at fileoff + (sect.Addr - seg.Addr).
func (m *Image) SectionData(seg *Segment, sect *Section) (data []byte, addr, size uint64) {
	off := seg.Offset + (sect.Addr - seg.Addr)
	return m.view(off, sect.Size), sect.Addr, sect.Size
}

// FindBase returns the static address at which the image maps its mach
// header. By convention only the segment mapping the start of the file is
// both file-backed and at file offset 0, so the first such segment's
// vmaddr is the image's static base.
func (m *Image) FindBase() (uint64, error) {
	for seg := m.NextSegment(nil); seg != nil; seg = m.NextSegment(seg) {
		if seg.Offset != 0 || seg.Filesz == 0 {
			continue
		}
		return seg.Addr, nil
	}
	return 0, ErrNotFound
}

// SectionByIndex returns the section with the given global 1-based index,
// counting sections across all segments in command order. Index 0 or an
// index past the last section returns nil.
func (m *Image) SectionByIndex(sect uint32) *Section {
	if sect < 1 {
		return nil
	}
	idx := uint32(1)
	for seg := m.NextSegment(nil); seg != nil; seg = m.NextSegment(seg) {
		if sect < idx+seg.Nsect {
			return m.sectionAt(seg, sect-idx)
		}
		idx += seg.Nsect
	}
	return nil
}

// FindSegmentForVMAddr returns the first segment in command order whose
// runtime range contains addr, or nil.
func (m *Image) FindSegmentForVMAddr(addr uint64) *Segment {
	for seg := m.NextSegment(nil); seg != nil; seg = m.NextSegment(seg) {
		if seg.Addr <= addr && addr < seg.Addr+seg.Memsz {
			return seg
		}
	}
	return nil
}

// FindSectionForVMAddr returns the section of seg whose runtime range
// contains addr. It returns nil when no section covers addr even though
// the segment does; segments may have gaps not covered by any section.
func (m *Image) FindSectionForVMAddr(seg *Segment, addr uint64) *Section {
	for i := uint32(0); i < seg.Nsect; i++ {
		sect := m.sectionAt(seg, i)
		if sect == nil {
			return nil
		}
		if sect.Addr <= addr && addr < sect.Addr+sect.Size {
			return sect
		}
	}
	return nil
}

// SearchData scans the file-backed bytes of each segment whose initial
// protections include minprot for the given byte sequence, in command
// order, and returns the runtime address of the first match. It returns
// ErrNotFound when no qualifying segment contains the pattern.
func (m *Image) SearchData(pattern []byte, minprot VmProt) (uint64, error) {
	for seg := m.NextSegment(nil); seg != nil; seg = m.NextSegment(seg) {
		if seg.Prot&minprot != minprot {
			continue
		}
		data, addr, _ := m.SegmentData(seg)
		idx := bytes.Index(data, pattern)
		if idx < 0 {
			continue
		}
		return addr + uint64(idx), nil
	}
	return 0, ErrNotFound
}
