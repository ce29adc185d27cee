// Package gadget decodes gadget pattern strings and locates their byte
// sequences inside the executable segments of a Mach-O image.
//
// Gadget string format:
//
//	<GADGET_STRING>  = <GADGET_NAME>:<GADGET_DATA>
//	<GADGET_DATA>    = <GADGET_BYTES>{,<GADGET_BYTES>}*
//	<GADGET_BYTES>   = <BIG_ENDIAN_HEX>|0x<LITTLE_ENDIAN_HEX>
//
// Byte groups concatenate into one pattern; a 0x-prefixed group is decoded
// and then byte-reversed.
package gadget

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/machog/machog/pkg/macho"
)

// A Gadget is one named byte pattern. Address is 0 until Find locates the
// pattern in an image.
type Gadget struct {
	Name    string
	Data    []byte
	Address uint64
}

// Decode parses a gadget string.
func Decode(s string) (*Gadget, error) {
	name, data, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("bad format gadget string %q", s)
	}
	g := &Gadget{Name: name}
	if len(data) == 0 {
		return nil, fmt.Errorf("missing gadget data for gadget %q", name)
	}
	for _, group := range strings.Split(data, ",") {
		littleEndian := strings.HasPrefix(group, "0x")
		if littleEndian {
			group = group[2:]
		}
		if len(group) == 0 {
			return nil, fmt.Errorf("zero-length component in gadget data %q for gadget %q", data, name)
		}
		if len(group)%2 != 0 {
			return nil, fmt.Errorf("odd-length hex in gadget data %q for gadget %q", data, name)
		}
		b, err := hex.DecodeString(group)
		if err != nil {
			return nil, fmt.Errorf("invalid hex in gadget data %q for gadget %q", data, name)
		}
		if littleEndian {
			slices.Reverse(b)
		}
		g.Data = append(g.Data, b...)
	}
	return g, nil
}

// executable segments must be mapped r-x under both initial and maximum
// protections
const prot = macho.VmProtRead | macho.VmProtExecute

// Find scans the executable segments of img in command order and records
// the runtime address of the first match for each gadget. Gadgets already
// carrying an address are left untouched, so earlier segments win.
func Find(img *macho.Image, gadgets []*Gadget) {
	for seg := img.NextSegment(nil); seg != nil; seg = img.NextSegment(seg) {
		if seg.Prot&prot != prot || seg.Maxprot&prot != prot {
			continue
		}
		data, addr, _ := img.SegmentData(seg)
		for _, g := range gadgets {
			if g.Address != 0 || len(g.Data) == 0 {
				continue
			}
			if idx := bytes.Index(data, g.Data); idx >= 0 {
				g.Address = addr + uint64(idx)
			}
		}
	}
}
