package human68k

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// xHeaderSize is the fixed size of an X-format header.
const xHeaderSize = 64

var xMagic = [2]byte{0x48, 0x55} // "HU"

// loaded describes a program image placed in guest memory by the loader.
type loaded struct {
	entry      uint32
	loadBase   uint32
	progSize   uint32 // code+data+bss
	progSize2  uint32 // code+data
}

// imageSize is what probeImage reports about a not-yet-loaded executable: enough to size the MCB
// the caller must allocate before calling loadImage with the resulting address as loadBase.
type imageSize struct {
	isX                          bool
	progSize, progSize2, entryOff uint32
}

// probeImage reads just the header (X-format) or the file length (R-format) to determine how
// large an MCB the loader needs, without writing anything to guest memory -- the caller doesn't
// know the final load address until after this sizing decides how much to allocate.
func probeImage(data []byte, forceX bool) (imageSize, error) {
	isX := forceX || (len(data) >= 2 && bytes.Equal(data[:2], xMagic[:]))

	if !isX {
		return imageSize{progSize: uint32(len(data)), progSize2: uint32(len(data))}, nil
	}

	if len(data) < xHeaderSize {
		return imageSize{}, fmt.Errorf("human68k: x-format header truncated")
	}

	hdr := data[:xHeaderSize]

	entryOff := binary.BigEndian.Uint32(hdr[8:12])
	codeSize := binary.BigEndian.Uint32(hdr[12:16])
	dataSize := binary.BigEndian.Uint32(hdr[16:20])
	bssSize := binary.BigEndian.Uint32(hdr[20:24])
	bindSize := binary.BigEndian.Uint32(hdr[60:64])

	if bindSize != 0 {
		return imageSize{}, fmt.Errorf("human68k: bound-library executables are not supported")
	}

	codeData := codeSize + dataSize

	return imageSize{
		isX:       true,
		progSize:  codeData + bssSize,
		progSize2: codeData,
		entryOff:  entryOff,
	}, nil
}

// loadImage reads an X-format or R-format executable from data into guest memory starting at
// loadBase, applies relocation for X-format, and returns the program's layout. isX forces
// X-format parsing; otherwise the magic word decides. The caller must have already allocated
// progSize bytes at loadBase (via probeImage's sizing) before calling this.
func (m *Machine) loadImage(data []byte, loadBase uint32, forceX bool) (loaded, error) {
	isX := forceX || (len(data) >= 2 && bytes.Equal(data[:2], xMagic[:]))

	if !isX {
		return m.loadRFormat(data, loadBase)
	}

	return m.loadXFormat(data, loadBase)
}

func (m *Machine) loadRFormat(data []byte, loadBase uint32) (loaded, error) {
	if _, err := m.Mem.WriteBytes(loadBase, data, true); err != nil {
		return loaded{}, err
	}

	return loaded{
		entry:     loadBase,
		loadBase:  loadBase,
		progSize:  uint32(len(data)),
		progSize2: uint32(len(data)),
	}, nil
}

func (m *Machine) loadXFormat(data []byte, loadBase uint32) (loaded, error) {
	if len(data) < xHeaderSize {
		return loaded{}, fmt.Errorf("human68k: x-format header truncated")
	}

	hdr := data[:xHeaderSize]

	entryOff := binary.BigEndian.Uint32(hdr[8:12])
	codeSize := binary.BigEndian.Uint32(hdr[12:16])
	dataSize := binary.BigEndian.Uint32(hdr[16:20])
	bssSize := binary.BigEndian.Uint32(hdr[20:24])
	relSize := binary.BigEndian.Uint32(hdr[24:28])
	bindSize := binary.BigEndian.Uint32(hdr[60:64])

	if bindSize != 0 {
		return loaded{}, fmt.Errorf("human68k: bound-library executables are not supported")
	}

	body := data[xHeaderSize:]
	codeData := codeSize + dataSize

	if uint32(len(body)) < codeData {
		return loaded{}, fmt.Errorf("human68k: truncated program image")
	}

	if _, err := m.Mem.WriteBytes(loadBase, body[:codeData], true); err != nil {
		return loaded{}, err
	}

	relStart := codeData
	relEnd := relStart + relSize

	if uint32(len(body)) < relEnd {
		return loaded{}, fmt.Errorf("human68k: truncated relocation table")
	}

	if err := m.relocate(loadBase, body[relStart:relEnd]); err != nil {
		return loaded{}, err
	}

	for i := uint32(0); i < bssSize; i++ {
		if err := m.Mem.PokeB(loadBase+codeData+i, 0, true); err != nil {
			return loaded{}, err
		}
	}

	return loaded{
		entry:     loadBase + entryOff,
		loadBase:  loadBase,
		progSize:  codeData + bssSize,
		progSize2: codeData,
	}, nil
}

// relocate walks the 2-byte relocation-displacement stream described in SPEC_FULL.md 4.3: a
// special displacement value of 1 escapes to a 4-byte displacement in the following two words, and
// the low bit of each (possibly escaped) displacement selects a 2-byte or 4-byte fixup.
func (m *Machine) relocate(loadBase uint32, table []byte) error {
	pos := loadBase

	for i := 0; i+1 < len(table); {
		disp := uint32(binary.BigEndian.Uint16(table[i:]))
		i += 2

		if disp == 1 {
			if i+3 >= len(table) {
				return fmt.Errorf("human68k: truncated relocation escape")
			}

			disp = binary.BigEndian.Uint32(table[i:])
			i += 4
		}

		pos += disp

		if disp&1 != 0 {
			v, err := m.Mem.PeekW(pos, true)
			if err != nil {
				return err
			}

			if err := m.Mem.PokeW(pos, v+uint16(loadBase), true); err != nil {
				return err
			}
		} else {
			v, err := m.Mem.PeekL(pos, true)
			if err != nil {
				return err
			}

			if err := m.Mem.PokeL(pos, v+loadBase, true); err != nil {
				return err
			}
		}
	}

	return nil
}
