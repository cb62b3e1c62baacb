package elfx

import (
	"debug/elf"
	"encoding/binary"
)

const (
	sym32Size = elf.Sym32Size
	sym64Size = elf.Sym64Size
)

// SymbolEntry is one raw entry of the dynamic symbol table.
type SymbolEntry struct {
	Index   int
	NameOff uint32
	Info    uint8
	Other   uint8
	Section elf.SectionIndex
	Value   uint64
	Size    uint64
}

func (e SymbolEntry) Bind() elf.SymBind { return elf.ST_BIND(e.Info) }

func (e SymbolEntry) Type() elf.SymType { return elf.ST_TYPE(e.Info) }

func (e SymbolEntry) Visibility() elf.SymVis { return elf.ST_VISIBILITY(e.Other) }

// IsUndefined reports whether the entry's section index is SHN_UNDEF.
func (e SymbolEntry) IsUndefined() bool { return e.Section == elf.SHN_UNDEF }

// SymbolTable is a view over the fixed-size entries of a symbol section.
// A trailing partial entry is ignored.
type SymbolTable struct {
	data    []byte
	entsize uint64
	class   elf.Class
	order   binary.ByteOrder
}

// Len returns the number of whole entries, including the null entry at
// index 0.
func (t SymbolTable) Len() int {
	if t.entsize == 0 {
		return 0
	}
	return int(uint64(len(t.data)) / t.entsize)
}

// Entry decodes entry i. It panics if i is not in [0, Len()).
func (t SymbolTable) Entry(i int) SymbolEntry {
	off := uint64(i) * t.entsize
	b := t.data[off : off+t.entsize]
	o := t.order

	if t.class == elf.ELFCLASS32 {
		// st_name, st_value, st_size, st_info, st_other, st_shndx
		return SymbolEntry{
			Index:   i,
			NameOff: o.Uint32(b[0:4]),
			Value:   uint64(o.Uint32(b[4:8])),
			Size:    uint64(o.Uint32(b[8:12])),
			Info:    b[12],
			Other:   b[13],
			Section: elf.SectionIndex(o.Uint16(b[14:16])),
		}
	}
	// st_name, st_info, st_other, st_shndx, st_value, st_size
	return SymbolEntry{
		Index:   i,
		NameOff: o.Uint32(b[0:4]),
		Info:    b[4],
		Other:   b[5],
		Section: elf.SectionIndex(o.Uint16(b[6:8])),
		Value:   o.Uint64(b[8:16]),
		Size:    o.Uint64(b[16:24]),
	}
}
