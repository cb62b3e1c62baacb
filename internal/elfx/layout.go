package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/lunixbochs/struc"
)

const (
	identSize = elf.EI_NIDENT

	header32Size  = 52
	header64Size  = 64
	section32Size = 40
	section64Size = 64
)

// header32 and header64 mirror the fixed ELF header after e_ident.
type header32 struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type header64 struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type section32 struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

type section64 struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// FileHeader holds the header fields the parser needs, normalized across
// classes.
type FileHeader struct {
	Class     elf.Class
	Data      elf.Data
	ByteOrder binary.ByteOrder
	Type      elf.Type
	Machine   elf.Machine
	Shoff     uint64
	Shentsize uint64
	Shnum     uint64
}

// SectionHeader is a class-independent section header.
type SectionHeader struct {
	Index   int
	Type    elf.SectionType
	Offset  uint64
	Size    uint64
	Link    uint32
	Entsize uint64
}

// Layout exposes the dynamic symbol table and its linked string table.
type Layout struct {
	Header  FileHeader
	Symbols SymbolTable
	Strings StringTable

	// DynsymIndex is the section index of SHT_DYNSYM, 0 when absent.
	DynsymIndex int
}

// HasDynamic reports whether the file has a dynamic symbol table. Its
// absence is not an error: static binaries and objects legitimately have
// none and yield an empty symbol sequence.
func (l *Layout) HasDynamic() bool {
	return l.DynsymIndex != 0
}

// Parse reads the ELF header and section header table of im and locates the
// dynamic symbol table and the string table named by its sh_link. Every
// offset taken from the file is checked against the image length before use.
func Parse(im *Image) (*Layout, error) {
	hdr, err := parseHeader(im.Data)
	if err != nil {
		return nil, err
	}

	l := &Layout{Header: hdr}
	if hdr.Shoff == 0 {
		return l, nil
	}

	p := &sectionReader{im: im, hdr: hdr}
	if err := p.init(); err != nil {
		return nil, err
	}
	l.Header.Shnum = p.count

	for i := uint64(1); i < p.count; i++ {
		sh, err := p.section(i)
		if err != nil {
			return nil, err
		}
		if sh.Type != elf.SHT_DYNSYM {
			continue
		}
		return p.layoutFor(l, sh)
	}
	return l, nil
}

func parseHeader(data []byte) (FileHeader, error) {
	if len(data) < identSize {
		return FileHeader{}, malformed("file is %d bytes, shorter than e_ident", len(data))
	}
	if !bytes.Equal(data[:len(elfMagic)], elfMagic) {
		return FileHeader{}, ErrNotELF
	}

	hdr := FileHeader{
		Class: elf.Class(data[elf.EI_CLASS]),
		Data:  elf.Data(data[elf.EI_DATA]),
	}
	switch hdr.Data {
	case elf.ELFDATA2LSB:
		hdr.ByteOrder = binary.LittleEndian
	case elf.ELFDATA2MSB:
		hdr.ByteOrder = binary.BigEndian
	default:
		return FileHeader{}, malformed("unknown data encoding %d", data[elf.EI_DATA])
	}

	switch hdr.Class {
	case elf.ELFCLASS32:
		if len(data) < header32Size {
			return FileHeader{}, malformed("32-bit header truncated at %d bytes", len(data))
		}
		var h header32
		if err := struc.UnpackWithOrder(bytes.NewReader(data[identSize:header32Size]), &h, hdr.ByteOrder); err != nil {
			return FileHeader{}, malformed("decode header: %v", err)
		}
		hdr.Type = elf.Type(h.Type)
		hdr.Machine = elf.Machine(h.Machine)
		hdr.Shoff = uint64(h.Shoff)
		hdr.Shentsize = uint64(h.Shentsize)
		hdr.Shnum = uint64(h.Shnum)
	case elf.ELFCLASS64:
		if len(data) < header64Size {
			return FileHeader{}, malformed("64-bit header truncated at %d bytes", len(data))
		}
		var h header64
		if err := struc.UnpackWithOrder(bytes.NewReader(data[identSize:header64Size]), &h, hdr.ByteOrder); err != nil {
			return FileHeader{}, malformed("decode header: %v", err)
		}
		hdr.Type = elf.Type(h.Type)
		hdr.Machine = elf.Machine(h.Machine)
		hdr.Shoff = h.Shoff
		hdr.Shentsize = uint64(h.Shentsize)
		hdr.Shnum = uint64(h.Shnum)
	default:
		return FileHeader{}, malformed("unknown class %d", data[elf.EI_CLASS])
	}
	return hdr, nil
}

// sectionReader decodes entries of a bounds-checked section header table.
type sectionReader struct {
	im    *Image
	hdr   FileHeader
	size  uint64
	count uint64
}

func (p *sectionReader) init() error {
	p.size = section32Size
	if p.hdr.Class == elf.ELFCLASS64 {
		p.size = section64Size
	}
	if p.hdr.Shentsize < p.size {
		return malformed("e_shentsize %d smaller than %d", p.hdr.Shentsize, p.size)
	}

	p.count = p.hdr.Shnum
	if p.count == 0 {
		// Extended numbering: the real count lives in section 0's sh_size.
		sh0, err := p.decode(0)
		if err != nil {
			return err
		}
		p.count = sh0.Size
		if p.count == 0 {
			return nil
		}
	}

	if _, ok := tableSpan(p.hdr.Shoff, p.count, p.hdr.Shentsize, uint64(len(p.im.Data))); !ok {
		return malformed("section table [%#x + %d*%d] past end of file (%d bytes)",
			p.hdr.Shoff, p.count, p.hdr.Shentsize, len(p.im.Data))
	}
	return nil
}

func (p *sectionReader) section(i uint64) (SectionHeader, error) {
	if i >= p.count {
		return SectionHeader{}, malformed("section index %d out of range (%d sections)", i, p.count)
	}
	return p.decode(i)
}

func (p *sectionReader) decode(i uint64) (SectionHeader, error) {
	off := p.hdr.Shoff + i*p.hdr.Shentsize
	raw, ok := p.im.Slice(off, p.size)
	if !ok {
		return SectionHeader{}, malformed("section header %d at %#x past end of file", i, off)
	}
	r := bytes.NewReader(raw)
	sh := SectionHeader{Index: int(i)}
	if p.hdr.Class == elf.ELFCLASS32 {
		var s section32
		if err := struc.UnpackWithOrder(r, &s, p.hdr.ByteOrder); err != nil {
			return SectionHeader{}, malformed("decode section %d: %v", i, err)
		}
		sh.Type = elf.SectionType(s.Type)
		sh.Offset = uint64(s.Offset)
		sh.Size = uint64(s.Size)
		sh.Link = s.Link
		sh.Entsize = uint64(s.Entsize)
		return sh, nil
	}
	var s section64
	if err := struc.UnpackWithOrder(r, &s, p.hdr.ByteOrder); err != nil {
		return SectionHeader{}, malformed("decode section %d: %v", i, err)
	}
	sh.Type = elf.SectionType(s.Type)
	sh.Offset = s.Offset
	sh.Size = s.Size
	sh.Link = s.Link
	sh.Entsize = s.Entsize
	return sh, nil
}

// layoutFor fills l from the dynamic symbol section sym and the string
// table it links to.
func (p *sectionReader) layoutFor(l *Layout, sym SectionHeader) (*Layout, error) {
	want := uint64(sym32Size)
	if p.hdr.Class == elf.ELFCLASS64 {
		want = sym64Size
	}
	entsize := sym.Entsize
	if entsize == 0 {
		entsize = want
	}
	if entsize < want {
		return nil, malformed("dynsym sh_entsize %d smaller than %d", entsize, want)
	}

	if sym.Link == 0 || uint64(sym.Link) >= p.count {
		return nil, malformed("dynsym sh_link %d out of range (%d sections)", sym.Link, p.count)
	}
	str, err := p.section(uint64(sym.Link))
	if err != nil {
		return nil, err
	}
	if str.Type != elf.SHT_STRTAB {
		return nil, malformed("dynsym sh_link %d is %s, not SHT_STRTAB", sym.Link, str.Type)
	}

	symData, ok := p.im.Slice(sym.Offset, sym.Size)
	if !ok {
		return nil, truncated("dynsym [%#x+%#x] past end of file", sym.Offset, sym.Size)
	}
	strData, ok := p.im.Slice(str.Offset, str.Size)
	if !ok {
		return nil, truncated("dynstr [%#x+%#x] past end of file", str.Offset, str.Size)
	}

	l.DynsymIndex = sym.Index
	l.Symbols = SymbolTable{
		data:    symData,
		entsize: entsize,
		class:   p.hdr.Class,
		order:   p.hdr.ByteOrder,
	}
	l.Strings = StringTable{data: strData}
	return l, nil
}

// tableSpan returns off+count*size when that end lies within limit, checking
// each step for overflow.
func tableSpan(off, count, size, limit uint64) (uint64, bool) {
	if off > limit {
		return 0, false
	}
	if size != 0 && count > (limit-off)/size {
		return 0, false
	}
	return off + count*size, true
}
