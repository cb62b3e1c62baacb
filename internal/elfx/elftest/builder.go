// Package elftest synthesizes small ELF images with a dynamic symbol table
// for tests. The images are valid enough for debug/elf to read them, which
// lets tests cross-check the parser against the standard library.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lunixbochs/struc"
)

// Symbol describes one dynamic symbol to emit.
type Symbol struct {
	Name    string
	Bind    elf.SymBind
	Type    elf.SymType
	Vis     elf.SymVis
	Section elf.SectionIndex
	Value   uint64
	Size    uint64

	// NameOff, when non-nil, is written as st_name instead of the offset
	// of Name in .dynstr.
	NameOff *uint32
}

// Import returns a global undefined function symbol.
func Import(name string) Symbol {
	return Symbol{Name: name, Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Section: elf.SHN_UNDEF}
}

// WeakImport returns a weak undefined symbol.
func WeakImport(name string) Symbol {
	return Symbol{Name: name, Bind: elf.STB_WEAK, Type: elf.STT_NOTYPE, Section: elf.SHN_UNDEF}
}

// Export returns a global function symbol defined in section 1.
func Export(name string) Symbol {
	return Symbol{Name: name, Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Section: 1, Value: 0x1000, Size: 16}
}

// Config describes the image to build.
type Config struct {
	Class elf.Class // default ELFCLASS64
	Data  elf.Data  // default ELFDATA2LSB

	Symbols []Symbol

	// NoDynsym omits the SHT_DYNSYM section.
	NoDynsym bool
}

// Section indexes in built images. .dynstr deliberately precedes .dynsym so
// that parsers must follow sh_link rather than assume table order.
const (
	DynstrIndex   = 1
	DynsymIndex   = 2
	ShstrtabIndex = 3
)

// Image is a built ELF file.
type Image struct {
	Data  []byte
	Class elf.Class
	Order binary.ByteOrder

	Shoff     uint64
	Shentsize uint64
}

// header32 and header64 are the fixed header after e_ident.
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

type sectionSpec struct {
	name    uint32
	typ     elf.SectionType
	off     uint64
	size    uint64
	link    uint32
	info    uint32
	align   uint64
	entsize uint64
}

// Build encodes cfg as an ELF shared object.
func Build(cfg Config) *Image {
	if cfg.Class == elf.ELFCLASSNONE {
		cfg.Class = elf.ELFCLASS64
	}
	if cfg.Data == elf.ELFDATANONE {
		cfg.Data = elf.ELFDATA2LSB
	}
	var order binary.ByteOrder = binary.LittleEndian
	if cfg.Data == elf.ELFDATA2MSB {
		order = binary.BigEndian
	}
	is64 := cfg.Class == elf.ELFCLASS64

	ehsize, shentsize, symsize := uint64(52), uint64(40), uint64(elf.Sym32Size)
	if is64 {
		ehsize, shentsize, symsize = 64, 64, elf.Sym64Size
	}

	// .dynstr
	dynstr := []byte{0}
	nameOffs := make([]uint32, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		if s.Name == "" {
			continue
		}
		nameOffs[i] = uint32(len(dynstr))
		dynstr = append(dynstr, s.Name...)
		dynstr = append(dynstr, 0)
	}

	// .dynsym, entry 0 is the null symbol
	dynsym := make([]byte, symsize*uint64(len(cfg.Symbols)+1))
	for i, s := range cfg.Symbols {
		nameOff := nameOffs[i]
		if s.NameOff != nil {
			nameOff = *s.NameOff
		}
		b := dynsym[symsize*uint64(i+1):]
		info := elf.ST_INFO(s.Bind, s.Type)
		if is64 {
			order.PutUint32(b[0:], nameOff)
			b[4] = info
			b[5] = byte(s.Vis)
			order.PutUint16(b[6:], uint16(s.Section))
			order.PutUint64(b[8:], s.Value)
			order.PutUint64(b[16:], s.Size)
		} else {
			order.PutUint32(b[0:], nameOff)
			order.PutUint32(b[4:], uint32(s.Value))
			order.PutUint32(b[8:], uint32(s.Size))
			b[12] = info
			b[13] = byte(s.Vis)
			order.PutUint16(b[14:], uint16(s.Section))
		}
	}

	shstrtab := []byte("\x00.dynstr\x00.dynsym\x00.shstrtab\x00")
	const (
		nameDynstr   = 1
		nameDynsym   = 9
		nameShstrtab = 17
	)

	var body bytes.Buffer
	body.Write(make([]byte, ehsize))

	dynstrOff := uint64(body.Len())
	body.Write(dynstr)
	pad(&body, 8)
	dynsymOff := uint64(body.Len())
	body.Write(dynsym)
	shstrOff := uint64(body.Len())
	body.Write(shstrtab)
	pad(&body, 8)
	shoff := uint64(body.Len())

	sections := []sectionSpec{
		{},
		{name: nameDynstr, typ: elf.SHT_STRTAB, off: dynstrOff, size: uint64(len(dynstr)), align: 1},
		{name: nameDynsym, typ: elf.SHT_DYNSYM, off: dynsymOff, size: uint64(len(dynsym)),
			link: DynstrIndex, info: 1, align: 8, entsize: symsize},
		{name: nameShstrtab, typ: elf.SHT_STRTAB, off: shstrOff, size: uint64(len(shstrtab)), align: 1},
	}
	shstrndx := uint16(ShstrtabIndex)
	if cfg.NoDynsym {
		sections = []sectionSpec{sections[0], sections[1], sections[3]}
		shstrndx = 2
	}

	for _, sh := range sections {
		writeSection(&body, is64, order, sh)
	}

	machine := elf.EM_X86_64
	switch {
	case is64 && order == binary.BigEndian:
		machine = elf.EM_PPC64
	case !is64 && order == binary.LittleEndian:
		machine = elf.EM_386
	case !is64:
		machine = elf.EM_MIPS
	}

	var ident [16]byte
	copy(ident[:], "\x7fELF")
	ident[elf.EI_CLASS] = byte(cfg.Class)
	ident[elf.EI_DATA] = byte(cfg.Data)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var hdr bytes.Buffer
	var err error
	if is64 {
		err = struc.PackWithOrder(&hdr, &header64{
			Type: uint16(elf.ET_DYN), Machine: uint16(machine), Version: uint32(elf.EV_CURRENT),
			Shoff: shoff, Ehsize: uint16(ehsize), Shentsize: uint16(shentsize),
			Shnum: uint16(len(sections)), Shstrndx: shstrndx,
		}, order)
	} else {
		err = struc.PackWithOrder(&hdr, &header32{
			Type: uint16(elf.ET_DYN), Machine: uint16(machine), Version: uint32(elf.EV_CURRENT),
			Shoff: uint32(shoff), Ehsize: uint16(ehsize), Shentsize: uint16(shentsize),
			Shnum: uint16(len(sections)), Shstrndx: shstrndx,
		}, order)
	}
	if err != nil {
		panic(fmt.Sprintf("elftest: pack header: %v", err))
	}

	data := body.Bytes()
	copy(data, ident[:])
	copy(data[elf.EI_NIDENT:], hdr.Bytes())
	return &Image{Data: data, Class: cfg.Class, Order: order, Shoff: shoff, Shentsize: shentsize}
}

func writeSection(w *bytes.Buffer, is64 bool, order binary.ByteOrder, sh sectionSpec) {
	if is64 {
		b := make([]byte, 64)
		order.PutUint32(b[0:], sh.name)
		order.PutUint32(b[4:], uint32(sh.typ))
		order.PutUint64(b[24:], sh.off)
		order.PutUint64(b[32:], sh.size)
		order.PutUint32(b[40:], sh.link)
		order.PutUint32(b[44:], sh.info)
		order.PutUint64(b[48:], sh.align)
		order.PutUint64(b[56:], sh.entsize)
		w.Write(b)
		return
	}
	b := make([]byte, 40)
	order.PutUint32(b[0:], sh.name)
	order.PutUint32(b[4:], uint32(sh.typ))
	order.PutUint32(b[16:], uint32(sh.off))
	order.PutUint32(b[20:], uint32(sh.size))
	order.PutUint32(b[24:], sh.link)
	order.PutUint32(b[28:], sh.info)
	order.PutUint32(b[32:], uint32(sh.align))
	order.PutUint32(b[36:], uint32(sh.entsize))
	w.Write(b)
}

func pad(w *bytes.Buffer, align int) {
	for w.Len()%align != 0 {
		w.WriteByte(0)
	}
}

// SetShoff overwrites e_shoff.
func (im *Image) SetShoff(v uint64) {
	if im.Class == elf.ELFCLASS64 {
		im.Order.PutUint64(im.Data[40:], v)
		return
	}
	im.Order.PutUint32(im.Data[32:], uint32(v))
}

// SetShentsize overwrites e_shentsize.
func (im *Image) SetShentsize(v uint16) {
	if im.Class == elf.ELFCLASS64 {
		im.Order.PutUint16(im.Data[58:], v)
		return
	}
	im.Order.PutUint16(im.Data[46:], v)
}

// SetSectionOffset overwrites sh_offset of section idx.
func (im *Image) SetSectionOffset(idx int, v uint64) {
	b := im.Data[im.Shoff+uint64(idx)*im.Shentsize:]
	if im.Class == elf.ELFCLASS64 {
		im.Order.PutUint64(b[24:], v)
		return
	}
	im.Order.PutUint32(b[16:], uint32(v))
}

// SetSectionSize overwrites sh_size of section idx.
func (im *Image) SetSectionSize(idx int, v uint64) {
	b := im.Data[im.Shoff+uint64(idx)*im.Shentsize:]
	if im.Class == elf.ELFCLASS64 {
		im.Order.PutUint64(b[32:], v)
		return
	}
	im.Order.PutUint32(b[20:], uint32(v))
}

// SetSectionLink overwrites sh_link of section idx.
func (im *Image) SetSectionLink(idx int, v uint32) {
	b := im.Data[im.Shoff+uint64(idx)*im.Shentsize:]
	if im.Class == elf.ELFCLASS64 {
		im.Order.PutUint32(b[40:], v)
		return
	}
	im.Order.PutUint32(b[24:], v)
}

// WriteFile writes the image to dir/name and returns its path.
func (im *Image) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, im.Data)
}

// WriteFile writes data to dir/name, creating parent directories.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
