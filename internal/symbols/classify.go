// Package symbols classifies dynamic symbol table entries as imports or
// exports.
package symbols

import (
	"debug/elf"
	"fmt"

	"github.com/ianlancetaylor/demangle"

	"symgrep/internal/elfx"
)

// Policy adjusts which defined symbols count as exports.
type Policy struct {
	// GlobalOnly drops defined symbols that are not visible outside the
	// binary: STB_LOCAL binding, or hidden/internal visibility. Undefined
	// symbols are always imports.
	GlobalOnly bool
}

// Symbol is a classified, named dynamic symbol. Name is owned and outlives
// the image it was read from.
type Symbol struct {
	Index      int
	Name       string
	Kind       Kind
	Bind       elf.SymBind
	Type       elf.SymType
	Visibility elf.SymVis
	Section    elf.SectionIndex
	Value      uint64
	Size       uint64
}

// Classify resolves the entry's name in strtab and assigns its kind.
//
// An entry whose section index is SHN_UNDEF is an Import; every other
// section index, including SHN_ABS and SHN_COMMON, is an Export. ok is false
// for entries with no name and for defined symbols the policy excludes. A
// name offset outside strtab is returned as an error so the caller can log it
// and move on.
func Classify(e elfx.SymbolEntry, strtab elfx.StringTable, policy Policy) (sym Symbol, ok bool, err error) {
	// st_name 0 means the symbol has no name, whatever strtab holds at
	// offset 0. This covers the null entry and section symbols.
	if e.NameOff == 0 {
		return Symbol{}, false, nil
	}
	name, err := strtab.Lookup(e.NameOff)
	if err != nil {
		return Symbol{}, false, fmt.Errorf("symbol %d: %w", e.Index, err)
	}
	if len(name) == 0 {
		return Symbol{}, false, nil
	}

	kind := Export
	if e.IsUndefined() {
		kind = Import
	}

	if kind == Export && policy.GlobalOnly && !externallyVisible(e) {
		return Symbol{}, false, nil
	}

	return Symbol{
		Index:      e.Index,
		Name:       string(name),
		Kind:       kind,
		Bind:       e.Bind(),
		Type:       e.Type(),
		Visibility: e.Visibility(),
		Section:    e.Section,
		Value:      e.Value,
		Size:       e.Size,
	}, true, nil
}

func externallyVisible(e elfx.SymbolEntry) bool {
	if e.Bind() == elf.STB_LOCAL {
		return false
	}
	switch e.Visibility() {
	case elf.STV_HIDDEN, elf.STV_INTERNAL:
		return false
	}
	return true
}

// Demangle returns the demangled form of a C++ or Rust symbol name, or name
// itself when it is not mangled.
func Demangle(name string) string {
	return demangle.Filter(name, demangle.NoClones)
}
