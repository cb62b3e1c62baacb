package symbols

import "fmt"

// Kind classifies a dynamic symbol relative to the binary that carries it.
type Kind int

const (
	// Import is a symbol the binary references but does not define; the
	// dynamic loader resolves it from another module.
	Import Kind = iota

	// Export is a symbol defined in one of the binary's own sections.
	Export
)

// String returns the literal output tag, IMPORT or EXPORT.
func (k Kind) String() string {
	switch k {
	case Import:
		return "IMPORT"
	case Export:
		return "EXPORT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText encodes the kind as its tag.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Import, Export:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("invalid symbol kind %d", int(k))
}

// UnmarshalText decodes IMPORT or EXPORT.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "IMPORT":
		*k = Import
	case "EXPORT":
		*k = Export
	default:
		return fmt.Errorf("invalid symbol kind %q", text)
	}
	return nil
}
