package langcodes

import (
	"fmt"
	"strings"
)

// NamingType selects which representation a subtitle filename carries.
type NamingType string

const (
	NamingISO6391  NamingType = "ISO_639_1"
	NamingISO6392T NamingType = "ISO_639_2_T"
	NamingISO6392B NamingType = "ISO_639_2_B"
	NamingName     NamingType = "NAME"
	NamingNative   NamingType = "NATIVE"
)

// ParseNamingType validates a configured naming type string.
func ParseNamingType(value string) (NamingType, error) {
	switch NamingType(strings.ToUpper(strings.TrimSpace(value))) {
	case NamingISO6391:
		return NamingISO6391, nil
	case NamingISO6392T:
		return NamingISO6392T, nil
	case NamingISO6392B, "":
		return NamingISO6392B, nil
	case NamingName:
		return NamingName, nil
	case NamingNative:
		return NamingNative, nil
	default:
		return "", fmt.Errorf("unknown subtitle naming type %q", value)
	}
}

// Token returns the filename token for the language under the given
// naming type. The unknown sentinel yields an empty token.
func (l Language) Token(naming NamingType) string {
	if l.IsZero() {
		return ""
	}
	switch naming {
	case NamingISO6391:
		return l.iso6391
	case NamingISO6392T:
		return l.iso6392t
	case NamingName:
		return l.name
	case NamingNative:
		return l.native
	default:
		return l.iso6392b
	}
}
