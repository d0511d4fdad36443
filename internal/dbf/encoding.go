package dbf

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultEncoding is the codepage used for names and values when neither an
// explicit encoding nor code page detection selects another.
var DefaultEncoding encoding.Encoding = charmap.Windows1252

// languageDrivers maps the header language driver byte (offset 29) to the
// codepages seen in practice. Unknown marks fall back to the configured encoding.
var languageDrivers = map[byte]encoding.Encoding{
	0x01: charmap.CodePage437,
	0x02: charmap.CodePage850,
	0x03: charmap.Windows1252,
	0x08: charmap.CodePage865,
	0x57: charmap.Windows1252,
	0x64: charmap.CodePage852,
	0x65: charmap.CodePage866,
	0x66: charmap.CodePage865,
	0x6A: charmap.CodePage437,
	0x7D: charmap.Windows1255,
	0x7E: charmap.Windows1256,
	0xC8: charmap.Windows1250,
	0xC9: charmap.Windows1251,
	0xCA: charmap.Windows1254,
	0xCB: charmap.Windows1253,
}

// EncodingForLanguageDriver returns the codepage for a header language
// driver mark, or nil when the mark is zero or unknown.
func EncodingForLanguageDriver(mark byte) encoding.Encoding {
	return languageDrivers[mark]
}

// EncodingByName resolves an IANA or common codepage name
// ("windows-1252", "cp850", "ISO-8859-1") to a single-byte encoding.
func EncodingByName(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return DefaultEncoding, nil
	}

	// ianaindex knows "IBM850" but not the "cp850" spelling used by dBase tools
	lower := strings.ToLower(n)
	if strings.HasPrefix(lower, "cp") && len(lower) > 2 {
		n = "IBM" + n[2:]
	}

	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil {
		return nil, fmt.Errorf("unknown codepage %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported codepage %q", name)
	}
	if _, ok := enc.(*charmap.Charmap); !ok {
		return nil, fmt.Errorf("codepage %q is not a single-byte encoding", name)
	}
	return enc, nil
}
