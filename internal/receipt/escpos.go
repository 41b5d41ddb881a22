package receipt

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

// ESC/POS commands. These bytes are what the printer firmware parses and
// must not change for a given layout.
var (
	CmdReset       = []byte{esc, '@'}
	CmdFontA       = []byte{esc, 'M', 0x00}
	CmdLeftMargin0 = []byte{gs, 'L', 0x00, 0x00}
	CmdAlignLeft   = []byte{esc, 'a', 0x00}
	CmdAlignCenter = []byte{esc, 'a', 0x01}
	CmdAlignRight  = []byte{esc, 'a', 0x02}
	CmdBoldOn      = []byte{esc, 'E', 0x01}
	CmdBoldOff     = []byte{esc, 'E', 0x00}
	CmdCut         = []byte{gs, 'V', 0x00}
)

// CmdPrintWidth sets the printable area in dots (GS W nL nH).
func CmdPrintWidth(dots int) []byte {
	return []byte{gs, 'W', byte(dots & 0xff), byte((dots >> 8) & 0xff)}
}

// CmdFeed prints and feeds n lines (ESC d n).
func CmdFeed(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > 255 {
		n = 255
	}
	return []byte{esc, 'd', byte(n)}
}

// CmdCodePage selects a character code table (ESC t n).
func CmdCodePage(n byte) []byte {
	return []byte{esc, 't', n}
}

type codePage struct {
	table *charmap.Charmap
	id    byte // ESC t argument
}

var codePages = map[string]codePage{
	"cp437":  {charmap.CodePage437, 0},
	"cp850":  {charmap.CodePage850, 2},
	"cp866":  {charmap.CodePage866, 17},
	"cp858":  {charmap.CodePage858, 19},
	"cp1252": {charmap.Windows1252, 16},
}

// lookupCodePage falls back to cp437 for unknown names.
func lookupCodePage(name string) codePage {
	if cp, ok := codePages[strings.ToLower(strings.TrimSpace(name))]; ok {
		return cp
	}
	return codePages["cp437"]
}

// SupportedCodePage reports whether name is a known code page.
func SupportedCodePage(name string) bool {
	_, ok := codePages[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// encode converts text to the code page byte by byte. Control characters
// become spaces so receipt text cannot issue printer commands. Runes the
// table cannot represent print as '?'.
func (cp codePage) encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			out = append(out, ' ')
			continue
		}
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if b, ok := cp.table.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}
