package render

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

const ansiReset = "\x1b[0m"

// runeWidth returns the terminal cell width of one rune. Emoji and East
// Asian wide characters occupy two cells; joiners and variation selectors
// occupy none.
func runeWidth(r rune) int {
	switch {
	case r < 32 || r == 127:
		return 0
	case r >= 0xFE00 && r <= 0xFE0F:
		return 0
	case r == 0x200B || r == 0x200C || r == 0x200D || r == 0xFEFF || r == 0x00AD:
		return 0
	case r >= 0x1F000:
		return 2
	case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
		return 2
	case r >= 0x2600 && r <= 0x27BF && r != 0x2713 && r != 0x2717:
		return 2
	default:
		return 1
	}
}

// DisplayWidth measures the cell width of text, ignoring ANSI escapes.
func DisplayWidth(text string) int {
	width := 0
	for _, r := range ansiPattern.ReplaceAllString(text, "") {
		width += runeWidth(r)
	}
	return width
}

// TruncateLine clips a line to cols terminal cells, preserving ANSI escape
// sequences and closing any open style.
func TruncateLine(text string, cols int) string {
	if cols <= 0 || DisplayWidth(text) <= cols {
		return text
	}
	var b strings.Builder
	width := 0
	i := 0
	for i < len(text) {
		if loc := ansiPattern.FindStringIndex(text[i:]); loc != nil && loc[0] == 0 {
			b.WriteString(text[i : i+loc[1]])
			i += loc[1]
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		w := runeWidth(r)
		if width+w > cols {
			b.WriteString(ansiReset)
			return b.String()
		}
		b.WriteString(text[i : i+size])
		width += w
		i += size
	}
	return b.String()
}
