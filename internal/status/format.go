package status

import "strings"

// StripFormatting removes chat formatting sequences (a section sign followed by
// a color or style code) from s.
func StripFormatting(s string) string {
	if !strings.ContainsRune(s, '§') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '§' && i+1 < len(runes) && isFormatCode(runes[i+1]) {
			i++
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

func isFormatCode(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		return true
	case r >= 'k' && r <= 'o', r >= 'K' && r <= 'O':
		return true
	case r == 'r', r == 'R':
		return true
	}
	return false
}

// PlayerRef is one entry of a server's player sample.
type PlayerRef struct {
	ID      string `json:"id"`
	RawName string `json:"name"`
}

// DisplayName is the player name without formatting codes.
func (p PlayerRef) DisplayName() string {
	return StripFormatting(p.RawName)
}
