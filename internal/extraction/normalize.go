package extraction

import "strings"

// Normalize rewrites characters OCR commonly confuses with digits.
// The map is applied to every character, so ordinary words are rewritten too
// ("Total" becomes "T0ta1"). Callers depend on this exact behavior.
func Normalize(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'O', 'o':
			return '0'
		case 'l', 'I', '|':
			return '1'
		}
		return r
	}, text)
}
