package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultWindow is the number of preceding words kept as context
const DefaultWindow = 5

var numericToken = regexp.MustCompile(`^\d+\.?\d*%?$`)

// Tokenize returns every whitespace-delimited word that is a number or percentage,
// in order of appearance, with up to window preceding words as context
func Tokenize(text string, window int) []NumericToken {
	if window <= 0 {
		window = DefaultWindow
	}

	words := strings.Fields(text)
	var tokens []NumericToken
	for i, word := range words {
		if !numericToken.MatchString(word) {
			continue
		}
		start := max(i-window, 0)
		tokens = append(tokens, NumericToken{
			Number:  word,
			Context: strings.Join(words[start:i], " "),
		})
	}
	return tokens
}

// ParseValue converts a token number into a float, dropping a trailing percent sign
// and a dangling decimal point ("40." reads as 40)
func ParseValue(number string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSuffix(number, "%"), "."))
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", number, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parsing amount %q: negative value", number)
	}
	return d.InexactFloat64(), nil
}
