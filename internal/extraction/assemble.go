package extraction

import (
	"fmt"
	"strings"
)

// Assemble pairs tokens with their labels into an ok result.
// tokens and labels must be the same length; labels[i] belongs to tokens[i].
func Assemble(tokens []NumericToken, labels []Label, currency string) Result {
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(tokens) != len(labels) {
		return Failed(fmt.Sprintf("assembling amounts: %d tokens but %d labels", len(tokens), len(labels)))
	}

	amounts := make([]ClassifiedAmount, 0, len(tokens))
	for i, token := range tokens {
		value, err := ParseValue(token.Number)
		if err != nil {
			return Failed(err.Error())
		}
		amounts = append(amounts, ClassifiedAmount{
			Type:   ReduceLabel(labels[i], nil),
			Value:  value,
			Source: sourceOf(token),
		})
	}

	return Result{
		Status:   StatusOK,
		Currency: currency,
		Amounts:  amounts,
	}
}

// sourceOf renders the provenance snippet for an amount
func sourceOf(token NumericToken) string {
	return fmt.Sprintf("text: '%s'", strings.TrimSpace(token.Context+" "+token.Number))
}
