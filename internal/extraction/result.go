package extraction

// Label is the financial role of an amount on a receipt or invoice
type Label string

const (
	LabelTotalBill Label = "total_bill"
	LabelPaid      Label = "paid"
	LabelDue       Label = "due"
	LabelDiscount  Label = "discount"
	LabelOther     Label = "other_amount"
)

// Labels lists every label a classified amount may carry
var Labels = []Label{LabelTotalBill, LabelPaid, LabelDue, LabelDiscount, LabelOther}

// Valid reports whether l is one of the five known labels
func (l Label) Valid() bool {
	switch l {
	case LabelTotalBill, LabelPaid, LabelDue, LabelDiscount, LabelOther:
		return true
	}
	return false
}

// Status is the terminal state of a pipeline run
type Status string

const (
	StatusOK             Status = "ok"
	StatusNoAmountsFound Status = "no_amounts_found"
	StatusError          Status = "error"
)

// DefaultCurrency is reported when no currency is configured
const DefaultCurrency = "INR"

// NumericToken is a numeric word found in the text with the words preceding it
type NumericToken struct {
	Number  string `json:"number"`
	Context string `json:"context"`
}

// ClassifiedAmount is a parsed amount with its label and provenance
type ClassifiedAmount struct {
	Type   Label   `json:"type"`
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// Result is the single response object returned by the pipeline
type Result struct {
	Status   Status             `json:"status"`
	Currency string             `json:"currency,omitempty"`
	Amounts  []ClassifiedAmount `json:"amounts,omitempty"`
	Reason   string             `json:"reason,omitempty"`
}

// NoAmounts builds a no_amounts_found result
func NoAmounts(reason string) Result {
	return Result{Status: StatusNoAmountsFound, Reason: reason}
}

// Failed builds an error result
func Failed(reason string) Result {
	return Result{Status: StatusError, Reason: reason}
}
