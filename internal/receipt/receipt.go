package receipt

import (
	"time"

	"github.com/zombor/amount-extractor/internal/extraction"
)

// Kind is the type of input an extraction was run on
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Extraction is a recorded pipeline run with its input and result
type Extraction struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Text        string            `json:"text,omitempty"`         // Submitted text for text extractions
	Filename    string            `json:"filename,omitempty"`     // Stored upload for image extractions
	ContentType string            `json:"content_type,omitempty"` // Upload content type
	Result      extraction.Result `json:"result"`
	CreatedAt   time.Time         `json:"created_at"`
}
