package scanning

import (
	"context"
	"errors"
	"image"
)

// ErrEngineUnavailable is returned when the OCR engine is not installed or cannot be started
var ErrEngineUnavailable = errors.New("OCR engine unavailable: tesseract is not installed or not on PATH")

// Generator defines the interface for text generation services used to classify amounts
type Generator interface {
	// Generate sends a prompt and returns the model's free-text reply
	Generate(ctx context.Context, prompt string) (string, error)
	// Close closes the generator and releases resources
	Close() error
}

// OCREngine converts a decoded image into text
type OCREngine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}
