package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/amount-extractor/internal/scanning"
)

const (
	reasonNoTokens = "document too noisy"
	reasonNoText   = "No text could be extracted from image"
)

// Config holds the pipeline settings that are not tied to an external service
type Config struct {
	Currency string
	Window   int
}

// Pipeline extracts classified amounts from text and images
type Pipeline struct {
	classifier *Classifier
	ocr        scanning.OCREngine
	currency   string
	window     int
}

// NewPipeline creates a new Pipeline
func NewPipeline(classifier *Classifier, ocr scanning.OCREngine, cfg Config) *Pipeline {
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Pipeline{
		classifier: classifier,
		ocr:        ocr,
		currency:   cfg.Currency,
		window:     cfg.Window,
	}
}

// ProcessText extracts and classifies the amounts in text
func (p *Pipeline) ProcessText(ctx context.Context, text string) Result {
	result := p.processText(ctx, text)
	resultsTotal.WithLabelValues("text", string(result.Status)).Inc()
	return result
}

// ProcessImage runs OCR on an image and feeds the text through ProcessText's pipeline.
// It never panics or returns an error; failures are reported as StatusError.
func (p *Pipeline) ProcessImage(ctx context.Context, r io.Reader) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Recovered from panic while processing image", "panic", rec)
			result = Failed(fmt.Sprintf("processing image: %v", rec))
		}
		resultsTotal.WithLabelValues("image", string(result.Status)).Inc()
	}()

	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return Failed(fmt.Sprintf("rewinding image: %v", err))
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Failed(fmt.Sprintf("reading image: %v", err))
	}

	img, err := scanning.DecodeImage(data)
	if err != nil {
		return Failed(err.Error())
	}

	start := time.Now()
	text, err := p.ocr.Recognize(ctx, scanning.PrepareForOCR(img))
	ocrDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, scanning.ErrEngineUnavailable) {
			slog.Error("OCR engine unavailable", "error", err)
			return Failed(err.Error())
		}
		return Failed(fmt.Sprintf("OCR failed: %v", err))
	}

	if strings.TrimSpace(text) == "" {
		return NoAmounts(reasonNoText)
	}

	return p.processText(ctx, text)
}

func (p *Pipeline) processText(ctx context.Context, text string) Result {
	tokens := Tokenize(Normalize(text), p.window)
	if len(tokens) == 0 {
		return NoAmounts(reasonNoTokens)
	}

	labels := p.classifier.ClassifyAll(ctx, tokens)
	return Assemble(tokens, labels, p.currency)
}
