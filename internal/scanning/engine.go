package scanning

import (
	"fmt"
)

// OCRConfig selects the engine used to turn images into text
type OCRConfig struct {
	// Engine is one of "tesseract" (default), "gemini" or "ollama"
	Engine            string
	TesseractBinary   string
	TesseractLanguage string
	GeminiKey         string
	GeminiModel       string
	OllamaURL         string
	// OllamaModel must be a vision model; empty means the generator's model
	OllamaModel string
}

// NewOCREngine builds the configured OCR engine.
// The gemini and ollama engines reuse gen when it is a client of the same kind,
// so callers must only close the result when it is not gen.
func NewOCREngine(cfg OCRConfig, gen Generator) (OCREngine, error) {
	switch cfg.Engine {
	case "", "tesseract":
		return NewTesseract(cfg.TesseractBinary, cfg.TesseractLanguage), nil
	case "gemini":
		if g, ok := gen.(*Gemini); ok {
			return g, nil
		}
		g, err := NewGemini(cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("creating gemini OCR engine: %w", err)
		}
		return g, nil
	case "ollama":
		if o, ok := gen.(*Ollama); ok {
			if cfg.OllamaModel == "" || cfg.OllamaModel == o.model {
				return o, nil
			}
			// Same server, different model; share the HTTP client
			return &Ollama{baseURL: o.baseURL, model: cfg.OllamaModel, client: o.client}, nil
		}
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q: valid engines are tesseract, gemini or ollama", cfg.Engine)
	}
}
