package scanning

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks a vision model to act as a plain OCR engine
const transcribePrompt = `Transcribe all text visible in this receipt or invoice image exactly as printed.
Keep the original line order and keep every number exactly as written.
Do not summarize, translate, or add commentary. If there is no readable text, reply with nothing.`

// Gemini implements the Generator and OCREngine interfaces using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Labels should not drift between identical requests
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Generate sends a text prompt and returns the reply
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.generate(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Recognize transcribes the text of an image with the vision model
func (g *Gemini) Recognize(ctx context.Context, img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", nil
	}
	pngData, err := EncodePNG(img)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	text, err := g.generate(ctx, genai.ImageData("png", pngData), genai.Text(transcribePrompt))
	if err != nil {
		return "", err
	}
	return cleanReply(text), nil
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}
	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
