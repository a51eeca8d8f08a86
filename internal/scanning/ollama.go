package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
)

const classifierSystemPrompt = "You classify monetary amounts found on receipts and invoices. You answer with a single label and nothing else."

// Ollama implements the Generator and OCREngine interfaces using Ollama
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama instance.
// Text classification works with any chat model (llama3, mistral, qwen2.5);
// Recognize needs a vision model such as llava or qwen2-vl.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.2"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // local models can be slow to load
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Generate sends a text prompt and returns the reply
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := o.chat(ctx, []ollamaMessage{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Recognize transcribes the text of an image with a vision model
func (o *Ollama) Recognize(ctx context.Context, img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", nil
	}
	pngData, err := EncodePNG(img)
	if err != nil {
		return "", err
	}

	text, err := o.chat(ctx, []ollamaMessage{
		{
			Role:    "user",
			Content: transcribePrompt,
			Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
		},
	})
	if err != nil {
		return "", err
	}
	return cleanReply(text), nil
}

func (o *Ollama) chat(ctx context.Context, messages []ollamaMessage) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    o.model,
		Stream:   false,
		Messages: messages,
		Options:  map[string]any{"temperature": 0},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return chatResp.Message.Content, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
