package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
)

// Tesseract implements the OCREngine interface by running the tesseract CLI
type Tesseract struct {
	binary   string
	language string
}

// NewTesseract creates a new Tesseract engine.
// binary may be a bare command name resolved through PATH or an absolute path.
func NewTesseract(binary string, language string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{
		binary:   binary,
		language: language,
	}
}

// Available reports whether the tesseract binary can be found
func (t *Tesseract) Available() error {
	if _, err := exec.LookPath(t.binary); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// Recognize writes the image to a temporary PNG and runs `tesseract <file> stdout -l <lang>`
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	path, err := exec.LookPath(t.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if img.Bounds().Empty() {
		return "", nil
	}

	tmpFile, err := os.CreateTemp("", "amount-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmp := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmp)

	if err := imaging.Save(img, tmp); err != nil {
		return "", fmt.Errorf("writing OCR input: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, tmp, "stdout", "-l", t.language)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("running tesseract: %w: %s", err, msg)
		}
		return "", fmt.Errorf("running tesseract: %w", err)
	}

	return string(out), nil
}
