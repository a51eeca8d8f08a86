package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Images shorter than this are upscaled before OCR; tesseract struggles with small glyphs.
const (
	minOCRHeight    = 800
	targetOCRHeight = 1200
	maxOCRUpscale   = 4.0
	maxOCRPixels    = 24_000_000
)

// maxDecodePixels bounds the dimensions an upload may declare before it is decoded
const maxDecodePixels = 50_000_000

var errEmptyImage = errors.New("empty image data")

// ErrImageTooLarge is returned when an image declares more pixels than the decoder accepts
var ErrImageTooLarge = errors.New("image is too large")

// DecodeImage decodes raw upload bytes into an image.
// PDFs are rendered from their first page and HEIC/HEIF is decoded with a pure Go decoder.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errEmptyImage
	}

	switch {
	case isPDFFormat(data):
		img, err := pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return img, checkPixels(img.Bounds().Dx(), img.Bounds().Dy())
	case isHEICFormat(data):
		cfg, err := heic.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		if err := checkPixels(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	// Check declared dimensions first so a tiny file cannot demand a huge buffer
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := checkPixels(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

func checkPixels(w, h int) error {
	if w > 0 && h > 0 && int64(w)*int64(h) > maxDecodePixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, w, h, maxDecodePixels)
	}
	return nil
}

// ToRGB flattens an image onto an opaque white background so every pixel
// carries only red, green and blue information
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	background := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// PrepareForOCR converts the image to RGB and upscales small scans
func PrepareForOCR(img image.Image) image.Image {
	rgb := ToRGB(img)
	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	scale := ocrScale(w, h)
	if scale <= 1 {
		return rgb
	}
	return imaging.Resize(rgb,
		max(int(math.Round(float64(w)*scale)), 1),
		max(int(math.Round(float64(h)*scale)), 1),
		imaging.Lanczos)
}

// ocrScale returns the upscale factor for a w x h image. The factor aims for
// targetOCRHeight but never exceeds maxOCRUpscale, and the result stays within maxOCRPixels.
func ocrScale(w, h int) float64 {
	if w <= 0 || h <= 0 || h >= minOCRHeight {
		return 1
	}
	scale := min(float64(targetOCRHeight)/float64(h), maxOCRUpscale)
	if budget := math.Sqrt(float64(maxOCRPixels) / (float64(w) * float64(h))); scale > budget {
		scale = budget
	}
	return scale
}

// EncodePNG encodes an image as PNG
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfToImage renders the first page of a PDF (most receipts are single page)
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
