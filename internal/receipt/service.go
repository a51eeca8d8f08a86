package receipt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/amount-extractor/internal/extraction"
)

// Extractor runs the amount extraction pipeline
type Extractor interface {
	ProcessText(ctx context.Context, text string) extraction.Result
	ProcessImage(ctx context.Context, r io.Reader) extraction.Result
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// Service runs extractions and keeps their history
type Service struct {
	extractor   Extractor
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID ids and the wall clock
func NewService(extractor Extractor, db DB, storage Storage) *Service {
	return NewServiceWithDeps(extractor, db, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor Extractor, db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		extractor:   extractor,
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "upload"
	}

	return base + ext
}

// ExtractText runs the text pipeline and records the result
func (s *Service) ExtractText(ctx context.Context, text string) (*Extraction, error) {
	result := s.extractor.ProcessText(ctx, text)

	e := &Extraction{
		ID:        s.idGenerator.Generate(),
		Kind:      KindText,
		Text:      text,
		Result:    result,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveExtraction(e); err != nil {
		return nil, fmt.Errorf("saving extraction: %w", err)
	}
	return e, nil
}

// ExtractImage stores the upload, runs the image pipeline and records the result
func (s *Service) ExtractImage(ctx context.Context, filename string, data []byte, contentType string) (*Extraction, error) {
	id := s.idGenerator.Generate()

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	result := s.extractor.ProcessImage(ctx, bytes.NewReader(data))
	if result.Status == extraction.StatusError {
		slog.Error("Failed to extract amounts from image",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"reason", result.Reason,
		)
	}

	e := &Extraction{
		ID:          id,
		Kind:        KindImage,
		Filename:    savedName,
		ContentType: contentType,
		Result:      result,
		CreatedAt:   s.timeSource.Now(),
	}
	if err := s.db.SaveExtraction(e); err != nil {
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to clean up file", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("saving extraction: %w", err)
	}
	return e, nil
}

// GetExtraction retrieves an extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	e, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return e, nil
}

// ListExtractions returns all extractions
func (s *Service) ListExtractions() ([]*Extraction, error) {
	extractions, err := s.db.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return extractions, nil
}

// DeleteExtraction removes an extraction and its uploaded file
func (s *Service) DeleteExtraction(id string) error {
	e, err := s.db.GetExtraction(id)
	if err != nil {
		return fmt.Errorf("getting extraction for deletion: %w", err)
	}

	if e.Filename != "" {
		if err := s.storage.Delete(e.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", e.Filename, "error", err)
		}
	}

	if err := s.db.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction from database: %w", err)
	}
	return nil
}

// GetExtractionFile retrieves the uploaded image of an extraction
func (s *Service) GetExtractionFile(id string) ([]byte, string, error) {
	e, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction: %w", err)
	}
	if e.Filename == "" {
		return nil, "", fmt.Errorf("extraction %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(e.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction file: %w", err)
	}

	return data, e.ContentType, nil
}
