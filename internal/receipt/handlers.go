package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/amount-extractor/internal/extraction"
)

const (
	maxUploadSize = int64(50 << 20) // 50MB, high-resolution phone photos
	maxTextSize   = int64(1 << 20)
)

var allowedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

// errorResponse is the JSON body for failed requests
type errorResponse struct {
	Status  extraction.Status `json:"status"`
	Reason  string            `json:"reason"`
	Message string            `json:"message,omitempty"`
}

// extractResponse is a pipeline result together with the ID it was stored under
type extractResponse struct {
	ID string `json:"id"`
	extraction.Result
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, errorResponse{Status: extraction.StatusError, Reason: reason})
}

// handleRoot describes the service
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Amount Extractor API",
		"service": serviceName,
		"version": s.version,
		"endpoints": map[string]string{
			"health":        "/health",
			"metrics":       "/metrics",
			"extract_text":  "/api/v1/extract/text (POST)",
			"extract_image": "/api/v1/extract/image (POST)",
			"extractions":   "/api/v1/extractions (GET)",
		},
	})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": s.version,
	})
}

// handleFallback answers requests no route matched
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if methods := allowedMethods(r.URL.Path); len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
			Status:  extraction.StatusError,
			Reason:  "Method not allowed",
			Message: "The HTTP method is not allowed for this endpoint.",
		})
		return
	}
	writeJSON(w, http.StatusNotFound, errorResponse{
		Status:  extraction.StatusError,
		Reason:  "Endpoint not found",
		Message: "The requested URL was not found on the server. Please check the endpoint path.",
	})
}

// handleExtractText extracts amounts from a JSON body {"text": "..."}
func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextSize)).Decode(&body); err != nil || body == nil {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	raw, ok := body["text"]
	if !ok {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	text, ok := raw.(string)
	if !ok || strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "Text must be a non-empty string")
		return
	}

	e, err := s.service.ExtractText(r.Context(), text)
	if err != nil {
		slog.Error("Error extracting text", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{ID: e.ID, Result: e.Result})
}

// handleExtractImage extracts amounts from a multipart image upload in field "file"
func (s *Server) handleExtractImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	defaultType, ok := allowedExtensions[ext]
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid file type. Only image files are allowed")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = defaultType
	}

	e, err := s.service.ExtractImage(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error extracting image", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{ID: e.ID, Result: e.Result})
}

// handleListExtractions returns the extraction history
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	extractions, err := s.service.ListExtractions()
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Ensure we always return an array, not nil
	if extractions == nil {
		extractions = []*Extraction{}
	}
	writeJSON(w, http.StatusOK, extractions)
}

// handleGetExtraction returns a single extraction
func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	e, err := s.service.GetExtraction(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Extraction not found")
			return
		}
		slog.Error("Error getting extraction", "error", err)
		writeError(w, http.StatusInternalServerError, "Error getting extraction")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleGetExtractionFile returns the uploaded image of an extraction
func (s *Server) handleGetExtractionFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExtractionFile(r.PathValue("id"))
	if err != nil {
		// A record whose upload is gone from disk is as missing as the record
		if errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		slog.Error("Error getting extraction file", "error", err)
		writeError(w, http.StatusInternalServerError, "Error getting extraction file")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExtraction deletes an extraction
func (s *Server) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExtraction(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Extraction not found")
			return
		}
		slog.Error("Error deleting extraction", "error", err)
		writeError(w, http.StatusInternalServerError, "Error deleting extraction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
