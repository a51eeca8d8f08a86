package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/amount-extractor/internal/extraction"
	"github.com/zombor/amount-extractor/internal/receipt"
	"github.com/zombor/amount-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A .env file is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("amount-extractor")
	var (
		port            = fs.IntLong("port", 8080, "HTTP server port")
		dbPath          = fs.StringLong("db", "amount-extractor.db", "Database file path")
		storagePath     = fs.StringLong("storage", "./uploads", "Directory for uploaded images")
		generatorType   = fs.StringLong("generator", "gemini", "Text generator for classification: 'gemini' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llama3.2", "Ollama model name")
		ocrEngine       = fs.StringLong("ocr", "tesseract", "OCR engine for images: 'tesseract', 'gemini' or 'ollama'")
		ollamaVision    = fs.StringLong("ollama-vision-model", "", "Ollama vision model for --ocr ollama (defaults to --ollama-model)")
		currency        = fs.StringLong("currency", extraction.DefaultCurrency, "Currency code reported with every result")
		window          = fs.IntLong("window", extraction.DefaultWindow, "Number of preceding words kept as context for each amount")
		concurrency     = fs.IntLong("concurrency", 1, "Parallel classification calls per request")
		rateLimit       = fs.Float64Long("rate-limit", 0, "Maximum classification calls per second (0 disables)")
		retries         = fs.IntLong("retries", 0, "Extra attempts after a failed classification call")
		classifyTimeout = fs.DurationLong("classify-timeout", 30*time.Second, "Timeout for each classification call")
		tesseractBin    = fs.StringLong("tesseract", "tesseract", "Tesseract binary name or path")
		tesseractLang   = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("AMOUNT_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *retries < 0 {
		slog.Error("Invalid retries", "retries", *retries)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Get Gemini API key from flag or environment
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	// Initialize generator based on type
	var generator scanning.Generator
	switch *generatorType {
	case "gemini":
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini generator...", "model", *geminiModel)
		generator, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama generator...", "url", *ollamaURL, "model", *ollamaModel)
		generator, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid generator type", "type", *generatorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer generator.Close()

	visionModel := *ollamaVision
	if visionModel == "" {
		visionModel = *ollamaModel
	}
	slog.Info("Initializing OCR engine...", "engine", *ocrEngine)
	ocr, err := scanning.NewOCREngine(scanning.OCRConfig{
		Engine:            *ocrEngine,
		TesseractBinary:   *tesseractBin,
		TesseractLanguage: *tesseractLang,
		GeminiKey:         apiKey,
		GeminiModel:       *geminiModel,
		OllamaURL:         *ollamaURL,
		OllamaModel:       visionModel,
	}, generator)
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "error", err)
		os.Exit(1)
	}
	if closer, ok := ocr.(io.Closer); ok && any(ocr) != any(generator) {
		defer closer.Close()
	}

	// Image extraction degrades to an error result without tesseract, so only warn
	if t, ok := ocr.(*scanning.Tesseract); ok {
		if err := t.Available(); err != nil {
			slog.Warn("OCR engine not available; image extraction will fail", "error", err)
		}
	}

	classifier, err := extraction.NewClassifier(extraction.ClassifierConfig{
		Generator:   generator,
		Concurrency: *concurrency,
		RateLimit:   *rateLimit,
		Retries:     uint64(*retries),
		Timeout:     *classifyTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize classifier", "error", err)
		os.Exit(1)
	}

	pipeline := extraction.NewPipeline(classifier, ocr, extraction.Config{
		Currency: *currency,
		Window:   *window,
	})

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	service := receipt.NewService(pipeline, db, store)

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth, version)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"currency", *currency,
		"concurrency", *concurrency,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
