// Package ocr turns lab report files (PDF, images, HTML, plain text) into raw text.
// External tools (pdftotext, pdftoppm, tesseract, HEIC converters) are invoked
// through a Runner so they can be stubbed in tests.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Engine        string // "tesseract" (default) | "gosseract" | "gemini"
	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir         string
	HeicConverter       string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	ArtifactCacheDir string

	GeminiAPIKey string
	GeminiModel  string
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | IMAGE | HTML | TXT
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr" | "html" | "txt"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	engine ImageEngine
	logger *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithRunner replaces the exec runner (tests).
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithEngine replaces the configured image engine.
func WithEngine(engine ImageEngine) Option {
	return func(e *Extractor) { e.engine = engine }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineTesseract
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = "./tmp"
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = "gemini-1.5-flash"
	}

	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.engine == nil {
		engine, err := newEngine(cfg, e.runner, logger)
		if err != nil {
			return nil, err
		}
		e.engine = engine
	}
	return e, nil
}

// EngineName reports which image engine is in use.
func (e *Extractor) EngineName() string { return e.engine.Name() }

// Extract picks a strategy based on file extension, sniffing the content when the
// extension is unknown.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	format := constants.MapExtToFormat(ext)
	if format == "" {
		format = sniffFormat(path)
		e.logger.Debug("ocr.format.sniffed", "path", path, "ext", ext, "format", format)
	}
	e.logger.Debug("ocr.extract.start", "path", path, "ext", ext, "format", format, "engine", e.engine.Name())

	var (
		res ExtractionResult
		err error
	)
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.IMAGE:
		res, err = e.extractImageFile(ctx, path, ext)
	case constants.HTML:
		res, err = e.extractHTML(path)
	case constants.TXT:
		res, err = e.extractTXT(path)
	default:
		e.logger.Error("ocr.extract.unsupported", "path", path, "extension", ext)
		return ExtractionResult{}, fmt.Errorf("unsupported file type: %q", ext)
	}
	res.Duration = time.Since(start)
	if err == nil {
		e.logger.Info("ocr.extract.done",
			"path", path,
			"method", res.Method,
			"pages", res.Pages,
			"chars", len(res.Text),
			"confidence", res.Confidence,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res, err
}

func (e *Extractor) extractImageFile(ctx context.Context, path, ext string) (ExtractionResult, error) {
	var warns []string
	if constants.IsHEICExt(ext) {
		hashHex, _ := ContentHashFromContext(ctx)
		out, w, cleanup, err := convertHEICtoPNG(ctx, e.runner, e.logger, e.cfg.HeicConverter, path, e.cfg.ArtifactCacheDir, hashHex)
		warns = append(warns, w...)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			e.logger.Error("ocr.heic.failed", "path", path, "error", err)
			return ExtractionResult{SourceType: constants.IMAGE, Warnings: warns}, err
		}
		path = out
	}
	res, err := e.extractImage(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	return res, err
}

func (e *Extractor) extractTXT(path string) (ExtractionResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ExtractionResult{SourceType: constants.TXT}, err
	}
	txt := strings.TrimPrefix(string(b), "\ufeff")
	return ExtractionResult{
		Text:       txt,
		Pages:      1,
		SourceType: constants.TXT,
		Method:     "txt",
		Confidence: blendConfidence(1, heuristicConfidence(txt)),
	}, nil
}
