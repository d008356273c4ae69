package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ocr"
)

// OCRAdapter exposes an *ocr.Extractor as a TextExtractor. Any extraction failure,
// including empty text, is reported as extraction unavailable.
type OCRAdapter struct {
	e      *ocr.Extractor
	logger *slog.Logger
}

func NewOCRAdapter(e *ocr.Extractor, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRAdapter{e: e, logger: logger}
}

func (a *OCRAdapter) Extract(ctx context.Context, path string) (TextExtractionResult, error) {
	r, err := a.e.Extract(ctx, path)
	res := TextExtractionResult{
		Text:       r.Text,
		Pages:      r.Pages,
		SourceType: r.SourceType,
		Method:     r.Method,
		Language:   r.Language,
		Duration:   r.Duration,
		Warnings:   r.Warnings,
		Confidence: r.Confidence,
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		return res, common.ExtractionUnavailable(path, err)
	}
	if strings.TrimSpace(r.Text) == "" {
		a.logger.Warn("extract.text.empty", "path", path, "method", r.Method)
		return res, common.ExtractionUnavailable(path, nil)
	}
	return res, nil
}
