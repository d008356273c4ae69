package extract

import (
	"context"
	"time"
)

// TextExtractor is Stage 1: file -> text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (TextExtractionResult, error)
}

type TextExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | IMAGE | HTML | TXT
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr" | "image-gemini" | "html" | "txt"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// FieldExtractor is Stage 2: canonical text -> one result per field, same order.
type FieldExtractor interface {
	ExtractDetailed(text string, fields []string) []FieldResult
}
