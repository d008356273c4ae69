// Package pipeline runs one report through text extraction, normalization, field
// extraction and classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/classifier"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
	"github.com/joseph-ayodele/labreport-analyzer/internal/extract"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ingest"
	"github.com/joseph-ayodele/labreport-analyzer/internal/normalize"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ocr"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

// Processor coordinates the stages for one document at a time; it holds no
// per-document state and is safe for concurrent use.
type Processor struct {
	text          extract.TextExtractor
	normalizer    *normalize.Normalizer
	fields        extract.FieldExtractor
	classifier    classifier.Classifier
	repo          repository.AnalysisRepository
	fieldNames    []string
	minConfidence float32
	logger        *slog.Logger
}

type Option func(*Processor)

// WithClassifier enables classification; its FeatureNames become the field list.
func WithClassifier(c classifier.Classifier) Option {
	return func(p *Processor) { p.classifier = c }
}

// WithRepository persists every analysis, failed ones included.
func WithRepository(r repository.AnalysisRepository) Option {
	return func(p *Processor) { p.repo = r }
}

// WithFields sets the field list used when no classifier is configured.
func WithFields(fields []string) Option {
	return func(p *Processor) {
		if len(fields) > 0 {
			p.fieldNames = append([]string(nil), fields...)
		}
	}
}

func WithMinConfidence(c float32) Option {
	return func(p *Processor) {
		if c > 0 {
			p.minConfidence = c
		}
	}
}

func NewProcessor(text extract.TextExtractor, n *normalize.Normalizer, fields extract.FieldExtractor, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		text:          text,
		normalizer:    n,
		fields:        fields,
		fieldNames:    constants.DefaultFields,
		minConfidence: ocr.ImageConfidenceThreshold,
		logger:        logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Fields returns the field names every vector is built for, in order.
func (p *Processor) Fields() []string {
	if p.classifier != nil {
		return p.classifier.FeatureNames()
	}
	return append([]string(nil), p.fieldNames...)
}

// ProcessFile analyzes the report at path. The returned analysis is never nil and
// carries every partial value even when err is non-nil.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*entity.Analysis, error) {
	return p.process(ctx, path, p.begin(path))
}

// ProcessUpload analyzes a staged upload at path, recording it under the
// client's filename instead of the staging path.
func (p *Processor) ProcessUpload(ctx context.Context, path, filename string) (*entity.Analysis, error) {
	a := p.begin(filename)
	a.SourcePath = "upload:" + filename
	return p.process(ctx, path, a)
}

func (p *Processor) process(ctx context.Context, path string, a *entity.Analysis) (*entity.Analysis, error) {
	ctx = common.WithAnalysisID(ctx, a.ID.String())
	logger := common.LoggerFromContext(ctx, p.logger)

	hash, ok := ocr.ContentHashFromContext(ctx)
	if !ok {
		var err error
		if hash, _, err = ingest.HashFile(path); err != nil {
			return p.finish(ctx, a, fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
		}
		ctx = ocr.WithContentHash(ctx, hash)
	}
	a.ContentHash = hash

	res, err := p.text.Extract(ctx, path)
	if err != nil {
		logger.Warn("pipeline.text.failed", "path", path, "error", err)
		return p.finish(ctx, a, err)
	}
	p.applyText(ctx, a, res)
	return p.finish(ctx, a, p.analyze(ctx, a, res.Text))
}

// ProcessText analyzes already-extracted text, skipping the text stage.
func (p *Processor) ProcessText(ctx context.Context, name, text string) (*entity.Analysis, error) {
	a := p.begin(name)
	a.Format = constants.TXT
	a.Method = "inline"
	ctx = common.WithAnalysisID(ctx, a.ID.String())
	return p.finish(ctx, a, p.analyze(ctx, a, text))
}

func (p *Processor) begin(path string) *entity.Analysis {
	return &entity.Analysis{
		ID:         uuid.New(),
		SourcePath: path,
		Filename:   filepath.Base(path),
		Format:     constants.MapExtToFormat(filepath.Ext(path)),
		Status:     constants.AnalysisStatusRunning,
		CreatedAt:  time.Now().UTC(),
	}
}

func (p *Processor) applyText(ctx context.Context, a *entity.Analysis, res extract.TextExtractionResult) {
	if res.SourceType != "" {
		a.Format = res.SourceType
	}
	a.Method = res.Method
	a.Pages = res.Pages
	a.Confidence = res.Confidence
	if res.Confidence > 0 && res.Confidence < p.minConfidence {
		common.LoggerFromContext(ctx, p.logger).Warn("pipeline.text.low_confidence",
			"path", a.SourcePath,
			"method", res.Method,
			"confidence", res.Confidence,
			"min", p.minConfidence,
		)
	}
}

// analyze runs normalize -> extract -> classify and fills a. The classifier is
// only called with a complete vector.
func (p *Processor) analyze(ctx context.Context, a *entity.Analysis, text string) error {
	logger := common.LoggerFromContext(ctx, p.logger)
	if err := ctx.Err(); err != nil {
		return err
	}

	canonical := p.normalizer.Normalize(text)
	names := p.Fields()
	results := p.fields.ExtractDetailed(canonical, names)

	a.Fields = make([]entity.FieldValue, len(results))
	vec := make(extract.Vector, len(results))
	for i, r := range results {
		a.Fields[i] = entity.FieldValue{Field: r.Field, Value: r.Value, Raw: r.Raw, Reason: r.Reason}
		vec[i] = r.Value
	}

	if absent := extract.AbsentErrors(results); len(absent) > 0 {
		err := &common.IncompleteVectorError{Absent: absent}
		a.Missing = err.Missing()
		logger.Info("pipeline.classify.skipped", "missing", a.Missing)
		return err
	}
	if p.classifier == nil {
		logger.Info("pipeline.extract.only", "fields", len(names))
		return nil
	}

	x, _ := vec.Floats()
	severity, err := p.classifier.Predict(ctx, x)
	if err != nil {
		logger.Error("pipeline.classify.failed", "error", err)
		return fmt.Errorf("classify: %w", err)
	}
	a.Severity = severity
	logger.Info("pipeline.classify.ok", "severity", severity)
	return nil
}

// finish sets the outcome on a, persists it when a repository is configured and
// returns a together with err.
func (p *Processor) finish(ctx context.Context, a *entity.Analysis, err error) (*entity.Analysis, error) {
	logger := common.LoggerFromContext(ctx, p.logger)
	a.Duration = time.Since(a.CreatedAt)
	a.Status = statusFor(err)
	if err != nil {
		a.ErrorCategory = common.Category(err)
		a.ErrorMessage = err.Error()
	}

	if p.repo != nil {
		// a cancelled request is still recorded
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		perr := p.repo.Create(pctx, a)
		cancel()
		if perr != nil {
			logger.Error("pipeline.persist.failed", "error", perr)
			if err == nil {
				err = perr
			}
		}
	}

	logger.Info("pipeline.done",
		"path", a.SourcePath,
		"status", a.Status,
		"severity", a.Severity,
		"category", a.ErrorCategory,
		"duration_ms", a.Duration.Milliseconds(),
	)
	return a, err
}

func statusFor(err error) constants.AnalysisStatus {
	switch {
	case err == nil:
		return constants.AnalysisStatusSucceeded
	case errors.Is(err, common.ErrIncompleteVector):
		return constants.AnalysisStatusIncompleteVector
	case errors.Is(err, common.ErrExtractionUnavailable):
		return constants.AnalysisStatusExtractionUnavailable
	default:
		return constants.AnalysisStatusFailed
	}
}
