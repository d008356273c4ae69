// Package app wires configuration into the analysis components shared by the
// command-line tools and the server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/labreport-analyzer/internal/classifier"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/extract"
	"github.com/joseph-ayodele/labreport-analyzer/internal/normalize"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ocr"
	"github.com/joseph-ayodele/labreport-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

type Options struct {
	// WithDB opens the analysis store and persists every analysis.
	WithDB bool
	// InMemory replaces the configured store with an in-memory SQLite database.
	InMemory bool
	// RequireModel fails New when the model cannot be loaded. Otherwise the
	// failure is kept in ModelErr.
	RequireModel bool
	// Fields overrides the configured field list for extract-only runs.
	Fields []string
}

type App struct {
	Config     *common.Config
	Normalizer *normalize.Normalizer
	OCR        *ocr.Extractor
	Model      *classifier.Forest
	ModelErr   error
	DB         *repository.DB
	Repo       repository.AnalysisRepository
	Processor  *pipeline.Processor
	logger     *slog.Logger
}

func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}

	policy, err := normalize.ParseCommaPolicy(cfg.Analysis.CommaPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}
	a.Normalizer = normalize.New(normalize.WithCommaPolicy(policy), normalize.WithLogger(logger))

	a.OCR, err = ocr.NewExtractor(OCRConfig(cfg.OCR), logger)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}

	fields := cfg.Analysis.Fields
	if len(opts.Fields) > 0 {
		fields = opts.Fields
	}
	popts := []pipeline.Option{
		pipeline.WithFields(fields),
		pipeline.WithMinConfidence(cfg.Analysis.MinConfidence),
	}
	if cfg.Analysis.ModelPath != "" && len(opts.Fields) == 0 {
		a.Model, a.ModelErr = classifier.LoadForest(cfg.Analysis.ModelPath, logger)
		if a.ModelErr != nil {
			if opts.RequireModel {
				return nil, a.ModelErr
			}
			logger.Error("app.model.unavailable", "path", cfg.Analysis.ModelPath, "error", a.ModelErr)
		} else {
			popts = append(popts, pipeline.WithClassifier(a.Model))
		}
	}

	if opts.WithDB {
		dbcfg := repository.ConfigFrom(cfg.Database)
		if opts.InMemory {
			dbcfg = repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}
		}
		a.DB, err = repository.Open(ctx, dbcfg, logger)
		if err != nil {
			return nil, err
		}
		a.Repo = repository.NewAnalysisRepository(a.DB, logger)
		popts = append(popts, pipeline.WithRepository(a.Repo))
	}

	a.Processor = pipeline.NewProcessor(
		extract.NewOCRAdapter(a.OCR, logger),
		a.Normalizer,
		extract.NewExtractor(a.Normalizer, logger),
		logger,
		popts...,
	)
	logger.Info("app.ready",
		"engine", a.OCR.EngineName(),
		"comma_policy", policy.String(),
		"model", modelName(a.Model),
		"fields", len(a.Processor.Fields()),
		"db", a.DB != nil,
	)
	return a, nil
}

// OCRConfig maps the environment settings onto the extractor's config.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Engine:              c.Engine,
		TesseractLang:       c.TesseractLang,
		TessdataDir:         c.TessdataDir,
		DPI:                 c.DPI,
		MaxPages:            c.MaxPages,
		EnableTSVConfidence: c.EnableTSVConfidence,
		HeicConverter:       c.HeicConverter,
		ArtifactCacheDir:    c.ArtifactCacheDir,
		GeminiAPIKey:        c.GeminiAPIKey,
		GeminiModel:         c.GeminiModel,
	}
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func modelName(f *classifier.Forest) string {
	if f == nil {
		return ""
	}
	return f.Name() + "@" + f.Version()
}
