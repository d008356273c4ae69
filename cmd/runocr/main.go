package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/labreport-analyzer/internal/app"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/extract"
	"github.com/joseph-ayodele/labreport-analyzer/internal/normalize"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ocr"
)

func main() {
	raw := flag.Bool("raw", false, "print the extracted text without normalization")
	trace := flag.Bool("trace", false, "log each normalization rule that changed the text")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [-raw] [-trace] <report-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := common.LoadConfig()
	policy, err := normalize.ParseCommaPolicy(cfg.Analysis.CommaPolicy)
	if err != nil {
		logger.Error("invalid comma policy", "error", err)
		os.Exit(2)
	}
	ocrx, err := ocr.NewExtractor(app.OCRConfig(cfg.OCR), logger)
	if err != nil {
		logger.Error("failed to build extractor", "error", err)
		os.Exit(1)
	}
	textExtractor := extract.NewOCRAdapter(ocrx, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := textExtractor.Extract(ctx, path)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed",
			"path", path, "category", common.Category(err), "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	text := res.Text
	if !*raw {
		n := normalize.New(normalize.WithCommaPolicy(policy), normalize.WithLogger(logger))
		var applied []string
		text, applied = n.Trace(res.Text)
		if *trace {
			logger.Info("normalize.trace", "rules", applied)
		}
	}

	logger.Info("text extraction OK",
		"engine", ocrx.EngineName(),
		"method", res.Method,
		"pages", res.Pages,
		"confidence", res.Confidence,
		"warnings", res.Warnings,
		"bytes", len(text),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(text)
}
