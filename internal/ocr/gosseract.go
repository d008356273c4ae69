//go:build gosseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// gosseractEngine runs Tesseract in-process through libtesseract.
// A gosseract client is not safe for concurrent use, so each call gets its own.
type gosseractEngine struct {
	lang        string
	tessdataDir string
	psm         int
}

func newGosseractEngine(cfg Config) (ImageEngine, error) {
	return &gosseractEngine{lang: cfg.TesseractLang, tessdataDir: cfg.TessdataDir, psm: cfg.PSM}, nil
}

func (g *gosseractEngine) Name() string { return EngineGosseract }

func (g *gosseractEngine) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()

	if g.tessdataDir != "" {
		client.TessdataPrefix = g.tessdataDir
	}
	if err := client.SetLanguage(g.lang); err != nil {
		return "", fmt.Errorf("gosseract: set language: %w", err)
	}
	if g.psm > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(g.psm)); err != nil {
			return "", fmt.Errorf("gosseract: set psm: %w", err)
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("gosseract: set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("gosseract: %w", err)
	}
	return text, nil
}
