package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Image engine names accepted in Config.Engine.
const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
	EngineGemini    = "gemini"
)

// ImageEngine recognizes the text of one image file.
type ImageEngine interface {
	Name() string
	Recognize(ctx context.Context, path string) (string, error)
}

func newEngine(cfg Config, r Runner, logger *slog.Logger) (ImageEngine, error) {
	switch strings.ToLower(cfg.Engine) {
	case EngineTesseract, "":
		return &tesseractEngine{cfg: cfg, runner: r}, nil
	case EngineGosseract:
		return newGosseractEngine(cfg)
	case EngineGemini:
		return newGeminiEngine(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q (want tesseract, gosseract or gemini)", cfg.Engine)
	}
}

// tesseractEngine shells out to the tesseract CLI.
type tesseractEngine struct {
	cfg    Config
	runner Runner
}

func (t *tesseractEngine) Name() string { return EngineTesseract }

func (t *tesseractEngine) Recognize(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D]
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(path)...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}

func (t *tesseractEngine) args(path string, extra ...string) []string {
	args := []string{path, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, extra...)
}
