package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
)

const ImageConfidenceThreshold = 0.6

func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	var warn []string
	if constants.NormalizeExt(filepath.Ext(path)) == "webp" {
		// leptonica builds often lack webp support
		png, cleanup, err := decodeToTempPNG(path)
		if err != nil {
			return ExtractionResult{SourceType: constants.IMAGE}, fmt.Errorf("webp decode: %w", err)
		}
		defer cleanup()
		path = png
	}

	txt, err := e.engine.Recognize(ctx, path)
	if err != nil {
		return ExtractionResult{SourceType: constants.IMAGE, Warnings: []string{err.Error()}}, err
	}

	var ocrConf float32
	if e.cfg.EnableTSVConfidence && e.engine.Name() == EngineTesseract {
		if c, err2 := e.tesseractTSVConfidence(ctx, path); err2 == nil {
			ocrConf = c
		} else {
			warn = append(warn, err2.Error())
		}
	}
	heurConf := heuristicConfidence(txt)
	conf := heurConf
	if ocrConf > 0 {
		conf = blendConfidence(ocrConf, heurConf)
	}
	if conf < ImageConfidenceThreshold {
		warn = append(warn, fmt.Sprintf("low OCR confidence %.2f", conf))
	}

	return ExtractionResult{
		Text:       txt,
		Pages:      1,
		SourceType: constants.IMAGE,
		Method:     "image-" + e.engine.Name(),
		Language:   e.cfg.TesseractLang,
		Warnings:   warn,
		Confidence: conf,
	}, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, error) {
	t := &tesseractEngine{cfg: e.cfg, runner: e.runner}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, t.args(path, "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w: %s", err, truncate(string(errb), 512))
	}
	return meanTSVConfidence(string(out)), nil
}

// meanTSVConfidence averages the conf column (the last one) over recognized words.
func meanTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[len(cols)-2]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}

func decodeToTempPNG(path string) (string, func(), error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	png, err := reencodePNG(data)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp("", "lr-img-*.png")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(png); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}
