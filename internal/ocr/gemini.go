package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiTranscribePrompt = `Transcribe all text in this laboratory report image exactly as printed.
Keep one table row or label/value pair per line, keep units and decimal separators as shown,
and do not add commentary, headings, markdown or code fences.`

// geminiEngine reads images with a hosted vision model.
type geminiEngine struct {
	apiKey   string
	model    string
	attempts int
	logger   *slog.Logger
}

func newGeminiEngine(cfg Config, logger *slog.Logger) (ImageEngine, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	return &geminiEngine{apiKey: cfg.GeminiAPIKey, model: cfg.GeminiModel, attempts: 3, logger: logger}, nil
}

func (g *geminiEngine) Name() string { return EngineGemini }

func (g *geminiEngine) Recognize(ctx context.Context, path string) (string, error) {
	data, mime, err := uploadableImage(path)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(g.model))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	parts := []genai.Part{
		genai.Text(geminiTranscribePrompt),
		&genai.Blob{MIMEType: mime, Data: data},
	}

	// retry transient failures
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			g.logger.Warn("ocr.gemini.retry", "attempt", attempt, "model", g.model, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := stripCodeFences(firstText(resp))
		if strings.TrimSpace(txt) == "" {
			return "", errors.New("gemini: empty response")
		}
		return txt, nil
	}
	return "", fmt.Errorf("gemini: %w", lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

// stripCodeFences removes a surrounding ``` block the model sometimes adds anyway.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func ptrFloat32(v float32) *float32 { return &v }
