package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
)

type handler func(args []string) (stdout, stderr []byte, err error)

// fakeRunner answers commands by binary name and records every call.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	handlers map[string]handler
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	h, ok := f.handlers[name]
	f.mu.Unlock()
	if !ok {
		return nil, []byte("not found"), fmt.Errorf("unexpected command %q", name)
	}
	return h(args)
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func text(s string) handler {
	return func([]string) ([]byte, []byte, error) { return []byte(s), nil, nil }
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestExtractor(t *testing.T, cfg Config, r *fakeRunner) *Extractor {
	t.Helper()
	e, err := NewExtractor(cfg, testLogger(), WithRunner(r))
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtractPDFTextLayer(t *testing.T) {
	r := &fakeRunner{handlers: map[string]handler{
		"pdftotext": text("Hemoglobin 13.5 g/dL\fMCV 90 fL\f"),
	}}
	e := newTestExtractor(t, Config{}, r)

	res, err := e.Extract(context.Background(), "report.pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Method != "pdf-text" || res.Pages != 2 || res.SourceType != constants.PDF {
		t.Errorf("got method=%s pages=%d source=%s", res.Method, res.Pages, res.SourceType)
	}
	if r.count("pdftoppm") != 0 {
		t.Error("rasterized a PDF that had a text layer")
	}
}

func TestExtractPDFFallsBackToOCR(t *testing.T) {
	rasterize := func(args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for i := 1; i <= 3; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), nil, 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	ocrPage := func(args []string) ([]byte, []byte, error) {
		return []byte("text of " + filepath.Base(args[0])), nil, nil
	}

	tests := []struct {
		name     string
		maxPages int
		want     string
		pages    int
	}{
		{"all pages", 0, "text of page-1.png\n\f\ntext of page-2.png\n\f\ntext of page-3.png", 3},
		{"page limit", 1, "text of page-1.png", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{handlers: map[string]handler{
				"pdftotext": text("  \n\f"),
				"pdftoppm":  rasterize,
				"tesseract": ocrPage,
			}}
			e := newTestExtractor(t, Config{MaxPages: tt.maxPages}, r)

			res, err := e.Extract(context.Background(), "scan.pdf")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if diff := cmp.Diff(tt.want, res.Text); diff != "" {
				t.Errorf("text mismatch (-want +got):\n%s", diff)
			}
			if res.Method != "pdf-ocr" || res.Pages != tt.pages {
				t.Errorf("got method=%s pages=%d", res.Method, res.Pages)
			}
		})
	}
}

func TestExtractPDFRasterizeFailure(t *testing.T) {
	r := &fakeRunner{handlers: map[string]handler{
		"pdftotext": text(""),
		"pdftoppm": func([]string) ([]byte, []byte, error) {
			return nil, []byte("broken pdf"), fmt.Errorf("exit status 1")
		},
	}}
	e := newTestExtractor(t, Config{}, r)
	if _, err := e.Extract(context.Background(), "broken.pdf"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractImageWithTSVConfidence(t *testing.T) {
	tsv := strings.Join([]string{
		"level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext",
		"4\t1\t1\t1\t1\t0\t0\t0\t100\t20\t-1\t",
		"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90\tHemoglobin",
		"5\t1\t1\t1\t1\t2\t70\t10\t30\t20\t80\t13.5",
	}, "\n")
	r := &fakeRunner{handlers: map[string]handler{
		"tesseract": func(args []string) ([]byte, []byte, error) {
			if args[len(args)-1] == "tsv" {
				return []byte(tsv), nil, nil
			}
			return []byte("Hemoglobin 13.5 g/dL"), nil, nil
		},
	}}
	e := newTestExtractor(t, Config{EnableTSVConfidence: true}, r)

	res, err := e.Extract(context.Background(), "photo.jpg")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Method != "image-tesseract" || res.Text != "Hemoglobin 13.5 g/dL" {
		t.Errorf("got method=%s text=%q", res.Method, res.Text)
	}
	want := blendConfidence(0.85, heuristicConfidence(res.Text))
	if res.Confidence != want {
		t.Errorf("confidence = %v, want %v", res.Confidence, want)
	}
	if got := r.count("tesseract"); got != 2 {
		t.Errorf("tesseract called %d times, want 2", got)
	}
}

func TestMeanTSVConfidence(t *testing.T) {
	if got := meanTSVConfidence("header only"); got != 0 {
		t.Errorf("got %v for empty TSV", got)
	}
}

func TestExtractHEICUsesCache(t *testing.T) {
	cacheDir := t.TempDir()
	r := &fakeRunner{handlers: map[string]handler{
		"magick": func(args []string) ([]byte, []byte, error) {
			return nil, nil, os.WriteFile(args[1], []byte("png"), 0o644)
		},
		"tesseract": text("WBC Count 7,500 cells/ul"),
	}}
	e := newTestExtractor(t, Config{HeicConverter: "magick", ArtifactCacheDir: cacheDir}, r)
	ctx := WithContentHash(context.Background(), "abc123")

	for i := 0; i < 2; i++ {
		res, err := e.Extract(ctx, "IMG_0001.HEIC")
		if err != nil {
			t.Fatalf("Extract #%d: %v", i, err)
		}
		if res.Text != "WBC Count 7,500 cells/ul" {
			t.Errorf("text = %q", res.Text)
		}
	}
	if got := r.count("magick"); got != 1 {
		t.Errorf("converter ran %d times, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "abc123.png")); err != nil {
		t.Errorf("cached png missing: %v", err)
	}
}

func TestExtractHEICUnknownConverter(t *testing.T) {
	e := newTestExtractor(t, Config{HeicConverter: "gimp"}, &fakeRunner{})
	if _, err := e.Extract(context.Background(), "x.heic"); err == nil {
		t.Fatal("expected error for unknown converter")
	}
}

func TestExtractHTML(t *testing.T) {
	doc := `<html><head><title>Lab</title><style>p{color:red}</style></head><body>` +
		`<h1>CBC</h1><table><tr><th>Test</th><th>Result</th></tr>` +
		`<tr><td>Hemoglobin</td><td>13.5</td></tr></table>` +
		`<p>Platelets <b>250,000</b></p><script>var a = 1;</script></body></html>`
	p := writeFile(t, "report.html", []byte(doc))
	e := newTestExtractor(t, Config{}, &fakeRunner{})

	res, err := e.Extract(context.Background(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "CBC\nTest\tResult\nHemoglobin\t13.5\nPlatelets 250,000"
	if diff := cmp.Diff(want, res.Text); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
	if res.Method != "html" || res.SourceType != constants.HTML {
		t.Errorf("got method=%s source=%s", res.Method, res.SourceType)
	}
}

func TestExtractTXT(t *testing.T) {
	p := writeFile(t, "report.txt", []byte("\ufeffMCV 90 fL\n"))
	e := newTestExtractor(t, Config{}, &fakeRunner{})
	res, err := e.Extract(context.Background(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "MCV 90 fL\n" || res.Method != "txt" {
		t.Errorf("got %+v", res)
	}
}

func TestExtractSniffsUnknownExtension(t *testing.T) {
	p := writeFile(t, "upload.bin", []byte("%PDF-1.4\n%binary"))
	r := &fakeRunner{handlers: map[string]handler{"pdftotext": text("Hemoglobin 12")}}
	e := newTestExtractor(t, Config{}, r)

	res, err := e.Extract(context.Background(), p)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.SourceType != constants.PDF {
		t.Errorf("source = %s, want PDF", res.SourceType)
	}
}

func TestExtractUnsupported(t *testing.T) {
	p := writeFile(t, "archive.zip", []byte("PK\x03\x04rest-of-zip"))
	e := newTestExtractor(t, Config{}, &fakeRunner{})
	if _, err := e.Extract(context.Background(), p); err == nil {
		t.Fatal("expected error for unsupported file")
	}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	return img
}

func TestReencodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	out, err := reencodePNG(buf.Bytes())
	if err != nil {
		t.Fatalf("reencodePNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not png: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
	if _, err := reencodePNG([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}

func TestUploadableImageConvertsTIFF(t *testing.T) {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	p := writeFile(t, "scan.tiff", buf.Bytes())

	data, mime, err := uploadableImage(p)
	if err != nil {
		t.Fatalf("uploadableImage: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %s", mime)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("not png: %v", err)
	}
	if got := sniffFormat(p); got != constants.IMAGE {
		t.Errorf("sniffFormat(tiff) = %q", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"Hemoglobin 13.5":                  "Hemoglobin 13.5",
		"```\nHemoglobin 13.5\n```":        "Hemoglobin 13.5",
		"```text\nMCV 90\nMCH 29\n```\n":   "MCV 90\nMCH 29",
		"  ```\nPlatelet Count 150000```  ": "Platelet Count 150000",
	}
	for in, want := range tests {
		if got := stripCodeFences(in); got != want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewEngine(t *testing.T) {
	if _, err := NewExtractor(Config{Engine: "abbyy"}, testLogger()); err == nil {
		t.Error("expected error for unknown engine")
	}
	if _, err := NewExtractor(Config{Engine: EngineGemini}, testLogger()); err == nil {
		t.Error("expected error for gemini without API key")
	}
	e, err := NewExtractor(Config{Engine: EngineGemini, GeminiAPIKey: "k"}, testLogger())
	if err != nil {
		t.Fatalf("gemini engine: %v", err)
	}
	if e.EngineName() != EngineGemini {
		t.Errorf("engine = %s", e.EngineName())
	}
}

func TestHeuristicConfidence(t *testing.T) {
	lab := heuristicConfidence("Hemoglobin 13.5 g/dL\nPlatelet Count 250,000 cells/µL\nMCV 90 fL")
	noise := heuristicConfidence("lorem ipsum")
	if lab <= noise {
		t.Errorf("lab text scored %v, noise %v", lab, noise)
	}
	if lab > 1 {
		t.Errorf("score above 1: %v", lab)
	}
}
