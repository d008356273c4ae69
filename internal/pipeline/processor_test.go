package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/extract"
	"github.com/joseph-ayodele/labreport-analyzer/internal/normalize"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ocr"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeText struct {
	text string
	err  error
	hash string
}

func (f *fakeText) Extract(ctx context.Context, path string) (extract.TextExtractionResult, error) {
	f.hash, _ = ocr.ContentHashFromContext(ctx)
	if f.err != nil {
		return extract.TextExtractionResult{}, f.err
	}
	return extract.TextExtractionResult{
		Text:       f.text,
		Pages:      1,
		SourceType: constants.PDF,
		Method:     "pdf-text",
		Confidence: 0.9,
	}, nil
}

type fakeClassifier struct {
	names []string
	calls atomic.Int32
	got   []float64
	err   error
}

func (c *fakeClassifier) FeatureNames() []string { return c.names }

func (c *fakeClassifier) Predict(_ context.Context, x []float64) (string, error) {
	c.calls.Add(1)
	c.got = x
	if c.err != nil {
		return "", c.err
	}
	return "Mild", nil
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cbc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newProcessor(text *fakeText, opts ...Option) *Processor {
	n := normalize.New(normalize.WithLogger(testLogger()))
	x := extract.NewExtractor(n, testLogger())
	return NewProcessor(text, n, x, testLogger(), opts...)
}

const report = `CITY LAB - COMPLETE BLOOD COUNT
Haemoglobin     13.5  g/dl    13.0 - 17.0
Platelets : 2,50,000 /cumm
Total Leucocyte Count - 7,800 cells/cumm`

func TestProcessFileClassifiesCompleteVector(t *testing.T) {
	fields := []string{"Hemoglobin (g/dL)", "WBC Count (cells/µL)"}
	cls := &fakeClassifier{names: fields}
	text := &fakeText{text: report}
	p := newProcessor(text, WithClassifier(cls))

	a, err := p.ProcessFile(context.Background(), writeReport(t))
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if a.Status != constants.AnalysisStatusSucceeded || a.Severity != "Mild" {
		t.Errorf("status %s severity %q", a.Status, a.Severity)
	}
	if diff := cmp.Diff([]float64{13.5, 7800}, cls.got); diff != "" {
		t.Errorf("classifier input mismatch (-want +got):\n%s", diff)
	}
	if a.Format != constants.PDF || a.Method != "pdf-text" || a.Filename != "cbc.pdf" {
		t.Errorf("analysis = %+v", a)
	}
	if a.ContentHash == "" || text.hash != a.ContentHash {
		t.Errorf("content hash %q not passed to text stage (%q)", a.ContentHash, text.hash)
	}
	if diff := cmp.Diff(fields, p.Fields()); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessFileIncompleteVectorSkipsClassifier(t *testing.T) {
	fields := []string{"Hemoglobin (g/dL)", "Platelet Count (cells/µL)", "MCV (fL)"}
	cls := &fakeClassifier{names: fields}
	p := newProcessor(&fakeText{text: report}, WithClassifier(cls))

	a, err := p.ProcessFile(context.Background(), writeReport(t))

	var iv *common.IncompleteVectorError
	if !errors.As(err, &iv) {
		t.Fatalf("err = %v, want IncompleteVectorError", err)
	}
	if !errors.Is(err, common.ErrIncompleteVector) || !errors.Is(err, common.ErrFieldAbsent) {
		t.Errorf("err %v does not match the incomplete-vector sentinels", err)
	}
	// "2,50,000" is not a valid grouping, so platelets are ambiguous rather than 2 or 250000
	wantMissing := []string{"Platelet Count (cells/µL)", "MCV (fL)"}
	if diff := cmp.Diff(wantMissing, iv.Missing()); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantMissing, a.Missing); diff != "" {
		t.Errorf("analysis Missing mismatch (-want +got):\n%s", diff)
	}
	if n := cls.calls.Load(); n != 0 {
		t.Errorf("classifier called %d times with an incomplete vector", n)
	}
	if a.Status != constants.AnalysisStatusIncompleteVector || a.ErrorCategory != common.CategoryIncompleteVector {
		t.Errorf("status %s category %s", a.Status, a.ErrorCategory)
	}

	got := a.ValueMap()
	if v, ok := got["Hemoglobin (g/dL)"].Float(); !ok || v != 13.5 {
		t.Errorf("partial hemoglobin = %v", got["Hemoglobin (g/dL)"])
	}
	if a.Fields[1].Reason != extract.ReasonAmbiguous || a.Fields[2].Reason != extract.ReasonNotFound {
		t.Errorf("reasons = %q, %q", a.Fields[1].Reason, a.Fields[2].Reason)
	}
}

func TestProcessFileExtractionUnavailable(t *testing.T) {
	cls := &fakeClassifier{names: []string{"Hemoglobin (g/dL)"}}
	p := newProcessor(&fakeText{err: common.ExtractionUnavailable("x", errors.New("no text layer"))}, WithClassifier(cls))

	a, err := p.ProcessFile(context.Background(), writeReport(t))
	if !errors.Is(err, common.ErrExtractionUnavailable) {
		t.Fatalf("err = %v, want ErrExtractionUnavailable", err)
	}
	if a.Status != constants.AnalysisStatusExtractionUnavailable || a.ErrorCategory != common.CategoryExtractionUnavailable {
		t.Errorf("status %s category %s", a.Status, a.ErrorCategory)
	}
	if cls.calls.Load() != 0 {
		t.Error("classifier called after extraction failure")
	}
}

func TestProcessFileMissingFile(t *testing.T) {
	p := newProcessor(&fakeText{text: report})
	a, err := p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if a.Status != constants.AnalysisStatusFailed {
		t.Errorf("status = %s", a.Status)
	}
}

func TestProcessFileUsesHashFromContext(t *testing.T) {
	text := &fakeText{text: report}
	p := newProcessor(text, WithFields([]string{"Hemoglobin"}))
	ctx := ocr.WithContentHash(context.Background(), "precomputed")

	a, err := p.ProcessFile(ctx, filepath.Join(t.TempDir(), "never-read.pdf"))
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if a.ContentHash != "precomputed" || text.hash != "precomputed" {
		t.Errorf("hash = %q / %q", a.ContentHash, text.hash)
	}
}

func TestProcessTextExtractOnly(t *testing.T) {
	p := newProcessor(nil, WithFields([]string{"Hemoglobin (g/dL)", "WBC Count"}))
	a, err := p.ProcessText(context.Background(), "pasted", report)
	if err != nil {
		t.Fatalf("ProcessText: %v", err)
	}
	vals, ok := a.Vector().Floats()
	if !ok {
		t.Fatalf("vector incomplete: %v", a.Vector())
	}
	if diff := cmp.Diff([]float64{13.5, 7800}, vals); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if a.Severity != "" || a.Status != constants.AnalysisStatusSucceeded || a.Method != "inline" {
		t.Errorf("analysis = %+v", a)
	}
}

func TestProcessFileClassifierError(t *testing.T) {
	cls := &fakeClassifier{names: []string{"Hemoglobin (g/dL)"}, err: common.ErrModel}
	p := newProcessor(&fakeText{text: report}, WithClassifier(cls))

	a, err := p.ProcessFile(context.Background(), writeReport(t))
	if !errors.Is(err, common.ErrModel) {
		t.Fatalf("err = %v, want ErrModel", err)
	}
	if a.Status != constants.AnalysisStatusFailed || a.ErrorCategory != common.CategoryModelUnavailable {
		t.Errorf("status %s category %s", a.Status, a.ErrorCategory)
	}
}

func TestProcessFilePersists(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	repo := repository.NewAnalysisRepository(db, testLogger())

	p := newProcessor(&fakeText{text: report}, WithRepository(repo), WithFields([]string{"Hemoglobin (g/dL)", "MCV (fL)"}))
	a, err := p.ProcessFile(ctx, writeReport(t))
	if !errors.Is(err, common.ErrIncompleteVector) {
		t.Fatalf("err = %v", err)
	}

	stored, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != constants.AnalysisStatusIncompleteVector {
		t.Errorf("stored status = %s", stored.Status)
	}
	if diff := cmp.Diff([]string{"MCV (fL)"}, stored.Missing); diff != "" {
		t.Errorf("stored Missing mismatch (-want +got):\n%s", diff)
	}
	if v, ok := stored.ValueMap()["Hemoglobin (g/dL)"].Float(); !ok || v != 13.5 {
		t.Errorf("stored hemoglobin = %v", stored.ValueMap()["Hemoglobin (g/dL)"])
	}
}
