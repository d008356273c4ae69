package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/extract"
	"github.com/joseph-ayodele/labreport-analyzer/internal/normalize"
	"github.com/joseph-ayodele/labreport-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

const report = `CITY LAB - COMPLETE BLOOD COUNT
Haemoglobin     13.5  g/dl    13.0 - 17.0
Total Leucocyte Count - 7,800 cells/cumm`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fileText reads plain text files as the extraction result.
type fileText struct{}

func (fileText) Extract(_ context.Context, path string) (extract.TextExtractionResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return extract.TextExtractionResult{}, err
	}
	if len(b) == 0 {
		return extract.TextExtractionResult{}, common.ExtractionUnavailable(path, nil)
	}
	return extract.TextExtractionResult{Text: string(b), Pages: 1, SourceType: constants.TXT, Method: "txt", Confidence: 1}, nil
}

type stubClassifier struct{ names []string }

func (c stubClassifier) FeatureNames() []string { return c.names }

func (c stubClassifier) Predict(context.Context, []float64) (string, error) { return "Normal", nil }

type harness struct {
	client *AnalysisClient
	health healthpb.HealthClient
	repo   repository.AnalysisRepository
}

func startServer(t *testing.T, fields []string, opts ...Option) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(db.Close)
	repo := repository.NewAnalysisRepository(db, testLogger())

	n := normalize.New(normalize.WithLogger(testLogger()))
	proc := pipeline.NewProcessor(fileText{}, n, extract.NewExtractor(n, testLogger()), testLogger(),
		pipeline.WithClassifier(stubClassifier{names: fields}),
		pipeline.WithRepository(repo),
	)
	svc := NewAnalysisService(proc, testLogger(), append([]Option{WithRepository(repo), WithUploadDir(t.TempDir())}, opts...)...)
	gs, _ := NewGRPCServer(svc, testLogger())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &harness{client: NewAnalysisClient(conn), health: healthpb.NewHealthClient(conn), repo: repo}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func analysisOf(t *testing.T, resp *structpb.Struct) map[string]any {
	t.Helper()
	a, ok := resp.AsMap()["analysis"].(map[string]any)
	if !ok {
		t.Fatalf("response has no analysis: %v", resp.AsMap())
	}
	return a
}

var cbcFields = []string{"Hemoglobin (g/dL)", "WBC Count (cells/µL)"}

func TestAnalyze(t *testing.T) {
	h := startServer(t, cbcFields)
	ctx := context.Background()

	tests := []struct {
		name        string
		req         map[string]any
		wantStatus  string
		wantVector  []any
		wantMissing []any
	}{
		{
			name:       "inline text",
			req:        map[string]any{"text": report},
			wantStatus: "SUCCEEDED",
			wantVector: []any{13.5, 7800.0},
		},
		{
			name:       "upload",
			req:        map[string]any{"filename": "cbc.txt", "content_base64": base64.StdEncoding.EncodeToString([]byte(report))},
			wantStatus: "SUCCEEDED",
			wantVector: []any{13.5, 7800.0},
		},
		{
			name:        "incomplete vector is not an rpc error",
			req:         map[string]any{"text": "Haemoglobin 13.5 g/dl"},
			wantStatus:  "INCOMPLETE_VECTOR",
			wantVector:  []any{13.5, nil},
			wantMissing: []any{"WBC Count (cells/µL)"},
		},
		{
			name:        "upload without values",
			req:         map[string]any{"filename": "notes.txt", "content_base64": base64.StdEncoding.EncodeToString([]byte("see attached"))},
			wantStatus:  "INCOMPLETE_VECTOR",
			wantVector:  []any{nil, nil},
			wantMissing: []any{"Hemoglobin (g/dL)", "WBC Count (cells/µL)"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := h.client.Analyze(ctx, mustStruct(t, tc.req))
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			a := analysisOf(t, resp)
			if a["status"] != tc.wantStatus {
				t.Errorf("status = %v, want %s", a["status"], tc.wantStatus)
			}
			if diff := cmp.Diff(tc.wantVector, a["vector"]); diff != "" {
				t.Errorf("vector mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantMissing, a["missing_fields"], cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("missing mismatch (-want +got):\n%s", diff)
			}
			if tc.wantStatus == "SUCCEEDED" && a["severity"] != "Normal" {
				t.Errorf("severity = %v", a["severity"])
			}
		})
	}
}

func TestAnalyzeUploadKeepsClientFilename(t *testing.T) {
	h := startServer(t, cbcFields)
	resp, err := h.client.Analyze(context.Background(), mustStruct(t, map[string]any{
		"filename":       "patient-42.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte(report)),
	}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	a := analysisOf(t, resp)
	if a["filename"] != "patient-42.txt" || a["source_path"] != "upload:patient-42.txt" {
		t.Errorf("filename %v source %v", a["filename"], a["source_path"])
	}
}

func TestAnalyzeEmptyDocument(t *testing.T) {
	h := startServer(t, cbcFields, WithServerPaths(true))
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := h.client.Analyze(context.Background(), mustStruct(t, map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	a := analysisOf(t, resp)
	if a["status"] != "EXTRACTION_UNAVAILABLE" || a["error_category"] != common.CategoryExtractionUnavailable {
		t.Errorf("status %v category %v", a["status"], a["error_category"])
	}
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	h := startServer(t, cbcFields, WithServerPaths(true))
	tests := []struct {
		name string
		req  map[string]any
		want codes.Code
	}{
		{"nothing", map[string]any{}, codes.InvalidArgument},
		{"two inputs", map[string]any{"text": report, "path": "/x.pdf"}, codes.InvalidArgument},
		{"upload without filename", map[string]any{"content_base64": "YWJj"}, codes.InvalidArgument},
		{"unsupported extension", map[string]any{"filename": "r.exe", "content_base64": "YWJj"}, codes.InvalidArgument},
		{"bad base64", map[string]any{"filename": "r.txt", "content_base64": "***"}, codes.InvalidArgument},
		{"missing file", map[string]any{"path": filepath.Join(t.TempDir(), "gone.pdf")}, codes.InvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.client.Analyze(context.Background(), mustStruct(t, tc.req))
			if got := status.Code(err); got != tc.want {
				t.Errorf("code = %s, want %s (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	h := startServer(t, cbcFields, WithMaxUploadMB(1))
	big := make([]byte, 1<<20+1)
	_, err := h.client.Analyze(context.Background(), mustStruct(t, map[string]any{
		"filename":       "big.txt",
		"content_base64": base64.StdEncoding.EncodeToString(big),
	}), grpc.MaxCallSendMsgSize(4<<20))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestServerPathsDisabledByDefault(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(doc, []byte("Hb 13.5"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		opts []Option
		want codes.Code
	}{
		{"default", nil, codes.PermissionDenied},
		{"explicitly off", []Option{WithServerPaths(false)}, codes.PermissionDenied},
		{"opted in", []Option{WithServerPaths(true)}, codes.OK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := startServer(t, cbcFields, tc.opts...)
			_, err := h.client.Analyze(context.Background(), mustStruct(t, map[string]any{"path": doc}))
			if got := status.Code(err); got != tc.want {
				t.Errorf("code = %s, want %s (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestModelUnavailable(t *testing.T) {
	h := startServer(t, cbcFields, WithModelError(errors.New("model file missing")))
	ctx := context.Background()

	_, err := h.client.Analyze(ctx, mustStruct(t, map[string]any{"text": report}))
	if status.Code(err) != codes.Unavailable {
		t.Errorf("err = %v, want Unavailable", err)
	}
	hc, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("health = %s", hc.GetStatus())
	}
}

func TestGetAndListAnalyses(t *testing.T) {
	h := startServer(t, cbcFields)
	ctx := context.Background()

	resp, err := h.client.Analyze(ctx, mustStruct(t, map[string]any{"text": report}))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	id, _ := analysisOf(t, resp)["id"].(string)
	if _, err := h.client.Analyze(ctx, mustStruct(t, map[string]any{"text": "nothing useful"})); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	got, err := h.client.GetAnalysis(ctx, mustStruct(t, map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if a := analysisOf(t, got); a["id"] != id || a["severity"] != "Normal" {
		t.Errorf("GetAnalysis = %v", a)
	}

	_, err = h.client.GetAnalysis(ctx, mustStruct(t, map[string]any{"id": uuid.NewString()}))
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown id: err = %v, want NotFound", err)
	}
	_, err = h.client.GetAnalysis(ctx, mustStruct(t, map[string]any{"id": "nope"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad id: err = %v, want InvalidArgument", err)
	}

	list, err := h.client.ListAnalyses(ctx, mustStruct(t, map[string]any{"status": "succeeded"}))
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	m := list.AsMap()
	if m["total"] != 1.0 || len(m["analyses"].([]any)) != 1 {
		t.Errorf("ListAnalyses = %v", m)
	}
	all, err := h.client.ListAnalyses(ctx, mustStruct(t, map[string]any{"limit": 1}))
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if m := all.AsMap(); m["total"] != 2.0 || len(m["analyses"].([]any)) != 1 {
		t.Errorf("ListAnalyses limit 1 = %v", m)
	}
	_, err = h.client.ListAnalyses(ctx, mustStruct(t, map[string]any{"status": "DONE"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad status: err = %v, want InvalidArgument", err)
	}
}

func TestExportAnalyses(t *testing.T) {
	h := startServer(t, cbcFields)
	ctx := context.Background()
	if _, err := h.client.Analyze(ctx, mustStruct(t, map[string]any{"text": report})); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	resp, err := h.client.ExportAnalyses(ctx, mustStruct(t, nil))
	if err != nil {
		t.Fatalf("ExportAnalyses: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(stringField(resp, "xlsx_base64"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// xlsx is a zip archive
	if len(raw) < 4 || string(raw[:2]) != "PK" {
		t.Errorf("export is not an xlsx archive (%d bytes)", len(raw))
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	h := startServer(t, cbcFields)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-123")
	var header metadata.MD
	if _, err := h.client.Analyze(ctx, mustStruct(t, map[string]any{"text": report}), grpc.Header(&header)); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || got[0] != "req-123" {
		t.Errorf("request id header = %v", got)
	}
}
