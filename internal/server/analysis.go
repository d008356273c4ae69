package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
	"github.com/joseph-ayodele/labreport-analyzer/internal/export"
	"github.com/joseph-ayodele/labreport-analyzer/internal/ingest"
	"github.com/joseph-ayodele/labreport-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

const maxInlineTextRunes = 1 << 20

// AnalysisService serves analyses over gRPC.
type AnalysisService struct {
	proc       *pipeline.Processor
	repo       repository.AnalysisRepository
	exporter   *export.Service
	modelErr   error
	timeout    time.Duration
	maxUpload  int
	uploadDir  string
	allowPaths bool
	logger     *slog.Logger
}

type Option func(*AnalysisService)

// WithRepository enables GetAnalysis, ListAnalyses and ExportAnalyses.
func WithRepository(r repository.AnalysisRepository) Option {
	return func(s *AnalysisService) { s.repo = r }
}

// WithModelError marks the service as unable to classify; Analyze then fails with
// Unavailable and the health status is NOT_SERVING.
func WithModelError(err error) Option {
	return func(s *AnalysisService) { s.modelErr = err }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(s *AnalysisService) { s.timeout = d }
}

func WithMaxUploadMB(mb int) Option {
	return func(s *AnalysisService) {
		if mb > 0 {
			s.maxUpload = mb << 20
		}
	}
}

// WithUploadDir sets where uploaded content is staged; default os.TempDir.
func WithUploadDir(dir string) Option {
	return func(s *AnalysisService) { s.uploadDir = dir }
}

// WithServerPaths lets callers name files on the server's filesystem. Off by
// default; only uploads and inline text are accepted.
func WithServerPaths(allow bool) Option {
	return func(s *AnalysisService) { s.allowPaths = allow }
}

func NewAnalysisService(proc *pipeline.Processor, logger *slog.Logger, opts ...Option) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AnalysisService{
		proc:      proc,
		maxUpload: constants.MaxUploadMBDefault << 20,
		logger:    logger,
	}
	for _, o := range opts {
		o(s)
	}
	if s.repo != nil {
		s.exporter = export.NewService(s.repo, logger)
	}
	return s
}

// Ready reports whether Analyze can serve requests.
func (s *AnalysisService) Ready() bool {
	return s.proc != nil && s.modelErr == nil
}

// Analyze accepts exactly one of "path", "text" or "content_base64" (with
// "filename") and returns the analysis. Incomplete vectors and unreadable
// documents are reported in the response status, not as RPC errors.
func (s *AnalysisService) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	logger := common.LoggerFromContext(ctx, s.logger)
	if !s.Ready() {
		logger.Error("analyze.unavailable", "error", s.modelErr)
		return nil, common.UnavailableError("classifier model not loaded")
	}

	path := strings.TrimSpace(stringField(req, "path"))
	text := stringField(req, "text")
	content := stringField(req, "content_base64")
	filename := strings.TrimSpace(stringField(req, "filename"))

	given := 0
	for _, v := range []string{path, text, content} {
		if v != "" {
			given++
		}
	}
	if given != 1 {
		return nil, common.InvalidArgumentError("exactly one of path, text or content_base64 is required")
	}

	ctx, cancel := common.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		a   *entity.Analysis
		err error
	)
	switch {
	case text != "":
		v := common.NewValidator().Field("text", text, common.MaxLength(maxInlineTextRunes))
		if err := common.ValidateAndReturnError(v); err != nil {
			return nil, err
		}
		name := filename
		if name == "" {
			name = "inline.txt"
		}
		a, err = s.proc.ProcessText(ctx, name, text)
	case content != "":
		staged, cleanup, serr := s.stageUpload(filename, content)
		if serr != nil {
			return nil, serr
		}
		defer cleanup()
		a, err = s.proc.ProcessUpload(ctx, staged, filename)
	default:
		if !s.allowPaths {
			return nil, status.Error(codes.PermissionDenied, "server paths are disabled")
		}
		a, err = s.proc.ProcessFile(ctx, path)
	}

	if err != nil && !isDomainFailure(err) {
		logger.Warn("analyze.failed", "error", err, "category", common.Category(err))
		return nil, toStatus(err)
	}
	logger.Info("analyze.ok", "analysis_id", a.ID, "status", a.Status, "severity", a.Severity)
	return toStruct(map[string]any{"analysis": analysisMap(a)})
}

// stageUpload writes decoded content to a temp file named after filename's
// extension so the extractor can pick a route.
func (s *AnalysisService) stageUpload(filename, content string) (string, func(), error) {
	v := common.NewValidator().
		Field("filename", filename, common.Required, common.MaxLength(255))
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", nil, err
	}
	ext := filepath.Ext(filename)
	if !ingest.AllowedExt(ext) {
		return "", nil, common.InvalidArgumentErrorf("unsupported file extension %q", ext)
	}
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", nil, common.InvalidArgumentErrorf("content_base64: %v", err)
	}
	v = common.NewValidator().Field("content_base64", data, common.MaxBytes(s.maxUpload))
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp(s.uploadDir, "upload-*"+strings.ToLower(ext))
	if err != nil {
		s.logger.Error("analyze.upload.stage_failed", "error", err)
		return "", nil, common.InternalError("stage upload failed")
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, common.InternalError("stage upload failed")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, common.InternalError("stage upload failed")
	}
	return f.Name(), cleanup, nil
}

func (s *AnalysisService) GetAnalysis(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.repo == nil {
		return nil, status.Error(codes.Unimplemented, "no analysis store configured")
	}
	raw := strings.TrimSpace(stringField(req, "id"))
	v := common.NewValidator().Field("id", raw, common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, uuid.MustParse(raw))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, common.NotFoundError("analysis not found")
		}
		common.LoggerFromContext(ctx, s.logger).Error("get_analysis.failed", "id", raw, "error", err)
		return nil, common.InternalError("get analysis failed")
	}
	return toStruct(map[string]any{"analysis": analysisMap(a)})
}

// ListAnalyses returns stored analyses newest first. Optional "status", "limit"
// and "offset" narrow the result; "total" counts all matches.
func (s *AnalysisService) ListAnalyses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.repo == nil {
		return nil, status.Error(codes.Unimplemented, "no analysis store configured")
	}
	opts, err := listOptions(req)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.List(ctx, opts)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Error("list_analyses.failed", "error", err)
		return nil, common.InternalError("list analyses failed")
	}
	total, err := s.repo.Count(ctx, opts.Status)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Error("list_analyses.count_failed", "error", err)
		return nil, common.InternalError("count analyses failed")
	}
	out := make([]any, len(list))
	for i, a := range list {
		out[i] = analysisMap(a)
	}
	return toStruct(map[string]any{"analyses": out, "total": total})
}

// ExportAnalyses returns an XLSX workbook as base64.
func (s *AnalysisService) ExportAnalyses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, status.Error(codes.Unimplemented, "no analysis store configured")
	}
	opts, err := listOptions(req)
	if err != nil {
		return nil, err
	}
	buf, err := s.exporter.ExportAnalysesXLSX(ctx, opts)
	if err != nil {
		common.LoggerFromContext(ctx, s.logger).Error("export_analyses.failed", "error", err)
		return nil, common.InternalError("export failed")
	}
	return toStruct(map[string]any{
		"filename":    "analyses.xlsx",
		"xlsx_base64": base64.StdEncoding.EncodeToString(buf),
		"size":        len(buf),
	})
}

func listOptions(req *structpb.Struct) (repository.ListOptions, error) {
	st := strings.ToUpper(strings.TrimSpace(stringField(req, "status")))
	opts := repository.ListOptions{
		Status: constants.AnalysisStatus(st),
		Limit:  intField(req, "limit"),
		Offset: intField(req, "offset"),
	}
	if st != "" {
		allowed := make([]string, len(constants.Statuses))
		for i, s := range constants.Statuses {
			allowed[i] = string(s)
		}
		v := common.NewValidator().Field("status", st, common.OneOf(allowed...))
		if err := common.ValidateAndReturnError(v); err != nil {
			return opts, err
		}
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return opts, common.InvalidArgumentError("limit and offset must not be negative")
	}
	return opts, nil
}

func isDomainFailure(err error) bool {
	return errors.Is(err, common.ErrIncompleteVector) || errors.Is(err, common.ErrExtractionUnavailable)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return common.InvalidArgumentError(err.Error())
	case errors.Is(err, common.ErrModel):
		return common.UnavailableError(err.Error())
	default:
		return common.InternalError("analysis failed")
	}
}
