package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
)

// ListOptions filters and pages List. Zero values mean "all".
type ListOptions struct {
	Status constants.AnalysisStatus
	Limit  int
	Offset int
}

type AnalysisRepository interface {
	Create(ctx context.Context, a *entity.Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Analysis, error)
	FindByContentHash(ctx context.Context, hash string) (*entity.Analysis, error)
	List(ctx context.Context, opts ListOptions) ([]*entity.Analysis, error)
	Count(ctx context.Context, status constants.AnalysisStatus) (int, error)
	CountByStatus(ctx context.Context) (map[constants.AnalysisStatus]int, error)
}

type analysisRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewAnalysisRepository(db *DB, logger *slog.Logger) AnalysisRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &analysisRepository{db: db, logger: logger}
}

// Create inserts a; a zero ID or CreatedAt is filled in first.
func (r *analysisRepository) Create(ctx context.Context, a *entity.Analysis) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	// postgres keeps microseconds
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Microsecond)

	fields, err := json.Marshal(a.Fields)
	if err != nil {
		return fmt.Errorf("%w: encode fields: %w", common.ErrDatabase, err)
	}
	missing, err := json.Marshal(a.Missing)
	if err != nil {
		return fmt.Errorf("%w: encode missing: %w", common.ErrDatabase, err)
	}

	query, args := r.db.builder().Insert(analysesTable).
		Columns(analysisColumns...).
		Values(
			a.ID,
			a.SourcePath,
			a.Filename,
			a.ContentHash,
			a.Format,
			string(a.Status),
			a.Severity,
			a.Method,
			a.Pages,
			float64(a.Confidence),
			string(fields),
			string(missing),
			a.ErrorCategory,
			a.ErrorMessage,
			a.Duration.Milliseconds(),
			a.CreatedAt,
		).
		Query()
	if _, err := r.db.drv.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("repository.analysis.create.failed", "id", a.ID, "error", err)
		return fmt.Errorf("%w: insert analysis: %w", common.ErrDatabase, err)
	}
	r.logger.Debug("repository.analysis.created", "id", a.ID, "status", a.Status)
	return nil
}

func (r *analysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Analysis, error) {
	sel := r.selectAnalyses().Where(entsql.EQ("id", id))
	return r.one(ctx, sel, "id", id.String())
}

// FindByContentHash returns the newest analysis of a file with the given content hash.
func (r *analysisRepository) FindByContentHash(ctx context.Context, hash string) (*entity.Analysis, error) {
	sel := r.selectAnalyses().
		Where(entsql.EQ("content_hash", hash)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1)
	return r.one(ctx, sel, "content_hash", hash)
}

// List returns analyses newest first.
func (r *analysisRepository) List(ctx context.Context, opts ListOptions) ([]*entity.Analysis, error) {
	sel := r.selectAnalyses().OrderBy(entsql.Desc("created_at"), "id")
	if opts.Status != "" {
		sel = sel.Where(entsql.EQ("status", string(opts.Status)))
	}
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
		if opts.Offset > 0 {
			sel = sel.Offset(opts.Offset)
		}
	}
	return r.many(ctx, sel)
}

// Count returns the number of analyses with status, or of all analyses when status is empty.
func (r *analysisRepository) Count(ctx context.Context, status constants.AnalysisStatus) (int, error) {
	b := r.db.builder()
	sel := b.Select().Count().From(b.Table(analysesTable))
	if status != "" {
		sel = sel.Where(entsql.EQ("status", string(status)))
	}
	query, args := sel.Query()
	var n int64
	if err := r.db.drv.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count analyses: %w", common.ErrDatabase, err)
	}
	return int(n), nil
}

func (r *analysisRepository) CountByStatus(ctx context.Context) (map[constants.AnalysisStatus]int, error) {
	b := r.db.builder()
	query, args := b.Select("status", entsql.Count("*")).
		From(b.Table(analysesTable)).
		GroupBy("status").
		Query()
	rows, err := r.db.drv.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: count analyses: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make(map[constants.AnalysisStatus]int)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %w", common.ErrDatabase, err)
		}
		out[constants.AnalysisStatus(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: count analyses: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *analysisRepository) selectAnalyses() *entsql.Selector {
	b := r.db.builder()
	return b.Select(analysisColumns...).From(b.Table(analysesTable))
}

func (r *analysisRepository) one(ctx context.Context, sel *entsql.Selector, key, value string) (*entity.Analysis, error) {
	list, err := r.many(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: analysis with %s %s", common.ErrNotFound, key, value)
	}
	return list[0], nil
}

func (r *analysisRepository) many(ctx context.Context, sel *entsql.Selector) ([]*entity.Analysis, error) {
	query, args := sel.Query()
	rows, err := r.db.drv.DB().QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("repository.analysis.query.failed", "error", err)
		return nil, fmt.Errorf("%w: query analyses: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan analysis: %w", common.ErrDatabase, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query analyses: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func scanAnalysis(rows *sql.Rows) (*entity.Analysis, error) {
	var (
		a          entity.Analysis
		status     string
		pages      int64
		confidence float64
		fields     string
		missing    string
		durationMS int64
	)
	err := rows.Scan(
		&a.ID,
		&a.SourcePath,
		&a.Filename,
		&a.ContentHash,
		&a.Format,
		&status,
		&a.Severity,
		&a.Method,
		&pages,
		&confidence,
		&fields,
		&missing,
		&a.ErrorCategory,
		&a.ErrorMessage,
		&durationMS,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = constants.AnalysisStatus(status)
	a.Pages = int(pages)
	a.Confidence = float32(confidence)
	a.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(fields), &a.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if err := json.Unmarshal([]byte(missing), &a.Missing); err != nil {
		return nil, fmt.Errorf("decode missing: %w", err)
	}
	return &a, nil
}

// IsNotFound reports whether err means the requested analysis does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
