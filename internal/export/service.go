package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
	"github.com/joseph-ayodele/labreport-analyzer/internal/repository"
)

const (
	sheetAnalyses = "Analyses"
	sheetSummary  = "Summary"
)

// Service is a tiny façade over the analysis store that produces XLSX bytes.
type Service struct {
	repo   repository.AnalysisRepository
	logger *slog.Logger
}

func NewService(repo repository.AnalysisRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportAnalysesXLSX returns a workbook with one row per stored analysis and one
// column per field seen across them, plus a per-status summary sheet.
func (s *Service) ExportAnalysesXLSX(ctx context.Context, opts repository.ListOptions) ([]byte, error) {
	start := time.Now()
	list, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	buf, err := WriteXLSX(list)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(list),
		"status", opts.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

// WriteXLSX renders analyses without touching the store.
func WriteXLSX(list []*entity.Analysis) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// the default sheet becomes the analyses sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheetAnalyses); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, err
	}

	fields := fieldColumns(list)
	headers := []string{"Created", "File", "Format", "Status", "Severity", "Confidence", "Missing Fields"}
	headers = append(headers, fields...)
	headers = append(headers, "Error", "Source Path")
	if err := writeRow(f, sheetAnalyses, 1, toAny(headers)); err != nil {
		return nil, err
	}

	for i, a := range list {
		row := []any{
			a.CreatedAt.Format("2006-01-02 15:04:05"),
			a.Filename,
			a.Format,
			string(a.Status),
			a.Severity,
			a.Confidence,
			strings.Join(a.Missing, "; "),
		}
		values := a.ValueMap()
		for _, name := range fields {
			if v, ok := values[name].Float(); ok {
				row = append(row, v)
			} else {
				row = append(row, "")
			}
		}
		row = append(row, truncate(a.ErrorMessage, 140), a.SourcePath)
		if err := writeRow(f, sheetAnalyses, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := writeSummary(f, list); err != nil {
		return nil, err
	}

	// widen a few columns
	_ = f.SetColWidth(sheetAnalyses, "A", "A", 20)
	_ = f.SetColWidth(sheetAnalyses, "B", "B", 28)
	_ = f.SetColWidth(sheetAnalyses, "D", "D", 24)
	_ = f.SetColWidth(sheetAnalyses, "G", "G", 36)
	_ = f.SetPanes(sheetAnalyses, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, list []*entity.Analysis) error {
	counts := make(map[constants.AnalysisStatus]int)
	severities := make(map[string]int)
	var order []string
	for _, a := range list {
		counts[a.Status]++
		if a.Severity != "" {
			if severities[a.Severity] == 0 {
				order = append(order, a.Severity)
			}
			severities[a.Severity]++
		}
	}

	if err := writeRow(f, sheetSummary, 1, []any{"Status", "Count"}); err != nil {
		return err
	}
	row := 2
	for _, st := range constants.Statuses {
		if err := writeRow(f, sheetSummary, row, []any{string(st), counts[st]}); err != nil {
			return err
		}
		row++
	}
	row++
	if err := writeRow(f, sheetSummary, row, []any{"Severity", "Count"}); err != nil {
		return err
	}
	for _, sev := range order {
		row++
		if err := writeRow(f, sheetSummary, row, []any{sev, severities[sev]}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 26)
	return nil
}

// fieldColumns lists field names in order of first appearance.
func fieldColumns(list []*entity.Analysis) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range list {
		for _, fv := range a.Fields {
			if _, ok := seen[fv.Field]; ok {
				continue
			}
			seen[fv.Field] = struct{}{}
			out = append(out, fv.Field)
		}
	}
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
