package server

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/labreport-analyzer/internal/entity"
)

// analysisMap renders a as the JSON-shaped map carried in responses. Absent values
// are null; "vector" lists the values in field order.
func analysisMap(a *entity.Analysis) map[string]any {
	fields := make([]any, 0, len(a.Fields))
	vector := make([]any, 0, len(a.Fields))
	for _, fv := range a.Fields {
		var v any
		if f, ok := fv.Value.Float(); ok {
			v = f
		}
		vector = append(vector, v)
		m := map[string]any{"field": fv.Field, "value": v}
		if fv.Raw != "" {
			m["raw"] = fv.Raw
		}
		if fv.Reason != "" {
			m["reason"] = fv.Reason
		}
		fields = append(fields, m)
	}
	missing := make([]any, len(a.Missing))
	for i, name := range a.Missing {
		missing[i] = name
	}

	out := map[string]any{
		"id":             a.ID.String(),
		"source_path":    a.SourcePath,
		"filename":       a.Filename,
		"content_hash":   a.ContentHash,
		"format":         a.Format,
		"status":         string(a.Status),
		"severity":       a.Severity,
		"method":         a.Method,
		"pages":          a.Pages,
		"confidence":     float64(a.Confidence),
		"fields":         fields,
		"vector":         vector,
		"missing_fields": missing,
		"duration_ms":    a.Duration.Milliseconds(),
		"created_at":     a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if a.ErrorCategory != "" {
		out["error_category"] = a.ErrorCategory
		out["error"] = a.ErrorMessage
	}
	return out
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func intField(s *structpb.Struct, key string) int {
	if s == nil {
		return 0
	}
	return int(s.GetFields()[key].GetNumberValue())
}
