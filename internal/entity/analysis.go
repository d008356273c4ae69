package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
	"github.com/joseph-ayodele/labreport-analyzer/internal/extract"
)

// FieldValue is one requested field and what the extractor made of it.
type FieldValue struct {
	Field  string        `json:"field"`
	Value  extract.Value `json:"value"`
	Raw    string        `json:"raw,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// Analysis represents one processed report for data transfer between layers.
type Analysis struct {
	ID            uuid.UUID                `json:"id"`
	SourcePath    string                   `json:"source_path"`
	Filename      string                   `json:"filename"`
	ContentHash   string                   `json:"content_hash,omitempty"`
	Format        string                   `json:"format"`
	Status        constants.AnalysisStatus `json:"status"`
	Severity      string                   `json:"severity,omitempty"`
	Method        string                   `json:"method,omitempty"`
	Pages         int                      `json:"pages"`
	Confidence    float32                  `json:"confidence"`
	Fields        []FieldValue             `json:"fields"`
	Missing       []string                 `json:"missing_fields,omitempty"`
	ErrorCategory string                   `json:"error_category,omitempty"`
	ErrorMessage  string                   `json:"error_message,omitempty"`
	Duration      time.Duration            `json:"duration"`
	CreatedAt     time.Time                `json:"created_at"`
}

// Vector returns the field values in request order.
func (a *Analysis) Vector() extract.Vector {
	v := make(extract.Vector, len(a.Fields))
	for i, f := range a.Fields {
		v[i] = f.Value
	}
	return v
}

// ValueMap returns field name -> value, absent values included.
func (a *Analysis) ValueMap() map[string]extract.Value {
	m := make(map[string]extract.Value, len(a.Fields))
	for _, f := range a.Fields {
		m[f.Field] = f.Value
	}
	return m
}
