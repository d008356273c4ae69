package constants

// AnalysisStatus is the canonical outcome stored on every analysis row.
type AnalysisStatus string

// Stable values (store these exact strings in DB).
const (
	AnalysisStatusRunning               AnalysisStatus = "RUNNING"
	AnalysisStatusSucceeded             AnalysisStatus = "SUCCEEDED"              // severity predicted
	AnalysisStatusExtractionUnavailable AnalysisStatus = "EXTRACTION_UNAVAILABLE" // upstream produced no text
	AnalysisStatusIncompleteVector      AnalysisStatus = "INCOMPLETE_VECTOR"      // one or more fields absent
	AnalysisStatusFailed                AnalysisStatus = "FAILED"                 // anything else
)

// Statuses lists every status in display order.
var Statuses = []AnalysisStatus{
	AnalysisStatusRunning,
	AnalysisStatusSucceeded,
	AnalysisStatusExtractionUnavailable,
	AnalysisStatusIncompleteVector,
	AnalysisStatusFailed,
}
