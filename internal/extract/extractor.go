package extract

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
)

// Reasons reported for absent fields.
const (
	ReasonNotFound    = "not_found"
	ReasonUnparseable = "unparseable"
	ReasonAmbiguous   = "ambiguous_number"
)

// Labeler maps a label to the spelling the normalizer produces for it.
// *normalize.Normalizer satisfies it.
type Labeler interface {
	CanonicalLabel(label string) string
}

// FieldResult is the outcome for one requested field.
type FieldResult struct {
	Field  string `json:"field"`
	Value  Value  `json:"value"`
	Anchor string `json:"anchor,omitempty"` // label text as it appeared
	Raw    string `json:"raw,omitempty"`    // captured number as it appeared
	Offset int    `json:"offset"`           // byte offset of the anchor, -1 when not found
	Reason string `json:"reason,omitempty"` // empty when a value was found
}

func (r FieldResult) Found() bool { return !r.Value.IsAbsent() }

// Extractor locates one numeric value per field name in canonical text.
// It is safe for concurrent use.
type Extractor struct {
	labeler Labeler
	cache   *PatternCache
	logger  *slog.Logger
}

// NewExtractor builds an Extractor. labeler may be nil, in which case field names
// are anchored exactly as given.
func NewExtractor(labeler Labeler, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{labeler: labeler, logger: logger}
	e.cache = newPatternCache(e.buildPattern)
	return e
}

// Cache exposes the pattern cache for inspection.
func (e *Extractor) Cache() *PatternCache { return e.cache }

// Extract returns one Value per field, in the same order as fields.
func (e *Extractor) Extract(text string, fields []string) Vector {
	results := e.ExtractDetailed(text, fields)
	vec := make(Vector, len(results))
	for i, r := range results {
		vec[i] = r.Value
	}
	return vec
}

type claim struct {
	start, end int
	key        string
}

// ExtractDetailed is Extract with match diagnostics.
//
// Fields are matched longest label first. Once a field has matched, its label span is
// claimed: a shorter label found inside it (for example "Count" inside "RBC Count")
// is skipped and the search continues with the next occurrence.
func (e *Extractor) ExtractDetailed(text string, fields []string) []FieldResult {
	results := make([]FieldResult, len(fields))
	patterns := make([]*fieldPattern, len(fields))
	order := make([]int, len(fields))
	for i, f := range fields {
		patterns[i] = e.cache.get(f)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(patterns[order[a]].key) > len(patterns[order[b]].key)
	})

	var claims []claim
	for _, i := range order {
		res, end := match(text, patterns[i], claims)
		if res.Offset >= 0 {
			claims = append(claims, claim{start: res.Offset, end: end, key: patterns[i].key})
		}
		results[i] = res
		e.logResult(res)
	}
	return results
}

func match(text string, p *fieldPattern, claims []claim) (FieldResult, int) {
	for _, a := range p.anchors {
		for _, m := range a.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			if claimedByOther(claims, start, end, p.key) {
				continue
			}
			raw := text[m[4]:m[5]]
			res := FieldResult{Field: p.field, Anchor: text[start:end], Raw: raw, Offset: start}
			if truncatedAt(text, m[5]) {
				res.Reason = ReasonAmbiguous
				return res, end
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				res.Reason = ReasonUnparseable
				return res, end
			}
			res.Value = Present(v)
			return res, end
		}
	}
	return FieldResult{Field: p.field, Offset: -1, Reason: ReasonNotFound}, -1
}

func claimedByOther(claims []claim, start, end int, key string) bool {
	for _, c := range claims {
		if c.key != key && start < c.end && c.start < end {
			return true
		}
	}
	return false
}

// truncatedAt reports whether the number ending at i continues with a digit, ",d"
// or ".d", i.e. the capture is a truncated prefix of a longer number ("1,2345").
func truncatedAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	if isDigit(text[i]) {
		return true
	}
	return (text[i] == ',' || text[i] == '.') && i+1 < len(text) && isDigit(text[i+1])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (e *Extractor) buildPattern(field string) *fieldPattern {
	full := strings.Join(strings.Fields(field), " ")
	core := CoreLabel(full)
	canon := core
	if e.labeler != nil && core != "" {
		canon = strings.TrimSpace(e.labeler.CanonicalLabel(core))
	}

	p := &fieldPattern{field: field}
	var seen []string
	for _, label := range []string{canon, core, full} {
		if label == "" || containsFold(seen, label) {
			continue
		}
		re, err := regexp.Compile(anchorExpr(label))
		if err != nil {
			e.logger.Warn("extract.pattern.invalid", "field", field, "anchor", label, "error", err)
			continue
		}
		seen = append(seen, label)
		p.anchors = append(p.anchors, anchor{text: label, re: re})
	}
	if len(seen) > 0 {
		p.key = strings.ToLower(seen[0])
	}
	return p
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

func (e *Extractor) logResult(r FieldResult) {
	if r.Found() {
		e.logger.Debug("extract.field.found",
			"field", r.Field, "anchor", r.Anchor, "raw", r.Raw, "value", r.Value.String(), "offset", r.Offset)
		return
	}
	e.logger.Warn("extract.field.missing",
		"field", r.Field, "anchor", r.Anchor, "raw", r.Raw, "reason", r.Reason, "offset", r.Offset)
}

// AbsentErrors lists the absent fields of results as FieldAbsentErrors, in order.
func AbsentErrors(results []FieldResult) []common.FieldAbsentError {
	var out []common.FieldAbsentError
	for _, r := range results {
		if !r.Found() {
			out = append(out, common.FieldAbsentError{Field: r.Field, Reason: r.Reason})
		}
	}
	return out
}

// ValuesByField maps each field name to its value; absent values encode as JSON null.
func ValuesByField(results []FieldResult) map[string]Value {
	out := make(map[string]Value, len(results))
	for _, r := range results {
		out[r.Field] = r.Value
	}
	return out
}
