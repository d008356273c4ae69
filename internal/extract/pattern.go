package extract

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const (
	// unitGroup tolerates a parenthesized unit or reference between label and value.
	unitGroup = `(?:\s*\([^()\n]{0,40}\))?`
	// separatorRun is bounded so a label never reaches a number several lines away.
	separatorRun = `[\s:=|\-–—]{0,16}`
	// lakh grouping ("2,45,000") is tried before thousands grouping
	numberExpr = `(\d{1,2}(?:,\d{2})+,\d{3}(?:\.\d+)?|\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?|\.\d+)`
)

var reUnitSuffix = regexp.MustCompile(`\s*\([^()]*\)\s*$`)

// CoreLabel strips trailing parenthesized unit suffixes: "Hemoglobin (g/dL)" becomes
// "Hemoglobin". A name that is only a parenthesized group is returned unchanged.
func CoreLabel(field string) string {
	field = strings.TrimSpace(field)
	core := field
	for {
		next := reUnitSuffix.ReplaceAllString(core, "")
		if next == core {
			break
		}
		core = next
	}
	if core == "" {
		return field
	}
	return core
}

type anchor struct {
	text string
	re   *regexp.Regexp
}

type fieldPattern struct {
	field   string
	key     string // lower-cased primary anchor; claims are keyed on it
	anchors []anchor
}

// anchorExpr turns a label into a case-insensitive pattern that tolerates whitespace
// differences. Word boundaries are added only on edges that are word characters.
func anchorExpr(label string) string {
	var b strings.Builder
	first, _ := utf8.DecodeRuneInString(label)
	if isWordRune(first) {
		b.WriteString(`(?:^|[^\p{L}\p{N}_])`)
	}
	b.WriteString("(")
	for i, tok := range strings.Fields(label) {
		if i > 0 {
			if strings.HasPrefix(tok, "(") {
				b.WriteString(`\s*`)
			} else {
				b.WriteString(`\s+`)
			}
		}
		q := regexp.QuoteMeta(tok)
		q = strings.ReplaceAll(q, `\(`, `\(\s*`)
		q = strings.ReplaceAll(q, `\)`, `\s*\)`)
		b.WriteString(q)
	}
	b.WriteString(")")
	// a letter after the label is already excluded by what may follow it;
	// a trailing digit needs an explicit boundary so "B12" does not match "B123".
	last, _ := utf8.DecodeLastRuneInString(label)
	if unicode.IsDigit(last) {
		b.WriteString(`\b`)
	}
	return `(?i)` + b.String() + unitGroup + separatorRun + numberExpr
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// PatternCache memoizes compiled field patterns. It is safe for concurrent use.
type PatternCache struct {
	mu       sync.RWMutex
	patterns map[string]*fieldPattern
	build    func(field string) *fieldPattern
}

func newPatternCache(build func(string) *fieldPattern) *PatternCache {
	return &PatternCache{patterns: make(map[string]*fieldPattern), build: build}
}

func (c *PatternCache) get(field string) *fieldPattern {
	c.mu.RLock()
	p, ok := c.patterns[field]
	c.mu.RUnlock()
	if ok {
		return p
	}
	p = c.build(field)
	c.mu.Lock()
	if existing, ok := c.patterns[field]; ok {
		p = existing
	} else {
		c.patterns[field] = p
	}
	c.mu.Unlock()
	return p
}

// Len reports how many field patterns are cached.
func (c *PatternCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.patterns)
}
