package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Rule is one rewrite step of a Normalizer chain.
type Rule interface {
	Name() string
	Apply(s string) string
}

type regexRule struct {
	name string
	re   *regexp.Regexp
	repl string
}

func (r regexRule) Name() string          { return r.name }
func (r regexRule) Apply(s string) string { return r.re.ReplaceAllString(s, r.repl) }

// Regex returns a case-insensitive rule replacing every match of pattern with repl
// ($1-style group references are expanded). It panics on an invalid pattern.
func Regex(name, pattern, repl string) Rule {
	return regexRule{name: name, re: regexp.MustCompile(`(?i)` + pattern), repl: repl}
}

type funcRule struct {
	name string
	fn   func(string) string
}

func (r funcRule) Name() string          { return r.name }
func (r funcRule) Apply(s string) string { return r.fn(s) }

// Func wraps an arbitrary rewrite as a Rule.
func Func(name string, fn func(string) string) Rule {
	return funcRule{name: name, fn: fn}
}

// LayoutRules canonicalize encoding and whitespace.
func LayoutRules() []Rule {
	return []Rule{
		Regex("layout.crlf", `\r\n?`, "\n"),
		Func("layout.width", width.Fold.String),
		Func("layout.nfc", norm.NFC.String),
		Regex("layout.box-noise", `(?m)^[ \t]*[_\-=─━]{3,}[ \t]*$`, ""),
		Regex("layout.tabs", `[\t\x{00A0}\x{2007}\x{202F}]+`, " "),
		Regex("layout.spaces", ` {2,}`, " "),
		Regex("layout.trailing-spaces", `(?m) +$`, ""),
		Regex("layout.blank-lines", `\n{3,}`, "\n\n"),
	}
}

// TerminologyRules map known synonyms onto one spelling per analyte.
func TerminologyRules() []Rule {
	return []Rule{
		Regex("terminology.haemoglobin", `\bhaemoglobin\b`, "Hemoglobin"),
		Regex("terminology.haematocrit", `\bhaematocrit\b`, "Hematocrit"),
		Regex("terminology.packed-cell-volume", `\bpacked\s+cell\s+volume\b`, "Hematocrit"),
		Regex("terminology.pcv", `\bpcv\b`, "Hematocrit"),
		Regex("terminology.platelets", `\b(?:platelets|plt)\b(?:[ \t]+count\b)?`, "Platelet Count"),
		Regex("terminology.leucocytes", `\b(?:total[ \t]+)?(?:leu[ck]ocyte|wbc)[ \t]+count\b|\btlc\b(?:[ \t]+count\b)?`, "WBC Count"),
		Regex("terminology.erythrocytes", `\b(?:total[ \t]+)?(?:erythrocyte|rbc)[ \t]+count\b`, "RBC Count"),
	}
}

// UnitRules repair unit spellings. The per-cubic-millimetre rule runs first so the
// cells/million rules see "/µL".
func UnitRules() []Rule {
	return []Rule{
		Regex("units.per-cumm", `/[ \t]*(?:(?:cu\.?[ \t]*mm|c\.?mm|mm\^?3)\b|mm³)`, "/µL"),
		Regex("units.cells-per-ul", `\bcells[ \t]*/[ \t]*[pyuμµ]?[l1i]\b`, "cells/µL"),
		Regex("units.million-per-ul", `\bmill(?:ions?)?[ \t]*/[ \t]*[pyuμµ]?[l1i]\b`, "million/µL"),
		Regex("units.micro-litre", `/[ \t]*[pyuμµ][l1i]\b`, "/µL"),
		Regex("units.g-per-dl", `g[ \t]*/[ \t]*d[l1i]\b`, "g/dL"),
		Regex("units.femtolitre", `(^|[^\p{L}])f[l1i]\b`, "${1}fL"),
		Regex("units.picogram", `(^|[^\p{L}])p[gq]\b`, "${1}pg"),
	}
}

var (
	reZeroRun = regexp.MustCompile(`\d[\d.,oO]*\d`)
	reOneRun  = regexp.MustCompile(`\d[\d.,lI]*\d`)
)

// GlyphRules recover digits that OCR read as look-alike letters. Only letters with
// a digit run on both sides are touched.
func GlyphRules() []Rule {
	return []Rule{
		Func("glyphs.zero", func(s string) string {
			return reZeroRun.ReplaceAllStringFunc(s, strings.NewReplacer("o", "0", "O", "0").Replace)
		}),
		Func("glyphs.one", func(s string) string {
			return reOneRun.ReplaceAllStringFunc(s, strings.NewReplacer("l", "1", "I", "1").Replace)
		}),
	}
}

// SeparatorRules canonicalize what sits between a label and its value.
func SeparatorRules() []Rule {
	return []Rule{
		Func("separators.parens", spaceParens),
		Regex("separators.dash", `([\p{L})%])(?:[ \t]+[-–—]+[ \t]*|[ \t]*[-–—]+[ \t]+)(\d)`, "$1: $2"),
		Func("separators.colon", canonicalColons),
	}
}

var (
	reParen      = regexp.MustCompile(`[ \t]*([()])[ \t]*`)
	reLabelColon = regexp.MustCompile(`([^\s\d:=])[ \t]*[:=]+[ \t]*`)
)

// spaceParens writes " (" and ") " around parentheses, except at line edges and
// before closing punctuation.
func spaceParens(s string) string {
	if !strings.ContainsAny(s, "()") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	last := 0
	for _, loc := range reParen.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:loc[0]])
		if s[loc[2]] == '(' {
			if prev := lastByte(&b); prev != 0 && prev != '\n' && prev != ' ' && prev != '(' {
				b.WriteByte(' ')
			}
			b.WriteByte('(')
		} else {
			b.WriteByte(')')
			if loc[1] < len(s) && !strings.ContainsRune("\n:;,.)]", rune(s[loc[1]])) {
				b.WriteByte(' ')
			}
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func lastByte(b *strings.Builder) byte {
	if b.Len() == 0 {
		return 0
	}
	return b.String()[b.Len()-1]
}

// canonicalColons rewrites "label :", "label=" etc. to "label: ", without leaving a
// trailing space when the colon ends a line. A bare "A:G" is left alone.
func canonicalColons(s string) string {
	locs := reLabelColon.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(locs))
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:loc[0]])
		label := s[loc[2]:loc[3]]
		if s[loc[0]:loc[1]] == label+":" && loc[1] < len(s) && isLetter(s[loc[1]:]) {
			b.WriteString(s[loc[0]:loc[1]])
			last = loc[1]
			continue
		}
		b.WriteString(label)
		b.WriteByte(':')
		if loc[1] < len(s) && s[loc[1]] != '\n' {
			b.WriteByte(' ')
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func isLetter(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r)
}

// GroupingRules resolve commas inside numbers according to policy.
func GroupingRules(policy CommaPolicy) []Rule {
	if policy == CommaKeep {
		return nil
	}
	return []Rule{Func("grouping."+policy.String(), policy.groupDigits)}
}

// DefaultRules returns a fresh copy of the full chain, in application order.
func DefaultRules(policy CommaPolicy) []Rule {
	var rules []Rule
	rules = append(rules, LayoutRules()...)
	rules = append(rules, TerminologyRules()...)
	rules = append(rules, UnitRules()...)
	rules = append(rules, GlyphRules()...)
	rules = append(rules, SeparatorRules()...)
	rules = append(rules, GroupingRules(policy)...)
	return append(rules, Func("layout.trim", strings.TrimSpace))
}

// LabelRules is the subset applied to field names: layout and terminology.
func LabelRules() []Rule {
	rules := LayoutRules()
	rules = append(rules, TerminologyRules()...)
	return append(rules, Func("layout.trim", strings.TrimSpace))
}
