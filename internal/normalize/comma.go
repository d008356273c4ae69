package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// CommaPolicy decides what a comma between digits means.
type CommaPolicy int

const (
	// CommaAuto removes commas in well-formed thousands groups ("250,000") and in
	// Indian lakh grouping ("2,45,000", "1,50,00,000"), and reads a single comma
	// followed by one or two digits as a decimal point ("13,5"). Anything else
	// ("1,2345") is left untouched.
	CommaAuto CommaPolicy = iota
	// CommaThousands removes every comma between two digits.
	CommaThousands
	// CommaDecimal reads a single comma between digits as a decimal point.
	CommaDecimal
	// CommaKeep never touches commas.
	CommaKeep
)

func (p CommaPolicy) String() string {
	switch p {
	case CommaAuto:
		return "auto"
	case CommaThousands:
		return "thousands"
	case CommaDecimal:
		return "decimal"
	case CommaKeep:
		return "keep"
	default:
		return fmt.Sprintf("CommaPolicy(%d)", int(p))
	}
}

// ParseCommaPolicy parses the configuration spelling of a policy.
func ParseCommaPolicy(s string) (CommaPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CommaAuto, nil
	case "thousands":
		return CommaThousands, nil
	case "decimal":
		return CommaDecimal, nil
	case "keep", "none":
		return CommaKeep, nil
	}
	return CommaAuto, fmt.Errorf("unknown comma policy %q (want auto, thousands, decimal or keep)", s)
}

var (
	reCommaNumber  = regexp.MustCompile(`\d[\d,]*\d(?:\.\d+)?`)
	reGrouped      = regexp.MustCompile(`^(?:\d{1,3}(?:,\d{3})+|\d{1,2}(?:,\d{2})+,\d{3})(?:\.\d+)?$`)
	reDecimalComma = regexp.MustCompile(`^\d+,\d{1,2}$`)
	reSingleComma  = regexp.MustCompile(`^\d+,\d+$`)
)

// rewriteToken applies policy to one digit run that contains commas.
func (p CommaPolicy) rewriteToken(tok string) string {
	switch p {
	case CommaAuto:
		if reGrouped.MatchString(tok) {
			return strings.ReplaceAll(tok, ",", "")
		}
		if reDecimalComma.MatchString(tok) {
			return strings.Replace(tok, ",", ".", 1)
		}
	case CommaThousands:
		return strings.ReplaceAll(tok, ",", "")
	case CommaDecimal:
		if reSingleComma.MatchString(tok) {
			return strings.Replace(tok, ",", ".", 1)
		}
	}
	return tok
}

// groupDigits rewrites every comma-bearing number in s according to p.
// Runs that continue a decimal fraction ("0.123,456") are not touched.
func (p CommaPolicy) groupDigits(s string) string {
	if p == CommaKeep || !strings.Contains(s, ",") {
		return s
	}
	locs := reCommaNumber.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range locs {
		tok := s[loc[0]:loc[1]]
		if !strings.Contains(tok, ",") || (loc[0] > 0 && s[loc[0]-1] == '.') {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(p.rewriteToken(tok))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
