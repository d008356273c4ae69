package ocr

import (
	"regexp"
	"strings"
)

var (
	reLabUnit    = regexp.MustCompile(`(?i)g\s*/\s*d[l1i]|\bf[l1i]\b|\bp[gq]\b|/\s*(?:[uµμ][l1i]|cumm|cu\s*mm|mm3)|cells|million|%`)
	reAnalyte    = regexp.MustCompile(`(?i)\b(?:ha?emoglobin|hb|platelets?|wbc|rbc|mcv|mchc?|ha?ematocrit|pcv|leu[ck]ocytes?)\b`)
	reMeasure    = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b|\b\d+\.\d+\b`)
	reReportWord = regexp.MustCompile(`(?i)\b(?:reference|range|result|specimen|patient|blood)\b`)
)

// heuristicConfidence scores how much decoded text looks like a lab report:
// unit spellings, analyte names and measurement-shaped numbers each add weight.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2) // base
	if reLabUnit.MatchString(txt) {
		score += 0.2
	}
	if n := len(reAnalyte.FindAllStringIndex(txt, 8)); n > 0 {
		score += 0.05 * float32(n)
	}
	if reMeasure.MatchString(txt) {
		score += 0.15
	}
	if reReportWord.MatchString(txt) {
		score += 0.05
	}
	if len(strings.TrimSpace(txt)) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence weights the engine's own confidence higher than the heuristic.
func blendConfidence(ocrConf, heurConf float32) float32 {
	conf := 0.7*ocrConf + 0.3*heurConf
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
