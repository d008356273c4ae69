// Package normalize rewrites noisy OCR text into a canonical form so that lab-report
// field values can be located with simple anchored patterns.
//
// A Normalizer is an ordered chain of Rules. The default chain runs, in order:
// layout, terminology, units, glyphs, separators and digit grouping. Rules later in
// the chain depend on earlier ones (units must be canonical before separators are
// rewritten), so custom chains should keep that order.
package normalize

import (
	"log/slog"
)

// Normalizer is safe for concurrent use; it holds no mutable state after New.
type Normalizer struct {
	rules      []Rule
	labelRules []Rule
	policy     CommaPolicy
	logger     *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithCommaPolicy selects how commas inside numbers are resolved.
func WithCommaPolicy(p CommaPolicy) Option {
	return func(n *Normalizer) { n.policy = p }
}

// WithRules replaces the default chain.
func WithRules(rules ...Rule) Option {
	return func(n *Normalizer) { n.rules = append([]Rule(nil), rules...) }
}

// WithLogger sets the logger used by Trace.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// New builds a Normalizer; without options it runs DefaultRules(CommaAuto).
func New(opts ...Option) *Normalizer {
	n := &Normalizer{policy: CommaAuto}
	for _, opt := range opts {
		opt(n)
	}
	if n.rules == nil {
		n.rules = DefaultRules(n.policy)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	n.labelRules = LabelRules()
	return n
}

// Policy reports the comma policy the default chain was built with.
func (n *Normalizer) Policy() CommaPolicy { return n.policy }

// Normalize returns the canonical form of text. It never fails and applying it to its
// own output returns the same string.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return text
	}
	for _, r := range n.rules {
		text = r.Apply(text)
	}
	return text
}

// Trace normalizes text and reports the names of the rules that changed it.
func (n *Normalizer) Trace(text string) (string, []string) {
	var fired []string
	for _, r := range n.rules {
		next := r.Apply(text)
		if next != text {
			fired = append(fired, r.Name())
		}
		text = next
	}
	n.logger.Debug("normalize.trace", "rules_fired", fired, "length", len(text))
	return text, fired
}

// CanonicalLabel applies only the layout and terminology rules, so a field name such
// as "Platelets" anchors on the same spelling Normalize produces for the text.
func (n *Normalizer) CanonicalLabel(label string) string {
	for _, r := range n.labelRules {
		label = r.Apply(label)
	}
	return label
}

// Rules lists the chain's rule names in application order.
func (n *Normalizer) Rules() []string {
	names := make([]string, len(n.rules))
	for i, r := range n.rules {
		names[i] = r.Name()
	}
	return names
}
