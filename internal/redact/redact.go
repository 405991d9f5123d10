// Package redact masks credentials in document text before it is chunked
// and embedded, so a key pasted into a policy document never reaches the
// vector store or a prompt.
package redact

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultReplacement is written in place of each masked span.
const DefaultReplacement = "[REDACTED]"

// Config configures a Redactor.
type Config struct {
	// Replacement substitutes each match. Empty uses DefaultReplacement.
	Replacement string
	// Rules to apply. Nil uses DefaultRules.
	Rules []Rule
	// AllowList holds patterns; a match that also matches one is kept.
	AllowList []string
}

// Rule detects one kind of credential.
type Rule struct {
	ID      string
	Pattern string
	// Keywords gate the rule: when set, at least one must appear
	// (case-insensitively) somewhere in the text.
	Keywords []string
}

// Report summarizes one Redact call. Matched values are never recorded.
type Report struct {
	Total  int
	ByRule map[string]int
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

type span struct {
	start, end int
}

// Redactor masks credentials. It is safe for concurrent use.
type Redactor struct {
	replacement string
	rules       []compiledRule
	allow       []*regexp.Regexp
}

// New compiles cfg.
func New(cfg Config) (*Redactor, error) {
	r := &Redactor{replacement: cfg.Replacement}
	if r.replacement == "" {
		r.replacement = DefaultReplacement
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	for i, rule := range rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil || rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: invalid pattern %q", rule.ID, rule.Pattern)
		}
		c := compiledRule{id: rule.ID, pattern: re}
		for _, kw := range rule.Keywords {
			c.keywords = append(c.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		r.rules = append(r.rules, c)
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: %w", i, err)
		}
		r.allow = append(r.allow, re)
	}
	return r, nil
}

// Redact returns text with every rule match replaced. Overlapping matches
// collapse into a single replacement.
func (r *Redactor) Redact(text string) (string, Report) {
	report := Report{ByRule: make(map[string]int)}
	var spans []span

	for _, rule := range r.rules {
		if !rule.applies(text) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(text, -1) {
			if r.allowed(text[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{start: m[0], end: m[1]})
			report.ByRule[rule.id]++
			report.Total++
		}
	}
	if len(spans) == 0 {
		return text, report
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		merged = append(merged, s)
	}

	out := make([]byte, 0, len(text))
	prev := 0
	for _, s := range merged {
		out = append(out, text[prev:s.start]...)
		out = append(out, r.replacement...)
		prev = s.end
	}
	out = append(out, text[prev:]...)
	return string(out), report
}

func (c compiledRule) applies(text string) bool {
	if len(c.keywords) == 0 {
		return true
	}
	for _, kw := range c.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (r *Redactor) allowed(match string) bool {
	for _, re := range r.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
