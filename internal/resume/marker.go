// Package resume decides whether previously produced artifacts are still
// valid by comparing the coverage markers an upstream artifact declares with
// the markers each downstream artifact kind references.
package resume

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Marker is an opaque coverage token, for example a requirement identifier.
type Marker string

// MarkerSet is a set of markers.
type MarkerSet map[Marker]struct{}

// NewMarkerSet returns a set holding markers.
func NewMarkerSet(markers ...Marker) MarkerSet {
	s := make(MarkerSet, len(markers))
	for _, m := range markers {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts m.
func (s MarkerSet) Add(m Marker) {
	s[m] = struct{}{}
}

// Has reports whether m is in the set.
func (s MarkerSet) Has(m Marker) bool {
	_, ok := s[m]
	return ok
}

// Union adds every marker of other to s.
func (s MarkerSet) Union(other MarkerSet) {
	for m := range other {
		s[m] = struct{}{}
	}
}

// Minus returns the markers in s that are not in other.
func (s MarkerSet) Minus(other MarkerSet) MarkerSet {
	out := make(MarkerSet)
	for m := range s {
		if !other.Has(m) {
			out[m] = struct{}{}
		}
	}
	return out
}

// Sorted returns the markers in ascending order.
func (s MarkerSet) Sorted() []Marker {
	out := make([]Marker, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted markers as strings.
func (s MarkerSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, m := range sorted {
		out[i] = string(m)
	}
	return out
}

// Matcher extracts coverage markers from artifact text.
type Matcher interface {
	Match(text string) []Marker
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(text string) []Marker

// Match calls f.
func (f MatcherFunc) Match(text string) []Marker {
	return f(text)
}

// PatternMatcher matches a list of regular expressions. A pattern with a
// capture group yields group 1, otherwise the whole match.
type PatternMatcher struct {
	patterns []*regexp.Regexp
}

// NewPatternMatcher compiles patterns. At least one pattern is required.
func NewPatternMatcher(patterns ...string) (*PatternMatcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("at least one marker pattern is required")
	}
	pm := &PatternMatcher{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("empty marker pattern")
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile marker pattern %q: %w", p, err)
		}
		pm.patterns = append(pm.patterns, re)
	}
	return pm, nil
}

// MustPatternMatcher is like NewPatternMatcher but panics on error.
func MustPatternMatcher(patterns ...string) *PatternMatcher {
	pm, err := NewPatternMatcher(patterns...)
	if err != nil {
		panic(err)
	}
	return pm
}

// Match returns every marker found in text, in order of first appearance
// per pattern. Duplicates are kept; callers collapse them into a MarkerSet.
func (p *PatternMatcher) Match(text string) []Marker {
	var out []Marker
	for _, re := range p.patterns {
		for _, sub := range re.FindAllStringSubmatch(text, -1) {
			m := sub[0]
			if len(sub) > 1 && sub[1] != "" {
				m = sub[1]
			}
			if m != "" {
				out = append(out, Marker(m))
			}
		}
	}
	return out
}

// Patterns returns the source of each compiled pattern.
func (p *PatternMatcher) Patterns() []string {
	out := make([]string, len(p.patterns))
	for i, re := range p.patterns {
		out[i] = re.String()
	}
	return out
}

// ExtractMarkers returns every distinct marker matcher finds in a's content.
func ExtractMarkers(a Artifact, matcher Matcher) MarkerSet {
	set := make(MarkerSet)
	if matcher == nil {
		return set
	}
	for _, m := range matcher.Match(a.Content) {
		set.Add(m)
	}
	return set
}

// ExtractAll returns the union of markers over artifacts.
func ExtractAll(artifacts []Artifact, matcher Matcher) MarkerSet {
	set := make(MarkerSet)
	for _, a := range artifacts {
		set.Union(ExtractMarkers(a, matcher))
	}
	return set
}
