package resume

import (
	"sort"
	"time"

	"github.com/felixgeelhaar/docflow/internal/log"
)

// Stale reasons reported per kind.
const (
	ReasonMarkers   = "markers"
	ReasonTimestamp = "timestamp"
	ReasonMissing   = "missing"
)

// FallbackPolicy controls when the timestamp comparison runs.
type FallbackPolicy int

const (
	// FallbackNoEvidence compares timestamps only when markers show no
	// evidence of staleness, that is when no kind misses an upstream marker.
	FallbackNoEvidence FallbackPolicy = iota
	// FallbackAlways compares timestamps for every kind that is not already
	// stale by markers, even when other kinds are.
	FallbackAlways
	// FallbackNever disables the timestamp comparison; only marker evidence
	// decides.
	FallbackNever
)

// ParseFallbackPolicy maps a config value to a policy. Unknown values give
// FallbackNoEvidence.
func ParseFallbackPolicy(s string) FallbackPolicy {
	switch s {
	case "always":
		return FallbackAlways
	case "never":
		return FallbackNever
	default:
		return FallbackNoEvidence
	}
}

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackAlways:
		return "always"
	case FallbackNever:
		return "never"
	default:
		return "no-evidence"
	}
}

// FindStale returns, per downstream kind, the upstream markers that no
// artifact of that kind references. Kinds with full coverage are omitted.
// A kind without a matcher in matchers is scanned with fallback.
func FindStale(upstream MarkerSet, downstream map[string][]Artifact, matchers map[string]Matcher, fallback Matcher) map[string]MarkerSet {
	out := make(map[string]MarkerSet)
	for kind, artifacts := range downstream {
		m := matchers[kind]
		if m == nil {
			m = fallback
		}
		missing := upstream.Minus(ExtractAll(artifacts, m))
		if len(missing) > 0 {
			out[kind] = missing
		}
	}
	return out
}

// KindReport is the verdict for one downstream kind.
type KindReport struct {
	Kind          string    `json:"kind" yaml:"kind"`
	Stale         bool      `json:"stale" yaml:"stale"`
	Reason        string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Missing       []string  `json:"missing,omitempty" yaml:"missing,omitempty"`
	Artifacts     int       `json:"artifacts" yaml:"artifacts"`
	LatestModTime time.Time `json:"latest_mod_time,omitempty" yaml:"latest_mod_time,omitempty"`
}

// Report lists a verdict for every downstream kind, sorted by kind.
type Report struct {
	Upstream         []string     `json:"upstream_markers" yaml:"upstream_markers"`
	UpstreamModTime  time.Time    `json:"upstream_mod_time,omitempty" yaml:"upstream_mod_time,omitempty"`
	TimestampChecked bool         `json:"timestamp_checked" yaml:"timestamp_checked"`
	Kinds            []KindReport `json:"kinds" yaml:"kinds"`
}

// StaleKinds returns the kinds marked stale, sorted.
func (r *Report) StaleKinds() []string {
	var out []string
	for _, k := range r.Kinds {
		if k.Stale {
			out = append(out, k.Kind)
		}
	}
	return out
}

// IsStale reports whether kind is stale.
func (r *Report) IsStale(kind string) bool {
	for _, k := range r.Kinds {
		if k.Kind == kind {
			return k.Stale
		}
	}
	return false
}

// Kind returns the verdict for kind.
func (r *Report) Kind(kind string) (KindReport, bool) {
	for _, k := range r.Kinds {
		if k.Kind == kind {
			return k, true
		}
	}
	return KindReport{}, false
}

// Detector combines marker comparison with a timestamp safety net. Marker
// evidence is evaluated first and is never cleared by the timestamp check;
// Fallback decides when timestamps may add stale kinds.
type Detector struct {
	Upstream Matcher
	Kinds    map[string]Matcher
	Fallback FallbackPolicy
	Logger   *log.Logger
}

// Detect evaluates every kind in downstream. Kinds listed in d.Kinds but
// absent from downstream are evaluated as having no artifacts.
func (d *Detector) Detect(upstream []Artifact, downstream map[string][]Artifact) *Report {
	logger := log.OrDefault(d.Logger).With("component", "resume")

	upMarkers := ExtractAll(upstream, d.Upstream)
	upLatest := latestModTime(upstream)

	kinds := make(map[string]bool, len(downstream)+len(d.Kinds))
	for k := range downstream {
		kinds[k] = true
	}
	for k := range d.Kinds {
		kinds[k] = true
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)

	present := make(map[string][]Artifact, len(downstream))
	for k, arts := range downstream {
		if len(arts) > 0 {
			present[k] = arts
		}
	}
	stale := FindStale(upMarkers, present, d.Kinds, d.Upstream)

	report := &Report{
		Upstream:        upMarkers.Strings(),
		UpstreamModTime: upLatest,
		Kinds:           make([]KindReport, 0, len(names)),
	}

	markerStale := false
	for _, kind := range names {
		arts := downstream[kind]
		kr := KindReport{Kind: kind, Artifacts: len(arts), LatestModTime: latestModTime(arts)}
		switch {
		case len(arts) == 0:
			kr.Stale = true
			kr.Reason = ReasonMissing
			kr.Missing = upMarkers.Strings()
		case stale[kind] != nil:
			kr.Stale = true
			kr.Reason = ReasonMarkers
			kr.Missing = stale[kind].Strings()
		}
		if len(kr.Missing) > 0 {
			markerStale = true
		}
		report.Kinds = append(report.Kinds, kr)
	}

	if !d.runTimestampCheck(markerStale) || len(upstream) == 0 {
		return report
	}

	report.TimestampChecked = true
	for i := range report.Kinds {
		kr := &report.Kinds[i]
		if kr.Stale {
			continue
		}
		if upLatest.After(kr.LatestModTime) {
			kr.Stale = true
			kr.Reason = ReasonTimestamp
			logger.Debug("kind stale by timestamp", "kind", kr.Kind,
				"upstream_mod_time", upLatest, "kind_mod_time", kr.LatestModTime)
		}
	}
	return report
}

func (d *Detector) runTimestampCheck(markerStale bool) bool {
	switch d.Fallback {
	case FallbackAlways:
		return true
	case FallbackNever:
		return false
	default:
		return !markerStale
	}
}
