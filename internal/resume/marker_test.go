package resume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatcher(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		text     string
		want     []string
	}{
		{
			name:     "whole match",
			patterns: []string{`REQ-\d+`},
			text:     "covers REQ-1, REQ-22 and again REQ-1",
			want:     []string{"REQ-1", "REQ-22"},
		},
		{
			name:     "capture group",
			patterns: []string{`\[ref:([A-Z]+-\d+)\]`},
			text:     "see [ref:FR-3] and [ref:NFR-10]",
			want:     []string{"FR-3", "NFR-10"},
		},
		{
			name:     "several patterns",
			patterns: []string{`FR-\d+`, `US-\d+`},
			text:     "US-2 implements FR-7",
			want:     []string{"FR-7", "US-2"},
		},
		{
			name:     "no match",
			patterns: []string{`REQ-\d+`},
			text:     "nothing to see",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPatternMatcher(tt.patterns...)
			require.NoError(t, err)
			got := ExtractMarkers(Artifact{Content: tt.text}, m)
			assert.Equal(t, tt.want, got.Strings())
		})
	}
}

func TestNewPatternMatcherErrors(t *testing.T) {
	_, err := NewPatternMatcher()
	assert.Error(t, err)

	_, err = NewPatternMatcher("  ")
	assert.Error(t, err)

	_, err = NewPatternMatcher(`REQ-(\d+`)
	assert.Error(t, err)

	assert.Panics(t, func() { MustPatternMatcher(`(`) })
}

func TestMarkerSetOps(t *testing.T) {
	a := NewMarkerSet("A", "B", "C")
	b := NewMarkerSet("A", "B")

	assert.Equal(t, []string{"C"}, a.Minus(b).Strings())
	assert.Empty(t, b.Minus(a))

	b.Union(NewMarkerSet("D"))
	assert.True(t, b.Has("D"))
	assert.Equal(t, []Marker{"A", "B", "D"}, b.Sorted())
}

func TestMatcherFunc(t *testing.T) {
	m := MatcherFunc(func(string) []Marker { return []Marker{"X", "X"} })
	assert.Equal(t, []string{"X"}, ExtractMarkers(Artifact{}, m).Strings())
	assert.Empty(t, ExtractMarkers(Artifact{Content: "X"}, nil))
}
