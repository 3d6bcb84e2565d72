package resume

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
)

// Artifact is the text of one produced file plus the metadata the detector
// needs. Content is never interpreted beyond marker extraction.
type Artifact struct {
	Kind    string    `json:"kind" yaml:"kind"`
	Path    string    `json:"path" yaml:"path"`
	Content string    `json:"-" yaml:"-"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	Digest  string    `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// NewArtifact builds an in-memory artifact and computes its digest.
func NewArtifact(kind, path, content string, modTime time.Time) Artifact {
	return Artifact{
		Kind:    kind,
		Path:    path,
		Content: content,
		ModTime: modTime,
		Digest:  digest([]byte(content)),
	}
}

// LoadArtifacts reads every regular file matching globs. Paths are
// deduplicated and returned sorted. A glob that matches nothing is not an
// error; a malformed glob is.
func LoadArtifacts(kind string, globs []string) ([]Artifact, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return nil, fmt.Errorf("expand artifact glob %q: %w", g, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	artifacts := make([]Artifact, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat artifact %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", p, err)
		}
		artifacts = append(artifacts, Artifact{
			Kind:    kind,
			Path:    p,
			Content: string(data),
			ModTime: info.ModTime(),
			Digest:  digest(data),
		})
	}
	return artifacts, nil
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// latestModTime returns the newest ModTime among artifacts.
func latestModTime(artifacts []Artifact) time.Time {
	var latest time.Time
	for _, a := range artifacts {
		if a.ModTime.After(latest) {
			latest = a.ModTime
		}
	}
	return latest
}
