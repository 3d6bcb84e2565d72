package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/config"
	derrors "github.com/felixgeelhaar/docflow/internal/errors"
	"github.com/felixgeelhaar/docflow/internal/exitcode"
	"github.com/felixgeelhaar/docflow/internal/resume"
	"github.com/felixgeelhaar/docflow/internal/runner"
	"github.com/felixgeelhaar/docflow/internal/ux"
)

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Detect generated artifacts that no longer cover their upstream",
	}
	cmd.AddCommand(newResumeCheckCmd())
	return cmd
}

func newResumeCheckCmd() *cobra.Command {
	var (
		failOnStale bool
		reset       bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare downstream artifacts against upstream coverage markers",
		Long: `Extract coverage markers (for example REQ-12) from the upstream artifacts and
from every configured downstream kind. A kind is stale when it misses an
upstream marker. When no kind is stale by markers and the fallback policy
allows it, a kind is also stale when its newest artifact is older than the
newest upstream artifact.

Configure sources in .docflow/config.yaml:

  resume:
    upstream:
      globs: ["docs/srs/*.md"]
      patterns: ['\b(REQ-\d+)\b']
    kinds:
      - kind: design
        globs: ["docs/design/*.md"]

Examples:
  docflow resume check
  docflow resume check --fail-on-stale
  docflow resume check --reset`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			p, err := openProject(cmd, withStore)
			if err != nil {
				return err
			}
			defer func() { p.Close(err) }()

			report, err := detectStale(p)
			if err != nil {
				return err
			}
			out := &ResumeReport{Report: *report, Producers: make(map[string][]string)}
			for _, k := range report.Kinds {
				out.Producers[k.Kind] = p.Registry.ByKind(k.Kind)
			}
			if reset {
				out.Reset, err = runner.ResetStale(p.Graph, p.Store, report, p.Logger)
				if err != nil {
					return err
				}
			}
			if err := p.Print(out); err != nil {
				return err
			}
			if failOnStale && len(report.StaleKinds()) > 0 {
				return exitcode.WithCode(exitcode.StaleArtifacts,
					fmt.Errorf("stale artifact kinds: %s", joinIDs(report.StaleKinds())))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnStale, "fail-on-stale", false, "exit with code 4 when any kind is stale")
	cmd.Flags().BoolVar(&reset, "reset", false, "reset succeeded units producing stale kinds")
	return cmd
}

// ResumeReport is the output of resume check.
type ResumeReport struct {
	resume.Report `yaml:",inline"`
	Producers     map[string][]string `json:"producers" yaml:"producers"`
	Reset         []string            `json:"reset,omitempty" yaml:"reset,omitempty"`
}

func (r *ResumeReport) RenderText(w io.Writer) error {
	fmt.Fprintf(w, "Upstream markers: %d\n\n", len(r.Upstream))

	tbl := &ux.Table{Headers: []string{"", "KIND", "UNITS", "ARTIFACTS", "REASON", "MISSING"}}
	for _, k := range r.Kinds {
		symbol, reason := "✓", "-"
		if k.Stale {
			symbol, reason = "✗", k.Reason
		}
		units := joinIDs(r.Producers[k.Kind])
		if units == "" {
			units = "-"
		}
		tbl.AddRow(symbol, k.Kind, units, fmt.Sprint(k.Artifacts), reason, ux.Muted(summarizeMarkers(k.Missing)))
	}
	if err := tbl.RenderText(w); err != nil {
		return err
	}

	if stale := r.StaleKinds(); len(stale) > 0 {
		fmt.Fprintf(w, "\nStale: %s\n", joinIDs(stale))
	} else {
		fmt.Fprintln(w, "\nAll kinds are up to date.")
	}
	if len(r.Reset) > 0 {
		fmt.Fprintf(w, "Reset: %s\n", joinIDs(r.Reset))
	}
	return nil
}

func summarizeMarkers(ms []string) string {
	const max = 5
	if len(ms) <= max {
		return strings.Join(ms, ", ")
	}
	return fmt.Sprintf("%s, +%d more", strings.Join(ms[:max], ", "), len(ms)-max)
}

// detectStale loads the configured artifacts and runs the detector.
func detectStale(p *project) (*resume.Report, error) {
	rc := resolveResume(p.Root, p.Config.Resume)
	if !rc.Enabled() {
		return nil, derrors.New(derrors.ErrCodeConfigInvalid, "resume detection is not configured").
			WithSuggestion("Add resume.upstream and resume.kinds to .docflow/config.yaml")
	}

	detector, err := rc.Detector(p.Logger)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeResumePattern, "invalid coverage marker pattern", err)
	}
	upstream, downstream, err := rc.LoadArtifacts()
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeFileReadFailed, "failed to load artifacts", err)
	}

	report := detector.Detect(upstream, downstream)
	for _, k := range report.Kinds {
		if k.Stale {
			p.Metrics.RecordStaleKind(k.Kind, k.Reason)
		}
	}
	return report, nil
}

// resetStale detects stale kinds and resets their units.
func resetStale(p *project) ([]string, error) {
	report, err := detectStale(p)
	if err != nil {
		return nil, err
	}
	return runner.ResetStale(p.Graph, p.Store, report, p.Logger)
}

func resolveResume(root string, rc config.ResumeConfig) config.ResumeConfig {
	resolveGlobs := func(globs []string) []string {
		out := make([]string, len(globs))
		for i, g := range globs {
			out[i] = resolve(root, g)
		}
		return out
	}
	rc.Upstream.Globs = resolveGlobs(rc.Upstream.Globs)
	kinds := make([]config.ArtifactSource, len(rc.Kinds))
	for i, k := range rc.Kinds {
		k.Globs = resolveGlobs(k.Globs)
		kinds[i] = k
	}
	rc.Kinds = kinds
	return rc
}
