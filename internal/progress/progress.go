package progress

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/docflow/internal/status"
)

// Indicator renders unit transitions as they are committed to the status
// store.
type Indicator struct {
	writer      io.Writer
	total       int
	states      map[string]status.State
	errs        map[string]string
	startTime   time.Time
	mu          sync.Mutex
	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
	isCI        bool
}

// Config holds configuration for progress indicator
type Config struct {
	Writer      io.Writer
	ShowSpinner bool
	IsCI        bool // Set to true in CI/CD environments to disable fancy output
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates an indicator seeded with the states in snap.
func NewIndicator(cfg Config, snap status.Snapshot) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	// Auto-detect CI environment
	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}

	states := make(map[string]status.State, snap.Len())
	for _, id := range snap.IDs() {
		states[id] = snap.State(id)
	}

	return &Indicator{
		writer:      cfg.Writer,
		total:       len(states),
		states:      states,
		errs:        make(map[string]string),
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
		isCI:        cfg.IsCI,
	}
}

// Follow consumes events until the channel is closed or Stop is called.
// It is typically fed by status.Store.Subscribe.
func (p *Indicator) Follow(events <-chan status.Event) {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				p.Handle(ev)
			}
		}
	}()
	if p.showSpinner {
		go p.spinnerLoop()
	}
}

// Stop ends Follow and clears the spinner line. It waits for the event
// loop when Follow was started.
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.showSpinner {
			p.mu.Lock()
			fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", 80))
			p.mu.Unlock()
		}
	})
}

// Wait blocks until the Follow loop has returned.
func (p *Indicator) Wait() {
	<-p.done
}

func (p *Indicator) spinnerLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.renderProgress()
			p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
			p.mu.Unlock()
		}
	}
}

// Progress returns the fraction of units in a terminal state.
func (p *Indicator) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Indicator) progressLocked() float64 {
	if p.total == 0 {
		return 1
	}
	finished := 0
	for _, st := range p.states {
		if st.IsTerminal() {
			finished++
		}
	}
	return float64(finished) / float64(p.total)
}

func (p *Indicator) count(st status.State) int {
	n := 0
	for _, s := range p.states {
		if s == st {
			n++
		}
	}
	return n
}

func (p *Indicator) renderProgress() {
	progress := p.progressLocked()
	succeeded := p.count(status.Succeeded)
	failed := p.count(status.Failed)
	blocked := p.count(status.Blocked)
	running := p.count(status.Running)
	elapsed := time.Since(p.startTime)

	barWidth := 30
	filled := int(float64(barWidth) * progress)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\r%s [%s] %.1f%% | %d/%d units | ▶ %d | ✓ %d | ✗ %d | ⊘ %d | %s",
		spinnerFrames[p.spinnerIdx],
		bar,
		progress*100,
		succeeded+failed+blocked,
		p.total,
		running,
		succeeded,
		failed,
		blocked,
		formatDuration(elapsed),
	)
}

// Handle records one transition. Outside spinner mode every transition
// into Running or a terminal state prints a line.
func (p *Indicator) Handle(ev status.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.states[ev.Unit]; !ok {
		p.total++
	}
	p.states[ev.Unit] = ev.To
	if ev.Error != "" {
		p.errs[ev.Unit] = ev.Error
	} else if ev.To == status.NotStarted {
		delete(p.errs, ev.Unit)
	}

	if !p.showSpinner {
		p.printUnitStatus(ev)
	}
}

// Symbol returns the glyph used for st.
func Symbol(st status.State) string {
	switch st {
	case status.Running:
		return "▶"
	case status.Succeeded:
		return "✓"
	case status.Failed:
		return "✗"
	case status.Blocked:
		return "⊘"
	default:
		return "⟲"
	}
}

func (p *Indicator) printUnitStatus(ev status.Event) {
	switch ev.To {
	case status.Running, status.Succeeded, status.Failed, status.Blocked:
	default:
		return
	}

	msg := fmt.Sprintf("%s %s [%s]", Symbol(ev.To), ev.Unit, ev.To)
	switch {
	case ev.Error != "":
		msg += " - " + ev.Error
	case ev.To == status.Blocked && ev.Reason != "":
		msg += " - " + ev.Reason
	}
	fmt.Fprintln(p.writer, msg)
}

// PrintSummary prints final execution summary
func (p *Indicator) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	succeeded := p.count(status.Succeeded)
	failed := p.count(status.Failed)
	blocked := p.count(status.Blocked)
	elapsed := time.Since(p.startTime)

	fmt.Fprintln(p.writer)
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(p.writer, "Run Summary")
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(p.writer, "Total Units:     %d\n", p.total)
	fmt.Fprintf(p.writer, "Succeeded:       %d ✓\n", succeeded)
	fmt.Fprintf(p.writer, "Failed:          %d ✗\n", failed)
	fmt.Fprintf(p.writer, "Blocked:         %d ⊘\n", blocked)
	fmt.Fprintf(p.writer, "Progress:        %.1f%%\n", p.progressLocked()*100)
	fmt.Fprintf(p.writer, "Total Time:      %s\n", formatDuration(elapsed))
	fmt.Fprintln(p.writer, "═══════════════════════════════════════════════════════════")

	var failedIDs []string
	for id, st := range p.states {
		if st == status.Failed {
			failedIDs = append(failedIDs, id)
		}
	}
	if len(failedIDs) == 0 {
		return
	}
	sort.Strings(failedIDs)

	fmt.Fprintln(p.writer)
	fmt.Fprintln(p.writer, "Failed Units:")
	for _, id := range failedIDs {
		fmt.Fprintf(p.writer, "  ✗ %s", id)
		if e := p.errs[id]; e != "" {
			fmt.Fprintf(p.writer, " - %s", e)
		}
		fmt.Fprintln(p.writer)
	}
}

// PrintResumeInfo prints the starting point of a run that continues earlier
// progress. Nothing is printed when no unit has finished yet.
func (p *Indicator) PrintResumeInfo(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	succeeded := p.count(status.Succeeded)
	failed := p.count(status.Failed)
	blocked := p.count(status.Blocked)
	if succeeded+failed+blocked == 0 {
		return
	}
	pending := p.count(status.NotStarted) + p.count(status.Ready)

	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintf(p.writer, "Resuming: %s\n", runID)
	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintf(p.writer, "  Succeeded:  %d units ✓\n", succeeded)
	fmt.Fprintf(p.writer, "  Pending:    %d units ⟲\n", pending)
	fmt.Fprintf(p.writer, "  Failed:     %d units ✗\n", failed)
	fmt.Fprintf(p.writer, "  Blocked:    %d units ⊘\n", blocked)
	fmt.Fprintf(p.writer, "  Progress:   %.1f%%\n", p.progressLocked()*100)
	fmt.Fprintln(p.writer, "─────────────────────────────────────────────────────────")
	fmt.Fprintln(p.writer)
}

// StreamWriter wraps an io.Writer to stream output with prefixes
type StreamWriter struct {
	writer io.Writer
	prefix string
	buffer []byte
}

// NewStreamWriter creates a new stream writer with a prefix
func NewStreamWriter(w io.Writer, prefix string) *StreamWriter {
	return &StreamWriter{
		writer: w,
		prefix: prefix,
		buffer: make([]byte, 0, 4096),
	}
}

// Write implements io.Writer
func (sw *StreamWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	sw.buffer = append(sw.buffer, p...)

	for {
		idx := strings.IndexByte(string(sw.buffer), '\n')
		if idx == -1 {
			break
		}

		line := sw.buffer[:idx]
		sw.buffer = sw.buffer[idx+1:]

		_, err = fmt.Fprintf(sw.writer, "%s %s\n", sw.prefix, string(line))
		if err != nil {
			return
		}
	}

	return
}

// Flush writes any remaining buffered content
func (sw *StreamWriter) Flush() error {
	if len(sw.buffer) > 0 {
		_, err := fmt.Fprintf(sw.writer, "%s %s\n", sw.prefix, string(sw.buffer))
		sw.buffer = sw.buffer[:0]
		return err
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
