package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/pithecene-io/sluice/types"
)

var (
	statusColors = map[types.OutcomeStatus]*color.Color{
		types.OutcomeOk:             color.New(color.FgGreen),
		types.OutcomeAccepted:       color.New(color.FgCyan),
		types.OutcomeSkipped:        color.New(color.FgYellow),
		types.OutcomeUploadFailed:   color.New(color.FgRed),
		types.OutcomeAssemblyFailed: color.New(color.FgRed),
	}
)

func paintStatus(s types.OutcomeStatus, noColor bool) string {
	c, ok := statusColors[s]
	if !ok || noColor {
		return string(s)
	}
	return c.Sprint(string(s))
}

// printSummary writes the human outcome summary for a finished batch.
func printSummary(w io.Writer, r *types.BatchResult, noColor bool) {
	for _, out := range r.Outcomes {
		line := fmt.Sprintf("  %-12s %s", paintStatus(out.Status, noColor), out.Name)
		if out.Detail != "" {
			line += "  (" + out.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}

	var ok, accepted, skipped, failed int
	for _, out := range r.Outcomes {
		switch {
		case out.Status == types.OutcomeOk:
			ok++
		case out.Status == types.OutcomeAccepted:
			accepted++
		case out.Status == types.OutcomeSkipped:
			skipped++
		case out.Status.Failed():
			failed++
		}
	}

	fmt.Fprintf(w, "\n%d ok, %d accepted, %d skipped, %d failed\n", ok, accepted, skipped, failed)
	fmt.Fprintf(w, "uploaded %s in %s (%d chunks sent, %d deduplicated)\n",
		humanize.IBytes(uint64(max(r.BytesUploaded, 0))),
		(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond),
		r.ChunksUploaded,
		r.ChunksDeduplicated,
	)
}

// progressPrinter renders a single in-place progress line from engine
// events. Disabled (all no-ops) when the output is not a terminal.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	wrote   bool

	chunks int64
	bytes  int64
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{w: w, enabled: enabled}
}

func (p *progressPrinter) observe(ev types.ProgressEvent) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case types.ProgressChunkUploaded:
		p.chunks++
		p.bytes += ev.Bytes
		fmt.Fprintf(p.w, "\ruploading: %d chunks (%s)", p.chunks, humanize.IBytes(uint64(p.bytes)))
		p.wrote = true
	case types.ProgressArtifactState:
		if ev.State.IsTerminal() {
			p.clearLocked()
			fmt.Fprintf(p.w, "%s: %s\n", ev.ArtifactName, ev.State)
		}
	}
}

// finish clears the in-place line so the summary starts on a fresh one.
func (p *progressPrinter) finish() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

func (p *progressPrinter) clearLocked() {
	if p.wrote {
		fmt.Fprint(p.w, "\r\033[K")
		p.wrote = false
	}
}
