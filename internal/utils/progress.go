package utils

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress is a byte-counting progress bar for extraction, drawn with mpb
type Progress struct {
	container   *mpb.Progress
	bar         *mpb.Bar
	enabled     bool
	description atomic.Value // string, read from the render goroutine
}

var descLength = 24

// NewProgress creates a progress bar for totalBytes. It is a no-op unless
// enabled is set and stderr is a terminal.
func NewProgress(totalBytes int64, enabled bool) *Progress {
	return newProgress(os.Stderr, totalBytes, enabled && isTerminal())
}

func newProgress(out io.Writer, totalBytes int64, enabled bool) *Progress {
	p := &Progress{enabled: enabled}
	if !enabled {
		return p
	}

	// Add space before progress bar
	fmt.Fprintln(out)

	p.container = mpb.New(
		mpb.WithOutput(out),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)

	p.bar = p.container.New(totalBytes,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				desc, _ := p.description.Load().(string)
				return truncateDescription(desc)
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.Name("  "),
			decor.CountersKibiByte("% .1f / % .1f", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	return p
}

// truncateDescription keeps the tail of desc, which for a path is the file
// name, cutting on rune boundaries
func truncateDescription(desc string) string {
	runes := []rune(desc)
	if len(runes) <= descLength {
		return desc
	}
	return ".." + string(runes[len(runes)-descLength+2:])
}

// Update sets the bar to current bytes and shows description
func (p *Progress) Update(current int64, description string) {
	if !p.enabled || p.bar == nil {
		return
	}

	// Read by the decorator on the next refresh
	p.description.Store(description)

	p.bar.SetCurrent(current)
}

// Finish completes the bar and waits for the final render
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}

	if !p.bar.Completed() {
		p.bar.Abort(false)
	}
	p.container.Wait()
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
