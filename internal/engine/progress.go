package engine

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/wowsync/wowsync/internal/provider"
)

// defaultTableWidth is used when the output is not a terminal.
const defaultTableWidth = 100

// progressView renders the per-source status table. It is redrawn once
// per source completion, never on a poll, and tolerates any completion
// interleaving: it only ever reads the sources' own status records.
type progressView struct {
	out     io.Writer
	sources []provider.Source
	redraws int
}

func newProgressView(out io.Writer, sources []provider.Source) *progressView {
	return &progressView{out: out, sources: sources}
}

// width returns the usable terminal width for the table.
func (v *progressView) width() int {
	if f, ok := v.out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			return w
		}
	}
	return defaultTableWidth
}

// Redraw reprints the full status table.
func (v *progressView) Redraw() {
	v.redraws++
	width := v.width()

	done := 0
	for _, src := range v.sources {
		if src.Status().Message() != "" {
			done++
		}
	}

	fmt.Fprintf(v.out, "\n[%d/%d] sources finished\n", done, len(v.sources))

	tw := tabwriter.NewWriter(v.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSOURCE\tSTATUS\tSYNCED")
	for _, src := range v.sources {
		status := src.Status().Message()
		if status == "" {
			status = "pending"
		}
		synced := strings.Join(src.Status().Subdirs(), ",")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			src.ProviderName(),
			src.Name(),
			truncate(status, width/2),
			truncate(synced, width/3),
		)
	}
	tw.Flush()
}

// truncate shortens s to max bytes with an ellipsis.
func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
