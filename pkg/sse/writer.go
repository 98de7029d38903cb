package sse

import (
	"bufio"
	"fmt"
	"strings"
)

// Writer frames events onto a buffered response body. Each write is flushed
// so clients see chunks as they are produced.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w, typically the stream writer handed out by fiber's
// SetBodyStreamWriter.
func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes ev and flushes. Multi-line data is split across several
// "data:" lines.
func (w *Writer) WriteEvent(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := w.w.WriteString(b.String()); err != nil {
		return err
	}
	return w.w.Flush()
}

// Comment writes a comment line, used as a keep-alive.
func (w *Writer) Comment(text string) error {
	if _, err := w.w.WriteString(": " + text + "\n\n"); err != nil {
		return err
	}
	return w.w.Flush()
}
