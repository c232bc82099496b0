// Package output formats human-facing CLI lines.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer prints status lines. Write errors are ignored; this is console
// output.
type Writer struct {
	out io.Writer
}

// New creates a Writer over out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints msg after icon, or indented when icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) { w.Status("✅", msg) }

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) { w.Status("❌", msg) }

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Field prints an aligned "key: value" line.
func (w *Writer) Field(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "   %-12s %v\n", key+":", value)
}

// Block prints content verbatim between blank lines, ensuring a trailing
// newline.
func (w *Writer) Block(content string) {
	_, _ = fmt.Fprintln(w.out)
	_, _ = io.WriteString(w.out, content)
	if !strings.HasSuffix(content, "\n") {
		_, _ = fmt.Fprintln(w.out)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
