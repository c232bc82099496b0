package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Component states shown by the status command.
const (
	StatusReady   = "ready"
	StatusOffline = "offline"
	StatusError   = "error"
	StatusUnknown = "n/a"
)

// CollectionStatus is one collection's record counts.
type CollectionStatus struct {
	Name        string `json:"name"`
	Records     int    `json:"records"`
	Vectors     int    `json:"vectors"`
	LexicalDocs uint64 `json:"lexical_docs"`
}

// QueueStatus is the work queue's bucket counts.
type QueueStatus struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Dead    int `json:"dead"`
}

// StatusInfo is what `amanctx status` reports.
type StatusInfo struct {
	DataDir     string             `json:"data_dir"`
	Dimensions  int                `json:"dimensions"`
	Collections []CollectionStatus `json:"collections"`
	StorageSize int64              `json:"storage_size"`
	LastIndexed time.Time          `json:"last_indexed,omitzero"`

	EmbedderProvider string `json:"embedder_provider"`
	EmbedderModel    string `json:"embedder_model,omitempty"`
	EmbedderStatus   string `json:"embedder_status"`
	ChunkerEndpoint  string `json:"chunker_endpoint,omitempty"`
	ChunkerStatus    string `json:"chunker_status"`

	// Queue is nil when the queue file does not exist or is held by a
	// running consumer.
	Queue *QueueStatus `json:"queue,omitempty"`
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}

	w.printf("%s\n\n", r.styles.Header.Render("Index Status: "+info.DataDir))
	w.printf("  Dimensions:   %d\n", info.Dimensions)
	if !info.LastIndexed.IsZero() {
		w.printf("  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	w.printf("  Storage:      %s\n\n", FormatBytes(info.StorageSize))

	w.printf("  Collections:\n")
	for _, c := range info.Collections {
		w.printf("    %-12s %d records, %d vectors, %d lexical\n", c.Name, c.Records, c.Vectors, c.LexicalDocs)
	}
	w.printf("\n")

	w.printf("  Embedder: %s %s (%s)\n", info.EmbedderProvider, info.EmbedderModel, r.renderStatus(info.EmbedderStatus))
	if info.ChunkerEndpoint != "" {
		w.printf("  Chunker:  %s (%s)\n", info.ChunkerEndpoint, r.renderStatus(info.ChunkerStatus))
	}

	if q := info.Queue; q != nil {
		dead := fmt.Sprintf("%d dead", q.Dead)
		if q.Dead > 0 {
			dead = r.styles.Warning.Render(dead)
		}
		w.printf("  Queue:    %d pending, %d leased, %s\n", q.Pending, q.Leased, dead)
	}
	return w.err
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case StatusReady:
		return r.styles.Success.Render(status)
	case StatusOffline:
		return r.styles.Warning.Render(status)
	case StatusError:
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// formatTime formats a time relative to now, falling back to a date after
// a week.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
