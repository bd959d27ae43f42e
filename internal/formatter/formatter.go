// package formatter exports session history to CSV, Markdown, plain text and JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

// Format names accepted by [Export].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Formats lists every supported export format.
var Formats = []string{FormatText, FormatCSV, FormatMarkdown, FormatJSON}

// HistoryEntry is one session with the items downloaded during it.
type HistoryEntry struct {
	Session *models.Session
	Items   []models.SessionItem
}

// History is the exported view of a set of sessions. Now is used to measure sessions that are still open.
type History struct {
	Entries []HistoryEntry
	Now     time.Time
}

// Export renders history in the named format.
func Export(h *History, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "txt":
		return ExportToText(h)
	case FormatCSV:
		return ExportToCSV(h)
	case FormatMarkdown, "md":
		return ExportToMarkdown(h)
	case FormatJSON:
		return ExportToJSON(h)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (expected one of %s)", shared.ErrInvalidFlag, format,
			strings.Join(Formats, ", "))
	}
}

// ExportToCSV writes one row per session with columns: ID, Started, Ended, Duration, Reason, Track, Artist,
// Queue, Bytes, Items, Failed
func ExportToCSV(h *History) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Started", "Ended", "Duration", "Reason", "Track", "Artist", "Queue", "Bytes",
		"Items", "Failed"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range h.Entries {
		s := e.Session
		ended := ""
		if s.EndedAt != nil {
			ended = s.EndedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			s.ID(),
			s.StartedAt.UTC().Format(time.RFC3339),
			ended,
			strconv.FormatInt(int64(s.Duration(h.Now).Seconds()), 10),
			reason(s),
			s.Label.Primary,
			s.Label.Secondary,
			strconv.Itoa(s.QueueDepth),
			strconv.FormatInt(s.Progress.Done, 10),
			strconv.Itoa(len(e.Items)),
			strconv.Itoa(countStatus(e.Items, models.ItemFailed)),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a heading per session followed by its item list.
func ExportToMarkdown(h *History) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Download history\n\n")
	fmt.Fprintf(&buf, "**Sessions**: %d\n", len(h.Entries))
	fmt.Fprintf(&buf, "**Total runtime**: %s\n\n", FormatDuration(totalRuntime(h)))

	for _, e := range h.Entries {
		s := e.Session
		fmt.Fprintf(&buf, "## %s\n\n", sessionTitle(s))
		fmt.Fprintf(&buf, "- **Started**: %s\n", s.StartedAt.Local().Format(time.DateTime))
		fmt.Fprintf(&buf, "- **Duration**: %s\n", FormatDuration(s.Duration(h.Now)))
		fmt.Fprintf(&buf, "- **Ended**: %s\n", reason(s))
		if s.Progress.Total > 0 {
			fmt.Fprintf(&buf, "- **Progress**: %s\n", lifecycle.FormatProgress(s.Progress))
		}
		buf.WriteString("\n")

		for _, item := range e.Items {
			line := fmt.Sprintf("%d. %s [%s]", item.Position, describeItem(item), item.Status)
			if item.Error != "" {
				line += " " + item.Error
			}
			buf.WriteString(line + "\n")
		}
		if len(e.Items) > 0 {
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

// ExportToText is a compact one-line-per-session listing.
func ExportToText(h *History) ([]byte, error) {
	var buf bytes.Buffer

	if len(h.Entries) == 0 {
		buf.WriteString("No sessions recorded.\n")
		return buf.Bytes(), nil
	}

	for _, e := range h.Entries {
		s := e.Session
		fmt.Fprintf(&buf, "%s  %-9s %8s  %s", s.StartedAt.Local().Format(time.DateTime), reason(s),
			FormatDuration(s.Duration(h.Now)), sessionTitle(s))
		if n := len(e.Items); n > 0 {
			fmt.Fprintf(&buf, " (%d items, %d failed)", n, countStatus(e.Items, models.ItemFailed))
		}
		buf.WriteString("\n")
	}
	fmt.Fprintf(&buf, "\nTotal runtime: %s\n", FormatDuration(totalRuntime(h)))

	return buf.Bytes(), nil
}

type jsonItem struct {
	Position   int               `json:"position"`
	TrackName  string            `json:"track_name"`
	ArtistName string            `json:"artist_name,omitempty"`
	ISRC       string            `json:"isrc,omitempty"`
	Status     models.ItemStatus `json:"status"`
	Error      string            `json:"error,omitempty"`
}

type jsonSession struct {
	ID         string          `json:"id"`
	Sequence   int             `json:"sequence"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	Seconds    int64           `json:"duration_seconds"`
	EndReason  string          `json:"end_reason"`
	Label      models.Label    `json:"label"`
	QueueDepth int             `json:"queue_depth"`
	Progress   models.Progress `json:"progress"`
	Items      []jsonItem      `json:"items"`
}

// ExportToJSON renders the sessions as an indented JSON array.
func ExportToJSON(h *History) ([]byte, error) {
	out := make([]jsonSession, 0, len(h.Entries))
	for _, e := range h.Entries {
		s := e.Session
		js := jsonSession{
			ID:         s.ID(),
			Sequence:   s.Sequence(),
			StartedAt:  s.StartedAt.UTC(),
			Seconds:    int64(s.Duration(h.Now).Seconds()),
			EndReason:  reason(s),
			Label:      s.Label,
			QueueDepth: s.QueueDepth,
			Progress:   s.Progress,
			Items:      make([]jsonItem, 0, len(e.Items)),
		}
		if s.EndedAt != nil {
			end := s.EndedAt.UTC()
			js.EndedAt = &end
		}
		for _, item := range e.Items {
			js.Items = append(js.Items, jsonItem{
				Position:   item.Position,
				TrackName:  item.TrackName,
				ArtistName: item.ArtistName,
				ISRC:       item.ISRC,
				Status:     item.Status,
				Error:      item.Error,
			})
		}
		out = append(out, js)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteExport renders history and writes it to path.
func WriteExport(h *History, format, path string) error {
	data, err := Export(h, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// FormatDuration renders d as "1h02m03s", "4m05s" or "6s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func reason(s *models.Session) string {
	if !s.Finished() {
		return "running"
	}
	if s.EndReason == "" {
		return string(models.EndStopped)
	}
	return string(s.EndReason)
}

func sessionTitle(s *models.Session) string {
	state := models.JobState{Running: true, Label: s.Label, QueueDepth: s.QueueDepth}
	return lifecycle.Title(state)
}

func describeItem(item models.SessionItem) string {
	switch {
	case item.ArtistName != "" && item.TrackName != "":
		return item.ArtistName + " - " + item.TrackName
	case item.TrackName != "":
		return item.TrackName
	default:
		return "unknown track"
	}
}

func countStatus(items []models.SessionItem, status models.ItemStatus) int {
	n := 0
	for _, item := range items {
		if item.Status == status {
			n++
		}
	}
	return n
}

func totalRuntime(h *History) time.Duration {
	var total time.Duration
	for _, e := range h.Entries {
		total += e.Session.Duration(h.Now)
	}
	return total
}
