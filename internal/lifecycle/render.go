package lifecycle

import (
	"fmt"

	"github.com/desertthunder/dlx/internal/models"
)

const (
	placeholderTitle = "Downloading..."
	placeholderText  = "Preparing download..."
	bytesPerMB       = 1024.0 * 1024.0
)

// Render builds the notification for state. It returns false, and renders nothing, when the job is not running.
func Render(state models.JobState) (models.Notification, bool) {
	if !state.Running {
		return models.Notification{}, false
	}

	n := models.Notification{
		Title:         Title(state),
		Text:          Text(state),
		Ongoing:       true,
		OnlyAlertOnce: true,
	}

	if pct, ok := state.Progress.Percent(); ok {
		n.Percent = pct
	} else {
		n.Indeterminate = true
	}

	return n, true
}

// Title is "Downloading N tracks" for a queue of more than one item, otherwise the primary label or a placeholder.
func Title(state models.JobState) string {
	switch {
	case state.QueueDepth > 1:
		return fmt.Sprintf("Downloading %d tracks", state.QueueDepth)
	case state.Label.Primary != "":
		return state.Label.Primary
	default:
		return placeholderTitle
	}
}

// Text is the secondary label for a single item, otherwise the byte progress when the size is known, otherwise a placeholder.
func Text(state models.JobState) string {
	switch {
	case state.Label.Secondary != "" && state.QueueDepth <= 1:
		return state.Label.Secondary
	case state.Progress.Total > 0:
		return FormatProgress(state.Progress)
	default:
		return placeholderText
	}
}

// FormatProgress renders "{done} / {total} MB ({pct}%)" with one decimal place and MB = 1024*1024 bytes.
func FormatProgress(p models.Progress) string {
	pct, _ := p.Percent()
	return fmt.Sprintf("%.1f / %.1f MB (%d%%)", float64(p.Done)/bytesPerMB, float64(p.Total)/bytesPerMB, pct)
}
