package tasks

import (
	"fmt"

	"github.com/desertthunder/dlx/internal/models"
)

// ProgressUpdate represents a progress event during a queue run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase           // Operation phase
	Step    int             // Current item, 1-based
	Total   int             // Items in the queue
	Message string          // Human-readable message for display
	Bytes   models.Progress // Cumulative bytes for the whole queue
	Data    any             // Optional phase-specific data, e.g. an [ItemResult]
}

// Operation phase enumeration
type Phase int

const (
	Prepare Phase = iota
	CheckDuplicate
	Download
	ItemDone
	Finished
)

func (p Phase) String() string {
	switch p {
	case Prepare:
		return "prepare"
	case CheckDuplicate:
		return "check_duplicate"
	case Download:
		return "download"
	case ItemDone:
		return "item_done"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

func prepareUpdate(total int, dir string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prepare,
		Total:   total,
		Message: fmt.Sprintf("Preparing %d downloads into %s...", total, dir),
	}
}

func duplicateUpdate(step, total int, req DownloadRequest) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CheckDuplicate,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Checking for %s...", step, total, req.Describe()),
	}
}

func downloadUpdate(step, total int, req DownloadRequest, bytes models.Progress) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Download,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading %s", step, total, req.Describe()),
		Bytes:   bytes,
	}
}

func itemUpdate(step, total int, res ItemResult, bytes models.Progress) ProgressUpdate {
	var msg string
	switch res.Status {
	case models.ItemCompleted:
		msg = fmt.Sprintf("[%d/%d] ✓ %s", step, total, res.Request.Describe())
	case models.ItemSkipped:
		msg = fmt.Sprintf("[%d/%d] = %s (already downloaded)", step, total, res.Request.Describe())
	case models.ItemCancelled:
		msg = fmt.Sprintf("[%d/%d] - %s (cancelled)", step, total, res.Request.Describe())
	default:
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, res.Request.Describe(), res.Error)
	}
	return ProgressUpdate{
		Phase:   ItemDone,
		Step:    step,
		Total:   total,
		Message: msg,
		Bytes:   bytes,
		Data:    res,
	}
}

func finishedUpdate(res *QueueResult) ProgressUpdate {
	return ProgressUpdate{
		Phase: Finished,
		Step:  res.Total,
		Total: res.Total,
		Message: fmt.Sprintf("Finished: %d downloaded, %d skipped, %d failed, %d cancelled",
			res.Completed, res.Skipped, res.Failed, res.Cancelled),
		Data: res,
	}
}
