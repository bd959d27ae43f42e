package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
	"golang.org/x/time/rate"
)

// Dispatcher is the part of [bridge.Dispatcher] the queue needs.
type Dispatcher interface {
	Invoke(ctx context.Context, req bridge.Request) bridge.Result
	Dispatch(ctx context.Context, req bridge.Request) <-chan bridge.Result
}

// JobReporter is the part of [lifecycle.Coordinator] the queue needs.
type JobReporter interface {
	Start(ctx context.Context, primary, secondary string, queueDepth int) error
	UpdateProgress(ctx context.Context, p lifecycle.ProgressSignal) error
	Stop(ctx context.Context) error
	Snapshot() (models.JobState, lifecycle.Phase)
}

// ItemRecorder persists item outcomes. Implemented by repositories.SessionRepository.
type ItemRecorder interface {
	AddItem(item *models.SessionItem) error
}

// QueueOpts configures a [Queue].
type QueueOpts struct {
	OutputDir       string        // sent to the engine before the first item; empty leaves it unchanged
	PollInterval    time.Duration // how often getProgress is polled while an item downloads (default 500ms)
	RateLimit       float64       // item starts per second (default 4)
	SkipDuplicates  bool          // check by ISRC before downloading
	Recorder        ItemRecorder
	Logger          *log.Logger
	StartupDeadline time.Duration // how long to wait for the coordinator to become Active (default 2s)
}

// ItemResult is the outcome of one request.
type ItemResult struct {
	Request DownloadRequest
	Status  models.ItemStatus
	Value   any    // engine response for completed items
	Error   string // failure message
	Bytes   int64
}

// QueueResult summarizes a run.
type QueueResult struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Cancelled int
	Items     []ItemResult
	SessionID string
}

func (r *QueueResult) add(item ItemResult) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case models.ItemCompleted:
		r.Completed++
	case models.ItemSkipped:
		r.Skipped++
	case models.ItemCancelled:
		r.Cancelled++
	default:
		r.Failed++
	}
}

// engineProgress is the getProgress response.
type engineProgress struct {
	BytesReceived int64 `json:"bytes_received"`
	BytesTotal    int64 `json:"bytes_total"`
	IsDownloading bool  `json:"is_downloading"`
}

// downloadOutcome is the downloadWithFallback response.
type downloadOutcome struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	FilePath string `json:"file_path"`
	Size     int64  `json:"file_size"`
}

type duplicateOutcome struct {
	Exists   bool   `json:"exists"`
	FilePath string `json:"file_path"`
}

// Queue runs download requests one at a time.
type Queue struct {
	dispatcher Dispatcher
	job        JobReporter
	opts       QueueOpts
	logger     *log.Logger
}

// NewQueue creates a queue runner.
func NewQueue(d Dispatcher, job JobReporter, opts QueueOpts) *Queue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 4
	}
	if opts.StartupDeadline <= 0 {
		opts.StartupDeadline = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Queue{
		dispatcher: d,
		job:        job,
		opts:       opts,
		logger:     shared.WithLogger(opts.Logger, "component", "queue"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run downloads every request. The coordinator is always stopped before Run returns. Item failures are
// recorded in the result; Run itself fails only when the engine cannot be prepared or the job cannot start.
func (q *Queue) Run(ctx context.Context, reqs []DownloadRequest, progress chan<- ProgressUpdate) (*QueueResult, error) {
	result := &QueueResult{Total: len(reqs)}
	if len(reqs) == 0 {
		return result, nil
	}

	if q.opts.OutputDir != "" {
		res := q.dispatcher.Invoke(ctx, bridge.Request{
			Method:    bridge.OpSetOutputDirectory,
			Arguments: map[string]any{"path": q.opts.OutputDir},
		})
		if err := res.Error(); err != nil {
			return nil, fmt.Errorf("failed to set output directory: %w", err)
		}
	}
	sendProgress(progress, prepareUpdate(len(reqs), q.opts.OutputDir))

	first := reqs[0]
	if err := q.job.Start(ctx, first.TrackName, first.ArtistName, len(reqs)); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	result.SessionID = q.awaitSession(ctx)

	// Stop must still be delivered after ctx is cancelled.
	defer func() {
		if err := q.job.Stop(context.WithoutCancel(ctx)); err != nil {
			q.logger.Warn("failed to stop job", "error", err)
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(q.opts.RateLimit), 1)
	var completedBytes int64

	for i, req := range reqs {
		step := i + 1

		if ctx.Err() != nil || limiter.Wait(ctx) != nil {
			for _, rest := range reqs[i:] {
				result.add(ItemResult{Request: rest, Status: models.ItemCancelled})
			}
			break
		}

		remaining := len(reqs) - i
		q.report(ctx, lifecycle.ProgressSignal{
			Primary:    lifecycle.Ptr(req.TrackName),
			Secondary:  lifecycle.Ptr(req.ArtistName),
			Done:       completedBytes,
			Total:      0,
			QueueDepth: lifecycle.Ptr(remaining),
		})

		item := q.runItem(ctx, step, len(reqs), req, completedBytes, progress)
		completedBytes += item.Bytes
		result.add(item)
		q.record(result.SessionID, step, item)
		sendProgress(progress, itemUpdate(step, len(reqs), item, models.Progress{Done: completedBytes, Total: completedBytes}))
	}

	sendProgress(progress, finishedUpdate(result))
	q.logger.Info("queue finished", "completed", result.Completed, "skipped", result.Skipped,
		"failed", result.Failed, "cancelled", result.Cancelled)
	return result, nil
}

func (q *Queue) runItem(
	ctx context.Context,
	step, total int,
	req DownloadRequest,
	base int64,
	progress chan<- ProgressUpdate,
) ItemResult {
	item := ItemResult{Request: req}

	if q.opts.SkipDuplicates && req.ISRC != "" && q.opts.OutputDir != "" {
		sendProgress(progress, duplicateUpdate(step, total, req))
		if q.isDuplicate(ctx, req) {
			item.Status = models.ItemSkipped
			return item
		}
	}

	calls := q.dispatcher.Dispatch(ctx, bridge.Request{
		Method:    bridge.OpDownloadWithFallback,
		Arguments: map[string]any{"requestBlob": string(req.Raw)},
	})

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	var last engineProgress
	for {
		select {
		case res := <-calls:
			return q.finishItem(item, res, last)
		case <-ctx.Done():
			item.Status = models.ItemCancelled
			return item
		case <-ticker.C:
			p, ok := q.poll(ctx)
			if !ok {
				continue
			}
			last = p
			bytes := models.Progress{Done: base + p.BytesReceived, Total: base + p.BytesTotal}
			if p.BytesTotal == 0 {
				bytes.Total = 0
			}
			q.report(ctx, lifecycle.ProgressSignal{Done: bytes.Done, Total: bytes.Total})
			sendProgress(progress, downloadUpdate(step, total, req, bytes))
		}
	}
}

func (q *Queue) finishItem(item ItemResult, res bridge.Result, last engineProgress) ItemResult {
	if err := res.Error(); err != nil {
		item.Status = models.ItemFailed
		item.Error = res.Err.Message
		return item
	}

	item.Value = res.Value
	var out downloadOutcome
	if s, ok := res.Value.(string); ok && json.Unmarshal([]byte(s), &out) == nil && !out.Success && out.Error != "" {
		item.Status = models.ItemFailed
		item.Error = out.Error
		return item
	}

	item.Status = models.ItemCompleted
	switch {
	case out.Size > 0:
		item.Bytes = out.Size
	case last.BytesTotal > 0:
		item.Bytes = last.BytesTotal
	default:
		item.Bytes = last.BytesReceived
	}
	return item
}

func (q *Queue) report(ctx context.Context, p lifecycle.ProgressSignal) {
	if err := q.job.UpdateProgress(ctx, p); err != nil {
		q.logger.Debug("progress not delivered", "error", err)
	}
}

func (q *Queue) poll(ctx context.Context) (engineProgress, bool) {
	var p engineProgress
	res := q.dispatcher.Invoke(ctx, bridge.Request{Method: bridge.OpGetProgress})
	if res.Err != nil {
		q.logger.Debug("progress poll failed", "error", res.Err.Message)
		return p, false
	}
	s, _ := res.Value.(string)
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		q.logger.Debug("unreadable progress", "error", err)
		return p, false
	}
	return p, true
}

func (q *Queue) isDuplicate(ctx context.Context, req DownloadRequest) bool {
	res := q.dispatcher.Invoke(ctx, bridge.Request{
		Method:    bridge.OpCheckDuplicate,
		Arguments: map[string]any{"outputDir": q.opts.OutputDir, "isrc": req.ISRC},
	})
	if res.Err != nil {
		q.logger.Warn("duplicate check failed, downloading anyway", "isrc", req.ISRC, "error", res.Err.Message)
		return false
	}
	var out duplicateOutcome
	s, _ := res.Value.(string)
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return false
	}
	return out.Exists
}

// awaitSession waits for the coordinator to process the start signal and returns the session ID.
func (q *Queue) awaitSession(ctx context.Context) string {
	deadline := time.NewTimer(q.opts.StartupDeadline)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for {
		if state, _ := q.job.Snapshot(); state.Running && state.SessionID != "" {
			return state.SessionID
		}
		select {
		case <-ctx.Done():
			return ""
		case <-deadline.C:
			q.logger.Warn("coordinator did not become active; item history will not be recorded")
			return ""
		case <-tick.C:
		}
	}
}

func (q *Queue) record(sessionID string, position int, item ItemResult) {
	if q.opts.Recorder == nil || sessionID == "" {
		return
	}
	err := q.opts.Recorder.AddItem(&models.SessionItem{
		SessionID:  sessionID,
		Position:   position,
		TrackName:  item.Request.TrackName,
		ArtistName: item.Request.ArtistName,
		ISRC:       item.Request.ISRC,
		Status:     item.Status,
		Error:      item.Error,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		q.logger.Warn("failed to record item", "position", position, "error", err)
	}
}
