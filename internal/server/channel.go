package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
)

const maxBodyBytes = 4 << 20

// Caller is the part of [bridge.Dispatcher] the method channel needs.
type Caller interface {
	Operations() []bridge.Operation
	Invoke(ctx context.Context, req bridge.Request) bridge.Result
}

// Job is the part of [lifecycle.Coordinator] the method channel needs.
type Job interface {
	Start(ctx context.Context, primary, secondary string, queueDepth int) error
	UpdateProgress(ctx context.Context, p lifecycle.ProgressSignal) error
	Stop(ctx context.Context) error
	PlatformTimeout(ctx context.Context) (<-chan struct{}, error)
	Snapshot() (models.JobState, lifecycle.Phase)
}

// NewMethodChannel builds the router for the HTTP method channel with logging and panic recovery installed.
func NewMethodChannel(caller Caller, job Job, logger *log.Logger) *BasicRouter {
	logger = shared.WithLogger(logger, "component", "channel")

	r := NewBasicRouter()
	r.Use(Logging(logger), Recover(logger))

	calls := &CallHandler{caller: caller, logger: logger}
	r.Handle(http.MethodGet, "/v1/ops", http.HandlerFunc(calls.operations))
	r.Handle(http.MethodPost, "/v1/call/{method}", http.HandlerFunc(calls.call))
	r.Handler(&JobHandler{job: job, logger: logger})
	return r
}

// CallHandler serves the operation catalogue and invokes operations.
type CallHandler struct {
	caller Caller
	logger *log.Logger
}

func (h *CallHandler) operations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": h.caller.Operations()})
}

func (h *CallHandler) call(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")

	args, err := decodeArguments(r.Body)
	if err != nil {
		res := bridge.Result{Method: method, Err: &bridge.CallError{
			Code:    bridge.CodeInvalidArgument,
			Message: err.Error(),
			Method:  method,
		}}
		writeJSON(w, http.StatusBadRequest, res)
		return
	}

	res := h.caller.Invoke(r.Context(), bridge.Request{Method: method, Arguments: args})
	writeJSON(w, StatusFor(res.Err), res)
}

// decodeArguments reads the request body. An empty body means no arguments.
func decodeArguments(body io.Reader) (any, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var args any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("body is not valid JSON: %v", err)
	}
	return args, nil
}

// StatusFor maps a call error to its HTTP status.
func StatusFor(err *bridge.CallError) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Code {
	case bridge.CodeInvalidArgument:
		return http.StatusBadRequest
	case bridge.CodeUnsupportedOperation:
		return http.StatusNotFound
	case bridge.CodeEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// JobHandler relays coordinator signals. Signals are queued, so start, progress and stop answer 202.
type JobHandler struct {
	job    Job
	logger *log.Logger
}

// Routes implements [Handler].
func (h *JobHandler) Routes() []string {
	return []string{"/v1/job", "/v1/job/{action}"}
}

type startBody struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	QueueDepth int    `json:"queue_depth"`
}

type progressBody struct {
	Primary    *string `json:"primary"`
	Secondary  *string `json:"secondary"`
	Done       int64   `json:"done"`
	Total      int64   `json:"total"`
	QueueDepth *int    `json:"queue_depth"`
}

type snapshotBody struct {
	Phase string          `json:"phase"`
	State models.JobState `json:"state"`
}

func (h *JobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")

	if action == "" {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", "method not allowed"))
			return
		}
		h.snapshot(w)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", "method not allowed"))
		return
	}

	var err error
	switch action {
	case "start":
		var body startBody
		if !readBody(w, r, &body) {
			return
		}
		err = h.job.Start(r.Context(), body.Primary, body.Secondary, body.QueueDepth)
	case "progress":
		var body progressBody
		if !readBody(w, r, &body) {
			return
		}
		err = h.job.UpdateProgress(r.Context(), lifecycle.ProgressSignal{
			Primary:    body.Primary,
			Secondary:  body.Secondary,
			Done:       body.Done,
			Total:      body.Total,
			QueueDepth: body.QueueDepth,
		})
	case "stop":
		err = h.job.Stop(r.Context())
	case "timeout":
		h.timeout(w, r)
		return
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not_found", fmt.Sprintf("unknown job action %q", action)))
		return
	}

	if err != nil {
		h.signalFailed(w, action, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"accepted": action})
}

func (h *JobHandler) snapshot(w http.ResponseWriter) {
	state, phase := h.job.Snapshot()
	writeJSON(w, http.StatusOK, snapshotBody{Phase: phase.String(), State: state})
}

// timeout waits for the coordinator's cleanup acknowledgement, bounded by the request context.
func (h *JobHandler) timeout(w http.ResponseWriter, r *http.Request) {
	ack, err := h.job.PlatformTimeout(r.Context())
	if err != nil {
		h.signalFailed(w, "timeout", err)
		return
	}

	select {
	case <-ack:
		h.snapshot(w)
	case <-r.Context().Done():
		h.signalFailed(w, "timeout", r.Context().Err())
	}
}

func (h *JobHandler) signalFailed(w http.ResponseWriter, action string, err error) {
	h.logger.Warn("job signal failed", "action", action, "error", err)
	status := http.StatusServiceUnavailable
	if !errors.Is(err, shared.ErrCoordinatorClosed) {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody("job_unavailable", err.Error()))
}

func readBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody(string(bridge.CodeInvalidArgument), err.Error()))
		return false
	}
	return true
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"error": map[string]string{"code": code, "message": message}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Default().Warn("failed to encode response", "error", err)
	}
}
