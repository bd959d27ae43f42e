package platform

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlx/internal/shared"
)

// ProcessHost is the host process of the background job. Ending the background task closes [ProcessHost.Ended];
// terminating exits the process.
type ProcessHost struct {
	mu     sync.Mutex
	ended  chan struct{}
	closed bool
	exit   func(int)
	logger *log.Logger
}

// NewProcessHost creates a host. exit defaults to [os.Exit].
func NewProcessHost(logger *log.Logger, exit func(int)) *ProcessHost {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if exit == nil {
		exit = os.Exit
	}
	return &ProcessHost{
		ended:  make(chan struct{}),
		exit:   exit,
		logger: shared.WithLogger(logger, "component", "host"),
	}
}

// EndBackgroundTask marks the background task window as closed. A new window opens with [ProcessHost.Begin].
func (h *ProcessHost) EndBackgroundTask() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.ended)
	h.logger.Debug("background task ended")
}

// Begin opens a new background task window.
func (h *ProcessHost) Begin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		h.ended = make(chan struct{})
		h.closed = false
	}
}

// Ended is closed when the current background task window closes.
func (h *ProcessHost) Ended() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended
}

// Terminate is the forced termination path used when cleanup misses the grace window.
func (h *ProcessHost) Terminate(err error) {
	h.logger.Error("terminating process", "error", err)
	h.exit(2)
}
