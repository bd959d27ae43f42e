// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/dlx/internal/models"
)

// FakeLease is an in-memory wake lease that counts acquisitions and releases.
type FakeLease struct {
	mu         sync.Mutex
	held       bool
	AcquireErr error
	ReleaseErr error
	Acquired   int
	Released   int
	LastMax    time.Duration
}

func (l *FakeLease) Acquire(max time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AcquireErr != nil {
		return l.AcquireErr
	}
	l.held = true
	l.Acquired++
	l.LastMax = max
	return nil
}

func (l *FakeLease) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return errors.New("release of lease that is not held")
	}
	l.held = false
	l.Released++
	return l.ReleaseErr
}

func (l *FakeLease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// FakeNotifier records every notification it is asked to show.
type FakeNotifier struct {
	mu       sync.Mutex
	Current  *models.Notification
	History  []models.Notification
	Shown    int
	Updated  int
	Removed  int
	ShowErr  error
	onChange func(models.Notification)
}

// OnChange registers a hook called after every show or update.
func (n *FakeNotifier) OnChange(fn func(models.Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onChange = fn
}

func (n *FakeNotifier) Show(note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ShowErr != nil {
		return n.ShowErr
	}
	n.Shown++
	n.set(note)
	return nil
}

func (n *FakeNotifier) Update(note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Updated++
	n.set(note)
	return nil
}

func (n *FakeNotifier) set(note models.Notification) {
	n.Current = &note
	n.History = append(n.History, note)
	if n.onChange != nil {
		n.onChange(note)
	}
}

func (n *FakeNotifier) Remove(id int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Current != nil {
		n.Removed++
	}
	n.Current = nil
	return nil
}

// Visible returns the notification on screen, or nil.
func (n *FakeNotifier) Visible() *models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Current == nil {
		return nil
	}
	c := *n.Current
	return &c
}

// FakeHost counts background task window closures.
type FakeHost struct {
	mu    sync.Mutex
	Ended int
}

func (h *FakeHost) EndBackgroundTask() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Ended++
}

func (h *FakeHost) EndedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Ended
}

// StubEngine is a test double for the download engine. Every entry point records its call and returns
// Response (or Err). Handlers override individual entry points.
type StubEngine struct {
	mu       sync.Mutex
	Calls    []EngineCall
	Response string
	Err      error
	Handlers map[string]func(args ...any) (string, error)
}

// EngineCall is one recorded invocation.
type EngineCall struct {
	Method string
	Args   []any
}

// CallCount returns the number of recorded engine invocations.
func (s *StubEngine) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// LastCall returns the most recent invocation.
func (s *StubEngine) LastCall() (EngineCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return EngineCall{}, false
	}
	return s.Calls[len(s.Calls)-1], true
}

func (s *StubEngine) record(method string, args ...any) (string, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, EngineCall{Method: method, Args: args})
	h := s.Handlers[method]
	resp, err := s.Response, s.Err
	s.mu.Unlock()

	if h != nil {
		return h(args...)
	}
	return resp, err
}

func (s *StubEngine) ResolveIdentifier(ctx context.Context, url string) (string, error) {
	return s.record("ResolveIdentifier", url)
}

func (s *StubEngine) FetchMetadata(ctx context.Context, url string) (string, error) {
	return s.record("FetchMetadata", url)
}

func (s *StubEngine) Search(ctx context.Context, query string, limit int) (string, error) {
	return s.record("Search", query, limit)
}

func (s *StubEngine) CheckAvailability(ctx context.Context, id, isrc string) (string, error) {
	return s.record("CheckAvailability", id, isrc)
}

func (s *StubEngine) DownloadItem(ctx context.Context, request string) (string, error) {
	return s.record("DownloadItem", request)
}

func (s *StubEngine) DownloadWithFallback(ctx context.Context, request string) (string, error) {
	return s.record("DownloadWithFallback", request)
}

func (s *StubEngine) GetProgress(ctx context.Context) (string, error) {
	return s.record("GetProgress")
}

func (s *StubEngine) SetOutputDirectory(ctx context.Context, path string) error {
	_, err := s.record("SetOutputDirectory", path)
	return err
}

func (s *StubEngine) CheckDuplicate(ctx context.Context, outputDir, isrc string) (string, error) {
	return s.record("CheckDuplicate", outputDir, isrc)
}

func (s *StubEngine) BuildFilename(ctx context.Context, template, metadata string) (string, error) {
	return s.record("BuildFilename", template, metadata)
}

func (s *StubEngine) SanitizeFilename(ctx context.Context, filename string) (string, error) {
	return s.record("SanitizeFilename", filename)
}

func (s *StubEngine) FetchLyrics(ctx context.Context, id, trackName, artistName string) (string, error) {
	return s.record("FetchLyrics", id, trackName, artistName)
}

func (s *StubEngine) GetLyricsLRC(ctx context.Context, id, trackName, artistName string) (string, error) {
	return s.record("GetLyricsLRC", id, trackName, artistName)
}

func (s *StubEngine) EmbedLyrics(ctx context.Context, filePath, lyrics string) (string, error) {
	return s.record("EmbedLyrics", filePath, lyrics)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Eventually polls cond every few milliseconds until it holds or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
