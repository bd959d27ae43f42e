package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/shared"
	tu "github.com/desertthunder/dlx/internal/testing"
)

type channelFixture struct {
	engine   *tu.StubEngine
	lease    *tu.FakeLease
	notifier *tu.FakeNotifier
	coord    *lifecycle.Coordinator
	handler  http.Handler
	logs     *bytes.Buffer
}

func newChannelFixture(t *testing.T) *channelFixture {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := shared.NewLogger(logs)

	f := &channelFixture{
		engine:   &tu.StubEngine{Response: `{"ok":true}`},
		lease:    &tu.FakeLease{},
		notifier: &tu.FakeNotifier{},
		logs:     logs,
	}
	f.coord = lifecycle.NewCoordinator(lifecycle.Options{
		Lease:    f.lease,
		Notifier: f.notifier,
		Host:     &tu.FakeHost{},
		Logger:   logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.coord.Run(ctx)

	f.handler = NewMethodChannel(bridge.NewDispatcher(f.engine, logger), f.coord, logger)
	return f
}

func (f *channelFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
		}
	}
	return w, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestMethodChannelCalls(t *testing.T) {
	t.Run("lists operations", func(t *testing.T) {
		f := newChannelFixture(t)
		w, out := f.do(t, http.MethodGet, "/v1/ops", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		ops := out["operations"].([]any)
		if len(ops) != 14 {
			t.Errorf("expected 14 operations, got %d", len(ops))
		}
		first := ops[0].(map[string]any)
		if first["name"] != bridge.OpResolveIdentifier {
			t.Errorf("expected catalogue order, got %v", first["name"])
		}
	})

	t.Run("invokes an operation", func(t *testing.T) {
		f := newChannelFixture(t)
		w, out := f.do(t, http.MethodPost, "/v1/call/search", `{"query":"song a","limit":3}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if out["result"] != `{"ok":true}` || out["method"] != "search" {
			t.Errorf("unexpected body %v", out)
		}

		call, _ := f.engine.LastCall()
		if call.Method != "Search" || call.Args[0] != "song a" || call.Args[1] != 3 {
			t.Errorf("unexpected engine call %+v", call)
		}
	})

	t.Run("blob operations accept a JSON string body", func(t *testing.T) {
		f := newChannelFixture(t)
		w, _ := f.do(t, http.MethodPost, "/v1/call/downloadItem", `"{\"id\":\"1\"}"`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		call, _ := f.engine.LastCall()
		if call.Args[0] != `{"id":"1"}` {
			t.Errorf("blob changed: %v", call.Args[0])
		}
	})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing argument", "/v1/call/downloadItem", `{}`, http.StatusBadRequest, "invalid_argument"},
		{"malformed body", "/v1/call/search", `{"query":`, http.StatusBadRequest, "invalid_argument"},
		{"unknown operation", "/v1/call/doNothing", ``, http.StatusNotFound, "unsupported_operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChannelFixture(t)
			w, out := f.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			if got := errorCode(out); got != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, got)
			}
			if f.engine.CallCount() != 0 {
				t.Error("engine should not be called")
			}
		})
	}

	t.Run("engine failure", func(t *testing.T) {
		f := newChannelFixture(t)
		f.engine.Err = errors.New("upstream down")
		w, out := f.do(t, http.MethodPost, "/v1/call/getProgress", "")
		if w.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", w.Code)
		}
		if errorCode(out) != "engine_error" {
			t.Errorf("unexpected body %v", out)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newChannelFixture(t)
		w, _ := f.do(t, http.MethodGet, "/v1/call/search", "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
		if w.Header().Get("Allow") != http.MethodPost {
			t.Errorf("unexpected Allow header %q", w.Header().Get("Allow"))
		}
	})

	t.Run("requests are logged", func(t *testing.T) {
		f := newChannelFixture(t)
		f.do(t, http.MethodGet, "/v1/ops", "")
		if !strings.Contains(f.logs.String(), "/v1/ops") {
			t.Errorf("expected request log, got %q", f.logs.String())
		}
	})
}

func TestMethodChannelJob(t *testing.T) {
	t.Run("start, progress and stop", func(t *testing.T) {
		f := newChannelFixture(t)

		w, _ := f.do(t, http.MethodPost, "/v1/job/start", `{"primary":"Song A","secondary":"Artist","queue_depth":1}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
		}
		tu.Eventually(t, time.Second, func() bool { return f.lease.Held() }, "lease acquired")

		w, _ = f.do(t, http.MethodPost, "/v1/job/progress", `{"done":50,"total":200}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", w.Code)
		}
		tu.Eventually(t, time.Second, func() bool {
			n := f.notifier.Visible()
			return n != nil && n.Percent == 25
		}, "progress rendered")

		_, out := f.do(t, http.MethodGet, "/v1/job", "")
		state := out["state"].(map[string]any)
		if out["phase"] != "active" || state["running"] != true {
			t.Errorf("unexpected snapshot %v", out)
		}
		if state["label"].(map[string]any)["primary"] != "Song A" {
			t.Errorf("label should be kept when progress omits it, got %v", state["label"])
		}

		f.do(t, http.MethodPost, "/v1/job/stop", "")
		tu.Eventually(t, time.Second, func() bool { return !f.lease.Held() && f.notifier.Visible() == nil }, "stopped")
	})

	t.Run("timeout waits for cleanup", func(t *testing.T) {
		f := newChannelFixture(t)
		f.do(t, http.MethodPost, "/v1/job/start", `{"primary":"Song A"}`)

		w, out := f.do(t, http.MethodPost, "/v1/job/timeout", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if out["phase"] != "idle" {
			t.Errorf("expected idle after timeout, got %v", out["phase"])
		}
		if f.lease.Held() {
			t.Error("lease should be released")
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		f := newChannelFixture(t)
		w, _ := f.do(t, http.MethodPost, "/v1/job/start", `{"title":"x"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newChannelFixture(t)
		w, _ := f.do(t, http.MethodPost, "/v1/job/pause", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("snapshot requires GET", func(t *testing.T) {
		f := newChannelFixture(t)
		w, _ := f.do(t, http.MethodDelete, "/v1/job", "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", w.Code)
		}
	})

	t.Run("closed coordinator", func(t *testing.T) {
		logger := shared.NewLogger(&bytes.Buffer{})
		coord := lifecycle.NewCoordinator(lifecycle.Options{
			Lease: &tu.FakeLease{}, Notifier: &tu.FakeNotifier{}, Host: &tu.FakeHost{}, Logger: logger,
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = coord.Run(ctx)

		h := NewMethodChannel(bridge.NewDispatcher(&tu.StubEngine{}, logger), coord, logger)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/job/stop", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}

func TestRouter(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("methods share a path", func(t *testing.T) {
		r := NewBasicRouter()
		ok := func(body string) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(body)) })
		}
		r.Handle(http.MethodGet, "/thing", ok("get"))
		r.Handle(http.MethodPut, "/thing", ok("put"))

		for _, m := range []string{http.MethodGet, http.MethodPut} {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(m, "/thing", nil))
			if w.Body.String() != strings.ToLower(m) {
				t.Errorf("%s: got %q", m, w.Body.String())
			}
		}

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/thing", nil))
		if w.Code != http.StatusMethodNotAllowed || w.Header().Get("Allow") != "GET, PUT" {
			t.Errorf("unexpected %d %q", w.Code, w.Header().Get("Allow"))
		}
	})

	t.Run("recover", func(t *testing.T) {
		logs := &bytes.Buffer{}
		r := NewBasicRouter()
		r.Use(Recover(shared.NewLogger(logs)))
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
		if !strings.Contains(logs.String(), "boom") {
			t.Error("expected panic to be logged")
		}
	})
}

func TestServerShutdown(t *testing.T) {
	srv := NewServer(shared.ServerConfig{Host: "127.0.0.1", Port: 0}, http.NotFoundHandler(), shared.NewLogger(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
