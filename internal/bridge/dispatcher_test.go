package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/desertthunder/dlx/internal/shared"
	tu "github.com/desertthunder/dlx/internal/testing"
)

func newTestDispatcher(engine Engine) *Dispatcher {
	return NewDispatcher(engine, shared.NewLogger(&bytes.Buffer{}))
}

func TestDispatcherInvoke(t *testing.T) {
	t.Run("routes every operation to its engine entry point", func(t *testing.T) {
		tests := []struct {
			method     string
			args       any
			wantMethod string
			wantArgs   []any
		}{
			{OpResolveIdentifier, map[string]any{"url": "https://open.example/track/1"}, "ResolveIdentifier", []any{"https://open.example/track/1"}},
			{OpFetchMetadata, map[string]any{"url": "u"}, "FetchMetadata", []any{"u"}},
			{OpSearch, map[string]any{"query": "q", "limit": float64(25)}, "Search", []any{"q", 25}},
			{OpCheckAvailability, map[string]any{"id": "abc", "isrc": "USRC1"}, "CheckAvailability", []any{"abc", "USRC1"}},
			{OpDownloadItem, map[string]any{"requestBlob": `{"id":"1"}`}, "DownloadItem", []any{`{"id":"1"}`}},
			{OpDownloadWithFallback, `{"id":"2"}`, "DownloadWithFallback", []any{`{"id":"2"}`}},
			{OpGetProgress, nil, "GetProgress", nil},
			{OpSetOutputDirectory, map[string]any{"path": "/music"}, "SetOutputDirectory", []any{"/music"}},
			{OpCheckDuplicate, map[string]any{"outputDir": "/music", "isrc": "X"}, "CheckDuplicate", []any{"/music", "X"}},
			{OpBuildFilename, map[string]any{"template": "{title}", "metadataBlob": `{"title":"T"}`}, "BuildFilename", []any{"{title}", `{"title":"T"}`}},
			{OpSanitizeFilename, map[string]any{"filename": "a/b"}, "SanitizeFilename", []any{"a/b"}},
			{OpFetchLyrics, map[string]any{"id": "1", "trackName": "T", "artistName": "A"}, "FetchLyrics", []any{"1", "T", "A"}},
			{OpGetLyricsLRC, map[string]any{"id": "1", "trackName": "T", "artistName": "A"}, "GetLyricsLRC", []any{"1", "T", "A"}},
			{OpEmbedLyrics, map[string]any{"filePath": "/f.flac", "lyrics": "[00:01.00]hi"}, "EmbedLyrics", []any{"/f.flac", "[00:01.00]hi"}},
		}

		for _, tt := range tests {
			t.Run(tt.method, func(t *testing.T) {
				engine := &tu.StubEngine{Response: `{"ok":true}`}
				res := newTestDispatcher(engine).Invoke(context.Background(), Request{Method: tt.method, Arguments: tt.args})

				if res.Err != nil {
					t.Fatalf("unexpected error: %v", res.Err)
				}
				call, ok := engine.LastCall()
				if !ok {
					t.Fatal("engine was not called")
				}
				if call.Method != tt.wantMethod {
					t.Errorf("called %s, want %s", call.Method, tt.wantMethod)
				}
				if len(tt.wantArgs) > 0 && !reflect.DeepEqual(call.Args, tt.wantArgs) {
					t.Errorf("args = %#v, want %#v", call.Args, tt.wantArgs)
				}
				if tt.method == OpSetOutputDirectory {
					if res.Value != nil {
						t.Errorf("expected nil result for %s, got %v", tt.method, res.Value)
					}
				} else if res.Value != `{"ok":true}` {
					t.Errorf("expected engine value passed through, got %v", res.Value)
				}
			})
		}
	})

	t.Run("downloadItem without requestBlob never reaches the engine", func(t *testing.T) {
		engine := &tu.StubEngine{}
		res := newTestDispatcher(engine).Invoke(context.Background(), Request{Method: OpDownloadItem, Arguments: map[string]any{}})

		if res.Err == nil || res.Err.Code != CodeInvalidArgument {
			t.Fatalf("expected invalid_argument, got %+v", res.Err)
		}
		if !errors.Is(res.Error(), shared.ErrInvalidArgument) {
			t.Error("expected error to match ErrInvalidArgument")
		}
		if engine.CallCount() != 0 {
			t.Errorf("engine called %d times", engine.CallCount())
		}
	})

	t.Run("unknown operation carries its name", func(t *testing.T) {
		engine := &tu.StubEngine{}
		res := newTestDispatcher(engine).Invoke(context.Background(), Request{Method: "doNothing"})

		if res.Err == nil || res.Err.Code != CodeUnsupportedOperation {
			t.Fatalf("expected unsupported_operation, got %+v", res.Err)
		}
		if res.Err.Method != "doNothing" || res.Method != "doNothing" {
			t.Errorf("expected method name in error, got %+v", res.Err)
		}
		if !errors.Is(res.Error(), shared.ErrUnsupportedOperation) {
			t.Error("expected error to match ErrUnsupportedOperation")
		}
		if engine.CallCount() != 0 {
			t.Error("engine should not be called")
		}
	})

	t.Run("operation names are case sensitive", func(t *testing.T) {
		res := newTestDispatcher(&tu.StubEngine{}).Invoke(context.Background(), Request{Method: "GetProgress"})
		if res.Err == nil || res.Err.Code != CodeUnsupportedOperation {
			t.Errorf("expected unsupported_operation, got %+v", res.Err)
		}
	})

	t.Run("search limit defaults to 10", func(t *testing.T) {
		engine := &tu.StubEngine{}
		newTestDispatcher(engine).Invoke(context.Background(), Request{Method: OpSearch, Arguments: map[string]any{"query": "song"}})

		call, _ := engine.LastCall()
		if call.Args[1] != 10 {
			t.Errorf("expected default limit 10, got %v", call.Args[1])
		}
	})

	t.Run("wrong argument type is rejected", func(t *testing.T) {
		engine := &tu.StubEngine{}
		res := newTestDispatcher(engine).Invoke(context.Background(), Request{
			Method:    OpSearch,
			Arguments: map[string]any{"query": "song", "limit": "ten"},
		})
		if res.Err == nil || res.Err.Code != CodeInvalidArgument {
			t.Fatalf("expected invalid_argument, got %+v", res.Err)
		}
		if engine.CallCount() != 0 {
			t.Error("engine should not be called")
		}
	})

	t.Run("engine errors keep only the message", func(t *testing.T) {
		cause := errors.New("no source available")
		engine := &tu.StubEngine{Err: cause}
		res := newTestDispatcher(engine).Invoke(context.Background(), Request{
			Method:    OpDownloadWithFallback,
			Arguments: `{"id":"1"}`,
		})

		if res.Err == nil || res.Err.Code != CodeEngine {
			t.Fatalf("expected engine_error, got %+v", res.Err)
		}
		if res.Err.Message != "no source available" {
			t.Errorf("unexpected message %q", res.Err.Message)
		}
		if !errors.Is(res.Error(), shared.ErrEngine) {
			t.Error("expected error to match ErrEngine")
		}
		if errors.Is(res.Error(), cause) {
			t.Error("engine cause should not be reachable")
		}
		if errors.Is(res.Error(), shared.ErrInvalidArgument) {
			t.Error("engine error must not look like a validation error")
		}
	})

	t.Run("engine panics are recovered", func(t *testing.T) {
		engine := &tu.StubEngine{Handlers: map[string]func(...any) (string, error){
			"GetProgress": func(...any) (string, error) { panic("nil pointer in engine") },
		}}
		res := newTestDispatcher(engine).Invoke(context.Background(), Request{Method: OpGetProgress})

		if res.Err == nil || res.Err.Code != CodeEngine {
			t.Fatalf("expected engine_error, got %+v", res.Err)
		}
	})

	t.Run("no-argument operations ignore their payload", func(t *testing.T) {
		engine := &tu.StubEngine{Response: "{}"}
		res := newTestDispatcher(engine).Invoke(context.Background(), Request{Method: OpGetProgress, Arguments: 42})
		if res.Err != nil {
			t.Errorf("unexpected error %v", res.Err)
		}
	})
}

func TestDispatcherAsync(t *testing.T) {
	t.Run("Dispatch delivers one result", func(t *testing.T) {
		engine := &tu.StubEngine{Response: `{"percent":50}`}
		d := newTestDispatcher(engine)

		select {
		case res := <-d.Dispatch(context.Background(), Request{Method: OpGetProgress}):
			if res.Value != `{"percent":50}` {
				t.Errorf("unexpected value %v", res.Value)
			}
		case <-time.After(time.Second):
			t.Fatal("no result delivered")
		}
	})

	t.Run("Call posts results through the poster", func(t *testing.T) {
		engine := &tu.StubEngine{Response: "ok"}
		d := newTestDispatcher(engine)

		posted := make(chan Result, 2)
		post := func(r Result) { posted <- r }
		d.Call(context.Background(), Request{Method: OpSanitizeFilename, Arguments: map[string]any{"filename": "x"}}, post)
		d.Call(context.Background(), Request{Method: "doNothing"}, post)
		d.Wait()

		close(posted)
		var ok, failed int
		for r := range posted {
			if r.Err == nil {
				ok++
			} else {
				failed++
			}
		}
		if ok != 1 || failed != 1 {
			t.Errorf("expected one success and one failure, got %d/%d", ok, failed)
		}
	})
}

func TestRegistry(t *testing.T) {
	t.Run("catalogue has fourteen unique operations", func(t *testing.T) {
		r := NewRegistry(Catalogue()...)
		if n := len(r.Operations()); n != 14 {
			t.Errorf("expected 14 operations, got %d", n)
		}
	})

	t.Run("duplicate names panic", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic on duplicate registration")
			}
		}()
		op := Catalogue()[0]
		NewRegistry(op, op)
	})

	t.Run("catalogue listing serializes kinds by name", func(t *testing.T) {
		op, _ := NewRegistry(Catalogue()...).Lookup(OpSearch)
		data, err := json.Marshal(op)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		want := `{"name":"search","summary":"Search the catalogue","shape":"args","args":[{"name":"query","kind":"string"},{"name":"limit","kind":"int","default":10}]}`
		if string(data) != want {
			t.Errorf("got %s", data)
		}
	})
}
