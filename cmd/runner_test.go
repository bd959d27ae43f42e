package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/shared"
	tu "github.com/desertthunder/dlx/internal/testing"
	"github.com/urfave/cli/v3"
)

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "dlx.db")
	config.Download.PollInterval = 5 * time.Millisecond
	config.Download.RequestsPerSecond = 1000
	config.Download.OutputDir = ""
	return config
}

func newTestRunner(t *testing.T, engine *tu.StubEngine) (*Runner, *bytes.Buffer) {
	t.Helper()
	output := &bytes.Buffer{}
	opts := RunnerOpts{
		Config: testConfig(t),
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
		Exit:   func(code int) { t.Errorf("unexpected exit(%d)", code) },
	}
	if engine != nil {
		opts.Engine = engine
	}
	return NewRunner(opts), output
}

func run(r *Runner, args ...string) error {
	app := &cli.Command{Name: "dlx", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"dlx"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			engine := &tu.StubEngine{}

			runner := NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output, Engine: engine})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.dispatcher == nil {
				t.Error("expected dispatcher over the engine")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil || runner.logger == nil || runner.output == nil || runner.exit == nil {
				t.Error("expected defaults to be set")
			}
			if runner.dispatcher != nil {
				t.Error("expected no dispatcher without an engine")
			}
		})

		t.Run("commands need an engine", func(t *testing.T) {
			r, _ := newTestRunner(t, nil)
			if err := run(r, "call", "search"); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("SetLogger redirects bridge logging", func(t *testing.T) {
		var before, after bytes.Buffer
		r := NewRunner(RunnerOpts{
			Logger: shared.NewLogger(&before),
			Engine: &tu.StubEngine{Err: errors.New("upstream down")},
		})

		r.SetLogger(shared.NewLogger(&after))
		r.dispatcher.Invoke(context.Background(), bridge.Request{Method: bridge.OpGetProgress})

		if !strings.Contains(after.String(), "engine call failed") {
			t.Errorf("expected bridge error in the new log, got %q", after.String())
		}
		if before.Len() != 0 {
			t.Errorf("nothing should reach the old writer, got %q", before.String())
		}
	})

	t.Run("register", func(t *testing.T) {
		r, _ := newTestRunner(t, nil)
		names := []string{}
		for _, c := range r.register() {
			names = append(names, c.Name)
		}
		if got := strings.Join(names, ","); got != "setup,ops,call,download,serve,history" {
			t.Errorf("unexpected commands %s", got)
		}
	})
}

func TestOps(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		r, output := newTestRunner(t, &tu.StubEngine{})
		if err := run(r, "ops"); err != nil {
			t.Fatalf("ops: %v", err)
		}
		for _, want := range []string{"14 operations", "downloadWithFallback", "limit: int = 10", "requestBlob: blob"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("output missing %q:\n%s", want, output.String())
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		r, output := newTestRunner(t, nil)
		if err := run(r, "ops", "--json"); err != nil {
			t.Fatalf("ops: %v", err)
		}
		var ops []map[string]any
		if err := json.Unmarshal(output.Bytes(), &ops); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(ops) != 14 || ops[0]["name"] != "resolveIdentifier" {
			t.Errorf("unexpected catalogue %v", ops)
		}
	})
}

func TestCall(t *testing.T) {
	t.Run("converts integer arguments", func(t *testing.T) {
		engine := &tu.StubEngine{Response: `{"tracks":[]}`}
		r, output := newTestRunner(t, engine)

		if err := run(r, "call", "search", "--arg", "query=blue", "-a", "limit=3", "--pretty=false"); err != nil {
			t.Fatalf("call: %v", err)
		}
		call, _ := engine.LastCall()
		if call.Method != "Search" || call.Args[0] != "blue" || call.Args[1] != 3 {
			t.Errorf("unexpected engine call %+v", call)
		}
		if strings.TrimSpace(output.String()) != `{"tracks":[]}` {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("blob from file", func(t *testing.T) {
		engine := &tu.StubEngine{Response: `{"success":true}`}
		r, _ := newTestRunner(t, engine)

		path := filepath.Join(t.TempDir(), "req.json")
		if err := os.WriteFile(path, []byte(`{"id":"1"}`+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := run(r, "call", "downloadItem", "--blob", "@"+path); err != nil {
			t.Fatalf("call: %v", err)
		}
		call, _ := engine.LastCall()
		if call.Method != "DownloadItem" || call.Args[0] != `{"id":"1"}` {
			t.Errorf("unexpected engine call %+v", call)
		}
	})

	t.Run("unit result prints ok", func(t *testing.T) {
		r, output := newTestRunner(t, &tu.StubEngine{})
		if err := run(r, "call", "setOutputDirectory", "-a", "path=/music"); err != nil {
			t.Fatalf("call: %v", err)
		}
		if output.String() != "ok\n" {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("unknown operation", func(t *testing.T) {
		r, _ := newTestRunner(t, &tu.StubEngine{})
		if err := run(r, "call", "transcode"); !errors.Is(err, shared.ErrUnsupportedOperation) {
			t.Errorf("expected ErrUnsupportedOperation, got %v", err)
		}
	})

	t.Run("missing argument", func(t *testing.T) {
		engine := &tu.StubEngine{}
		r, _ := newTestRunner(t, engine)
		if err := run(r, "call", "fetchMetadata"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if engine.CallCount() != 0 {
			t.Error("engine should not be called")
		}
	})

	t.Run("malformed pair", func(t *testing.T) {
		r, _ := newTestRunner(t, &tu.StubEngine{})
		if err := run(r, "call", "search", "-a", "query"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		r, _ := newTestRunner(t, &tu.StubEngine{Err: errors.New("upstream down")})
		err := run(r, "call", "getProgress")
		if !errors.Is(err, shared.ErrEngine) || !strings.Contains(err.Error(), "upstream down") {
			t.Errorf("expected engine error, got %v", err)
		}
	})
}

func writeRequests(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDownloadAndHistory(t *testing.T) {
	engine := &tu.StubEngine{Handlers: map[string]func(...any) (string, error){
		"DownloadWithFallback": func(args ...any) (string, error) {
			if strings.Contains(args[0].(string), `"id":"2"`) {
				return `{"success":false,"error":"no source"}`, nil
			}
			return `{"success":true,"file_size":2048}`, nil
		},
		"GetProgress": func(...any) (string, error) { return `{"bytes_received":0,"bytes_total":0}`, nil },
	}}
	r, output := newTestRunner(t, engine)

	path := writeRequests(t, `[
		{"id":"1","track_name":"Song A","artist_name":"Artist A"},
		{"id":"2","track_name":"Song B"}
	]`)

	err := run(r, "download", "--file", path, "-o", "/music")
	if !errors.Is(err, shared.ErrEngine) {
		t.Errorf("expected failure summary error, got %v", err)
	}
	for _, want := range []string{"completed Artist A - Song A", "failed    Song B: no source", "Downloaded 1, skipped 0, failed 1"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, output.String())
		}
	}
	if call := engine.Calls[0]; call.Method != "SetOutputDirectory" || call.Args[0] != "/music" {
		t.Errorf("expected output directory first, got %+v", call)
	}

	output.Reset()
	if err := run(r, "history", "--format", "json"); err != nil {
		t.Fatalf("history: %v", err)
	}
	var sessions []map[string]any
	if err := json.Unmarshal(output.Bytes(), &sessions); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, output.String())
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	if sessions[0]["end_reason"] != "stopped" {
		t.Errorf("expected stopped session, got %v", sessions[0]["end_reason"])
	}
	if items := sessions[0]["items"].([]any); len(items) != 2 {
		t.Errorf("expected two recorded items, got %v", items)
	}

	exported := filepath.Join(t.TempDir(), "history.csv")
	if err := run(r, "history", "--format", "csv", "-o", exported); err != nil {
		t.Fatalf("history export: %v", err)
	}
	if content := tu.MustReadFile(t, exported); !strings.HasPrefix(content, "ID,Started") {
		t.Errorf("unexpected export:\n%s", content)
	}

	output.Reset()
	if err := run(r, "history", "--reason", "timeout"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if output.String() != "No sessions recorded.\n" {
		t.Errorf("expected no timeout sessions, got %q", output.String())
	}
}

func TestDownloadEdgeCases(t *testing.T) {
	t.Run("empty queue", func(t *testing.T) {
		engine := &tu.StubEngine{}
		r, output := newTestRunner(t, engine)
		if err := run(r, "download", "-f", writeRequests(t, `[]`), "--no-history"); err != nil {
			t.Fatalf("download: %v", err)
		}
		if output.String() != "Nothing to download.\n" || engine.CallCount() != 0 {
			t.Errorf("unexpected output %q with %d calls", output.String(), engine.CallCount())
		}
	})

	t.Run("invalid request file", func(t *testing.T) {
		r, _ := newTestRunner(t, &tu.StubEngine{})
		err := run(r, "download", "-f", writeRequests(t, `{"id":"1"}`), "--no-history")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "setup.db")
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[database]\npath = \""+dbPath+"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, _ := newTestRunner(t, nil)

	if err := run(r, "setup", "--config", configPath); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected database to be created: %v", err)
	}
	if err := run(r, "setup", "--config", configPath); err != nil {
		t.Errorf("second setup should be a no-op, got %v", err)
	}

	if err := run(r, "setup", "rollback", "--config", configPath); err != nil {
		t.Errorf("rollback: %v", err)
	}
}

func TestBuildArguments(t *testing.T) {
	r, _ := newTestRunner(t, &tu.StubEngine{})

	t.Run("no arguments", func(t *testing.T) {
		args, err := buildArguments(r.dispatcher, "getProgress", nil, "")
		if err != nil || args != nil {
			t.Errorf("expected nil payload, got %v, %v", args, err)
		}
	})

	t.Run("blob alongside pairs is named", func(t *testing.T) {
		args, err := buildArguments(r.dispatcher, "buildFilename", []string{"template={artist} - {title}"}, `{"title":"T"}`)
		if err != nil {
			t.Fatal(err)
		}
		m := args.(map[string]any)
		if m["template"] != "{artist} - {title}" || m["metadataBlob"] != `{"title":"T"}` {
			t.Errorf("unexpected payload %v", m)
		}
	})

	t.Run("unknown method keeps strings", func(t *testing.T) {
		args, _ := buildArguments(r.dispatcher, "nope", []string{"limit=3"}, "")
		if args.(map[string]any)["limit"] != "3" {
			t.Errorf("expected string value, got %v", args)
		}
	})
}
