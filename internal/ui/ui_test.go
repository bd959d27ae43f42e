package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/desertthunder/dlx/internal/tasks"
	tu "github.com/desertthunder/dlx/internal/testing"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *recordingSender) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSender) all() []tea.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tea.Msg(nil), s.msgs...)
}

type syncCaller struct {
	res bridge.Result
	req bridge.Request
}

func (c *syncCaller) Call(ctx context.Context, req bridge.Request, post bridge.Poster) {
	c.req = req
	post(c.res)
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drive feeds the queue's messages into the model until the queue completes and returns the final command.
func drive(t *testing.T, m *Model, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	for i := 0; i < 1000; i++ {
		msg := cmd()
		_, next := m.Update(msg)
		if um, ok := msg.(Msg); ok && um.Kind() == MsgQueueComplete {
			return next
		}
		cmd = next
	}
	t.Fatal("queue never completed")
	return nil
}

func TestModel(t *testing.T) {
	t.Run("shows progress then results", func(t *testing.T) {
		req, _ := tasks.ParseRequest([]byte(`{"id":"1","track_name":"Song A","artist_name":"Artist"}`))
		result := &tasks.QueueResult{
			Total:     1,
			Completed: 1,
			Items:     []tasks.ItemResult{{Request: req, Status: models.ItemCompleted}},
		}

		var seen []string
		m := NewModel(context.Background(), ModelOpts{
			Run: func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.QueueResult, error) {
				progress <- tasks.ProgressUpdate{Phase: tasks.Download, Step: 1, Total: 1, Message: "[1/1] Downloading Artist - Song A",
					Bytes: models.Progress{Done: 512 * 1024, Total: 1024 * 1024}}
				progress <- tasks.ProgressUpdate{Phase: tasks.ItemDone, Step: 1, Total: 1, Message: "[1/1] ✓ Artist - Song A"}
				return result, nil
			},
		})
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})

		cmd := m.startQueue()
		msg := cmd()
		m.Update(msg)
		seen = append(seen, m.View())
		if !strings.Contains(seen[0], "0.5 / 1.0 MB (50%)") || !strings.Contains(seen[0], "Item 1 of 1") {
			t.Errorf("download view missing progress:\n%s", seen[0])
		}

		drive(t, m, m.waitForProgress())
		if m.view != ResultView {
			t.Fatalf("expected result view, got %v", m.view)
		}
		got, err := m.Result()
		if err != nil || got != result {
			t.Errorf("unexpected result %v, %v", got, err)
		}
		view := m.View()
		if !strings.Contains(view, "Queue finished") || !strings.Contains(view, "Downloaded: 1") {
			t.Errorf("unexpected result view:\n%s", view)
		}
	})

	t.Run("stop cancels the queue", func(t *testing.T) {
		m := NewModel(context.Background(), ModelOpts{
			Run: func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.QueueResult, error) {
				<-ctx.Done()
				return &tasks.QueueResult{Total: 2, Cancelled: 2}, nil
			},
		})
		cmd := m.startQueue()

		m.Update(keyPress("s"))
		if !strings.Contains(m.View(), "Stopping...") {
			t.Error("expected stopping heading")
		}

		next := drive(t, m, cmd)
		if next != nil {
			t.Error("stop alone should not quit")
		}
		if res, _ := m.Result(); res.Cancelled != 2 {
			t.Errorf("unexpected result %+v", res)
		}
		if !strings.Contains(m.View(), "Queue finished with problems") {
			t.Errorf("unexpected view:\n%s", m.View())
		}
	})

	t.Run("quit waits for the queue", func(t *testing.T) {
		m := NewModel(context.Background(), ModelOpts{
			Run: func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.QueueResult, error) {
				<-ctx.Done()
				return &tasks.QueueResult{}, nil
			},
		})
		cmd := m.startQueue()

		_, quit := m.Update(keyPress("q"))
		if quit != nil {
			t.Fatal("quit should wait for the queue to stop")
		}

		next := drive(t, m, cmd)
		if next == nil {
			t.Fatal("expected quit command after the queue stopped")
		}
		if _, ok := next().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})

	t.Run("run error", func(t *testing.T) {
		m := NewModel(context.Background(), ModelOpts{
			Run: func(context.Context, chan<- tasks.ProgressUpdate) (*tasks.QueueResult, error) {
				return nil, errors.New("engine unreachable")
			},
		})
		drive(t, m, m.startQueue())
		if !strings.Contains(m.View(), "Download failed: engine unreachable") {
			t.Errorf("unexpected view:\n%s", m.View())
		}
	})

	t.Run("notification is shown until removed", func(t *testing.T) {
		m := NewModel(context.Background(), ModelOpts{})
		m.Update(notificationMsg(models.Notification{ID: 1001, Title: "Downloading 3 tracks", Text: "1.0 / 2.0 MB (50%)"}))
		if !strings.Contains(m.View(), "Downloading 3 tracks") {
			t.Errorf("notification not rendered:\n%s", m.View())
		}

		m.Update(notificationRemovedMsg(7))
		if m.note == nil {
			t.Error("removing another id should keep the notification")
		}
		m.Update(notificationRemovedMsg(1001))
		if strings.Contains(m.View(), "Downloading 3 tracks") {
			t.Error("notification should be gone")
		}
	})

	t.Run("engine status is posted back", func(t *testing.T) {
		sender := &recordingSender{}
		caller := &syncCaller{res: bridge.Result{Method: bridge.OpGetProgress, Value: `{"bytes_received":10}`}}
		m := NewModel(context.Background(), ModelOpts{Caller: caller, Post: ResultPoster(sender)})

		m.Update(keyPress("e"))
		if caller.req.Method != bridge.OpGetProgress {
			t.Fatalf("expected getProgress call, got %q", caller.req.Method)
		}
		msgs := sender.all()
		if len(msgs) != 1 {
			t.Fatalf("expected the result to be posted, got %d messages", len(msgs))
		}

		m.Update(msgs[0])
		if !strings.Contains(m.View(), `Engine: {"bytes_received":10}`) {
			t.Errorf("engine status missing:\n%s", m.View())
		}
	})
}

func TestProgramNotifier(t *testing.T) {
	t.Run("tracks before attach", func(t *testing.T) {
		n := NewProgramNotifier(nil)
		if err := n.Show(models.Notification{ID: 1, Title: "A"}); err != nil {
			t.Fatal(err)
		}

		sender := &recordingSender{}
		n.Attach(sender)
		msgs := sender.all()
		if len(msgs) != 1 || msgs[0].(Msg).Kind() != MsgNotification {
			t.Fatalf("expected visible notification replayed, got %v", msgs)
		}
	})

	t.Run("remove", func(t *testing.T) {
		sender := &recordingSender{}
		n := NewProgramNotifier(sender)

		_ = n.Remove(1)
		if len(sender.all()) != 0 {
			t.Error("removing nothing should not send")
		}

		_ = n.Show(models.Notification{ID: 1})
		_ = n.Remove(2)
		if _, ok := n.Visible(); !ok {
			t.Error("removing another id should be a no-op")
		}
		_ = n.Remove(1)
		_ = n.Remove(1)
		if _, ok := n.Visible(); ok {
			t.Error("notification should be removed")
		}

		msgs := sender.all()
		if len(msgs) != 2 || msgs[1].(Msg).Kind() != MsgNotificationRemoved {
			t.Errorf("expected show then one remove, got %d messages", len(msgs))
		}
	})

	t.Run("driven by the coordinator", func(t *testing.T) {
		sender := &recordingSender{}
		notifier := NewProgramNotifier(sender)
		coord := lifecycle.NewCoordinator(lifecycle.Options{
			Lease:    &tu.FakeLease{},
			Notifier: notifier,
			Host:     &tu.FakeHost{},
			Logger:   shared.NewLogger(&bytes.Buffer{}),
		})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go coord.Run(ctx)

		_ = coord.Start(ctx, "Song A", "Artist", 1)
		tu.Eventually(t, time.Second, func() bool { _, ok := notifier.Visible(); return ok }, "shown")

		_ = coord.Stop(ctx)
		tu.Eventually(t, time.Second, func() bool { _, ok := notifier.Visible(); return !ok }, "removed")

		m := NewModel(ctx, ModelOpts{})
		for _, msg := range sender.all() {
			m.Update(msg)
		}
		if m.note != nil {
			t.Error("model should have no notification after stop")
		}
	})
}
