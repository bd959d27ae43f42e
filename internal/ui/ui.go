package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/lifecycle"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DownloadView ViewState = iota
	ResultView
)

// RunFunc runs the download queue, sending updates on progress. It must not close progress.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.QueueResult, error)

// Caller issues bridge calls whose results are posted back. Implemented by [bridge.Dispatcher].
type Caller interface {
	Call(ctx context.Context, req bridge.Request, post bridge.Poster)
}

// ModelOpts configures a [Model].
type ModelOpts struct {
	Run    RunFunc
	Caller Caller       // optional; enables the engine status key
	Post   bridge.Poster // where Caller results go, usually [ResultPoster]
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	view     ViewState
	run      RunFunc
	caller   Caller
	post     bridge.Poster
	width    int
	height   int
	progress chan tasks.ProgressUpdate
	done     chan queueOutcome
	update   tasks.ProgressUpdate
	log      []string
	note     *models.Notification
	engine   string
	stopping bool
	quitting bool
	result   *tasks.QueueResult
	err      error
	items    list.Model
	spinner  spinner.Model
	bar      progress.Model
	help     help.Model
	keys     keyMap
}

const logLines = 6

// NewModel creates a new TUI model. Cancelling ctx stops the queue.
func NewModel(ctx context.Context, opts ModelOpts) *Model {
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		view:    DownloadView,
		width:   80,
		height:  24,
		run:     opts.Run,
		caller:  opts.Caller,
		post:    opts.Post,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the queue result once the run has finished.
func (m *Model) Result() (*tasks.QueueResult, error) {
	return m.result, m.err
}

// Init starts the queue.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.startQueue(), m.spinner.Tick)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == ResultView {
			m.items.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		if m.view != DownloadView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.items, cmd = m.items.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		m.update = update
		if update.Phase != tasks.Download {
			m.appendLog(update.Message)
		}
		return m, m.waitForProgress()

	case MsgNotification:
		n := msg.data.(models.Notification)
		m.note = &n
		return m, nil

	case MsgNotificationRemoved:
		if m.note != nil && m.note.ID == msg.data.(int) {
			m.note = nil
		}
		return m, nil

	case MsgCallResult:
		res := msg.data.(bridge.Result)
		if res.Err != nil {
			m.engine = styles.err.Render(res.Err.Error())
		} else {
			m.engine = fmt.Sprint(res.Value)
		}
		return m, nil

	case MsgQueueComplete:
		outcome := msg.data.(queueOutcome)
		m.result = outcome.result
		m.err = outcome.err
		m.view = ResultView
		if m.result != nil {
			m.items = list.New(resultItems(m.result), list.NewDefaultDelegate(), 0, 0)
			m.items.Title = "Downloads"
			m.items.SetShowHelp(false)
			m.items.SetSize(m.width-4, m.height-8)
		}
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.force):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.quit):
		if m.view == ResultView {
			return m, tea.Quit
		}
		// wait for the queue to stop the coordinator before exiting
		m.quitting = true
		m.stopping = true
		m.cancel()
		return m, nil

	case key.Matches(msg, m.keys.stop):
		if m.view == DownloadView && !m.stopping {
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case msg.String() == "e":
		if m.view == DownloadView && m.caller != nil && m.post != nil {
			m.caller.Call(m.ctx, bridge.Request{Method: bridge.OpGetProgress}, m.post)
		}
		return m, nil
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.items, cmd = m.items.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) appendLog(line string) {
	if line == "" {
		return
	}
	m.log = append(m.log, line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

// startQueue runs the queue on its own goroutine. Updates arrive through progress; the outcome arrives on done
// after progress is closed, so the model never reads state written by the runner.
func (m *Model) startQueue() tea.Cmd {
	m.progress = make(chan tasks.ProgressUpdate, 64)
	m.done = make(chan queueOutcome, 1)

	go func() {
		result, err := m.run(m.ctx, m.progress)
		close(m.progress)
		m.done <- queueOutcome{result, err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progress, m.done
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			outcome := <-done
			return queueCompleteMsg(outcome.result, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DownloadView:
		return m.renderDownload()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderDownload() string {
	var b strings.Builder

	heading := "Downloading"
	if m.stopping {
		heading = "Stopping..."
	}
	b.WriteString(styles.title.Render(heading))
	b.WriteString("\n")

	if m.update.Total > 0 {
		fmt.Fprintf(&b, "%s Item %d of %d\n", m.spinner.View(), max(m.update.Step, 1), m.update.Total)
	} else {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), "Preparing...")
	}

	if pct, ok := m.update.Bytes.Percent(); ok {
		fmt.Fprintf(&b, "%s %s\n", m.bar.ViewAs(float64(pct)/100), lifecycle.FormatProgress(m.update.Bytes))
	}
	if m.update.Phase == tasks.Download {
		b.WriteString(m.update.Message + "\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n" + styles.muted.Render(strings.Join(m.log, "\n")) + "\n")
	}

	if m.note != nil {
		b.WriteString("\n" + styles.box.Render(m.note.Title+"\n"+m.note.Text) + "\n")
	}

	if m.engine != "" {
		b.WriteString("\nEngine: " + m.engine + "\n")
	}

	helpKeys := []key.Binding{m.keys.stop, m.keys.quit}
	if m.caller != nil {
		helpKeys = append(helpKeys, key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "engine status")))
	}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Download failed: %v\n\nPress q to quit", m.err))
	}
	if m.result == nil {
		return styles.err.Render("No result available\n\nPress q to quit")
	}

	title := styles.ok.Render("✓ Queue finished")
	if m.result.Failed > 0 || m.result.Cancelled > 0 {
		title = styles.warn.Render("Queue finished with problems")
	}
	info := fmt.Sprintf("\nDownloaded: %d  Skipped: %d  Failed: %d  Cancelled: %d",
		m.result.Completed, m.result.Skipped, m.result.Failed, m.result.Cancelled)

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.items.View(), helpView)
}
