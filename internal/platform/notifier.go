package platform

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/dlx/internal/models"
)

// Channel describes the notification channel the job posts to.
type Channel struct {
	ID          string
	Name        string
	Description string
	ShowBadge   bool
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	channelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true)
)

// TerminalNotifier draws the job notification as a single status line on a terminal.
//
// Each Show or Update replaces the previous line in place. Indeterminate progress cycles through spinner frames,
// and determinate progress is drawn with a progress bar.
type TerminalNotifier struct {
	mu      sync.Mutex
	out     io.Writer
	channel Channel
	bar     progress.Model
	frames  []string
	frame   int
	current *models.Notification
	drawn   bool
}

// NewTerminalNotifier writes to out, or stderr when out is nil.
func NewTerminalNotifier(out io.Writer, channel Channel) *TerminalNotifier {
	if out == nil {
		out = os.Stderr
	}
	return &TerminalNotifier{
		out:     out,
		channel: channel,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		frames:  spinner.Dot.Frames,
	}
}

func (t *TerminalNotifier) Show(n models.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draw(n)
}

func (t *TerminalNotifier) Update(n models.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draw(n)
}

// Remove clears the status line. Removing when nothing is shown, or with another id, is a no-op.
func (t *TerminalNotifier) Remove(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || t.current.ID != id {
		return nil
	}
	t.current = nil
	t.drawn = false
	_, err := io.WriteString(t.out, "\r\033[2K")
	return err
}

// Current returns the notification on screen, if any.
func (t *TerminalNotifier) Current() (models.Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return models.Notification{}, false
	}
	return *t.current, true
}

func (t *TerminalNotifier) draw(n models.Notification) error {
	t.current = &n

	prefix := "\r\033[2K"
	if !t.drawn {
		prefix = ""
	}
	t.drawn = true

	_, err := fmt.Fprint(t.out, prefix+t.line(n))
	return err
}

// line renders n without any cursor control. Callers hold t.mu.
func (t *TerminalNotifier) line(n models.Notification) string {
	var indicator string
	if n.Indeterminate {
		indicator = t.frames[t.frame%len(t.frames)]
		t.frame++
	} else {
		indicator = t.bar.ViewAs(float64(n.Percent) / 100)
	}

	parts := []string{indicator, titleStyle.Render(n.Title)}
	if n.Text != "" {
		parts = append(parts, textStyle.Render(n.Text))
	}
	if t.channel.Name != "" {
		parts = append(parts, channelStyle.Render("["+t.channel.Name+"]"))
	}
	return strings.Join(parts, " ")
}
