package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/models"
)

// Sender delivers messages to a running program. Implemented by [tea.Program].
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramNotifier is a notification surface that forwards the coordinator's notifications into the TUI.
//
// Messages sent before [ProgramNotifier.Attach] are dropped, but the visible notification is still tracked.
type ProgramNotifier struct {
	mu      sync.Mutex
	sender  Sender
	current *models.Notification
}

// NewProgramNotifier creates a notifier. sender may be nil and attached later.
func NewProgramNotifier(sender Sender) *ProgramNotifier {
	return &ProgramNotifier{sender: sender}
}

// Attach sets the program that receives notifications and replays the visible one.
func (p *ProgramNotifier) Attach(sender Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = sender
	if p.current != nil && sender != nil {
		sender.Send(notificationMsg(*p.current))
	}
}

func (p *ProgramNotifier) Show(n models.Notification) error {
	return p.set(n)
}

func (p *ProgramNotifier) Update(n models.Notification) error {
	return p.set(n)
}

func (p *ProgramNotifier) set(n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &n
	if p.sender != nil {
		p.sender.Send(notificationMsg(n))
	}
	return nil
}

// Remove hides the notification. Removing an absent notification, or one with another id, is a no-op.
func (p *ProgramNotifier) Remove(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.ID != id {
		return nil
	}
	p.current = nil
	if p.sender != nil {
		p.sender.Send(notificationRemovedMsg(id))
	}
	return nil
}

// Visible returns the notification on screen, if any.
func (p *ProgramNotifier) Visible() (models.Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return models.Notification{}, false
	}
	return *p.current, true
}

// ResultPoster delivers bridge results to the program's update loop, which is the TUI's primary context.
func ResultPoster(s Sender) bridge.Poster {
	return func(res bridge.Result) {
		s.Send(callResultMsg(res))
	}
}
