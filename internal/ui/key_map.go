package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the job view.
type keyMap struct {
	up    key.Binding
	down  key.Binding
	stop  key.Binding
	quit  key.Binding
	force key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		stop:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		quit:  key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		force: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "force quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.stop, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.stop, k.quit, k.force},
	}
}
