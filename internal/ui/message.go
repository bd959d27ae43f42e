package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/models"
	"github.com/desertthunder/dlx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgNotification
	MsgNotificationRemoved
	MsgCallResult
	MsgQueueComplete
)

// Kind reports which constructor built the message.
func (m Msg) Kind() MsgKind { return m.kind }

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// notificationMsg is the constructor for [MsgNotification]
func notificationMsg(n models.Notification) Msg {
	return Msg{kind: MsgNotification, data: n}
}

// notificationRemovedMsg is the constructor for [MsgNotificationRemoved]
func notificationRemovedMsg(id int) Msg {
	return Msg{kind: MsgNotificationRemoved, data: id}
}

// callResultMsg is the constructor for [MsgCallResult]
func callResultMsg(res bridge.Result) Msg {
	return Msg{kind: MsgCallResult, data: res}
}

type queueOutcome struct {
	result *tasks.QueueResult
	err    error
}

// queueCompleteMsg is the constructor for [MsgQueueComplete]
func queueCompleteMsg(result *tasks.QueueResult, err error) Msg {
	return Msg{kind: MsgQueueComplete, data: queueOutcome{result, err}}
}
