package models

import "time"

// Label describes the item currently being worked on.
type Label struct {
	Primary   string `json:"primary"`   // e.g. track name
	Secondary string `json:"secondary"` // e.g. artist name
}

// Progress is cumulative bytes transferred out of bytes expected. Total == 0 means unknown size.
type Progress struct {
	Done  int64 `json:"done"`
	Total int64 `json:"total"`
}

// Percent returns floor(Done*100/Total), clamped to 0..100, and false when Total is unknown.
func (p Progress) Percent() (int, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	pct := p.Done * 100 / p.Total
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return int(pct), true
}

// JobState is the coordinator's view of the background job.
//
// Running == false implies no lease is held and no notification is visible.
type JobState struct {
	Running    bool      `json:"running"`
	Label      Label     `json:"label"`
	QueueDepth int       `json:"queue_depth"`
	Progress   Progress  `json:"progress"`
	SessionID  string    `json:"session_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

// Notification is the rendered form of a [JobState], handed to the notification surface.
type Notification struct {
	ID            int    `json:"id"`
	Channel       string `json:"channel"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	Percent       int    `json:"percent"` // 0..100, meaningful only when Indeterminate is false
	Indeterminate bool   `json:"indeterminate"`
	Ongoing       bool   `json:"ongoing"`
	OnlyAlertOnce bool   `json:"only_alert_once"`
}
