package model

import (
	"time"
)

// ReminderState is the position of a notification in its reminder lifecycle.
type ReminderState string

const (
	StateDisabled ReminderState = "disabled" // reminder_hours <= 0, terminal
	StatePending  ReminderState = "pending"  // enabled, not due yet
	StateDue      ReminderState = "due"      // enabled, due, not sent
	StateSent     ReminderState = "sent"     // terminal
)

// Notification represents a shipment notification created by an admin.
type Notification struct {
	ID             string     `json:"id"`                         // opaque unique identifier
	CustomerName   string     `json:"customer_name"`              // customer the shipment belongs to
	PhoneNumber    string     `json:"phone_number"`               // WhatsApp recipient
	ImageURL       string     `json:"image_url,omitempty"`        // optional shipment image
	CreatedAt      time.Time  `json:"created_at"`                 // set once at creation
	ReminderHours  float64    `json:"reminder_hours"`             // delay in the configured reminder unit, 0 disables
	ReminderSent   bool       `json:"reminder_sent"`              // flips to true exactly once
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"` // set together with ReminderSent
}

// ReminderEnabled reports whether a reminder is configured at all.
func (n Notification) ReminderEnabled() bool {
	return n.ReminderHours > 0
}

// DueAt returns the moment the reminder becomes due. unit is the length of
// one reminder_hours step (time.Hour in production).
func (n Notification) DueAt(unit time.Duration) time.Time {
	return n.CreatedAt.Add(time.Duration(n.ReminderHours * float64(unit)))
}

// IsDue reports whether a reminder must be sent at now.
func (n Notification) IsDue(now time.Time, unit time.Duration) bool {
	return n.ReminderState(now, unit) == StateDue
}

// ReminderState computes the lifecycle state at now.
func (n Notification) ReminderState(now time.Time, unit time.Duration) ReminderState {
	switch {
	case !n.ReminderEnabled():
		return StateDisabled
	case n.ReminderSent:
		return StateSent
	case now.Before(n.DueAt(unit)):
		return StatePending
	default:
		return StateDue
	}
}

// NotificationView is a notification together with its computed reminder state.
type NotificationView struct {
	Notification
	State ReminderState `json:"reminder_state"`
	DueAt *time.Time    `json:"reminder_due_at,omitempty"` // nil when disabled
}

// View computes the lifecycle fields at now.
func (n Notification) View(now time.Time, unit time.Duration) NotificationView {
	v := NotificationView{
		Notification: n,
		State:        n.ReminderState(now, unit),
	}
	if n.ReminderEnabled() {
		due := n.DueAt(unit)
		v.DueAt = &due
	}

	return v
}
