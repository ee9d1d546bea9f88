package models

import (
	"time"
)

// NotificationType classifies a panel entry.
type NotificationType string

const (
	NotificationSuccess     NotificationType = "success"
	NotificationError       NotificationType = "error"
	NotificationInfo        NotificationType = "info"
	NotificationOpportunity NotificationType = "opportunity"
	NotificationWarning     NotificationType = "warning"
	NotificationAlert       NotificationType = "alert"
)

// Notification is a transient, process-local panel entry.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Closeable bool             `json:"closeable"`
	Market    string           `json:"market,omitempty"`
	AlertKey  string           `json:"alert_key,omitempty"`
}

// Age returns how long the entry has existed at now.
func (n Notification) Age(now time.Time) time.Duration {
	return now.Sub(n.Timestamp)
}

// SystemNotification is delivered outside the process (Telegram).
type SystemNotification struct {
	Title string
	Body  string
	Icon  string
}

// Permission mirrors the three states of a system-notification grant.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ActiveAlert is a (market, group) pair currently past its loss-streak threshold.
// LossStreak and Threshold are captured once, at trigger time.
type ActiveAlert struct {
	Key         string    `json:"key"`
	Market      string    `json:"market"`
	Group       string    `json:"group"`
	LossStreak  int       `json:"loss_streak"`
	Threshold   int       `json:"threshold"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// AlertKey builds the composite key of a (market, group) pair.
func AlertKey(market, group string) string {
	return market + "-" + group
}
