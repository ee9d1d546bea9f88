// Package notifications holds the in-process notification panel.
package notifications

import (
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/derivwatch/internal/models"
)

// DefaultTTL is how long an entry survives before a cleanup tick drops it.
const DefaultTTL = 30 * time.Second

// Center is an ordered list of panel entries. It is owned by the dashboard
// loop and is not safe for concurrent use.
type Center struct {
	entries []models.Notification
	ttl     time.Duration
	now     func() time.Time
}

// New creates an empty panel. A non-positive ttl selects DefaultTTL and a nil
// clock selects time.Now.
func New(ttl time.Duration, now func() time.Time) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Center{ttl: ttl, now: now}
}

// Add appends n, assigning an id and timestamp when absent, and returns the stored entry.
func (c *Center) Add(n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = c.now()
	}
	c.entries = append(c.entries, n)
	return n
}

// HasOpen reports whether an entry of type typ referencing market is still on the panel.
func (c *Center) HasOpen(typ models.NotificationType, market string) bool {
	for _, n := range c.entries {
		if n.Type == typ && n.Market == market {
			return true
		}
	}
	return false
}

// HasType reports whether any entry of type typ is still on the panel.
func (c *Center) HasType(typ models.NotificationType) bool {
	for _, n := range c.entries {
		if n.Type == typ {
			return true
		}
	}
	return false
}

// Dismiss removes the entry with the given id.
func (c *Center) Dismiss(id string) (models.Notification, bool) {
	for i, n := range c.entries {
		if n.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return n, true
		}
	}
	return models.Notification{}, false
}

// DismissAlert removes every entry carrying alertKey and returns how many were dropped.
func (c *Center) DismissAlert(alertKey string) int {
	return c.removeWhere(func(n models.Notification) bool {
		return n.AlertKey != "" && n.AlertKey == alertKey
	})
}

// Cleanup drops entries whose age has reached the TTL at now.
func (c *Center) Cleanup(now time.Time) int {
	return c.removeWhere(func(n models.Notification) bool {
		return n.Age(now) >= c.ttl
	})
}

// List returns a copy of the entries in insertion order.
func (c *Center) List() []models.Notification {
	return append([]models.Notification(nil), c.entries...)
}

// Len returns the number of entries.
func (c *Center) Len() int {
	return len(c.entries)
}

// Sections splits the panel the way it is displayed: alerts, then
// opportunities and warnings, then everything else.
type Sections struct {
	Alerts        []models.Notification
	Opportunities []models.Notification
	Other         []models.Notification
}

// BySection groups the entries, preserving order within each section.
func (c *Center) BySection() Sections {
	var s Sections
	for _, n := range c.entries {
		switch n.Type {
		case models.NotificationAlert:
			s.Alerts = append(s.Alerts, n)
		case models.NotificationOpportunity, models.NotificationWarning:
			s.Opportunities = append(s.Opportunities, n)
		default:
			s.Other = append(s.Other, n)
		}
	}
	return s
}

func (c *Center) removeWhere(drop func(models.Notification) bool) int {
	kept := c.entries[:0]
	removed := 0
	for _, n := range c.entries {
		if drop(n) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = models.Notification{}
	}
	c.entries = kept
	return removed
}
