package notifications

import (
	"testing"
	"time"

	"github.com/rewired-gh/derivwatch/internal/models"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCenter() (*Center, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(0, clk.Now), clk
}

func TestCenter_AddAssignsIDAndTimestamp(t *testing.T) {
	c, clk := newTestCenter()
	n := c.Add(models.Notification{Type: models.NotificationInfo, Message: "hello"})
	if n.ID == "" {
		t.Error("expected id to be assigned")
	}
	if !n.Timestamp.Equal(clk.Now()) {
		t.Errorf("timestamp = %v, want %v", n.Timestamp, clk.Now())
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCenter_HasOpen(t *testing.T) {
	c, _ := newTestCenter()
	c.Add(models.Notification{Type: models.NotificationOpportunity, Market: "1HZ10V"})

	if !c.HasOpen(models.NotificationOpportunity, "1HZ10V") {
		t.Error("expected open opportunity for 1HZ10V")
	}
	if c.HasOpen(models.NotificationWarning, "1HZ10V") {
		t.Error("warning should not match opportunity entry")
	}
	if c.HasOpen(models.NotificationOpportunity, "1HZ25V") {
		t.Error("other market should not match")
	}
}

func TestCenter_HasType(t *testing.T) {
	c, _ := newTestCenter()
	if c.HasType(models.NotificationError) {
		t.Error("empty panel has no error entry")
	}
	c.Add(models.Notification{Type: models.NotificationError, Message: "down"})
	if !c.HasType(models.NotificationError) {
		t.Error("expected open error entry")
	}
	if c.HasType(models.NotificationAlert) {
		t.Error("unexpected alert entry")
	}
}

func TestCenter_Dismiss(t *testing.T) {
	c, _ := newTestCenter()
	a := c.Add(models.Notification{Type: models.NotificationInfo})
	b := c.Add(models.Notification{Type: models.NotificationError})

	if _, ok := c.Dismiss(a.ID); !ok {
		t.Fatal("Dismiss returned false for existing id")
	}
	if _, ok := c.Dismiss(a.ID); ok {
		t.Error("second Dismiss should report missing")
	}
	list := c.List()
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("remaining = %+v", list)
	}
}

func TestCenter_DismissAlert(t *testing.T) {
	c, _ := newTestCenter()
	c.Add(models.Notification{Type: models.NotificationAlert, AlertKey: "1HZ10V-7"})
	c.Add(models.Notification{Type: models.NotificationAlert, AlertKey: "1HZ10V-8"})
	c.Add(models.Notification{Type: models.NotificationInfo})

	if n := c.DismissAlert("1HZ10V-7"); n != 1 {
		t.Errorf("DismissAlert removed %d, want 1", n)
	}
	if n := c.DismissAlert(""); n != 0 {
		t.Errorf("empty key should remove nothing, removed %d", n)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCenter_CleanupExpiresAtTTL(t *testing.T) {
	c, clk := newTestCenter()
	c.Add(models.Notification{Type: models.NotificationInfo, Message: "old"})
	clk.Advance(10 * time.Second)
	c.Add(models.Notification{Type: models.NotificationInfo, Message: "young"})

	clk.Advance(19 * time.Second)
	if n := c.Cleanup(clk.Now()); n != 0 {
		t.Fatalf("at 29s nothing should expire, removed %d", n)
	}

	clk.Advance(time.Second)
	if n := c.Cleanup(clk.Now()); n != 1 {
		t.Fatalf("at 30s the first entry should expire, removed %d", n)
	}
	list := c.List()
	if len(list) != 1 || list[0].Message != "young" {
		t.Errorf("remaining = %+v", list)
	}

	clk.Advance(time.Hour)
	c.Cleanup(clk.Now())
	for _, n := range c.List() {
		if n.Age(clk.Now()) >= DefaultTTL {
			t.Errorf("entry %q survived cleanup", n.Message)
		}
	}
}

func TestCenter_BySection(t *testing.T) {
	c, _ := newTestCenter()
	c.Add(models.Notification{Type: models.NotificationAlert})
	c.Add(models.Notification{Type: models.NotificationOpportunity})
	c.Add(models.Notification{Type: models.NotificationWarning})
	c.Add(models.Notification{Type: models.NotificationSuccess})
	c.Add(models.Notification{Type: models.NotificationError})

	s := c.BySection()
	if len(s.Alerts) != 1 || len(s.Opportunities) != 2 || len(s.Other) != 2 {
		t.Errorf("sections = %d/%d/%d", len(s.Alerts), len(s.Opportunities), len(s.Other))
	}
}
