package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/derivwatch/internal/analyzer"
	"github.com/rewired-gh/derivwatch/internal/logger"
	"github.com/rewired-gh/derivwatch/internal/models"
	"github.com/rewired-gh/derivwatch/internal/report"
	"github.com/rewired-gh/derivwatch/internal/storage"
)

// Handle executes cmd on the loop goroutine and returns the reply text.
func (d *Dashboard) Handle(ctx context.Context, cmd Command) string {
	logger.Debug("Handling command %q (args: %q)", cmd.Name, cmd.Args)

	switch strings.ToLower(cmd.Name) {
	case "start":
		return d.startCollection(ctx)
	case "stop":
		return d.stopCollection(ctx)
	case "reset":
		return d.resetData(ctx)
	case "filter":
		return d.updateFilter(ctx, cmd.Args)
	case "alerts":
		return d.alerts(ctx, cmd.Args)
	case "dismiss":
		return d.dismiss(ctx, cmd.Args)
	case "status":
		return d.statusText()
	case "summary":
		return report.String(d.data)
	case "groups":
		return d.groupsText(cmd.Args)
	case "history":
		return d.historyText(cmd.Args)
	case "panel":
		return d.panelText()
	case "tickets":
		return d.ticketsText()
	case "ping":
		return "Pong"
	default:
		return fmt.Sprintf("Unknown command %q. Try: start, stop, reset, filter, alerts, dismiss, status, summary, groups, history, panel, tickets.", cmd.Name)
	}
}

func (d *Dashboard) startCollection(ctx context.Context) string {
	resp, err := d.API.Start(ctx)
	switch {
	case err == nil:
		if d.status != nil {
			d.status.IsRunning = true
		}
		d.addNotification(models.Notification{
			Type:      models.NotificationSuccess,
			Title:     "Collection started",
			Message:   "✅ Collection started. The system is now monitoring the markets in real time.",
			Closeable: true,
		})
		return "Collection started"
	case errors.Is(err, analyzer.ErrRejected):
		d.addNotification(models.Notification{
			Type:      models.NotificationError,
			Title:     "Failed to start",
			Message:   fmt.Sprintf("❌ Failed to start: %s. Check the connection and try again.", resp.Reason()),
			Closeable: true,
		})
	default:
		d.addNotification(models.Notification{
			Type:      models.NotificationError,
			Title:     "Connection error",
			Message:   "❌ Could not start data collection. Check the connection and the server status.",
			Closeable: true,
		})
	}
	logger.Error("Start collection failed: %v", err)
	return fmt.Sprintf("Start failed: %v", err)
}

func (d *Dashboard) stopCollection(ctx context.Context) string {
	resp, err := d.API.Stop(ctx)
	switch {
	case err == nil:
		if d.status != nil {
			d.status.IsRunning = false
		}
		d.addNotification(models.Notification{
			Type:      models.NotificationInfo,
			Title:     "Collection paused",
			Message:   "⏸️ Collection paused. Data already collected remains available.",
			Closeable: true,
		})
		return "Collection paused"
	case errors.Is(err, analyzer.ErrRejected):
		d.addNotification(models.Notification{
			Type:      models.NotificationError,
			Title:     "Failed to stop",
			Message:   fmt.Sprintf("❌ Failed to stop: %s. Try again.", resp.Reason()),
			Closeable: true,
		})
	default:
		d.addNotification(models.Notification{
			Type:      models.NotificationError,
			Title:     "Connection error",
			Message:   "❌ Could not stop data collection. Check the connection.",
			Closeable: true,
		})
	}
	logger.Error("Stop collection failed: %v", err)
	return fmt.Sprintf("Stop failed: %v", err)
}

func (d *Dashboard) resetData(ctx context.Context) string {
	_, err := d.API.Reset(ctx)
	if err != nil {
		d.addNotification(models.Notification{
			Type:      models.NotificationError,
			Title:     "Reset failed",
			Message:   "❌ Could not clear the data. Check the connection and try again.",
			Closeable: true,
		})
		logger.Error("Reset failed: %v", err)
		return fmt.Sprintf("Reset failed: %v", err)
	}
	d.data = nil
	d.tickets = nil
	d.addNotification(models.Notification{
		Type:      models.NotificationInfo,
		Title:     "Data reset",
		Message:   "🔄 All historical data was cleared. Start a new collection to begin with fresh data.",
		Closeable: true,
	})
	return "Data reset"
}

func (d *Dashboard) updateFilter(ctx context.Context, arg string) string {
	f, err := models.ParseFilter(strings.TrimSpace(arg))
	if err != nil {
		return fmt.Sprintf("Invalid filter: %v", err)
	}
	if _, err := d.API.SetFilter(ctx, f); err != nil {
		logger.Error("Failed to update filter to %s: %v", f, err)
		return fmt.Sprintf("Filter update failed: %v", err)
	}
	if d.status != nil {
		d.status.DataFilter = f
	}
	logger.Info("Data filter set to %s", f)
	if err := d.Cycle(ctx); err != nil {
		return fmt.Sprintf("Filter set to %s, refresh failed: %v", f, err)
	}
	return fmt.Sprintf("Filter set to %s", f)
}

func (d *Dashboard) alerts(ctx context.Context, arg string) string {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on":
		d.Engine.Enable()
		return "Alerts enabled"
	case "off":
		stopped := d.Engine.Disable()
		now := d.Now()
		for _, a := range stopped {
			d.stopAlert(ctx, a, storage.ReasonDisabled, now)
		}
		// Catch any loop started outside the engine's view.
		d.Cues.StopAll()
		d.updateGauges()
		return fmt.Sprintf("Alerts disabled, %d stopped", len(stopped))
	case "":
		return d.activeText()
	default:
		return "Usage: alerts on|off"
	}
}

// dismiss accepts either an alert key or a panel entry id. Closing an entry
// that belongs to an alert dismisses the whole alert.
func (d *Dashboard) dismiss(ctx context.Context, arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "Usage: dismiss <alert key|notification id>"
	}

	key := arg
	if !d.Engine.IsActive(key) {
		n, ok := d.Center.Dismiss(arg)
		if !ok {
			// A cleared alert keeps its entries until they expire.
			if removed := d.Center.DismissAlert(arg); removed > 0 {
				d.Cues.Stop(arg)
				return fmt.Sprintf("Alert %s dismissed", arg)
			}
			return fmt.Sprintf("Nothing to dismiss for %q", arg)
		}
		if n.AlertKey == "" {
			return "Notification dismissed"
		}
		key = n.AlertKey
	}

	a, wasActive := d.Engine.DismissAlert(key)
	if wasActive {
		d.stopAlert(ctx, a, storage.ReasonDismissed, d.Now())
	} else {
		d.Cues.Stop(key)
	}
	d.updateGauges()
	return fmt.Sprintf("Alert %s dismissed", key)
}

func (d *Dashboard) statusText() string {
	var b strings.Builder
	if d.status == nil {
		b.WriteString("Backend status unknown\n")
	} else {
		state := "stopped"
		if d.status.IsRunning {
			state = "running"
		}
		fmt.Fprintf(&b, "Collection: %s\n", state)
		fmt.Fprintf(&b, "Filter: %s\n", d.status.DataFilter)
		fmt.Fprintf(&b, "Total tickets: %d\n", d.status.TotalTickets)

		markets := make([]string, 0, len(d.status.Connections))
		for m := range d.status.Connections {
			markets = append(markets, m)
		}
		for _, m := range models.OrderMarkets(markets) {
			link := "down"
			if d.status.Connections[m] {
				link = "up"
			}
			fmt.Fprintf(&b, "  %s: %s\n", m, link)
		}
	}
	if !d.updatedAt.IsZero() {
		fmt.Fprintf(&b, "Last update: %s\n", d.updatedAt.Format("15:04:05"))
	}
	enabled := "off"
	if d.Engine.Enabled() {
		enabled = "on"
	}
	fmt.Fprintf(&b, "Alerts: %s (%d active)\n", enabled, len(d.Engine.Active()))
	fmt.Fprintf(&b, "System notifications: %s", d.Engine.Permission())
	return b.String()
}

func (d *Dashboard) groupsText(arg string) string {
	market := strings.ToUpper(strings.TrimSpace(arg))
	if market == "" {
		return "Usage: groups <market>"
	}
	var b strings.Builder
	_ = report.RenderGroups(&b, market, d.data.Market(market))
	return strings.TrimRight(b.String(), "\n")
}

const defaultHistoryLimit = 10

func (d *Dashboard) historyText(arg string) string {
	if d.History == nil {
		return "History is not available"
	}
	limit := defaultHistoryLimit
	if arg = strings.TrimSpace(arg); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return "Usage: history [count]"
		}
		limit = n
	}

	events, err := d.History.RecentAlertEvents(limit)
	if err != nil {
		logger.Error("Failed to read alert history: %v", err)
		return fmt.Sprintf("History failed: %v", err)
	}
	notes, err := d.History.RecentNotifications(limit)
	if err != nil {
		logger.Error("Failed to read notification history: %v", err)
		return fmt.Sprintf("History failed: %v", err)
	}
	if len(events) == 0 && len(notes) == 0 {
		return "No history yet"
	}

	var b strings.Builder
	if len(events) > 0 {
		b.WriteString("Alerts:\n")
		for _, e := range events {
			state := "open"
			if !e.Open() {
				state = fmt.Sprintf("%s at %s", e.Reason, e.ClearedAt.Format("15:04:05"))
			}
			fmt.Fprintf(&b, "  %s %s: %d losses (limit %d), %s\n",
				e.TriggeredAt.Format("15:04:05"), e.Key, e.LossStreak, e.Threshold, state)
		}
	}
	if len(notes) > 0 {
		b.WriteString("Notifications:\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "  %s [%s] %s\n", n.Timestamp.Format("15:04:05"), n.Type, n.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dashboard) activeText() string {
	active := d.Engine.Active()
	if len(active) == 0 {
		return "No active alerts"
	}
	var b strings.Builder
	for _, a := range active {
		fmt.Fprintf(&b, "%s: %d losses (limit %d) since %s\n",
			a.Key, a.LossStreak, a.Threshold, a.TriggeredAt.Format("15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dashboard) panelText() string {
	sections := d.Center.BySection()
	var b strings.Builder
	write := func(title string, entries []models.Notification) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, n := range entries {
			fmt.Fprintf(&b, "  [%s] %s\n", n.ID, n.Message)
		}
	}
	write("Alerts", sections.Alerts)
	write("Opportunities", sections.Opportunities)
	write("Other", sections.Other)
	if b.Len() == 0 {
		return "No notifications"
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dashboard) ticketsText() string {
	if len(d.tickets) == 0 {
		return "No recent tickets"
	}
	tickets := append([]models.Ticket(nil), d.tickets...)
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].Timestamp > tickets[j].Timestamp })
	var b strings.Builder
	for _, t := range tickets {
		fmt.Fprintf(&b, "%s %s tick %v digit %d\n", t.Time().Format("15:04:05"), t.Market, t.Tick, t.Digit)
	}
	return strings.TrimRight(b.String(), "\n")
}
