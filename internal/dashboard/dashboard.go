// Package dashboard runs the single event loop that polls the analyzer
// backend, feeds snapshots to the alert engine and dispatches the resulting
// effects to cues, Telegram, history storage, metrics and Redis.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/derivwatch/internal/alerting"
	"github.com/rewired-gh/derivwatch/internal/broadcast"
	"github.com/rewired-gh/derivwatch/internal/logger"
	"github.com/rewired-gh/derivwatch/internal/metrics"
	"github.com/rewired-gh/derivwatch/internal/models"
	"github.com/rewired-gh/derivwatch/internal/notifications"
	"github.com/rewired-gh/derivwatch/internal/storage"
)

// API is the analyzer backend.
type API interface {
	FetchData(ctx context.Context) (*models.DataResponse, error)
	FetchStatus(ctx context.Context) (*models.Status, error)
	FetchRecentTickets(ctx context.Context) ([]models.Ticket, error)
	Start(ctx context.Context) (*models.ActionResponse, error)
	Stop(ctx context.Context) (*models.ActionResponse, error)
	Reset(ctx context.Context) (*models.ActionResponse, error)
	SetFilter(ctx context.Context, f models.Filter) (*models.ActionResponse, error)
}

// Cues runs one repeating cue per alert key.
type Cues interface {
	Start(key string) bool
	Stop(key string) bool
	StopAll() int
	Len() int
}

// Notifier delivers system notifications and operational messages.
type Notifier interface {
	Notify(n models.SystemNotification) error
	SendError(err error) error
	SendRecovery(failureCount int) error
}

// Recorder persists alert history.
type Recorder interface {
	RecordTrigger(a models.ActiveAlert) (string, error)
	RecordClear(key string, at time.Time, reason string) error
	AddNotification(n models.Notification) error
	Rotate() error
}

// History reads back recorded alerts and panel entries, newest first.
type History interface {
	RecentAlertEvents(limit int) ([]storage.AlertEvent, error)
	RecentNotifications(limit int) ([]models.Notification, error)
}

// Broadcaster publishes alert transitions.
type Broadcaster interface {
	Publish(ctx context.Context, e broadcast.Event) error
}

// Config holds loop timing.
type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
}

// Deps are the collaborators of a Dashboard. Notifier, Recorder, History,
// Broadcaster and Freshness may be nil.
type Deps struct {
	API         API
	Engine      *alerting.Engine
	Center      *notifications.Center
	Cues        Cues
	Notifier    Notifier
	Recorder    Recorder
	History     History
	Broadcaster Broadcaster
	Freshness   *metrics.PollFreshness
	Now         func() time.Time
}

// Command is a user request handled on the loop goroutine. Reply, if set,
// receives the response text.
type Command struct {
	Name  string
	Args  string
	Reply func(text string)
}

// Dashboard owns the engine, the panel and the cached backend data. Every
// field below the channels is touched only by the loop goroutine.
type Dashboard struct {
	Deps
	config Config

	commands    chan Command
	permissions chan models.Permission

	data                models.MarketSnapshot
	updatedAt           time.Time
	status              *models.Status
	tickets             []models.Ticket
	consecutiveFailures int
}

func New(deps Deps, config Config) *Dashboard {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Second
	}
	return &Dashboard{
		Deps:        deps,
		config:      config,
		commands:    make(chan Command, 16),
		permissions: make(chan models.Permission, 1),
	}
}

// Submit queues cmd for the loop. It blocks until the loop accepts it or
// ctx is done.
func (d *Dashboard) Submit(ctx context.Context, cmd Command) error {
	select {
	case d.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GrantPermission delivers the outcome of the system-notification grant to
// the loop. Only the latest outcome is kept.
func (d *Dashboard) GrantPermission(p models.Permission) {
	for {
		select {
		case d.permissions <- p:
			return
		default:
		}
		select {
		case <-d.permissions:
		default:
		}
	}
}

// Run polls immediately, then on every tick until ctx is cancelled. All cues
// are stopped on return.
func (d *Dashboard) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(d.config.PollInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(d.config.CleanupInterval)
	defer cleanupTicker.Stop()
	defer func() {
		if n := d.Cues.StopAll(); n > 0 {
			logger.Info("Stopped %d cue loops on shutdown", n)
		}
		metrics.CueLoops.Set(0)
	}()

	logger.Info("Starting dashboard loop (poll: %v, cleanup: %v)", d.config.PollInterval, d.config.CleanupInterval)
	d.Cycle(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			logger.Info("Dashboard loop stopped")
			return ctx.Err()

		case <-pollTicker.C:
			d.Cycle(ctx) //nolint:errcheck

		case <-cleanupTicker.C:
			d.Cleanup()

		case p := <-d.permissions:
			d.setPermission(p)

		case cmd := <-d.commands:
			reply := d.Handle(ctx, cmd)
			if cmd.Reply != nil {
				go cmd.Reply(reply)
			}
		}
	}
}

// Cycle fetches data and status, then evaluates the new snapshot. A data
// fetch failure keeps the previous snapshot and skips evaluation.
func (d *Dashboard) Cycle(ctx context.Context) error {
	start := d.Now()
	defer func() { metrics.PollDuration.Observe(d.Now().Sub(start).Seconds()) }()

	resp, err := d.API.FetchData(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		d.pollFailed(err)
		return fmt.Errorf("failed to fetch data: %w", err)
	}
	d.data = resp.Data
	d.updatedAt = resp.UpdatedAt()
	d.pollSucceeded()

	d.refreshStatus(ctx)

	d.Apply(ctx, d.Engine.Advance(d.data))
	return nil
}

func (d *Dashboard) refreshStatus(ctx context.Context) {
	status, err := d.API.FetchStatus(ctx)
	if err != nil {
		logger.Warn("Failed to fetch status: %v", err)
		return
	}
	d.status = status
	if !status.IsRunning {
		return
	}
	tickets, err := d.API.FetchRecentTickets(ctx)
	if err != nil {
		logger.Warn("Failed to fetch recent tickets: %v", err)
		return
	}
	d.tickets = tickets
}

func (d *Dashboard) pollFailed(err error) {
	d.consecutiveFailures++
	metrics.PollsTotal.WithLabelValues("failed").Inc()
	logger.Error("Poll cycle failed (%d consecutive): %v", d.consecutiveFailures, err)

	// One entry at a time; a new one appears once the last has expired.
	if !d.Center.HasType(models.NotificationError) {
		d.addNotification(models.Notification{
			Type:      models.NotificationError,
			Title:     "Connection error",
			Message:   fmt.Sprintf("❌ Could not load data from the analyzer: %v", err),
			Closeable: true,
		})
	}
	if d.consecutiveFailures > 1 {
		return
	}
	if d.Notifier != nil && d.Engine.Permission() == models.PermissionGranted {
		if sendErr := d.Notifier.SendError(err); sendErr != nil {
			logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
		}
	}
}

func (d *Dashboard) pollSucceeded() {
	now := d.Now()
	metrics.PollsTotal.WithLabelValues("success").Inc()
	if d.Freshness != nil {
		d.Freshness.MarkSuccess(now)
	}
	if d.consecutiveFailures == 0 {
		return
	}
	logger.Info("Polling recovered after %d consecutive failures", d.consecutiveFailures)
	if d.Notifier != nil && d.Engine.Permission() == models.PermissionGranted {
		if err := d.Notifier.SendRecovery(d.consecutiveFailures); err != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", err)
		}
	}
	d.consecutiveFailures = 0
}

// Apply dispatches one cycle's effects. Clears are handled before triggers.
func (d *Dashboard) Apply(ctx context.Context, fx alerting.Effects) {
	now := d.Now()
	for _, a := range fx.Cleared {
		d.stopAlert(ctx, a, storage.ReasonCleared, now)
	}

	for _, a := range fx.Triggered {
		d.Cues.Start(a.Key)
		metrics.AlertsTriggeredTotal.WithLabelValues(a.Market, a.Group).Inc()
		if d.Recorder != nil {
			if _, err := d.Recorder.RecordTrigger(a); err != nil {
				logger.Warn("Failed to record trigger of %s: %v", a.Key, err)
			}
		}
		d.publish(ctx, broadcast.Event{Kind: broadcast.KindTriggered, Alert: a, At: now})
	}

	for _, n := range fx.Notifications {
		d.recordNotification(n)
	}

	for _, sn := range fx.System {
		d.notify(sn)
	}

	d.updateGauges()
}

func (d *Dashboard) stopAlert(ctx context.Context, a models.ActiveAlert, reason string, at time.Time) {
	d.Cues.Stop(a.Key)
	metrics.AlertsClearedTotal.WithLabelValues(reason).Inc()
	if d.Recorder != nil {
		if err := d.Recorder.RecordClear(a.Key, at, reason); err != nil {
			logger.Warn("Failed to record clear of %s: %v", a.Key, err)
		}
	}
	d.publish(ctx, broadcast.Event{Kind: broadcast.KindCleared, Alert: a, Reason: reason, At: at})
}

func (d *Dashboard) notify(sn models.SystemNotification) {
	if d.Notifier == nil {
		return
	}
	if err := d.Notifier.Notify(sn); err != nil {
		metrics.SystemNotificationsTotal.WithLabelValues("failed").Inc()
		logger.Warn("Failed to deliver system notification %q: %v", sn.Title, err)
		return
	}
	metrics.SystemNotificationsTotal.WithLabelValues("sent").Inc()
}

func (d *Dashboard) publish(ctx context.Context, e broadcast.Event) {
	if d.Broadcaster == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.Broadcaster.Publish(pubCtx, e); err != nil {
		metrics.BroadcastTotal.WithLabelValues("failed").Inc()
		logger.Warn("Failed to broadcast %s of %s: %v", e.Kind, e.Alert.Key, err)
		return
	}
	metrics.BroadcastTotal.WithLabelValues("success").Inc()
}

// addNotification puts a loop-originated entry on the panel.
func (d *Dashboard) addNotification(n models.Notification) models.Notification {
	n = d.Center.Add(n)
	d.recordNotification(n)
	return n
}

func (d *Dashboard) recordNotification(n models.Notification) {
	metrics.NotificationsTotal.WithLabelValues(string(n.Type)).Inc()
	if d.Recorder == nil {
		return
	}
	if err := d.Recorder.AddNotification(n); err != nil {
		logger.Warn("Failed to store notification %s: %v", n.ID, err)
	}
}

// Cleanup expires old panel entries and trims history.
func (d *Dashboard) Cleanup() {
	if n := d.Center.Cleanup(d.Now()); n > 0 {
		metrics.NotificationsExpiredTotal.Add(float64(n))
		logger.Debug("Expired %d notifications", n)
	}
	if d.Recorder != nil {
		if err := d.Recorder.Rotate(); err != nil {
			logger.Warn("Failed to rotate history: %v", err)
		}
	}
}

func (d *Dashboard) setPermission(p models.Permission) {
	d.Engine.SetPermission(p)
	logger.Info("System notification permission: %s", p)
	if p == models.PermissionGranted {
		d.notify(models.SystemNotification{
			Title: "Notifications enabled!",
			Body:  "You will receive alerts about entry opportunities and market analysis.",
			Icon:  "✅",
		})
	}
}

func (d *Dashboard) updateGauges() {
	metrics.ActiveAlerts.Set(float64(len(d.Engine.Active())))
	metrics.CueLoops.Set(float64(d.Cues.Len()))
}

// Snapshot returns the cached data and the backend timestamp it carried.
func (d *Dashboard) Snapshot() (models.MarketSnapshot, time.Time) {
	return d.data, d.updatedAt
}

// Tickets returns the cached recent tickets, oldest first.
func (d *Dashboard) Tickets() []models.Ticket {
	return d.tickets
}
