// Package alerting evaluates loss-streak rules and win-rate extremes against
// backend snapshots and tracks which (market, group) alerts are active.
package alerting

import (
	"fmt"
	"sort"
	"time"

	"github.com/rewired-gh/derivwatch/internal/logger"
	"github.com/rewired-gh/derivwatch/internal/models"
	"github.com/rewired-gh/derivwatch/internal/notifications"
)

type Config struct {
	Rules           []Rule
	SystemGroups    []string
	OpportunityRate float64
	WarningRate     float64
	MinEntries      int
}

func DefaultConfig() Config {
	return Config{
		Rules:           DefaultRules,
		SystemGroups:    DefaultSystemGroups,
		OpportunityRate: 70,
		WarningRate:     30,
		MinEntries:      10,
	}
}

// Effects is everything one Advance call changed. The caller dispatches it:
// Triggered alerts need a cue started, Cleared alerts need theirs stopped, and
// System entries go to the external notifier. Notifications are already on
// the panel and are reported for persistence.
type Effects struct {
	Triggered     []models.ActiveAlert
	Cleared       []models.ActiveAlert
	Notifications []models.Notification
	System        []models.SystemNotification
}

// Empty reports whether the cycle changed nothing.
func (e Effects) Empty() bool {
	return len(e.Triggered) == 0 && len(e.Cleared) == 0 &&
		len(e.Notifications) == 0 && len(e.System) == 0
}

// Engine is owned by a single goroutine; it performs no locking.
type Engine struct {
	config       Config
	center       *notifications.Center
	active       map[string]models.ActiveAlert
	systemGroups map[string]bool
	enabled      bool
	permission   models.Permission
	now          func() time.Time
}

func New(center *notifications.Center, config Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	groups := make(map[string]bool, len(config.SystemGroups))
	for _, g := range config.SystemGroups {
		groups[g] = true
	}
	return &Engine{
		config:       config,
		center:       center,
		active:       make(map[string]models.ActiveAlert),
		systemGroups: groups,
		enabled:      true,
		permission:   models.PermissionDefault,
		now:          now,
	}
}

// Advance evaluates one snapshot. A nil snapshot skips the cycle entirely.
func (e *Engine) Advance(snap models.MarketSnapshot) Effects {
	var fx Effects
	if snap == nil {
		logger.Debug("No snapshot this cycle, skipping evaluation")
		return fx
	}

	if e.enabled {
		e.evaluateStreaks(snap, &fx)
	}
	e.evaluateExtremes(snap, &fx)

	if !fx.Empty() {
		logger.Debug("Cycle effects: %d triggered, %d cleared, %d notifications, %d system",
			len(fx.Triggered), len(fx.Cleared), len(fx.Notifications), len(fx.System))
	}
	return fx
}

func (e *Engine) evaluateStreaks(snap models.MarketSnapshot, fx *Effects) {
	var triggered []models.ActiveAlert

	for _, market := range snap.Markets() {
		stats := snap.Market(market)
		for _, rule := range e.config.Rules {
			lossStreak := stats.Group(rule.Group).General().LossStreak
			key := models.AlertKey(market, rule.Group)
			current, isActive := e.active[key]

			switch {
			case rule.Breached(lossStreak) && !isActive:
				triggered = append(triggered, models.ActiveAlert{
					Key:         key,
					Market:      market,
					Group:       rule.Group,
					LossStreak:  lossStreak,
					Threshold:   rule.Threshold,
					TriggeredAt: e.now(),
				})
			case !rule.Breached(lossStreak) && isActive:
				delete(e.active, key)
				fx.Cleared = append(fx.Cleared, current)
				logger.Info("Alert %s cleared (loss streak %d <= %d)", key, lossStreak, rule.Threshold)
			}
		}
	}

	for _, a := range triggered {
		e.active[a.Key] = a
		fx.Triggered = append(fx.Triggered, a)
		fx.Notifications = append(fx.Notifications, e.center.Add(alertNotification(a)))
		if e.systemAllowed() && e.systemGroups[a.Group] {
			fx.System = append(fx.System, alertSystemNotification(a))
		}
		logger.Info("Alert %s triggered (loss streak %d > %d)", a.Key, a.LossStreak, a.Threshold)
	}
}

// Disable turns off streak evaluation and forces every active alert to
// inactive. The returned alerts need their cues stopped.
func (e *Engine) Disable() []models.ActiveAlert {
	e.enabled = false
	stopped := e.Active()
	e.active = make(map[string]models.ActiveAlert)
	logger.Info("Alerts disabled, %d active alerts stopped", len(stopped))
	return stopped
}

func (e *Engine) Enable() {
	e.enabled = true
	logger.Info("Alerts enabled")
}

func (e *Engine) Enabled() bool {
	return e.enabled
}

// SetPermission records the outcome of the system-notification grant. It only
// affects cycles evaluated after the call.
func (e *Engine) SetPermission(p models.Permission) {
	e.permission = p
}

func (e *Engine) Permission() models.Permission {
	return e.permission
}

func (e *Engine) systemAllowed() bool {
	return e.permission == models.PermissionGranted
}

// DismissAlert handles the user closing an alert: the key leaves the active
// set and every panel entry carrying it is removed. The bool is false when the
// key was not active; panel entries are removed either way.
func (e *Engine) DismissAlert(key string) (models.ActiveAlert, bool) {
	a, ok := e.active[key]
	delete(e.active, key)
	e.center.DismissAlert(key)
	return a, ok
}

// IsActive reports whether key is currently alerting.
func (e *Engine) IsActive(key string) bool {
	_, ok := e.active[key]
	return ok
}

// Active returns the active alerts sorted by key.
func (e *Engine) Active() []models.ActiveAlert {
	out := make([]models.ActiveAlert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func alertNotification(a models.ActiveAlert) models.Notification {
	return models.Notification{
		Type:  models.NotificationAlert,
		Title: "ENTRY MOMENT DETECTED",
		Message: fmt.Sprintf("🚨 ENTRY MOMENT DETECTED! Market %s with %s-digit groups has %d consecutive losses "+
			"(above the limit of %d). Under the reversal strategy this may be a favourable entry.",
			a.Market, a.Group, a.LossStreak, a.Threshold),
		Closeable: true,
		Market:    a.Market,
		AlertKey:  a.Key,
	}
}

func alertSystemNotification(a models.ActiveAlert) models.SystemNotification {
	return models.SystemNotification{
		Title: fmt.Sprintf("🚨 ENTRY MOMENT - %s", a.Market),
		Body: fmt.Sprintf("Group %s digits: %d consecutive losses detected. Entry opportunity under the reversal strategy!",
			a.Group, a.LossStreak),
		Icon: "🎯",
	}
}
