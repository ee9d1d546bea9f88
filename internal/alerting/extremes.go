package alerting

import (
	"fmt"

	"github.com/rewired-gh/derivwatch/internal/logger"
	"github.com/rewired-gh/derivwatch/internal/models"
)

// Extreme locates one geral category by market and group.
type Extreme struct {
	Market string
	Group  string
	Rate   float64
}

// FindExtremes scans the whole snapshot for the best and worst geral win rate
// among groups with more than minEntries entries. Ties keep the first match in
// display order. ok flags are false when no group qualified.
func FindExtremes(snap models.MarketSnapshot, minEntries int) (best Extreme, bestOK bool, worst Extreme, worstOK bool) {
	bestRate, worstRate := 0.0, 100.0

	for _, market := range snap.Markets() {
		stats := snap.Market(market)
		for _, group := range stats.GroupKeys() {
			g := stats.Group(group)
			if !g.HasGeneral() {
				continue
			}
			geral := g.General()
			if geral.Entries <= minEntries {
				continue
			}
			if geral.WinRate > bestRate {
				bestRate = geral.WinRate
				best, bestOK = Extreme{Market: market, Group: group, Rate: geral.WinRate}, true
			}
			if geral.WinRate < worstRate {
				worstRate = geral.WinRate
				worst, worstOK = Extreme{Market: market, Group: group, Rate: geral.WinRate}, true
			}
		}
	}
	return best, bestOK, worst, worstOK
}

func (e *Engine) evaluateExtremes(snap models.MarketSnapshot, fx *Effects) {
	best, bestOK, worst, worstOK := FindExtremes(snap, e.config.MinEntries)

	if bestOK && best.Rate > e.config.OpportunityRate &&
		!e.center.HasOpen(models.NotificationOpportunity, best.Market) {
		fx.Notifications = append(fx.Notifications, e.center.Add(opportunityNotification(best)))
		if e.systemAllowed() {
			fx.System = append(fx.System, models.SystemNotification{
				Title: fmt.Sprintf("✅ FAVOURABLE OPPORTUNITY - %s", best.Market),
				Body:  fmt.Sprintf("Group %s digits with an excellent win rate: %.1f%%. Consider your strategies!", best.Group, best.Rate),
				Icon:  "📈",
			})
		}
		logger.Info("Opportunity on %s group %s (%.1f%%)", best.Market, best.Group, best.Rate)
	}

	if worstOK && worst.Rate < e.config.WarningRate &&
		!e.center.HasOpen(models.NotificationWarning, worst.Market) {
		fx.Notifications = append(fx.Notifications, e.center.Add(warningNotification(worst)))
		if e.systemAllowed() {
			fx.System = append(fx.System, models.SystemNotification{
				Title: fmt.Sprintf("⚠️ ATTENTION - %s", worst.Market),
				Body:  fmt.Sprintf("Group %s digits performing poorly: %.1f%%. Avoid this pattern for now.", worst.Group, worst.Rate),
				Icon:  "📉",
			})
		}
		logger.Info("Low performance on %s group %s (%.1f%%)", worst.Market, worst.Group, worst.Rate)
	}
}

func opportunityNotification(x Extreme) models.Notification {
	return models.Notification{
		Type:  models.NotificationOpportunity,
		Title: "FAVOURABLE OPPORTUNITY",
		Message: fmt.Sprintf("✅ FAVOURABLE OPPORTUNITY: market %s with %s-digit groups shows an excellent win rate of %.1f%%.",
			x.Market, x.Group, x.Rate),
		Closeable: true,
		Market:    x.Market,
	}
}

func warningNotification(x Extreme) models.Notification {
	return models.Notification{
		Type:  models.NotificationWarning,
		Title: "ATTENTION - LOW PERFORMANCE",
		Message: fmt.Sprintf("⚠️ ATTENTION - LOW PERFORMANCE: market %s with %s-digit groups has a very low win rate (%.1f%%).",
			x.Market, x.Group, x.Rate),
		Closeable: true,
		Market:    x.Market,
	}
}
