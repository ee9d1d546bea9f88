package alerting

import (
	"github.com/rewired-gh/derivwatch/internal/models"
)

// Rule triggers an alert for a digit group once its current loss streak
// exceeds Threshold.
type Rule struct {
	Group     string
	Threshold int
}

// DefaultRules is the fixed loss-streak table, ascending by group.
var DefaultRules = []Rule{
	{Group: "7", Threshold: 6},
	{Group: "8", Threshold: 5},
	{Group: "9", Threshold: 4},
	{Group: "10", Threshold: 3},
	{Group: "11", Threshold: 2},
	{Group: "12", Threshold: 2},
	{Group: "13", Threshold: 1},
	{Group: "14", Threshold: 1},
	{Group: "15", Threshold: 1},
}

// DefaultSystemGroups are the groups whose alerts are also pushed as system notifications.
var DefaultSystemGroups = []string{"7", "8", "9", "10", "11"}

// Breached reports whether lossStreak is strictly past the threshold.
func (r Rule) Breached(lossStreak int) bool {
	return lossStreak > r.Threshold
}

// ParseRules builds a rule table from a group → threshold map, sorted by group.
// It is used to load overrides from configuration.
func ParseRules(m map[string]int) []Rule {
	groups := make([]string, 0, len(m))
	for g := range m {
		groups = append(groups, g)
	}
	models.SortGroupKeys(groups)

	rules := make([]Rule, 0, len(groups))
	for _, g := range groups {
		rules = append(rules, Rule{Group: g, Threshold: m[g]})
	}
	return rules
}
