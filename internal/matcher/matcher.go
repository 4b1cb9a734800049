// Package matcher selects the alert rules that apply to a ledger metric
// event.
package matcher

import (
	"github.com/Investorold/KPi-Vault-sub000/internal/rules"
)

// Match returns the subset of candidates that are active and whose encoded
// metric identifier equals metricKey. metricKey must be the lower-case 0x
// hex of the event's metric id hash. An empty result is a normal outcome;
// the caller simply stops.
func Match(metricKey string, candidates []rules.AlertRule) []rules.AlertRule {
	var matched []rules.AlertRule
	for i := range candidates {
		r := &candidates[i]
		if r.Status != rules.StatusActive {
			continue
		}
		if r.MetricKey() == metricKey {
			matched = append(matched, *r)
		}
	}
	return matched
}
