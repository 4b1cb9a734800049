// Package evaluator implements the pure alert condition evaluation. It has
// no I/O and is testable in isolation from the rest of the pipeline.
package evaluator

import (
	"math"
	"strings"

	"github.com/Investorold/KPi-Vault-sub000/internal/rules"
)

// DefaultDirection is the threshold comparison used when a rule does not
// specify one.
const DefaultDirection = "above"

// Evidence carries the inputs that produced a trigger decision. Only the
// fields relevant to the branch that decided are populated.
type Evidence struct {
	CurrentValue        float64
	PreviousValue       *float64
	Threshold           *float64
	Direction           string
	ChangePercentTarget *float64
	ChangePercentActual *float64
}

// Decision is the outcome of evaluating one rule against one entry.
type Decision struct {
	Triggered bool
	Evidence  Evidence
}

// Evaluate applies a rule's condition to the decrypted current value and the
// optional previous value. Percent-change takes precedence over threshold
// when a previous value is available; a previous value of zero never
// triggers. A rule with no usable condition never triggers.
func Evaluate(cfg rules.Config, current float64, previous *float64) Decision {
	ev := Evidence{CurrentValue: current, PreviousValue: previous}

	if cfg.ChangePercent != nil && previous != nil {
		prev := *previous
		ev.ChangePercentTarget = cfg.ChangePercent
		if prev == 0 {
			return Decision{Evidence: ev}
		}
		actual := (current - prev) / math.Abs(prev) * 100
		ev.ChangePercentActual = &actual
		triggered := math.Abs(actual) >= math.Abs(*cfg.ChangePercent)
		return Decision{Triggered: triggered, Evidence: ev}
	}

	if hasFiniteThreshold(cfg.Threshold) {
		threshold := *cfg.Threshold
		direction := strings.ToLower(cfg.Direction)
		if direction == "" {
			direction = DefaultDirection
		}
		ev.Threshold = cfg.Threshold
		ev.Direction = direction

		var triggered bool
		switch direction {
		case "below":
			triggered = current < threshold
		case "equals":
			// Exact numeric equality, no epsilon tolerance.
			triggered = current == threshold
		default:
			triggered = current > threshold
		}
		return Decision{Triggered: triggered, Evidence: ev}
	}

	return Decision{Evidence: ev}
}

func hasFiniteThreshold(t *float64) bool {
	return t != nil && !math.IsNaN(*t) && !math.IsInf(*t, 0)
}
