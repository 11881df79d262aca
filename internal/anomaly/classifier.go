// Package anomaly classifies driving log statistics with an ordered ruleset.
package anomaly

import (
	"fmt"
	"strings"
	"time"

	"github.com/sjperalta/interlock-api/internal/models"
)

// Thresholds used by the default rules
const (
	TamperingThreshold   = 3
	FailureRateThreshold = 0.5
	MinFileSizeBytes     = 100
	MaxPeriodDays        = 60
	HighBACThreshold     = 0.1
)

// Input is everything the classifier looks at
type Input struct {
	Statistics  models.Statistics
	PeriodStart time.Time
	PeriodEnd   time.Time
	FileSize    int64
}

// DaysInPeriod is the inclusive day count of the covered period
func (in Input) DaysInPeriod() int {
	return models.DaysBetween(in.PeriodStart, in.PeriodEnd) + 1
}

// Rule is one predicate and the anomaly it yields
type Rule struct {
	Name   string
	Result models.AnomalyType
	Match  func(in Input) bool
}

// Verdict is the outcome of a classification
type Verdict struct {
	Anomaly models.AnomalyType `json:"anomaly_type"`
	Risk    models.RiskLevel   `json:"risk_level"`
	// Rule is the name of the matching rule, empty for NORMAL
	Rule string `json:"rule,omitempty"`
}

// RiskPolicy maps a classification to a risk tier
type RiskPolicy func(anomaly models.AnomalyType, stats models.Statistics) models.RiskLevel

// DefaultRiskPolicy is the current risk tier contract
func DefaultRiskPolicy(anomaly models.AnomalyType, stats models.Statistics) models.RiskLevel {
	switch anomaly {
	case models.AnomalyNormal:
		return models.RiskLow
	case models.AnomalyTamperingAttempt:
		return models.RiskHigh
	case models.AnomalyExcessiveFailures:
		if stats.AverageBAC > HighBACThreshold {
			return models.RiskHigh
		}
		return models.RiskMedium
	default:
		return models.RiskMedium
	}
}

// DefaultRules returns the ruleset in priority order
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "tampering_attempts",
			Result: models.AnomalyTamperingAttempt,
			Match: func(in Input) bool {
				return in.Statistics.TamperingAttempts >= TamperingThreshold
			},
		},
		{
			Name:   "failure_rate",
			Result: models.AnomalyExcessiveFailures,
			Match: func(in Input) bool {
				return in.Statistics.TotalTests > 0 && in.Statistics.FailureRate() >= FailureRateThreshold
			},
		},
		{
			Name:   "tests_below_days",
			Result: models.AnomalyDataInconsistency,
			Match: func(in Input) bool {
				return in.Statistics.TotalTests < in.DaysInPeriod()
			},
		},
		{
			Name:   "file_too_small",
			Result: models.AnomalyDataInconsistency,
			Match: func(in Input) bool {
				return in.FileSize < MinFileSizeBytes
			},
		},
		{
			Name:   "period_too_long",
			Result: models.AnomalyDataInconsistency,
			Match: func(in Input) bool {
				return in.DaysInPeriod() > MaxPeriodDays
			},
		},
		{
			Name:   "high_average_bac",
			Result: models.AnomalyExcessiveFailures,
			Match: func(in Input) bool {
				return in.Statistics.AverageBAC > HighBACThreshold
			},
		},
	}
}

// Classifier evaluates rules top to bottom and stops at the first match
type Classifier struct {
	rules  []Rule
	policy RiskPolicy
}

// New creates a classifier with the default rules and risk policy
func New() *Classifier {
	return NewWithRules(DefaultRules(), DefaultRiskPolicy)
}

// NewWithRules creates a classifier with a custom ruleset and policy
func NewWithRules(rules []Rule, policy RiskPolicy) *Classifier {
	if policy == nil {
		policy = DefaultRiskPolicy
	}
	return &Classifier{rules: rules, policy: policy}
}

// Rules returns a copy of the ordered ruleset
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the first matching rule's anomaly, or NORMAL
func (c *Classifier) Classify(in Input) Verdict {
	for _, rule := range c.rules {
		if rule.Match(in) {
			return Verdict{
				Anomaly: rule.Result,
				Risk:    c.policy(rule.Result, in.Statistics),
				Rule:    rule.Name,
			}
		}
	}
	return Verdict{
		Anomaly: models.AnomalyNormal,
		Risk:    c.policy(models.AnomalyNormal, in.Statistics),
	}
}

// Summary renders the analysis text stored on a log
func Summary(stats models.Statistics, v Verdict) string {
	var b strings.Builder
	b.WriteString("Automatic analysis complete\n")
	fmt.Fprintf(&b, "Total tests: %d\n", stats.TotalTests)
	fmt.Fprintf(&b, "Passed: %d\n", stats.PassedTests)
	fmt.Fprintf(&b, "Failed: %d\n", stats.FailedTests)
	fmt.Fprintf(&b, "Skipped: %d\n", stats.SkippedTests)
	fmt.Fprintf(&b, "Average BAC: %.4f\n", stats.AverageBAC)
	fmt.Fprintf(&b, "Max BAC: %.4f\n", stats.MaxBAC)
	fmt.Fprintf(&b, "Tampering attempts: %d\n", stats.TamperingAttempts)
	fmt.Fprintf(&b, "Anomaly: %s (risk %s)", v.Anomaly, v.Risk)
	if v.Rule != "" {
		fmt.Fprintf(&b, " [%s]", v.Rule)
	}
	b.WriteString("\n")
	return b.String()
}
