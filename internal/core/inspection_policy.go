package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ThresholdRule caps the acceptable battery drain for models whose name
// contains Match. Priority only matters when two equally long keys match.
type ThresholdRule struct {
	Match           string
	MaxDrainPerHour decimal.Decimal
	Priority        int
}

// ThresholdTable resolves the drain threshold for a model name.
type ThresholdTable struct {
	rules        []ThresholdRule
	defaultLimit decimal.Decimal
}

// NewThresholdTable validates the rules: keys must be non-empty, unique
// (case-insensitively) and carry a positive limit.
func NewThresholdTable(rules []ThresholdRule, defaultLimit decimal.Decimal) (*ThresholdTable, error) {
	if !defaultLimit.IsPositive() {
		return nil, configurationf("default battery threshold must be positive, got %s", defaultLimit)
	}
	seen := make(map[string]bool, len(rules))
	normalized := make([]ThresholdRule, 0, len(rules))
	for _, r := range rules {
		r.Match = strings.TrimSpace(r.Match)
		key := strings.ToLower(r.Match)
		if key == "" {
			return nil, configurationf("battery threshold rule with empty match key")
		}
		if seen[key] {
			return nil, configurationf("duplicate battery threshold key %q", r.Match)
		}
		if !r.MaxDrainPerHour.IsPositive() {
			return nil, configurationf("battery threshold for %q must be positive, got %s", r.Match, r.MaxDrainPerHour)
		}
		seen[key] = true
		normalized = append(normalized, r)
	}
	return &ThresholdTable{rules: normalized, defaultLimit: defaultLimit}, nil
}

// Lookup returns the threshold for modelName and the key that produced it
// ("" for the default). The longest matching key wins; equally long keys are
// ordered by Priority. Two equally long keys with the same priority matching
// the same name is a ConfigurationError.
func (t *ThresholdTable) Lookup(modelName string) (decimal.Decimal, string, error) {
	name := strings.ToLower(modelName)
	var best *ThresholdRule
	ambiguous := false
	for i := range t.rules {
		r := &t.rules[i]
		if !strings.Contains(name, strings.ToLower(r.Match)) {
			continue
		}
		switch {
		case best == nil:
			best, ambiguous = r, false
		case len(r.Match) > len(best.Match):
			best, ambiguous = r, false
		case len(r.Match) == len(best.Match):
			if r.Priority > best.Priority {
				best, ambiguous = r, false
			} else if r.Priority == best.Priority {
				ambiguous = true
			}
		}
	}
	if best == nil {
		return t.defaultLimit, "", nil
	}
	if ambiguous {
		return decimal.Zero, "", configurationf("battery threshold for %q is ambiguous: several keys of length %d share priority %d", modelName, len(best.Match), best.Priority)
	}
	return best.MaxDrainPerHour, best.Match, nil
}

// DrainRate is the percent of charge lost per hour, unrounded. It is defined
// only when both the elapsed time and the charge drop are positive.
func DrainRate(start, end time.Time, startPercent, endPercent int) (decimal.Decimal, bool) {
	elapsed := end.Sub(start)
	drop := startPercent - endPercent
	if elapsed <= 0 || drop <= 0 {
		return decimal.Zero, false
	}
	perHour := decimal.NewFromInt(int64(drop) * int64(time.Hour))
	return perHour.Div(decimal.NewFromInt(elapsed.Nanoseconds())), true
}

// InspectionPolicy holds the configurable rules of the quality-control stage.
type InspectionPolicy struct {
	Thresholds *ThresholdTable
	// SkipBatteryTest lists model-name fragments whose devices go straight to
	// packaging after a passed inspection.
	SkipBatteryTest []string
}

// SkipsBatteryTest reports whether modelName matches the skip-list.
func (p InspectionPolicy) SkipsBatteryTest(modelName string) bool {
	name := strings.ToLower(modelName)
	for _, frag := range p.SkipBatteryTest {
		frag = strings.ToLower(strings.TrimSpace(frag))
		if frag != "" && strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// BatteryVerdict is the outcome of evaluating one battery test.
type BatteryVerdict struct {
	DrainPerHour *decimal.Decimal
	Threshold    decimal.Decimal
	MatchedKey   string
	Passed       bool
}

// StoredDrain is the drain rounded to cents of a percent for persistence and
// display. The verdict itself compares the unrounded rate.
func (v BatteryVerdict) StoredDrain() *decimal.Decimal {
	if v.DrainPerHour == nil {
		return nil
	}
	r := v.DrainPerHour.Round(2)
	return &r
}

// EvaluateBattery computes the drain and compares it with the model's threshold.
// An undefined drain never exceeds the threshold.
func (p InspectionPolicy) EvaluateBattery(modelName string, start, end time.Time, startPercent, endPercent int) (BatteryVerdict, error) {
	if startPercent < 0 || startPercent > 100 || endPercent < 0 || endPercent > 100 {
		return BatteryVerdict{}, validationf("battery percentages must be within 0..100, got %d and %d", startPercent, endPercent)
	}
	if p.Thresholds == nil {
		return BatteryVerdict{}, configurationf("battery threshold table is not configured")
	}
	limit, key, err := p.Thresholds.Lookup(modelName)
	if err != nil {
		return BatteryVerdict{}, err
	}
	v := BatteryVerdict{Threshold: limit, MatchedKey: key, Passed: true}
	if rate, ok := DrainRate(start, end, startPercent, endPercent); ok {
		v.DrainPerHour = &rate
		v.Passed = !rate.GreaterThan(limit)
	}
	return v, nil
}
