package scoring

import (
	"errors"
	"math"
	"strings"

	"leadflow_backend/internal/leads/domain"
)

// ErrNotScoreable is returned while the minimum-fields gate is not yet
// satisfied. Callers must not persist a score in that case; a partial
// conversation would otherwise look like a weak lead.
var ErrNotScoreable = errors.New("minimum qualification fields not yet present")

// DefaultThreshold is the qualification threshold used when the tenant has
// not configured one. Comparison is >=, not >.
const DefaultThreshold = 70

// Point fractions for the discrete tiers.
const (
	tierFull    = 1.0
	tierNear    = 0.8
	rangeMargin = 0.15
)

// defaultTimingTiers apply when a timing_match component declares none.
var defaultTimingTiers = map[string]float64{
	domain.TimingImmediate:  1.0,
	domain.TimingShortTerm:  0.8,
	domain.TimingMediumTerm: 0.5,
	domain.TimingLongTerm:   0.2,
}

// Result is a computed score with its per-component breakdown.
type Result struct {
	Total     int            `json:"total"`
	Breakdown map[string]int `json:"breakdown"`
}

// MinimumFieldsSatisfied reports whether every field the template requires
// is present.
func MinimumFieldsSatisfied(fields domain.QualificationFields, template Template) bool {
	for _, name := range template.MinimumFields {
		if !fields.Has(name) {
			return false
		}
	}
	return true
}

// Score evaluates fields against the template. It returns ErrNotScoreable
// until the minimum-fields gate passes. The total is the sum of component
// points clamped to [0,100].
func Score(fields domain.QualificationFields, template Template) (Result, error) {
	if err := template.Validate(); err != nil {
		return Result{}, err
	}
	if !MinimumFieldsSatisfied(fields, template) {
		return Result{}, ErrNotScoreable
	}

	breakdown := make(map[string]int, len(template.Components))
	total := 0
	for _, c := range template.Components {
		points := componentPoints(fields, c)
		breakdown[c.Name] = points
		total += points
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return Result{Total: total, Breakdown: breakdown}, nil
}

// Qualified reports whether total meets the threshold. Zero or negative
// threshold falls back to the default.
func Qualified(total, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return total >= threshold
}

func componentPoints(fields domain.QualificationFields, c Component) int {
	switch c.Kind {
	case RuleRangeMatch:
		return rangePoints(fields, c)
	case RuleCategoryMatch:
		return categoryPoints(fields, c)
	case RuleTimingMatch:
		return timingPoints(fields, c)
	case RuleBooleanMatch:
		return booleanPoints(fields, c)
	case RuleEngagementScore:
		return engagementPoints(fields, c)
	default:
		return 0
	}
}

func rangePoints(fields domain.QualificationFields, c Component) int {
	value, ok := numericField(fields, c.Field)
	if !ok {
		return 0
	}
	if value >= c.Min && value <= c.Max {
		return scale(c.MaxPoints, tierFull)
	}
	// Within 15% outside the range still earns the near tier.
	lower := int64(math.Floor(float64(c.Min) * (1 - rangeMargin)))
	upper := int64(math.Ceil(float64(c.Max) * (1 + rangeMargin)))
	if value >= lower && value <= upper {
		return scale(c.MaxPoints, tierNear)
	}
	return 0
}

func categoryPoints(fields domain.QualificationFields, c Component) int {
	value, ok := stringField(fields, c.Field)
	if !ok {
		return 0
	}
	for _, accepted := range c.Accepted {
		if strings.EqualFold(strings.TrimSpace(accepted), value) {
			return scale(c.MaxPoints, tierFull)
		}
	}
	return 0
}

func timingPoints(fields domain.QualificationFields, c Component) int {
	value, ok := stringField(fields, c.Field)
	if !ok {
		return 0
	}
	tiers := c.Tiers
	if len(tiers) == 0 {
		tiers = defaultTimingTiers
	}
	fraction, ok := tiers[value]
	if !ok {
		return 0
	}
	return scale(c.MaxPoints, fraction)
}

func booleanPoints(fields domain.QualificationFields, c Component) int {
	var value *bool
	switch c.Field {
	case domain.FieldInvestor:
		value = fields.Investor
	case domain.FieldFinancing:
		value = fields.Financing
	}
	if value == nil {
		return 0
	}
	if *value == c.Expected {
		return scale(c.MaxPoints, tierFull)
	}
	return 0
}

func engagementPoints(fields domain.QualificationFields, c Component) int {
	turns := fields.EngagementTurns
	switch {
	case turns >= 8:
		return scale(c.MaxPoints, tierFull)
	case turns >= 4:
		return scale(c.MaxPoints, tierNear)
	case turns >= 1:
		return scale(c.MaxPoints, 0.4)
	default:
		return 0
	}
}

func numericField(fields domain.QualificationFields, name string) (int64, bool) {
	switch name {
	case domain.FieldBudget:
		if fields.Budget == nil {
			return 0, false
		}
		return *fields.Budget, true
	case domain.FieldBedrooms:
		if fields.Bedrooms == nil {
			return 0, false
		}
		return int64(*fields.Bedrooms), true
	default:
		return 0, false
	}
}

func stringField(fields domain.QualificationFields, name string) (string, bool) {
	var value *string
	switch name {
	case domain.FieldZone:
		value = fields.Zone
	case domain.FieldTiming:
		value = fields.Timing
	case domain.FieldPropertyType:
		value = fields.PropertyType
	default:
		if v, ok := fields.Extra[name]; ok && v != "" {
			return strings.ToLower(strings.TrimSpace(v)), true
		}
		return "", false
	}
	if value == nil || *value == "" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(*value)), true
}

func scale(maxPoints int, fraction float64) int {
	return int(math.Round(float64(maxPoints) * fraction))
}
