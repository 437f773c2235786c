package scoring

import (
	"errors"
	"reflect"
	"testing"

	"leadflow_backend/internal/leads/domain"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func testTemplate() Template {
	return Template{
		Name:          "default",
		MinimumFields: []string{domain.FieldBudget, domain.FieldZone, domain.FieldTiming},
		Components: []Component{
			{Name: "budget", Field: domain.FieldBudget, Kind: RuleRangeMatch, MaxPoints: 30, Min: 2_000_000, Max: 5_000_000},
			{Name: "zone", Field: domain.FieldZone, Kind: RuleCategoryMatch, MaxPoints: 25, Accepted: []string{"Polanco", "Condesa", "Roma Norte"}},
			{Name: "timing", Field: domain.FieldTiming, Kind: RuleTimingMatch, MaxPoints: 25},
			{Name: "investor_bonus", Field: domain.FieldInvestor, Kind: RuleBooleanMatch, MaxPoints: 10, Expected: true},
			{Name: "engagement", Kind: RuleEngagementScore, MaxPoints: 10},
		},
	}
}

func qualifiedFields() domain.QualificationFields {
	return domain.QualificationFields{
		Budget:          int64Ptr(3_000_000),
		Zone:            strPtr("condesa"),
		Timing:          strPtr(domain.TimingImmediate),
		EngagementTurns: 5,
	}
}

func TestScore_NotScoreableUntilMinimumFields(t *testing.T) {
	fields := domain.QualificationFields{Budget: int64Ptr(3_000_000)}

	_, err := Score(fields, testTemplate())
	if !errors.Is(err, ErrNotScoreable) {
		t.Fatalf("err = %v, want ErrNotScoreable", err)
	}
}

func TestScore_QualifiedLead(t *testing.T) {
	result, err := Score(qualifiedFields(), testTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// budget 30 (in range) + zone 25 + timing 25 (immediate) + investor 0 + engagement 8
	if result.Total != 88 {
		t.Fatalf("total = %d, want 88", result.Total)
	}
	if !Qualified(result.Total, DefaultThreshold) {
		t.Fatal("expected lead to qualify")
	}
	if result.Breakdown["budget"] != 30 || result.Breakdown["engagement"] != 8 {
		t.Fatalf("breakdown = %v", result.Breakdown)
	}
}

func TestScore_Deterministic(t *testing.T) {
	first, err := Score(qualifiedFields(), testTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Score(qualifiedFields(), testTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Total != second.Total || !reflect.DeepEqual(first.Breakdown, second.Breakdown) {
		t.Fatalf("scoring not deterministic: %v vs %v", first, second)
	}
}

func TestScore_RangeTiers(t *testing.T) {
	template := testTemplate()
	cases := []struct {
		budget int64
		want   int
	}{
		{3_000_000, 30}, // inside
		{2_000_000, 30}, // lower bound inclusive
		{5_000_000, 30}, // upper bound inclusive
		{1_800_000, 24}, // within 15% below -> 80% of 30
		{5_600_000, 24}, // within 15% above
		{1_000_000, 0},  // far below
		{9_000_000, 0},  // far above
	}

	for _, tc := range cases {
		fields := qualifiedFields()
		fields.Budget = int64Ptr(tc.budget)
		result, err := Score(fields, template)
		if err != nil {
			t.Fatalf("budget %d: unexpected error %v", tc.budget, err)
		}
		if result.Breakdown["budget"] != tc.want {
			t.Fatalf("budget %d: points = %d, want %d", tc.budget, result.Breakdown["budget"], tc.want)
		}
	}
}

func TestScore_TimingTiers(t *testing.T) {
	cases := []struct {
		timing string
		want   int
	}{
		{domain.TimingImmediate, 25},
		{domain.TimingShortTerm, 20},
		{domain.TimingMediumTerm, 13},
		{domain.TimingLongTerm, 5},
		{"someday", 0},
	}

	for _, tc := range cases {
		fields := qualifiedFields()
		fields.Timing = strPtr(tc.timing)
		result, err := Score(fields, testTemplate())
		if err != nil {
			t.Fatalf("timing %q: unexpected error %v", tc.timing, err)
		}
		if result.Breakdown["timing"] != tc.want {
			t.Fatalf("timing %q: points = %d, want %d", tc.timing, result.Breakdown["timing"], tc.want)
		}
	}
}

func TestScore_CategoryMatchIsCaseInsensitive(t *testing.T) {
	fields := qualifiedFields()
	fields.Zone = strPtr("ROMA NORTE")
	result, err := Score(fields, testTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Breakdown["zone"] != 25 {
		t.Fatalf("zone points = %d, want 25", result.Breakdown["zone"])
	}
}

func TestScore_InvestorBonus(t *testing.T) {
	fields := qualifiedFields()
	fields.Investor = boolPtr(true)
	result, err := Score(fields, testTemplate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Breakdown["investor_bonus"] != 10 {
		t.Fatalf("investor points = %d, want 10", result.Breakdown["investor_bonus"])
	}

	fields.Investor = boolPtr(false)
	result, _ = Score(fields, testTemplate())
	if result.Breakdown["investor_bonus"] != 0 {
		t.Fatalf("non-investor points = %d, want 0", result.Breakdown["investor_bonus"])
	}
}

func TestScore_TotalClampedTo100(t *testing.T) {
	template := Template{
		Name:          "overweight",
		MinimumFields: []string{domain.FieldBudget},
		Components: []Component{
			{Name: "a", Field: domain.FieldBudget, Kind: RuleRangeMatch, MaxPoints: 80, Min: 0, Max: 10_000_000},
			{Name: "b", Field: domain.FieldBudget, Kind: RuleRangeMatch, MaxPoints: 80, Min: 0, Max: 10_000_000},
		},
	}
	fields := domain.QualificationFields{Budget: int64Ptr(1)}

	result, err := Score(fields, template)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 100 {
		t.Fatalf("total = %d, want clamp at 100", result.Total)
	}
	// Breakdown keeps the raw component points.
	if result.Breakdown["a"] != 80 || result.Breakdown["b"] != 80 {
		t.Fatalf("breakdown = %v", result.Breakdown)
	}
}

func TestQualified_ThresholdIsInclusive(t *testing.T) {
	if !Qualified(70, 70) {
		t.Fatal("70 must qualify at threshold 70")
	}
	if Qualified(69, 70) {
		t.Fatal("69 must not qualify at threshold 70")
	}
	if !Qualified(70, 0) {
		t.Fatal("zero threshold must fall back to the default")
	}
}

func TestTemplateValidate(t *testing.T) {
	bad := Template{Name: "bad", Components: []Component{{Name: "x", Kind: "made_up", MaxPoints: 10}}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown rule kind")
	}

	empty := Template{Name: "empty"}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error for template without components")
	}
}

func TestParseTemplateYAML(t *testing.T) {
	data := []byte(`
name: default
minimum_fields: [budget, zone, timing]
components:
  - name: budget
    field: budget
    kind: range_match
    max_points: 30
    min: 1000000
    max: 4000000
  - name: timing
    field: timing
    kind: timing_match
    max_points: 20
`)
	template, err := ParseTemplateYAML(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(template.Components) != 2 || template.Components[0].MaxPoints != 30 {
		t.Fatalf("template = %+v", template)
	}
}
