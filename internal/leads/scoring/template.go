// Package scoring computes the qualification score of a lead offer from its
// extracted fields and the tenant's scoring template. The engine is pure:
// identical inputs always produce identical results, and nothing here
// touches storage.
package scoring

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleKind selects how a component maps a field value to a point tier.
type RuleKind string

const (
	RuleRangeMatch      RuleKind = "range_match"
	RuleCategoryMatch   RuleKind = "category_match"
	RuleTimingMatch     RuleKind = "timing_match"
	RuleBooleanMatch    RuleKind = "boolean_match"
	RuleEngagementScore RuleKind = "engagement_score"
)

// Component is one named scoring dimension of a template.
type Component struct {
	Name      string   `json:"name" yaml:"name"`
	Field     string   `json:"field" yaml:"field"`
	Kind      RuleKind `json:"kind" yaml:"kind"`
	MaxPoints int      `json:"maxPoints" yaml:"max_points"`

	// range_match bounds (inclusive).
	Min int64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max int64 `json:"max,omitempty" yaml:"max,omitempty"`

	// category_match accepted values.
	Accepted []string `json:"accepted,omitempty" yaml:"accepted,omitempty"`

	// timing_match point fractions per normalized timing value. When empty
	// the default tiers apply.
	Tiers map[string]float64 `json:"tiers,omitempty" yaml:"tiers,omitempty"`

	// boolean_match expected value.
	Expected bool `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// Template defines the tenant's scoring rules and the minimum-fields gate.
type Template struct {
	Name          string      `json:"name" yaml:"name"`
	MinimumFields []string    `json:"minimumFields" yaml:"minimum_fields"`
	Components    []Component `json:"components" yaml:"components"`
}

// Validate checks structural soundness: every component needs a name, a
// known rule kind and a positive point budget.
func (t Template) Validate() error {
	if len(t.Components) == 0 {
		return fmt.Errorf("template %q has no components", t.Name)
	}
	for _, c := range t.Components {
		if c.Name == "" {
			return fmt.Errorf("template %q has an unnamed component", t.Name)
		}
		if c.MaxPoints <= 0 {
			return fmt.Errorf("component %q: max points must be positive", c.Name)
		}
		switch c.Kind {
		case RuleRangeMatch, RuleCategoryMatch, RuleTimingMatch, RuleBooleanMatch, RuleEngagementScore:
		default:
			return fmt.Errorf("component %q: unknown rule kind %q", c.Name, c.Kind)
		}
		if c.Kind == RuleRangeMatch && c.Max < c.Min {
			return fmt.Errorf("component %q: max below min", c.Name)
		}
	}
	return nil
}

// ParseTemplateYAML parses and validates a template from YAML, used for the
// seeded default template.
func ParseTemplateYAML(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("parse scoring template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}
