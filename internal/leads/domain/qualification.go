package domain

// QualificationFields holds the structured buyer preferences extracted from
// the conversation. The known fields are what scoring templates can match
// on; anything else the extractor returns lands in Extra untyped and is
// kept for the delivery payload.
type QualificationFields struct {
	Budget       *int64  `json:"budget,omitempty"`
	Zone         *string `json:"zone,omitempty"`
	Timing       *string `json:"timing,omitempty"`
	PropertyType *string `json:"propertyType,omitempty"`
	Bedrooms     *int    `json:"bedrooms,omitempty"`
	Investor     *bool   `json:"investor,omitempty"`
	Financing    *bool   `json:"financing,omitempty"`
	// EngagementTurns counts inbound messages; the engagement_score rule
	// derives its metric from it.
	EngagementTurns int `json:"engagementTurns,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Field names used by scoring templates and minimum-field predicates.
const (
	FieldBudget       = "budget"
	FieldZone         = "zone"
	FieldTiming       = "timing"
	FieldPropertyType = "property_type"
	FieldBedrooms     = "bedrooms"
	FieldInvestor     = "investor"
	FieldFinancing    = "financing"
	FieldEngagement   = "engagement"
)

// Timing values the extractor normalizes to.
const (
	TimingImmediate  = "immediate"
	TimingShortTerm  = "1-3_months"
	TimingMediumTerm = "3-6_months"
	TimingLongTerm   = "6+_months"
)

// Has reports whether the named known field is present.
// Engagement is always present (it is a counter, zero is meaningful).
func (f QualificationFields) Has(field string) bool {
	switch field {
	case FieldBudget:
		return f.Budget != nil
	case FieldZone:
		return f.Zone != nil && *f.Zone != ""
	case FieldTiming:
		return f.Timing != nil && *f.Timing != ""
	case FieldPropertyType:
		return f.PropertyType != nil && *f.PropertyType != ""
	case FieldBedrooms:
		return f.Bedrooms != nil
	case FieldInvestor:
		return f.Investor != nil
	case FieldFinancing:
		return f.Financing != nil
	case FieldEngagement:
		return true
	default:
		_, ok := f.Extra[field]
		return ok
	}
}

// Merge overlays newer onto f: present fields in newer win, absent fields
// keep their current value. Extra keys are merged the same way. The
// engagement counter takes the larger of the two.
func (f QualificationFields) Merge(newer QualificationFields) QualificationFields {
	out := f
	if newer.Budget != nil {
		out.Budget = newer.Budget
	}
	if newer.Zone != nil && *newer.Zone != "" {
		out.Zone = newer.Zone
	}
	if newer.Timing != nil && *newer.Timing != "" {
		out.Timing = newer.Timing
	}
	if newer.PropertyType != nil && *newer.PropertyType != "" {
		out.PropertyType = newer.PropertyType
	}
	if newer.Bedrooms != nil {
		out.Bedrooms = newer.Bedrooms
	}
	if newer.Investor != nil {
		out.Investor = newer.Investor
	}
	if newer.Financing != nil {
		out.Financing = newer.Financing
	}
	if newer.EngagementTurns > out.EngagementTurns {
		out.EngagementTurns = newer.EngagementTurns
	}
	if len(newer.Extra) > 0 {
		merged := make(map[string]string, len(f.Extra)+len(newer.Extra))
		for k, v := range f.Extra {
			merged[k] = v
		}
		for k, v := range newer.Extra {
			merged[k] = v
		}
		out.Extra = merged
	}
	return out
}
