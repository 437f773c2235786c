// Package domain provides core business rules for the leads bounded context.
package domain

// Status is the lifecycle state of a LeadOffer. Every status change goes
// through the repository's Transition, which rejects any pair that is not
// an edge of the graph below.
type Status string

const (
	// StatusPendingMapping - the inbound source is not yet linked to a tenant offer.
	StatusPendingMapping Status = "PENDING_MAPPING"
	// StatusToBeContacted - mapped and waiting for first outreach.
	StatusToBeContacted Status = "TO_BE_CONTACTED"
	// StatusContacted - first outreach sent.
	StatusContacted Status = "CONTACTED"
	// StatusEngaged - the lead replied at least once.
	StatusEngaged Status = "ENGAGED"
	// StatusQualifying - qualification conversation in progress.
	StatusQualifying Status = "QUALIFYING"
	// StatusScored - enough fields present, a score has been computed.
	StatusScored Status = "SCORED"
	// StatusLeadReady - score met the tenant threshold; eligible for delivery.
	StatusLeadReady Status = "LEAD_READY"
	// StatusSentToDeveloper - delivered and billed. Terminal success.
	StatusSentToDeveloper Status = "SENT_TO_DEVELOPER"
	// StatusCooling - no response within the tenant's inactivity window.
	StatusCooling Status = "COOLING"
	// StatusReactivation - re-engagement probe in flight.
	StatusReactivation Status = "REACTIVATION"
	// StatusHumanHandoff - escalated to a human operator.
	StatusHumanHandoff Status = "HUMAN_HANDOFF"
	// StatusDisqualified - negative signal or disqualification rule matched. Terminal.
	StatusDisqualified Status = "DISQUALIFIED"
	// StatusStopped - abandoned after exhausting reactivation attempts. Terminal.
	StatusStopped Status = "STOPPED"
)

// transitions is the fixed adjacency list of the lifecycle graph.
// SCORED can fall back to QUALIFYING when the score is below the tenant
// threshold and the conversation continues.
var transitions = map[Status][]Status{
	StatusPendingMapping: {StatusToBeContacted, StatusStopped},
	StatusToBeContacted:  {StatusContacted, StatusDisqualified, StatusStopped},
	StatusContacted:      {StatusEngaged, StatusDisqualified, StatusHumanHandoff, StatusStopped},
	StatusEngaged:        {StatusQualifying, StatusDisqualified, StatusHumanHandoff, StatusStopped},
	StatusQualifying:     {StatusScored, StatusCooling, StatusDisqualified, StatusHumanHandoff, StatusStopped},
	StatusScored:         {StatusLeadReady, StatusQualifying, StatusDisqualified, StatusHumanHandoff},
	StatusLeadReady:      {StatusSentToDeveloper, StatusDisqualified},
	StatusCooling:        {StatusReactivation, StatusDisqualified, StatusStopped},
	StatusReactivation:   {StatusQualifying, StatusDisqualified, StatusStopped},
	StatusHumanHandoff:   {StatusQualifying, StatusDisqualified, StatusStopped},
	// Terminal states have no outgoing edges.
	StatusSentToDeveloper: {},
	StatusDisqualified:    {},
	StatusStopped:         {},
}

// terminalStatuses are statuses with no outgoing edges.
var terminalStatuses = map[Status]bool{
	StatusSentToDeveloper: true,
	StatusDisqualified:    true,
	StatusStopped:         true,
}

// IsKnown reports whether s is one of the defined lifecycle statuses.
func IsKnown(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// CanTransition reports whether (from, to) is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the allowed successor statuses of s.
func Next(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// InitialStatus returns the status a new LeadOffer starts in: TO_BE_CONTACTED
// when the source is already mapped to a tenant offer, PENDING_MAPPING otherwise.
func InitialStatus(mapped bool) Status {
	if mapped {
		return StatusToBeContacted
	}
	return StatusPendingMapping
}
