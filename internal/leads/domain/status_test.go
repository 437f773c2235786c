package domain

import "testing"

func TestCanTransition_HappyPath(t *testing.T) {
	path := []Status{
		StatusToBeContacted,
		StatusContacted,
		StatusEngaged,
		StatusQualifying,
		StatusScored,
		StatusLeadReady,
		StatusSentToDeveloper,
	}

	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected edge %s -> %s", path[i], path[i+1])
		}
	}
}

func TestCanTransition_RejectsSkippedStages(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusToBeContacted, StatusQualifying},
		{StatusContacted, StatusScored},
		{StatusPendingMapping, StatusLeadReady},
		{StatusQualifying, StatusSentToDeveloper},
		{StatusLeadReady, StatusQualifying},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("unexpected edge %s -> %s", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, s := range []Status{StatusSentToDeveloper, StatusDisqualified, StatusStopped} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
		if next := Next(s); len(next) != 0 {
			t.Fatalf("terminal status %s has outgoing edges %v", s, next)
		}
	}
}

func TestDisqualificationReachableFromConversationStates(t *testing.T) {
	for _, s := range []Status{StatusToBeContacted, StatusContacted, StatusEngaged, StatusQualifying} {
		if !CanTransition(s, StatusDisqualified) {
			t.Fatalf("expected %s -> DISQUALIFIED", s)
		}
	}
}

func TestHumanHandoffReachableFromContactedThroughQualifying(t *testing.T) {
	for _, s := range []Status{StatusContacted, StatusEngaged, StatusQualifying} {
		if !CanTransition(s, StatusHumanHandoff) {
			t.Fatalf("expected %s -> HUMAN_HANDOFF", s)
		}
	}
	if CanTransition(StatusToBeContacted, StatusHumanHandoff) {
		t.Fatal("TO_BE_CONTACTED must not escalate before contact")
	}
}

func TestCoolingLoop(t *testing.T) {
	if !CanTransition(StatusQualifying, StatusCooling) {
		t.Fatal("expected QUALIFYING -> COOLING")
	}
	if !CanTransition(StatusCooling, StatusReactivation) {
		t.Fatal("expected COOLING -> REACTIVATION")
	}
	if !CanTransition(StatusReactivation, StatusQualifying) {
		t.Fatal("expected REACTIVATION -> QUALIFYING")
	}
	if !CanTransition(StatusReactivation, StatusStopped) {
		t.Fatal("expected REACTIVATION -> STOPPED")
	}
}

func TestLateDisqualificationEdgeExists(t *testing.T) {
	// The pre-delivery guard lives in the service; the edge itself is legal.
	if !CanTransition(StatusLeadReady, StatusDisqualified) {
		t.Fatal("expected LEAD_READY -> DISQUALIFIED")
	}
}

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(true); got != StatusToBeContacted {
		t.Fatalf("mapped initial status = %s", got)
	}
	if got := InitialStatus(false); got != StatusPendingMapping {
		t.Fatalf("unmapped initial status = %s", got)
	}
}

func TestEveryDeclaredSuccessorIsAKnownStatus(t *testing.T) {
	for _, from := range []Status{
		StatusPendingMapping, StatusToBeContacted, StatusContacted, StatusEngaged,
		StatusQualifying, StatusScored, StatusLeadReady, StatusSentToDeveloper,
		StatusCooling, StatusReactivation, StatusHumanHandoff, StatusDisqualified, StatusStopped,
	} {
		if !IsKnown(from) {
			t.Fatalf("status %s missing from adjacency list", from)
		}
		for _, to := range Next(from) {
			if !IsKnown(to) {
				t.Fatalf("successor %s of %s is not a known status", to, from)
			}
		}
	}
}
