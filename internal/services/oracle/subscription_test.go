package oracle

import (
	"testing"
)

func TestSubscriptionFirstTerminalTransitionWins(t *testing.T) {
	cancelled := 0
	sub := &subscription{cancel: func() { cancelled++ }, state: stateListening}

	if !sub.finish(stateTimedOut) {
		t.Fatal("first transition should take effect")
	}
	if sub.finish(stateCancelled) {
		t.Error("second transition should be a no-op")
	}
	if got := sub.currentState(); got != stateTimedOut {
		t.Errorf("expected timed_out, got %s", got)
	}
	if cancelled != 1 {
		t.Errorf("cancel should run exactly once, ran %d times", cancelled)
	}
}

func TestRegistryUnsubscribe(t *testing.T) {
	reg := newSubscriptionRegistry()

	cancelled := false
	sub, err := reg.add(func() { cancelled = true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reg.unsubscribe(sub.id)
	if !cancelled {
		t.Error("unsubscribe should cancel the subscription")
	}
	if got := sub.currentState(); got != stateCancelled {
		t.Errorf("expected cancelled, got %s", got)
	}

	// Repeated and unknown unsubscribes are no-ops.
	reg.unsubscribe(sub.id)
	reg.unsubscribe(uid(99))
}

func TestRegistryIDsAreUnique(t *testing.T) {
	reg := newSubscriptionRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		sub, err := reg.add(func() {})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[sub.id.Hex()] {
			t.Fatalf("duplicate subscription id %s", sub.id.Hex())
		}
		seen[sub.id.Hex()] = true
	}
}

func TestStateStrings(t *testing.T) {
	cases := map[subscriptionState]string{
		stateIdle:      "idle",
		stateListening: "listening",
		stateTimedOut:  "timed_out",
		stateCancelled: "cancelled",
		stateCompleted: "completed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
