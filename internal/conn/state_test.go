package conn

import "testing"

func TestMachineStartsIdle(t *testing.T) {
	m := newMachine()
	if m.Current() != Idle {
		t.Errorf("got %s, want %s", m.Current(), Idle)
	}
}

func TestValidTransitions(t *testing.T) {
	m := newMachine()
	path := []State{Connecting, Open, Reconnecting, Connecting, Open, Closing, Closed, Connecting}
	for _, s := range path {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := newMachine()
	if err := m.Transition(Open); err == nil {
		t.Error("Idle -> Open allowed")
	}
	if m.Current() != Idle {
		t.Errorf("state changed on rejected transition: %s", m.Current())
	}
}

func TestSameStateTransitionIsNoop(t *testing.T) {
	m := newMachine()
	if err := m.Transition(Idle); err != nil {
		t.Errorf("same-state transition errored: %v", err)
	}
}

func TestFailedRequiresManualRestart(t *testing.T) {
	m := newMachine()
	for _, s := range []State{Connecting, Reconnecting, Failed} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if err := m.Transition(Reconnecting); err == nil {
		t.Error("Failed -> Reconnecting allowed; only Connect may leave Failed")
	}
	if err := m.Transition(Connecting); err != nil {
		t.Errorf("Failed -> Connecting rejected: %v", err)
	}
}
