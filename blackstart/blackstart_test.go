package blackstart

import (
	"testing"
	"time"
)

type fakeContactors struct {
	writes []string
}

func (f *fakeContactors) SetCoil(name string, val bool) error {
	f.writes = append(f.writes, name)
	return nil
}

type fakeAlarms struct {
	alarms    []string
	shedOrder []LoadPriority
}

func (f *fakeAlarms) AppendAlarm(severity, alarmType, message string, metadata map[string]any) {
	f.alarms = append(f.alarms, alarmType)
	if alarmType == "load_shed" {
		f.shedOrder = append(f.shedOrder, metadata["priority"].(LoadPriority))
	}
}

func newTestFSM() (*FSM, *fakeContactors, *fakeAlarms) {
	c := &fakeContactors{}
	a := &fakeAlarms{}
	return New(c, a), c, a
}

// TestDebounceSingleLowReadingRecovers exercises invariant 7: one low
// reading followed by a normal one keeps the state at GRID_CONNECTED.
func TestDebounceSingleLowReadingRecovers(t *testing.T) {
	f, _, _ := newTestFSM()
	now := time.Now()

	f.Process(now, 60, 170, 50) // low voltage reading
	if f.State() != StateGridConnected {
		t.Fatalf("single low reading should not transition, got %s", f.State())
	}
	f.Process(now, 60, 220, 50) // recovered
	if f.State() != StateGridConnected {
		t.Fatalf("recovered reading should reset the streak, got %s", f.State())
	}
}

// TestGridFailureDebounceSequence exercises S4: two consecutive low-voltage
// cycles walk GRID_CONNECTED -> GRID_FAILURE_DETECTED -> TRANSFERRING ->
// ISLAND_MODE, one state per cycle from failure confirmation.
func TestGridFailureDebounceSequence(t *testing.T) {
	f, contactors, _ := newTestFSM()
	now := time.Now()

	f.Process(now, 60, 170, 50) // 1st low reading
	if f.State() != StateGridConnected {
		t.Fatalf("expected still GRID_CONNECTED after 1st low reading, got %s", f.State())
	}

	f.Process(now, 60, 170, 50) // 2nd consecutive low reading confirms failure
	if f.State() != StateGridFailureDetected {
		t.Fatalf("expected GRID_FAILURE_DETECTED, got %s", f.State())
	}

	f.Process(now, 60, 170, 50)
	if f.State() != StateTransferring {
		t.Fatalf("expected TRANSFERRING, got %s", f.State())
	}
	if len(contactors.writes) != 2 {
		t.Fatalf("expected 2 contactor writes on transfer, got %d", len(contactors.writes))
	}

	f.Process(now, 60, 170, 50)
	if f.State() != StateIslandMode {
		t.Fatalf("expected ISLAND_MODE, got %s", f.State())
	}
}

// TestIslandDeadbandNoChatter exercises invariant 8: while islanded,
// voltage oscillating in [180, 210) never triggers RECONNECTING; 210 does.
func TestIslandDeadbandNoChatter(t *testing.T) {
	f, _, _ := newTestFSM()
	f.state = StateIslandMode
	f.activeLoads = activePrioritiesForSoc(50)

	for _, v := range []float64{180, 195, 209.9, 185} {
		f.Process(time.Now(), 50, v, 50)
		if f.State() != StateIslandMode {
			t.Fatalf("voltage %.1f in deadband should not leave ISLAND_MODE, got %s", v, f.State())
		}
	}

	f.Process(time.Now(), 50, 210, 50)
	if f.State() != StateReconnecting {
		t.Fatalf("voltage 210 should trigger RECONNECTING, got %s", f.State())
	}
}

// TestFullReconnectCycle walks RECONNECTING -> SYNCHRONIZING ->
// GRID_CONNECTED, requiring the 30s hold at SYNCHRONIZING.
func TestFullReconnectCycle(t *testing.T) {
	f, _, _ := newTestFSM()
	f.state = StateReconnecting

	now := time.Now()
	f.Process(now, 60, 220, 50)
	if f.State() != StateSynchronizing {
		t.Fatalf("expected SYNCHRONIZING, got %s", f.State())
	}

	// not enough time elapsed yet
	f.Process(now.Add(5*time.Second), 60, 220, 50)
	if f.State() != StateSynchronizing {
		t.Fatalf("expected still SYNCHRONIZING before hold elapses, got %s", f.State())
	}

	f.Process(now.Add(31*time.Second), 60, 220, 50)
	if f.State() != StateGridConnected {
		t.Fatalf("expected GRID_CONNECTED after hold, got %s", f.State())
	}
}

// TestLoadSheddingMonotonicity exercises S5/invariant 9: the active set
// shrinks monotonically with soc and never grows until island exit.
func TestLoadSheddingMonotonicity(t *testing.T) {
	f, _, alarms := newTestFSM()
	f.state = StateIslandMode
	f.activeLoads = activePrioritiesForSoc(45) // {1..6}

	// grid voltage stays below the 210V restore level so the FSM remains in
	// ISLAND_MODE across both cycles
	status := f.Process(time.Now(), 50, 170, 35) // drop to 30<soc<=40 -> drop priority 6
	if len(status.ActiveLoads) != 5 || status.ActiveLoads[6] {
		t.Fatalf("expected priority 6 shed at soc 35, got %v", status.ActiveLoads)
	}

	status = f.Process(time.Now(), 50, 170, 15) // drop to 10<soc<=20 -> {1,2,3}
	if len(status.ActiveLoads) != 3 {
		t.Fatalf("expected 3 active priorities at soc 15, got %v", status.ActiveLoads)
	}

	if len(alarms.alarms) == 0 {
		t.Fatalf("expected load_shed alarms to be emitted")
	}
}

// TestLoadSheddingOrderIsDescending exercises S5's "dropped priorities are
// shed highest-number first": when a single soc drop sheds more than one
// priority in the same Process call, the load_shed alarms must fire in
// descending priority order, not map iteration order.
func TestLoadSheddingOrderIsDescending(t *testing.T) {
	f, _, alarms := newTestFSM()
	f.state = StateIslandMode
	f.activeLoads = activePrioritiesForSoc(45) // {1..6}

	// single soc drop straight to <=10 sheds {3,4,5,6} in one Process call
	f.Process(time.Now(), 50, 220, 5)

	want := []LoadPriority{6, 5, 4, 3}
	if len(alarms.shedOrder) != len(want) {
		t.Fatalf("expected %d load_shed events, got %d (%v)", len(want), len(alarms.shedOrder), alarms.shedOrder)
	}
	for i, p := range want {
		if alarms.shedOrder[i] != p {
			t.Fatalf("expected shed order %v, got %v", want, alarms.shedOrder)
		}
	}
}
