// Package blackstart implements the six-state grid-failure / black-start
// state machine and its load-shedding table. Grounded on the original
// black_start.py state machine and expressed idiomatically: a
// struct with unexported state fields and a Process method mutating them in
// place, logging via log/slog the way controller.Controller.Run does.
package blackstart

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rasecorreia-star/lifo4-ems-sub001/safety"
)

// State is one of the six grid-failure states the controller cycles through
// between a healthy grid connection and a fully islanded backup supply.
type State string

const (
	StateGridConnected      State = "GRID_CONNECTED"
	StateGridFailureDetected State = "GRID_FAILURE_DETECTED"
	StateTransferring       State = "TRANSFERRING"
	StateIslandMode         State = "ISLAND_MODE"
	StateReconnecting       State = "RECONNECTING"
	StateSynchronizing      State = "SYNCHRONIZING"
)

// SyncFreqMinHz/SyncFreqMaxHz are the stricter reconnection-frequency window
// used only in SYNCHRONIZING, deliberately tighter than the GridFreqMin/Max
// limits used elsewhere. The asymmetry is intentional, not a typo: a clean
// resynchronization needs a tighter window than continuous island operation
// tolerates.
const (
	SyncFreqMinHz     = 59.9
	SyncFreqMaxHz     = 60.1
	SyncHoldDuration  = 30 * time.Second
)

// ContactorWriter is the capability the FSM needs from the fieldbus to
// transfer the load between grid and backup contactors. A small interface
// rather than a concrete *fieldbus.Client so tests can fake it.
type ContactorWriter interface {
	SetCoil(name string, val bool) error
}

// AlarmSink receives the events the FSM emits on transitions and shed
// actions. The store package's AppendAlarm satisfies this.
type AlarmSink interface {
	AppendAlarm(severity, alarmType, message string, metadata map[string]any)
}

// LoadPriority is an integer 1..6, 1 = most critical (life-safety, never
// shed), 6 = least critical (non-emergency elevators).
type LoadPriority int

// activePrioritiesForSoc returns the set of priorities that must remain
// energized at the given soc.
func activePrioritiesForSoc(soc float64) map[LoadPriority]bool {
	switch {
	case soc > 40:
		return prioritySet(1, 2, 3, 4, 5, 6)
	case soc > 30:
		return prioritySet(1, 2, 3, 4, 5)
	case soc > 20:
		return prioritySet(1, 2, 3, 4)
	case soc > 10:
		return prioritySet(1, 2, 3)
	default:
		return prioritySet(1, 2)
	}
}

func prioritySet(ps ...LoadPriority) map[LoadPriority]bool {
	m := make(map[LoadPriority]bool, len(ps))
	for _, p := range ps {
		m[p] = true
	}
	return m
}

// loadTypeNames gives a human label for alarm messages; purely cosmetic.
var loadTypeNames = map[LoadPriority]string{
	1: "life_safety",
	2: "emergency_systems",
	3: "critical_process",
	4: "hvac_servers",
	5: "hvac_comfort",
	6: "elevators",
}

// FSM owns the grid-failure state machine. It is constructed once by the
// control loop and passed by exclusive reference into each cycle - only one
// goroutine may ever call Process.
type FSM struct {
	state State

	lowReadingStreak int // consecutive cycles with freq/voltage below the blackstart thresholds

	islandStartTime time.Time
	syncStartTime   time.Time

	activeLoads map[LoadPriority]bool // the loads currently energized; nil outside ISLAND_MODE

	contactors ContactorWriter
	alarms     AlarmSink

	logger *slog.Logger
}

// New creates an FSM starting in GRID_CONNECTED.
func New(contactors ContactorWriter, alarms AlarmSink) *FSM {
	return &FSM{
		state:      StateGridConnected,
		contactors: contactors,
		alarms:     alarms,
		logger:     slog.Default().With("component", "blackstart"),
	}
}

// State returns the current grid state.
func (f *FSM) State() State {
	return f.state
}

// Status is the per-cycle summary the decision engine and telemetry
// publisher need.
type Status struct {
	State        State
	ActiveLoads  map[LoadPriority]bool // nil outside ISLAND_MODE
	IslandedSecs float64
}

func (f *FSM) gridOK(freqHz, gridVoltageV float64) bool {
	return freqHz >= safety.BlackstartFreqMinHz && gridVoltageV >= safety.BlackstartVoltageMinV
}

// Process advances the FSM by one cycle given the latest grid readings and
// soc, returning the resulting Status. It is not a pure function: it mutates
// f's internal state and, on transition, issues contactor writes and emits
// alarms.
func (f *FSM) Process(now time.Time, freqHz, gridVoltageV, soc float64) Status {
	switch f.state {
	case StateGridConnected:
		f.processGridConnected(now, freqHz, gridVoltageV)

	case StateGridFailureDetected:
		f.transitionTo(StateTransferring)
		f.transferLoad()

	case StateTransferring:
		f.transitionTo(StateIslandMode)
		f.islandStartTime = now
		f.activeLoads = activePrioritiesForSoc(soc)
		f.emitEvent("info", "island_mode_started", "entered island mode", map[string]any{"soc": soc})

	case StateIslandMode:
		f.shedForSoc(soc)
		if freqHz >= safety.GridFreqMinHz && freqHz <= safety.GridFreqMaxHz && gridVoltageV >= safety.BlackstartVoltageRestoreV {
			f.transitionTo(StateReconnecting)
			f.activeLoads = nil // loads are reinstated on island exit
		}

	case StateReconnecting:
		f.transitionTo(StateSynchronizing)
		f.syncStartTime = now

	case StateSynchronizing:
		elapsed := now.Sub(f.syncStartTime)
		if freqHz >= SyncFreqMinHz && freqHz <= SyncFreqMaxHz && gridVoltageV >= safety.BlackstartVoltageRestoreV && elapsed >= SyncHoldDuration {
			f.reconnectToGrid()
			f.transitionTo(StateGridConnected)
			f.emitEvent("info", "grid_reconnected", "reconnected to grid", nil)
		}
	}

	var islandedSecs float64
	if f.state == StateIslandMode && !f.islandStartTime.IsZero() {
		islandedSecs = now.Sub(f.islandStartTime).Seconds()
	}

	return Status{
		State:        f.state,
		ActiveLoads:  f.activeLoads,
		IslandedSecs: islandedSecs,
	}
}

func (f *FSM) processGridConnected(now time.Time, freqHz, gridVoltageV float64) {
	if f.gridOK(freqHz, gridVoltageV) {
		f.lowReadingStreak = 0
		return
	}
	f.lowReadingStreak++
	if f.lowReadingStreak >= safety.BlackstartConfirmReadings {
		f.transitionTo(StateGridFailureDetected)
		f.lowReadingStreak = 0
	}
}

func (f *FSM) transitionTo(next State) {
	f.logger.Info("grid state transition", "from", f.state, "to", next)
	f.state = next
}

// transferLoad opens the grid contactor, waits, then closes the backup
// contactor: the entry action for GRID_FAILURE_DETECTED -> TRANSFERRING.
func (f *FSM) transferLoad() {
	if err := f.contactors.SetCoil("grid_contactor", false); err != nil {
		f.logger.Error("failed to open grid contactor", "error", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := f.contactors.SetCoil("backup_contactor", true); err != nil {
		f.logger.Error("failed to close backup contactor", "error", err)
	}
}

// reconnectToGrid opens the backup contactor, waits, then closes the grid
// contactor: the exit action for SYNCHRONIZING -> GRID_CONNECTED.
func (f *FSM) reconnectToGrid() {
	if err := f.contactors.SetCoil("backup_contactor", false); err != nil {
		f.logger.Error("failed to open backup contactor", "error", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := f.contactors.SetCoil("grid_contactor", true); err != nil {
		f.logger.Error("failed to close grid contactor", "error", err)
	}
}

// shedForSoc drops any currently-active priority that the current soc no
// longer allows. Loads are never reinstated here - reinstatement happens
// only on island exit, where Process drops the shed-tracking set on the
// ISLAND_MODE -> RECONNECTING transition (Status.ActiveLoads is nil in every
// state outside ISLAND_MODE). Sheds are emitted
// highest-number-first: map iteration order is randomized, so the
// candidates are collected and sorted before any event fires.
func (f *FSM) shedForSoc(soc float64) {
	allowed := activePrioritiesForSoc(soc)

	var toShed []LoadPriority
	for p := range f.activeLoads {
		if !allowed[p] {
			toShed = append(toShed, p)
		}
	}
	sort.Slice(toShed, func(i, j int) bool { return toShed[i] > toShed[j] })

	for _, p := range toShed {
		delete(f.activeLoads, p)
		f.emitEvent("medium", "load_shed",
			fmt.Sprintf("shed priority %d (%s) at soc %.1f%%", p, loadTypeNames[p], soc),
			map[string]any{"priority": p, "load_type": loadTypeNames[p], "soc": soc})
	}
}

func (f *FSM) emitEvent(severity, alarmType, message string, metadata map[string]any) {
	f.logger.Info(message, "alarm_type", alarmType, "severity", severity)
	if f.alarms != nil {
		f.alarms.AppendAlarm(severity, alarmType, message, metadata)
	}
}
