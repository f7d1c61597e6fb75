// Package safety implements the hardcoded L1 safety layer: a pure function
// from a telemetry snapshot to a safety result. Grounded on the priority-
// ordered constant table in controller/control_component.go and the original
// safety_manager.py's cascading rule checks.
package safety

import (
	"fmt"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// Action is the tagged variant a Result carries.
type Action string

const (
	ActionOK               Action = "OK"
	ActionEmergencyStop    Action = "EMERGENCY_STOP"
	ActionStopCharge       Action = "STOP_CHARGE"
	ActionStopDischarge    Action = "STOP_DISCHARGE"
	ActionStopAll          Action = "STOP_ALL"
	ActionReducePower      Action = "REDUCE_POWER"
	// ActionReduceCurrent is preserved per the safety enum but no rule in
	// Check issues it yet; see DESIGN.md.
	ActionReduceCurrent Action = "REDUCE_CURRENT"
)

// Severity classifies how serious a Result is.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Result is the outcome of a safety check: an action, a reason, a severity,
// and optionally the value/limit pair that triggered it.
type Result struct {
	Action       Action
	Reason       string
	Severity     Severity
	ViolatedValue *float64
	Limit         *float64
}

// IsOK reports whether this result represents a fully nominal state.
func (r Result) IsOK() bool {
	return r.Action == ActionOK
}

// BlocksOptimization reports whether an optimizer layer must be skipped this cycle.
func (r Result) BlocksOptimization() bool {
	return !r.IsOK()
}

// RequiresImmediateStop reports whether the BESS must be commanded to zero power immediately.
func (r Result) RequiresImmediateStop() bool {
	return r.Action == ActionEmergencyStop || r.Action == ActionStopAll
}

func ok() Result {
	return Result{Action: ActionOK, Severity: SeverityNone}
}

func violation(action Action, severity Severity, reason string, value, limit float64) Result {
	v, l := value, limit
	return Result{
		Action:        action,
		Reason:        reason,
		Severity:      severity,
		ViolatedValue: &v,
		Limit:         &l,
	}
}

// Check evaluates the eight priority-ordered safety rules against snap and
// returns the first one that fires, or OK when none does. It is a pure function: it has no
// receiver, accepts no configuration, and never reads mutable package
// state, so there is no way to feed it a rebound limit at runtime.
func Check(snap telemetry.Snapshot) Result {
	if snap.CellVoltageMaxV > CellVoltageMaxV {
		return violation(ActionEmergencyStop, SeverityCritical,
			fmt.Sprintf("cell voltage %.3fV exceeds max %.3fV", snap.CellVoltageMaxV, CellVoltageMaxV),
			snap.CellVoltageMaxV, CellVoltageMaxV)
	}
	if snap.CellVoltageMinV < CellVoltageMinV {
		return violation(ActionStopDischarge, SeverityHigh,
			fmt.Sprintf("cell voltage %.3fV below min %.3fV", snap.CellVoltageMinV, CellVoltageMinV),
			snap.CellVoltageMinV, CellVoltageMinV)
	}
	if snap.TempMaxC > PackTempMaxC {
		return violation(ActionEmergencyStop, SeverityCritical,
			fmt.Sprintf("pack temperature %.1fC exceeds max %.1fC", snap.TempMaxC, PackTempMaxC),
			snap.TempMaxC, PackTempMaxC)
	}
	if snap.TempMinC < PackTempMinC {
		return violation(ActionStopAll, SeverityCritical,
			fmt.Sprintf("pack temperature %.1fC below min %.1fC", snap.TempMinC, PackTempMinC),
			snap.TempMinC, PackTempMinC)
	}
	if snap.Soc < SocAbsoluteMinPct {
		return violation(ActionStopDischarge, SeverityHigh,
			fmt.Sprintf("soc %.1f%% below min %.1f%%", snap.Soc, SocAbsoluteMinPct),
			snap.Soc, SocAbsoluteMinPct)
	}
	if snap.Soc > SocAbsoluteMaxPct {
		return violation(ActionStopCharge, SeverityHigh,
			fmt.Sprintf("soc %.1f%% above max %.1f%%", snap.Soc, SocAbsoluteMaxPct),
			snap.Soc, SocAbsoluteMaxPct)
	}
	if delta := snap.CellDeltaMv(); delta > CellDeltaMaxMv {
		return violation(ActionReducePower, SeverityMedium,
			fmt.Sprintf("cell voltage delta %.1fmV exceeds max %.1fmV", delta, CellDeltaMaxMv),
			delta, CellDeltaMaxMv)
	}
	if snap.TempMaxC > PackTempWarnC {
		return violation(ActionReducePower, SeverityMedium,
			fmt.Sprintf("pack temperature %.1fC exceeds warn %.1fC", snap.TempMaxC, PackTempWarnC),
			snap.TempMaxC, PackTempWarnC)
	}
	return ok()
}
