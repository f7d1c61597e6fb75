// Package decision implements the layer-arbitration engine that picks one
// dispatch decision per cycle from five priority layers: SAFETY ->
// GRID_CODE -> CONTRACTUAL -> ECONOMIC -> CLOUD. It is the direct
// generalization of
// controller.Controller.prioritiseControlComponents, which walks a priority
// list of components tracking min/max/fixed power bounds; here the walk is
// over five named layers instead of nine ad-hoc components, and each layer
// either fires conclusively or yields to the next.
package decision

import (
	"fmt"

	"github.com/rasecorreia-star/lifo4-ems-sub001/blackstart"
	"github.com/rasecorreia-star/lifo4-ems-sub001/cache"
	"github.com/rasecorreia-star/lifo4-ems-sub001/safety"
	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// Caps describes the power bounds the safety layer imposes this cycle,
// derived from a safety.Result. A nil field means "no bound in that
// direction".
type Caps struct {
	ForceIdle      bool
	MaxChargeKw    *float64 // non-nil caps CHARGE magnitude
	MaxDischargeKw *float64 // non-nil caps DISCHARGE magnitude
	DisallowCharge bool
	DisallowDischarge bool
}

// capsFromSafety turns a safety.Result into the power caps the decision
// engine must respect, derived from the L1 SAFETY rules. nominalPowerKw is
// the inverter's rated power, used as the 100% reference for REDUCE_POWER's
// 50% cap.
func capsFromSafety(result safety.Result, nominalPowerKw float64) Caps {
	switch result.Action {
	case safety.ActionEmergencyStop, safety.ActionStopAll:
		return Caps{ForceIdle: true}
	case safety.ActionStopCharge:
		return Caps{DisallowCharge: true}
	case safety.ActionStopDischarge:
		return Caps{DisallowDischarge: true}
	case safety.ActionReducePower:
		cap := nominalPowerKw * 0.5
		return Caps{MaxChargeKw: &cap, MaxDischargeKw: &cap}
	case safety.ActionReduceCurrent:
		// No safety rule issues REDUCE_CURRENT today; if one does, treat it
		// the same as REDUCE_POWER's magnitude cap until a current-to-power
		// conversion is defined.
		cap := nominalPowerKw * 0.5
		return Caps{MaxChargeKw: &cap, MaxDischargeKw: &cap}
	default:
		return Caps{}
	}
}

// apply clamps a candidate decision to the caps, or rejects it outright if
// its direction is disallowed. The returned bool is false when the
// candidate cannot be issued at all under these caps.
func (c Caps) apply(d telemetry.Decision) (telemetry.Decision, bool) {
	if c.ForceIdle {
		return telemetry.Decision{}, false
	}
	switch d.Action {
	case telemetry.ActionCharge:
		if c.DisallowCharge {
			return telemetry.Decision{}, false
		}
		if c.MaxChargeKw != nil && d.PowerKw > *c.MaxChargeKw {
			d.PowerKw = *c.MaxChargeKw
		}
	case telemetry.ActionDischarge:
		if c.DisallowDischarge {
			return telemetry.Decision{}, false
		}
		if c.MaxDischargeKw != nil && d.PowerKw > *c.MaxDischargeKw {
			d.PowerKw = *c.MaxDischargeKw
		}
	}
	return d, true
}

// Inputs bundles everything Decide needs for one cycle.
type Inputs struct {
	Snapshot        telemetry.Snapshot
	SafetyResult    safety.Result
	GridStatus      blackstart.Status
	NominalPowerKw  float64
	Now             func() (localHour int)

	Contractual func() telemetry.Decision // peak-shaving, already IDLE if inactive
	Economic    func() telemetry.Decision // arbitrage-then-solar, already IDLE if inactive
	CloudValid  bool
	Cloud       cache.CloudSetpoint
}

// idleDecision is the final fallback when nothing fires: hold at zero.
func idleDecision(layer telemetry.Layer, reason string) telemetry.Decision {
	return telemetry.Decision{Action: telemetry.ActionIdle, PowerKw: 0, Reason: reason, Layer: layer, Confidence: 1}
}

// Decide walks the five layers in priority order and returns exactly one
// decision. It must not invoke in.Contractual/in.Economic when safety is
// not OK or the grid is not connected - they are invoked lazily below,
// never "just in case".
func Decide(in Inputs) telemetry.Decision {
	caps := capsFromSafety(in.SafetyResult, in.NominalPowerKw)

	// L1 SAFETY
	if caps.ForceIdle {
		return idleDecision(telemetry.LayerSafety, fmt.Sprintf("safety override: %s", in.SafetyResult.Reason))
	}

	// L2 GRID_CODE: the black-start controller owns dispatch whenever the
	// grid isn't connected; optimization layers are never consulted.
	if in.GridStatus.State != blackstart.StateGridConnected {
		return idleDecision(telemetry.LayerGridCode,
			fmt.Sprintf("grid code: black-start controller owns dispatch in state %s", in.GridStatus.State))
	}

	// L3 CONTRACTUAL
	if in.Contractual != nil {
		if d := in.Contractual(); d.Action != telemetry.ActionIdle {
			if capped, ok := caps.apply(d); ok {
				capped.Layer = telemetry.LayerContractual
				return capped
			}
		}
	}

	// L4 ECONOMIC
	if in.Economic != nil {
		if d := in.Economic(); d.Action != telemetry.ActionIdle {
			if capped, ok := caps.apply(d); ok {
				capped.Layer = telemetry.LayerEconomic
				return capped
			}
		}
	}

	// L5 CLOUD
	if in.CloudValid {
		cloudDecision := cloudDecisionFromSetpoint(in.Cloud)
		if cloudDecision.Action != telemetry.ActionIdle {
			if capped, ok := caps.apply(cloudDecision); ok {
				capped.Layer = telemetry.LayerCloud
				capped.Reason = "cloud setpoint accepted"
				return capped
			}
		}
	}

	return idleDecision(telemetry.LayerEconomic, "no layer produced a non-idle decision")
}

func cloudDecisionFromSetpoint(sp cache.CloudSetpoint) telemetry.Decision {
	action := telemetry.ActionIdle
	switch sp.Action {
	case cache.CloudSetpointCharge:
		action = telemetry.ActionCharge
	case cache.CloudSetpointDischarge:
		action = telemetry.ActionDischarge
	}
	return telemetry.Decision{Action: action, PowerKw: sp.PowerKw, Layer: telemetry.LayerCloud, Confidence: 1}
}
