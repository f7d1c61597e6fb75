package control

import (
	"fmt"
	"math"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// PeakShavingParams holds the tunables for the demand-driven discharge
// controller, grounded on the original peak_shaving.py's trigger/hysteresis
// and recharge-window config.
type PeakShavingParams struct {
	DemandLimitKw    float64
	TriggerPercent   float64 // trigger_kw = limit * trigger% / 100
	MinSocPct        float64
	RechargeStartHr  int // the [start, end) recharge window; may cross midnight (start > end)
	RechargeEndHr    int
	MaxChargeKw      float64 // max charge rate while recharging in the window
	MaxDischargeKw   float64 // cap applied to the demand-driven discharge
}

// PeakShavingState is the sticky "currently shaving" flag the hysteresis
// logic needs carried between cycles. The caller owns its lifetime (one per
// site), matching the existing pattern of storing small bits of state on
// the long-lived Controller rather than threading it through every call.
type PeakShavingState struct {
	shaving bool
}

// triggerKw and hysteresisKw are derived from DemandLimitKw/TriggerPercent:
// hysteresis is 70% of the trigger.
func (p PeakShavingParams) triggerKw() float64 {
	return p.DemandLimitKw * p.TriggerPercent / 100
}

func (p PeakShavingParams) hysteresisKw() float64 {
	return p.triggerKw() * 0.7
}

func (p PeakShavingParams) inRechargeWindow(localHour int) bool {
	if p.RechargeStartHr == p.RechargeEndHr {
		return false
	}
	if p.RechargeStartHr < p.RechargeEndHr {
		return localHour >= p.RechargeStartHr && localHour < p.RechargeEndHr
	}
	// window crosses midnight
	return localHour >= p.RechargeStartHr || localHour < p.RechargeEndHr
}

// PeakShaving evaluates the sticky-hysteresis demand cases and mutates
// state's shaving flag as each case requires.
func PeakShaving(params PeakShavingParams, state *PeakShavingState, localHour int, demandKw, soc float64) telemetry.Decision {
	trigger := params.triggerKw()
	hysteresis := params.hysteresisKw()

	switch {
	case demandKw > trigger && soc > params.MinSocPct:
		state.shaving = true
		power := math.Min(demandKw-trigger, params.MaxDischargeKw)
		return telemetry.Decision{
			Action:     telemetry.ActionDischarge,
			PowerKw:    power,
			Reason:     fmt.Sprintf("peak shaving: demand %.1fkW over trigger %.1fkW, soc %.1f%% above min", demandKw, trigger, soc),
			Layer:      telemetry.LayerContractual,
			Confidence: 1,
		}

	case demandKw > trigger && soc <= params.MinSocPct:
		state.shaving = false
		return idle(telemetry.LayerContractual,
			fmt.Sprintf("peak shaving idle: demand %.1fkW over trigger %.1fkW but soc %.1f%% at/below min %.1f%%", demandKw, trigger, soc, params.MinSocPct))

	case state.shaving && demandKw < hysteresis:
		state.shaving = false
		return idle(telemetry.LayerContractual,
			fmt.Sprintf("peak shaving idle: demand %.1fkW dropped below hysteresis %.1fkW", demandKw, hysteresis))

	case state.shaving && demandKw >= hysteresis && demandKw <= trigger:
		power := math.Min(0.3*params.MaxDischargeKw, params.MaxDischargeKw)
		return telemetry.Decision{
			Action:     telemetry.ActionDischarge,
			PowerKw:    power,
			Reason:     fmt.Sprintf("peak shaving hold: demand %.1fkW in hysteresis band [%.1f, %.1f]kW", demandKw, hysteresis, trigger),
			Layer:      telemetry.LayerContractual,
			Confidence: 1,
		}

	case !state.shaving && demandKw <= trigger && params.inRechargeWindow(localHour) && soc < 80:
		power := math.Min(params.MaxChargeKw, params.MaxDischargeKw)
		return telemetry.Decision{
			Action:     telemetry.ActionCharge,
			PowerKw:    power,
			Reason:     fmt.Sprintf("peak shaving recharge: hour %d in window [%d, %d), soc %.1f%% below 80%%", localHour, params.RechargeStartHr, params.RechargeEndHr, soc),
			Layer:      telemetry.LayerContractual,
			Confidence: 1,
		}

	default:
		return idle(telemetry.LayerContractual, fmt.Sprintf("peak shaving idle: demand %.1fkW, no case matched", demandKw))
	}
}
