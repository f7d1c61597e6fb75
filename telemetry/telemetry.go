// Package telemetry holds the plain value types that flow through a single
// control cycle: the field reading taken from the BESS/grid meter, and the
// decision the control loop produces from it.
package telemetry

import "time"

// Snapshot is one field-reading taken from the fieldbus in a single cycle.
// It is immutable once constructed: every method has a value receiver and
// nothing in this package mutates a Snapshot after fieldbus.ReadTelemetry
// returns it.
type Snapshot struct {
	Time time.Time

	Soc float64 // state of charge, 0-100
	Soh float64 // state of health, 0-100

	PackVoltageV float64
	PackCurrentA float64 // +ve is charging
	PowerKw      float64 // +ve is charging

	TempMinC float64
	TempMaxC float64
	TempAvgC float64

	GridFreqHz    float64
	GridVoltageV  float64
	CellVoltageMinV float64
	CellVoltageMaxV float64

	MaxChargeCurrentA    float64
	MaxDischargeCurrentA float64
}

// CellDeltaMv returns the spread between the highest and lowest cell voltage, in millivolts.
func (s Snapshot) CellDeltaMv() float64 {
	return (s.CellVoltageMaxV - s.CellVoltageMinV) * 1000
}

// Action is the action that a ControllerDecision asks the BESS to take.
type Action string

const (
	ActionCharge    Action = "CHARGE"
	ActionDischarge Action = "DISCHARGE"
	ActionIdle      Action = "IDLE"
)

// Layer identifies which priority layer of the decision engine produced a Decision.
type Layer string

const (
	LayerSafety      Layer = "SAFETY"
	LayerGridCode    Layer = "GRID_CODE"
	LayerContractual Layer = "CONTRACTUAL"
	LayerEconomic    Layer = "ECONOMIC"
	LayerCloud       Layer = "CLOUD"
)

// Decision is the single setpoint produced by the decision engine each cycle.
// PowerKw is always a non-negative magnitude; Action carries the sign.
type Decision struct {
	Time       time.Time
	Action     Action
	PowerKw    float64
	Reason     string
	Layer      Layer
	Confidence float64 // in [0,1], defaults to 1
}

// SignedPowerKw returns the power setpoint with the sign convention the
// fieldbus write expects: CHARGE is positive, DISCHARGE is negative.
func (d Decision) SignedPowerKw() float64 {
	switch d.Action {
	case ActionCharge:
		return d.PowerKw
	case ActionDischarge:
		return -d.PowerKw
	default:
		return 0
	}
}
