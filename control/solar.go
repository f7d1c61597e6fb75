package control

import (
	"fmt"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// SolarParams holds the tunables for solar self-consumption, grounded on
// the original solar_self.py's excess/night-discharge config.
type SolarParams struct {
	MinExcessKw        float64
	TargetSocPct       float64
	MaxChargeKw        float64
	NightDischargeOn   bool
	MaxDischargeKw     float64
}

// Solar evaluates the excess-charging / night-serve cases.
func Solar(params SolarParams, solarGenKw, loadKw, soc float64) telemetry.Decision {
	excess := solarGenKw - loadKw

	if excess >= params.MinExcessKw && soc < params.TargetSocPct {
		power := min(excess, params.MaxChargeKw)
		return telemetry.Decision{
			Action:     telemetry.ActionCharge,
			PowerKw:    power,
			Reason:     fmt.Sprintf("solar self-consumption: excess %.1fkW, soc %.1f%% below target %.1f%%", excess, soc, params.TargetSocPct),
			Layer:      telemetry.LayerEconomic,
			Confidence: 1,
		}
	}

	if params.NightDischargeOn && solarGenKw < 0.5 && soc > 20 {
		power := min(loadKw, params.MaxDischargeKw)
		if power > 0.5 {
			return telemetry.Decision{
				Action:     telemetry.ActionDischarge,
				PowerKw:    power,
				Reason:     fmt.Sprintf("solar night-serve: solar %.2fkW near zero, soc %.1f%% above 20%%, serving load %.1fkW", solarGenKw, soc, loadKw),
				Layer:      telemetry.LayerEconomic,
				Confidence: 1,
			}
		}
	}

	return idle(telemetry.LayerEconomic, fmt.Sprintf("solar idle: excess %.1fkW, solar %.2fkW, soc %.1f%%", excess, solarGenKw, soc))
}
