package control

import (
	"testing"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// TestArbitrageScenarioS1 exercises a below-threshold case: price 0.30 is
// below the 0.45 buy threshold with plenty of soc headroom, so arbitrage
// should charge.
func TestArbitrageScenarioS1(t *testing.T) {
	params := ArbitrageParams{
		BuyThresholdPrice:  0.45,
		SellThresholdPrice: 0.60,
		MinSocForSellPct:   20,
		MaxSocForBuyPct:    90,
		MaxChargeKw:        50,
		MaxDischargeKw:     50,
	}
	decision := Arbitrage(params, 14, 0.30, false, 50)
	if decision.Action != telemetry.ActionCharge {
		t.Fatalf("expected CHARGE, got %s (%s)", decision.Action, decision.Reason)
	}
	if decision.PowerKw <= 0 {
		t.Fatalf("expected non-zero charge power, got %f", decision.PowerKw)
	}
	if decision.Layer != telemetry.LayerEconomic {
		t.Fatalf("expected ECONOMIC layer, got %s", decision.Layer)
	}
}

func TestArbitrageIdleWithinThresholds(t *testing.T) {
	params := ArbitrageParams{BuyThresholdPrice: 0.20, SellThresholdPrice: 0.50, MaxSocForBuyPct: 90, MinSocForSellPct: 20, MaxChargeKw: 10, MaxDischargeKw: 10}
	decision := Arbitrage(params, 12, 0.35, false, 50)
	if decision.Action != telemetry.ActionIdle {
		t.Fatalf("expected IDLE, got %s", decision.Action)
	}
}

func TestArbitrageAnnotatesFallback(t *testing.T) {
	params := ArbitrageParams{BuyThresholdPrice: 0.45, MaxSocForBuyPct: 90, MaxChargeKw: 10}
	decision := Arbitrage(params, 1, 0.10, true, 30)
	if decision.Action != telemetry.ActionCharge {
		t.Fatalf("expected CHARGE, got %s", decision.Action)
	}
	if !contains(decision.Reason, "fallback") {
		t.Fatalf("expected reason to mention fallback, got %q", decision.Reason)
	}
}

// TestPeakShavingScenarioS3 exercises the worked discharge example: demand
// 95kW over a limit of 100kW with an 84kW trigger (100*84%) nets a discharge
// of 95-84=11kW.
func TestPeakShavingScenarioS3(t *testing.T) {
	params := PeakShavingParams{
		DemandLimitKw:  100,
		TriggerPercent: 84, // trigger_kw = 100 * 84% = 84
		MinSocPct:      20,
		MaxDischargeKw: 50,
	}
	state := &PeakShavingState{}
	decision := PeakShaving(params, state, 14, 95, 60)
	if decision.Action != telemetry.ActionDischarge {
		t.Fatalf("expected DISCHARGE, got %s (%s)", decision.Action, decision.Reason)
	}
	if decision.PowerKw != 11 {
		t.Fatalf("expected 11kW, got %f", decision.PowerKw)
	}
	if !state.shaving {
		t.Fatalf("expected shaving flag to be set")
	}
}

func TestPeakShavingHysteresisHold(t *testing.T) {
	params := PeakShavingParams{DemandLimitKw: 100, TriggerPercent: 80, MinSocPct: 20, MaxDischargeKw: 50}
	state := &PeakShavingState{shaving: true}
	// trigger=80, hysteresis=56; demand 60 is in [56,80] band
	decision := PeakShaving(params, state, 14, 60, 60)
	if decision.Action != telemetry.ActionDischarge {
		t.Fatalf("expected hold DISCHARGE, got %s", decision.Action)
	}
	if decision.PowerKw != 15 { // 0.3 * 50
		t.Fatalf("expected 15kW hold rate, got %f", decision.PowerKw)
	}
}

func TestPeakShavingClearsOnLowDemand(t *testing.T) {
	params := PeakShavingParams{DemandLimitKw: 100, TriggerPercent: 80, MinSocPct: 20, MaxDischargeKw: 50}
	state := &PeakShavingState{shaving: true}
	decision := PeakShaving(params, state, 14, 10, 60) // well below hysteresis 56
	if decision.Action != telemetry.ActionIdle {
		t.Fatalf("expected IDLE, got %s", decision.Action)
	}
	if state.shaving {
		t.Fatalf("expected shaving flag cleared")
	}
}

func TestPeakShavingRecharge(t *testing.T) {
	params := PeakShavingParams{
		DemandLimitKw: 100, TriggerPercent: 80, MinSocPct: 20,
		RechargeStartHr: 23, RechargeEndHr: 6, // crosses midnight
		MaxChargeKw: 20, MaxDischargeKw: 50,
	}
	state := &PeakShavingState{}
	decision := PeakShaving(params, state, 2, 10, 50) // 2am, in window, soc<80
	if decision.Action != telemetry.ActionCharge {
		t.Fatalf("expected CHARGE, got %s (%s)", decision.Action, decision.Reason)
	}
}

func TestSolarExcessCharges(t *testing.T) {
	params := SolarParams{MinExcessKw: 1, TargetSocPct: 90, MaxChargeKw: 30}
	decision := Solar(params, 40, 10, 50)
	if decision.Action != telemetry.ActionCharge {
		t.Fatalf("expected CHARGE, got %s", decision.Action)
	}
	if decision.PowerKw != 30 { // excess 30, capped at MaxChargeKw 30
		t.Fatalf("expected 30kW, got %f", decision.PowerKw)
	}
}

func TestSolarNightServe(t *testing.T) {
	params := SolarParams{NightDischargeOn: true, MaxDischargeKw: 20}
	decision := Solar(params, 0, 5, 40)
	if decision.Action != telemetry.ActionDischarge {
		t.Fatalf("expected DISCHARGE, got %s (%s)", decision.Action, decision.Reason)
	}
	if decision.PowerKw != 5 {
		t.Fatalf("expected 5kW, got %f", decision.PowerKw)
	}
}

func TestSolarIdleBelowNightServeThreshold(t *testing.T) {
	params := SolarParams{NightDischargeOn: true, MaxDischargeKw: 20}
	decision := Solar(params, 0, 0.2, 40) // load too small to bother serving
	if decision.Action != telemetry.ActionIdle {
		t.Fatalf("expected IDLE, got %s", decision.Action)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
