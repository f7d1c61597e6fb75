package safety

import (
	"testing"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

func nominalSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		Soc:             50,
		Soh:             98,
		CellVoltageMinV: 3.20,
		CellVoltageMaxV: 3.22,
		TempMinC:        20,
		TempMaxC:        30,
		GridFreqHz:      60.0,
		GridVoltageV:    220,
	}
}

func TestCheckOK(t *testing.T) {
	result := Check(nominalSnapshot())
	if !result.IsOK() {
		t.Fatalf("expected OK, got %+v", result)
	}
	if result.Severity != SeverityNone {
		t.Fatalf("expected severity none, got %s", result.Severity)
	}
	if result.BlocksOptimization() {
		t.Fatalf("OK result should not block optimization")
	}
}

func TestCheckRulePriorityOrder(t *testing.T) {
	// Cell overvoltage (rule 1) and undertemperature (rule 4) both fire;
	// rule 1 must win since it comes first.
	snap := nominalSnapshot()
	snap.CellVoltageMaxV = 3.70
	snap.TempMinC = -20

	result := Check(snap)
	if result.Action != ActionEmergencyStop {
		t.Fatalf("expected EMERGENCY_STOP from rule 1, got %s", result.Action)
	}
	if result.Severity != SeverityCritical {
		t.Fatalf("expected critical severity, got %s", result.Severity)
	}
}

func TestCheckBoundaryIsOK(t *testing.T) {
	// Equality at a limit is OK, not a violation. Each case puts one reading
	// on its limit and keeps the rest nominal: both cell extremes at once
	// would trip the cell-delta rule, and any temperature above
	// PackTempWarnC trips the warn rule, so PackTempWarnC is the highest
	// temperature that can still be OK.
	cases := []func(*telemetry.Snapshot){
		func(s *telemetry.Snapshot) { s.CellVoltageMaxV = CellVoltageMaxV; s.CellVoltageMinV = 3.60 },
		func(s *telemetry.Snapshot) { s.CellVoltageMinV = CellVoltageMinV; s.CellVoltageMaxV = 2.55 },
		func(s *telemetry.Snapshot) { s.TempMaxC = PackTempWarnC; s.TempMinC = PackTempMinC },
		func(s *telemetry.Snapshot) { s.Soc = SocAbsoluteMaxPct },
		func(s *telemetry.Snapshot) { s.Soc = SocAbsoluteMinPct },
	}

	for i, modify := range cases {
		snap := nominalSnapshot()
		modify(&snap)
		result := Check(snap)
		if !result.IsOK() {
			t.Fatalf("case %d: expected boundary values to be OK, got %+v", i, result)
		}
	}
}

func TestCheckEachRule(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*telemetry.Snapshot)
		want   Action
	}{
		{"cell overvoltage", func(s *telemetry.Snapshot) { s.CellVoltageMaxV = 3.70 }, ActionEmergencyStop},
		{"cell undervoltage", func(s *telemetry.Snapshot) { s.CellVoltageMinV = 2.0 }, ActionStopDischarge},
		{"pack overtemp", func(s *telemetry.Snapshot) { s.TempMaxC = 60 }, ActionEmergencyStop},
		{"pack undertemp", func(s *telemetry.Snapshot) { s.TempMinC = -15 }, ActionStopAll},
		{"soc too low", func(s *telemetry.Snapshot) { s.Soc = 2 }, ActionStopDischarge},
		{"soc too high", func(s *telemetry.Snapshot) { s.Soc = 99 }, ActionStopCharge},
		{"cell delta", func(s *telemetry.Snapshot) { s.CellVoltageMaxV = 3.40; s.CellVoltageMinV = 3.20 }, ActionReducePower},
		{"pack warn temp", func(s *telemetry.Snapshot) { s.TempMaxC = 50 }, ActionReducePower},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			snap := nominalSnapshot()
			c.modify(&snap)
			result := Check(snap)
			if result.Action != c.want {
				t.Fatalf("expected %s, got %s (%s)", c.want, result.Action, result.Reason)
			}
		})
	}
}

func TestRequiresImmediateStop(t *testing.T) {
	snap := nominalSnapshot()
	snap.TempMinC = -20
	result := Check(snap)
	if !result.RequiresImmediateStop() {
		t.Fatalf("STOP_ALL should require immediate stop")
	}
}
