package safety

// These are the hardcoded battery safety limits. They are compile-time
// constants with no exported mutator: nothing delivered at runtime (config
// file, cloud setpoint, operator command) is allowed to influence them. The
// black-start package imports the grid/blackstart subset directly rather
// than duplicating the numbers.
const (
	CellVoltageMinV = 2.5
	CellVoltageMaxV = 3.65
	CellDeltaMaxMv  = 100.0

	PackTempMinC  = -10.0
	PackTempMaxC  = 55.0
	PackTempWarnC = 45.0

	SocAbsoluteMinPct = 5.0
	SocAbsoluteMaxPct = 98.0

	GridFreqMinHz   = 49.0
	GridFreqMaxHz   = 51.0
	GridVoltageMinV = 180.0
	GridVoltageMaxV = 265.0

	BlackstartFreqMinHz       = 49.5
	BlackstartVoltageMinV     = 180.0
	BlackstartVoltageRestoreV = 210.0
	BlackstartConfirmReadings = 2
)
