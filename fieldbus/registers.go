package fieldbus

import "github.com/rasecorreia-star/lifo4-ems-sub001/modbusaccess"

// Register addresses below are the compiled default register map; a
// site-local mapping file overriding these is out of scope here.
const (
	telemetryBlockStartAddr uint16 = 0x0100
	telemetryBlockLength    uint16 = 0x19 // 0x0100..0x0118 inclusive, in registers

	powerSetpointAddr uint16 = 0x0000
)

// Coil addresses for the boolean control points.
const (
	coilEmergencyStop    uint16 = 0
	coilChargeEnable     uint16 = 1
	coilDischargeEnable  uint16 = 2
	coilGridContactor    uint16 = 3
	coilBackupContactor  uint16 = 4
)

// coilAddresses maps the named control coils onto their addresses.
var coilAddresses = map[string]uint16{
	"emergency_stop":    coilEmergencyStop,
	"charge_enable":     coilChargeEnable,
	"discharge_enable":  coilDischargeEnable,
	"grid_contactor":    coilGridContactor,
	"backup_contactor":  coilBackupContactor,
}

// telemetryBlock describes the contiguous block of holding registers that
// make up a single TelemetrySnapshot, matching the §6 register map table.
// All scale factors in the table are 1.0, so no Register here needs a
// ScalingFunc.
var telemetryBlock = modbusaccess.RegisterBlock{
	Name:         "telemetry",
	StartAddr:    telemetryBlockStartAddr,
	NumRegisters: telemetryBlockLength,
	Registers: map[string]modbusaccess.Register{
		"soc":              {StartAddr: 0x0100, DataType: modbusaccess.FloatType},
		"soh":              {StartAddr: 0x0102, DataType: modbusaccess.FloatType},
		"pack_voltage":     {StartAddr: 0x0104, DataType: modbusaccess.FloatType},
		"pack_current":     {StartAddr: 0x0106, DataType: modbusaccess.FloatType},
		"power":            {StartAddr: 0x0108, DataType: modbusaccess.FloatType},
		"temp_min":         {StartAddr: 0x010A, DataType: modbusaccess.FloatType},
		"temp_max":         {StartAddr: 0x010C, DataType: modbusaccess.FloatType},
		"temp_avg":         {StartAddr: 0x010E, DataType: modbusaccess.FloatType},
		"grid_freq":        {StartAddr: 0x0110, DataType: modbusaccess.FloatType},
		"grid_voltage":     {StartAddr: 0x0112, DataType: modbusaccess.FloatType},
		"cell_v_min":       {StartAddr: 0x0114, DataType: modbusaccess.FloatType},
		"cell_v_max":       {StartAddr: 0x0116, DataType: modbusaccess.FloatType},
		"cell_count":       {StartAddr: 0x0118, DataType: modbusaccess.Uint16Type},
	},
}

// powerSetpointRegister is the single register pair used to write the signed
// power setpoint.
var powerSetpointRegister = modbusaccess.Register{
	StartAddr: powerSetpointAddr,
	DataType:  modbusaccess.FloatType,
}
