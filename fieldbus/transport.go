// Package fieldbus provides the Modbus transport used to read battery
// telemetry and write power setpoints/coils. Grounded on two packages
// that the original BESS controller keeps side-by-side: modbus/
// (a reconnect-on-error wrapper around github.com/simonvetter/modbus, used
// here for writes) and modbusaccess/ (register-block decode over
// github.com/grid-x/modbus, used here for reads). Retry-with-backoff around
// reads is new, grounded on the original modbus_client.py's
// _read_with_retry.
package fieldbus

import (
	"fmt"
	"log/slog"
	"time"

	gridxmodbus "github.com/grid-x/modbus"
	svmodbus "github.com/simonvetter/modbus"

	"github.com/rasecorreia-star/lifo4-ems-sub001/modbusaccess"
	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// Mode selects the physical transport used for the read-side grid-x/modbus
// connection: TCP or serial RTU.
type Mode string

const (
	ModeTCP    Mode = "tcp"
	ModeSerial Mode = "serial"
)

// RetryConfig bounds the exponential backoff applied to telemetry reads.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
}

// DefaultRetryConfig matches the original client's defaults: a handful of
// attempts with a short base delay, each attempt individually timed out.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		Timeout:     2 * time.Second,
	}
}

// SerialConfig configures the RTU transport when Mode is ModeSerial.
type SerialConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	SlaveID  byte
}

// Client provides read/write access to a single BESS's fieldbus. It hides
// two underlying open source modbus libraries: reads go over
// github.com/grid-x/modbus (TCP or RTU, chosen by Mode) via the
// modbusaccess register-block decoder; writes (power setpoint, coils) go
// over github.com/simonvetter/modbus, which was already wired for the
// power-pack write path and which exposes native float32/coil methods.
type Client struct {
	siteID string
	mode   Mode
	host   string
	serial SerialConfig
	retry  RetryConfig

	readHandler gridxmodbus.ClientHandler
	readClient  gridxmodbus.Client

	writeClient     *svmodbus.ModbusClient
	shouldReconnect bool // writeClient is 'dirty' and is recreated lazily on next write

	errorCount int

	logger *slog.Logger
}

// NewTCP creates a fieldbus Client talking to a device over TCP.
func NewTCP(siteID, host string, retry RetryConfig) (*Client, error) {
	c := &Client{
		siteID:          siteID,
		mode:            ModeTCP,
		host:            host,
		retry:           retry,
		shouldReconnect: true, // lazily created on first write
		logger:          slog.Default().With("site_id", siteID, "host", host),
	}
	if err := c.connectRead(); err != nil {
		return nil, fmt.Errorf("connect read transport: %w", err)
	}
	return c, nil
}

// NewSerial creates a fieldbus Client talking to a device over RTU/serial.
func NewSerial(siteID string, serial SerialConfig, retry RetryConfig) (*Client, error) {
	c := &Client{
		siteID:          siteID,
		mode:            ModeSerial,
		serial:          serial,
		retry:           retry,
		shouldReconnect: true,
		logger:          slog.Default().With("site_id", siteID, "device", serial.Device),
	}
	if err := c.connectRead(); err != nil {
		return nil, fmt.Errorf("connect read transport: %w", err)
	}
	return c, nil
}

func (c *Client) connectRead() error {
	switch c.mode {
	case ModeTCP:
		handler := gridxmodbus.NewTCPClientHandler(c.host)
		handler.Timeout = c.retry.Timeout
		if err := handler.Connect(); err != nil {
			return fmt.Errorf("connect tcp: %w", err)
		}
		c.readHandler = handler
		c.readClient = gridxmodbus.NewClient(handler)
	case ModeSerial:
		handler := gridxmodbus.NewRTUClientHandler(c.serial.Device)
		handler.BaudRate = c.serial.BaudRate
		handler.DataBits = c.serial.DataBits
		handler.StopBits = c.serial.StopBits
		handler.SlaveId = c.serial.SlaveID
		handler.Timeout = c.retry.Timeout
		if err := handler.Connect(); err != nil {
			return fmt.Errorf("connect serial: %w", err)
		}
		c.readHandler = handler
		c.readClient = gridxmodbus.NewClient(handler)
	default:
		return fmt.Errorf("unknown mode %q", c.mode)
	}
	return nil
}

func (c *Client) reconnectRead() error {
	if closer, ok := c.readHandler.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return c.connectRead()
}

// createWriteClient creates the simonvetter/modbus client with sensible
// defaults and connects, matching modbus.Client.createSubClient's shape.
func (c *Client) createWriteClient() error {
	url := fmt.Sprintf("tcp://%s", c.host)
	if c.mode == ModeSerial {
		url = fmt.Sprintf("rtu://%s", c.serial.Device)
	}

	subClient, err := svmodbus.NewClient(&svmodbus.ClientConfiguration{
		URL:     url,
		Timeout: c.retry.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create modbus client: %w", err)
	}
	if err := subClient.Open(); err != nil {
		return fmt.Errorf("open modbus client: %w", err)
	}
	c.writeClient = subClient
	return nil
}

func (c *Client) setShouldReconnect() {
	c.shouldReconnect = true
}

func (c *Client) reconnectWriteIfNeccesary() error {
	if !c.shouldReconnect {
		return nil
	}
	if c.writeClient != nil {
		c.writeClient.Close()
	}
	if err := c.createWriteClient(); err != nil {
		return err
	}
	c.shouldReconnect = false
	c.logger.Info("Reconnected modbus write client")
	return nil
}

// ReadTelemetry reads the telemetry register block with retry+backoff. Every
// failed attempt increments the per-site error counter and reconnects the
// read transport; on exhausting all attempts it returns a nil snapshot
// together with the wrapped last error. Callers must treat a nil snapshot as
// "no fresh telemetry this cycle", not an error to propagate.
func (c *Client) ReadTelemetry() (*telemetry.Snapshot, error) {
	var snap telemetry.Snapshot
	attempts := 0

	err := retryWithBackoff(c.retry, func() error {
		attempts++
		metrics, err := modbusaccess.PollBlock(c.readClient, nil, telemetryBlock)
		if err != nil {
			c.errorCount++
			c.logger.Warn("Telemetry read failed, will retry", "attempt", attempts, "error", err)
			if reconnErr := c.reconnectRead(); reconnErr != nil {
				c.logger.Error("Failed to reconnect read transport", "error", reconnErr)
			}
			return err
		}
		snap = decodeSnapshot(metrics)
		return nil
	})
	if err != nil {
		c.logger.Error("Telemetry read exhausted retries", "attempts", c.retry.MaxAttempts, "error", err)
		return nil, fmt.Errorf("read telemetry after %d attempts: %w", c.retry.MaxAttempts, err)
	}

	return &snap, nil
}

// ErrorCount returns the number of fieldbus errors observed since startup,
// tagged by site via the Client's logger context.
func (c *Client) ErrorCount() int {
	return c.errorCount
}

func decodeSnapshot(metrics map[string]interface{}) telemetry.Snapshot {
	f := func(key string) float64 {
		v, ok := metrics[key]
		if !ok {
			return 0
		}
		return v.(float64)
	}

	return telemetry.Snapshot{
		Time:                 time.Now().UTC(),
		Soc:                  f("soc"),
		Soh:                  f("soh"),
		PackVoltageV:         f("pack_voltage"),
		PackCurrentA:         f("pack_current"),
		PowerKw:              f("power"),
		TempMinC:             f("temp_min"),
		TempMaxC:             f("temp_max"),
		TempAvgC:             f("temp_avg"),
		GridFreqHz:           f("grid_freq"),
		GridVoltageV:         f("grid_voltage"),
		CellVoltageMinV:      f("cell_v_min"),
		CellVoltageMaxV:      f("cell_v_max"),
	}
}

// SetPower writes the signed power setpoint (CHARGE = +, DISCHARGE = -) in kW.
func (c *Client) SetPower(kw float64) error {
	if err := c.reconnectWriteIfNeccesary(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	if err := c.writeClient.WriteFloat32(powerSetpointAddr, float32(kw)); err != nil {
		c.setShouldReconnect()
		c.errorCount++
		return fmt.Errorf("write power setpoint: %w", err)
	}
	return nil
}

// EmergencyStop asserts the emergency_stop coil.
func (c *Client) EmergencyStop() error {
	return c.SetCoil("emergency_stop", true)
}

// SetCoil writes a named boolean control point.
func (c *Client) SetCoil(name string, val bool) error {
	addr, ok := coilAddresses[name]
	if !ok {
		return fmt.Errorf("unknown coil %q", name)
	}

	if err := c.reconnectWriteIfNeccesary(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	if err := c.writeClient.WriteCoil(addr, val); err != nil {
		c.setShouldReconnect()
		c.errorCount++
		return fmt.Errorf("write coil %q: %w", name, err)
	}
	return nil
}
