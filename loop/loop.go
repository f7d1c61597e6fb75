// Package loop implements the fixed-period control-loop orchestrator.
// Grounded on controller.Controller.Run's select-loop shape (ticker-driven
// cycles, side-channel updates fed in between ticks via buffered channels)
// and main.go's top-level wiring order.
package loop

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rasecorreia-star/lifo4-ems-sub001/blackstart"
	"github.com/rasecorreia-star/lifo4-ems-sub001/broker"
	"github.com/rasecorreia-star/lifo4-ems-sub001/cache"
	"github.com/rasecorreia-star/lifo4-ems-sub001/control"
	"github.com/rasecorreia-star/lifo4-ems-sub001/decision"
	"github.com/rasecorreia-star/lifo4-ems-sub001/metrics"
	"github.com/rasecorreia-star/lifo4-ems-sub001/safety"
	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// SiteReading is the demand/solar/load context the economic and
// contractual layers need alongside the BESS's own telemetry snapshot.
// Pushed onto Loop.SiteReadings between ticks, matching the way
// Controller.SiteMeterReadings feeds sitePower into runControlLoop.
type SiteReading struct {
	DemandKw   float64
	SolarGenKw float64
	LoadKw     float64
}

// Heartbeater is the capability the loop needs to feed the watchdog.
type Heartbeater interface {
	Heartbeat()
}

// Fieldbus is the capability the loop needs from the BESS transport. A
// narrow interface rather than *fieldbus.Client so runCycle can be
// exercised against a fake in tests.
type Fieldbus interface {
	ReadTelemetry() (*telemetry.Snapshot, error)
	SetPower(kw float64) error
}

// Durable is the capability the loop needs from the local store.
type Durable interface {
	AppendTelemetry(snap telemetry.Snapshot)
	AppendDecision(d telemetry.Decision)
	AppendAlarm(severity, alarmType, message string, metadata map[string]any)
	EnqueueSync(topic, payload string, qos byte)
	RetentionSweep(now time.Time)
}

// GridFSM is the capability the loop needs from the black-start state
// machine.
type GridFSM interface {
	Process(now time.Time, freqHz, gridVoltageV, soc float64) blackstart.Status
}

// PriceCache is the capability the loop needs from the cloud setpoint/price
// cache.
type PriceCache interface {
	Prices(now time.Time) (cache.PriceTable, bool)
	IsCloudSetpointValid(now time.Time) bool
	CloudSetpoint(now time.Time) cache.CloudSetpoint
}

// Messenger is the capability the loop needs from the messaging broker.
type Messenger interface {
	Publish(suffix broker.Suffix, payload []byte)
	IsConnected() bool
	BufferedCount() int
	Topic(suffix broker.Suffix) string
}

// Syncer is the capability the loop needs from the offline sync manager.
type Syncer interface {
	Sync() (int, error)
}

// Config bundles the tunables for one site's control loop.
type Config struct {
	Period         time.Duration
	NominalPowerKw float64

	Arbitrage   control.ArbitrageParams
	PeakShaving control.PeakShavingParams
	Solar       control.SolarParams

	RetentionSweepEvery int // in cycles; 0 disables
}

// Loop owns one site's control cycle: read, persist, check safety, decide,
// write, publish, sync, heartbeat.
type Loop struct {
	cfg Config

	fieldbus      Fieldbus
	store         Durable
	blackstartFSM GridFSM
	cache         PriceCache
	broker        Messenger
	sync          Syncer
	watchdog      Heartbeater
	metrics       *metrics.Registry

	peakShavingState control.PeakShavingState

	SiteReadings chan SiteReading

	lastSiteReading SiteReading
	cycleCount      int

	logger *slog.Logger
}

// New assembles a Loop from its collaborators.
func New(cfg Config, fb Fieldbus, st Durable, fsm GridFSM, cacheMgr PriceCache, brk Messenger, syncMgr Syncer, wd Heartbeater, reg *metrics.Registry) *Loop {
	return &Loop{
		cfg:           cfg,
		fieldbus:      fb,
		store:         st,
		blackstartFSM: fsm,
		cache:         cacheMgr,
		broker:        brk,
		sync:          syncMgr,
		watchdog:      wd,
		metrics:       reg,
		SiteReadings:  make(chan SiteReading, 1),
		logger:        slog.Default().With("component", "loop"),
	}
}

// Run drives the cycle off tickerChan until ctx is cancelled, matching
// Controller.Run's ctx.Done()/tickerChan select shape.
func (l *Loop) Run(ctx context.Context, tickerChan <-chan time.Time) {
	l.logger.Info("control loop starting", "period", l.cfg.Period)
	for {
		select {
		case <-ctx.Done():
			return
		case reading := <-l.SiteReadings:
			l.lastSiteReading = reading
		case t := <-tickerChan:
			start := time.Now()
			l.runCycle(t)
			if l.metrics != nil {
				l.metrics.CycleDuration.Observe(time.Since(start).Seconds())
			}
		}
	}
}

// runCycle executes one control cycle's thirteen steps.
func (l *Loop) runCycle(t time.Time) {
	// 1-3: read telemetry; a failed read records the error and feeds the
	// watchdog anyway - a stalled fieldbus must not also starve the
	// watchdog, since that would turn a recoverable comms fault into an
	// unnecessary process restart.
	snap, err := l.fieldbus.ReadTelemetry()
	if err != nil {
		l.logger.Error("fieldbus read failed", "error", err)
		if l.metrics != nil {
			l.metrics.FieldbusErrors.Inc()
		}
		l.watchdog.Heartbeat()
		return
	}

	// 4: durable.append_telemetry
	l.store.AppendTelemetry(*snap)

	// publish current telemetry; the topic is not buffered when offline, so
	// a successful publish here is also the sync manager's drain trigger.
	telemetryPublished := false
	if l.broker.IsConnected() {
		l.broker.Publish(broker.SuffixTelemetry, telemetryJSON(*snap, t))
		telemetryPublished = true
	}

	// 5: safety check
	safetyResult := safety.Check(*snap)
	if safetyResult.Action != safety.ActionOK {
		l.store.AppendAlarm(string(safetyResult.Severity), string(safetyResult.Action), safetyResult.Reason, map[string]any{
			"violated_value": safetyResult.ViolatedValue,
			"limit":          safetyResult.Limit,
		})
		if l.metrics != nil {
			l.metrics.SafetyViolations.Inc()
		}
	}

	// 6: grid status
	gridStatus := l.blackstartFSM.Process(t, snap.GridFreqHz, snap.GridVoltageV, snap.Soc)

	// 7: decision
	localHour := t.Local().Hour()
	reading := l.lastSiteReading
	d := decision.Decide(decision.Inputs{
		Snapshot:       *snap,
		SafetyResult:   safetyResult,
		GridStatus:     gridStatus,
		NominalPowerKw: l.cfg.NominalPowerKw,
		Contractual: func() telemetry.Decision {
			return control.PeakShaving(l.cfg.PeakShaving, &l.peakShavingState, localHour, reading.DemandKw, snap.Soc)
		},
		Economic: func() telemetry.Decision {
			priceTable, usingFallback := l.cache.Prices(t)
			econ := control.Arbitrage(l.cfg.Arbitrage, localHour, priceTable[localHour], usingFallback, snap.Soc)
			if econ.Action != telemetry.ActionIdle {
				return econ
			}
			return control.Solar(l.cfg.Solar, reading.SolarGenKw, reading.LoadKw, snap.Soc)
		},
		CloudValid: l.cache.IsCloudSetpointValid(t),
		Cloud:      l.cache.CloudSetpoint(t),
	})
	d.Time = t

	// 8: write power if non-idle
	if d.Action != telemetry.ActionIdle {
		if err := l.fieldbus.SetPower(d.SignedPowerKw()); err != nil {
			l.logger.Error("failed to write power setpoint", "error", err)
			if l.metrics != nil {
				l.metrics.FieldbusErrors.Inc()
			}
		}
	}

	// 9: append decision; publish if connected, else enqueue for sync
	l.store.AppendDecision(d)
	if l.metrics != nil {
		l.metrics.DecisionsIssued.Inc()
	}
	l.publishOrQueueDecision(d)

	// 10: on each successful telemetry publish, drain any previously queued rows
	if telemetryPublished {
		if n, err := l.sync.Sync(); err != nil {
			l.logger.Warn("sync drain failed", "error", err)
		} else if n > 0 && l.metrics != nil {
			l.metrics.SyncedRows.Add(int64(n))
		}
	}

	// 11: heartbeat publish
	l.broker.Publish(broker.SuffixHeartbeat, []byte(string(gridStatus.State)))

	// 12: watchdog feed
	l.watchdog.Heartbeat()

	// periodic housekeeping
	l.cycleCount++
	if l.cfg.RetentionSweepEvery > 0 && l.cycleCount%l.cfg.RetentionSweepEvery == 0 {
		l.store.RetentionSweep(t)
	}
	if l.metrics != nil {
		l.metrics.OfflineBufferDepth.Set(int64(l.broker.BufferedCount()))
	}
}

// decisionJSON renders a decision for publication. Marshal errors are
// treated as unreachable: Decision holds only plain scalars and strings.
func decisionJSON(d telemetry.Decision) []byte {
	payload, err := json.Marshal(struct {
		Time       time.Time `json:"time"`
		Action     string    `json:"action"`
		PowerKw    float64   `json:"power_kw"`
		Reason     string    `json:"reason"`
		Layer      string    `json:"layer"`
		Confidence float64   `json:"confidence"`
	}{
		Time:       d.Time,
		Action:     string(d.Action),
		PowerKw:    d.PowerKw,
		Reason:     d.Reason,
		Layer:      string(d.Layer),
		Confidence: d.Confidence,
	})
	if err != nil {
		return []byte("{}")
	}
	return payload
}

// telemetryJSON renders a snapshot for publication on the telemetry topic.
// Marshal errors are treated as unreachable: Snapshot holds only plain
// scalars.
func telemetryJSON(snap telemetry.Snapshot, t time.Time) []byte {
	payload, err := json.Marshal(struct {
		Time            time.Time `json:"time"`
		Soc             float64   `json:"soc"`
		PackVoltageV    float64   `json:"pack_voltage_v"`
		PackCurrentA    float64   `json:"pack_current_a"`
		PowerKw         float64   `json:"power_kw"`
		GridFreqHz      float64   `json:"grid_freq_hz"`
		GridVoltageV    float64   `json:"grid_voltage_v"`
		TempMaxC        float64   `json:"temp_max_c"`
		CellVoltageMinV float64   `json:"cell_voltage_min_v"`
		CellVoltageMaxV float64   `json:"cell_voltage_max_v"`
	}{
		Time:            t,
		Soc:             snap.Soc,
		PackVoltageV:    snap.PackVoltageV,
		PackCurrentA:    snap.PackCurrentA,
		PowerKw:         snap.PowerKw,
		GridFreqHz:      snap.GridFreqHz,
		GridVoltageV:    snap.GridVoltageV,
		TempMaxC:        snap.TempMaxC,
		CellVoltageMinV: snap.CellVoltageMinV,
		CellVoltageMaxV: snap.CellVoltageMaxV,
	})
	if err != nil {
		return []byte("{}")
	}
	return payload
}

func (l *Loop) publishOrQueueDecision(d telemetry.Decision) {
	payload := decisionJSON(d)
	if l.broker.IsConnected() {
		l.broker.Publish(broker.SuffixDecisions, payload)
		return
	}
	l.store.EnqueueSync(l.broker.Topic(broker.SuffixDecisions), string(payload), broker.QoS1)
}
