// Command edgectl is the entry point for the BESS edge controller. It wires
// the fieldbus, durable store, black-start FSM, decision engine, cloud
// cache, messaging broker, sync manager, watchdog, and the control loop
// together and runs until interrupted, matching main.go's
// flag-parse/context-cancel/signal-wait shape.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/rasecorreia-star/lifo4-ems-sub001/blackstart"
	"github.com/rasecorreia-star/lifo4-ems-sub001/broker"
	"github.com/rasecorreia-star/lifo4-ems-sub001/cache"
	"github.com/rasecorreia-star/lifo4-ems-sub001/config"
	"github.com/rasecorreia-star/lifo4-ems-sub001/control"
	"github.com/rasecorreia-star/lifo4-ems-sub001/fieldbus"
	"github.com/rasecorreia-star/lifo4-ems-sub001/loop"
	"github.com/rasecorreia-star/lifo4-ems-sub001/metrics"
	"github.com/rasecorreia-star/lifo4-ems-sub001/store"
	syncmgr "github.com/rasecorreia-star/lifo4-ems-sub001/sync"
	"github.com/rasecorreia-star/lifo4-ems-sub001/watchdog"
)

// storeSyncAdapter narrows *store.Store to sync.QueueStore's plain Row
// shape, so the sync package stays free of a gorm dependency.
type storeSyncAdapter struct {
	st *store.Store
}

func (a storeSyncAdapter) FetchPendingSync(limit int) ([]syncmgr.Row, error) {
	rows, err := a.st.FetchPendingSync(limit)
	if err != nil {
		return nil, err
	}
	out := make([]syncmgr.Row, len(rows))
	for i, r := range rows {
		out[i] = syncmgr.Row{ID: r.ID, Topic: r.Topic, Payload: r.Payload, Qos: r.Qos}
	}
	return out, nil
}

func (a storeSyncAdapter) MarkSynced(ids []uint) error {
	return a.st.MarkSynced(ids)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	var configFilePath string
	flag.StringVar(&configFilePath, "f", "./config.json", "Specify config file path")
	flag.Parse()

	slog.Info("starting", "config_file", configFilePath)

	cfg, err := config.Read(configFilePath)
	if err != nil {
		slog.Error("failed to read config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	fb, err := newFieldbusClient(cfg)
	if err != nil {
		slog.Error("failed to create fieldbus client", "error", err)
		os.Exit(1)
	}

	retentionPolicy := store.RetentionPolicy{
		TelemetryHours:        orDefault(cfg.Store.TelemetryHours, 72),
		DecisionDays:          orDefault(cfg.Store.DecisionDays, 30),
		AcknowledgedAlarmDays: orDefault(cfg.Store.AcknowledgedAlarmDays, 30),
		SentSyncQueueDays:     orDefault(cfg.Store.SentSyncQueueDays, 7),
	}
	db, err := store.Open(cfg.Store.Path, retentionPolicy)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	fsm := blackstart.New(fb, db)
	cacheMgr := cache.New()

	brokerCfg := broker.DefaultConfig(cfg.Broker.URL, "edgectl-"+cfg.Site.SiteID.String(), cfg.Site.SiteID.String(), cfg.Broker.TopicRoot)
	if cfg.Broker.OfflineBufferSize > 0 {
		brokerCfg.OfflineBufferSize = cfg.Broker.OfflineBufferSize
	}
	if creds, ok := cfg.BrokerCredentials(); ok {
		brokerCfg.Credentials = creds
	}
	brk := broker.New(brokerCfg)
	if err := brk.Connect(); err != nil {
		slog.Error("failed to connect to broker", "error", err)
	}

	syncMgr := syncmgr.New(storeSyncAdapter{st: db}, brk)

	wd := watchdog.New(cfg.WatchdogTimeout(), nil)
	go wd.Run(ctx)

	reg := metrics.NewRegistry()

	l := loop.New(loop.Config{
		Period:         cfg.CyclePeriod(),
		NominalPowerKw: cfg.Site.NominalPowerKw,
		Arbitrage: control.ArbitrageParams{
			BuyThresholdPrice:  cfg.Arbitrage.BuyThresholdPrice,
			SellThresholdPrice: cfg.Arbitrage.SellThresholdPrice,
			MinSocForSellPct:   cfg.Arbitrage.MinSocForSellPct,
			MaxSocForBuyPct:    cfg.Arbitrage.MaxSocForBuyPct,
			MaxChargeKw:        cfg.Arbitrage.MaxChargeKw,
			MaxDischargeKw:     cfg.Arbitrage.MaxDischargeKw,
		},
		PeakShaving: control.PeakShavingParams{
			DemandLimitKw:   cfg.PeakShaving.DemandLimitKw,
			TriggerPercent:  cfg.PeakShaving.TriggerPercent,
			MinSocPct:       cfg.PeakShaving.MinSocPct,
			RechargeStartHr: cfg.PeakShaving.RechargeStartHr,
			RechargeEndHr:   cfg.PeakShaving.RechargeEndHr,
			MaxChargeKw:     cfg.PeakShaving.MaxChargeKw,
			MaxDischargeKw:  cfg.PeakShaving.MaxDischargeKw,
		},
		Solar: control.SolarParams{
			MinExcessKw:      cfg.Solar.MinExcessKw,
			TargetSocPct:     cfg.Solar.TargetSocPct,
			MaxChargeKw:      cfg.Solar.MaxChargeKw,
			NightDischargeOn: cfg.Solar.NightDischargeOn,
			MaxDischargeKw:   cfg.Solar.MaxDischargeKw,
		},
		RetentionSweepEvery: 720, // roughly hourly at a 5s period
	}, fb, db, fsm, cacheMgr, brk, syncMgr, wd, reg)

	ticker := time.NewTicker(cfg.CyclePeriod())
	defer ticker.Stop()
	go l.Run(ctx, ticker.C)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan

	cancel()
	time.Sleep(100 * time.Millisecond)

	brk.Disconnect()
	if err := db.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}

	slog.Info("exiting")
	os.Exit(0)
}

func newFieldbusClient(cfg config.Config) (*fieldbus.Client, error) {
	retry := fieldbus.RetryConfig{
		MaxAttempts: orDefault(cfg.Fieldbus.RetryMaxAttempts, 3),
		BaseDelay:   time.Duration(orDefault(cfg.Fieldbus.RetryBaseDelayMs, 250)) * time.Millisecond,
		Timeout:     2 * time.Second,
	}

	switch cfg.Fieldbus.Mode {
	case "serial":
		return fieldbus.NewSerial(cfg.Site.SiteID.String(), fieldbus.SerialConfig{
			Device:   cfg.Fieldbus.SerialDevice,
			BaudRate: cfg.Fieldbus.SerialBaudRate,
			DataBits: 8,
			StopBits: 1,
			SlaveID:  cfg.Fieldbus.SerialSlaveID,
		}, retry)
	default:
		return fieldbus.NewTCP(cfg.Site.SiteID.String(), cfg.Fieldbus.Host, retry)
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
