// Package cache holds the five TTL-tagged entries of cloud-sourced data the
// control loop consults each cycle: price table, load forecast, solar
// forecast, site optimization config, and the cloud setpoint. Grounded on
// modo/modo.go's single sync.RWMutex guarding a client's last-known-value
// fields, generalized from two imbalance-price fields to five named cache
// entries, and on the original cache_manager.py's generic CacheEntry/TTL
// design.
package cache

import (
	"sync"
	"time"
)

// Entry is a generic, TTL-tagged last-known-value cache slot.
type Entry[T any] struct {
	value       T
	hasValue    bool
	updatedAt   time.Time
	ttl         time.Duration // zero means the entry never goes stale
	fallback    T
	hasFallback bool
}

// NewEntry creates an entry with no fallback value.
func NewEntry[T any](ttl time.Duration) *Entry[T] {
	return &Entry[T]{ttl: ttl}
}

// NewEntryWithFallback creates an entry that returns fallback once stale.
func NewEntryWithFallback[T any](ttl time.Duration, fallback T) *Entry[T] {
	return &Entry[T]{ttl: ttl, fallback: fallback, hasFallback: true}
}

// Update stamps updated-at to now and replaces the held value.
func (e *Entry[T]) Update(value T, now time.Time) {
	e.value = value
	e.hasValue = true
	e.updatedAt = now
}

// AgeHours returns how long it has been since the entry was last updated.
func (e *Entry[T]) AgeHours(now time.Time) float64 {
	if !e.hasValue {
		return -1
	}
	return now.Sub(e.updatedAt).Hours()
}

// IsStale reports whether the entry is too old to trust: no value has ever
// been set, or the TTL (when finite) has elapsed.
func (e *Entry[T]) IsStale(now time.Time) bool {
	if !e.hasValue {
		return true
	}
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.updatedAt) > e.ttl
}

// IsFresh is the complement of IsStale.
func (e *Entry[T]) IsFresh(now time.Time) bool {
	return !e.IsStale(now)
}

// IsValid reports whether the entry holds a value and that value is fresh.
func (e *Entry[T]) IsValid(now time.Time) bool {
	return e.hasValue && e.IsFresh(now)
}

// Get returns the fallback when the entry is stale and a fallback is
// configured; otherwise it returns the held value (even if stale, absent a
// fallback - per the cache staleness law).
func (e *Entry[T]) Get(now time.Time) T {
	if e.IsStale(now) && e.hasFallback {
		return e.fallback
	}
	return e.value
}

const (
	pricesTTL             = 48 * time.Hour
	loadForecastTTL       = 14 * 24 * time.Hour
	solarForecastTTL      = 24 * time.Hour
	optimizationConfigTTL = 0 // infinite, retained until replaced
	cloudSetpointTTL      = 15 * time.Minute
)

// PriceTable is an hourly price table, one entry per local hour of day.
type PriceTable [24]float64

// defaultPriceTable is the built-in fallback used when no fresher price
// table has been delivered, matching the original cache_manager.py's
// DEFAULT_PRICES fallback.
var defaultPriceTable = PriceTable{
	0.20, 0.18, 0.17, 0.16, 0.16, 0.17,
	0.22, 0.28, 0.32, 0.30, 0.27, 0.25,
	0.24, 0.24, 0.25, 0.27, 0.32, 0.40,
	0.45, 0.42, 0.36, 0.30, 0.25, 0.22,
}

// OptimizationConfig is a freeform bag of site-level optimization tunables
// delivered from the cloud; its shape is not otherwise constrained here.
type OptimizationConfig map[string]float64

// CloudSetpointAction mirrors telemetry.Action without importing it, so the
// cache package has no dependency on the decision layer.
type CloudSetpointAction string

const (
	CloudSetpointCharge    CloudSetpointAction = "CHARGE"
	CloudSetpointDischarge CloudSetpointAction = "DISCHARGE"
	CloudSetpointIdle      CloudSetpointAction = "IDLE"
)

// CloudSetpoint is the most recent dispatch request from the cloud layer.
type CloudSetpoint struct {
	Action  CloudSetpointAction
	PowerKw float64
}

// Manager holds the five cache entries behind a single lock, matching a
// one-lock-per-client idiom rather than a lock per field.
type Manager struct {
	mu sync.RWMutex

	prices             *Entry[PriceTable]
	loadForecast       *Entry[PriceTable]
	solarForecast      *Entry[PriceTable]
	optimizationConfig *Entry[OptimizationConfig]
	cloudSetpoint      *Entry[CloudSetpoint]
}

// New creates a Manager with the fixed per-kind TTLs and the default price
// table as the price entry's fallback.
func New() *Manager {
	return &Manager{
		prices:             NewEntryWithFallback(pricesTTL, defaultPriceTable),
		loadForecast:       NewEntry[PriceTable](loadForecastTTL),
		solarForecast:      NewEntry[PriceTable](solarForecastTTL),
		optimizationConfig: NewEntry[OptimizationConfig](optimizationConfigTTL),
		cloudSetpoint:      NewEntry[CloudSetpoint](cloudSetpointTTL),
	}
}

func (m *Manager) UpdatePrices(table PriceTable, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices.Update(table, now)
}

// Prices returns the current price table and whether it is the fallback
// (stale) table, so callers can annotate their reasons accordingly.
func (m *Manager) Prices(now time.Time) (table PriceTable, usingFallback bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prices.Get(now), m.prices.IsStale(now)
}

func (m *Manager) UpdateLoadForecast(table PriceTable, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadForecast.Update(table, now)
}

func (m *Manager) LoadForecast(now time.Time) PriceTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadForecast.Get(now)
}

func (m *Manager) UpdateSolarForecast(table PriceTable, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solarForecast.Update(table, now)
}

func (m *Manager) SolarForecast(now time.Time) PriceTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.solarForecast.Get(now)
}

func (m *Manager) UpdateOptimizationConfig(cfg OptimizationConfig, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optimizationConfig.Update(cfg, now)
}

func (m *Manager) OptimizationConfig(now time.Time) OptimizationConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.optimizationConfig.Get(now)
}

func (m *Manager) UpdateCloudSetpoint(setpoint CloudSetpoint, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cloudSetpoint.Update(setpoint, now)
}

func (m *Manager) CloudSetpoint(now time.Time) CloudSetpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cloudSetpoint.Get(now)
}

// IsCloudSetpointValid reports whether the cloud setpoint is present and fresh.
func (m *Manager) IsCloudSetpointValid(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cloudSetpoint.IsValid(now)
}

// Status summarizes the freshness of every cache entry, for logging/metrics.
type Status struct {
	PricesStale             bool
	LoadForecastStale       bool
	SolarForecastStale      bool
	OptimizationConfigStale bool
	CloudSetpointValid      bool
}

func (m *Manager) Status(now time.Time) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		PricesStale:             m.prices.IsStale(now),
		LoadForecastStale:       m.loadForecast.IsStale(now),
		SolarForecastStale:      m.solarForecast.IsStale(now),
		OptimizationConfigStale: m.optimizationConfig.IsStale(now),
		CloudSetpointValid:      m.cloudSetpoint.IsValid(now),
	}
}
