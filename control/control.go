// Package control implements the layer-3/layer-4 optimizer functions: arbitrage,
// peak shaving, and solar self-consumption. Grounded on
// controller/comp_*.go's free functions, which take time + state and return a
// tentative decision rather than mutating a receiver. Unlike the original
// controlComponent (which carries min/max/target power bounds for
// cross-component arbitration), these return a plain telemetry.Decision:
// arbitration across layers is the decision package's job, not this one's.
package control

import "github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"

// idle builds the IDLE decision every controller returns when it has
// nothing to do, tagging it with the layer that produced it.
func idle(layer telemetry.Layer, reason string) telemetry.Decision {
	return telemetry.Decision{
		Action:     telemetry.ActionIdle,
		PowerKw:    0,
		Reason:     reason,
		Layer:      layer,
		Confidence: 1,
	}
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// annotateStale appends a fallback/staleness note to a reason string so
// operators can see when arbitrage is pricing off the fallback table rather
// than a fresh cloud delivery.
func annotateStale(reason string, usingFallback bool) string {
	if usingFallback {
		return reason + " (using fallback price table)"
	}
	return reason
}
