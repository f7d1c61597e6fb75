package control

import (
	"fmt"
	"math"

	"github.com/rasecorreia-star/lifo4-ems-sub001/telemetry"
)

// ArbitrageParams holds the tunables for the price-driven charge/discharge
// decision, grounded on the original arbitrage.py's threshold/rate config.
type ArbitrageParams struct {
	BuyThresholdPrice  float64 // charge when price is below this
	SellThresholdPrice float64 // discharge when price is above this
	MinSocForSellPct   float64
	MaxSocForBuyPct    float64
	MaxChargeKw        float64
	MaxDischargeKw     float64
}

// Arbitrage returns the tentative charge/discharge/idle decision for the
// current local hour's price.
func Arbitrage(params ArbitrageParams, localHour int, price float64, usingFallback bool, soc float64) telemetry.Decision {
	if price < params.BuyThresholdPrice && soc < params.MaxSocForBuyPct {
		factor := math.Max(0.5, 1-price/params.BuyThresholdPrice)
		reason := fmt.Sprintf("arbitrage buy: price %.4f < threshold %.4f at hour %d, rate factor %.2f", price, params.BuyThresholdPrice, localHour, factor)
		return telemetry.Decision{
			Action:     telemetry.ActionCharge,
			PowerKw:    params.MaxChargeKw * factor,
			Reason:     annotateStale(reason, usingFallback),
			Layer:      telemetry.LayerEconomic,
			Confidence: 1,
		}
	}

	if price > params.SellThresholdPrice && soc > params.MinSocForSellPct {
		factor := math.Min(1.0, 0.5+(price-params.SellThresholdPrice)/params.SellThresholdPrice)
		reason := fmt.Sprintf("arbitrage sell: price %.4f > threshold %.4f at hour %d, rate factor %.2f", price, params.SellThresholdPrice, localHour, factor)
		return telemetry.Decision{
			Action:     telemetry.ActionDischarge,
			PowerKw:    params.MaxDischargeKw * factor,
			Reason:     annotateStale(reason, usingFallback),
			Layer:      telemetry.LayerEconomic,
			Confidence: 1,
		}
	}

	reason := fmt.Sprintf("arbitrage idle: price %.4f at hour %d within thresholds [%.4f, %.4f]", price, localHour, params.BuyThresholdPrice, params.SellThresholdPrice)
	return idle(telemetry.LayerEconomic, annotateStale(reason, usingFallback))
}
