package warn

import (
	"math"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Phase 2 scores order book structure from a fresh depth snapshot.
const (
	phase2Cap = 65

	imbalanceScore        = 35
	imbalanceDepth        = 10  // levels per side
	imbalanceHighRatio    = 2.0 // bid/ask qty ratio that scores
	imbalanceLowRatio     = 0.5
	imbalanceBullishRatio = 1.5 // direction thresholds are looser
	imbalanceBearishRatio = 0.67

	microScore          = 30
	spreadDeviationMax  = 0.5 // fraction of the 10-period average spread
	abnormalSizeFactor  = 3.0 // level size vs average level size
	icebergRunLen       = 3
	icebergPriceBandPct = 0.001 // 0.1%
	icebergSizeVariance = 0.2   // under 20% size variance
)

// scorePhase2 evaluates bid/ask imbalance and microstructure anomalies,
// pushing the snapshot's spread into the history first.
func scorePhase2(h *symbolHistory, book *models.OrderBookSnapshot) phaseResult {
	res := phaseResult{direction: models.Neutral}
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return res
	}

	spread := book.Spread()
	spreadBaseline := h.spread.mean()
	h.spread.push(spread)

	// Bid/ask imbalance over the top levels.
	bidQty := book.TopBidQty(imbalanceDepth)
	askQty := book.TopAskQty(imbalanceDepth)
	if askQty > 0 {
		ratio := bidQty / askQty
		if ratio > imbalanceHighRatio || ratio < imbalanceLowRatio {
			res.score += imbalanceScore
			res.triggeredBy = append(res.triggeredBy, "orderbook_imbalance")
		}
		if ratio > imbalanceBullishRatio {
			vote(&res, models.Bullish)
		} else if ratio < imbalanceBearishRatio {
			vote(&res, models.Bearish)
		}
	}

	// Microstructure anomalies: any one of the three flags scores.
	anomalous := false
	if spreadBaseline > 0 && math.Abs(spread-spreadBaseline)/spreadBaseline > spreadDeviationMax {
		anomalous = true
		res.triggeredBy = append(res.triggeredBy, "spread_deviation")
	}
	if hasAbnormalOrders(book) {
		anomalous = true
		res.triggeredBy = append(res.triggeredBy, "abnormal_orders")
	}
	if hasIcebergCluster(book.Bids) || hasIcebergCluster(book.Asks) {
		anomalous = true
		res.triggeredBy = append(res.triggeredBy, "iceberg_cluster")
	}
	if anomalous {
		res.score += microScore
	}

	if res.score > phase2Cap {
		res.score = phase2Cap
	}
	return res
}

// hasAbnormalOrders reports any level more than 3x the average level size
// across both sides.
func hasAbnormalOrders(book *models.OrderBookSnapshot) bool {
	var total float64
	count := len(book.Bids) + len(book.Asks)
	if count == 0 {
		return false
	}
	for _, l := range book.Bids {
		total += l.Quantity
	}
	for _, l := range book.Asks {
		total += l.Quantity
	}
	avg := total / float64(count)
	if avg == 0 {
		return false
	}

	for _, l := range book.Bids {
		if l.Quantity > abnormalSizeFactor*avg {
			return true
		}
	}
	for _, l := range book.Asks {
		if l.Quantity > abnormalSizeFactor*avg {
			return true
		}
	}
	return false
}

// hasIcebergCluster finds 3 consecutive levels within 0.1% of each other in
// price with under 20% size variance, the footprint of a sliced large
// order.
func hasIcebergCluster(levels []models.PriceLevel) bool {
	if len(levels) < icebergRunLen {
		return false
	}

	for i := 0; i+icebergRunLen <= len(levels); i++ {
		run := levels[i : i+icebergRunLen]

		base := run[0].Price
		if base == 0 {
			continue
		}
		tight := true
		for _, l := range run[1:] {
			if math.Abs(l.Price-base)/base > icebergPriceBandPct {
				tight = false
				break
			}
		}
		if !tight {
			continue
		}

		var sum float64
		for _, l := range run {
			sum += l.Quantity
		}
		mean := sum / icebergRunLen
		if mean == 0 {
			continue
		}
		uniform := true
		for _, l := range run {
			if math.Abs(l.Quantity-mean)/mean > icebergSizeVariance {
				uniform = false
				break
			}
		}
		if uniform {
			return true
		}
	}
	return false
}
