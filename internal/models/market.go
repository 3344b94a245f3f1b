// Package models holds the market data types shared across the stream,
// signal, and early-warning layers.
package models

import "time"

// Timeframe identifies a candle bucket size using exchange interval notation.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Candle is a single OHLCV bucket. OpenTime identifies the bucket; the last
// candle of a series may still be open and mutated in place until it closes.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Ticker is the latest 24h rolling snapshot for a symbol. Latest-wins; it is
// never appended to history.
type Ticker struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	PctChange24 float64   `json:"pct_change_24h"`
	Volume      float64   `json:"volume"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PriceLevel is one order book level.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot is a point-in-time depth snapshot, best levels first.
type OrderBookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Timestamp time.Time    `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// TopBidQty sums bid quantity across the best n levels.
func (ob *OrderBookSnapshot) TopBidQty(n int) float64 {
	return sumQty(ob.Bids, n)
}

// TopAskQty sums ask quantity across the best n levels.
func (ob *OrderBookSnapshot) TopAskQty(n int) float64 {
	return sumQty(ob.Asks, n)
}

// Spread returns the best ask minus best bid, or 0 when either side is empty.
func (ob *OrderBookSnapshot) Spread() float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price - ob.Bids[0].Price
}

func sumQty(levels []PriceLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	var total float64
	for i := 0; i < n; i++ {
		total += levels[i].Quantity
	}
	return total
}
