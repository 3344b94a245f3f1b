package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Kline rows arrive as positional arrays of mixed numbers and numeric
// strings: [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := parseStringFloat(row[i+1])
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		fields[i] = v
	}

	return models.Candle{
		OpenTime: time.UnixMilli(openTime),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

func parseStringFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Some endpoints send bare numbers.
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0, err
		}
		return f, nil
	}
	return strconv.ParseFloat(s, 64)
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
}

func (r ticker24hResponse) toTicker() models.Ticker {
	price, _ := strconv.ParseFloat(r.LastPrice, 64)
	pct, _ := strconv.ParseFloat(r.PriceChangePercent, 64)
	volume, _ := strconv.ParseFloat(r.Volume, 64)
	high, _ := strconv.ParseFloat(r.HighPrice, 64)
	low, _ := strconv.ParseFloat(r.LowPrice, 64)

	return models.Ticker{
		Symbol:      r.Symbol,
		Price:       price,
		PctChange24: pct,
		Volume:      volume,
		High:        high,
		Low:         low,
		UpdatedAt:   time.Now(),
	}
}

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func (r depthResponse) toSnapshot(symbol string) *models.OrderBookSnapshot {
	return &models.OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      parseLevels(r.Bids),
		Asks:      parseLevels(r.Asks),
	}
}

func parseLevels(raw [][]string) []models.PriceLevel {
	levels := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(pair[0], 64)
		qty, _ := strconv.ParseFloat(pair[1], 64)
		levels = append(levels, models.PriceLevel{Price: price, Quantity: qty})
	}
	return levels
}
