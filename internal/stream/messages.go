package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sawpanic/surgewatch/internal/models"
)

// Combined-endpoint frames wrap the per-topic payload:
// {"stream":"btcusdt@ticker","data":{...}}. Single-topic sockets deliver the
// payload bare.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tickerEvent struct {
	EventType string `json:"e"` // "24hrTicker"
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	PctChange string `json:"P"`
	Volume    string `json:"v"`
	High      string `json:"h"`
	Low       string `json:"l"`
}

type klineEvent struct {
	EventType string `json:"e"` // "kline"
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		IsClosed bool   `json:"x"`
	} `json:"k"`
}

// parseTickerEvent decodes one ticker frame into a cache snapshot.
func parseTickerEvent(data []byte) (models.Ticker, error) {
	var raw tickerEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Ticker{}, fmt.Errorf("decode ticker event: %w", err)
	}
	if raw.Symbol == "" {
		return models.Ticker{}, fmt.Errorf("ticker event missing symbol")
	}

	price, _ := strconv.ParseFloat(raw.LastPrice, 64)
	pct, _ := strconv.ParseFloat(raw.PctChange, 64)
	volume, _ := strconv.ParseFloat(raw.Volume, 64)
	high, _ := strconv.ParseFloat(raw.High, 64)
	low, _ := strconv.ParseFloat(raw.Low, 64)

	return models.Ticker{
		Symbol:      raw.Symbol,
		Price:       price,
		PctChange24: pct,
		Volume:      volume,
		High:        high,
		Low:         low,
		UpdatedAt:   time.Now(),
	}, nil
}

// parseKlineEvent decodes one kline frame; closed reports the bucket's
// closed flag so the buffer policy applies in arrival order.
func parseKlineEvent(data []byte) (symbol string, tf models.Timeframe, candle models.Candle, closed bool, err error) {
	var raw klineEvent
	if err = json.Unmarshal(data, &raw); err != nil {
		err = fmt.Errorf("decode kline event: %w", err)
		return
	}
	if raw.Symbol == "" {
		err = fmt.Errorf("kline event missing symbol")
		return
	}

	open, _ := strconv.ParseFloat(raw.Kline.Open, 64)
	high, _ := strconv.ParseFloat(raw.Kline.High, 64)
	low, _ := strconv.ParseFloat(raw.Kline.Low, 64)
	closePrice, _ := strconv.ParseFloat(raw.Kline.Close, 64)
	volume, _ := strconv.ParseFloat(raw.Kline.Volume, 64)

	symbol = raw.Symbol
	tf = models.Timeframe(raw.Kline.Interval)
	closed = raw.Kline.IsClosed
	candle = models.Candle{
		OpenTime: time.UnixMilli(raw.Kline.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}
	return
}

// unwrapFrame strips the combined-endpoint envelope when present.
func unwrapFrame(data []byte) []byte {
	var frame combinedFrame
	if err := json.Unmarshal(data, &frame); err == nil && len(frame.Data) > 0 {
		return frame.Data
	}
	return data
}
