package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/surgewatch/internal/models"
)

func TestParseTickerEvent_DecodesCombinedFrame(t *testing.T) {
	frame := []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","s":"BTCUSDT","c":"50123.45","P":"2.5","v":"12345.6","h":"51000","l":"49000"}}`)

	ticker, err := parseTickerEvent(unwrapFrame(frame))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.Equal(t, 50123.45, ticker.Price)
	assert.Equal(t, 2.5, ticker.PctChange24)
	assert.Equal(t, 12345.6, ticker.Volume)
	assert.Equal(t, 51000.0, ticker.High)
	assert.Equal(t, 49000.0, ticker.Low)
	assert.WithinDuration(t, time.Now(), ticker.UpdatedAt, time.Second)
}

func TestParseTickerEvent_MissingSymbolFails(t *testing.T) {
	_, err := parseTickerEvent([]byte(`{"e":"24hrTicker","c":"100"}`))
	assert.Error(t, err)
}

func TestParseKlineEvent_DecodesBareFrame(t *testing.T) {
	frame := []byte(`{"e":"kline","s":"ETHUSDT","k":{"t":1717200000000,"i":"1m","o":"3000.0","h":"3010.5","l":"2995.0","c":"3005.25","v":"42.7","x":true}}`)

	symbol, tf, candle, closed, err := parseKlineEvent(unwrapFrame(frame))
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", symbol)
	assert.Equal(t, models.TF1m, tf)
	assert.True(t, closed)
	assert.Equal(t, time.UnixMilli(1717200000000), candle.OpenTime)
	assert.Equal(t, 3000.0, candle.Open)
	assert.Equal(t, 3010.5, candle.High)
	assert.Equal(t, 2995.0, candle.Low)
	assert.Equal(t, 3005.25, candle.Close)
	assert.Equal(t, 42.7, candle.Volume)
}

func TestParseKlineEvent_MalformedJSONFails(t *testing.T) {
	_, _, _, _, err := parseKlineEvent([]byte(`{"e":"kline"`))
	assert.Error(t, err)
}

func TestUnwrapFrame_PassesBarePayloadThrough(t *testing.T) {
	bare := []byte(`{"e":"kline","s":"BTCUSDT"}`)
	assert.Equal(t, bare, unwrapFrame(bare))
}
