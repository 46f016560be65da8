package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Indicator keys understood by the engine.
const (
	KeyTrendDirection  = "trend_direction"
	KeyTrendStrength   = "trend_strength"
	KeyMA200           = "ma_200"
	KeyEMA20           = "ema_20"
	KeyRSI             = "rsi_14"
	KeyRSISignal       = "rsi_signal"
	KeyMACD            = "macd"
	KeyMACDSignal      = "macd_signal"
	KeyMACDHistogram   = "macd_histogram"
	KeyMACDTrend       = "macd_trend"
	KeyBBUpper         = "bb_upper"
	KeyBBMiddle        = "bb_middle"
	KeyBBLower         = "bb_lower"
	KeyBBWidth         = "bb_width"
	KeyBBPosition      = "bb_position"
	KeyBBPositionLabel = "bb_position_label"
	KeyVolumeRatio     = "volume_ratio"
	KeyVolumeSignal    = "volume_signal"
	KeyVolumeSpike     = "volume_spike"
	KeySupportLevel    = "support_level"
	KeyResistanceLevel = "resistance_level"
	KeyATR             = "atr"
)

// Indicator labels.
const (
	TrendUp       = "UP"
	TrendDown     = "DOWN"
	TrendSideways = "SIDEWAYS"

	RSIOversold   = "OVERSOLD"
	RSINeutral    = "NEUTRAL"
	RSIOverbought = "OVERBOUGHT"

	MACDBullish = "BULLISH"
	MACDNeutral = "NEUTRAL"
	MACDBearish = "BEARISH"

	VolumeHigh   = "HIGH"
	VolumeNormal = "NORMAL"
	VolumeLow    = "LOW"
)

// Snapshot maps indicator names to values (numbers, labels or booleans) for
// one instrument at one point in time. It is read-only input; every accessor
// tolerates missing or null keys.
type Snapshot map[string]any

// Has reports whether key is present with a non-nil value.
func (s Snapshot) Has(key string) bool {
	v, ok := s[key]
	return ok && v != nil
}

// Label returns the upper-cased string value of key, or def when it is
// missing, empty or not a string.
func (s Snapshot) Label(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	str = strings.ToUpper(strings.TrimSpace(str))
	if str == "" {
		return def
	}
	return str
}

// Float returns the numeric value of key, or def when it is missing or not
// a finite number.
func (s Snapshot) Float(key string, def float64) float64 {
	if f, ok := s.Number(key); ok {
		return f
	}
	return def
}

// Number returns the numeric value of key and whether one was present.
func (s Snapshot) Number(key string) (float64, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return 0, false
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Level returns a strictly positive price level (support, resistance, ATR).
// Zero and negative values count as absent.
func (s Snapshot) Level(key string) (float64, bool) {
	f, ok := s.Number(key)
	if !ok || f <= 0 {
		return 0, false
	}
	return f, true
}

// Bool returns the boolean value of key, or def.
func (s Snapshot) Bool(key string, def bool) bool {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// Value returns the raw value of key (nil when absent).
func (s Snapshot) Value(key string) any {
	return s[key]
}
