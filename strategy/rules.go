package strategy

import (
	"github.com/evdnx/protrader/types"
)

// RuleSet scores the four evaluation layers and maps an aggregate
// confidence to a classification. Implementations must be safe for
// concurrent use; the decision tree never mutates them.
type RuleSet interface {
	Name() string
	EvaluateTrend(ind types.Snapshot) types.LayerResult
	EvaluateMomentum(ind types.Snapshot) types.LayerResult
	EvaluateVolume(ind types.Snapshot) types.LayerResult
	EvaluateEntry(ind types.Snapshot) types.LayerResult
	DetermineSignalType(confidence float64) types.SignalType
}

// layerInputs lists the indicator values copied into each layer's
// reasoning entry.
var layerInputs = map[string][]string{
	types.LayerTrend:    {types.KeyTrendDirection, types.KeyMA200, types.KeyEMA20},
	types.LayerMomentum: {types.KeyRSISignal, types.KeyRSI, types.KeyMACDTrend, types.KeyMACDHistogram},
	types.LayerVolume:   {types.KeyVolumeSignal, types.KeyVolumeRatio, types.KeyVolumeSpike},
	types.LayerEntry:    {types.KeyBBPosition, types.KeyBBPositionLabel},
}

func collectInputs(ind types.Snapshot, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if ind.Has(k) {
			out[k] = ind.Value(k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
