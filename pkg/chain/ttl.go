package chain

import (
	"math"
	"time"
)

// TTLStrategy resolves the TTL an entry gets in each layer of the chain.
type TTLStrategy interface {
	// TTLFor returns the TTL for layerIndex out of numLayers, given the
	// caller's base TTL.
	TTLFor(layerIndex, numLayers int, baseTTL time.Duration) time.Duration
}

// UniformTTL gives every layer the same TTL.
type UniformTTL struct{}

func (UniformTTL) TTLFor(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTL shortens TTLs toward the faster layers so staleness is bounded
// where reads are served most often. With factor 0.5 and three layers, L0
// keeps entries a quarter as long as L2.
type DecayingTTL struct {
	// Factor in (0,1); each layer up gets baseTTL multiplied by another
	// factor. Out-of-range values disable decay.
	Factor float64
}

func (s DecayingTTL) TTLFor(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	if s.Factor <= 0 || s.Factor >= 1 {
		return baseTTL
	}
	exponent := float64(numLayers - 1 - layerIndex)
	return time.Duration(float64(baseTTL) * math.Pow(s.Factor, exponent))
}

// PerLayerTTL uses an explicit TTL per layer, falling back to the base TTL
// for unspecified positions.
type PerLayerTTL struct {
	TTLs []time.Duration
}

func (s PerLayerTTL) TTLFor(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	if layerIndex < len(s.TTLs) {
		return s.TTLs[layerIndex]
	}
	return baseTTL
}
