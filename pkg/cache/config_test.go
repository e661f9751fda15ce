package cache

import (
	"testing"
	"time"
)

func TestLayerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  LayerConfig
		wantErr bool
	}{
		{"valid", LayerConfig{Name: "L1", DefaultTTL: time.Minute}, false},
		{"missing name", LayerConfig{DefaultTTL: time.Minute}, true},
		{"negative default", LayerConfig{Name: "L1", DefaultTTL: -1}, true},
		{"negative max", LayerConfig{Name: "L1", MaxTTL: -1}, true},
		{"default above max", LayerConfig{Name: "L1", DefaultTTL: time.Hour, MaxTTL: time.Minute}, true},
		{"uncapped", LayerConfig{Name: "L1", DefaultTTL: time.Hour}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEffectiveTTL(t *testing.T) {
	config := LayerConfig{Name: "L1", DefaultTTL: time.Minute, MaxTTL: time.Hour}

	tests := []struct {
		name     string
		ttl      time.Duration
		expected time.Duration
	}{
		{"zero uses default", 0, time.Minute},
		{"negative uses default", -time.Second, time.Minute},
		{"within cap", 30 * time.Minute, 30 * time.Minute},
		{"above cap", 2 * time.Hour, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := config.EffectiveTTL(tt.ttl); got != tt.expected {
				t.Errorf("EffectiveTTL(%v) = %v, expected %v", tt.ttl, got, tt.expected)
			}
		})
	}
}

func TestEffectiveTTLUncapped(t *testing.T) {
	config := LayerConfig{Name: "L1", DefaultTTL: time.Minute}
	if got := config.EffectiveTTL(24 * time.Hour); got != 24*time.Hour {
		t.Errorf("uncapped EffectiveTTL = %v, expected %v", got, 24*time.Hour)
	}
}
