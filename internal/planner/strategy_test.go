package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrategyWeights(t *testing.T) {
	user := Preference{Time: 0.3, Green: 0.7}

	tests := []struct {
		name     string
		strategy Strategy
		expected Preference
	}{
		{"user passes the caller's weights through", &UserStrategy{}, user},
		{"asap is pure time", &ASAPStrategy{}, Preference{Time: 1, Green: 0}},
		{"groot is pure green", &GROOTStrategy{}, Preference{Time: 0, Green: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.strategy.Weights(user))
		})
	}
}

func TestAllStrategiesOrder(t *testing.T) {
	names := []string{}
	for _, s := range AllStrategies() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"user", "asap", "groot"}, names)
}

func TestDefaultPreference(t *testing.T) {
	p := DefaultPreference()
	assert.InDelta(t, 1.0, p.Time+p.Green, 1e-9)
}
