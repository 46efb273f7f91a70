package planner

import (
	"testing"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestScoreCategorySingleSurvivor(t *testing.T) {
	plans := []models.RoutePlan{
		{TotalDuration: 600, TotalAcDGVI: -40},
	}

	scoreCategory(plans, DefaultPreference())

	assert.InDelta(t, 1.0, plans[0].DurationScore, 1e-9)
	assert.InDelta(t, 0.0, plans[0].AcDGVIScore, 1e-9)
	assert.InDelta(t, 1.0, plans[0].TotalScore, 1e-9)
}

func TestScoreCategoryNormalization(t *testing.T) {
	plans := []models.RoutePlan{
		{TotalDuration: 100, TotalAcDGVI: -10}, // fastest and greenest
		{TotalDuration: 200, TotalAcDGVI: -20},
	}

	scoreCategory(plans, Preference{Time: 0.5, Green: 0.5})

	assert.InDelta(t, 1.0, plans[0].DurationScore, 1e-9)
	assert.InDelta(t, 1.0, plans[0].AcDGVIScore, 1e-9)
	assert.InDelta(t, 1.0, plans[0].TotalScore, 1e-9)

	assert.InDelta(t, 0.0, plans[1].DurationScore, 1e-9)
	assert.InDelta(t, 0.0, plans[1].AcDGVIScore, 1e-9)
	assert.InDelta(t, 0.0, plans[1].TotalScore, 1e-9)
}

func TestScoreCategoryWeightsTradeOff(t *testing.T) {
	plans := []models.RoutePlan{
		{TotalDuration: 100, TotalAcDGVI: -30}, // fast but grey
		{TotalDuration: 300, TotalAcDGVI: -10}, // slow but green
	}

	t.Run("time-only weights prefer the fast route", func(t *testing.T) {
		scoreCategory(plans, Preference{Time: 1, Green: 0})
		assert.Greater(t, plans[0].TotalScore, plans[1].TotalScore)
	})

	t.Run("green-only weights prefer the green route", func(t *testing.T) {
		scoreCategory(plans, Preference{Time: 0, Green: 1})
		assert.Greater(t, plans[1].TotalScore, plans[0].TotalScore)
	})
}

func TestScoreCategoryBounds(t *testing.T) {
	plans := []models.RoutePlan{
		{TotalDuration: 120, TotalAcDGVI: -5},
		{TotalDuration: 450, TotalAcDGVI: -60},
		{TotalDuration: 300, TotalAcDGVI: -20},
	}

	scoreCategory(plans, Preference{Time: 0.7, Green: 0.3})

	for _, p := range plans {
		assert.GreaterOrEqual(t, p.TotalScore, 0.0)
		assert.LessOrEqual(t, p.TotalScore, 1.0)
		assert.GreaterOrEqual(t, p.DurationScore, 0.0)
		assert.LessOrEqual(t, p.DurationScore, 1.0)
		assert.GreaterOrEqual(t, p.AcDGVIScore, 0.0)
		assert.LessOrEqual(t, p.AcDGVIScore, 1.0)
	}
}

func TestScoreCategoryEqualDurations(t *testing.T) {
	plans := []models.RoutePlan{
		{TotalDuration: 200, TotalAcDGVI: -10},
		{TotalDuration: 200, TotalAcDGVI: -30},
	}

	scoreCategory(plans, Preference{Time: 0.5, Green: 0.5})

	// no duration spread: the time dimension carries no penalty
	assert.InDelta(t, 1.0, plans[0].DurationScore, 1e-9)
	assert.InDelta(t, 1.0, plans[1].DurationScore, 1e-9)
	assert.InDelta(t, 1.0, plans[0].TotalScore, 1e-9)
	assert.InDelta(t, 0.5, plans[1].TotalScore, 1e-9)
}
