package planner

import (
	"github.com/greenroute/greenroute_core/internal/models"
)

// scoreCategory normalizes duration and accumulated DGVI over one category
// of surviving candidates (min-max, independent per category) and fills the
// scoring fields in place.
//
// DGVI is higher-is-better, so its penalty term is (1 - dgviNorm). When all
// candidates share the same value in a dimension, that dimension carries no
// penalty, which makes a lone survivor score exactly 1.
func scoreCategory(plans []models.RoutePlan, pref Preference) {
	if len(plans) == 0 {
		return
	}

	minDur, maxDur := plans[0].TotalDuration, plans[0].TotalDuration
	minDGVI, maxDGVI := plans[0].TotalAcDGVI, plans[0].TotalAcDGVI
	for _, p := range plans[1:] {
		if p.TotalDuration < minDur {
			minDur = p.TotalDuration
		}
		if p.TotalDuration > maxDur {
			maxDur = p.TotalDuration
		}
		if p.TotalAcDGVI < minDGVI {
			minDGVI = p.TotalAcDGVI
		}
		if p.TotalAcDGVI > maxDGVI {
			maxDGVI = p.TotalAcDGVI
		}
	}

	durSpread := maxDur - minDur
	dgviSpread := maxDGVI - minDGVI

	for i := range plans {
		var timeNorm, dgviNorm, timePenalty, greenPenalty float64

		if durSpread > 0 {
			timeNorm = (plans[i].TotalDuration - minDur) / durSpread
			timePenalty = pref.Time * timeNorm
		}
		if dgviSpread > 0 {
			dgviNorm = (plans[i].TotalAcDGVI - minDGVI) / dgviSpread
			greenPenalty = pref.Green * (1 - dgviNorm)
		}

		plans[i].DurationScore = 1 - timeNorm
		plans[i].AcDGVIScore = dgviNorm
		plans[i].TotalScore = 1 - timePenalty - greenPenalty
	}
}
