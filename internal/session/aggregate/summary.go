// Package aggregate computes reporting summaries over kiosk sessions.
package aggregate

import (
	"math"

	"kiosk-engine/internal/session/domain"
)

// Summary is the rollup of a set of sessions.
type Summary struct {
	TotalSessions int64
	TotalEvents   int64
	// AverageDuration is the mean duration in whole seconds over sessions that have one.
	AverageDuration  int64
	OutcomeBreakdown map[domain.Outcome]int64
	FeatureUsage     map[domain.Flag]int64
	// Finished counts sessions no longer in progress; Completed counts purchases among them.
	Finished       int64
	Completed      int64
	ConversionRate int64
}

// Summarize rolls up sessions. Every outcome and flag key is present in the result, zero-filled.
// An empty input yields a zero summary.
func Summarize(sessions []*domain.Session) Summary {
	sum := Summary{
		OutcomeBreakdown: make(map[domain.Outcome]int64, len(domain.Outcomes)),
		FeatureUsage:     make(map[domain.Flag]int64, len(domain.AllFlags)),
	}
	for _, o := range domain.Outcomes {
		sum.OutcomeBreakdown[o] = 0
	}
	for _, f := range domain.AllFlags {
		sum.FeatureUsage[f] = 0
	}

	var (
		durationTotal int64
		withDuration  int64
	)
	for _, s := range sessions {
		if s == nil {
			continue
		}
		sum.TotalSessions++
		sum.TotalEvents += s.TotalEvents
		sum.OutcomeBreakdown[s.Outcome]++
		if s.Outcome.Completed() {
			sum.Completed++
		}
		if s.DurationSeconds != nil {
			durationTotal += *s.DurationSeconds
			withDuration++
		}
		for _, f := range domain.AllFlags {
			if s.Flags.Has(f) {
				sum.FeatureUsage[f]++
			}
		}
	}

	if withDuration > 0 {
		sum.AverageDuration = int64(math.Round(float64(durationTotal) / float64(withDuration)))
	}
	sum.Finished = sum.TotalSessions - sum.OutcomeBreakdown[domain.OutcomeInProgress]
	if sum.Finished > 0 {
		sum.ConversionRate = int64(math.Round(100 * float64(sum.Completed) / float64(sum.Finished)))
	}
	return sum
}
