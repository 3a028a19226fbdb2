// Package stats derives the dashboard figures from a user's complete entry
// collection. Compute is a pure function of its inputs so it can run on
// every cache change without side effects.
package stats

import (
	"sort"
	"time"

	"github.com/ashmarin/weighttrack/internal/domain/entry"
)

// Summary carries the four dashboard figures. Pointer fields render as JSON
// null when a figure cannot be computed, which the UI shows as an em dash.
type Summary struct {
	CurrentWeight   *float64 `json:"current_weight"`
	ChangeLastMonth *float64 `json:"change_last_month"`
	TotalChange     *float64 `json:"total_change"`
	AvgWeight       *float64 `json:"avg_weight"`
}

// Compute builds the summary from the full collection as of now. All
// comparisons are by calendar date; time of day is ignored. Entries with an
// unparsable date are skipped rather than failing the whole summary. An
// empty collection yields an all-null summary.
func Compute(entries []entry.Entry, now time.Time) Summary {
	dated := make([]datedEntry, 0, len(entries))
	for _, e := range entries {
		day, err := e.Day()
		if err != nil {
			continue
		}
		dated = append(dated, datedEntry{day: day, weight: e.Weight})
	}
	if len(dated) == 0 {
		return Summary{}
	}

	// Stable by original position, so date ties resolve deterministically.
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].day.Before(dated[j].day)
	})

	latest := dated[len(dated)-1]
	current := latest.weight
	today := truncateDay(now)

	var sum float64
	for _, d := range dated {
		sum += d.weight
	}
	avg := sum / float64(len(dated))

	s := Summary{
		CurrentWeight: &current,
		AvgWeight:     &avg,
		TotalChange:   totalChange(dated, current, today),
	}
	s.ChangeLastMonth = changeLastMonth(dated, today)
	return s
}

type datedEntry struct {
	day    time.Time
	weight float64
}

// changeLastMonth compares the mean weight of the most recent 14 days to the
// mean of the 14-day window starting one month before now. Both windows must
// hold at least one entry. Positive means weight gain.
func changeLastMonth(dated []datedEntry, today time.Time) *float64 {
	recentStart := today.AddDate(0, 0, -14)
	monthAgoStart := today.AddDate(0, -1, 0)
	monthAgoEnd := monthAgoStart.AddDate(0, 0, 14)

	var recentSum, pastSum float64
	var recentN, pastN int
	for _, d := range dated {
		if !d.day.Before(recentStart) && !d.day.After(today) {
			recentSum += d.weight
			recentN++
		}
		if !d.day.Before(monthAgoStart) && !d.day.After(monthAgoEnd) {
			pastSum += d.weight
			pastN++
		}
	}
	if recentN == 0 || pastN == 0 {
		return nil
	}
	change := recentSum/float64(recentN) - pastSum/float64(pastN)
	return &change
}

// totalChange subtracts the most recent weight dated at or before three
// months ago from the current weight, falling back to the chronologically
// earliest entry when the history is shorter than three months.
func totalChange(dated []datedEntry, current float64, today time.Time) *float64 {
	cutoff := today.AddDate(0, -3, 0)

	baseline := dated[0].weight
	for i := len(dated) - 1; i >= 0; i-- {
		if !dated[i].day.After(cutoff) {
			baseline = dated[i].weight
			break
		}
	}
	change := current - baseline
	return &change
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
