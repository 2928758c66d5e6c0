package stats

import (
	"slices"
	"strings"
	"time"

	"workgraph/internal/workitem"
)

// StateAge is the residence of one open item in its current state.
type StateAge struct {
	ID          string  `json:"id" yaml:"id"`
	Kind        string  `json:"kind" yaml:"kind"`
	State       string  `json:"state" yaml:"state"`
	DaysInState float64 `json:"daysInState" yaml:"daysInState"`
	TotalAge    float64 `json:"totalAge" yaml:"totalAge"`
	Percentile  int     `json:"percentile" yaml:"percentile"` // share of past stays in this state that were shorter
	IsStale     bool    `json:"isStale" yaml:"isStale"`       // longer than P85 of past stays
}

// CalculateStateAging ages every open item in its current state and ranks it
// against how long items historically stayed in that state. Results are
// ordered oldest first.
func CalculateStateAging(items []*workitem.WorkItem, now time.Time) []StateAge {
	history := residency(items)

	var results []StateAge
	for _, it := range items {
		if !it.IsOpen() {
			continue
		}
		all := stints(it)
		current := all[len(all)-1]
		days := now.Sub(current.Start).Hours() / 24

		age := StateAge{
			ID:          it.ID,
			Kind:        it.Kind.String(),
			State:       it.State.String(),
			DaysInState: roundDays(days),
			TotalAge:    roundDays(now.Sub(it.CreatedAt).Hours() / 24),
		}
		if past := history[current.State]; len(past) > 0 {
			age.Percentile = rank(past, days)
			age.IsStale = days > Percentile(past, 85)
		}
		results = append(results, age)
	}

	slices.SortFunc(results, func(a, b StateAge) int {
		if a.DaysInState != b.DaysInState {
			if a.DaysInState > b.DaysInState {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return results
}
