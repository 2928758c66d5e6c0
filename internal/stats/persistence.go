// Package stats measures how long work items stay in each lifecycle state.
package stats

import (
	"cmp"
	"slices"
	"time"

	"workgraph/internal/workitem"
)

// stint is one contiguous stay of an item in a state. Open stints have a
// zero End.
type stint struct {
	State workitem.State
	Start time.Time
	End   time.Time
}

// stints splits an item's history into its stays per state, oldest first.
// The state at creation is the previous value of the first state change, or
// the current state when the item never transitioned.
func stints(it *workitem.WorkItem) []stint {
	var transitions []workitem.Change
	for _, c := range it.Changes {
		if c.Kind == workitem.StateChanged {
			transitions = append(transitions, c)
		}
	}

	initial := it.State
	if len(transitions) > 0 {
		if prev, ok := transitions[0].PreviousState(); ok {
			initial = prev
		}
	}

	out := []stint{{State: initial, Start: it.CreatedAt}}
	for _, c := range transitions {
		next, ok := c.State()
		if !ok {
			continue
		}
		out[len(out)-1].End = c.When
		out = append(out, stint{State: next, Start: c.When})
	}
	return out
}

// StatePersistence summarises the finished stays in one state.
type StatePersistence struct {
	State  string  `json:"state" yaml:"state"`
	Count  int     `json:"count" yaml:"count"`
	Median float64 `json:"median" yaml:"median"`
	P85    float64 `json:"p85" yaml:"p85"`
	P95    float64 `json:"p95" yaml:"p95"`
}

// residency collects the durations in days of every finished stay, keyed by
// state and sorted ascending. Stays shorter than a minute are noise from
// label swaps and are dropped.
func residency(items []*workitem.WorkItem) map[workitem.State][]float64 {
	out := make(map[workitem.State][]float64)
	for _, it := range items {
		for _, s := range stints(it) {
			if s.End.IsZero() || s.End.Sub(s.Start) < time.Minute {
				continue
			}
			out[s.State] = append(out[s.State], s.End.Sub(s.Start).Hours()/24)
		}
	}
	for _, durations := range out {
		slices.Sort(durations)
	}
	return out
}

// CalculateStatePersistence reports how long items stayed in each non-terminal
// state before moving on, ordered by state.
func CalculateStatePersistence(items []*workitem.WorkItem) []StatePersistence {
	var results []StatePersistence
	for state, durations := range residency(items) {
		if !state.IsOpen() {
			continue
		}
		results = append(results, StatePersistence{
			State:  state.String(),
			Count:  len(durations),
			Median: round(CalculateMedianContinuous(durations)),
			P85:    round(Percentile(durations, 85)),
			P95:    round(Percentile(durations, 95)),
		})
	}
	slices.SortFunc(results, func(a, b StatePersistence) int {
		sa, _ := workitem.ParseState(a.State)
		sb, _ := workitem.ParseState(b.State)
		return cmp.Compare(sa, sb)
	})
	return results
}

func round(days float64) float64 {
	return float64(int(days*10+0.5)) / 10
}
