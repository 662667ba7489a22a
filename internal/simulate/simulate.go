// Package simulate answers planning questions by stepping forward one day at
// a time against a window.Rule. Every search is capped, so each call
// terminates after a fixed number of evaluations.
package simulate

import (
	"errors"
	"fmt"

	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/trip"
	"github.com/developingchet/staywindow/internal/window"
)

const (
	// MaxStayIterations caps the stay-length search.
	MaxStayIterations = 366
	// NextEntryIterations caps the search for the next compliant entry day.
	NextEntryIterations = 730
)

// ErrBoundExhausted is returned when a search hits its cap without finding
// the condition it was looking for.
var ErrBoundExhausted = errors.New("simulation bound exhausted")

// Simulator runs forward searches for one rule.
type Simulator struct {
	Rule window.Rule
}

// New returns a Simulator for rule.
func New(rule window.Rule) *Simulator {
	return &Simulator{Rule: rule}
}

// Default simulates the Schengen rule.
var Default = New(window.Schengen)

// MaxStayDays returns the number of days strictly before the first day d on
// which the window ending at entry+d would exceed the allowance, counting
// recorded trips plus the candidate stay entry..entry+d, both clipped to the
// sliding window. The result is max(0, d-1). When no violation occurs within
// MaxStayIterations days the search is exhausted and 0 is returned; Plan
// reports that case through Capped.
func (sim *Simulator) MaxStayDays(entry dayindex.Day, s trip.Set) int {
	n, _ := sim.maxStay(entry, s)
	return n
}

// maxStay runs the bounded search. capped is true when the loop ran out
// without finding a violating day.
func (sim *Simulator) maxStay(entry dayindex.Day, s trip.Set) (n int, capped bool) {
	candidate := trip.Interval{Entry: entry}
	for d := 0; d < MaxStayIterations; d++ {
		current := entry.Add(d)
		w := sim.Rule.Window(current)

		candidate.Exit = current
		used := sim.Rule.UsedDays(current, s) + candidate.Overlap(w.Start, w.End)
		if used > sim.Rule.AllowanceDays {
			return max(0, d-1), false
		}
	}
	return 0, true
}

// LatestExit returns the last day of the longest compliant stay from entry.
// ok is false when not even the entry day itself is compliant.
func (sim *Simulator) LatestExit(entry dayindex.Day, s trip.Set) (exit dayindex.Day, ok bool) {
	n := sim.MaxStayDays(entry, s)
	if n <= 0 {
		return 0, false
	}
	return entry.Add(n - 1), true
}

// NextSafeEntry returns the first day from start onwards with remaining
// allowance above zero. When none is found within NextEntryIterations days it
// returns start together with ErrBoundExhausted.
func (sim *Simulator) NextSafeEntry(start dayindex.Day, s trip.Set) (dayindex.Day, error) {
	for d := 0; d < NextEntryIterations; d++ {
		day := start.Add(d)
		if sim.Rule.RemainingDays(day, s) > 0 {
			return day, nil
		}
	}
	return start, fmt.Errorf("%w: no compliant day within %d days of %s", ErrBoundExhausted, NextEntryIterations, start)
}

// Plan is the combined answer for a prospective entry day. Capped means the
// stay search found no violation within MaxStayIterations days. Exhausted
// means no stay was possible and the next-entry search hit its own bound.
type Plan struct {
	Entry         dayindex.Day  `json:"entry"`
	MaxStayDays   int           `json:"max_stay_days"`
	LatestExit    *dayindex.Day `json:"latest_exit,omitempty"`
	Capped        bool          `json:"capped,omitempty"`
	NextSafeEntry *dayindex.Day `json:"next_safe_entry,omitempty"`
	Exhausted     bool          `json:"exhausted,omitempty"`
}

// Plan computes the stay length and latest exit for entry. When no stay is
// possible it also looks for the next compliant entry day after entry.
func (sim *Simulator) Plan(entry dayindex.Day, s trip.Set) Plan {
	n, capped := sim.maxStay(entry, s)
	p := Plan{Entry: entry, MaxStayDays: n, Capped: capped}
	if capped {
		return p
	}

	if n > 0 {
		exit := entry.Add(n - 1)
		p.LatestExit = &exit
		return p
	}
	next, err := sim.NextSafeEntry(entry.Add(1), s)
	if err != nil {
		if errors.Is(err, ErrBoundExhausted) {
			p.Exhausted = true
		}
		return p
	}
	p.NextSafeEntry = &next
	return p
}
