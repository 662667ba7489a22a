// Package window measures day usage inside a trailing fixed-length window.
//
// A Rule allows at most AllowanceDays days of presence inside any WindowDays
// consecutive days. Every count is inclusive of both ends.
package window

import (
	"fmt"
	"strings"

	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/trip"
)

// Rule parameterizes the window length and the allowance inside it.
type Rule struct {
	WindowDays    int `json:"window_days"`
	AllowanceDays int `json:"allowance_days"`
}

// Schengen is the 90 days in any 180 days rule.
var Schengen = Rule{WindowDays: 180, AllowanceDays: 90}

// Validate rejects rules that cannot be evaluated.
func (r Rule) Validate() error {
	var errs []string
	if r.WindowDays < 1 {
		errs = append(errs, "window must be at least 1 day")
	}
	if r.AllowanceDays < 1 {
		errs = append(errs, "allowance must be at least 1 day")
	}
	if r.AllowanceDays > r.WindowDays {
		errs = append(errs, "allowance cannot exceed the window")
	}
	if len(errs) > 0 {
		return fmt.Errorf("rule %d/%d: %s", r.AllowanceDays, r.WindowDays, strings.Join(errs, "; "))
	}
	return nil
}

func (r Rule) String() string {
	return fmt.Sprintf("%d/%d", r.AllowanceDays, r.WindowDays)
}

// Window is an inclusive day range.
type Window struct {
	Start dayindex.Day `json:"start"`
	End   dayindex.Day `json:"end"`
}

// Days returns the inclusive length of w.
func (w Window) Days() int { return dayindex.DiffInclusive(w.Start, w.End) }

// Contains reports whether d lies inside w.
func (w Window) Contains(d dayindex.Day) bool { return d >= w.Start && d <= w.End }

// Window returns the trailing window ending at ref.
func (r Rule) Window(ref dayindex.Day) Window {
	return Window{Start: ref.Add(-(r.WindowDays - 1)), End: ref}
}

// UsedDays counts the days of s that fall inside the window ending at ref.
// s must be normalized so that overlaps are never counted twice.
func (r Rule) UsedDays(ref dayindex.Day, s trip.Set) int {
	w := r.Window(ref)
	used := 0
	for _, iv := range s {
		if iv.Entry > w.End {
			// Sorted ascending; nothing later can reach into the window.
			break
		}
		used += iv.Overlap(w.Start, w.End)
	}
	return used
}

// RemainingDays is the allowance left at ref, clamped at zero.
func (r Rule) RemainingDays(ref dayindex.Day, s trip.Set) int {
	rem := r.AllowanceDays - r.UsedDays(ref, s)
	if rem < 0 {
		return 0
	}
	return rem
}

// UsedDays evaluates the Schengen rule.
func UsedDays(ref dayindex.Day, s trip.Set) int { return Schengen.UsedDays(ref, s) }

// RemainingDays evaluates the Schengen rule.
func RemainingDays(ref dayindex.Day, s trip.Set) int { return Schengen.RemainingDays(ref, s) }
