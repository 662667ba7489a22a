// Package trip canonicalizes raw entry/exit pairs into a sorted, disjoint,
// gap-separated set of closed day intervals.
package trip

import (
	"errors"
	"fmt"
	"sort"

	"github.com/developingchet/staywindow/internal/dayindex"
)

// ErrNoSuchTrip is returned when a mutation addresses an index outside the set.
var ErrNoSuchTrip = errors.New("no such trip")

// Raw is one user-entered trip as it arrives from storage or an import file.
type Raw struct {
	Entry string `json:"entry"`
	Exit  string `json:"exit"`
}

// Interval is a closed span of days. Entry <= Exit once normalized.
type Interval struct {
	Entry dayindex.Day `json:"entry"`
	Exit  dayindex.Day `json:"exit"`
}

// FromLength builds the interval of k days starting at entry. k < 1 is
// treated as a single day.
func FromLength(entry dayindex.Day, k int) Interval {
	if k < 1 {
		k = 1
	}
	return Interval{Entry: entry, Exit: entry.Add(k - 1)}
}

// Days returns the inclusive length of iv.
func (iv Interval) Days() int { return dayindex.DiffInclusive(iv.Entry, iv.Exit) }

// Overlap counts the days iv shares with the inclusive range [start, end].
func (iv Interval) Overlap(start, end dayindex.Day) int {
	return dayindex.DiffInclusive(dayindex.Max(start, iv.Entry), dayindex.Min(end, iv.Exit))
}

// Raw returns the serialized form of iv.
func (iv Interval) Raw() Raw {
	return Raw{Entry: iv.Entry.Format(), Exit: iv.Exit.Format()}
}

func (iv Interval) String() string {
	return iv.Entry.Format() + ".." + iv.Exit.Format()
}

// canonical swaps reversed endpoints.
func (iv Interval) canonical() Interval {
	if iv.Entry > iv.Exit {
		iv.Entry, iv.Exit = iv.Exit, iv.Entry
	}
	return iv
}

// Set is a normalized interval list: sorted by Entry, and every adjacent pair
// separated by at least one free day. Produce it with Normalize or
// NormalizeIntervals; treat it as immutable.
type Set []Interval

// SkipReason describes one raw item dropped during decoding.
type SkipReason struct {
	Index  int
	Field  string
	Detail string
}

func (s *SkipReason) Error() string {
	return fmt.Sprintf("trip %d: %s: %s", s.Index, s.Field, s.Detail)
}

// Normalize decodes, corrects, sorts and merges raw. Items whose entry or exit
// fails to parse are skipped and reported; the rest of the batch is still
// normalized. An empty input yields an empty Set.
func Normalize(raw []Raw) (Set, []SkipReason) {
	var skipped []SkipReason
	decoded := make([]Interval, 0, len(raw))
	for i, r := range raw {
		entry, err := dayindex.Parse(r.Entry)
		if err != nil {
			skipped = append(skipped, SkipReason{Index: i, Field: "entry", Detail: err.Error()})
			continue
		}
		exit, err := dayindex.Parse(r.Exit)
		if err != nil {
			skipped = append(skipped, SkipReason{Index: i, Field: "exit", Detail: err.Error()})
			continue
		}
		decoded = append(decoded, Interval{Entry: entry, Exit: exit})
	}
	return NormalizeIntervals(decoded), skipped
}

// NormalizeIntervals runs the correct/sort/merge steps over already-decoded
// intervals. The input slice is not modified.
func NormalizeIntervals(in []Interval) Set {
	if len(in) == 0 {
		return Set{}
	}

	sorted := make([]Interval, len(in))
	for i, iv := range in {
		sorted[i] = iv.canonical()
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Entry != sorted[j].Entry {
			return sorted[i].Entry < sorted[j].Entry
		}
		return sorted[i].Exit < sorted[j].Exit
	})

	out := make(Set, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		// Overlapping or back-to-back with no free day in between.
		if next.Entry <= current.Exit+1 {
			current.Exit = dayindex.Max(current.Exit, next.Exit)
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

// Valid reports whether s satisfies the normalized-set invariant.
func (s Set) Valid() bool {
	for i, iv := range s {
		if iv.Entry > iv.Exit {
			return false
		}
		if i > 0 && iv.Entry <= s[i-1].Exit+1 {
			return false
		}
	}
	return true
}

// TotalDays sums the inclusive length of every interval.
func (s Set) TotalDays() int {
	n := 0
	for _, iv := range s {
		n += iv.Days()
	}
	return n
}

// Raw returns the serialized form of s, ascending by entry.
func (s Set) Raw() []Raw {
	out := make([]Raw, len(s))
	for i, iv := range s {
		out[i] = iv.Raw()
	}
	return out
}

// With returns a new Set that also covers iv.
func (s Set) With(iv Interval) Set {
	all := make([]Interval, 0, len(s)+1)
	all = append(all, s...)
	return NormalizeIntervals(append(all, iv))
}

// Without returns a new Set with the i-th interval removed.
func (s Set) Without(i int) (Set, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("%w: index %d (have %d)", ErrNoSuchTrip, i, len(s))
	}
	all := make([]Interval, 0, len(s)-1)
	all = append(all, s[:i]...)
	all = append(all, s[i+1:]...)
	return NormalizeIntervals(all), nil
}

// Replace returns a new Set with the i-th interval swapped for iv. The whole
// collection is renormalized since iv may now touch any other interval.
func (s Set) Replace(i int, iv Interval) (Set, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("%w: index %d (have %d)", ErrNoSuchTrip, i, len(s))
	}
	all := make([]Interval, len(s))
	copy(all, s)
	all[i] = iv
	return NormalizeIntervals(all), nil
}
