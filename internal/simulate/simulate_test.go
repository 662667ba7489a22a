package simulate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/trip"
	"github.com/developingchet/staywindow/internal/window"
)

func day(s string) dayindex.Day { return dayindex.MustParse(s) }

func set(pairs ...string) trip.Set {
	ivs := make([]trip.Interval, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		ivs = append(ivs, trip.Interval{Entry: day(pairs[i]), Exit: day(pairs[i+1])})
	}
	return trip.NormalizeIntervals(ivs)
}

func TestMaxStayDays_EmptyHistory(t *testing.T) {
	entry := day("2026-03-01")
	assert.Equal(t, 89, Default.MaxStayDays(entry, trip.Set{}))

	exit, ok := Default.LatestExit(entry, trip.Set{})
	require.True(t, ok)
	assert.Equal(t, "2026-05-28", exit.Format())
}

func TestMaxStayDays_PartialHistory(t *testing.T) {
	s := set("2025-10-01", "2025-11-29") // 60 days, all inside every window up to 2026-03-29
	entry := day("2026-01-10")

	assert.Equal(t, 29, Default.MaxStayDays(entry, s))
	exit, ok := Default.LatestExit(entry, s)
	require.True(t, ok)
	assert.Equal(t, "2026-02-07", exit.Format())
}

func TestMaxStayDays_AllowanceExhausted(t *testing.T) {
	s := set("2026-01-01", "2026-03-31") // 90 days
	entry := day("2026-04-01")

	assert.Equal(t, 0, Default.MaxStayDays(entry, s))
	_, ok := Default.LatestExit(entry, s)
	assert.False(t, ok)
}

func TestMaxStayDays_OneDayLeftIsNoStay(t *testing.T) {
	s := set("2026-01-01", "2026-03-30") // 89 days
	entry := day("2026-03-31")

	// Entry day itself fits (90 used); the next day breaks the window.
	assert.Equal(t, 0, Default.MaxStayDays(entry, s))
	_, ok := Default.LatestExit(entry, s)
	assert.False(t, ok)

	p := Default.Plan(entry, s)
	assert.Nil(t, p.LatestExit)
	assert.False(t, p.Capped)
	require.NotNil(t, p.NextSafeEntry)
	assert.Equal(t, "2026-04-01", p.NextSafeEntry.Format())
}

func TestLatestExit_ConsistentWithMaxStay(t *testing.T) {
	s := set("2025-09-15", "2025-10-20", "2025-12-01", "2026-01-10")
	start := day("2026-01-12")
	for entry := start; entry < start.Add(200); entry++ {
		n := Default.MaxStayDays(entry, s)
		exit, ok := Default.LatestExit(entry, s)
		if n > 0 {
			require.True(t, ok, "entry=%s", entry)
			assert.Equal(t, entry.Add(n-1), exit, "entry=%s", entry)
			assert.Equal(t, n, dayindex.DiffInclusive(entry, exit))
		} else {
			assert.False(t, ok, "entry=%s", entry)
		}
	}
}

// The first violating day d is MaxStayDays+1 days after entry whenever a
// stay is possible: a stay of MaxStayDays+1 days keeps every window compliant
// and one more day breaks at least one of them. Entries are placed after all recorded
// travel so the candidate never overlaps history.
func TestMaxStayDays_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := day("2025-01-01")

	for round := 0; round < 40; round++ {
		var ivs []trip.Interval
		cursor := base
		for i := 0; i < 1+rng.Intn(5); i++ {
			cursor = cursor.Add(rng.Intn(40))
			ivs = append(ivs, trip.FromLength(cursor, 1+rng.Intn(35)))
			cursor = cursor.Add(36)
		}
		s := trip.NormalizeIntervals(ivs)
		entry := s[len(s)-1].Exit.Add(1 + rng.Intn(120))

		n := Default.MaxStayDays(entry, s)
		compliant := func(length int) bool {
			withStay := s.With(trip.FromLength(entry, length))
			for d := entry; d < entry.Add(length); d++ {
				if window.UsedDays(d, withStay) > 90 {
					return false
				}
			}
			return true
		}
		if n > 0 {
			assert.True(t, compliant(n+1), "round %d: stay of %d should be compliant", round, n+1)
		}
		assert.False(t, compliant(n+2), "round %d: stay of %d should not be compliant", round, n+2)
	}
}

func TestMaxStayDays_CappedForWideRules(t *testing.T) {
	sim := New(window.Rule{WindowDays: 800, AllowanceDays: 400})
	entry := day("2026-01-01")

	assert.Zero(t, sim.MaxStayDays(entry, trip.Set{}))

	p := sim.Plan(entry, trip.Set{})
	assert.Zero(t, p.MaxStayDays)
	assert.True(t, p.Capped)
	assert.Nil(t, p.LatestExit)
	assert.Nil(t, p.NextSafeEntry)
	assert.False(t, p.Exhausted)
}

func TestNextSafeEntry_ImmediateWhenAllowanceLeft(t *testing.T) {
	start := day("2026-02-19")
	got, err := Default.NextSafeEntry(start, set("2026-02-10", "2026-02-17"))
	require.NoError(t, err)
	assert.Equal(t, start, got)
}

func TestNextSafeEntry_WaitsForWindowToSlide(t *testing.T) {
	s := set("2026-01-01", "2026-03-31")

	got, err := Default.NextSafeEntry(day("2026-04-01"), s)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-30", got.Format())
	assert.Equal(t, 1, window.RemainingDays(got, s))
	assert.Equal(t, 0, window.RemainingDays(got.Add(-1), s))
}

func TestNextSafeEntry_BoundExhausted(t *testing.T) {
	start := day("2026-01-01")
	s := trip.Set{{Entry: start.Add(-200), Exit: start.Add(900)}}

	got, err := Default.NextSafeEntry(start, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBoundExhausted)
	assert.Equal(t, start, got)
}

func TestPlan_SuggestsNextEntryWhenBlocked(t *testing.T) {
	s := set("2026-01-01", "2026-03-31")
	p := Default.Plan(day("2026-04-01"), s)

	assert.Zero(t, p.MaxStayDays)
	assert.Nil(t, p.LatestExit)
	require.NotNil(t, p.NextSafeEntry)
	assert.Equal(t, "2026-06-30", p.NextSafeEntry.Format())
}

func TestPlan_WithStay(t *testing.T) {
	p := Default.Plan(day("2026-03-01"), trip.Set{})
	assert.Equal(t, 89, p.MaxStayDays)
	require.NotNil(t, p.LatestExit)
	assert.Equal(t, "2026-05-28", p.LatestExit.Format())
	assert.Nil(t, p.NextSafeEntry)
	assert.False(t, p.Capped)
	assert.False(t, p.Exhausted)
}

func TestPlan_ReportsExhaustedNextEntrySearch(t *testing.T) {
	start := day("2026-01-01")
	s := trip.Set{{Entry: start.Add(-200), Exit: start.Add(900)}}

	p := Default.Plan(start, s)
	assert.Zero(t, p.MaxStayDays)
	assert.False(t, p.Capped)
	assert.Nil(t, p.LatestExit)
	assert.Nil(t, p.NextSafeEntry)
	assert.True(t, p.Exhausted)
}
