package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/trip"
)

func day(s string) dayindex.Day { return dayindex.MustParse(s) }

func set(t *testing.T, pairs ...string) trip.Set {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	raw := make([]trip.Raw, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		raw = append(raw, trip.Raw{Entry: pairs[i], Exit: pairs[i+1]})
	}
	s, skipped := trip.Normalize(raw)
	require.Empty(t, skipped)
	return s
}

func TestRule_WindowPlacement(t *testing.T) {
	w := Schengen.Window(day("2026-02-19"))
	assert.Equal(t, "2025-08-24", w.Start.Format())
	assert.Equal(t, "2026-02-19", w.End.Format())
	assert.Equal(t, 180, w.Days())
	assert.True(t, w.Contains(day("2025-08-24")))
	assert.False(t, w.Contains(day("2025-08-23")))
}

func TestUsedDays_SingleTrip(t *testing.T) {
	s := set(t, "2026-02-10", "2026-02-17")
	ref := day("2026-02-19")

	assert.Equal(t, 8, UsedDays(ref, s))
	assert.Equal(t, 82, RemainingDays(ref, s))
}

func TestUsedDays_FutureTripsDoNotCount(t *testing.T) {
	s := set(t, "2026-06-01", "2026-06-20")
	assert.Equal(t, 0, UsedDays(day("2026-05-31"), s))
	assert.Equal(t, 90, RemainingDays(day("2026-05-31"), s))
}

func TestUsedDays_ClipsAtWindowEdges(t *testing.T) {
	// Trip straddles the window start: 2025-08-20..2025-08-30, window opens 2025-08-24.
	s := set(t, "2025-08-20", "2025-08-30", "2026-02-15", "2026-02-25")
	ref := day("2026-02-19")

	assert.Equal(t, 7+5, UsedDays(ref, s))
}

func TestUsedDays_EmptySet(t *testing.T) {
	assert.Equal(t, 0, UsedDays(day("2026-01-01"), trip.Set{}))
	assert.Equal(t, 90, RemainingDays(day("2026-01-01"), nil))
}

func TestRemainingDays_ClampsAtZero(t *testing.T) {
	s := set(t, "2026-01-01", "2026-04-30") // 120 days
	ref := day("2026-04-30")

	assert.Equal(t, 120, UsedDays(ref, s))
	assert.Equal(t, 0, RemainingDays(ref, s))
}

func TestUsedPlusRemaining_IsAllowance(t *testing.T) {
	s := set(t,
		"2025-09-01", "2025-09-30",
		"2025-11-10", "2025-12-05",
		"2026-01-15", "2026-02-20",
		"2026-04-01", "2026-04-10",
	)
	start := day("2025-08-01")
	for d := start; d <= start.Add(400); d++ {
		used := UsedDays(d, s)
		rem := RemainingDays(d, s)
		if used <= 90 {
			assert.Equal(t, 90, used+rem, "ref=%s", d)
		} else {
			assert.Zero(t, rem, "ref=%s", d)
		}
	}
}

func TestRule_CustomParameters(t *testing.T) {
	r := Rule{WindowDays: 30, AllowanceDays: 10}
	require.NoError(t, r.Validate())

	s := set(t, "2026-01-01", "2026-01-08")
	assert.Equal(t, 8, r.UsedDays(day("2026-01-30"), s))
	assert.Equal(t, 7, r.UsedDays(day("2026-01-31"), s))
	assert.Equal(t, 2, r.RemainingDays(day("2026-01-30"), s))
	assert.Equal(t, "10/30", r.String())
}

func TestRule_Validate(t *testing.T) {
	assert.NoError(t, Schengen.Validate())
	assert.Error(t, Rule{WindowDays: 0, AllowanceDays: 0}.Validate())
	err := Rule{WindowDays: 10, AllowanceDays: 20}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowance cannot exceed the window")
}
