package tracker

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/developingchet/staywindow/internal/compliance"
	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/metrics"
)

// Clock supplies "today" to the refresher. Nothing else in the module reads
// the wall clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time { return time.Now() }

// TestClock returns a fixed time.
type TestClock struct {
	CurrentTime time.Time
}

// Now returns the configured time.
func (c *TestClock) Now() time.Time { return c.CurrentTime }

// Today is the calendar date of the clock's current time in its own location.
func Today(c Clock) dayindex.Day { return dayindex.FromTime(c.Now()) }

// Refresh recomputes the usage gauges for every stored traveller, and for
// t's own traveller even when nothing is stored yet.
func (t *Tracker) Refresh(ctx context.Context, ref dayindex.Day) error {
	names, err := t.store.Travellers(ctx)
	if err != nil {
		return err
	}
	if !contains(names, t.traveller) {
		names = append(names, t.traveller)
	}

	for _, name := range names {
		snap, err := t.For(name).Snapshot(ctx, ref)
		if err != nil {
			return err
		}
		publish(snap)
	}

	if path := t.store.DBPath(); path != "" {
		if info, err := os.Stat(path); err == nil {
			metrics.BboltDBSizeBytes.Set(float64(info.Size()))
		}
	}
	return nil
}

// RunRefresher refreshes the gauges once immediately and then on every tick
// of interval, using clock for the reference day. It returns when ctx is
// cancelled.
func (t *Tracker) RunRefresher(ctx context.Context, clock Clock, interval time.Duration) {
	refresh := func() {
		ref := Today(clock)
		if err := t.Refresh(ctx, ref); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("ref", ref.String()).Msg("refresher: refresh failed")
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func publish(s Snapshot) {
	metrics.UsedDays.WithLabelValues(s.Traveller).Set(float64(s.Used))
	metrics.RemainingDays.WithLabelValues(s.Traveller).Set(float64(s.Remaining))
	metrics.TripsStored.WithLabelValues(s.Traveller).Set(float64(s.Trips))
	for _, st := range compliance.Statuses {
		v := 0.0
		if st == s.Status {
			v = 1
		}
		metrics.Status.WithLabelValues(s.Traveller, string(st)).Set(v)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
