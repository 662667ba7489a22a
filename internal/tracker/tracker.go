// Package tracker owns a traveller's trip list and answers usage questions
// against it. Every answer is recomputed from the stored, normalized set; the
// reference day is always supplied by the caller.
package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/developingchet/staywindow/internal/compliance"
	"github.com/developingchet/staywindow/internal/config"
	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/metrics"
	"github.com/developingchet/staywindow/internal/simulate"
	"github.com/developingchet/staywindow/internal/storage"
	"github.com/developingchet/staywindow/internal/trip"
	"github.com/developingchet/staywindow/internal/window"
)

// Tracker binds a store to one traveller, a rule and a classification policy.
type Tracker struct {
	traveller string
	rule      window.Rule
	policy    compliance.Policy
	sim       *simulate.Simulator
	store     storage.Store

	// mu serializes writes across every Tracker sharing this store.
	mu *sync.Mutex
}

// Snapshot is the usage summary for one reference day.
type Snapshot struct {
	Traveller string            `json:"traveller"`
	Ref       dayindex.Day      `json:"ref"`
	Rule      string            `json:"rule"`
	Window    window.Window     `json:"window"`
	Used      int               `json:"used"`
	Remaining int               `json:"remaining"`
	Status    compliance.Status `json:"status"`
	Trips     int               `json:"trips"`
}

// OpenStore opens the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreBackend {
	case "bolt":
		s, err := storage.Open(filepath.Join(cfg.DataDir, "trips.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := storage.OpenRedis(ctx, storage.RedisOptions{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisTimeout,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return storage.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("tracker: unknown store backend %q", cfg.StoreBackend)
	}
}

// New creates a Tracker for cfg.Traveller on top of store.
func New(cfg *config.Config, store storage.Store) (*Tracker, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	rule := cfg.Rule()
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	return &Tracker{
		traveller: storage.TravellerKey(cfg.Traveller),
		rule:      rule,
		policy:    policy,
		sim:       simulate.New(rule),
		store:     store,
		mu:        &sync.Mutex{},
	}, nil
}

// For returns a Tracker for another traveller sharing the same store, rule
// and write lock. An empty name returns t.
func (t *Tracker) For(traveller string) *Tracker {
	if strings.TrimSpace(traveller) == "" {
		return t
	}
	key := storage.TravellerKey(traveller)
	if key == t.traveller {
		return t
	}
	other := *t
	other.traveller = key
	return &other
}

// Traveller returns the storage key this Tracker reads and writes.
func (t *Tracker) Traveller() string { return t.traveller }

// Rule returns the configured window rule.
func (t *Tracker) Rule() window.Rule { return t.rule }

// Policy returns the classification table in use.
func (t *Tracker) Policy() compliance.Policy { return t.policy }

// Store exposes the backing store for health checks.
func (t *Tracker) Store() storage.Store { return t.store }

// Travellers lists every traveller with stored trips.
func (t *Tracker) Travellers(ctx context.Context) ([]string, error) {
	return t.store.Travellers(ctx)
}

// Trips returns the traveller's normalized set. Stored items that no longer
// decode are skipped and logged.
func (t *Tracker) Trips(ctx context.Context) (trip.Set, error) {
	raw, err := t.store.LoadRawTrips(ctx, t.traveller)
	if err != nil {
		return nil, fmt.Errorf("tracker: load trips: %w", err)
	}
	s, skipped := trip.Normalize(raw)
	t.recordSkips(skipped, "stored trip skipped")
	return s, nil
}

// Snapshot computes used, remaining and status for the window ending at ref.
func (t *Tracker) Snapshot(ctx context.Context, ref dayindex.Day) (Snapshot, error) {
	s, err := t.Trips(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return t.snapshotOf(ref, s), nil
}

func (t *Tracker) snapshotOf(ref dayindex.Day, s trip.Set) Snapshot {
	used := t.rule.UsedDays(ref, s)
	remaining := t.rule.RemainingDays(ref, s)
	return Snapshot{
		Traveller: t.traveller,
		Ref:       ref,
		Rule:      t.rule.String(),
		Window:    t.rule.Window(ref),
		Used:      used,
		Remaining: remaining,
		Status:    t.policy.Classify(used, remaining),
		Trips:     len(s),
	}
}

// Plan answers "if I enter on entry, how long can I stay".
func (t *Tracker) Plan(ctx context.Context, entry dayindex.Day) (simulate.Plan, error) {
	s, err := t.Trips(ctx)
	if err != nil {
		return simulate.Plan{}, err
	}
	return t.sim.Plan(entry, s), nil
}

// NextSafeEntry returns the earliest compliant entry day at or after start.
// The error wraps simulate.ErrBoundExhausted when the search runs out.
func (t *Tracker) NextSafeEntry(ctx context.Context, start dayindex.Day) (dayindex.Day, error) {
	s, err := t.Trips(ctx)
	if err != nil {
		return start, err
	}
	return t.sim.NextSafeEntry(start, s)
}

// AddTrip merges iv into the stored set.
func (t *Tracker) AddTrip(ctx context.Context, iv trip.Interval) (trip.Set, error) {
	return t.mutate(ctx, "add", func(cur trip.Set) (trip.Set, error) {
		return cur.With(iv), nil
	})
}

// EditTrip replaces the i-th stored interval (0-based, ascending order).
func (t *Tracker) EditTrip(ctx context.Context, i int, iv trip.Interval) (trip.Set, error) {
	return t.mutate(ctx, "edit", func(cur trip.Set) (trip.Set, error) {
		return cur.Replace(i, iv)
	})
}

// DeleteTrip removes the i-th stored interval.
func (t *Tracker) DeleteTrip(ctx context.Context, i int) (trip.Set, error) {
	return t.mutate(ctx, "delete", func(cur trip.Set) (trip.Set, error) {
		return cur.Without(i)
	})
}

// ImportTrips normalizes raw and either merges it into the stored set or,
// with replace, stores it in place of the current set. Undecodable items are
// returned as skips and never abort the import.
func (t *Tracker) ImportTrips(ctx context.Context, raw []trip.Raw, replace bool) (trip.Set, []trip.SkipReason, error) {
	incoming, skipped := trip.Normalize(raw)
	t.recordSkips(skipped, "imported trip skipped")

	op := "import"
	if replace {
		op = "replace"
	}
	s, err := t.mutate(ctx, op, func(cur trip.Set) (trip.Set, error) {
		if replace {
			return incoming, nil
		}
		all := make([]trip.Interval, 0, len(cur)+len(incoming))
		all = append(all, cur...)
		return trip.NormalizeIntervals(append(all, incoming...)), nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return s, skipped, nil
}

func (t *Tracker) mutate(ctx context.Context, op string, fn storage.UpdateFunc) (trip.Set, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.store.UpdateTrips(ctx, t.traveller, fn)
	if err != nil {
		return nil, fmt.Errorf("tracker: %s trip: %w", op, err)
	}

	metrics.TripMutations.WithLabelValues(op).Inc()
	metrics.TripsStored.WithLabelValues(t.traveller).Set(float64(len(s)))
	log.Info().
		Str("traveller", t.traveller).
		Str("op", op).
		Int("trips", len(s)).
		Int("total_days", s.TotalDays()).
		Msg("trips updated")
	return s, nil
}

func (t *Tracker) recordSkips(skipped []trip.SkipReason, msg string) {
	for _, r := range skipped {
		metrics.NormalizeSkipped.WithLabelValues(r.Field).Inc()
		log.Warn().
			Str("traveller", t.traveller).
			Int("index", r.Index).
			Str("field", r.Field).
			Str("detail", r.Detail).
			Msg(msg)
	}
}

// Close closes the backing store.
func (t *Tracker) Close() error {
	return t.store.Close()
}
