// Package metrics defines package-level Prometheus metric variables for
// staywindow. Call Register() once at startup to expose them on the default
// registry, or RegisterWith() to use an isolated registry in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// UsedDays is the days used inside the window ending at the last refresh.
	UsedDays = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staywindow_used_days",
		Help: "Days used inside the trailing window, by traveller.",
	}, []string{"traveller"})

	// RemainingDays is the allowance left at the last refresh.
	RemainingDays = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staywindow_remaining_days",
		Help: "Allowance days remaining inside the trailing window, by traveller.",
	}, []string{"traveller"})

	// Status is 1 for the traveller's current tier and 0 for the others.
	Status = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staywindow_status",
		Help: "Current compliance tier (1 = active), by traveller and status.",
	}, []string{"traveller", "status"})

	// TripsStored counts normalized intervals per traveller.
	TripsStored = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staywindow_trips_stored",
		Help: "Normalized trip intervals stored, by traveller.",
	}, []string{"traveller"})

	// NormalizeSkipped counts raw trips dropped during normalization.
	// Valid fields: entry, exit.
	NormalizeSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staywindow_normalize_skipped_total",
		Help: "Raw trips skipped during normalization, by failing field (entry|exit).",
	}, []string{"field"})

	// TripMutations counts trip-list edits, labelled by operation.
	// Valid ops: add, edit, delete, import, replace.
	TripMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staywindow_trip_mutations_total",
		Help: "Trip list mutations, by operation (add|edit|delete|import|replace).",
	}, []string{"op"})

	// BboltDBSizeBytes tracks the on-disk size of the bbolt database.
	BboltDBSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "staywindow_bbolt_db_size_bytes",
		Help: "Size of the bbolt database file in bytes.",
	})
)

// Register registers all metrics with prometheus.DefaultRegisterer.
// Call once at process startup.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith registers all metrics with the given registerer.
// Use an isolated prometheus.NewRegistry() in tests to avoid conflicts.
func RegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(
		UsedDays,
		RemainingDays,
		Status,
		TripsStored,
		NormalizeSkipped,
		TripMutations,
		BboltDBSizeBytes,
	)
}
