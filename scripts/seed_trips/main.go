// seed_trips writes a normalized trip set into a bbolt trips.db for smoke testing.
// It is a standalone tool, not part of the module's test suite.
//
// Usage:
//
//	go run ./scripts/seed_trips --db /path/to/trips.db --traveller alice
//	go run ./scripts/seed_trips --db /path/to/trips.db --from trips.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/developingchet/staywindow/internal/dayindex"
	"github.com/developingchet/staywindow/internal/storage"
	"github.com/developingchet/staywindow/internal/trip"
	"github.com/developingchet/staywindow/internal/window"
)

// sampleTrips returns three past stays totalling 80 days inside the 180-day
// window ending at ref, which the default policy reports as a warning.
func sampleTrips(ref dayindex.Day) []trip.Raw {
	span := func(from, to int) trip.Raw {
		return trip.Raw{Entry: ref.Add(-from).String(), Exit: ref.Add(-to).String()}
	}
	return []trip.Raw{
		span(170, 141), // 30 days
		span(100, 71),  // 30 days
		span(30, 11),   // 20 days
	}
}

// loadTrips reads a JSON trip array from path.
func loadTrips(path string) ([]trip.Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trip.DecodeJSON(f)
}

// seed normalizes raw and stores it for traveller, replacing what was there.
func seed(ctx context.Context, dbPath, traveller string, raw []trip.Raw) (trip.Set, []trip.SkipReason, error) {
	s, skipped := trip.Normalize(raw)

	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, skipped, err
	}
	defer store.Close()

	if err := store.SaveTrips(ctx, traveller, s); err != nil {
		return nil, skipped, err
	}
	return s, skipped, nil
}

func main() {
	dbPath := flag.String("db", "", "Path to trips.db (required)")
	traveller := flag.String("traveller", "default", "Traveller key to write")
	from := flag.String("from", "", "JSON file of {entry, exit} trips (default: built-in sample)")
	refFlag := flag.String("ref", "", "Reference day for the sample, YYYY-MM-DD (default: today UTC)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("--db is required")
	}

	ref := dayindex.FromTime(time.Now().UTC())
	if *refFlag != "" {
		d, err := dayindex.Parse(*refFlag)
		if err != nil {
			log.Fatalf("--ref: %v", err)
		}
		ref = d
	}

	raw := sampleTrips(ref)
	if *from != "" {
		var err error
		if raw, err = loadTrips(*from); err != nil {
			log.Fatalf("read %s: %v", *from, err)
		}
	}

	s, skipped, err := seed(context.Background(), *dbPath, *traveller, raw)
	if err != nil {
		log.Fatalf("seed %s: %v", *dbPath, err)
	}
	for i := range skipped {
		fmt.Printf("[seed_trips] skipped %v\n", &skipped[i])
	}
	for _, iv := range s {
		fmt.Printf("[seed_trips] trips bucket: key=%s  %s (%d days)\n", storage.TravellerKey(*traveller), iv, iv.Days())
	}
	fmt.Printf("[seed_trips] done: %d trip(s), %d days used on %s under %s\n",
		len(s), window.Schengen.UsedDays(ref, s), ref, window.Schengen)
}
