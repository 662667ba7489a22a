// Package storage persists each traveller's normalized trip set. Stores hold
// the serialized form only ([{entry, exit}, ...] ascending, YYYY-MM-DD); all
// rule evaluation happens in the caller.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/developingchet/staywindow/internal/trip"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store closed")

// UpdateFunc receives the current set and returns its replacement.
type UpdateFunc func(current trip.Set) (trip.Set, error)

// Store is the persistence abstraction shared by the bbolt, Redis and
// in-memory backends. Implementations must be safe for concurrent use.
type Store interface {
	// LoadRawTrips returns the stored trips for traveller, or an empty slice.
	LoadRawTrips(ctx context.Context, traveller string) ([]trip.Raw, error)

	// SaveTrips replaces the stored trips for traveller with s.
	SaveTrips(ctx context.Context, traveller string, s trip.Set) error

	// UpdateTrips atomically loads, transforms and saves the set for traveller.
	// Nothing is written when fn returns an error.
	UpdateTrips(ctx context.Context, traveller string, fn UpdateFunc) (trip.Set, error)

	// Travellers lists every traveller with a stored set, sorted.
	Travellers(ctx context.Context) ([]string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// DBPath returns the filesystem path of the database file ("" if none).
	DBPath() string

	Close() error
}

// TravellerKey folds a traveller name into its storage key: trimmed, lower-cased,
// with separators and whitespace replaced by underscores.
func TravellerKey(traveller string) string {
	traveller = strings.ToLower(strings.TrimSpace(traveller))
	if traveller == "" {
		return "default"
	}
	result := make([]byte, len(traveller))
	for i := 0; i < len(traveller); i++ {
		switch c := traveller[i]; c {
		case ':', '/', ' ', '\t':
			result[i] = '_'
		default:
			result[i] = c
		}
	}
	return string(result)
}

func encodeSet(s trip.Set) ([]byte, error) {
	return json.Marshal(s.Raw())
}

func decodeRaw(data []byte) ([]trip.Raw, error) {
	if len(data) == 0 {
		return []trip.Raw{}, nil
	}
	var raw []trip.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("storage: decode trips: %w", err)
	}
	return raw, nil
}

// decodeSet loads stored bytes back into a Set. Stored data is already
// normalized, so any skipped item means the record was edited out of band.
func decodeSet(data []byte) (trip.Set, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}
	s, skipped := trip.Normalize(raw)
	if len(skipped) > 0 {
		return nil, fmt.Errorf("storage: stored trips are corrupt: %w", &skipped[0])
	}
	return s, nil
}
