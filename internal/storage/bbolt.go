package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/developingchet/staywindow/internal/trip"
)

// Compile-time proof that BoltStore satisfies the Store interface.
var _ Store = (*BoltStore)(nil)

var bucketTrips = []byte("trips")

// BoltStore is an ACID bbolt-backed implementation of Store.
// It is safe for concurrent use.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (or creates) a bbolt database at path and initialises the
// trips bucket. The parent directory is created if missing.
func Open(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTrips)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) LoadRawTrips(_ context.Context, traveller string) ([]trip.Raw, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Copy: the slice is only valid inside the transaction.
		if v := tx.Bucket(bucketTrips).Get([]byte(TravellerKey(traveller))); v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeRaw(data)
}

func (s *BoltStore) SaveTrips(_ context.Context, traveller string, set trip.Set) error {
	data, err := encodeSet(set)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrips).Put([]byte(TravellerKey(traveller)), data)
	})
}

// UpdateTrips runs load, fn and save inside a single bolt.Update.
func (s *BoltStore) UpdateTrips(_ context.Context, traveller string, fn UpdateFunc) (trip.Set, error) {
	key := []byte(TravellerKey(traveller))
	var next trip.Set
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTrips)
		current, err := decodeSet(b.Get(key))
		if err != nil {
			return err
		}
		next, err = fn(current)
		if err != nil {
			return err
		}
		data, err := encodeSet(next)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *BoltStore) Travellers(_ context.Context) ([]string, error) {
	names := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		// bbolt iterates keys in byte order, so the result is already sorted.
		return tx.Bucket(bucketTrips).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Ping confirms the database still answers a read transaction.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTrips) == nil {
			return fmt.Errorf("storage: bucket %s missing", bucketTrips)
		}
		return nil
	})
}

// DBPath returns the filesystem path of the database file.
func (s *BoltStore) DBPath() string { return s.db.Path() }

// Close cleanly closes the underlying bbolt database.
func (s *BoltStore) Close() error { return s.db.Close() }
