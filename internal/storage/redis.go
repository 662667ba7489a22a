package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/developingchet/staywindow/internal/trip"
)

var _ Store = (*RedisStore)(nil)

// keyPrefix namespaces every key this store writes.
const keyPrefix = "staywindow:trips:"

// maxTxRetries bounds optimistic-lock retries in UpdateTrips.
const maxTxRetries = 5

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore keeps one string key per traveller holding the JSON trip array.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to Redis and verifies the connection with a PING.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: connect redis %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client}, nil
}

func redisKey(traveller string) string {
	return keyPrefix + TravellerKey(traveller)
}

func (s *RedisStore) LoadRawTrips(ctx context.Context, traveller string) ([]trip.Raw, error) {
	data, err := s.client.Get(ctx, redisKey(traveller)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []trip.Raw{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get trips: %w", err)
	}
	return decodeRaw(data)
}

func (s *RedisStore) SaveTrips(ctx context.Context, traveller string, set trip.Set) error {
	data, err := encodeSet(set)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(traveller), data, 0).Err(); err != nil {
		return fmt.Errorf("storage: set trips: %w", err)
	}
	return nil
}

// UpdateTrips uses WATCH/MULTI so a concurrent writer forces a retry instead
// of a lost update.
func (s *RedisStore) UpdateTrips(ctx context.Context, traveller string, fn UpdateFunc) (trip.Set, error) {
	key := redisKey(traveller)
	var next trip.Set

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, err := decodeSet(data)
		if err != nil {
			return err
		}
		next, err = fn(current)
		if err != nil {
			return err
		}
		encoded, err := encodeSet(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("storage: update trips for %q: too much contention", traveller)
}

func (s *RedisStore) Travellers(ctx context.Context) ([]string, error) {
	names := []string{}
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan travellers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// DBPath is empty: Redis has no local database file.
func (s *RedisStore) DBPath() string { return "" }

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
