// Package redisstore keeps reservations and charging sessions in Redis so
// several service instances share them and they survive restarts.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openchargingcloud/wwcp/core/charging"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultPrefix       = "wwcp"
	// reservationGrace keeps expired reservations around long enough to
	// answer a late remote start.
	reservationGrace = 5 * time.Minute
)

// Config configures the Redis connection.
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	// SessionTTL bounds how long ended sessions are kept. Zero keeps them for 24h.
	SessionTTL time.Duration `json:"session_ttl"`
}

// Store implements charging.ReservationStore and charging.SessionStore.
type Store struct {
	rdb        redis.Cmdable
	closer     func() error
	prefix     string
	sessionTTL time.Duration
	now        func() time.Time
}

// Dial connects to Redis and validates the connection with PING.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     defaultDialTimeout,
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	s := New(client, cfg)
	s.closer = client.Close
	return s, nil
}

// New wraps an existing client.
func New(rdb redis.Cmdable, cfg Config) *Store {
	s := &Store{rdb: rdb, prefix: cfg.Prefix, sessionTTL: cfg.SessionTTL, now: time.Now}
	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 24 * time.Hour
	}
	return s
}

// Close closes the connection opened by Dial.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *Store) reservationKey(id string) string { return s.key("reservation", id) }
func (s *Store) reservationsKey() string         { return s.key("reservations") }
func (s *Store) sessionKey(id string) string     { return s.key("session", id) }
func (s *Store) activeKey() string               { return s.key("sessions", "active") }

// reservationTTL is the time until the reservation ended plus a grace period.
func (s *Store) reservationTTL(r charging.Reservation) time.Duration {
	ttl := r.EndTime().Sub(s.now()) + reservationGrace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *Store) Add(ctx context.Context, r charging.Reservation) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.reservationKey(r.ID), b, s.reservationTTL(r))
		p.SAdd(ctx, s.reservationsKey(), r.ID)
		return nil
	})
	return err
}

func (s *Store) Get(ctx context.Context, id string) (charging.Reservation, error) {
	var r charging.Reservation
	if err := s.getJSON(ctx, s.reservationKey(id), &r); err != nil {
		if errors.Is(err, redis.Nil) {
			return r, charging.ErrReservationNotFound
		}
		return r, err
	}
	return r, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	var n *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		n = p.Del(ctx, s.reservationKey(id))
		p.SRem(ctx, s.reservationsKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if n.Val() == 0 {
		return charging.ErrReservationNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]charging.Reservation, error) {
	var out []charging.Reservation
	err := s.members(ctx, s.reservationsKey(), s.reservationKey, func(data string) error {
		var r charging.Reservation
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, err
}

// Save stores a session. Active sessions never expire; ended ones are kept
// for the session TTL.
func (s *Store) Save(ctx context.Context, cs charging.ChargingSession) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if cs.Active() {
			p.Set(ctx, s.sessionKey(cs.ID), b, 0)
			p.SAdd(ctx, s.activeKey(), cs.ID)
		} else {
			p.Set(ctx, s.sessionKey(cs.ID), b, s.sessionTTL)
			p.SRem(ctx, s.activeKey(), cs.ID)
		}
		return nil
	})
	return err
}

// Session returns a session by id. It is Get of the SessionStore view.
func (s *Store) Session(ctx context.Context, id string) (charging.ChargingSession, error) {
	var cs charging.ChargingSession
	if err := s.getJSON(ctx, s.sessionKey(id), &cs); err != nil {
		if errors.Is(err, redis.Nil) {
			return cs, charging.ErrSessionNotFound
		}
		return cs, err
	}
	return cs, nil
}

func (s *Store) Active(ctx context.Context) ([]charging.ChargingSession, error) {
	var out []charging.ChargingSession
	err := s.members(ctx, s.activeKey(), s.sessionKey, func(data string) error {
		var cs charging.ChargingSession
		if err := json.Unmarshal([]byte(data), &cs); err != nil {
			return err
		}
		out = append(out, cs)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, err
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// members loads every value referenced by the id set at setKey and drops ids
// whose value expired.
func (s *Store) members(ctx context.Context, setKey string, valueKey func(string) string, fn func(string) error) error {
	ids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil || len(ids) == 0 {
		return err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = valueKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return err
	}
	var stale []any
	for i, v := range vals {
		data, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		if err := fn(data); err != nil {
			return fmt.Errorf("decode %s: %w", keys[i], err)
		}
	}
	if len(stale) > 0 {
		return s.rdb.SRem(ctx, setKey, stale...).Err()
	}
	return nil
}

// Sessions adapts the store to charging.SessionStore, whose Get conflicts
// with the reservation lookup.
func (s *Store) Sessions() charging.SessionStore { return sessionView{s} }

type sessionView struct{ s *Store }

func (v sessionView) Save(ctx context.Context, cs charging.ChargingSession) error {
	return v.s.Save(ctx, cs)
}

func (v sessionView) Get(ctx context.Context, id string) (charging.ChargingSession, error) {
	return v.s.Session(ctx, id)
}

func (v sessionView) Active(ctx context.Context) ([]charging.ChargingSession, error) {
	return v.s.Active(ctx)
}
