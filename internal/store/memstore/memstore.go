// Package memstore is the in-process store.Store implementation. It backs
// local development without a Redis server and every unit test in this
// repository. Expiry is evaluated lazily against an injectable clock so tests
// can simulate elapsed windows without sleeping.
package memstore

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sdclabs/chatgate/internal/store"
)

type entry struct {
	value     string
	list      []string
	hash      map[string]string
	stream    []store.StreamEntry
	expiresAt time.Time // zero = no expiry
}

type Store struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time

	seq uint64 // stream id counter
}

func New() *Store {
	return &Store{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

// SetClock replaces the time source. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry at key, dropping it first if it has expired.
// Callers must hold s.mu.
func (s *Store) live(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *Store) setExpiry(e *entry, ttl time.Duration) {
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return "", store.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{value: value}
	s.setExpiry(e, ttl)
	s.data[key] = e
	return nil
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live(key) != nil {
		return false, nil
	}
	e := &entry{value: value}
	s.setExpiry(e, ttl)
	s.data[key] = e
	return true, nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.IncrBy(ctx, key, 1)
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &entry{}
		s.data[key] = e
	}
	cur := int64(0)
	if e.value != "" {
		v, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memstore: value at %q is not an integer", key)
		}
		cur = v
	}
	cur += n
	e.value = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		s.setExpiry(e, ttl)
	}
	return nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return 0, store.ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return store.NoTTL, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *Store) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &entry{hash: make(map[string]string)}
		s.data[key] = e
	}
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	if _, exists := e.hash[field]; exists {
		return false, nil
	}
	e.hash[field] = value
	return true, nil
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.hash == nil {
		return "", store.ErrNotFound
	}
	v, ok := e.hash[field]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &entry{}
		s.data[key] = e
	}
	e.list = append(e.list, values...)
	return nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// every caller scans with a literal prefix and a trailing *; match that
	// directly so keys containing glob metacharacters (e.g. a model name
	// with brackets) are not dropped
	prefix, trailing := strings.CutSuffix(pattern, "*")
	literalPrefix := trailing && !strings.ContainsAny(prefix, "*?[\\")

	var out []string
	for k := range s.data {
		if s.live(k) == nil {
			continue
		}
		if literalPrefix {
			if strings.HasPrefix(k, prefix) {
				out = append(out, k)
			}
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) XAdd(ctx context.Context, key string, values map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &entry{}
		s.data[key] = e
	}
	s.seq++
	id := fmt.Sprintf("%d-%d", s.now().UnixMilli(), s.seq)
	vals := make(map[string]string, len(values))
	for k, v := range values {
		vals[k] = v
	}
	e.stream = append(e.stream, store.StreamEntry{ID: id, Values: vals})
	return id, nil
}

// Stream returns a copy of the stream at key. Test helper.
func (s *Store) Stream(key string) []store.StreamEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return nil
	}
	return append([]store.StreamEntry(nil), e.stream...)
}

func (s *Store) Close() error { return nil }
