package archive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// evictInterval is how often expired records are swept from the memory driver.
const evictInterval = 10 * time.Minute

type memoryRecord struct {
	value     []byte
	tags      map[string]bool
	expiresAt time.Time // zero = no expiry
	seq       uint64
}

// MemoryDriver is an in-memory Driver for single-node deployments and tests.
// Expired records are dropped lazily on read and swept by a background loop.
type MemoryDriver struct {
	mu       sync.RWMutex
	records  map[string]*memoryRecord
	counters map[string]int64
	seq      uint64

	doneCh   chan struct{}
	closeOne sync.Once
}

// NewMemoryDriver creates a memory driver and starts its eviction loop.
func NewMemoryDriver() *MemoryDriver {
	d := &MemoryDriver{
		records:  make(map[string]*memoryRecord),
		counters: make(map[string]int64),
		doneCh:   make(chan struct{}),
	}
	go d.evictionLoop()
	return d
}

func (d *MemoryDriver) Kind() string { return "memory" }

func (d *MemoryDriver) Set(_ context.Context, key string, value []byte, opts SetOptions) error {
	rec := &memoryRecord{
		value: append([]byte(nil), value...),
		tags:  make(map[string]bool, len(opts.Tags)),
	}
	for _, t := range opts.Tags {
		rec.tags[t] = true
	}
	if opts.TTL > 0 {
		rec.expiresAt = time.Now().Add(opts.TTL)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	rec.seq = d.seq
	d.records[key] = rec
	return nil
}

func (d *MemoryDriver) Get(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[key]
	if !ok || expired(rec, time.Now()) {
		return nil, &ErrKeyNotFound{Key: key}
	}
	return append([]byte(nil), rec.value...), nil
}

func (d *MemoryDriver) ListTag(_ context.Context, tag string) ([][]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	var recs []*memoryRecord
	for _, rec := range d.records {
		if rec.tags[tag] && !expired(rec, now) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([][]byte, 0, len(recs))
	for _, rec := range recs {
		out = append(out, append([]byte(nil), rec.value...))
	}
	return out, nil
}

func (d *MemoryDriver) Incr(_ context.Context, key string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters[key]++
	return d.counters[key], nil
}

// Close stops the eviction loop.
func (d *MemoryDriver) Close(_ context.Context) error {
	d.closeOne.Do(func() { close(d.doneCh) })
	return nil
}

func (d *MemoryDriver) evictionLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.doneCh:
			return
		case <-ticker.C:
			d.evictExpired()
		}
	}
}

func (d *MemoryDriver) evictExpired() {
	now := time.Now()

	d.mu.Lock()
	var evicted int
	for key, rec := range d.records {
		if expired(rec, now) {
			delete(d.records, key)
			evicted++
		}
	}
	d.mu.Unlock()

	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("Evicted expired archive records")
	}
}

func expired(rec *memoryRecord, now time.Time) bool {
	return !rec.expiresAt.IsZero() && rec.expiresAt.Before(now)
}
