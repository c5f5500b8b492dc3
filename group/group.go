/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package group

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/twmb/murmur3"

	"github.com/streamsketch/tdigest-go/tdigest"
)

const fingerprintSeed = uint64(9001)

var (
	ErrInvalidShards = errors.New("shards must be positive")
	ErrKeyNotFound   = errors.New("key not found")
)

// Group is a keyed collection of digests. Keys are spread over shards by hash and each shard
// has its own lock, so a Group is safe for concurrent use. Digests never share a source of
// randomness.
type Group struct {
	shards     []*shard
	delta      float64
	digestOpts []tdigest.OptionFunc
	logger     log.Logger
	metrics    *Metrics

	rngMu sync.Mutex
	rng   *rand.Rand
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	td *tdigest.TDigest

	// fingerprint of the centroids as of the last successful flush, zero if never flushed
	fingerprint uint64
}

// New creates an empty Group.
func New(opts ...OptionFunc) (*Group, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.shards <= 0 {
		return nil, ErrInvalidShards
	}
	// validate the digest configuration once up front
	if _, err := tdigest.New(options.delta, options.digestOpts...); err != nil {
		return nil, err
	}

	shards := make([]*shard, options.shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	rng := options.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Group{
		shards:     shards,
		delta:      options.delta,
		digestOpts: options.digestOpts,
		logger:     options.logger,
		metrics:    NewMetrics(options.registerer),
		rng:        rng,
	}, nil
}

// digestOptions returns the configured digest options followed by a source of randomness
// owned by a single digest.
func (g *Group) digestOptions() []tdigest.OptionFunc {
	g.rngMu.Lock()
	seed1, seed2 := g.rng.Uint64(), g.rng.Uint64()
	g.rngMu.Unlock()

	opts := make([]tdigest.OptionFunc, 0, len(g.digestOpts)+1)
	opts = append(opts, g.digestOpts...)
	return append(opts, tdigest.WithRand(rand.New(rand.NewPCG(seed1, seed2))))
}

func (g *Group) shardFor(key string) *shard {
	return g.shards[xxhash.Sum64String(key)%uint64(len(g.shards))]
}

// Push adds x with weight n to the digest of key, creating it if needed.
func (g *Group) Push(key string, x float64, n uint64) error {
	return g.update(key, func(td *tdigest.TDigest) error {
		return td.Push(x, n)
	})
}

// PushSlice adds every value of xs with weight n to the digest of key.
func (g *Group) PushSlice(key string, xs []float64, n uint64) error {
	return g.update(key, func(td *tdigest.TDigest) error {
		return td.PushSlice(xs, n)
	})
}

func (g *Group) update(key string, fn func(td *tdigest.TDigest) error) error {
	s := g.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return fn(e.td)
	}
	td, err := tdigest.New(g.delta, g.digestOptions()...)
	if err != nil {
		return err
	}
	if err := fn(td); err != nil {
		return err
	}
	s.entries[key] = &entry{td: td}
	return nil
}

// Percentile returns the percentile p of the digest of key.
func (g *Group) Percentile(key string, p float64) (float64, error) {
	return g.query(key, func(td *tdigest.TDigest) float64 {
		return td.Percentile(p)
	})
}

// PRank returns the percentile rank of x in the digest of key.
func (g *Group) PRank(key string, x float64) (float64, error) {
	return g.query(key, func(td *tdigest.TDigest) float64 {
		return td.PRank(x)
	})
}

func (g *Group) query(key string, fn func(td *tdigest.TDigest) float64) (float64, error) {
	s := g.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return math.NaN(), fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	return fn(e.td), nil
}

// Keys returns all keys in sorted order.
func (g *Group) Keys() []string {
	var keys []string
	for _, s := range g.shards {
		s.mu.Lock()
		for key := range s.entries {
			keys = append(keys, key)
		}
		s.mu.Unlock()
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of keys.
func (g *Group) Len() int {
	var n int
	for _, s := range g.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Delete removes the digest of key and reports whether it existed.
func (g *Group) Delete(key string) bool {
	s := g.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Load replaces the digest of key with one decoded from data, as produced by Flush. The key
// is considered changed until its next successful flush.
func (g *Group) Load(key string, data []byte) error {
	td, err := tdigest.Decode(data, g.digestOptions()...)
	if err != nil {
		return fmt.Errorf("%q: %w", key, err)
	}

	s := g.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &entry{td: td}
	return nil
}

type pending struct {
	key         string
	entry       *entry
	data        []byte
	fingerprint uint64
}

// Flush calls fn with the small encoding of every digest that changed since its last
// successful flush, in key order. Callbacks run without any lock held. A key whose callback
// fails stays changed and is offered again by the next Flush. The returned error joins every
// encoding and callback failure.
func (g *Group) Flush(fn func(key string, data []byte) error) error {
	var errs []error
	var batch []pending
	for _, s := range g.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.fingerprint != 0 && e.fingerprint == fingerprint(e.td) {
				g.metrics.FlushSkipped.Inc()
				continue
			}
			data, err := e.td.AsSmallBytes()
			if err != nil {
				errs = append(errs, fmt.Errorf("%q: %w", key, err))
				continue
			}
			// encoding recompresses, so fingerprint the digest as encoded
			batch = append(batch, pending{key: key, entry: e, data: data, fingerprint: fingerprint(e.td)})
		}
		s.mu.Unlock()
	}
	slices.SortFunc(batch, func(a, b pending) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		default:
			return 0
		}
	})

	for _, p := range batch {
		if err := fn(p.key, p.data); err != nil {
			level.Error(g.logger).Log("msg", "failed to flush digest", "key", p.key, "err", err)
			g.metrics.FlushErrors.Inc()
			errs = append(errs, fmt.Errorf("%q: %w", p.key, err))
			continue
		}
		g.metrics.Flushed.Inc()

		s := g.shardFor(p.key)
		s.mu.Lock()
		// the digest may have been replaced or deleted while the callback ran
		if s.entries[p.key] == p.entry {
			p.entry.fingerprint = p.fingerprint
		}
		s.mu.Unlock()
	}

	level.Debug(g.logger).Log("msg", "flushed digest group", "flushed", len(batch), "errors", len(errs))
	return errors.Join(errs...)
}

// each calls fn for every key and digest, holding the shard lock during the call.
func (g *Group) each(fn func(key string, td *tdigest.TDigest)) {
	for _, s := range g.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			fn(key, e.td)
		}
		s.mu.Unlock()
	}
}

// fingerprint hashes the centroids of td. Zero is reserved for never flushed.
func fingerprint(td *tdigest.TDigest) uint64 {
	centroids := td.ToSlice(false)
	buf := make([]byte, 0, 16*len(centroids)+8)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(td.Delta()))
	for _, c := range centroids {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Mean))
		buf = binary.BigEndian.AppendUint64(buf, c.N)
	}
	if h := murmur3.SeedSum64(fingerprintSeed, buf); h != 0 {
		return h
	}
	return 1
}
