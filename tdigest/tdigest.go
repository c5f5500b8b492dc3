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

package tdigest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/constraints"
)

const (
	DefaultDelta = 0.01
	DefaultK     = 25
	DefaultCX    = 1.1

	// Discrete passed as delta disables merging: every distinct value keeps its own centroid
	// and queries report exact order statistics.
	Discrete = 0.0
)

var (
	ErrNaN          = errors.New("operation is undefined for NaN")
	ErrInfinity     = errors.New("operation is undefined for infinite values")
	ErrZeroWeight   = errors.New("centroid weight must be positive")
	ErrInvalidDelta = errors.New("delta must be between 0 and 1 inclusive")
	ErrInvalidCX    = errors.New("cx must be non-negative")
)

// TDigest estimates percentiles and percentile ranks of a stream of weighted values.
//
// Values are digested one at a time into centroids kept ordered by mean. A value that lands
// exactly on a centroid is always absorbed by it; otherwise the nearest centroid absorbs the
// whole weight if its capacity, 4*n*delta*q*(1-q) for its estimated quantile q, allows,
// and a new centroid is created if not. The minimum and maximum centroids never absorb
// values other than their own mean, so the extremes of the stream are kept exactly.
//
// Monotonic input defeats merging, since every new value is an extreme. Compress re-digests
// the centroids in random order to recover, and runs automatically once the digest holds
// more than k/delta centroids.
//
// A TDigest is not safe for concurrent use.
type TDigest struct {
	index *centroidIndex

	delta    float64
	discrete bool
	k        uint
	cx       float64

	n            uint64
	lastCumulate uint64
	resets       uint64
	singletons   int
	compressing  bool

	rng    *rand.Rand
	logger log.Logger
}

// New creates a TDigest with compression factor delta, the largest fraction of the total
// weight a single centroid may own. Use DefaultDelta for a sensible default or Discrete to
// disable merging.
func New(delta float64, opts ...OptionFunc) (*TDigest, error) {
	if math.IsNaN(delta) || delta < 0 || delta > 1 {
		return nil, ErrInvalidDelta
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if math.IsNaN(options.cx) || options.cx < 0 {
		return nil, ErrInvalidCX
	}
	if options.rng == nil {
		options.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	t := &TDigest{
		index:  newCentroidIndex(),
		k:      options.k,
		cx:     options.cx,
		rng:    options.rng,
		logger: options.logger,
	}
	t.setDelta(delta)
	t.Reset()
	return t, nil
}

// Push digests x with weight n. A weight of zero is treated as the default weight of one.
func (t *TDigest) Push(x float64, n uint64) error {
	if err := validateValue(x); err != nil {
		return err
	}
	t.digest(x, defaultWeight(n))
	return nil
}

// PushSlice digests every value of xs with weight n. Nothing is digested if any value is
// invalid.
func (t *TDigest) PushSlice(xs []float64, n uint64) error {
	for _, x := range xs {
		if err := validateValue(x); err != nil {
			return err
		}
	}
	n = defaultWeight(n)
	for _, x := range xs {
		t.digest(x, n)
	}
	return nil
}

// SlicePusher is implemented by TDigest and Digest.
type SlicePusher interface {
	PushSlice(xs []float64, n uint64) error
}

// PushValues digests numeric values of any integer or floating point type through the
// PushSlice of p, so a Digest still checks for the switch to continuous mode.
func PushValues[T constraints.Integer | constraints.Float](p SlicePusher, xs []T, n uint64) error {
	values := make([]float64, len(xs))
	for i, x := range xs {
		values[i] = float64(x)
	}
	return p.PushSlice(values, n)
}

// PushCentroid digests an existing centroid as a weighted point, going through the same merge
// rules as Push.
func (t *TDigest) PushCentroid(c Centroid) error {
	if err := validateCentroid(c); err != nil {
		return err
	}
	t.digest(c.Mean, c.N)
	return nil
}

// PushCentroids digests centroids in order. Nothing is digested if any centroid is invalid.
func (t *TDigest) PushCentroids(cs []Centroid) error {
	for _, c := range cs {
		if err := validateCentroid(c); err != nil {
			return err
		}
	}
	for _, c := range cs {
		t.digest(c.Mean, c.N)
	}
	return nil
}

// Compress re-digests the current centroids in random order. It never increases the number of
// centroids and keeps the minimum and maximum means.
func (t *TDigest) Compress() {
	if t.compressing {
		return
	}
	before := t.index.size()
	points := t.ToSlice(false)
	t.Reset()

	t.compressing = true
	t.rng.Shuffle(len(points), func(i, j int) {
		points[i], points[j] = points[j], points[i]
	})
	for _, c := range points {
		t.digest(c.Mean, c.N)
	}
	t.cumulate(true)
	t.compressing = false

	level.Debug(t.logger).Log(
		"msg", "recompressed t-digest",
		"before", before,
		"after", t.index.size(),
		"count", t.n,
		"resets", t.resets,
	)
}

// Reset removes all centroids and keeps the configuration.
func (t *TDigest) Reset() {
	t.index.clear()
	t.n = 0
	t.lastCumulate = 0
	t.singletons = 0
	t.resets++
}

// IsEmpty returns true if the digest has not seen any data.
func (t *TDigest) IsEmpty() bool {
	return t.index.size() == 0
}

// Size returns the number of centroids.
func (t *TDigest) Size() int {
	return t.index.size()
}

// Count returns the total weight digested.
func (t *TDigest) Count() uint64 {
	return t.n
}

// Min returns the smallest centroid mean, or NaN when empty.
func (t *TDigest) Min() float64 {
	if c := t.index.min(); c != nil {
		return c.mean
	}
	return math.NaN()
}

// Max returns the largest centroid mean, or NaN when empty.
func (t *TDigest) Max() float64 {
	if c := t.index.max(); c != nil {
		return c.mean
	}
	return math.NaN()
}

// Delta returns the compression factor, Discrete when merging is disabled.
func (t *TDigest) Delta() float64 {
	return t.delta
}

// IsDiscrete reports whether merging is disabled.
func (t *TDigest) IsDiscrete() bool {
	return t.discrete
}

// Resets returns how many times the digest has been reset, counting construction and every
// recompression.
func (t *TDigest) Resets() uint64 {
	return t.resets
}

// ToSlice returns the centroids ordered by mean. With everything set, the cumulative counts
// are brought up to date and included.
func (t *TDigest) ToSlice(everything bool) []Centroid {
	if everything {
		t.cumulate(true)
	}
	result := make([]Centroid, 0, t.index.size())
	t.index.each(func(c *centroid) {
		result = append(result, c.export(everything))
	})
	return result
}

// Summary returns a human-readable description of the digest.
func (t *TDigest) Summary() string {
	approx := "approximating"
	if t.discrete {
		approx = "exact"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %d samples using %d centroids\n", approx, t.n, t.index.size()))
	sb.WriteString(fmt.Sprintf("min = %v\n", t.Percentile(0)))
	sb.WriteString(fmt.Sprintf("Q1  = %v\n", t.Percentile(0.25)))
	sb.WriteString(fmt.Sprintf("Q2  = %v\n", t.Percentile(0.5)))
	sb.WriteString(fmt.Sprintf("Q3  = %v\n", t.Percentile(0.75)))
	sb.WriteString(fmt.Sprintf("max = %v", t.Percentile(1)))
	return sb.String()
}

func (t *TDigest) setDelta(delta float64) {
	t.delta = delta
	t.discrete = delta == Discrete
}

func (t *TDigest) digest(x float64, n uint64) {
	nearest := t.index.nearest(x, t.discrete, t.lowerOnTie)
	switch {
	case nearest == nil:
		t.newCentroid(x, n, 0)
	case nearest.mean == x:
		// exact matches are absorbed without limit so means stay unique
		t.addWeight(nearest, x, n)
	case nearest == t.index.min():
		t.newCentroid(x, n, 0)
	case nearest == t.index.max():
		t.newCentroid(x, n, float64(t.n))
	case t.discrete:
		t.newCentroid(x, n, nearest.cumn)
	default:
		// all of n or nothing: a partial merge would still need a new centroid for the rest
		q := nearest.meanCumn / float64(t.n)
		maxN := math.Floor(4 * float64(t.n) * t.delta * q * (1 - q))
		if maxN-float64(nearest.n) >= float64(n) {
			t.addWeight(nearest, x, n)
		} else {
			t.newCentroid(x, n, nearest.cumn)
		}
	}

	t.cumulate(false)
	if !t.discrete && t.k != 0 && float64(t.index.size()) > float64(t.k)/t.delta {
		t.Compress()
	}
}

// newCentroid inserts a centroid at x. cumn is a placeholder until the next cumulative scan.
func (t *TDigest) newCentroid(x float64, n uint64, cumn float64) {
	t.index.insert(&centroid{mean: x, n: n, cumn: cumn, meanCumn: cumn})
	t.n += n
	if n == 1 {
		t.singletons++
	}
}

func (t *TDigest) addWeight(c *centroid, x float64, n uint64) {
	if c.n == 1 {
		t.singletons--
	}
	oldMean := c.mean
	c.add(x, n)
	t.n += n
	if into := t.index.rekey(c, oldMean); into != nil {
		if into.n == 1 {
			t.singletons--
		}
		into.absorb(c)
	}
}

// cumulate refreshes cumulative counts. Unless exact is set, the refresh is skipped until the
// total weight has grown by a factor of cx since the last one: during ingest somewhat stale
// counts are good enough to estimate quantiles.
func (t *TDigest) cumulate(exact bool) {
	if t.n == t.lastCumulate {
		return
	}
	if !exact && t.cx > 0 && t.lastCumulate > 0 && t.cx > float64(t.n)/float64(t.lastCumulate) {
		return
	}
	t.index.cumulate()
	t.lastCumulate = t.n
}

func (t *TDigest) lowerOnTie() bool {
	return t.rng.IntN(2) == 0
}

func defaultWeight(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

func validateValue(x float64) error {
	if math.IsNaN(x) {
		return ErrNaN
	}
	if math.IsInf(x, 0) {
		return ErrInfinity
	}
	return nil
}

func validateCentroid(c Centroid) error {
	if c.N == 0 {
		return ErrZeroWeight
	}
	return validateValue(c.Mean)
}
