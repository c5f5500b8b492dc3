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
	"math"
	"math/rand/v2"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	DefaultRatio     = 0.9
	DefaultThreshold = 1000
)

var (
	ErrInvalidRatio = errors.New("ratio must be between 0 and 1 inclusive")
	ErrInvalidMode  = errors.New("invalid digest mode")
)

// Mode selects how a Digest treats its input.
type Mode int

const (
	// ModeAuto starts discrete and switches to continuous once the data looks continuous.
	ModeAuto Mode = iota
	ModeDiscrete
	ModeContinuous
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeDiscrete:
		return "discrete"
	case ModeContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

type digestOptions struct {
	mode      Mode
	delta     float64
	ratio     float64
	threshold int
	rng       *rand.Rand
	logger    log.Logger
}

// DigestOptionFunc configures a Digest.
type DigestOptionFunc func(*digestOptions)

func WithMode(mode Mode) DigestOptionFunc {
	return func(opts *digestOptions) {
		opts.mode = mode
	}
}

// WithDigestDelta sets the compression factor used in continuous mode.
func WithDigestDelta(delta float64) DigestOptionFunc {
	return func(opts *digestOptions) {
		opts.delta = delta
	}
}

// WithRatio sets the fraction of single-weight centroids above which an auto mode digest
// assumes continuous data.
func WithRatio(ratio float64) DigestOptionFunc {
	return func(opts *digestOptions) {
		opts.ratio = ratio
	}
}

// WithThreshold sets the number of centroids an auto mode digest must hold before it
// considers switching.
func WithThreshold(threshold int) DigestOptionFunc {
	return func(opts *digestOptions) {
		opts.threshold = threshold
	}
}

func WithDigestRand(rng *rand.Rand) DigestOptionFunc {
	return func(opts *digestOptions) {
		opts.rng = rng
	}
}

func WithDigestLogger(logger log.Logger) DigestOptionFunc {
	return func(opts *digestOptions) {
		opts.logger = logger
	}
}

// Digest is a TDigest that can start as an exact histogram and turn into an approximating
// digest once the input proves to be mostly unique values.
//
// In ModeAuto the digest is discrete until it holds at least threshold centroids of which
// more than ratio have a weight of one. It then switches to continuous mode with the
// configured delta and compresses itself. The switch is permanent.
type Digest struct {
	*TDigest

	mode      Mode
	delta     float64
	ratio     float64
	threshold int
}

// NewDigest creates a Digest. The default is ModeAuto with DefaultDelta, DefaultRatio and
// DefaultThreshold.
func NewDigest(opts ...DigestOptionFunc) (*Digest, error) {
	options := &digestOptions{
		mode:      ModeAuto,
		delta:     DefaultDelta,
		ratio:     DefaultRatio,
		threshold: DefaultThreshold,
		logger:    log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.mode < ModeAuto || options.mode > ModeContinuous {
		return nil, ErrInvalidMode
	}
	if math.IsNaN(options.delta) || options.delta <= 0 || options.delta > 1 {
		return nil, ErrInvalidDelta
	}
	if math.IsNaN(options.ratio) || options.ratio < 0 || options.ratio > 1 {
		return nil, ErrInvalidRatio
	}

	delta := Discrete
	if options.mode == ModeContinuous {
		delta = options.delta
	}
	tdOpts := []OptionFunc{WithLogger(options.logger)}
	if options.rng != nil {
		tdOpts = append(tdOpts, WithRand(options.rng))
	}
	td, err := New(delta, tdOpts...)
	if err != nil {
		return nil, err
	}

	return &Digest{
		TDigest:   td,
		mode:      options.mode,
		delta:     options.delta,
		ratio:     options.ratio,
		threshold: options.threshold,
	}, nil
}

// Mode returns the current mode. An auto mode digest reports ModeContinuous after switching.
func (d *Digest) Mode() Mode {
	return d.mode
}

func (d *Digest) Push(x float64, n uint64) error {
	if err := d.TDigest.Push(x, n); err != nil {
		return err
	}
	d.checkContinuous()
	return nil
}

func (d *Digest) PushSlice(xs []float64, n uint64) error {
	if err := d.TDigest.PushSlice(xs, n); err != nil {
		return err
	}
	d.checkContinuous()
	return nil
}

func (d *Digest) PushCentroid(c Centroid) error {
	if err := d.TDigest.PushCentroid(c); err != nil {
		return err
	}
	d.checkContinuous()
	return nil
}

func (d *Digest) PushCentroids(cs []Centroid) error {
	if err := d.TDigest.PushCentroids(cs); err != nil {
		return err
	}
	d.checkContinuous()
	return nil
}

// Load replaces the contents with serialized ones. A continuous digest turns the Digest
// continuous. A discrete one leaves an auto mode Digest in auto mode.
func (d *Digest) Load(data []byte) error {
	if err := d.TDigest.Load(data); err != nil {
		return err
	}
	if !d.IsDiscrete() {
		d.mode = ModeContinuous
		return nil
	}
	if d.mode == ModeContinuous {
		d.mode = ModeDiscrete
	}
	d.checkContinuous()
	return nil
}

// checkContinuous switches an auto mode digest to continuous mode when most centroids are
// singletons. It returns true on the transition.
func (d *Digest) checkContinuous() bool {
	size := d.Size()
	if d.mode != ModeAuto || size == 0 || size < d.threshold {
		return false
	}
	if float64(d.singletons)/float64(size) <= d.ratio {
		return false
	}
	d.mode = ModeContinuous
	d.setDelta(d.delta)
	d.Compress()
	level.Info(d.logger).Log(
		"msg", "switched digest to continuous mode",
		"centroids", size,
		"singletons_after", d.singletons,
		"compressed", d.Size(),
	)
	return true
}
