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
	"math/rand/v2"

	"github.com/go-kit/log"
)

type options struct {
	k      uint
	cx     float64
	rng    *rand.Rand
	logger log.Logger
}

// OptionFunc configures a TDigest.
type OptionFunc func(*options)

// WithK sets the recompression size threshold divisor. The digest recompresses itself once it
// holds more than k/delta centroids. Zero disables automatic recompression.
func WithK(k uint) OptionFunc {
	return func(opts *options) {
		opts.k = k
	}
}

// WithCX sets how much the total count must grow (as a ratio) before cumulative counts are
// refreshed during ingest. Zero refreshes after every point.
func WithCX(cx float64) OptionFunc {
	return func(opts *options) {
		opts.cx = cx
	}
}

// WithRand sets the source of randomness used for recompression order and for breaking ties
// between equidistant centroids.
func WithRand(rng *rand.Rand) OptionFunc {
	return func(opts *options) {
		opts.rng = rng
	}
}

// WithLogger sets the logger for recompression events. Defaults to a no-op logger.
func WithLogger(logger log.Logger) OptionFunc {
	return func(opts *options) {
		opts.logger = logger
	}
}

func defaultOptions() *options {
	return &options{
		k:      DefaultK,
		cx:     DefaultCX,
		logger: log.NewNopLogger(),
	}
}
