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
	"math/rand/v2"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamsketch/tdigest-go/tdigest"
)

const (
	DefaultShards = 16
)

type options struct {
	shards     int
	delta      float64
	digestOpts []tdigest.OptionFunc
	rng        *rand.Rand
	logger     log.Logger
	registerer prometheus.Registerer
}

// OptionFunc configures a Group.
type OptionFunc func(*options)

// WithShards sets the number of independently locked shards keys are spread over.
func WithShards(shards int) OptionFunc {
	return func(opts *options) {
		opts.shards = shards
	}
}

// WithDelta sets the compression factor of every digest in the group.
func WithDelta(delta float64) OptionFunc {
	return func(opts *options) {
		opts.delta = delta
	}
}

// WithDigestOptions sets options applied to every digest created or loaded by the group.
// A tdigest.WithRand among them is overridden: each digest gets its own source, seeded from
// the group source set by WithRand.
func WithDigestOptions(digestOpts ...tdigest.OptionFunc) OptionFunc {
	return func(opts *options) {
		opts.digestOpts = append(opts.digestOpts, digestOpts...)
	}
}

// WithRand sets the source the group seeds the source of each digest from. The group only
// draws from it while holding its own lock.
func WithRand(rng *rand.Rand) OptionFunc {
	return func(opts *options) {
		opts.rng = rng
	}
}

func WithLogger(logger log.Logger) OptionFunc {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithRegisterer registers the flush metrics of the group with reg.
func WithRegisterer(reg prometheus.Registerer) OptionFunc {
	return func(opts *options) {
		opts.registerer = reg
	}
}

func defaultOptions() *options {
	return &options{
		shards: DefaultShards,
		delta:  tdigest.DefaultDelta,
		logger: log.NewNopLogger(),
	}
}
