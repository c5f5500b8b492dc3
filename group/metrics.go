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
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the flush metrics of a Group.
type Metrics struct {
	Flushed      prometheus.Counter
	FlushErrors  prometheus.Counter
	FlushSkipped prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg unless reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	flushed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tdigest_group_flushed_total",
		Help: "Total digests handed to the flush callback",
	})

	flushErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tdigest_group_flush_errors_total",
		Help: "Total flush callback failures",
	})

	flushSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tdigest_group_flush_skipped_total",
		Help: "Total digests skipped by flush because they did not change",
	})

	if reg != nil {
		reg.MustRegister(flushed, flushErrors, flushSkipped)
	}

	return &Metrics{
		Flushed:      flushed,
		FlushErrors:  flushErrors,
		FlushSkipped: flushSkipped,
	}
}
