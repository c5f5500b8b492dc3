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

	"github.com/streamsketch/tdigest-go/tdigest"
)

// Collector exports every digest of a Group as a Prometheus summary labelled with its key.
type Collector struct {
	group     *Group
	desc      *prometheus.Desc
	quantiles []float64
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reporting the given quantiles of each digest in g.
func NewCollector(g *Group, name, help string, quantiles []float64, constLabels prometheus.Labels) *Collector {
	return &Collector{
		group:     g,
		desc:      prometheus.NewDesc(name, help, []string{"key"}, constLabels),
		quantiles: quantiles,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect snapshots every digest under its shard lock and sends the summaries once all
// locks are released, so a slow scrape never blocks writers.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var metrics []prometheus.Metric
	c.group.each(func(key string, td *tdigest.TDigest) {
		var sum float64
		for _, centroid := range td.ToSlice(false) {
			sum += centroid.Mean * float64(centroid.N)
		}
		quantiles := make(map[float64]float64, len(c.quantiles))
		for _, q := range c.quantiles {
			quantiles[q] = td.Percentile(q)
		}
		metrics = append(metrics, prometheus.MustNewConstSummary(c.desc, td.Count(), sum, quantiles, key))
	})
	for _, m := range metrics {
		ch <- m
	}
}
