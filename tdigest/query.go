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

import "math"

// Percentile returns the smallest value q such that at least fraction p of the digested
// weight is <= q, or NaN for an empty digest. p below 0 or above 1 yields the minimum or
// maximum.
//
// In continuous mode q is interpolated between the two centroids whose estimated ranks
// (MeanCumn) bracket p*Count(). In discrete mode the nearest rank method is used and q is
// always one of the digested values.
func (t *TDigest) Percentile(p float64) float64 {
	if t.IsEmpty() || math.IsNaN(p) {
		return math.NaN()
	}
	t.cumulate(true)

	h := float64(t.n) * p
	lower, upper := t.index.boundMeanCumn(h)
	switch {
	case lower == nil:
		return upper.mean
	case upper == nil || upper == lower:
		return lower.mean
	case !t.discrete:
		return lower.mean + (h-lower.meanCumn)*(upper.mean-lower.mean)/(upper.meanCumn-lower.meanCumn)
	case h <= lower.cumn:
		return lower.mean
	default:
		return upper.mean
	}
}

// Percentiles returns Percentile for each element of ps, in order.
func (t *TDigest) Percentiles(ps []float64) []float64 {
	qs := make([]float64, len(ps))
	for i, p := range ps {
		qs[i] = t.Percentile(p)
	}
	return qs
}

// PRank returns the approximate percentile rank, in [0, 1], of x, or NaN for an empty digest.
// Values below the smallest centroid rank 0 and values above the largest rank 1.
//
// In continuous mode the rank is interpolated between the centroids bracketing x, so a value
// equal to the only centroid ranks 0.5: half of a centroid's weight is considered to lie on
// each side of its mean. In discrete mode the rank is the exact fraction of weight at or
// below the closest digested value not above x.
func (t *TDigest) PRank(x float64) float64 {
	if t.IsEmpty() || math.IsNaN(x) {
		return math.NaN()
	}
	if x < t.index.min().mean {
		return 0
	}
	if x > t.index.max().mean {
		return 1
	}
	t.cumulate(true)

	lower, upper := t.index.boundMean(x)
	if t.discrete {
		return lower.cumn / float64(t.n)
	}
	cumn := lower.meanCumn
	if lower != upper {
		cumn += (x - lower.mean) * (upper.meanCumn - lower.meanCumn) / (upper.mean - lower.mean)
	}
	return cumn / float64(t.n)
}

// PRanks returns PRank for each element of xs, in order.
func (t *TDigest) PRanks(xs []float64) []float64 {
	ps := make([]float64, len(xs))
	for i, x := range xs {
		ps[i] = t.PRank(x)
	}
	return ps
}

// Quantile is an alias of PRank.
func (t *TDigest) Quantile(x float64) float64 {
	return t.PRank(x)
}

// Quantiles is an alias of PRanks.
func (t *TDigest) Quantiles(xs []float64) []float64 {
	return t.PRanks(xs)
}
