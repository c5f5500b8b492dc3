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

// Centroid is a weighted mean summarizing one or more observations.
//
// Cumn and MeanCumn are derived from the ordered centroid set: Cumn is the total weight up to
// and including this centroid, MeanCumn is the estimated rank at Mean (Cumn minus half of N).
// They are only filled in by ToSlice(true).
type Centroid struct {
	Mean     float64
	N        uint64
	Cumn     float64
	MeanCumn float64
}

type centroid struct {
	mean     float64
	n        uint64
	cumn     float64
	meanCumn float64
}

// add merges weight n observed at x. The caller is responsible for re-keying the centroid
// in the index when the mean moves.
func (c *centroid) add(x float64, n uint64) {
	if x != c.mean {
		c.mean += float64(n) * (x - c.mean) / float64(c.n+n)
	}
	c.cumn += float64(n)
	c.meanCumn += float64(n) / 2
	c.n += n
}

func (c *centroid) export(everything bool) Centroid {
	if everything {
		return Centroid{Mean: c.mean, N: c.n, Cumn: c.cumn, MeanCumn: c.meanCumn}
	}
	return Centroid{Mean: c.mean, N: c.n}
}

// absorb folds other, which has the same mean, into c.
func (c *centroid) absorb(other *centroid) {
	c.n += other.n
	c.cumn += float64(other.n)
	c.meanCumn += float64(other.n) / 2
}
