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

package internal

// Inequality selects which neighbour of a search value FindWithInequality returns.
type Inequality int64

const (
	InequalityLT Inequality = iota
	InequalityLE
	InequalityGE
	InequalityGT
)

// FindWithInequality searches arr, which must be sorted ascending by key, and returns
//   - InequalityLT: the last index whose key is < v
//   - InequalityLE: the last index whose key is <= v
//   - InequalityGE: the first index whose key is >= v
//   - InequalityGT: the first index whose key is > v
//
// It returns -1 when no element qualifies.
func FindWithInequality[T any](arr []T, v float64, crit Inequality, key func(T) float64) int {
	var atOrAbove func(k float64) bool
	switch crit {
	case InequalityLT, InequalityGE:
		atOrAbove = func(k float64) bool { return k >= v }
	case InequalityLE, InequalityGT:
		atOrAbove = func(k float64) bool { return k > v }
	default:
		panic("invalid inequality")
	}

	lo, hi := 0, len(arr)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if atOrAbove(key(arr[mid])) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	switch crit {
	case InequalityLT, InequalityLE:
		return lo - 1
	default:
		if lo == len(arr) {
			return -1
		}
		return lo
	}
}
