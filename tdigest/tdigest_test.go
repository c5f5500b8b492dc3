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
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func means(cs []Centroid) []float64 {
	result := make([]float64, len(cs))
	for i, c := range cs {
		result[i] = c.Mean
	}
	return result
}

func weights(cs []Centroid) []uint64 {
	result := make([]uint64, len(cs))
	for i, c := range cs {
		result[i] = c.N
	}
	return result
}

func totalWeight(cs []Centroid) uint64 {
	var total uint64
	for _, c := range cs {
		total += c.N
	}
	return total
}

func TestNew(t *testing.T) {
	t.Run("Default Delta", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)
		assert.True(t, td.IsEmpty())
		assert.Equal(t, DefaultDelta, td.Delta())
		assert.False(t, td.IsDiscrete())
		assert.Equal(t, uint64(1), td.Resets())
		assert.Equal(t, 0, td.Size())
		assert.Equal(t, uint64(0), td.Count())
	})

	t.Run("Discrete", func(t *testing.T) {
		td, err := New(Discrete)
		require.NoError(t, err)
		assert.True(t, td.IsDiscrete())
		assert.Equal(t, 0.0, td.Delta())
	})

	t.Run("Delta One", func(t *testing.T) {
		td, err := New(1)
		require.NoError(t, err)
		assert.False(t, td.IsDiscrete())
	})

	t.Run("Invalid Delta", func(t *testing.T) {
		for _, delta := range []float64{-0.1, 1.5, math.NaN(), math.Inf(1)} {
			_, err := New(delta)
			assert.ErrorIs(t, err, ErrInvalidDelta, "delta %v", delta)
		}
	})

	t.Run("Invalid CX", func(t *testing.T) {
		_, err := New(DefaultDelta, WithCX(-1))
		assert.ErrorIs(t, err, ErrInvalidCX)

		_, err = New(DefaultDelta, WithCX(math.NaN()))
		assert.ErrorIs(t, err, ErrInvalidCX)
	})

	t.Run("Options", func(t *testing.T) {
		td, err := New(0.05, WithK(10), WithCX(0), WithRand(newTestRand()))
		require.NoError(t, err)
		assert.Equal(t, uint(10), td.k)
		assert.Equal(t, 0.0, td.cx)
		assert.Equal(t, 0.05, td.Delta())
	})
}

func TestTDigest_Push(t *testing.T) {
	t.Run("Scenario Three Points", func(t *testing.T) {
		td, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)

		require.NoError(t, td.PushSlice([]float64{0, 1, -1}, 1))
		cs := td.ToSlice(false)
		assert.Equal(t, []float64{-1, 0, 1}, means(cs))
		assert.Equal(t, []uint64{1, 1, 1}, weights(cs))
		assert.Equal(t, uint64(3), td.Count())
	})

	t.Run("Zero Weight Means One", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		require.NoError(t, td.Push(5, 0))
		assert.Equal(t, uint64(1), td.Count())
	})

	t.Run("NaN Returns Error", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		assert.ErrorIs(t, td.Push(math.NaN(), 1), ErrNaN)
		assert.True(t, td.IsEmpty())
	})

	t.Run("Infinity Returns Error", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		assert.ErrorIs(t, td.Push(math.Inf(1), 1), ErrInfinity)
		assert.ErrorIs(t, td.Push(math.Inf(-1), 1), ErrInfinity)
		assert.True(t, td.IsEmpty())
	})

	t.Run("Slice Is Validated First", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		err = td.PushSlice([]float64{1, 2, math.NaN(), 4}, 1)
		assert.ErrorIs(t, err, ErrNaN)
		assert.True(t, td.IsEmpty())
		assert.Equal(t, uint64(0), td.Count())
	})

	t.Run("Duplicates Collapse", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		for i := 0; i < 100; i++ {
			require.NoError(t, td.Push(1000, 1))
		}
		cs := td.ToSlice(false)
		require.Len(t, cs, 1)
		assert.Equal(t, Centroid{Mean: 1000, N: 100}, cs[0])
	})

	t.Run("Repeated Values Keep One Centroid Each", func(t *testing.T) {
		td, err := New(1, WithRand(newTestRand()))
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			require.NoError(t, td.PushSlice([]float64{0, 0.5, 1}, 1))
		}
		cs := td.ToSlice(false)
		assert.Equal(t, []float64{0, 0.5, 1}, means(cs))
		assert.Equal(t, []uint64{10, 10, 10}, weights(cs))
	})

	t.Run("Weighted", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		require.NoError(t, td.Push(1, 3))
		require.NoError(t, td.Push(2, 5))
		assert.Equal(t, uint64(8), td.Count())
		assert.Equal(t, []uint64{3, 5}, weights(td.ToSlice(false)))
	})

	t.Run("Extremes Are Exact", func(t *testing.T) {
		td, err := New(1, WithRand(newTestRand()))
		require.NoError(t, err)

		rng := newTestRand()
		for i := 0; i < 10000; i++ {
			require.NoError(t, td.Push(rng.Float64(), 1))
		}
		require.NoError(t, td.Push(-3, 1))
		require.NoError(t, td.Push(7, 1))
		assert.Equal(t, -3.0, td.Min())
		assert.Equal(t, 7.0, td.Max())
		assert.Equal(t, uint64(10002), td.Count())
	})

	t.Run("Tiny Delta Keeps Every Point", func(t *testing.T) {
		td, err := New(0.001, WithK(0), WithRand(newTestRand()))
		require.NoError(t, err)

		rng := newTestRand()
		for i := 0; i < 100; i++ {
			require.NoError(t, td.Push(rng.Float64(), 1))
		}
		assert.Equal(t, 100, td.Size())
	})

	t.Run("Generic Values", func(t *testing.T) {
		td, err := New(Discrete)
		require.NoError(t, err)

		require.NoError(t, PushValues(td, []int{3, 1, 2, 2}, 1))
		require.NoError(t, PushValues(td, []float32{4}, 2))
		assert.Equal(t, []float64{1, 2, 3, 4}, means(td.ToSlice(false)))
		assert.Equal(t, []uint64{1, 2, 1, 2}, weights(td.ToSlice(false)))
	})
}

func TestTDigest_PushCentroid(t *testing.T) {
	t.Run("Same Path As Push", func(t *testing.T) {
		a, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)
		b, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)

		rng := newTestRand()
		for i := 0; i < 1000; i++ {
			x := rng.NormFloat64()
			require.NoError(t, a.Push(x, 2))
			require.NoError(t, b.PushCentroid(Centroid{Mean: x, N: 2}))
		}
		assert.Equal(t, a.ToSlice(true), b.ToSlice(true))
	})

	t.Run("Zero Weight Returns Error", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		assert.ErrorIs(t, td.PushCentroid(Centroid{Mean: 1}), ErrZeroWeight)
		assert.ErrorIs(t, td.PushCentroids([]Centroid{{Mean: 1, N: 1}, {Mean: 2}}), ErrZeroWeight)
		assert.True(t, td.IsEmpty())
	})

	t.Run("Invalid Mean Returns Error", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		assert.ErrorIs(t, td.PushCentroid(Centroid{Mean: math.NaN(), N: 1}), ErrNaN)
		assert.ErrorIs(t, td.PushCentroid(Centroid{Mean: math.Inf(-1), N: 1}), ErrInfinity)
	})

	t.Run("Merge Digests", func(t *testing.T) {
		a, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)
		b, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)

		rng := newTestRand()
		for i := 0; i < 5000; i++ {
			require.NoError(t, a.Push(rng.Float64(), 1))
			require.NoError(t, b.Push(rng.Float64()+1, 1))
		}
		require.NoError(t, a.PushCentroids(b.ToSlice(false)))
		assert.Equal(t, uint64(10000), a.Count())
		assert.Equal(t, b.Max(), a.Max())
		assert.InDelta(t, 1.0, a.Percentile(0.5), 0.02)
	})
}

func TestTDigest_Compress(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		td.Compress()
		assert.True(t, td.IsEmpty())
		assert.Equal(t, uint64(2), td.Resets())
	})

	t.Run("Monotonic Input", func(t *testing.T) {
		td, err := New(DefaultDelta, WithK(0), WithRand(newTestRand()))
		require.NoError(t, err)

		for i := 0; i < 1000; i++ {
			require.NoError(t, td.Push(float64(i*10), 1))
		}
		assert.Equal(t, 1000, td.Size())

		td.Compress()
		assert.Less(t, td.Size(), 600)
		assert.Equal(t, 0.0, td.Min())
		assert.Equal(t, 9990.0, td.Max())
		assert.Equal(t, uint64(1000), td.Count())
		assert.Equal(t, uint64(1000), totalWeight(td.ToSlice(false)))
		assert.Equal(t, uint64(2), td.Resets())
	})

	t.Run("Automatic", func(t *testing.T) {
		td, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)

		for i := 0; i < 10000; i++ {
			require.NoError(t, td.Push(float64(i*10), 1))
		}
		assert.Greater(t, td.Resets(), uint64(1))
		assert.LessOrEqual(t, td.Size(), DefaultK*100)
		assert.Equal(t, 0.0, td.Min())
		assert.Equal(t, 99990.0, td.Max())
		assert.Equal(t, uint64(10000), td.Count())
	})

	t.Run("Disabled For Discrete", func(t *testing.T) {
		td, err := New(Discrete)
		require.NoError(t, err)

		for i := 0; i < 5000; i++ {
			require.NoError(t, td.Push(float64(i), 1))
		}
		assert.Equal(t, 5000, td.Size())
		assert.Equal(t, uint64(1), td.Resets())
	})

	t.Run("Never Grows", func(t *testing.T) {
		td, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)

		rng := newTestRand()
		for i := 0; i < 20000; i++ {
			require.NoError(t, td.Push(rng.ExpFloat64(), 1))
		}
		before := td.Size()
		td.Compress()
		assert.LessOrEqual(t, td.Size(), before)
		assert.Equal(t, uint64(20000), totalWeight(td.ToSlice(false)))
	})
}

func TestTDigest_Cumulate(t *testing.T) {
	t.Run("Exact Fields", func(t *testing.T) {
		td, err := New(Discrete)
		require.NoError(t, err)

		require.NoError(t, td.Push(1, 2))
		require.NoError(t, td.Push(2, 4))
		cs := td.ToSlice(true)
		assert.Equal(t, []Centroid{
			{Mean: 1, N: 2, Cumn: 2, MeanCumn: 1},
			{Mean: 2, N: 4, Cumn: 6, MeanCumn: 4},
		}, cs)
	})

	t.Run("Idempotent", func(t *testing.T) {
		td, err := New(DefaultDelta, WithRand(newTestRand()))
		require.NoError(t, err)

		rng := newTestRand()
		for i := 0; i < 3000; i++ {
			require.NoError(t, td.Push(rng.Float64(), 1))
		}
		first := td.ToSlice(true)
		td.index.cumulate()
		assert.Equal(t, first, td.ToSlice(true))
	})

	t.Run("Skipped Until Growth", func(t *testing.T) {
		td, err := New(DefaultDelta, WithCX(2))
		require.NoError(t, err)

		require.NoError(t, td.Push(1, 10))
		assert.Equal(t, uint64(10), td.lastCumulate)
		require.NoError(t, td.Push(2, 5))
		assert.Equal(t, uint64(10), td.lastCumulate)
		require.NoError(t, td.Push(3, 5))
		assert.Equal(t, uint64(20), td.lastCumulate)
	})

	t.Run("Every Push With Zero CX", func(t *testing.T) {
		td, err := New(DefaultDelta, WithCX(0))
		require.NoError(t, err)

		for i := 1; i <= 5; i++ {
			require.NoError(t, td.Push(float64(i), 1))
			assert.Equal(t, uint64(i), td.lastCumulate)
		}
	})
}

func TestTDigest_Reset(t *testing.T) {
	td, err := New(0.05, WithK(7))
	require.NoError(t, err)

	require.NoError(t, td.PushSlice([]float64{1, 2, 3}, 1))
	td.Reset()
	assert.True(t, td.IsEmpty())
	assert.Equal(t, uint64(0), td.Count())
	assert.Equal(t, uint64(2), td.Resets())
	assert.Equal(t, 0.05, td.Delta())
	assert.Equal(t, uint(7), td.k)
	assert.True(t, math.IsNaN(td.Min()))
	assert.True(t, math.IsNaN(td.Max()))
}

func TestTDigest_Summary(t *testing.T) {
	t.Run("Discrete", func(t *testing.T) {
		td, err := New(Discrete)
		require.NoError(t, err)

		require.NoError(t, td.PushSlice([]float64{1, 2, 3, 4}, 1))
		assert.Equal(t, "exact 4 samples using 4 centroids\n"+
			"min = 1\n"+
			"Q1  = 1\n"+
			"Q2  = 2\n"+
			"Q3  = 3\n"+
			"max = 4", td.Summary())
	})

	t.Run("Continuous", func(t *testing.T) {
		td, err := New(DefaultDelta)
		require.NoError(t, err)

		require.NoError(t, td.PushSlice([]float64{10, 11, 12, 13}, 1))
		assert.Equal(t, "approximating 4 samples using 4 centroids\n"+
			"min = 10\n"+
			"Q1  = 10.5\n"+
			"Q2  = 11.5\n"+
			"Q3  = 12.5\n"+
			"max = 13", td.Summary())
	})
}
