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

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/streamsketch/tdigest-go/internal"
)

// centroidIndex keeps centroids ordered by mean in a red-black tree keyed by mean.
// ranked is a second view over the same centroids in the same order, rebuilt by every
// cumulative scan and searched by MeanCumn for percentile queries.
type centroidIndex struct {
	tree   *redblacktree.Tree
	ranked []*centroid
}

func newCentroidIndex() *centroidIndex {
	return &centroidIndex{
		tree: redblacktree.NewWith(utils.Float64Comparator),
	}
}

func (idx *centroidIndex) size() int {
	return idx.tree.Size()
}

func (idx *centroidIndex) clear() {
	idx.tree.Clear()
	idx.ranked = idx.ranked[:0]
}

func (idx *centroidIndex) insert(c *centroid) {
	idx.tree.Put(c.mean, c)
}

// rekey moves c, currently stored under oldMean, to the key c.mean. If another centroid
// already owns c.mean, c is dropped from the tree and that centroid is returned so the
// caller can fold c into it.
func (idx *centroidIndex) rekey(c *centroid, oldMean float64) *centroid {
	if c.mean == oldMean {
		return nil
	}
	idx.tree.Remove(oldMean)
	if v, found := idx.tree.Get(c.mean); found {
		return v.(*centroid)
	}
	idx.tree.Put(c.mean, c)
	return nil
}

func (idx *centroidIndex) min() *centroid {
	return centroidOf(idx.tree.Left())
}

func (idx *centroidIndex) max() *centroid {
	return centroidOf(idx.tree.Right())
}

func (idx *centroidIndex) each(fn func(c *centroid)) {
	it := idx.tree.Iterator()
	for it.Next() {
		fn(it.Value().(*centroid))
	}
}

// cumulate rewrites cumn and meanCumn of every centroid in mean order, rebuilds the ranked
// view and returns the total weight.
func (idx *centroidIndex) cumulate() float64 {
	idx.ranked = idx.ranked[:0]
	var cumn float64
	idx.each(func(c *centroid) {
		c.meanCumn = cumn + float64(c.n)/2
		cumn += float64(c.n)
		c.cumn = cumn
		idx.ranked = append(idx.ranked, c)
	})
	return cumn
}

// ceiling returns the node holding the first centroid with mean >= x.
func (idx *centroidIndex) ceiling(x float64) *redblacktree.Node {
	node, found := idx.tree.Ceiling(x)
	if !found {
		return nil
	}
	return node
}

// higher returns the node holding the first centroid with mean > x.
func (idx *centroidIndex) higher(x float64) *redblacktree.Node {
	node := idx.ceiling(x)
	if node != nil && node.Key.(float64) == x {
		return successor(node)
	}
	return node
}

// nearest returns the centroid closest to x, or nil when the index is empty. An exact match
// always wins. In discrete mode no distance is computed and the first centroid at or above x
// (or the maximum) is returned. When x is equidistant from two neighbours, lowerOnTie decides.
func (idx *centroidIndex) nearest(x float64, discrete bool, lowerOnTie func() bool) *centroid {
	if idx.size() == 0 {
		return nil
	}
	node := idx.ceiling(x)
	if node == nil {
		node = idx.tree.Right()
	}
	c := centroidOf(node)
	if c.mean == x || discrete {
		return c
	}
	prev := centroidOf(predecessor(node))
	if prev == nil {
		return c
	}
	dPrev, dCur := math.Abs(prev.mean-x), math.Abs(c.mean-x)
	if dPrev < dCur || (dPrev == dCur && lowerOnTie()) {
		return prev
	}
	return c
}

// boundMean returns centroids lower and upper with lower.mean < x < upper.mean, or
// lower == upper when a centroid sits exactly at x. x must lie within [min, max].
func (idx *centroidIndex) boundMean(x float64) (*centroid, *centroid) {
	node := idx.higher(x)
	var lowerNode *redblacktree.Node
	if node == nil {
		lowerNode = idx.tree.Right()
	} else {
		lowerNode = predecessor(node)
	}
	lower := centroidOf(lowerNode)
	if lower != nil && lower.mean == x {
		return lower, lower
	}
	return lower, centroidOf(node)
}

// boundMeanCumn is boundMean over the ranked view keyed by meanCumn. Either side is nil
// when h falls outside the range of meanCumn values. Requires a fresh cumulative scan.
func (idx *centroidIndex) boundMeanCumn(h float64) (*centroid, *centroid) {
	i := internal.FindWithInequality(idx.ranked, h, internal.InequalityGT, func(c *centroid) float64 {
		return c.meanCumn
	})
	var lower, upper *centroid
	switch {
	case i == -1:
		if len(idx.ranked) > 0 {
			lower = idx.ranked[len(idx.ranked)-1]
		}
	default:
		upper = idx.ranked[i]
		if i > 0 {
			lower = idx.ranked[i-1]
		}
	}
	if lower != nil && lower.meanCumn == h {
		return lower, lower
	}
	return lower, upper
}

func centroidOf(node *redblacktree.Node) *centroid {
	if node == nil {
		return nil
	}
	return node.Value.(*centroid)
}

func successor(node *redblacktree.Node) *redblacktree.Node {
	if node.Right != nil {
		node = node.Right
		for node.Left != nil {
			node = node.Left
		}
		return node
	}
	parent := node.Parent
	for parent != nil && node == parent.Right {
		node = parent
		parent = parent.Parent
	}
	return parent
}

func predecessor(node *redblacktree.Node) *redblacktree.Node {
	if node.Left != nil {
		node = node.Left
		for node.Right != nil {
			node = node.Right
		}
		return node
	}
	parent := node.Parent
	for parent != nil && node == parent.Left {
		node = parent
		parent = parent.Parent
	}
	return parent
}
