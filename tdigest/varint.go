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

	"golang.org/x/exp/constraints"
)

// maxVarintBytes caps the encoded size of a centroid weight (42 value bits).
const maxVarintBytes = 6

var ErrVarintOverflow = errors.New("varint exceeds 6 bytes")

// putVarint writes v to buf at offset as a base-128 varint, low bits first, with the high bit
// of each byte set when more bytes follow. It returns the offset after the last byte written.
func putVarint[T constraints.Unsigned](buf []byte, offset int, v T) (int, error) {
	written := 0
	for v > 0x7f {
		if written == maxVarintBytes-1 {
			return offset, ErrVarintOverflow
		}
		buf[offset] = byte(v&0x7f) | 0x80
		offset++
		written++
		v >>= 7
	}
	buf[offset] = byte(v)
	return offset + 1, nil
}

// getVarint reads a varint written by putVarint from data at offset and returns the value and
// the offset after it.
func getVarint[T constraints.Unsigned](data []byte, offset int) (T, int, error) {
	var v T
	var shift uint
	for i := 0; i < maxVarintBytes; i++ {
		if offset >= len(data) {
			return 0, offset, ErrInsufficientData
		}
		b := data[offset]
		offset++
		v |= T(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, offset, nil
		}
		shift += 7
	}
	return 0, offset, ErrVarintOverflow
}
