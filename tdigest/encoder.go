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
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Format identifies a serialized layout by the 4-byte tag it starts with.
type Format int32

const (
	// FormatVerbose stores means as float64 and weights as uint32.
	FormatVerbose Format = 1
	// FormatSmall stores means as float32 deltas from the previous mean and weights as varints.
	FormatSmall Format = 2
)

const (
	// tag, min, max, adjusted compression, centroid count
	headerSize = 4 + 8 + 8 + 8 + 4

	encodeSlack            = 40
	encodeBytesPerCentroid = 12
)

var ErrWeightOverflow = errors.New("centroid weight does not fit in 32 bits")

// Encoder writes digests to a stream in a fixed format.
type Encoder struct {
	w      io.Writer
	format Format
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer, format Format) Encoder {
	return Encoder{
		w:      w,
		format: format,
	}
}

// Encode compresses the digest and writes it.
func (enc *Encoder) Encode(t *TDigest) error {
	b, err := t.encode(enc.format)
	if err != nil {
		return err
	}
	_, err = enc.w.Write(b)
	return err
}

// AsBytes compresses the digest and serializes it in FormatVerbose.
func (t *TDigest) AsBytes() ([]byte, error) {
	return t.encode(FormatVerbose)
}

// AsSmallBytes compresses the digest and serializes it in FormatSmall. Means are stored with
// float32 precision relative to their predecessor.
func (t *TDigest) AsSmallBytes() ([]byte, error) {
	return t.encode(FormatSmall)
}

func (t *TDigest) encode(format Format) ([]byte, error) {
	if format != FormatVerbose && format != FormatSmall {
		return nil, ErrUnsupportedFormat
	}

	t.Compress() // side effect

	centroids := t.ToSlice(false)
	buf := make([]byte, encodeSlack+encodeBytesPerCentroid*len(centroids))

	var adjustedCompression float64
	if !t.discrete {
		adjustedCompression = 1 / t.delta
	}

	offset := 0
	binary.BigEndian.PutUint32(buf[offset:], uint32(format))
	offset += 4
	binary.BigEndian.PutUint64(buf[offset:], math.Float64bits(t.Min()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], math.Float64bits(t.Max()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], math.Float64bits(adjustedCompression))
	offset += 8
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(centroids)))
	offset += 4

	if format == FormatVerbose {
		for _, c := range centroids {
			binary.BigEndian.PutUint64(buf[offset:], math.Float64bits(c.Mean))
			offset += 8
		}
		for _, c := range centroids {
			if c.N > math.MaxUint32 {
				return nil, ErrWeightOverflow
			}
			binary.BigEndian.PutUint32(buf[offset:], uint32(c.N))
			offset += 4
		}
		return buf[:offset], nil
	}

	// deltas are taken from the reconstructed previous mean so float32 rounding does not
	// accumulate along the digest
	var x float64
	for _, c := range centroids {
		delta := float32(c.Mean - x)
		binary.BigEndian.PutUint32(buf[offset:], math.Float32bits(delta))
		offset += 4
		x += float64(delta)
	}
	var err error
	for _, c := range centroids {
		if offset, err = putVarint(buf, offset, c.N); err != nil {
			return nil, err
		}
	}
	return buf[:offset], nil
}
