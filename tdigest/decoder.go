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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	minVerboseBytesPerCentroid = 8 + 4
	minSmallBytesPerCentroid   = 4 + 1
)

var (
	ErrUnsupportedFormat    = errors.New("unsupported t-digest format")
	ErrInsufficientData     = errors.New("insufficient data for deserialization")
	ErrCentroidCountTooHigh = errors.New("centroid count requested is too high")
	ErrInvalidCompression   = errors.New("invalid compression")
)

// Decoder reads digests serialized in either format.
type Decoder struct {
	opts []OptionFunc
}

// NewDecoder creates a decoder. The options are applied to every decoded digest; the
// compression factor always comes from the serialized data.
func NewDecoder(opts ...OptionFunc) Decoder {
	return Decoder{opts: opts}
}

// Decode reads one digest from r. It reads the header first and then only as many bytes as
// the header calls for, so several digests written by an Encoder can be read back one after
// another. It returns io.EOF when r is exhausted before the first byte, and
// ErrInsufficientData when the stream ends inside a digest.
func (dec *Decoder) Decode(r io.Reader) (*TDigest, error) {
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, headerSize); err != nil {
		if err == io.EOF && buf.Len() > 0 {
			return nil, ErrInsufficientData
		}
		return nil, err
	}

	header := buf.Bytes()
	format := Format(int32(binary.BigEndian.Uint32(header)))
	numCentroids := int64(binary.BigEndian.Uint32(header[headerSize-4:]))

	// the body grows with the bytes actually read, never with the count in the header
	switch format {
	case FormatVerbose:
		if err := copyFull(&buf, r, minVerboseBytesPerCentroid*numCentroids); err != nil {
			return nil, err
		}
	case FormatSmall:
		if err := copyFull(&buf, r, 4*numCentroids); err != nil {
			return nil, err
		}
		for i := int64(0); i < numCentroids; i++ {
			if err := copyVarint(&buf, r); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
	return Decode(buf.Bytes(), dec.opts...)
}

func copyFull(buf *bytes.Buffer, r io.Reader, n int64) error {
	if _, err := io.CopyN(buf, r, n); err != nil {
		if err == io.EOF {
			return ErrInsufficientData
		}
		return err
	}
	return nil
}

// copyVarint copies the bytes of one varint from r to buf, stopping after maxVarintBytes.
func copyVarint(buf *bytes.Buffer, r io.Reader) error {
	var b [1]byte
	for i := 0; i < maxVarintBytes; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if err == io.EOF {
				return ErrInsufficientData
			}
			return err
		}
		buf.WriteByte(b[0])
		if b[0]&0x80 == 0 {
			return nil
		}
	}
	return ErrVarintOverflow
}

// Decode deserializes a digest produced by AsBytes or AsSmallBytes.
func Decode(data []byte, opts ...OptionFunc) (*TDigest, error) {
	delta, centroids, err := decodeCentroids(data)
	if err != nil {
		return nil, err
	}
	t, err := New(delta, opts...)
	if err != nil {
		return nil, err
	}
	if err := t.PushCentroids(centroids); err != nil {
		return nil, err
	}
	return t, nil
}

// Load replaces the contents and compression factor of the digest with the serialized ones.
// The centroids are digested again rather than copied, so the result is statistically
// equivalent to the serialized digest but not necessarily identical. On error the digest is
// left unchanged.
func (t *TDigest) Load(data []byte) error {
	delta, centroids, err := decodeCentroids(data)
	if err != nil {
		return err
	}
	t.setDelta(delta)
	t.Reset()
	return t.PushCentroids(centroids)
}

func decodeCentroids(data []byte) (float64, []Centroid, error) {
	if len(data) < 4 {
		return 0, nil, ErrInsufficientData
	}

	offset := 0
	format := Format(int32(binary.BigEndian.Uint32(data[offset:])))
	offset += 4

	var minBytesPerCentroid int
	switch format {
	case FormatVerbose:
		minBytesPerCentroid = minVerboseBytesPerCentroid
	case FormatSmall:
		minBytesPerCentroid = minSmallBytesPerCentroid
	default:
		return 0, nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}

	if len(data) < headerSize {
		return 0, nil, ErrInsufficientData
	}

	// min and max are informational, the centroids carry everything needed
	offset += 16

	delta, err := deltaFromCompression(math.Float64frombits(binary.BigEndian.Uint64(data[offset:])))
	if err != nil {
		return 0, nil, err
	}
	offset += 8

	numCentroids := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	if uint64(numCentroids) > uint64((len(data)-offset)/minBytesPerCentroid) {
		return 0, nil, fmt.Errorf("%w: %d", ErrCentroidCountTooHigh, numCentroids)
	}

	centroids := make([]Centroid, numCentroids)
	if format == FormatVerbose {
		for i := range centroids {
			mean := math.Float64frombits(binary.BigEndian.Uint64(data[offset:]))
			offset += 8
			if err := validateMean(mean); err != nil {
				return 0, nil, err
			}
			centroids[i].Mean = mean
		}
		for i := range centroids {
			weight := binary.BigEndian.Uint32(data[offset:])
			offset += 4
			if err := validateZero(uint64(weight), "centroid weight"); err != nil {
				return 0, nil, err
			}
			centroids[i].N = uint64(weight)
		}
		return delta, centroids, nil
	}

	var x float64
	for i := range centroids {
		x += float64(math.Float32frombits(binary.BigEndian.Uint32(data[offset:])))
		offset += 4
		if err := validateMean(x); err != nil {
			return 0, nil, err
		}
		centroids[i].Mean = x
	}
	for i := range centroids {
		var weight uint64
		if weight, offset, err = getVarint[uint64](data, offset); err != nil {
			return 0, nil, err
		}
		if err := validateZero(weight, "centroid weight"); err != nil {
			return 0, nil, err
		}
		centroids[i].N = weight
	}
	return delta, centroids, nil
}

// deltaFromCompression inverts the adjusted compression stored in the header. Zero marks a
// discrete digest.
func deltaFromCompression(adjusted float64) (float64, error) {
	if adjusted == 0 {
		return Discrete, nil
	}
	if math.IsNaN(adjusted) || math.IsInf(adjusted, 0) || adjusted < 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCompression, adjusted)
	}
	return 1 / adjusted, nil
}

func validateMean(v float64) error {
	if err := validateNaN(v, "centroid mean"); err != nil {
		return err
	}
	return validateInf(v, "centroid mean")
}

func validateNaN(v float64, name string) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%s: %w", name, ErrNaN)
	}
	return nil
}

func validateInf(v float64, name string) error {
	if math.IsInf(v, 0) {
		return fmt.Errorf("%s: %w", name, ErrInfinity)
	}
	return nil
}

func validateZero(v uint64, name string) error {
	if v == 0 {
		return fmt.Errorf("%s: %w", name, ErrZeroWeight)
	}
	return nil
}
