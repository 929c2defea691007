/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package capture

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// ContentType labels captured H264 Annex-B elementary streams.
const ContentType = "video/h264"

// auBuffer accumulates H264 access units as an Annex-B stream. Units before
// the first random access point are dropped so the output starts decodable.
type auBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int
	started  bool
	units    int
	overflow bool

	// params are prepended to the first keyframe when it lacks them.
	sps []byte
	pps []byte
}

func newAUBuffer(limit int) *auBuffer {
	return &auBuffer{limit: limit}
}

// SetParams records out-of-band SPS/PPS from the session description.
func (b *auBuffer) SetParams(sps, pps []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sps, b.pps = sps, pps
}

// Write appends one access unit.
func (b *auBuffer) Write(au [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow {
		return errBufferLimit
	}

	if !b.started {
		if !h264.IsRandomAccess(au) {
			return nil
		}

		b.started = true
		au = b.withParams(au)
	}

	enc, err := h264.AnnexB(au).Marshal()
	if err != nil {
		return fmt.Errorf("annex-b encode: %w", err)
	}

	if b.limit > 0 && b.buf.Len()+len(enc) > b.limit {
		b.overflow = true
		return errBufferLimit
	}

	b.buf.Write(enc)
	b.units++

	return nil
}

func (b *auBuffer) withParams(au [][]byte) [][]byte {
	hasSPS, hasPPS := false, false

	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}

		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeSPS:
			hasSPS = true
		case h264.NALUTypePPS:
			hasPPS = true
		}
	}

	var prefix [][]byte

	if !hasSPS && b.sps != nil {
		prefix = append(prefix, b.sps)
	}

	if !hasPPS && b.pps != nil {
		prefix = append(prefix, b.pps)
	}

	if prefix == nil {
		return au
	}

	return append(prefix, au...)
}

// Bytes returns a copy of the stream and the number of access units in it.
func (b *auBuffer) Bytes() ([]byte, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return bytes.Clone(b.buf.Bytes()), b.units
}
