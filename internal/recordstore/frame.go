// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package recordstore

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Record is a payload together with the delivery key it was given when it
// first entered the store. Key is empty for records written without one.
type Record struct {
	Data []byte
	Key  string
}

// Each blob is stored as
//
//	"FRL1" | payload length (uint32) | xxhash64(payload) (uint64) | payload
//
// or, when the record carries a key,
//
//	"FRL2" | key length (uint16) | payload length (uint32) | xxhash64(key, payload) (uint64) | key | payload
//
// all big endian, so a torn write or a flipped bit on the card is reported
// as ErrCorrupt instead of being shipped upstream.
const (
	frameMagic      = "FRL1"
	frameHeaderSize = 4 + 4 + 8

	keyedFrameMagic      = "FRL2"
	keyedFrameHeaderSize = 4 + 2 + 4 + 8

	// MaxRecordSize bounds a single payload. The gateway never serves
	// more than a few kilobytes per record.
	MaxRecordSize = 16 << 20

	// MaxKeySize bounds a record key.
	MaxKeySize = 255
)

func encodeFrame(rec Record) ([]byte, error) {
	payload := rec.Data
	if len(payload) > MaxRecordSize {
		return nil, fmt.Errorf("record of %d bytes exceeds limit of %d", len(payload), MaxRecordSize)
	}
	if rec.Key == "" {
		buf := make([]byte, frameHeaderSize+len(payload))
		copy(buf, frameMagic)
		binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
		binary.BigEndian.PutUint64(buf[8:16], xxhash.Sum64(payload))
		copy(buf[frameHeaderSize:], payload)
		return buf, nil
	}

	if len(rec.Key) > MaxKeySize {
		return nil, fmt.Errorf("record key of %d bytes exceeds limit of %d", len(rec.Key), MaxKeySize)
	}
	buf := make([]byte, keyedFrameHeaderSize+len(rec.Key)+len(payload))
	copy(buf, keyedFrameMagic)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(rec.Key)))
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(payload)))
	body := buf[keyedFrameHeaderSize:]
	copy(body, rec.Key)
	copy(body[len(rec.Key):], payload)
	binary.BigEndian.PutUint64(buf[10:18], xxhash.Sum64(body))
	return buf, nil
}

func decodeFrame(buf []byte) (Record, error) {
	if len(buf) < 4 {
		return Record{}, fmt.Errorf("%w: short frame of %d bytes", ErrCorrupt, len(buf))
	}
	switch string(buf[:4]) {
	case frameMagic:
		if len(buf) < frameHeaderSize {
			return Record{}, fmt.Errorf("%w: short frame of %d bytes", ErrCorrupt, len(buf))
		}
		n := binary.BigEndian.Uint32(buf[4:8])
		if int(n) != len(buf)-frameHeaderSize {
			return Record{}, fmt.Errorf("%w: frame declares %d bytes, holds %d", ErrCorrupt, n, len(buf)-frameHeaderSize)
		}
		payload := buf[frameHeaderSize:]
		if sum := xxhash.Sum64(payload); sum != binary.BigEndian.Uint64(buf[8:16]) {
			return Record{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
		return Record{Data: payload}, nil

	case keyedFrameMagic:
		if len(buf) < keyedFrameHeaderSize {
			return Record{}, fmt.Errorf("%w: short frame of %d bytes", ErrCorrupt, len(buf))
		}
		k := int(binary.BigEndian.Uint16(buf[4:6]))
		n := int(binary.BigEndian.Uint32(buf[6:10]))
		body := buf[keyedFrameHeaderSize:]
		if k+n != len(body) {
			return Record{}, fmt.Errorf("%w: frame declares %d bytes, holds %d", ErrCorrupt, k+n, len(body))
		}
		if sum := xxhash.Sum64(body); sum != binary.BigEndian.Uint64(buf[10:18]) {
			return Record{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
		return Record{Key: string(body[:k]), Data: body[k:]}, nil

	default:
		return Record{}, fmt.Errorf("%w: bad frame magic %q", ErrCorrupt, buf[:4])
	}
}

// framePayloadSize is the payload length a frame of size bytes holds,
// given its first header bytes.
func framePayloadSize(header []byte, size int64) int64 {
	if len(header) >= keyedFrameHeaderSize && string(header[:4]) == keyedFrameMagic {
		return int64(binary.BigEndian.Uint32(header[6:10]))
	}
	return size - frameHeaderSize
}
