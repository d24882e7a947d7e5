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

// Package cbor provides the CBOR encoding used for everything fieldrelay
// persists on the logger's storage: the queue counter manifest and the
// telemetry readings.
//
// CBOR Type Behavior:
//   - Struct fields are encoded by their `cbor` tag, keyed as text strings
//   - Map keys are sorted (length-first) so equal values encode to equal bytes
//   - Times encode as Unix microseconds without a CBOR time tag
//   - float64 is kept at full width (no shortest-float narrowing)
//   - Unknown fields are ignored on decode so older builds can read newer files
package cbor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Config holds CBOR encoder and decoder modes.
type Config struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewConfig creates a new CBOR configuration with deterministic encoding.
func NewConfig() (*Config, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortLengthFirst,   // Deterministic map key order
		ShortestFloat: cbor.ShortestFloatNone, // Don't convert float types
		BigIntConvert: cbor.BigIntConvertNone, // Don't convert large integers
		Time:          cbor.TimeUnixMicro,     // Encode times as Unix timestamps
		TimeTag:       cbor.EncTagNone,        // Don't add CBOR time tags
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		IntDec:            cbor.IntDecConvertSigned, // Convert all integers to int64 (signed)
		ExtraReturnErrors: cbor.ExtraDecErrorNone,   // Unknown fields are not an error
		UTF8:              cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &Config{
		encMode: encMode,
		decMode: decMode,
	}, nil
}

// MustNewConfig is NewConfig for package-level initialisation; the option
// set above is static, so an error here is a programming mistake.
func MustNewConfig() *Config {
	c, err := NewConfig()
	if err != nil {
		panic(err)
	}
	return c
}

// Marshal encodes v to CBOR bytes.
func (c *Config) Marshal(v any) ([]byte, error) {
	return c.encMode.Marshal(v)
}

// Unmarshal decodes exactly one CBOR data item from data into v.
func (c *Config) Unmarshal(data []byte, v any) error {
	return c.decMode.Unmarshal(data, v)
}
