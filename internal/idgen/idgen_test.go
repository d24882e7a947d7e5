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

package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyFlakeGenerator_NextID(t *testing.T) {
	gen, err := NewFlakeGenerator()
	require.NoError(t, err, "failed to create SonyFlakeGenerator")

	// Check that subsequent IDs are increasing
	id := gen.NextID()
	id2 := gen.NextID()
	assert.Greater(t, id2, id, "NextID() did not return increasing id")
	assert.Positive(t, id)
}

func TestCycleIDGenerator(t *testing.T) {
	gen := NewCycleIDGenerator()
	now := time.Date(2025, 7, 25, 8, 0, 0, 0, time.UTC)

	a := gen.Make(now)
	b := gen.Make(now)
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "ids made in the same millisecond must sort in order")

	ts, err := CycleTime(a)
	require.NoError(t, err)
	assert.True(t, now.Equal(ts))
}

func TestCycleTimeRejectsGarbage(t *testing.T) {
	_, err := CycleTime("not-a-cycle-id")
	assert.Error(t, err)
}

func TestRecordKey(t *testing.T) {
	a := RecordKey([]byte(`{"id":1}`))
	b := RecordKey([]byte(`{"id":1}`))
	c := RecordKey([]byte(`{"id":2}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)

	// Embedded NULs are part of the identity.
	assert.NotEqual(t, RecordKey([]byte("a\x00b")), RecordKey([]byte("a\x00c")))
}

func TestIngestKey(t *testing.T) {
	payload := []byte("same")
	k := IngestKey("01J0CYCLE", 3, payload)

	assert.Equal(t, k, IngestKey("01J0CYCLE", 3, payload))
	assert.NotEqual(t, k, IngestKey("01J0CYCLE", 4, payload))
	assert.NotEqual(t, k, IngestKey("01J1CYCLE", 3, payload))
	assert.NotEqual(t, k, RecordKey(payload))
	assert.Len(t, k, 36)

	// The separator keeps cycle and index from running together.
	assert.NotEqual(t, IngestKey("c1", 23, payload), IngestKey("c12", 3, payload))
}
