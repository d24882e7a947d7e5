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
	"strconv"

	"github.com/google/uuid"
)

// recordNamespace scopes record keys so they never collide with name-based
// UUIDs minted by other systems from the same bytes.
var recordNamespace = uuid.MustParse("6f1d7c62-58a4-4b6e-9a5e-2f3b0c1d9e47")

// RecordKey derives a stable key from a record payload. The same bytes
// always produce the same key, so an upstream service can drop a record it
// has already accepted when the logger redelivers it after a power loss.
// Records that can legitimately repeat byte for byte should carry an
// IngestKey instead.
func RecordKey(payload []byte) string {
	return uuid.NewSHA1(recordNamespace, payload).String()
}

// IngestKey derives the key of a record from the cycle that first stored
// it, the index it was stored at and its payload. Identical payloads pulled
// at different positions or in different cycles get different keys; the
// key is minted once and travels with the record through requeues.
func IngestKey(cycle string, index int, payload []byte) string {
	name := make([]byte, 0, len(cycle)+12+len(payload))
	name = append(name, cycle...)
	name = append(name, 0)
	name = strconv.AppendInt(name, int64(index), 10)
	name = append(name, 0)
	name = append(name, payload...)
	return uuid.NewSHA1(recordNamespace, name).String()
}
