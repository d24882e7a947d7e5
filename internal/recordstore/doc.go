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

// Package recordstore persists densely indexed queues of opaque records on
// the logger's storage.
//
// A queue is a counter plus one blob per index in [0, counter). Counters live
// in a single manifest file, so a set of counter changes becomes visible in
// one rename: either every queue touched by a transaction moves to its new
// state or none does. Blobs are written before the manifest that counts them;
// anything on disk the manifest does not count is uncommitted debris and is
// removed by Recover.
//
// Layout under the root directory:
//
//	counters.cbor                 manifest: queue -> {generation, count}
//	<queue>/<generation>/<i>.rec  framed record blob
//
// Compaction writes the surviving records into a fresh generation and
// commits it; the superseded generation is removed afterwards.
//
// A Store is owned by a single duty cycle and is not safe for concurrent use.
package recordstore
