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

import "errors"

var (
	// ErrNotFound means the queue has no blob at the requested index.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupt means a blob or the manifest exists but does not verify.
	ErrCorrupt = errors.New("record store corrupt")

	// ErrInvalidQueue means a queue name cannot be used as a directory name.
	ErrInvalidQueue = errors.New("invalid queue name")

	// ErrTxnDone means Append or Reset was called on a committed or
	// rolled back transaction.
	ErrTxnDone = errors.New("transaction already finished")

	// ErrStagedAppends means a queue already has appends that another
	// writer has not committed, so new indices cannot be handed out safely.
	ErrStagedAppends = errors.New("queue has uncommitted appends")
)
