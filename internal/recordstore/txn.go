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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Pending identifies a record written by a transaction that has not been
// committed yet.
type Pending struct {
	Queue string
	Index int
}

// Txn batches appends and compactions across queues into one manifest
// update. Nothing a Txn writes is visible through the Store until Commit.
//
//	tx := store.Begin()
//	defer tx.Rollback()
//	...
//	return tx.Commit()
type Txn struct {
	store   *Store
	targets map[string]*target
	order   []string
	done    bool
}

type target struct {
	state   QueueState
	reset   bool
	written []string
	// dir is the generation dir created by Reset, removed on rollback.
	dir string
}

// Begin starts a transaction against the store's current state.
func (s *Store) Begin() *Txn {
	return &Txn{store: s, targets: map[string]*target{}}
}

// target claims queue for the transaction. A queue holding blobs from the
// low-level Append, or claimed by another open Txn, is refused: both would
// hand out the same indices.
func (tx *Txn) target(queue string) (*target, error) {
	if t, ok := tx.targets[queue]; ok {
		return t, nil
	}
	s := tx.store
	if n := s.staged[queue]; n > 0 {
		return nil, fmt.Errorf("queue %s: %d uncounted appends: %w", queue, n, ErrStagedAppends)
	}
	if owner, ok := s.writers[queue]; ok && owner != tx {
		return nil, fmt.Errorf("queue %s: claimed by another transaction: %w", queue, ErrStagedAppends)
	}
	s.writers[queue] = tx
	t := &target{state: s.manifest.Queues[queue]}
	tx.targets[queue] = t
	tx.order = append(tx.order, queue)
	return t, nil
}

// release gives up the transaction's claim on its queues.
func (tx *Txn) release() {
	for _, queue := range tx.order {
		if tx.store.writers[queue] == tx {
			delete(tx.store.writers, queue)
		}
	}
}

// Append stages data at the next index of the queue as it will look after
// Commit.
func (tx *Txn) Append(queue string, data []byte) (Pending, error) {
	return tx.AppendRecord(queue, Record{Data: data})
}

// AppendRecord is Append for a record that carries a key.
func (tx *Txn) AppendRecord(queue string, rec Record) (Pending, error) {
	if tx.done {
		return Pending{}, ErrTxnDone
	}
	if err := validateQueue(queue); err != nil {
		return Pending{}, err
	}
	t, err := tx.target(queue)
	if err != nil {
		return Pending{}, err
	}
	index := t.state.Count
	if err := tx.store.writeRecord(queue, t.state.Gen, index, rec); err != nil {
		return Pending{}, err
	}
	t.written = append(t.written, tx.store.recordPath(queue, t.state.Gen, index))
	t.state.Count++
	return Pending{Queue: queue, Index: index}, nil
}

// Reset makes the queue empty as of Commit, starting a fresh generation.
// Appends to the queue after Reset are numbered from zero; appends staged
// before it are discarded.
func (tx *Txn) Reset(queue string) error {
	if tx.done {
		return ErrTxnDone
	}
	if err := validateQueue(queue); err != nil {
		return err
	}
	t, err := tx.target(queue)
	if err != nil {
		return err
	}
	if err := tx.discard(t); err != nil {
		return fmt.Errorf("queue %s: discard staged records: %w", queue, err)
	}

	committed := tx.store.manifest.Queues[queue]
	gen := committed.Gen + 1
	if t.reset {
		// Second reset in one transaction: reuse the fresh generation.
		gen = t.state.Gen
	}
	t.state = QueueState{Gen: gen, Count: 0}
	t.reset = true
	t.dir = tx.store.genDir(queue, gen)
	return nil
}

// Len is the queue length this transaction will commit.
func (tx *Txn) Len(queue string) int {
	if t, ok := tx.targets[queue]; ok {
		return t.state.Count
	}
	return tx.store.manifest.Queues[queue].Count
}

// Commit publishes every staged change in one manifest write and then
// removes generations that no longer back any queue.
func (tx *Txn) Commit() error {
	if tx.done {
		return ErrTxnDone
	}
	s := tx.store
	next := s.manifest.clone()
	for _, queue := range tx.order {
		next.Queues[queue] = tx.targets[queue].state
	}
	if err := saveManifest(s.root, next); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.manifest = next
	tx.done = true
	tx.release()

	for _, queue := range tx.order {
		t := tx.targets[queue]
		if !t.reset {
			continue
		}
		if err := s.pruneGenerations(queue, t.state.Gen); err != nil {
			// The manifest already moved on; Recover will finish the job.
			s.logger.Warn("Failed to remove superseded generation",
				slog.String("queue", queue),
				slog.Uint64("keep", t.state.Gen),
				slog.Any("error", err))
		}
	}
	return nil
}

// Rollback removes everything the transaction wrote. It is a no-op after
// Commit, so it is safe to defer.
func (tx *Txn) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.release()
	var errs []error
	for _, queue := range tx.order {
		t := tx.targets[queue]
		errs = append(errs, tx.discard(t))
		if t.reset && t.dir != "" {
			if err := os.RemoveAll(t.dir); err != nil {
				errs = append(errs, err)
			}
		}
		if !tx.store.QueueExists(queue) {
			// Nothing was ever committed for this queue.
			if err := os.RemoveAll(tx.store.queueDir(queue)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (tx *Txn) discard(t *target) error {
	var errs []error
	for _, path := range t.written {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	t.written = nil
	return errors.Join(errs...)
}

// pruneGenerations removes every generation dir of queue except keep.
func (s *Store) pruneGenerations(queue string, keep uint64) error {
	entries, err := os.ReadDir(s.queueDir(queue))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		gen, ok := parseGenName(e.Name())
		if !ok || gen == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.queueDir(queue), e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
