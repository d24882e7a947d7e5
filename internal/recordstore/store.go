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
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const recordExt = ".rec"

var queueNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Store is a directory of queues and the manifest that counts them.
type Store struct {
	root     string
	manifest *manifest
	// staged counts blobs written by the low-level Append that no
	// SetCounter has covered yet.
	staged map[string]int
	// writers maps a queue to the open Txn that has claimed it.
	writers     map[string]*Txn
	logger      *slog.Logger
	skipRecover bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovery and corruption reports.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithoutRecovery leaves uncommitted debris in place, so inspection tools
// can see it. Such a store must not be written to.
func WithoutRecovery() Option {
	return func(s *Store) {
		s.skipRecover = true
	}
}

// Open loads the manifest under root, creating root if needed, and removes
// any uncommitted debris left by an interrupted cycle.
func Open(root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	m, err := loadManifest(root)
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:     root,
		manifest: m,
		staged:   map[string]int{},
		writers:  map[string]*Txn{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "recordstore")
	if s.skipRecover {
		return s, nil
	}

	report, err := s.Recover()
	if err != nil {
		return nil, fmt.Errorf("recover store: %w", err)
	}
	if !report.Empty() {
		s.logger.Warn("Removed uncommitted records from interrupted cycle",
			slog.Int("records", report.Records),
			slog.Int("generations", report.Generations),
			slog.Int("queues", report.Queues),
			slog.Int("tempFiles", report.TempFiles))
	}
	return s, nil
}

// Root is the directory the store lives in.
func (s *Store) Root() string {
	return s.root
}

// Queues lists the names of committed queues in sorted order.
func (s *Store) Queues() []string {
	names := make([]string, 0, len(s.manifest.Queues))
	for name := range s.manifest.Queues {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// QueueExists reports whether the queue has a committed counter.
func (s *Store) QueueExists(queue string) bool {
	_, ok := s.manifest.Queues[queue]
	return ok
}

// State returns the committed state of the queue; the zero value if absent.
func (s *Store) State(queue string) QueueState {
	return s.manifest.Queues[queue]
}

// GetCounter returns the committed length of the queue, 0 if it is absent.
func (s *Store) GetCounter(queue string) int {
	return s.manifest.Queues[queue].Count
}

// SetCounter commits n as the queue's length. Blobs written by Append at
// indices below n become part of the queue. Like Append, it refuses a
// queue claimed by an open Txn.
func (s *Store) SetCounter(queue string, n int) error {
	if err := validateQueue(queue); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("queue %s: negative counter %d", queue, n)
	}
	if _, ok := s.writers[queue]; ok {
		return fmt.Errorf("queue %s: claimed by an open transaction: %w", queue, ErrStagedAppends)
	}
	next := s.manifest.clone()
	st := next.Queues[queue]
	st.Count = n
	next.Queues[queue] = st
	if err := saveManifest(s.root, next); err != nil {
		return fmt.Errorf("queue %s: commit counter: %w", queue, err)
	}
	s.manifest = next
	delete(s.staged, queue)
	return nil
}

// Append writes data at the queue's next free index and returns that index.
// The record is not part of the queue until SetCounter covers it; use a Txn
// to append and commit in one step. A queue claimed by an open Txn is
// refused with ErrStagedAppends.
func (s *Store) Append(queue string, data []byte) (int, error) {
	if err := validateQueue(queue); err != nil {
		return 0, err
	}
	if _, ok := s.writers[queue]; ok {
		return 0, fmt.Errorf("queue %s: claimed by an open transaction: %w", queue, ErrStagedAppends)
	}
	st := s.manifest.Queues[queue]
	index := st.Count + s.staged[queue]
	if err := s.writeRecord(queue, st.Gen, index, Record{Data: data}); err != nil {
		return 0, err
	}
	s.staged[queue]++
	return index, nil
}

// Read returns the payload stored at index. It returns ErrNotFound if there
// is no blob and ErrCorrupt if the blob fails verification.
func (s *Store) Read(queue string, index int) ([]byte, error) {
	rec, err := s.ReadRecord(queue, index)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// ReadRecord is Read returning the record's key along with its payload.
func (s *Store) ReadRecord(queue string, index int) (Record, error) {
	if err := validateQueue(queue); err != nil {
		return Record{}, err
	}
	if index < 0 {
		return Record{}, fmt.Errorf("queue %s index %d: %w", queue, index, ErrNotFound)
	}
	path := s.recordPath(queue, s.manifest.Queues[queue].Gen, index)
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("queue %s index %d: %w", queue, index, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("queue %s index %d: %w", queue, index, err)
	}
	rec, err := decodeFrame(buf)
	if err != nil {
		return Record{}, fmt.Errorf("queue %s index %d: %w", queue, index, err)
	}
	return rec, nil
}

// Exists reports whether a blob is present at index.
func (s *Store) Exists(queue string, index int) bool {
	if validateQueue(queue) != nil || index < 0 {
		return false
	}
	_, err := os.Stat(s.recordPath(queue, s.manifest.Queues[queue].Gen, index))
	return err == nil
}

// Delete removes the blob at index. The counter is left alone; the gap it
// leaves is closed by the next compaction of the queue.
func (s *Store) Delete(queue string, index int) error {
	if err := validateQueue(queue); err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("queue %s index %d: %w", queue, index, ErrNotFound)
	}
	err := os.Remove(s.recordPath(queue, s.manifest.Queues[queue].Gen, index))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("queue %s index %d: %w", queue, index, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("queue %s index %d: %w", queue, index, err)
	}
	return nil
}

// Queue returns a view of one queue.
func (s *Store) Queue(name string) *Queue {
	return &Queue{store: s, name: name}
}

func (s *Store) queueDir(queue string) string {
	return filepath.Join(s.root, queue)
}

func (s *Store) genDir(queue string, gen uint64) string {
	return filepath.Join(s.root, queue, "g"+strconv.FormatUint(gen, 10))
}

func (s *Store) recordPath(queue string, gen uint64, index int) string {
	return filepath.Join(s.genDir(queue, gen), strconv.Itoa(index)+recordExt)
}

func (s *Store) writeRecord(queue string, gen uint64, index int, rec Record) error {
	frame, err := encodeFrame(rec)
	if err != nil {
		return fmt.Errorf("queue %s index %d: %w", queue, index, err)
	}
	dir := s.genDir(queue, gen)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("queue %s: create generation dir: %w", queue, err)
	}
	if err := writeFileSync(s.recordPath(queue, gen, index), frame); err != nil {
		return fmt.Errorf("queue %s index %d: write: %w", queue, index, err)
	}
	return nil
}

func validateQueue(queue string) error {
	if !queueNameRE.MatchString(queue) || queue == manifestName || strings.HasPrefix(queue, tempPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidQueue, queue)
	}
	return nil
}

// parseRecordName returns the index encoded in a blob file name.
func parseRecordName(name string) (int, bool) {
	base, ok := strings.CutSuffix(name, recordExt)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(base)
	if err != nil || i < 0 || strconv.Itoa(i) != base {
		return 0, false
	}
	return i, true
}

// parseGenName returns the generation encoded in a generation dir name.
func parseGenName(name string) (uint64, bool) {
	base, ok := strings.CutPrefix(name, "g")
	if !ok {
		return 0, false
	}
	g, err := strconv.ParseUint(base, 10, 64)
	if err != nil || strconv.FormatUint(g, 10) != base {
		return 0, false
	}
	return g, true
}
