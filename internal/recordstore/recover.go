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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RecoveryReport counts what Recover removed.
type RecoveryReport struct {
	// Records are blobs at or beyond their queue's committed count:
	// appends whose commit never happened.
	Records int `yaml:"records"`
	// Generations are generation dirs the manifest does not point at:
	// compactions that never committed, or committed ones whose cleanup
	// was cut short.
	Generations int `yaml:"generations"`
	// Queues are queue dirs with no committed counter at all.
	Queues int `yaml:"queues"`
	// TempFiles are half-written manifest replacements.
	TempFiles int `yaml:"temp_files"`
}

func (r RecoveryReport) Empty() bool {
	return r == RecoveryReport{}
}

// Recover brings the directory in line with the manifest by deleting every
// file the manifest does not account for. After Recover, a queue's blobs
// are a subset of [0, count) in its committed generation.
func (s *Store) Recover() (RecoveryReport, error) {
	var report RecoveryReport

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return report, fmt.Errorf("list store root: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(s.root, name)
		if strings.HasPrefix(name, tempPrefix) {
			if err := os.RemoveAll(path); err != nil {
				return report, err
			}
			report.TempFiles++
			continue
		}
		if !e.IsDir() {
			continue
		}
		st, ok := s.manifest.Queues[name]
		if !ok {
			if validateQueue(name) != nil || !looksLikeQueueDir(path) {
				// Not ours; leave foreign directories on the card alone.
				continue
			}
			if err := os.RemoveAll(path); err != nil {
				return report, err
			}
			report.Queues++
			continue
		}
		if err := s.recoverQueue(name, st, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *Store) recoverQueue(queue string, st QueueState, report *RecoveryReport) error {
	gens, err := os.ReadDir(s.queueDir(queue))
	if err != nil {
		return fmt.Errorf("list queue %s: %w", queue, err)
	}
	for _, g := range gens {
		path := filepath.Join(s.queueDir(queue), g.Name())
		gen, ok := parseGenName(g.Name())
		if !ok || !g.IsDir() {
			if err := os.RemoveAll(path); err != nil {
				return err
			}
			report.TempFiles++
			continue
		}
		if gen != st.Gen {
			if err := os.RemoveAll(path); err != nil {
				return err
			}
			report.Generations++
			continue
		}
		records, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("list queue %s generation %d: %w", queue, gen, err)
		}
		for _, r := range records {
			index, ok := parseRecordName(r.Name())
			if ok && index < st.Count {
				continue
			}
			if err := os.RemoveAll(filepath.Join(path, r.Name())); err != nil {
				return err
			}
			if ok {
				report.Records++
			} else {
				report.TempFiles++
			}
		}
	}
	delete(s.staged, queue)
	return nil
}

// looksLikeQueueDir reports whether every entry under path is a generation
// dir, which is the only thing the store ever creates inside a queue dir.
func looksLikeQueueDir(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if _, ok := parseGenName(e.Name()); !ok || !e.IsDir() {
			return false
		}
	}
	return true
}
