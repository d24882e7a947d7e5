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
	"maps"
	"os"
	"path/filepath"

	"github.com/cardinalhq/fieldrelay/internal/cbor"
)

const (
	manifestName    = "counters.cbor"
	manifestVersion = 1
	tempPrefix      = ".tmp-"
)

var codec = cbor.MustNewConfig()

// QueueState is the committed state of one queue.
type QueueState struct {
	Gen   uint64 `cbor:"g"`
	Count int    `cbor:"n"`
}

type manifest struct {
	Version int                   `cbor:"v"`
	Queues  map[string]QueueState `cbor:"q"`
}

func newManifest() *manifest {
	return &manifest{Version: manifestVersion, Queues: map[string]QueueState{}}
}

func (m *manifest) clone() *manifest {
	return &manifest{Version: m.Version, Queues: maps.Clone(m.Queues)}
}

func loadManifest(root string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return newManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m := newManifest()
	if err := codec.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrCorrupt, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", ErrCorrupt, m.Version)
	}
	if m.Queues == nil {
		m.Queues = map[string]QueueState{}
	}
	for name, st := range m.Queues {
		if st.Count < 0 {
			return nil, fmt.Errorf("%w: queue %q has negative count %d", ErrCorrupt, name, st.Count)
		}
	}
	return m, nil
}

func saveManifest(root string, m *manifest) error {
	data, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(root, manifestName), data)
}

// writeFileAtomic replaces path with data such that a reader (or the next
// boot after a power cut) sees either the old content or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return syncDir(dir)
}

// writeFileSync writes data to path and flushes it to the device.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	// FAT and some FUSE mounts refuse fsync on directories.
	_ = d.Sync()
	return nil
}
