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

package device

import (
	"context"
	"fmt"
	"os"
)

// Mounter makes the record storage available for one cycle.
type Mounter interface {
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error
}

// DirMounter treats a directory as the storage: Mount creates it if needed
// and checks it is writable, Unmount does nothing.
type DirMounter struct {
	Path string
}

func (d DirMounter) Mount(context.Context) error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("storage %s: %w", d.Path, err)
	}
	info, err := os.Stat(d.Path)
	if err != nil {
		return fmt.Errorf("storage %s: %w", d.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage %s: not a directory", d.Path)
	}
	f, err := os.CreateTemp(d.Path, ".probe-")
	if err != nil {
		return fmt.Errorf("storage %s not writable: %w", d.Path, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func (d DirMounter) Unmount(context.Context) error {
	return nil
}

// BlockMounter mounts a block device (the SD card) at Target for the cycle.
type BlockMounter struct {
	Device string
	Target string
	FSType string
	// Options is the filesystem-specific data string, e.g. "utf8".
	Options string
}
