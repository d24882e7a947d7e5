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

//go:build linux

package device

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func (b BlockMounter) Mount(context.Context) error {
	if err := os.MkdirAll(b.Target, 0o755); err != nil {
		return fmt.Errorf("create mount point %s: %w", b.Target, err)
	}
	fstype := b.FSType
	if fstype == "" {
		fstype = "vfat"
	}
	err := unix.Mount(b.Device, b.Target, fstype, unix.MS_NOATIME|unix.MS_NODEV|unix.MS_NOSUID, b.Options)
	if errors.Is(err, unix.EBUSY) {
		// Left mounted by a cycle that lost power before unmounting.
		return nil
	}
	if err != nil {
		return fmt.Errorf("mount %s on %s: %w", b.Device, b.Target, err)
	}
	return nil
}

func (b BlockMounter) Unmount(context.Context) error {
	unix.Sync()
	if err := unix.Unmount(b.Target, 0); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("unmount %s: %w", b.Target, err)
	}
	return nil
}
