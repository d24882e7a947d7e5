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

//go:build linux || darwin

package device

import (
	"golang.org/x/sys/unix"
)

// StorageUsage is the capacity of the filesystem holding the queues.
type StorageUsage struct {
	TotalBytes uint64 `yaml:"total_bytes"`
	// FreeBytes is what an unprivileged writer can still use.
	FreeBytes  uint64 `yaml:"free_bytes"`
	FreeInodes uint64 `yaml:"free_inodes"`
}

// Usage reports StorageUsage for the filesystem containing path. Every
// record is a file, so on FAT cards the inode count can matter as much as
// bytes.
func Usage(path string) (StorageUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return StorageUsage{}, err
	}
	return StorageUsage{
		TotalBytes: st.Blocks * uint64(st.Bsize),
		FreeBytes:  st.Bavail * uint64(st.Bsize),
		FreeInodes: uint64(st.Ffree),
	}, nil
}
