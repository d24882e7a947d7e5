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

//go:build !linux && !darwin

package device

import "errors"

type StorageUsage struct {
	TotalBytes uint64 `yaml:"total_bytes"`
	FreeBytes  uint64 `yaml:"free_bytes"`
	FreeInodes uint64 `yaml:"free_inodes"`
}

func Usage(string) (StorageUsage, error) {
	return StorageUsage{}, errors.New("storage usage is not supported on this platform")
}
