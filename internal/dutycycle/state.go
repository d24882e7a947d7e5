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

package dutycycle

// State is a step of the duty cycle.
type State int

const (
	StateInit State = iota
	StateMountStorage
	StateIdentifyNetwork
	StateRunCollector
	StateRunRelay
	StateAbort
	StateUnmountStorage
	StateSuspend
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateMountStorage:
		return "mount_storage"
	case StateIdentifyNetwork:
		return "identify_network"
	case StateRunCollector:
		return "run_collector"
	case StateRunRelay:
		return "run_relay"
	case StateAbort:
		return "abort"
	case StateUnmountStorage:
		return "unmount_storage"
	case StateSuspend:
		return "suspend"
	default:
		return "unknown"
	}
}
