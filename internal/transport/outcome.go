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

package transport

// Outcome is the result of delivering one record to one endpoint.
type Outcome int

const (
	Delivered Outcome = iota
	Rejected
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case TransportFailed:
		return "transport_failed"
	default:
		return "unknown"
	}
}

// Classify maps a Get or Post result onto an Outcome: any error is a
// transport failure, a non-2xx status is a rejection.
func Classify(resp Response, err error) Outcome {
	if err != nil {
		return TransportFailed
	}
	if !resp.OK() {
		return Rejected
	}
	return Delivered
}
