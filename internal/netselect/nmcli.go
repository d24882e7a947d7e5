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

package netselect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"
)

// NMCLIRadio drives NetworkManager through nmcli(1).
type NMCLIRadio struct {
	// Interface restricts scans and connects to one wireless device.
	Interface string
	// Binary defaults to "nmcli".
	Binary string
}

func (r NMCLIRadio) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "nmcli"
}

func (r NMCLIRadio) Scan(ctx context.Context) ([]Network, error) {
	args := []string{"-t", "-f", "SSID,SIGNAL", "device", "wifi", "list", "--rescan", "yes"}
	if r.Interface != "" {
		args = append(args, "ifname", r.Interface)
	}
	out, err := exec.CommandContext(ctx, r.binary(), args...).Output()
	if err != nil {
		return nil, fmt.Errorf("nmcli scan: %w", err)
	}
	return parseNMCLIList(out), nil
}

// Connect joins identity. The credential is answered on stdin to nmcli's
// --ask prompt, so it never appears in the process table.
func (r NMCLIRadio) Connect(ctx context.Context, identity, credential string) error {
	args := []string{"device", "wifi", "connect", identity}
	if r.Interface != "" {
		args = append(args, "ifname", r.Interface)
	}
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	if credential != "" {
		cmd.Args = slices.Insert(cmd.Args, 1, "--ask")
		cmd.Stdin = strings.NewReader(credential + "\n")
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli connect %s: %w: %s", identity, err, bytes.TrimSpace(out))
	}
	return nil
}

// parseNMCLIList parses terse "SSID:SIGNAL" lines. nmcli escapes ':' in
// field values as "\:". Signal is a 0-100 quality, mapped onto dBm.
func parseNMCLIList(out []byte) []Network {
	var nets []Network
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		sep := -1
		for i := len(line) - 1; i >= 0; i-- {
			if line[i] == ':' && (i == 0 || line[i-1] != '\\') {
				sep = i
				break
			}
		}
		if sep <= 0 {
			continue
		}
		ssid := strings.ReplaceAll(line[:sep], `\:`, ":")
		quality, err := strconv.Atoi(strings.TrimSpace(line[sep+1:]))
		if err != nil {
			continue
		}
		nets = append(nets, Network{Identity: ssid, Signal: quality/2 - 100})
	}
	return nets
}
