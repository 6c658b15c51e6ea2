// Package tracker parses the plaintext tracker file the requester
// consults to find which sender peers carry a given filename, in what
// order to contact them. Parsing is an external collaborator per the
// spec (the core reliable-transport logic only ever sees a resolved
// peer address and a filename), but a complete requester binary still
// needs to load the file.
package tracker

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"

	"netlab/pkg/wire"
)

// Peer is one tracker record: the sender identified by id, resolved to
// a wire address.
type Peer struct {
	ID   int
	Addr wire.Addr
}

// Load reads a tracker file and returns, for filename, the peers that
// serve it in ascending id order — the order the requester contacts
// them in.
func Load(r io.Reader, filename string) ([]Peer, error) {
	var peers []Peer
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("tracker: line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		if fields[0] != filename {
			continue
		}

		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("tracker: line %d: bad id: %w", lineNo, err)
		}
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("tracker: line %d: bad port: %w", lineNo, err)
		}

		ip := net.ParseIP(fields[2])
		if ip == nil {
			resolved, err := net.ResolveIPAddr("ip4", fields[2])
			if err != nil {
				return nil, fmt.Errorf("tracker: line %d: cannot resolve host %q: %w", lineNo, fields[2], err)
			}
			ip = resolved.IP
		}
		addr, err := wire.AddrFromUDP(&net.UDPAddr{IP: ip, Port: port})
		if err != nil {
			return nil, fmt.Errorf("tracker: line %d: %w", lineNo, err)
		}

		peers = append(peers, Peer{ID: id, Addr: addr})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers, nil
}
