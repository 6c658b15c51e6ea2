// Package rules parses and resolves the emulator's static forwarding-rules
// file, used by the data-plane emulator binary (as opposed to the dynamic,
// BFS-computed rules the control-plane routing daemon produces).
package rules

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"netlab/pkg/wire"
)

// Rule is one forwarding decision for a destination: where to send the
// packet next, how long to hold it in the in-flight delay slot, and the
// probability (0-100) of dropping it as simulated loss.
type Rule struct {
	NextHop     wire.Addr
	DelayMs     int
	LossPercent int
}

// Table is a static, immutable set of forwarding rules for one emulator
// identity, loaded once at startup and never mutated afterward — the
// spec requires the forwarding-rules table to never change during the
// forwarding plane's lifetime.
type Table struct {
	rules map[wire.Addr]Rule
}

// Resolve implements forwarder.RuleResolver. ok is false when dst has no
// loaded rule, which the forwarding loop treats as NO_FORWARDING_ENTRY.
func (t *Table) Resolve(dst wire.Addr) (nextHop wire.Addr, delayMs, lossPercent int, ok bool) {
	r, found := t.rules[dst]
	if !found {
		return wire.Addr{}, 0, 0, false
	}
	return r.NextHop, r.DelayMs, r.LossPercent, true
}

// Load reads a forwarding-rules file and keeps only the lines whose
// (self_host, self_port) match self. Each line is whitespace-separated:
// self_host self_port dest_host dest_port next_hop_host next_hop_port
// delay_ms loss_percent.
func Load(r io.Reader, self wire.Addr) (*Table, error) {
	t := &Table{rules: make(map[wire.Addr]Rule)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 8 {
			return nil, fmt.Errorf("rules: line %d: expected 8 fields, got %d", lineNo, len(fields))
		}

		selfAddr, err := resolveHostPort(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("rules: line %d: %w", lineNo, err)
		}
		if selfAddr != self {
			continue
		}

		destAddr, err := resolveHostPort(fields[2], fields[3])
		if err != nil {
			return nil, fmt.Errorf("rules: line %d: %w", lineNo, err)
		}
		nextHop, err := resolveHostPort(fields[4], fields[5])
		if err != nil {
			return nil, fmt.Errorf("rules: line %d: %w", lineNo, err)
		}
		delayMs, err := strconv.Atoi(fields[6])
		if err != nil {
			return nil, fmt.Errorf("rules: line %d: bad delay_ms: %w", lineNo, err)
		}
		lossPercent, err := strconv.Atoi(fields[7])
		if err != nil {
			return nil, fmt.Errorf("rules: line %d: bad loss_percent: %w", lineNo, err)
		}

		t.rules[destAddr] = Rule{NextHop: nextHop, DelayMs: delayMs, LossPercent: lossPercent}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return t, nil
}

func resolveHostPort(host, portStr string) (wire.Addr, error) {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return wire.Addr{}, fmt.Errorf("bad port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return wire.Addr{}, fmt.Errorf("cannot resolve host %q: %w", host, err)
		}
		ip = resolved.IP
	}
	return wire.AddrFromUDP(&net.UDPAddr{IP: ip, Port: port})
}

// Len returns the number of rules loaded for this identity, mainly for
// tests and startup logging.
func (t *Table) Len() int {
	return len(t.rules)
}
