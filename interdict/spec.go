// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package interdict

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Direction of the traffic a filter matches.
type Direction int

const (
	// Outbound matches packets leaving the host.
	Outbound Direction = iota
	// Inbound matches packets arriving at the host.
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// BlockSpec selects the traffic one filter session drops: packets of a
// named process going to a set of TCP destination ports.
type BlockSpec struct {
	TargetProcessName string
	Direction         Direction
	DestinationPorts  []int
}

// Validate checks that the spec can be turned into a filter expression.
func (b BlockSpec) Validate() error {
	if b.TargetProcessName == "" {
		return errors.New("block spec: target process name is empty")
	}
	if strings.ContainsAny(b.TargetProcessName, "\"\\") {
		return fmt.Errorf("block spec: invalid process name %q", b.TargetProcessName)
	}
	if b.Direction != Outbound && b.Direction != Inbound {
		return fmt.Errorf("block spec: unknown direction %s", b.Direction)
	}
	if len(b.DestinationPorts) == 0 {
		return errors.New("block spec: no destination ports")
	}
	for _, p := range b.DestinationPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("block spec: invalid port %d", p)
		}
	}
	return nil
}

// Ports returns the destination ports without duplicates, in first-seen
// order.
func (b BlockSpec) Ports() []int {
	seen := make(map[int]bool, len(b.DestinationPorts))
	var ports []int
	for _, p := range b.DestinationPorts {
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	return ports
}

// FilterExpression renders the spec in the WinDivert filter language, e.g.
//
//	process.name == "MediaSDK_Server.exe" and outbound and (tcp.DstPort == 1935 or tcp.DstPort == 443)
func (b BlockSpec) FilterExpression() string {
	ports := b.Ports()
	clauses := make([]string, 0, len(ports))
	for _, p := range ports {
		clauses = append(clauses, fmt.Sprintf("tcp.DstPort == %d", p))
	}
	return fmt.Sprintf("process.name == \"%s\" and %s and (%s)", b.TargetProcessName, b.Direction, strings.Join(clauses, " or "))
}

// String is used in logs.
func (b BlockSpec) String() string {
	ports := append([]int(nil), b.Ports()...)
	sort.Ints(ports)
	return fmt.Sprintf("%s %s ports %v", b.TargetProcessName, b.Direction, ports)
}
