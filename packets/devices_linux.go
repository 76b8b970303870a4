// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build linux

package packets

import (
	"github.com/vishvananda/netlink"

	"github.com/streamtap/streamtap/log"
)

var virtualLinkTypes = map[string]bool{
	"veth":   true,
	"bridge": true,
	"tun":    true,
	"tuntap": true,
	"dummy":  true,
}

// linkByName is a variable so tests can fake netlink.
var linkByName = netlink.LinkByName

// annotateLink refines the pcap view with the kernel's link state.
func annotateLink(d *Device) {
	link, err := linkByName(d.Name)
	if err != nil {
		// pseudo devices such as "any" have no link
		log.Tracef("no netlink link for %s: %s", d.Name, err)
		return
	}
	attrs := link.Attrs()
	switch attrs.OperState {
	case netlink.OperUp, netlink.OperUnknown:
		d.Up = true
	default:
		d.Up = false
	}
	if virtualLinkTypes[link.Type()] {
		d.Virtual = true
	}
}
