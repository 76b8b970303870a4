// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package packets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/gopacket/pcap"

	"github.com/streamtap/streamtap/log"
)

// ErrNoDevice is returned when no active capture device is available.
var ErrNoDevice = errors.New("no active network device found")

// pcap interface flags, see pcap/pcap.h
const (
	pcapIfLoopback = 0x00000001
	pcapIfUp       = 0x00000002
)

var virtualPrefixes = []string{"hyper-v", "vmware", "virtualbox"}

// PreferredVendors are description substrings of physical adapters picked
// without asking.
var PreferredVendors = []string{"Intel", "Realtek", "Broadcom", "Qualcomm", "Atheros", "Wi-Fi", "Wireless", "WLAN"}

// Device is a capture device as seen by libpcap, annotated with link state.
type Device struct {
	Name        string
	Description string
	Addresses   []string
	Up          bool
	Loopback    bool
	Virtual     bool
}

// Label is the human readable name of the device.
func (d Device) Label() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Name
}

// findAllDevs is a variable so tests can run without a pcap environment.
var findAllDevs = pcap.FindAllDevs

// ListDevices returns every capture device visible to libpcap.
func ListDevices() ([]Device, error) {
	ifaces, err := findAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]Device, 0, len(ifaces))
	for _, iface := range ifaces {
		d := Device{
			Name:        iface.Name,
			Description: iface.Description,
			// an adapter reporting no flags at all is given the benefit of the doubt
			Up:       iface.Flags == 0 || iface.Flags&pcapIfUp != 0,
			Loopback: iface.Flags&pcapIfLoopback != 0,
		}
		for _, a := range iface.Addresses {
			if a.IP != nil {
				d.Addresses = append(d.Addresses, a.IP.String())
			}
		}
		d.Virtual = hasVirtualName(d.Description) || hasVirtualName(d.Name)
		annotateLink(&d)
		devices = append(devices, d)
	}
	return devices, nil
}

func hasVirtualName(s string) bool {
	lower := strings.ToLower(s)
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return strings.Contains(lower, "virtual")
}

// Chooser asks the operator to pick one of the candidates and returns its
// index.
type Chooser func(candidates []Device) (int, error)

// SelectDevice picks the capture device: active physical adapters first
// (falling back to every active adapter), a preferred vendor if one
// matches, and otherwise the operator's choice. A nil chooser picks the
// first candidate.
func SelectDevice(devices []Device, choose Chooser) (Device, error) {
	var active, physical []Device
	for _, d := range devices {
		if !d.Up || d.Loopback || len(d.Addresses) == 0 {
			continue
		}
		active = append(active, d)
		if !d.Virtual {
			physical = append(physical, d)
		}
	}

	candidates := physical
	if len(candidates) == 0 {
		if len(active) > 0 {
			log.Infof("no physical adapter found, considering all %d active adapters", len(active))
		}
		candidates = active
	}
	if len(candidates) == 0 {
		return Device{}, ErrNoDevice
	}

	for _, d := range candidates {
		label := strings.ToLower(d.Label())
		for _, vendor := range PreferredVendors {
			if strings.Contains(label, strings.ToLower(vendor)) {
				log.Infof("selected network device %s (%s)", d.Label(), d.Name)
				return d, nil
			}
		}
	}

	if choose == nil || len(candidates) == 1 {
		return candidates[0], nil
	}
	idx, err := choose(candidates)
	if err != nil {
		return Device{}, fmt.Errorf("device selection failed: %w", err)
	}
	if idx < 0 || idx >= len(candidates) {
		return Device{}, fmt.Errorf("device selection failed: index %d out of range", idx)
	}
	return candidates[idx], nil
}

// PromptChooser lists the candidates on w and reads a 1-based index from r,
// asking again until the answer is valid.
func PromptChooser(r io.Reader, w io.Writer) Chooser {
	return func(candidates []Device) (int, error) {
		fmt.Fprintln(w, "\nCould not pick a network device automatically, choose one:")
		for i, d := range candidates {
			fmt.Fprintf(w, "%d. %s\n", i+1, d.Label())
		}
		scanner := bufio.NewScanner(r)
		for {
			fmt.Fprintf(w, "\nEnter a number (1-%d): ", len(candidates))
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return 0, err
				}
				return 0, io.ErrUnexpectedEOF
			}
			n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
			if err == nil && n >= 1 && n <= len(candidates) {
				return n - 1, nil
			}
			fmt.Fprintln(w, "Invalid input, try again")
		}
	}
}
