// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package packets

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNotTCP is returned by FrameParser.TCPPayload for frames that do not
// carry a TCP segment.
var ErrNotTCP = errors.New("frame does not contain a TCP segment")

// LayerTypeRawIP is used as the first layer of sources that yield bare IP
// packets with no link header. The IP version is read from the first nibble.
var LayerTypeRawIP = gopacket.RegisterLayerType(19850, gopacket.LayerTypeMetadata{Name: "RawIP"})

// FrameParser decodes captured frames down to the TCP payload. It reuses its
// layer structs between calls and is not safe for concurrent use.
type FrameParser struct {
	Ethernet layers.Ethernet
	Loopback layers.Loopback
	SLL      layers.LinuxSLL
	IP4      layers.IPv4
	IP6      layers.IPv6
	TCP      layers.TCP

	parsers map[gopacket.LayerType]*gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// NewFrameParser returns a parser for Ethernet, loopback, Linux cooked and
// bare IP frames.
func NewFrameParser() *FrameParser {
	p := &FrameParser{
		parsers: make(map[gopacket.LayerType]*gopacket.DecodingLayerParser),
		decoded: make([]gopacket.LayerType, 0, 4),
	}
	decoders := []gopacket.DecodingLayer{&p.Ethernet, &p.Loopback, &p.SLL, &p.IP4, &p.IP6, &p.TCP}
	for _, first := range []gopacket.LayerType{
		layers.LayerTypeEthernet,
		layers.LayerTypeLoopback,
		layers.LayerTypeLinuxSLL,
		layers.LayerTypeIPv4,
		layers.LayerTypeIPv6,
	} {
		parser := gopacket.NewDecodingLayerParser(first, decoders...)
		// the TCP payload is handed back as bytes, nothing past it is decoded
		parser.IgnoreUnsupported = true
		p.parsers[first] = parser
	}
	return p
}

// FirstLayerFor maps a pcap link type to the first layer FrameParser decodes.
func FirstLayerFor(lt layers.LinkType) gopacket.LayerType {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return layers.LayerTypeLoopback
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL
	case layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6
	default:
		return LayerTypeRawIP
	}
}

// TCPPayload decodes buf, whose outermost layer is first, and returns the
// payload of the TCP segment it carries.
func (p *FrameParser) TCPPayload(buf []byte, first gopacket.LayerType) ([]byte, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("TCPPayload: empty frame")
	}
	if first == LayerTypeRawIP {
		switch buf[0] >> 4 {
		case 4:
			first = layers.LayerTypeIPv4
		case 6:
			first = layers.LayerTypeIPv6
		default:
			return nil, fmt.Errorf("TCPPayload: unknown IP version %d", buf[0]>>4)
		}
	}
	parser, ok := p.parsers[first]
	if !ok {
		return nil, fmt.Errorf("TCPPayload: unsupported first layer %s", first)
	}

	p.decoded = p.decoded[:0]
	if err := parser.DecodeLayers(buf, &p.decoded); err != nil {
		return nil, fmt.Errorf("TCPPayload failed to decode frame: %w", err)
	}
	for _, lt := range p.decoded {
		if lt == layers.LayerTypeTCP {
			return p.TCP.Payload, nil
		}
	}
	return nil, ErrNotTCP
}
