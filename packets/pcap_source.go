// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package packets

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/log"
)

// CaptureConfig configures a live capture.
type CaptureConfig struct {
	SnapLen     int32
	Promiscuous bool
	ReadTimeout time.Duration
}

// DefaultCaptureConfig returns a promiscuous capture with a bounded read
// timeout so Stop is honoured promptly.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SnapLen:     common.DefaultSnapLen,
		Promiscuous: true,
		ReadTimeout: common.DefaultReadTimeout,
	}
}

// filterSetter is the part of *pcap.Handle used to install a BPF filter.
type filterSetter interface {
	SetBPFFilter(expr string) error
}

// PcapSource delivers TCP payloads read through libpcap / Npcap.
type PcapSource struct {
	name   string
	reader gopacket.PacketDataSource
	filter filterSetter
	closer func()
	first  gopacket.LayerType
	parser *FrameParser

	mu       sync.Mutex
	handler  PacketHandler
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	closeOnce sync.Once
}

var _ Source = &PcapSource{}

// OpenLive opens device for live capture.
func OpenLive(device string, cfg CaptureConfig) (*PcapSource, error) {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = common.DefaultReadTimeout
	}
	handle, err := pcap.OpenLive(device, cfg.SnapLen, cfg.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("OpenLive failed to open %s: %w", device, err)
	}
	return newPcapSource(device, handle, handle, handle.Close, FirstLayerFor(handle.LinkType())), nil
}

// OpenOffline replays a capture file. Delivery ends when the file is
// exhausted, which closes Done.
func OpenOffline(path string) (*PcapSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("OpenOffline failed to open %s: %w", path, err)
	}
	return newPcapSource(path, handle, handle, handle.Close, FirstLayerFor(handle.LinkType())), nil
}

func newPcapSource(name string, reader gopacket.PacketDataSource, filter filterSetter, closer func(), first gopacket.LayerType) *PcapSource {
	return &PcapSource{
		name:   name,
		reader: reader,
		filter: filter,
		closer: closer,
		first:  first,
		parser: NewFrameParser(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetFilter installs a BPF filter expression on the handle.
func (s *PcapSource) SetFilter(expr string) error {
	if s.filter == nil {
		return nil
	}
	if err := s.filter.SetBPFFilter(expr); err != nil {
		return fmt.Errorf("SetFilter %q on %s: %w", expr, s.name, err)
	}
	return nil
}

// OnPacket registers the segment callback.
func (s *PcapSource) OnPacket(handler PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Start launches the delivery goroutine.
func (s *PcapSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("capture on %s already started", s.name)
	}
	if s.handler == nil {
		return fmt.Errorf("capture on %s has no packet handler", s.name)
	}
	select {
	case <-s.stop:
		return fmt.Errorf("capture on %s was stopped", s.name)
	default:
	}
	s.started = true
	go s.deliver(s.handler)
	return nil
}

// Stop halts delivery and waits for the delivery goroutine. It is safe to
// call before Start and more than once.
func (s *PcapSource) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
	return nil
}

// Close stops delivery and releases the pcap handle.
func (s *PcapSource) Close() error {
	err := s.Stop()
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closer()
		}
	})
	return err
}

// Done is closed when the delivery goroutine returns.
func (s *PcapSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that ended delivery, if any.
func (s *PcapSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PcapSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *PcapSource) deliver(handler PacketHandler) {
	defer close(s.done)
	var delivered, skipped uint64
	defer func() {
		log.Debugf("capture on %s finished: %d segments delivered, %d frames skipped", s.name, delivered, skipped)
	}()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Infof("capture source %s exhausted", s.name)
				return
			}
			_ = log.Errorf("capture on %s failed to read packet: %s", s.name, err)
			s.fail(fmt.Errorf("capture on %s failed to read packet: %w", s.name, err))
			return
		}

		payload, err := s.parser.TCPPayload(data, s.first)
		if err != nil || len(payload) == 0 {
			skipped++
			continue
		}
		delivered++
		handler(Segment{Payload: payload, Timestamp: ci.Timestamp})
	}
}
