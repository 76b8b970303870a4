// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

//go:build windows

package packets

/*
#include <stdlib.h>
#include <memory.h>
*/
import "C"
import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/DataDog/datadog-agent/pkg/network/driver"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/streamtap/streamtap/common"
	"github.com/streamtap/streamtap/log"
)

const (
	readBufferCount = 100
)

type readbuffer struct {
	ol   windows.Overlapped
	data [1500]byte
}

var initOnce sync.Once

// StartDriver loads and starts the Datadog network driver.
func StartDriver() error {
	var initErr error
	initOnce.Do(func() {
		initErr = driver.Init()
	})
	if initErr != nil {
		return fmt.Errorf("StartDriver failed to init driver: %w", initErr)
	}
	if err := driver.Start(); err != nil {
		return fmt.Errorf("StartDriver failed to start driver: %w", err)
	}
	return nil
}

// DriverSource captures TCP traffic in both directions through the network
// driver. Packets start at the IP header.
type DriverSource struct {
	handle      driver.Handle
	iocp        windows.Handle
	readBuffers []*readbuffer
	parser      *FrameParser

	mu       sync.Mutex
	handler  PacketHandler
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	closeOnce sync.Once
}

var _ Source = &DriverSource{}

// NewDriverSource opens a data handle on the driver.
func NewDriverSource() (Source, error) {
	d := &DriverSource{
		parser: NewFrameParser(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	var err error

	d.handle, err = driver.NewHandle(windows.FILE_FLAG_OVERLAPPED, driver.DataHandle, nil)
	if err != nil {
		return nil, fmt.Errorf("NewDriverSource failed to create handle: %w", err)
	}

	iocp, buffers, err := prepareCompletionBuffers(d.handle.GetWindowsHandle(), readBufferCount)
	if err != nil {
		_ = d.handle.Close()
		return nil, fmt.Errorf("NewDriverSource failed to prepare completion buffers: %w", err)
	}
	d.iocp = iocp
	d.readBuffers = buffers

	return d, nil
}

// SetFilter installs transport layer filters. The driver has no textual
// filter language, only "tcp" (the capture filter this tool uses) and ""
// are accepted.
func (d *DriverSource) SetFilter(expr string) error {
	if expr != "" && expr != common.DefaultCaptureFilter {
		return fmt.Errorf("driver source only supports the %q filter, got %q", common.DefaultCaptureFilter, expr)
	}
	var id int64
	for _, filter := range tcpFilterDefinitions() {
		err := d.handle.DeviceIoControl(
			driver.SetDataFilterIOCTL,
			(*byte)(unsafe.Pointer(&filter)),
			uint32(unsafe.Sizeof(filter)),
			(*byte)(unsafe.Pointer(&id)),
			uint32(unsafe.Sizeof(id)), nil, nil)
		if err != nil {
			return fmt.Errorf("failed to set filter: %v", err)
		}
	}
	return nil
}

func tcpFilterDefinitions() []driver.FilterDefinition {
	var filters []driver.FilterDefinition
	for _, af := range []uint64{windows.AF_INET, windows.AF_INET6} {
		for _, dir := range []uint64{driver.DirectionInbound, driver.DirectionOutbound} {
			filters = append(filters, driver.FilterDefinition{
				FilterVersion:  driver.Signature,
				Size:           driver.FilterDefinitionSize,
				FilterLayer:    driver.LayerTransport,
				Af:             af,
				InterfaceIndex: uint64(0),
				Direction:      dir,
				Protocol:       windows.IPPROTO_TCP,
			})
		}
	}
	return filters
}

// OnPacket registers the segment callback.
func (d *DriverSource) OnPacket(handler PacketHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

// Start launches the delivery goroutine.
func (d *DriverSource) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("driver capture already started")
	}
	if d.handler == nil {
		return fmt.Errorf("driver capture has no packet handler")
	}
	d.started = true
	go d.deliver(d.handler)
	return nil
}

// Stop halts delivery and waits for the delivery goroutine.
func (d *DriverSource) Stop() error {
	d.stopOnce.Do(func() { close(d.stop) })
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if started {
		<-d.done
	}
	return nil
}

// Done is closed when the delivery goroutine returns.
func (d *DriverSource) Done() <-chan struct{} {
	return d.done
}

// Err returns the read error that ended delivery, if any.
func (d *DriverSource) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *DriverSource) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Close stops delivery and closes the driver handle.
func (d *DriverSource) Close() error {
	_ = d.Stop()
	var err error
	d.closeOnce.Do(func() {
		// destroy io completion port, and file
		if e := d.handle.CancelIoEx(nil); e != nil {
			err = fmt.Errorf("error cancelling io completion: %w", e)
			return
		}
		if e := windows.CloseHandle(d.iocp); e != nil {
			err = fmt.Errorf("error closing io completion handle: %w", e)
			return
		}
		if e := d.handle.Close(); e != nil {
			err = fmt.Errorf("error closing driver handle: %w", e)
			return
		}
		for _, buf := range d.readBuffers {
			C.free(unsafe.Pointer(buf))
		}
		d.readBuffers = nil
	})
	return err
}

// prepare N read buffers
// and return the IoCompletionPort that will be used to coordinate reads.
// danger: even though all reads will reference the returned iocp, buffers must be in-scope as long
// as reads are happening. Otherwise, the memory the kernel is writing to will be written to memory reclaimed
// by the GC
func prepareCompletionBuffers(h windows.Handle, count int) (iocp windows.Handle, buffers []*readbuffer, err error) {
	iocp, err = windows.CreateIoCompletionPort(h, windows.Handle(0), 0, 0)
	if err != nil {
		return windows.Handle(0), nil, errors.Wrap(err, "error creating IO completion port")
	}

	buffers = make([]*readbuffer, count)
	for i := 0; i < count; i++ {
		buf := (*readbuffer)(C.malloc(C.size_t(unsafe.Sizeof(readbuffer{}))))
		C.memset(unsafe.Pointer(buf), 0, C.size_t(unsafe.Sizeof(readbuffer{})))
		buffers[i] = buf

		err = windows.ReadFile(h, buf.data[:], nil, &(buf.ol))
		if err != nil && err != windows.ERROR_IO_PENDING {
			_ = windows.CloseHandle(iocp)
			return windows.Handle(0), nil, errors.Wrap(err, "failed to initiate readfile")
		}
	}

	return iocp, buffers, nil
}

func (d *DriverSource) deliver(handler PacketHandler) {
	defer close(d.done)
	timeoutMs := uint32(common.DefaultReadTimeout.Milliseconds())

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		var bytesRead uint32
		var key uintptr
		var ol *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(d.iocp, &bytesRead, &key, &ol, timeoutMs)
		if err != nil {
			if err == syscall.Errno(syscall.WAIT_TIMEOUT) {
				continue
			}
			err = errors.Wrap(err, "could not get queued completion status")
			_ = log.Errorf("driver capture failed: %s", err)
			d.fail(err)
			return
		}

		b := (*readbuffer)(unsafe.Pointer(ol))
		start := int(driver.FilterPacketHeaderSize)
		end := int(bytesRead)
		if end > len(b.data) || end < start {
			end = len(b.data)
		}
		frame := make([]byte, end-start)
		copy(frame, b.data[start:end])

		// kick off another read
		if err := windows.ReadFile(d.handle.GetWindowsHandle(), b.data[:], nil, &(b.ol)); err != nil && err != windows.ERROR_IO_PENDING {
			_ = log.Errorf("driver capture failed to re-arm read: %s", err)
			d.fail(errors.Wrap(err, "failed to re-arm read"))
			return
		}

		payload, err := d.parser.TCPPayload(frame, LayerTypeRawIP)
		if err != nil || len(payload) == 0 {
			continue
		}
		handler(Segment{Payload: payload, Timestamp: time.Now()})
	}
}
