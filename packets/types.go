// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package packets

//go:generate mockgen -source=types.go -destination=mock_source.go -package=packets

import "time"

// Segment is the application payload of one captured TCP packet.
// The payload slice is owned by the receiver and must not be modified.
type Segment struct {
	Payload   []byte
	Timestamp time.Time
}

// PacketHandler receives segments in capture order, from the source's
// delivery goroutine.
type PacketHandler func(Segment)

// Source is an asynchronous packet source. A Source is opened by its
// constructor, configured with SetFilter and OnPacket, and then started.
// Stop may be called at any point, including before Start, and Close
// releases the underlying device after stopping delivery.
type Source interface {
	// SetFilter installs a textual capture filter (e.g. "tcp").
	SetFilter(expr string) error
	// OnPacket registers the callback invoked for every TCP segment that
	// carries a payload. It must be called before Start.
	OnPacket(handler PacketHandler)
	// Start launches the delivery goroutine.
	Start() error
	// Stop halts delivery and waits for the delivery goroutine to return.
	Stop() error
	// Close stops delivery if needed and releases the device.
	Close() error
	// Done is closed once the delivery goroutine has returned, either
	// because of Stop, because the source ran dry (offline replay) or
	// because reading failed.
	Done() <-chan struct{}
	// Err returns the read error that ended delivery. It is nil while
	// delivering, after Stop and after a clean end of input.
	Err() error
}
