// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

//go:build windows

package interdict

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// WinDivert constants, see windivert.h
const (
	divertLayerNetwork = 0
	divertFlagSniff    = 0x0001
	divertFlagDrop     = 0x0002

	divertPriority int16 = -1000
)

// DivertDriver opens filters through WinDivert. The DLL is loaded on the
// first Open.
type DivertDriver struct {
	dll       *windows.LazyDLL
	procOpen  *windows.LazyProc
	procClose *windows.LazyProc
}

var _ FilterDriver = &DivertDriver{}

// NewDivertDriver binds WinDivertOpen and WinDivertClose from dllPath.
func NewDivertDriver(dllPath string) *DivertDriver {
	dll := windows.NewLazyDLL(dllPath)
	return &DivertDriver{
		dll:       dll,
		procOpen:  dll.NewProc("WinDivertOpen"),
		procClose: dll.NewProc("WinDivertClose"),
	}
}

// Open starts a network layer session that sniffs and drops every packet
// matching expression.
func (d *DivertDriver) Open(expression string) (Filter, error) {
	if err := d.procOpen.Find(); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", d.dll.Name)
	}
	if err := d.procClose.Find(); err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", d.dll.Name)
	}

	filter, err := windows.BytePtrFromString(expression)
	if err != nil {
		return nil, errors.Wrap(err, "invalid filter expression")
	}
	priority := divertPriority
	r1, _, callErr := d.procOpen.Call(
		uintptr(unsafe.Pointer(filter)),
		uintptr(divertLayerNetwork),
		uintptr(priority),
		uintptr(divertFlagSniff|divertFlagDrop),
	)
	h := windows.Handle(r1)
	if h == windows.InvalidHandle {
		return nil, errors.Wrap(callErr, "WinDivertOpen failed, is the process elevated?")
	}
	return &divertHandle{handle: h, procClose: d.procClose}, nil
}

type divertHandle struct {
	handle    windows.Handle
	procClose *windows.LazyProc
	once      sync.Once
}

func (h *divertHandle) Close() error {
	var err error
	h.once.Do(func() {
		ok, _, callErr := h.procClose.Call(uintptr(h.handle))
		if ok == 0 {
			err = errors.Wrap(callErr, "WinDivertClose failed")
		}
	})
	return err
}
