//go:build windows
// +build windows

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Windows IOCP implementation.
package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

// fdCallbackEntry stores both the callback and original fd for key mapping.
type fdCallbackEntry struct {
	fd uintptr
	cb FDCallback
}

// iocpReactor implements Reactor using Windows IOCP.
type iocpReactor struct {
	iocp       windows.Handle
	callbacks  sync.Map // map[uint32]*fdCallbackEntry
	keyCounter uint32   // atomic for completion key generation
}

// NewReactor creates and returns a new IOCP-backed Reactor.
func NewReactor() (Reactor, error) {
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("iocp create: %w", err)
	}
	return &iocpReactor{iocp: iocp}, nil
}

func (r *iocpReactor) Register(fd uintptr, events FDEventType, cb FDCallback) error {
	// Windows expects ULONG_PTR as completion key; golang.org/x/sys surfaces
	// it as uint32, so a monotonic key is used in place of fd.
	key := atomic.AddUint32(&r.keyCounter, 1)
	handle := windows.Handle(fd)
	_, err := windows.CreateIoCompletionPort(handle, r.iocp, uintptr(key), 0)
	if err != nil {
		return fmt.Errorf("iocp associate: %w", err)
	}
	r.callbacks.Store(key, &fdCallbackEntry{fd: fd, cb: cb})
	return nil
}

// Modify is a no-op on IOCP: readiness there is driven by overlapped I/O
// completions, not by an interest bitmask, so there is nothing to flip.
func (r *iocpReactor) Modify(fd uintptr, events FDEventType) error {
	return nil
}

func (r *iocpReactor) Unregister(fd uintptr) error {
	var keyToDelete any
	r.callbacks.Range(func(k, v any) bool {
		entry, _ := v.(*fdCallbackEntry)
		if entry != nil && entry.fd == fd {
			keyToDelete = k
			return false
		}
		return true
	})
	if keyToDelete != nil {
		r.callbacks.Delete(keyToDelete)
	}
	return nil
}

// Poll waits for a single completion up to timeoutMs and dispatches it.
func (r *iocpReactor) Poll(timeoutMs int) (int, error) {
	var bytes uint32
	var key uint32
	var overlapped *windows.Overlapped
	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}

	err := windows.GetQueuedCompletionStatus(r.iocp, &bytes, &key, &overlapped, timeout)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return 0, nil
		}
		return 0, fmt.Errorf("iocp wait: %w", err)
	}

	val, ok := r.callbacks.Load(key)
	if !ok {
		return 0, nil
	}
	entry, _ := val.(*fdCallbackEntry)
	func() {
		defer func() { _ = recover() }()
		entry.cb(entry.fd, EventRead|EventWrite)
	}()
	return 1, nil
}

func (r *iocpReactor) Close() error {
	return windows.CloseHandle(r.iocp)
}
