// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"strings"
	"sync"
)

// MemoryDriver is an in-memory pubsub driver for writing tests for
// components that use pubsub: no file system, no sockets. A subscriber
// activated after a publish still receives the current state, followed
// by any later changes.
//
// Limitation: only one subscriber is supported per publication name; a
// second subscriber to the same name replaces the first.
//
// This driver should not be used in production code.
type MemoryDriver struct {
	sync.Mutex
	status      map[string][]byte         // name|key -> encoded item
	subscribers map[string]*memSubscriber // name -> registered subscriber
}

type memSubscriber struct {
	queue chan Change // buffered, fed by publishers
	C     chan Change // the subscription's channel
}

// NewMemoryDriver to create a MemoryDriver and properly initialize it
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		status:      make(map[string][]byte),
		subscribers: make(map[string]*memSubscriber),
	}
}

const memSeparator = "|"

func composeStatusKey(name, key string) string {
	return name + memSeparator + key
}

func decomposeStatusKey(statusKey string) (string, string) {
	before, after, _ := strings.Cut(statusKey, memSeparator)
	return before, after
}

// Publisher function
func (m *MemoryDriver) Publisher(global bool, name, topic string, persistent bool) (DriverPublisher, error) {
	return &MemoryDriverPublisher{name: name, driver: m}, nil
}

// Subscriber function
func (m *MemoryDriver) Subscriber(global bool, name, topic string, persistent bool, C chan Change) (DriverSubscriber, error) {
	sub := &memSubscriber{
		queue: make(chan Change, 100),
		C:     C,
	}
	m.Lock()
	m.subscribers[name] = sub
	m.Unlock()
	return &MemoryDriverSubscriber{name: name, driver: m, sub: sub}, nil
}

// DefaultName function
func (m *MemoryDriver) DefaultName() string {
	return "memory"
}

func (m *MemoryDriver) notify(name string, change Change) {
	m.Lock()
	sub, ok := m.subscribers[name]
	m.Unlock()
	if !ok {
		return
	}
	select {
	case sub.queue <- change:
	default:
		// queue full, the test is not draining its subscription
	}
}

// MemoryDriverPublisher struct
type MemoryDriverPublisher struct {
	name   string
	driver *MemoryDriver
}

// Start function
func (e *MemoryDriverPublisher) Start() error {
	return nil
}

// Load function
func (e *MemoryDriverPublisher) Load() (map[string][]byte, bool, error) {
	res := make(map[string][]byte)
	e.driver.Lock()
	defer e.driver.Unlock()
	for statusKey, value := range e.driver.status {
		name, key := decomposeStatusKey(statusKey)
		if name != e.name {
			continue
		}
		res[key] = value
	}
	return res, false, nil
}

// Publish function
func (e *MemoryDriverPublisher) Publish(key string, item []byte) error {
	e.driver.Lock()
	e.driver.status[composeStatusKey(e.name, key)] = item
	e.driver.Unlock()
	e.driver.notify(e.name, Change{Operation: Modify, Key: key, Value: item})
	return nil
}

// Unpublish function
func (e *MemoryDriverPublisher) Unpublish(key string) error {
	e.driver.Lock()
	delete(e.driver.status, composeStatusKey(e.name, key))
	e.driver.Unlock()
	e.driver.notify(e.name, Change{Operation: Delete, Key: key})
	return nil
}

// Restart function
func (e *MemoryDriverPublisher) Restart(restarted bool) error {
	return nil
}

// MemoryDriverSubscriber struct
type MemoryDriverSubscriber struct {
	name   string
	driver *MemoryDriver
	sub    *memSubscriber
	once   sync.Once
}

// Start queues the current state for this name and then forwards it,
// and every later change, to the subscription channel.
func (e *MemoryDriverSubscriber) Start() error {
	e.once.Do(func() {
		e.driver.Lock()
		for statusKey, value := range e.driver.status {
			name, key := decomposeStatusKey(statusKey)
			if name != e.name {
				continue
			}
			select {
			case e.sub.queue <- Change{Operation: Modify, Key: key, Value: value}:
			default:
			}
		}
		e.driver.Unlock()

		go func() {
			for change := range e.sub.queue {
				e.sub.C <- change
			}
		}()
	})
	return nil
}
