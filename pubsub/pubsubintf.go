// Copyright (c) 2019 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// pubsub Interface.

package pubsub

// CallBackFunction is the callback function for Iterate. Return true to
// continue the iteration, false to stop it.
type CallBackFunction func(key string, item interface{}) bool

// Publication - Interface to be implemented by a Publication
type Publication interface {
	// Publish - Publish an object
	Publish(key string, item interface{}) error
	// Unpublish - Delete / UnPublish an object
	Unpublish(key string) error
	// SignalRestarted - the publisher has published its initial state
	SignalRestarted() error
	// ClearRestarted - clear the restarted indication
	ClearRestarted() error
	// Get - Lookup an object
	Get(key string) (interface{}, error)
	// GetAll - Get a copy of the objects.
	GetAll() map[string]interface{}
	// Iterate - performs a callback function on all items
	Iterate(function CallBackFunction)
}

// Subscription - Interface to be implemented by a Subscription
type Subscription interface {
	// MsgChan - Message Channel for the Subscription
	MsgChan() <-chan Change
	// Activate - start the subscription
	Activate() error
	// ProcessChange - process a change received on MsgChan
	ProcessChange(change Change)
	// Get - get / lookup an object by key
	Get(key string) (interface{}, error)
	// GetAll - Get a copy of the objects.
	GetAll() map[string]interface{}
	// Iterate - performs a callback function on all items
	Iterate(function CallBackFunction)
	// Restarted - Check if the Publisher has Restarted
	Restarted() bool
	// Synchronized - Check if the initial set of objects has been received
	Synchronized() bool
	// Topic returns the string definiting the topic
	Topic() string
}
