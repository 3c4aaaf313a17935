// Copyright (c) 2018 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Provide randomized range timers whose parameters can be replaced at
// runtime without tearing down the consumer's select loop.
// Usage:
//  ticker := NewRangeTicker(min, max)
//  select ticker.C
//  ticker.UpdateRangeTicker(newmin, newmax)
//  ticker.StopTicker()
// Equal min and max give a fixed-period ticker; an update replaces the
// pending timer immediately, without looking at when it would have fired.

package flextimer

import (
	"math/rand"
	"time"
)

// FlexTickerHandle is the ticker handle for the caller.
// When config is all zeros, the ticker stops and closes the channel.
type FlexTickerHandle struct {
	C           <-chan time.Time
	privateChan chan<- time.Time
	configChan  chan<- flexTickerConfig
}

// Arguments fed over configChan
type flexTickerConfig struct {
	minTime time.Duration
	maxTime time.Duration
}

// NewRangeTicker returns a ticker firing at a random point in
// [minTime, maxTime] after the previous fire. minTime == maxTime is a
// fixed period.
func NewRangeTicker(minTime time.Duration, maxTime time.Duration) FlexTickerHandle {
	initialConfig := flexTickerConfig{minTime: minTime,
		maxTime: maxTime}
	configChan := make(chan flexTickerConfig, 1)
	tickChan := newFlexTicker(configChan)
	configChan <- initialConfig
	return FlexTickerHandle{C: tickChan, privateChan: tickChan, configChan: configChan}
}

// UpdateRangeTicker replaces the ticker parameters. The pending timer is
// dropped and a new one armed from now, so a shorter period takes effect
// before the previously scheduled fire.
func (f FlexTickerHandle) UpdateRangeTicker(minTime time.Duration, maxTime time.Duration) {
	config := flexTickerConfig{minTime: minTime,
		maxTime: maxTime}
	f.configChan <- config
}

// TickNow inserts a tick now in addition to running timers
func (f FlexTickerHandle) TickNow() {
	// There is a case when flextimer thread queues next tick, but main
	// thread of service is doing something else and as part of what the
	// main service does at that point, calls flextimer.TickNow().
	// In such a case main service thread will get blocked and never gets
	// un-blocked (since privateChan only has one tick slot).
	//
	// Is there a better solution than trying to send on privateChannel
	// in a non-blocking fashion using select? Can this cause issues?
	select {
	case f.privateChan <- time.Now():
	default:
	}
}

// StopTicker stops the ticker and closes its channel.
func (f FlexTickerHandle) StopTicker() {
	f.configChan <- flexTickerConfig{}
}

// Implementation functions

func newFlexTicker(config <-chan flexTickerConfig) chan time.Time {
	tick := make(chan time.Time, 1)
	go flexTicker(config, tick)
	return tick
}

func flexTicker(config <-chan flexTickerConfig, tick chan<- time.Time) {
	s1 := rand.NewSource(time.Now().UnixNano())
	r1 := rand.New(s1)
	// Wait for initial config
	c := <-config
	for {
		var d time.Duration
		if c.maxTime == c.minTime {
			d = c.minTime
		} else {
			r := r1.Int63n(int64(c.maxTime-c.minTime)) + int64(c.minTime)
			d = time.Duration(r)
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			// this channel can not block, otherwise the config channel
			// would block too. Only one queued tick can be pending; a
			// second fire while the consumer is busy is dropped, which
			// is fine since the consumer has not served the first yet.
			select {
			case tick <- time.Now():
			default:
			}
		case c = <-config:
			// Replace current parameters without
			// looking at when current timer would fire
			timer.Stop()
			if c.maxTime == 0 && c.minTime == 0 {
				close(tick)
				return
			}
		}
	}
}
