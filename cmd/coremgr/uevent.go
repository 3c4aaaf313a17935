// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0
package coremgr

import (
	"errors"
	"io"
	"regexp"
	"sync/atomic"

	"github.com/eshard/uevent"
)

// cpuDevpathRE matches the kernel devpath of a single CPU device.
var cpuDevpathRE = regexp.MustCompile(`^/devices/system/cpu/cpu[0-9]+$`)

type ueventListener struct {
	isCancelled  atomic.Bool
	ueventReader io.ReadCloser
	ctx          *coremgrContext
}

// listenTopologyEvents watches the kernel uevent stream for cores going
// on or off line, so an external hotplug advances the next tick instead
// of waiting out the sampling period.
func (ctx *coremgrContext) listenTopologyEvents() {
	ul := ueventListener{ctx: ctx}
	ul.isCancelled.Store(false)
	ctx.listenStopChan = make(chan struct{})

	go ul.handleStop()

	go func() {
		retry := true
		for retry {
			retry = ul.readEvents()
		}
	}()
}

func (ul *ueventListener) handleStop() {
	// cancelling uevent reader
	<-ul.ctx.listenStopChan
	ul.isCancelled.Store(true)
	if ul.ueventReader != nil {
		ul.ueventReader.Close()
	}
}

func (ul *ueventListener) readEvents() bool {
	var err error
	ul.ueventReader, err = uevent.NewReader()
	if err != nil {
		log.Warnf("Opening uevent reader failed: %v - retrying", err)
		return true
	}

	defer ul.ueventReader.Close()

	dec := uevent.NewDecoder(ul.ueventReader)

	for {
		evt, err := dec.Decode()
		if errors.Is(err, io.EOF) && ul.isCancelled.Load() {
			break
		} else if err != nil {
			log.Warnf("decoding uevent failed: %+v - retrying", err)
			return true
		}

		if !isCPUHotplugEvent(evt.Action, evt.Devpath) {
			continue
		}

		log.Functionf("CPU hotplug uevent: %s %s", evt.Action, evt.Devpath)
		select {
		case ul.ctx.topologyChan <- struct{}{}:
		default:
			// an earlier notification is still unconsumed
		}
	}
	return false
}

// isCPUHotplugEvent reports whether a uevent is a core going on or off
// line. Boot time add/remove events for the cpu subsystem do not count.
func isCPUHotplugEvent(action, devpath string) bool {
	if action != "online" && action != "offline" {
		return false
	}
	return cpuDevpathRE.MatchString(devpath)
}
