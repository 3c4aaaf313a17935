// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package coremgr

import (
	"sync"
	"time"

	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/cpus"
)

// rqSamplePeriod is the fixed cadence of the run queue sampler. It is
// independent of the controller tick period; the sampler accumulates
// between ticks and the decision loop drains it once per tick.
const rqSamplePeriod = 10 * time.Millisecond

// rqAvg maintains a time weighted moving average of the system-wide
// runnable task count, scaled by 100. Sampling runs on its own
// goroutine while the controller is enabled.
type rqAvg struct {
	log  *base.LogObject
	cpus cpus.CPUControl

	sync.Mutex
	avg        uint32 // runnable count times 100
	lastSample time.Time
	totalMs    uint64

	samplePeriod time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

func newRQAvg(log *base.LogObject, cpuCtrl cpus.CPUControl) *rqAvg {
	return &rqAvg{
		log:          log,
		cpus:         cpuCtrl,
		samplePeriod: rqSamplePeriod,
	}
}

// Start zeroes the accumulators and launches the sampling goroutine.
func (r *rqAvg) Start() {
	r.Lock()
	r.avg = 0
	r.totalMs = 0
	r.lastSample = time.Now()
	r.Unlock()

	r.stopChan = make(chan struct{})
	r.doneChan = make(chan struct{})
	go r.run()
}

// Stop terminates the sampling goroutine and waits for it to exit.
// Safe to call when the sampler was never started.
func (r *rqAvg) Stop() {
	if r.stopChan == nil {
		return
	}
	close(r.stopChan)
	<-r.doneChan
	r.stopChan = nil
	r.doneChan = nil
}

func (r *rqAvg) run() {
	defer close(r.doneChan)
	ticker := time.NewTicker(r.samplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sample(time.Now())
		case <-r.stopChan:
			return
		}
	}
}

// sample folds the instantaneous runnable count into the running
// average, weighted by the milliseconds elapsed since the previous
// sample. The accumulated weight restarts whenever the average was
// drained back to zero, so each drain interval is averaged on its own.
func (r *rqAvg) sample(now time.Time) {
	runnable, err := r.cpus.ReadRunnable()
	if err != nil {
		r.log.Functionf("rqAvg sample: %v", err)
		return
	}

	r.Lock()
	defer r.Unlock()

	deltaMs := uint64(now.Sub(r.lastSample) / time.Millisecond)
	r.lastSample = now
	if deltaMs == 0 {
		return
	}
	if r.avg == 0 {
		r.totalMs = 0
	}
	instant := uint64(runnable) * 100
	newAvg := (instant*deltaMs + uint64(r.avg)*r.totalMs) /
		(r.totalMs + deltaMs)
	r.avg = base.ClampToUint32(newAvg)
	r.totalMs += deltaMs
}

// ReadAndReset returns the accumulated average and zeroes it, so the
// next read only sees pressure that arrived after this one.
func (r *rqAvg) ReadAndReset() uint32 {
	r.Lock()
	defer r.Unlock()
	avg := r.avg
	r.avg = 0
	return avg
}
