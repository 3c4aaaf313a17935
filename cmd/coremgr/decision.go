// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package coremgr

import (
	"time"

	"github.com/lf-edge/coremgr/flextimer"
)

// noCore marks core index fields that reference no core.
const noCore = -1

// coreState is the controller's record of one core. The whole table is
// owned by the main goroutine; the transition executor only receives
// copies of the fields it needs.
type coreState struct {
	// prevWallUs and prevIdleUs hold the cumulative counters from the
	// previous tick so the current tick can derive an interval load.
	prevWallUs uint64
	prevIdleUs uint64

	// online is the controller's view of the core. It can lag hardware
	// truth while a transition is in flight or when an external actor
	// hotplugs a core; the next tick detects the mismatch and resyncs.
	online bool

	// upEligible is cleared when this core's load triggers bringing
	// another core online and restored once that core goes back
	// offline, so one hot core does not re-trigger every up cycle.
	upEligible bool

	// broughtUpBy is the index of the core whose load brought this one
	// online, noCore otherwise.
	broughtUpBy int

	lastLoadPct int // -1 when the last sample was not usable
	lastFreqKHz uint32
	lastChange  time.Time

	errStr  string
	errTime time.Time
}

// enable transitions the controller from Disabled to Running: reseed
// the core table from hardware truth, start the run queue sampler and
// schedule the first tick.
func (ctx *coremgrContext) enable() {
	if ctx.enabled {
		return
	}
	log.Noticef("Enabling hotplug: %d cores present, max %d online",
		ctx.coreCount, ctx.maxOnline)
	ctx.tickCounter = 0
	ctx.seedCoreStates()
	ctx.sampler.Start()
	interval := time.Duration(ctx.samplingUs) * time.Microsecond
	ctx.tickTimer = flextimer.NewRangeTicker(interval, interval)
	ctx.enabled = true
	ctx.metrics.Enabled = true
	ctx.publishAllCoreStatus()
	ctx.publishMetrics()
}

// disable transitions Running to Disabled: cancel the pending tick,
// stop the sampler, drain in-flight transitions and then take every
// core except core 0 offline, best effort. No transition is still in
// flight once disable returns.
func (ctx *coremgrContext) disable() {
	if !ctx.enabled {
		return
	}
	log.Noticef("Disabling hotplug")
	ctx.tickTimer.StopTicker()
	ctx.tickTimer = flextimer.FlexTickerHandle{}
	ctx.sampler.Stop()
	ctx.drainWorker()

	mask, err := ctx.cpus.OnlineMask()
	if err != nil {
		log.Errorf("disable: %v", err)
		mask = nil
	}
	for core := 1; core < ctx.coreCount; core++ {
		if mask != nil && !mask[core] {
			continue
		}
		ctx.metrics.DownRequested++
		if err := ctx.cpus.SetCoreOnline(core, false); err != nil {
			log.Warnf("Offlining core %d on disable failed: %v", core, err)
			ctx.metrics.DownFailed++
			continue
		}
		ctx.metrics.DownSucceeded++
	}

	mask, err = ctx.cpus.OnlineMask()
	if err != nil {
		log.Errorf("disable: %v", err)
		mask = make([]bool, ctx.coreCount)
		mask[0] = true
	}
	ctx.resetCoreStates(mask, time.Now())
	ctx.enabled = false
	ctx.metrics.Enabled = false
	ctx.publishAllCoreStatus()
	ctx.publishMetrics()
}

// drainWorker processes transition results until none are pending.
func (ctx *coremgrContext) drainWorker() {
	for ctx.worker.NumPending() > 0 {
		res := <-ctx.worker.MsgChan()
		if err := res.Process(ctx, true); err != nil {
			log.Errorf("drainWorker: %v", err)
		}
	}
}

// seedCoreStates reseeds the core table from current hardware truth.
func (ctx *coremgrContext) seedCoreStates() {
	mask, err := ctx.cpus.OnlineMask()
	if err != nil {
		log.Errorf("seedCoreStates: %v", err)
		mask = make([]bool, ctx.coreCount)
		mask[0] = true
	}
	ctx.resetCoreStates(mask, time.Now())
}

// resetCoreStates rewrites every core record from the given online
// mask: eligibility re-armed, trigger references dropped and busy/idle
// baselines taken from a fresh accounting read, so the next tick
// computes loads against current counters rather than stale ones.
func (ctx *coremgrContext) resetCoreStates(mask []bool, now time.Time) {
	for core := 0; core < ctx.coreCount; core++ {
		state := &ctx.coreStates[core]
		if state.online != mask[core] {
			state.lastChange = now
		}
		state.online = mask[core]
		state.upEligible = true
		state.broughtUpBy = noCore
		state.lastLoadPct = -1
		state.lastFreqKHz = 0
		state.errStr = ""
		state.errTime = time.Time{}

		busyUs, wallUs, err := ctx.cpus.ReadBusyIdle(core)
		if err != nil {
			log.Tracef("resetCoreStates: core %d: %v", core, err)
			busyUs, wallUs = 0, 0
		}
		state.prevWallUs = wallUs
		state.prevIdleUs = wallUs - busyUs
	}
}

// recordedOnlineCount counts cores the controller believes are online.
func (ctx *coremgrContext) recordedOnlineCount() int {
	count := 0
	for core := 0; core < ctx.coreCount; core++ {
		if ctx.coreStates[core].online {
			count++
		}
	}
	return count
}

func (ctx *coremgrContext) handleTick() {
	if !ctx.enabled {
		return
	}
	ctx.tick(time.Now())
}

// tick runs one pass of the decision engine: refresh per core load and
// frequency, detect topology drift, evaluate the up and down threshold
// rows for the current online count and hand at most one online and at
// most one offline request to the transition executor.
func (ctx *coremgrContext) tick(now time.Time) {
	ctx.tickCounter++
	ctx.metrics.TickCount++
	checkUp := ctx.tickCounter%ctx.upRate == 0
	checkDown := ctx.tickCounter%ctx.downRate == 0

	rqAvg := ctx.sampler.ReadAndReset()
	ctx.metrics.LastRQAvg = rqAvg

	mask, err := ctx.cpus.OnlineMask()
	if err != nil {
		// Leave evaluation to the next tick, which is already
		// scheduled by the range ticker.
		log.Errorf("tick: %v", err)
		ctx.wrapTickCounter()
		return
	}

	// A core whose recorded state disagrees with hardware was hotplugged
	// behind the controller's back, either by an external actor or by
	// our own executor not having caught up yet. Loads computed against
	// the stored baselines are meaningless then, so skip evaluation and
	// resynchronize instead.
	for core := 0; core < ctx.coreCount; core++ {
		if ctx.coreStates[core].online != mask[core] {
			ctx.metrics.DriftResyncs++
			log.Noticef("Core %d is online=%t behind the controller's back, resyncing",
				core, mask[core])
			ctx.resetCoreStates(mask, now)
			ctx.wrapTickCounter()
			ctx.publishAllCoreStatus()
			return
		}
	}

	onlineCount := ctx.recordedOnlineCount()
	downFloor := ctx.maxOnline - 1
	if ctx.maxOnline == ctx.coreCount {
		downFloor = 0
	}

	upTrigger := noCore
	downSelected := noCore
	statusDirty := false

	for core := 0; core < ctx.coreCount; core++ {
		state := &ctx.coreStates[core]

		var wallDelta, idleDelta uint64
		haveSample := false
		busyUs, wallUs, err := ctx.cpus.ReadBusyIdle(core)
		if err != nil {
			if state.online {
				log.Functionf("tick: core %d busy/idle: %v", core, err)
			}
			state.prevWallUs = 0
			state.prevIdleUs = 0
		} else {
			idleUs := wallUs - busyUs
			// Counters can restart when a core comes back online. A
			// sample against a baseline from before the restart is
			// unusable; the stored values still become the new baseline.
			if wallUs >= state.prevWallUs && idleUs >= state.prevIdleUs {
				wallDelta = wallUs - state.prevWallUs
				idleDelta = idleUs - state.prevIdleUs
				haveSample = true
			}
			state.prevWallUs = wallUs
			state.prevIdleUs = idleUs
		}

		load := -1
		var freqKHz uint32
		if state.online && haveSample && wallDelta >= idleDelta {
			if wallDelta > idleDelta {
				load = int(100 * (wallDelta - idleDelta) / wallDelta)
			} else {
				load = 0
			}
			freqKHz, err = ctx.cpus.ReadFreqKHz(core, ctx.accurateFreq)
			if err != nil {
				log.Functionf("tick: core %d frequency: %v", core, err)
				load = -1
				freqKHz = 0
			}
		}
		state.lastLoadPct = load
		state.lastFreqKHz = freqKHz

		if checkUp && upTrigger == noCore && core < ctx.maxOnline-1 &&
			state.online && state.upEligible && load >= 0 {
			if row, ok := ctx.matrix.UpRow(onlineCount); ok &&
				load >= int(row.Load) && freqKHz >= row.Freq &&
				rqAvg > row.RQ {
				state.upEligible = false
				upTrigger = core
				statusDirty = true
			}
		}

		if checkDown && downSelected == noCore && core > downFloor &&
			state.online && load >= 0 {
			if row, ok := ctx.matrix.DownRow(onlineCount); ok &&
				((onlineCount > 1 && load < int(row.Load)) ||
					(freqKHz <= row.Freq && rqAvg <= row.RQ)) {
				// Flip the recorded state right away so the remaining
				// cores in this pass evaluate against the new count.
				downSelected = core
				state.online = false
				state.lastChange = now
				onlineCount--
				statusDirty = true
			}
		}
	}

	if upTrigger != noCore {
		target := noCore
		for core := 0; core < ctx.coreCount; core++ {
			if !ctx.coreStates[core].online {
				target = core
				break
			}
		}
		if target != noCore && onlineCount < ctx.maxOnline {
			state := &ctx.coreStates[target]
			state.online = true
			state.broughtUpBy = upTrigger
			state.lastChange = now
			onlineCount++
		} else {
			// No room to grow after all. Re-arm the trigger core so it
			// is reconsidered once a slot opens up.
			target = noCore
			ctx.coreStates[upTrigger].upEligible = true
		}
		if target != noCore {
			ctx.requestOnline()
		}
	}
	if downSelected != noCore {
		ctx.requestOffline()
	}

	ctx.wrapTickCounter()

	// With a single core left online nothing else can ever become the
	// up trigger, so that core must always be reconsidered.
	if onlineCount <= 1 {
		for core := 0; core < ctx.coreCount; core++ {
			state := &ctx.coreStates[core]
			if state.online && !state.upEligible {
				state.upEligible = true
				statusDirty = true
			}
		}
	}

	if statusDirty {
		ctx.publishAllCoreStatus()
	}
}

// wrapTickCounter restarts the tick counter once both the up and the
// down cycle have completed.
func (ctx *coremgrContext) wrapTickCounter() {
	limit := ctx.upRate
	if ctx.downRate > limit {
		limit = ctx.downRate
	}
	if ctx.tickCounter >= limit {
		ctx.tickCounter = 0
	}
}
