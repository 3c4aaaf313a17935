// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package coremgr

import (
	"fmt"
	"time"

	"github.com/lf-edge/coremgr/worker"
)

const (
	// workOnline and workOffline select the executor task for a work item
	workOnline  = "bringCoreOnline"
	workOffline = "takeCoreOffline"

	// Fixed keys serialize the two tasks: a request arriving while the
	// previous one of the same kind is still in flight is dropped and
	// left for drift detection to reconcile.
	onlineWorkKey  = "online"
	offlineWorkKey = "offline"

	// Keyed submission limits the queue to one job per kind
	transitionQueueLen = 2
)

// transitionWork is the executor's input: a snapshot of the online
// state the decision engine wants. The executor never touches the live
// core table.
type transitionWork struct {
	desired []bool
}

// transitionResult reports what one executor run actually did.
type transitionResult struct {
	onlined  []int
	offlined []int
	failed   map[int]string

	// remainingOnline and remainingCore are filled by the offline task
	// from a hardware scan after its transitions completed.
	remainingOnline int
	remainingCore   int
}

// transitionHandlers registers the two executor tasks with the worker.
// The request side runs in the worker goroutine against hardware only;
// the response side runs in the main goroutine and may touch the core
// table.
func transitionHandlers() map[string]worker.Handler {
	return map[string]worker.Handler{
		workOnline:  {Request: executeCoreOnline, Response: processOnlineResult},
		workOffline: {Request: executeCoreOffline, Response: processOfflineResult},
	}
}

// desiredMask snapshots the recorded online flags for the executor.
func (ctx *coremgrContext) desiredMask() []bool {
	desired := make([]bool, ctx.coreCount)
	for core := 0; core < ctx.coreCount; core++ {
		desired[core] = ctx.coreStates[core].online
	}
	return desired
}

// requestOnline hands the desired topology to the bring-online task.
func (ctx *coremgrContext) requestOnline() {
	ctx.metrics.UpRequested++
	done, err := ctx.worker.TrySubmit(worker.Work{
		Key:         onlineWorkKey,
		Kind:        workOnline,
		Description: transitionWork{desired: ctx.desiredMask()},
	})
	if err != nil {
		log.Functionf("Online request already in flight: %v", err)
	} else if !done {
		log.Warnf("Transition queue full, dropping online request")
	}
}

// requestOffline hands the desired topology to the take-offline task.
func (ctx *coremgrContext) requestOffline() {
	ctx.metrics.DownRequested++
	done, err := ctx.worker.TrySubmit(worker.Work{
		Key:         offlineWorkKey,
		Kind:        workOffline,
		Description: transitionWork{desired: ctx.desiredMask()},
	})
	if err != nil {
		log.Functionf("Offline request already in flight: %v", err)
	} else if !done {
		log.Warnf("Transition queue full, dropping offline request")
	}
}

// executeCoreOnline scans for cores that are desired online but offline
// in hardware and brings them up one by one. Runs in the worker
// goroutine so a slow hardware transition never delays a tick.
func executeCoreOnline(ctxArg interface{}, w worker.Work) worker.WorkResult {
	ctx := ctxArg.(*coremgrContext)
	work := w.Description.(transitionWork)
	result := transitionResult{
		failed:        make(map[int]string),
		remainingCore: noCore,
	}

	mask, err := ctx.cpus.OnlineMask()
	if err != nil {
		return worker.WorkResult{
			Key:         w.Key,
			Error:       err,
			ErrorTime:   time.Now(),
			Description: result,
		}
	}
	for core := 0; core < len(work.desired) && core < len(mask); core++ {
		if !work.desired[core] || mask[core] {
			continue
		}
		if err := ctx.cpus.SetCoreOnline(core, true); err != nil {
			log.Errorf("Onlining core %d failed: %v", core, err)
			result.failed[core] = err.Error()
			continue
		}
		log.Noticef("Core %d brought online", core)
		result.onlined = append(result.onlined, core)
	}

	res := worker.WorkResult{Key: w.Key, Description: result}
	if len(result.failed) > 0 {
		res.Error = fmt.Errorf("failed to online %d core(s)", len(result.failed))
		res.ErrorTime = time.Now()
	}
	return res
}

// executeCoreOffline scans for cores above index 0 that are desired
// offline but online in hardware and takes them down one by one, then
// rescans so the response handler can re-arm the last remaining core.
func executeCoreOffline(ctxArg interface{}, w worker.Work) worker.WorkResult {
	ctx := ctxArg.(*coremgrContext)
	work := w.Description.(transitionWork)
	result := transitionResult{
		failed:        make(map[int]string),
		remainingCore: noCore,
	}

	mask, err := ctx.cpus.OnlineMask()
	if err != nil {
		return worker.WorkResult{
			Key:         w.Key,
			Error:       err,
			ErrorTime:   time.Now(),
			Description: result,
		}
	}
	for core := 1; core < len(work.desired) && core < len(mask); core++ {
		if work.desired[core] || !mask[core] {
			continue
		}
		if err := ctx.cpus.SetCoreOnline(core, false); err != nil {
			log.Errorf("Offlining core %d failed: %v", core, err)
			result.failed[core] = err.Error()
			continue
		}
		log.Noticef("Core %d taken offline", core)
		result.offlined = append(result.offlined, core)
	}

	mask, err = ctx.cpus.OnlineMask()
	if err != nil {
		log.Warnf("executeCoreOffline rescan: %v", err)
	} else {
		for core, online := range mask {
			if online {
				result.remainingOnline++
				result.remainingCore = core
			}
		}
	}

	res := worker.WorkResult{Key: w.Key, Description: result}
	if len(result.failed) > 0 {
		res.Error = fmt.Errorf("failed to offline %d core(s)", len(result.failed))
		res.ErrorTime = time.Now()
	}
	return res
}

// processOnlineResult records what the bring-online task did: error
// state per core and the success and failure counters. Runs in the
// main goroutine.
func processOnlineResult(ctxArg interface{}, res worker.WorkResult) error {
	ctx := ctxArg.(*coremgrContext)
	result, ok := res.Description.(transitionResult)
	if !ok {
		return fmt.Errorf("processOnlineResult: unexpected description %T",
			res.Description)
	}
	for _, core := range result.onlined {
		ctx.metrics.UpSucceeded++
		state := &ctx.coreStates[core]
		state.errStr = ""
		state.errTime = time.Time{}
		ctx.publishCoreStatus(core)
	}
	for core, errStr := range result.failed {
		ctx.metrics.UpFailed++
		state := &ctx.coreStates[core]
		state.errStr = errStr
		state.errTime = res.ErrorTime
		ctx.publishCoreStatus(core)
	}
	if res.Error != nil {
		log.Warnf("Online request finished with errors: %v", res.Error)
	}
	return nil
}

// processOfflineResult records what the take-offline task did. A core
// that actually went offline releases its trigger core for future up
// evaluations, and when only one core is left online that core gets
// re-armed as well. Runs in the main goroutine.
func processOfflineResult(ctxArg interface{}, res worker.WorkResult) error {
	ctx := ctxArg.(*coremgrContext)
	result, ok := res.Description.(transitionResult)
	if !ok {
		return fmt.Errorf("processOfflineResult: unexpected description %T",
			res.Description)
	}
	for _, core := range result.offlined {
		ctx.metrics.DownSucceeded++
		state := &ctx.coreStates[core]
		state.errStr = ""
		state.errTime = time.Time{}
		if state.broughtUpBy != noCore {
			trigger := state.broughtUpBy
			state.broughtUpBy = noCore
			if trigger >= 0 && trigger < ctx.coreCount &&
				!ctx.coreStates[trigger].upEligible {
				ctx.coreStates[trigger].upEligible = true
				ctx.publishCoreStatus(trigger)
			}
		}
		ctx.publishCoreStatus(core)
	}
	for core, errStr := range result.failed {
		ctx.metrics.DownFailed++
		state := &ctx.coreStates[core]
		state.errStr = errStr
		state.errTime = res.ErrorTime
		ctx.publishCoreStatus(core)
	}
	if ctx.enabled && result.remainingOnline == 1 && result.remainingCore != noCore {
		state := &ctx.coreStates[result.remainingCore]
		if !state.upEligible {
			state.upEligible = true
			ctx.publishCoreStatus(result.remainingCore)
		}
	}
	if res.Error != nil {
		log.Warnf("Offline request finished with errors: %v", res.Error)
	}
	return nil
}
