// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package coremgr

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/cpus"
	"github.com/lf-edge/coremgr/worker"
	"github.com/sirupsen/logrus"
)

// testMutex serializes the tests in this package since they reassign
// the package level log variables.
var testMutex sync.Mutex

type testContext struct {
	t    *testing.T
	mock *cpus.MockCPUControl
	ctx  *coremgrContext
}

// newTestContext builds a controller around a simulated topology,
// without timers or pubsub, so every tick is driven explicitly.
func newTestContext(t *testing.T, cores []cpus.MockCore) *testContext {
	t.Helper()
	logger = logrus.StandardLogger()
	log = base.NewSourceLogObject(logger, "coremgr_test", 0)

	mock := &cpus.MockCPUControl{}
	mock.SetCores(cores)

	ctx := newCoremgrContext(nil)
	ctx.cpus = mock
	ctx.testMode = true
	if err := ctx.initController(); err != nil {
		t.Fatalf("initController: %v", err)
	}
	ctx.worker = worker.NewWorker(log, ctx, transitionQueueLen,
		transitionHandlers())
	return &testContext{t: t, mock: mock, ctx: ctx}
}

// startEnabled marks the controller running without spawning the
// sampler or ticker goroutines.
func (tc *testContext) startEnabled() {
	tc.t.Helper()
	tc.ctx.seedCoreStates()
	tc.ctx.enabled = true
	tc.ctx.metrics.Enabled = true
}

// setRQ injects the run queue average the next tick will consume.
func (tc *testContext) setRQ(avg uint32) {
	tc.ctx.sampler.Lock()
	tc.ctx.sampler.avg = avg
	tc.ctx.sampler.Unlock()
}

func (tc *testContext) tickNow() {
	tc.t.Helper()
	tc.ctx.tick(time.Now())
}

// drain applies the results of all in-flight transitions, the way the
// main loop would.
func (tc *testContext) drain() {
	tc.t.Helper()
	for tc.ctx.worker.NumPending() > 0 {
		res := <-tc.ctx.worker.MsgChan()
		if err := res.Process(tc.ctx, true); err != nil {
			tc.t.Fatalf("transition result: %v", err)
		}
	}
}

// busy advances a core's counters by one interval at 90 percent load.
func (tc *testContext) busy(core int) {
	tc.mock.AdvanceCore(core, 900000, 1000000)
}

// idle advances a core's counters by one fully idle interval.
func (tc *testContext) idle(core int) {
	tc.mock.AdvanceCore(core, 0, 1000000)
}

func (tc *testContext) assertOnlineMask(want []bool) {
	tc.t.Helper()
	mask, err := tc.mock.OnlineMask()
	if err != nil {
		tc.t.Fatalf("OnlineMask: %v", err)
	}
	for core := range want {
		if mask[core] != want[core] {
			tc.t.Errorf("core %d: expected online=%t, got %t",
				core, want[core], mask[core])
		}
	}
}

func assertWrites(t *testing.T, got, want []cpus.CoreWrite) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d core writes, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

// fourCores is a topology with only the boot core online. Offline
// cores carry a frequency too; it is only read once they are online.
func fourCores() []cpus.MockCore {
	return []cpus.MockCore{
		{Online: true, FreqKHz: 1000000},
		{FreqKHz: 1000000},
		{FreqKHz: 1000000},
		{FreqKHz: 1000000},
	}
}

func TestLoadCycleBringsCoreUpAndDown(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())
	tc.startEnabled()
	tc.ctx.upRate = 2
	tc.ctx.downRate = 4

	// Tick 1 is off cadence, high load alone changes nothing
	tc.busy(0)
	tc.setRQ(500)
	tc.tickNow()
	if pending := tc.ctx.worker.NumPending(); pending != 0 {
		t.Fatalf("expected no transition off cadence, %d pending", pending)
	}
	if got := tc.ctx.coreStates[0].lastLoadPct; got != 90 {
		t.Errorf("expected core 0 load 90, got %d", got)
	}

	// Tick 2 is an up cycle: core 0 hot with a busy run queue
	tc.busy(0)
	tc.setRQ(500)
	tc.tickNow()
	tc.drain()
	tc.assertOnlineMask([]bool{true, true, false, false})
	if !tc.ctx.coreStates[1].online {
		t.Error("expected core 1 recorded online")
	}
	if got := tc.ctx.coreStates[1].broughtUpBy; got != 0 {
		t.Errorf("expected core 1 brought up by core 0, got %d", got)
	}
	if tc.ctx.coreStates[0].upEligible {
		t.Error("expected core 0 ineligible after triggering an up")
	}
	if tc.ctx.metrics.UpRequested != 1 || tc.ctx.metrics.UpSucceeded != 1 {
		t.Errorf("expected one successful up, got %+v", tc.ctx.metrics)
	}

	// Tick 3 is off cadence again
	tc.busy(0)
	tc.busy(1)
	tc.setRQ(500)
	tc.tickNow()
	tc.drain()

	// Tick 4 is a down cycle: everything cooled off
	tc.idle(0)
	tc.idle(1)
	tc.setRQ(50)
	tc.tickNow()
	tc.drain()
	tc.assertOnlineMask([]bool{true, false, false, false})
	if tc.ctx.coreStates[1].online {
		t.Error("expected core 1 recorded offline")
	}
	if got := tc.ctx.coreStates[1].broughtUpBy; got != noCore {
		t.Errorf("expected core 1 trigger reference cleared, got %d", got)
	}
	if !tc.ctx.coreStates[0].upEligible {
		t.Error("expected core 0 eligible again with one core left")
	}
	if tc.ctx.metrics.DownRequested != 1 || tc.ctx.metrics.DownSucceeded != 1 {
		t.Errorf("expected one successful down, got %+v", tc.ctx.metrics)
	}
	if tc.ctx.tickCounter != 0 {
		t.Errorf("expected tick counter wrapped, got %d", tc.ctx.tickCounter)
	}
	assertWrites(t, tc.mock.CoreWrites(), []cpus.CoreWrite{
		{Core: 1, Online: true},
		{Core: 1, Online: false},
	})
}

func TestAtMostOneCoreUpPerTick(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	cores[1].Online = true
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.upRate = 1
	tc.ctx.downRate = 40

	// Both online cores exceed every up threshold
	tc.busy(0)
	tc.busy(1)
	tc.setRQ(500)
	tc.tickNow()
	tc.drain()

	tc.assertOnlineMask([]bool{true, true, true, false})
	assertWrites(t, tc.mock.CoreWrites(), []cpus.CoreWrite{
		{Core: 2, Online: true},
	})
	if got := tc.ctx.coreStates[2].broughtUpBy; got != 0 {
		t.Errorf("expected the first hot core as trigger, got %d", got)
	}
	if tc.ctx.metrics.UpRequested != 1 {
		t.Errorf("expected one up request, got %d", tc.ctx.metrics.UpRequested)
	}
}

func TestAtMostOneCoreDownPerTick(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	for i := range cores {
		cores[i].Online = true
	}
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.upRate = 40
	tc.ctx.downRate = 1

	for core := 0; core < 4; core++ {
		tc.idle(core)
	}
	tc.setRQ(50)
	tc.tickNow()
	tc.drain()

	tc.assertOnlineMask([]bool{true, false, true, true})
	assertWrites(t, tc.mock.CoreWrites(), []cpus.CoreWrite{
		{Core: 1, Online: false},
	})
	if tc.ctx.metrics.DownRequested != 1 {
		t.Errorf("expected one down request, got %d",
			tc.ctx.metrics.DownRequested)
	}
}

func TestLastCoreStaysOnline(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := []cpus.MockCore{
		{Online: true, FreqKHz: 1000000},
		{Online: true, FreqKHz: 1000000},
	}
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.upRate = 40
	tc.ctx.downRate = 1

	tc.idle(0)
	tc.idle(1)
	tc.setRQ(50)
	tc.tickNow()
	tc.drain()
	tc.assertOnlineMask([]bool{true, false})

	// Another fully idle down cycle must leave the boot core alone
	tc.idle(0)
	tc.setRQ(0)
	tc.tickNow()
	tc.drain()
	tc.assertOnlineMask([]bool{true, false})
	assertWrites(t, tc.mock.CoreWrites(), []cpus.CoreWrite{
		{Core: 1, Online: false},
	})
	if tc.ctx.metrics.DownRequested != 1 {
		t.Errorf("expected a single down request, got %d",
			tc.ctx.metrics.DownRequested)
	}
}

func TestOnlineCapRespected(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	cores[1].Online = true
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.maxOnline = 2
	tc.ctx.upRate = 1
	tc.ctx.downRate = 40

	tc.busy(0)
	tc.busy(1)
	tc.setRQ(500)
	tc.tickNow()
	tc.drain()

	// At the cap nothing may come online, and the trigger core must be
	// re-armed rather than burned
	tc.assertOnlineMask([]bool{true, true, false, false})
	assertWrites(t, tc.mock.CoreWrites(), nil)
	if tc.ctx.coreStates[2].online {
		t.Error("expected core 2 to stay offline at the cap")
	}
	if !tc.ctx.coreStates[0].upEligible {
		t.Error("expected core 0 re-armed when no slot was available")
	}
	if tc.ctx.metrics.UpRequested != 0 {
		t.Errorf("expected no up request, got %d", tc.ctx.metrics.UpRequested)
	}
}

func TestDownFloorWithReducedCap(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	cores[1].Online = true
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.maxOnline = 2
	tc.ctx.upRate = 40
	tc.ctx.downRate = 1

	// With a reduced cap, cores below the cap boundary never go down
	// however idle they are
	tc.idle(0)
	tc.idle(1)
	tc.setRQ(0)
	tc.tickNow()
	tc.drain()

	tc.assertOnlineMask([]bool{true, true, false, false})
	assertWrites(t, tc.mock.CoreWrites(), nil)
	if tc.ctx.metrics.DownRequested != 0 {
		t.Errorf("expected no down request, got %d",
			tc.ctx.metrics.DownRequested)
	}
}

func TestRedundantTransitionSkipsWrites(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	cores[1].Online = true
	tc := newTestContext(t, cores)
	tc.startEnabled()

	// Hardware already matches the recorded state, so the executor has
	// nothing to write for either direction
	tc.ctx.requestOnline()
	tc.drain()
	tc.ctx.requestOffline()
	tc.drain()

	assertWrites(t, tc.mock.CoreWrites(), nil)
	if tc.ctx.metrics.UpSucceeded != 0 || tc.ctx.metrics.DownSucceeded != 0 {
		t.Errorf("expected no transitions, got %+v", tc.ctx.metrics)
	}
}

func TestExternalHotplugForcesResync(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())
	tc.startEnabled()
	tc.ctx.upRate = 1
	tc.ctx.downRate = 40
	tc.ctx.coreStates[0].upEligible = false

	// Core 2 appears behind the controller's back
	tc.mock.UpdateCore(2, cpus.MockCore{Online: true, FreqKHz: 1000000})

	tc.busy(0)
	tc.setRQ(500)
	tc.tickNow()

	if tc.ctx.metrics.DriftResyncs != 1 {
		t.Fatalf("expected one drift resync, got %d",
			tc.ctx.metrics.DriftResyncs)
	}
	// The resync replaces evaluation: no decision despite the hot core
	if tc.ctx.metrics.UpRequested != 0 {
		t.Errorf("expected no up request on a drift tick, got %d",
			tc.ctx.metrics.UpRequested)
	}
	assertWrites(t, tc.mock.CoreWrites(), nil)
	if !tc.ctx.coreStates[2].online {
		t.Error("expected core 2 adopted as online")
	}
	for core := 0; core < 4; core++ {
		if !tc.ctx.coreStates[core].upEligible {
			t.Errorf("expected core %d re-armed by the resync", core)
		}
		if tc.ctx.coreStates[core].lastLoadPct != -1 {
			t.Errorf("expected core %d load reset, got %d",
				core, tc.ctx.coreStates[core].lastLoadPct)
		}
	}
}

func TestFailedOnlineReconciledByDrift(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := []cpus.MockCore{
		{Online: true, FreqKHz: 1000000},
		{FreqKHz: 1000000},
	}
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.upRate = 1
	tc.ctx.downRate = 40
	tc.mock.FailSetOnline(1, errors.New("device or resource busy"))

	tc.busy(0)
	tc.setRQ(500)
	tc.tickNow()
	tc.drain()

	if tc.ctx.metrics.UpFailed != 1 {
		t.Fatalf("expected one failed up, got %+v", tc.ctx.metrics)
	}
	status := tc.ctx.coreStatusForPub(1)
	if !status.HasError() {
		t.Error("expected an error recorded on core 1")
	}
	if got := tc.ctx.coreStates[1].errStr; got != "device or resource busy" {
		t.Errorf("unexpected core 1 error %q", got)
	}

	// The recorded state still says online; the next tick notices the
	// hardware disagrees and adopts the truth again
	tc.busy(0)
	tc.setRQ(500)
	tc.tickNow()
	if tc.ctx.metrics.DriftResyncs != 1 {
		t.Fatalf("expected a drift resync after the failed up, got %d",
			tc.ctx.metrics.DriftResyncs)
	}
	if tc.ctx.coreStates[1].online {
		t.Error("expected core 1 recorded offline after the resync")
	}
	if tc.ctx.coreStatusForPub(1).HasError() {
		t.Error("expected core 1 error cleared by the resync")
	}
}

func TestEvaluationCadence(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := []cpus.MockCore{
		{Online: true, FreqKHz: 1000000},
		{FreqKHz: 1000000},
	}
	tc := newTestContext(t, cores)
	tc.startEnabled()
	if tc.ctx.upRate != 10 || tc.ctx.downRate != 20 {
		t.Fatalf("unexpected default rates %d/%d",
			tc.ctx.upRate, tc.ctx.downRate)
	}

	for i := 1; i <= 20; i++ {
		tc.busy(0)
		if tc.ctx.coreStates[1].online {
			tc.busy(1)
		}
		tc.setRQ(500)
		tc.tickNow()
		tc.drain()
		if i == 9 && len(tc.mock.CoreWrites()) != 0 {
			t.Fatalf("expected no transition before tick 10, got %+v",
				tc.mock.CoreWrites())
		}
	}

	// One up at tick 10; at tick 20 nothing qualifies since both cores
	// are hot and the only possible trigger has been used up
	assertWrites(t, tc.mock.CoreWrites(), []cpus.CoreWrite{
		{Core: 1, Online: true},
	})
	if tc.ctx.metrics.UpRequested != 1 || tc.ctx.metrics.DownRequested != 0 {
		t.Errorf("expected exactly one request over the run, got %+v",
			tc.ctx.metrics)
	}
	if tc.ctx.metrics.TickCount != 20 {
		t.Errorf("expected 20 ticks counted, got %d",
			tc.ctx.metrics.TickCount)
	}
	if tc.ctx.tickCounter != 0 {
		t.Errorf("expected tick counter wrapped at 20, got %d",
			tc.ctx.tickCounter)
	}
}

func TestCounterRestartTreatedAsNoSample(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := []cpus.MockCore{
		{Online: true, BusyUs: 900000, WallUs: 5000000, FreqKHz: 1000000},
		{Online: true, BusyUs: 900000, WallUs: 5000000, FreqKHz: 1000000},
	}
	tc := newTestContext(t, cores)
	tc.startEnabled()

	// Core 0 restarts its accounting from near zero
	tc.mock.UpdateCore(0, cpus.MockCore{
		Online: true, BusyUs: 900, WallUs: 1000, FreqKHz: 1000000})

	tc.setRQ(0)
	tc.tickNow()
	if got := tc.ctx.coreStates[0].lastLoadPct; got != -1 {
		t.Errorf("expected no usable load across the restart, got %d", got)
	}

	// The restarted counters became the new baseline, so the next
	// interval measures normally
	tc.mock.AdvanceCore(0, 90, 100)
	tc.setRQ(0)
	tc.tickNow()
	if got := tc.ctx.coreStates[0].lastLoadPct; got != 90 {
		t.Errorf("expected load 90 after the restart, got %d", got)
	}
}

func TestOfflineReleasesTriggerCore(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	cores[1].Online = true
	cores[2].Online = true
	tc := newTestContext(t, cores)
	tc.startEnabled()
	tc.ctx.upRate = 40
	tc.ctx.downRate = 1
	// Core 2 was brought online for core 0 some cycles ago
	tc.ctx.coreStates[2].broughtUpBy = 0
	tc.ctx.coreStates[0].upEligible = false

	tc.busy(0)
	tc.busy(1)
	tc.idle(2)
	tc.setRQ(500)
	tc.tickNow()
	tc.drain()

	tc.assertOnlineMask([]bool{true, true, false, false})
	if got := tc.ctx.coreStates[2].broughtUpBy; got != noCore {
		t.Errorf("expected trigger reference cleared, got %d", got)
	}
	if !tc.ctx.coreStates[0].upEligible {
		t.Error("expected core 0 eligible again once its follower left")
	}
	if tc.ctx.metrics.DownSucceeded != 1 {
		t.Errorf("expected one successful down, got %+v", tc.ctx.metrics)
	}
}

func TestEnableDisable(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := fourCores()
	for i := range cores {
		cores[i].Online = true
	}
	tc := newTestContext(t, cores)

	tc.ctx.enable()
	if !tc.ctx.enabled || !tc.ctx.metrics.Enabled {
		t.Fatal("expected controller enabled")
	}
	if tc.ctx.tickTimer.C == nil {
		t.Fatal("expected a tick timer while enabled")
	}

	tc.ctx.disable()
	if tc.ctx.enabled || tc.ctx.metrics.Enabled {
		t.Fatal("expected controller disabled")
	}
	if tc.ctx.tickTimer.C != nil {
		t.Error("expected the tick timer gone after disable")
	}
	// Every core except the boot core goes offline on disable
	tc.assertOnlineMask([]bool{true, false, false, false})
	assertWrites(t, tc.mock.CoreWrites(), []cpus.CoreWrite{
		{Core: 1, Online: false},
		{Core: 2, Online: false},
		{Core: 3, Online: false},
	})
	if tc.ctx.metrics.DownSucceeded != 3 {
		t.Errorf("expected three cores offlined, got %+v", tc.ctx.metrics)
	}
	for core := 1; core < 4; core++ {
		if tc.ctx.coreStates[core].online {
			t.Errorf("expected core %d recorded offline", core)
		}
	}

	// A second disable must not touch the hardware again
	tc.ctx.disable()
	if tc.ctx.metrics.DownRequested != 3 {
		t.Errorf("expected disable to be idempotent, got %+v", tc.ctx.metrics)
	}
}

func TestUpThresholdEdges(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	testCases := map[string]struct {
		busyUs   uint64
		wallUs   uint64
		freqKHz  uint32
		rqAvg    uint32
		expectUp bool
	}{
		"load at threshold qualifies": {
			busyUs: 65, wallUs: 100, freqKHz: 702000, rqAvg: 201,
			expectUp: true,
		},
		"load below threshold": {
			busyUs: 64, wallUs: 100, freqKHz: 702000, rqAvg: 201,
			expectUp: false,
		},
		"run queue at threshold is not enough": {
			busyUs: 90, wallUs: 100, freqKHz: 702000, rqAvg: 200,
			expectUp: false,
		},
		"frequency below threshold": {
			busyUs: 90, wallUs: 100, freqKHz: 701999, rqAvg: 500,
			expectUp: false,
		},
	}
	for name, test := range testCases {
		// Three cores so the single online core consults a middle
		// threshold row rather than the stricter top one
		tc := newTestContext(t, []cpus.MockCore{
			{Online: true, FreqKHz: test.freqKHz},
			{FreqKHz: test.freqKHz},
			{FreqKHz: test.freqKHz},
		})
		tc.startEnabled()
		tc.ctx.upRate = 1
		tc.ctx.downRate = 40

		tc.mock.AdvanceCore(0, test.busyUs, test.wallUs)
		tc.setRQ(test.rqAvg)
		tc.tickNow()
		tc.drain()

		gotUp := tc.ctx.metrics.UpRequested > 0
		if gotUp != test.expectUp {
			t.Errorf("%s: expected up=%t, got %t", name, test.expectUp, gotUp)
		}
	}
}

func TestDownThresholdEdges(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	testCases := map[string]struct {
		busyUs     uint64
		wallUs     uint64
		freqKHz    uint32
		rqAvg      uint32
		expectDown bool
	}{
		"load below threshold qualifies": {
			busyUs: 29, wallUs: 100, freqKHz: 1000000, rqAvg: 500,
			expectDown: true,
		},
		"load at threshold": {
			busyUs: 30, wallUs: 100, freqKHz: 1000000, rqAvg: 500,
			expectDown: false,
		},
		"slow clock and quiet queue qualify despite load": {
			busyUs: 90, wallUs: 100, freqKHz: 486000, rqAvg: 200,
			expectDown: true,
		},
		"slow clock but busy queue": {
			busyUs: 90, wallUs: 100, freqKHz: 486000, rqAvg: 201,
			expectDown: false,
		},
		"quiet queue but fast clock": {
			busyUs: 90, wallUs: 100, freqKHz: 486001, rqAvg: 200,
			expectDown: false,
		},
	}
	for name, test := range testCases {
		// Three cores with two online so the middle down row applies
		tc := newTestContext(t, []cpus.MockCore{
			{Online: true, FreqKHz: 1000000},
			{Online: true, FreqKHz: test.freqKHz},
			{FreqKHz: 1000000},
		})
		tc.startEnabled()
		tc.ctx.upRate = 40
		tc.ctx.downRate = 1

		// Core 0 is protected by the floor; core 1 is the candidate
		tc.busy(0)
		tc.mock.AdvanceCore(1, test.busyUs, test.wallUs)
		tc.setRQ(test.rqAvg)
		tc.tickNow()
		tc.drain()

		gotDown := tc.ctx.metrics.DownRequested > 0
		if gotDown != test.expectDown {
			t.Errorf("%s: expected down=%t, got %t",
				name, test.expectDown, gotDown)
		}
	}
}
