// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package coremgr

import (
	"testing"
	"time"

	"github.com/lf-edge/coremgr/cpus"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/types"
)

// processConfigChange waits for one operator config change and handles
// it in the test goroutine, the way the main loop would.
func (tc *testContext) processConfigChange() {
	tc.t.Helper()
	select {
	case change := <-tc.ctx.subOperatorConfig.MsgChan():
		tc.ctx.subOperatorConfig.ProcessChange(change)
	case <-time.After(10 * time.Second):
		tc.t.Fatal("timed out waiting for a config change")
	}
}

func TestValidateConfigClampsOutOfRange(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())

	gcp := types.DefaultConfigItemValueMap(4)
	gcp.SetGlobalValueInt(types.SamplingInterval, 1)
	gcp.SetGlobalValueInt(types.MaxOnlineCores, 99)

	applied := tc.ctx.validateConfig(gcp)
	if got := applied.GlobalValueInt(types.SamplingInterval); got != 10000 {
		t.Errorf("expected sampling interval clamped to 10000, got %d", got)
	}
	if got := applied.GlobalValueInt(types.MaxOnlineCores); got != 4 {
		t.Errorf("expected max online cores clamped to 4, got %d", got)
	}
	if tc.ctx.metrics.ConfigErrors != 0 {
		t.Errorf("clamping is not an error, got %d config errors",
			tc.ctx.metrics.ConfigErrors)
	}
}

func TestValidateConfigKeepsAppliedOnBadItems(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())

	gcp := types.DefaultConfigItemValueMap(4)
	// A number that does not parse and a key that does not exist
	gcp.SetGlobalValueString(types.UpRate, "fast")
	gcp.SetGlobalValueInt(types.GlobalSettingKey("hotplug.bogus"), 5)

	applied := tc.ctx.validateConfig(gcp)
	if got := applied.GlobalValueInt(types.UpRate); got != 10 {
		t.Errorf("expected the applied up rate kept, got %d", got)
	}
	if tc.ctx.metrics.ConfigErrors != 2 {
		t.Errorf("expected two config errors, got %d",
			tc.ctx.metrics.ConfigErrors)
	}
}

func TestApplyConfigTogglesController(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	cores := []cpus.MockCore{
		{Online: true, FreqKHz: 1000000},
		{Online: true, FreqKHz: 1000000},
		{Online: true, FreqKHz: 1000000},
	}
	tc := newTestContext(t, cores)

	applied := types.DefaultConfigItemValueMap(3)
	applied.SetGlobalValueBool(types.HotplugEnabled, true)
	applied.SetGlobalValueInt(types.UpRate, 5)
	applied.SetGlobalValueInt(types.UpThresholdLoadKey(1), 80)
	tc.ctx.applyConfig(applied)

	if !tc.ctx.enabled {
		t.Fatal("expected the controller enabled")
	}
	if tc.ctx.upRate != 5 {
		t.Errorf("expected up rate 5, got %d", tc.ctx.upRate)
	}
	if row, ok := tc.ctx.matrix.UpRow(1); !ok || row.Load != 80 {
		t.Errorf("expected up row 1 load 80, got %+v ok=%t", row, ok)
	}

	// Back to the defaults: disabled, extra cores parked
	tc.ctx.applyConfig(types.DefaultConfigItemValueMap(3))
	if tc.ctx.enabled {
		t.Fatal("expected the controller disabled")
	}
	if tc.ctx.upRate != 10 {
		t.Errorf("expected the default up rate back, got %d", tc.ctx.upRate)
	}
	tc.assertOnlineMask([]bool{true, false, false})
}

func TestApplyConfigReapplyIsNoop(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())

	operatorConfig := func() *types.ConfigItemValueMap {
		cfg := types.DefaultConfigItemValueMap(4)
		cfg.SetGlobalValueBool(types.HotplugEnabled, true)
		cfg.SetGlobalValueInt(types.SamplingInterval, 20000)
		cfg.SetGlobalValueInt(types.UpThresholdLoadKey(2), 75)
		return cfg
	}

	tc.ctx.applyConfig(operatorConfig())
	if !tc.ctx.enabled {
		t.Fatal("expected the controller enabled")
	}
	tickChan := tc.ctx.tickTimer.C
	defer tc.ctx.disable()

	// A redelivery of the same config must not restart the tick timer
	// or bounce the controller
	tc.ctx.applyConfig(operatorConfig())
	if !tc.ctx.enabled {
		t.Fatal("expected the controller still enabled")
	}
	if tc.ctx.tickTimer.C != tickChan {
		t.Error("expected the tick timer left alone on a no-op reapply")
	}
	if tc.ctx.samplingUs != 20000 {
		t.Errorf("expected sampling interval 20000us, got %d", tc.ctx.samplingUs)
	}
	if row, ok := tc.ctx.matrix.UpRow(2); !ok || row.Load != 75 {
		t.Errorf("expected up row 2 load 75, got %+v ok=%t", row, ok)
	}
}

func TestOperatorConfigSubscription(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())
	ps := pubsub.New(pubsub.NewMemoryDriver(), logger, log)
	tc.ctx.ps = ps

	pubConfig, err := ps.NewPublication(pubsub.PublicationOptions{
		AgentName:  configSourceAgent,
		TopicType:  types.ConfigItemValueMap{},
		Persistent: true,
	})
	if err != nil {
		t.Fatalf("NewPublication: %v", err)
	}

	// Config written before the agent subscribed still has to arrive
	cfg := types.DefaultConfigItemValueMap(4)
	cfg.SetGlobalValueBool(types.HotplugEnabled, true)
	cfg.SetGlobalValueInt(types.SamplingInterval, 20000)
	if err := pubConfig.Publish("global", *cfg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := tc.ctx.initPubSub(); err != nil {
		t.Fatalf("initPubSub: %v", err)
	}
	tc.processConfigChange()

	if !tc.ctx.GCInitialized {
		t.Fatal("expected the config marked initialized")
	}
	if !tc.ctx.enabled {
		t.Fatal("expected hotplug enabled by the operator config")
	}
	if tc.ctx.samplingUs != 20000 {
		t.Errorf("expected sampling interval 20000us, got %d",
			tc.ctx.samplingUs)
	}
	item, err := tc.ctx.pubAppliedConfig.Get("global")
	if err != nil {
		t.Fatalf("applied config not published: %v", err)
	}
	appliedPub := item.(types.ConfigItemValueMap)
	if got := appliedPub.GlobalValueInt(types.SamplingInterval); got != 20000 {
		t.Errorf("expected the applied config republished, got %d", got)
	}

	// A live rewrite turning hotplug off parks the extra cores
	cfg.SetGlobalValueBool(types.HotplugEnabled, false)
	if err := pubConfig.Publish("global", *cfg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	tc.processConfigChange()
	if tc.ctx.enabled {
		t.Fatal("expected hotplug disabled after the rewrite")
	}

	// Enable again with a custom rate, then delete the config outright:
	// the controller falls back to the built-ins
	cfg.SetGlobalValueBool(types.HotplugEnabled, true)
	cfg.SetGlobalValueInt(types.UpRate, 5)
	if err := pubConfig.Publish("global", *cfg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	tc.processConfigChange()
	if !tc.ctx.enabled || tc.ctx.upRate != 5 {
		t.Fatalf("expected enabled with up rate 5, got enabled=%t rate=%d",
			tc.ctx.enabled, tc.ctx.upRate)
	}

	if err := pubConfig.Unpublish("global"); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	tc.processConfigChange()
	if tc.ctx.enabled {
		t.Error("expected the built-in defaults to leave hotplug disabled")
	}
	if tc.ctx.upRate != 10 {
		t.Errorf("expected the default up rate back, got %d", tc.ctx.upRate)
	}
}

func TestTopologyEventWhileDisabled(t *testing.T) {
	testMutex.Lock()
	defer testMutex.Unlock()
	tc := newTestContext(t, fourCores())
	tc.ctx.seedCoreStates()

	// An external actor onlines a core while the controller is off duty
	tc.mock.UpdateCore(1, cpus.MockCore{Online: true, FreqKHz: 1000000})
	tc.ctx.handleTopologyEvent()

	if !tc.ctx.coreStates[1].online {
		t.Error("expected the externally onlined core adopted")
	}
}

func TestIsCPUHotplugEvent(t *testing.T) {
	testCases := map[string]struct {
		action  string
		devpath string
		expect  bool
	}{
		"core coming online": {
			"online", "/devices/system/cpu/cpu3", true},
		"core going offline": {
			"offline", "/devices/system/cpu/cpu12", true},
		"add is not a hotplug": {
			"add", "/devices/system/cpu/cpu3", false},
		"remove is not a hotplug": {
			"remove", "/devices/system/cpu/cpu3", false},
		"cpu subsystem root": {
			"online", "/devices/system/cpu", false},
		"cpufreq node": {
			"online", "/devices/system/cpu/cpufreq", false},
		"per core subdevice": {
			"online", "/devices/system/cpu/cpu3/cache/index0", false},
		"unrelated device": {
			"online", "/devices/pci0000:00/0000:00:14.0", false},
	}
	for name, test := range testCases {
		if got := isCPUHotplugEvent(test.action, test.devpath); got != test.expect {
			t.Errorf("%s: expected %t, got %t", name, test.expect, got)
		}
	}
}
