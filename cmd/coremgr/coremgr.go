// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package coremgr is the adaptive CPU core hotplug controller. On a
// fixed tick it derives a per core load from cumulative busy/idle
// counters, reads the clock frequency and the time weighted run queue
// average, consults a per online count threshold table and brings at
// most one core online and takes at most one offline per tick. The
// hardware transitions run asynchronously so a slow one never delays
// the next tick.
package coremgr

import (
	"flag"
	"fmt"
	"time"

	"github.com/lf-edge/coremgr/agentbase"
	"github.com/lf-edge/coremgr/agentlog"
	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/cpus"
	"github.com/lf-edge/coremgr/flextimer"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/types"
	"github.com/lf-edge/coremgr/worker"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

const (
	agentName = "coremgr"
	// configSourceAgent publishes the operator configuration
	configSourceAgent = "corectl"

	errorTime        = 3 * time.Minute
	warningTime      = 40 * time.Second
	stillRunningTime = 25 * time.Second
)

// Version is set from Makefile
var Version = "No version specified"

var logger *logrus.Logger
var log *base.LogObject

type coremgrContext struct {
	agentbase.AgentBase
	ps *pubsub.PubSub

	subOperatorConfig pubsub.Subscription
	pubCoreStatus     pubsub.Publication
	pubMetrics        pubsub.Publication
	pubAppliedConfig  pubsub.Publication

	// Hardware access, replaced by a mock in tests
	cpus      cpus.CPUControl
	coreCount int

	// Controller state, owned by the main goroutine
	enabled      bool
	coreStates   []coreState
	tickCounter  uint32
	matrix       types.ThresholdMatrix
	samplingUs   uint32
	upRate       uint32
	downRate     uint32
	maxOnline    int
	accurateFreq bool

	sampler *rqAvg
	worker  worker.Worker
	metrics types.ControllerMetrics

	sessionID     uuid.UUID
	specMap       types.ConfigItemSpecMap
	globalConfig  *types.ConfigItemValueMap
	GCInitialized bool

	tickTimer    flextimer.FlexTickerHandle
	metricsTimer flextimer.FlexTickerHandle

	// topologyChan is poked by the uevent listener when a core comes or
	// goes, so the next tick can be pulled forward
	topologyChan   chan struct{}
	listenStopChan chan struct{}
	stopChan       chan struct{}

	testMode             bool
	stillRunningInterval time.Duration
}

var debug = false

// newCoremgrContext creates a new context with production defaults
func newCoremgrContext(ps *pubsub.PubSub) *coremgrContext {
	return &coremgrContext{
		ps:                   ps,
		topologyChan:         make(chan struct{}, 1),
		stopChan:             make(chan struct{}, 1),
		stillRunningInterval: stillRunningTime,
	}
}

// Run is the main entry point for coremgr, matching types.AgentRunner signature
func Run(ps *pubsub.PubSub, loggerArg *logrus.Logger, logArg *base.LogObject, arguments []string, baseDir string) int {
	logger = loggerArg
	log = logArg

	log.Noticef("Starting %s", agentName)

	ctx := newCoremgrContext(ps)
	agentbase.Init(ctx, logger, log, agentName,
		agentbase.WithPidFile(),
		agentbase.WithBaseDir(baseDir),
		agentbase.WithWatchdog(ps, warningTime, errorTime),
		agentbase.WithArguments(arguments))

	// Access CLI flags - debug flag provided by agentbase
	debug = ctx.CLIParams().DebugOverride

	if ctx.cpus == nil {
		cpuCtrl, err := cpus.NewLinuxCPUControl(log)
		if err != nil {
			log.Fatal(err)
		}
		ctx.cpus = cpuCtrl
	}
	if err := ctx.initController(); err != nil {
		log.Fatal(err)
	}

	if err := ctx.initPubSub(); err != nil {
		log.Fatal(err)
	}

	ctx.worker = worker.NewWorker(log, ctx, transitionQueueLen,
		transitionHandlers())

	// Publish the state of the world before any operator config shows up
	ctx.seedCoreStates()
	ctx.publishAllCoreStatus()
	ctx.publishAppliedConfig()
	ctx.publishMetrics()

	metricInterval := ctx.globalConfig.GlobalValueInt(types.MetricInterval)
	ctx.metricsTimer = newMetricsTimer(metricInterval)

	ctx.listenTopologyEvents()

	// Run the main loop
	if err := ctx.run(); err != nil {
		log.Errorf("coremgr run failed: %v", err)
		return 1
	}

	log.Noticef("Exiting %s", agentName)
	return 0
}

// AddAgentSpecificCLIFlags adds CLI options
func (ctx *coremgrContext) AddAgentSpecificCLIFlags(flagSet *flag.FlagSet) {
	// Debug flag is provided by agentbase automatically
}

// initController sizes the core table and loads the built-in defaults.
// The controller never starts half initialized: any failure here is
// returned and treated as fatal by the caller.
func (ctx *coremgrContext) initController() error {
	ctx.coreCount = ctx.cpus.CoreCount()
	if ctx.coreCount < 1 {
		return fmt.Errorf("no cores reported by the platform")
	}
	ctx.coreStates = make([]coreState, ctx.coreCount)
	for core := 0; core < ctx.coreCount; core++ {
		ctx.coreStates[core].broughtUpBy = noCore
		ctx.coreStates[core].lastLoadPct = -1
	}

	ctx.specMap = types.NewConfigItemSpecMap(ctx.coreCount)
	ctx.globalConfig = types.DefaultConfigItemValueMap(ctx.coreCount)
	ctx.matrix = types.NewThresholdMatrix(ctx.coreCount)
	ctx.samplingUs = ctx.globalConfig.GlobalValueInt(types.SamplingInterval)
	ctx.upRate = ctx.globalConfig.GlobalValueInt(types.UpRate)
	ctx.downRate = ctx.globalConfig.GlobalValueInt(types.DownRate)
	ctx.maxOnline = int(ctx.globalConfig.GlobalValueInt(types.MaxOnlineCores))
	ctx.accurateFreq = ctx.globalConfig.GlobalValueBool(types.AccurateFrequency)

	sessionID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("failed to generate session ID: %w", err)
	}
	ctx.sessionID = sessionID
	ctx.metrics.SessionID = sessionID

	ctx.sampler = newRQAvg(log, ctx.cpus)
	return nil
}

func (ctx *coremgrContext) initPubSub() error {
	var err error

	ctx.pubCoreStatus, err = ctx.ps.NewPublication(
		pubsub.PublicationOptions{
			AgentName: agentName,
			TopicType: types.CoreStatus{},
		})
	if err != nil {
		return fmt.Errorf("failed to create CoreStatus publication: %w", err)
	}

	ctx.pubMetrics, err = ctx.ps.NewPublication(
		pubsub.PublicationOptions{
			AgentName: agentName,
			TopicType: types.ControllerMetrics{},
		})
	if err != nil {
		return fmt.Errorf("failed to create ControllerMetrics publication: %w", err)
	}

	// The configuration actually in force: defaults overlaid with
	// whatever the operator wrote, clamps applied
	ctx.pubAppliedConfig, err = ctx.ps.NewPublication(
		pubsub.PublicationOptions{
			AgentName: agentName,
			TopicType: types.ConfigItemValueMap{},
		})
	if err != nil {
		return fmt.Errorf("failed to create applied config publication: %w", err)
	}

	ctx.subOperatorConfig, err = ctx.ps.NewSubscription(
		pubsub.SubscriptionOptions{
			AgentName:     configSourceAgent,
			MyAgentName:   agentName,
			TopicImpl:     types.ConfigItemValueMap{},
			Persistent:    true,
			Activate:      false,
			Ctx:           ctx,
			CreateHandler: handleGlobalConfigCreate,
			ModifyHandler: handleGlobalConfigModify,
			DeleteHandler: handleGlobalConfigDelete,
			WarningTime:   warningTime,
			ErrorTime:     errorTime,
		})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s config: %w",
			configSourceAgent, err)
	}
	if err := ctx.subOperatorConfig.Activate(); err != nil {
		return fmt.Errorf("failed to activate config subscription: %w", err)
	}
	return nil
}

func (ctx *coremgrContext) run() error {
	// Run a periodic timer so we always update StillRunning
	stillRunning := time.NewTicker(ctx.stillRunningInterval)
	defer stillRunning.Stop()

	// There is no wait for the operator config here: the source is a
	// CLI that may never have run on this device. The controller starts
	// from the built-in defaults and picks the config up on arrival.
	log.Noticef("Starting main event loop")
	for {
		select {
		case change := <-ctx.subOperatorConfig.MsgChan():
			ctx.subOperatorConfig.ProcessChange(change)

		case <-ctx.tickTimer.C:
			ctx.handleTick()

		case res := <-ctx.worker.MsgChan():
			if err := res.Process(ctx, true); err != nil {
				log.Errorf("transition result: %v", err)
			}

		case <-ctx.topologyChan:
			ctx.handleTopologyEvent()

		case <-ctx.metricsTimer.C:
			ctx.publishMetrics()
			ctx.publishAllCoreStatus()

		case <-stillRunning.C:
			ctx.ps.StillRunning(agentName, warningTime, errorTime)

		case <-ctx.stopChan:
			log.Noticef("Received stop signal, exiting run loop")
			return nil
		}
	}
}

// handleTopologyEvent reacts to a kernel notification that some core
// went on or off line. While enabled the next tick is pulled forward so
// drift resync happens promptly; while disabled the published statuses
// are refreshed from hardware directly.
func (ctx *coremgrContext) handleTopologyEvent() {
	if ctx.enabled {
		ctx.tickTimer.TickNow()
		return
	}
	ctx.seedCoreStates()
	ctx.publishAllCoreStatus()
}

func handleGlobalConfigCreate(ctxArg interface{}, key string,
	statusArg interface{}) {
	handleGlobalConfigImpl(ctxArg, key, statusArg)
}

func handleGlobalConfigModify(ctxArg interface{}, key string,
	statusArg interface{}, oldStatusArg interface{}) {
	handleGlobalConfigImpl(ctxArg, key, statusArg)
}

func handleGlobalConfigImpl(ctxArg interface{}, key string,
	statusArg interface{}) {
	ctx := ctxArg.(*coremgrContext)
	if key != "global" {
		log.Functionf("handleGlobalConfigImpl: ignoring %s", key)
		return
	}
	log.Functionf("handleGlobalConfigImpl for %s", key)
	gcp := agentlog.HandleGlobalConfig(log, ctx.subOperatorConfig, agentName,
		ctx.CLIParams().DebugOverride, logger)
	if gcp != nil {
		applied := ctx.validateConfig(gcp)
		ctx.applyConfig(applied)
		ctx.GCInitialized = true
	}
	log.Functionf("handleGlobalConfigImpl done for %s", key)
}

func handleGlobalConfigDelete(ctxArg interface{}, key string,
	statusArg interface{}) {
	ctx := ctxArg.(*coremgrContext)
	if key != "global" {
		log.Functionf("handleGlobalConfigDelete: ignoring %s", key)
		return
	}
	log.Functionf("handleGlobalConfigDelete for %s", key)
	agentlog.HandleGlobalConfig(log, ctx.subOperatorConfig, agentName,
		ctx.CLIParams().DebugOverride, logger)
	// Operator config went away entirely, back to the built-ins
	ctx.applyConfig(types.DefaultConfigItemValueMap(ctx.coreCount))
	log.Functionf("handleGlobalConfigDelete done for %s", key)
}

// validateConfig merges what the operator wrote into the built-in
// defaults, one item at a time. A malformed value keeps the previously
// applied one and counts as a config error; out of range numbers are
// clamped by the spec map.
func (ctx *coremgrContext) validateConfig(gcp *types.ConfigItemValueMap) *types.ConfigItemValueMap {
	applied := types.DefaultConfigItemValueMap(ctx.coreCount)
	for gsKey, value := range gcp.GlobalSettings {
		_, err := ctx.specMap.ParseItem(applied, ctx.globalConfig,
			string(gsKey), value.StringValue())
		if err != nil {
			log.Errorf("validateConfig: item %s: %v", gsKey, err)
			ctx.metrics.ConfigErrors++
		}
	}
	for agent, settings := range gcp.AgentSettings {
		for asKey, value := range settings {
			key := fmt.Sprintf("agent.%s.%s", agent, asKey)
			_, err := ctx.specMap.ParseItem(applied, ctx.globalConfig,
				key, value.StringValue())
			if err != nil {
				log.Errorf("validateConfig: item %s: %v", key, err)
				ctx.metrics.ConfigErrors++
			}
		}
	}
	return applied
}

// applyConfig moves the controller to the given configuration. The
// enable flip runs last so a sampling period or threshold change
// arriving in the same write is in force by the first tick.
func (ctx *coremgrContext) applyConfig(applied *types.ConfigItemValueMap) {
	oldSamplingUs := ctx.samplingUs
	oldMetricInterval := ctx.globalConfig.GlobalValueInt(types.MetricInterval)

	ctx.samplingUs = applied.GlobalValueInt(types.SamplingInterval)
	ctx.upRate = applied.GlobalValueInt(types.UpRate)
	ctx.downRate = applied.GlobalValueInt(types.DownRate)
	ctx.maxOnline = int(applied.GlobalValueInt(types.MaxOnlineCores))
	ctx.accurateFreq = applied.GlobalValueBool(types.AccurateFrequency)
	ctx.matrix = types.ThresholdMatrixFromConfig(applied, ctx.coreCount)
	ctx.globalConfig = applied

	if ctx.enabled && ctx.samplingUs != oldSamplingUs {
		interval := time.Duration(ctx.samplingUs) * time.Microsecond
		log.Noticef("Sampling interval now %v", interval)
		// Replaces the pending tick, so a shorter period takes effect
		// before the old one would have fired
		ctx.tickTimer.UpdateRangeTicker(interval, interval)
	}
	metricInterval := applied.GlobalValueInt(types.MetricInterval)
	if metricInterval != oldMetricInterval && ctx.metricsTimer.C != nil {
		log.Noticef("Metric interval now %d seconds", metricInterval)
		updateMetricsTimer(ctx.metricsTimer, metricInterval)
	}

	if applied.GlobalValueBool(types.HotplugEnabled) {
		ctx.enable()
	} else {
		ctx.disable()
	}
	ctx.publishAppliedConfig()
}

// newMetricsTimer spreads metrics publication over 0.3 to 1.0 times
// the configured interval.
func newMetricsTimer(metricInterval uint32) flextimer.FlexTickerHandle {
	interval := time.Duration(metricInterval) * time.Second
	max := float64(interval)
	min := max * 0.3
	return flextimer.NewRangeTicker(time.Duration(min), time.Duration(max))
}

func updateMetricsTimer(handle flextimer.FlexTickerHandle, metricInterval uint32) {
	interval := time.Duration(metricInterval) * time.Second
	max := float64(interval)
	min := max * 0.3
	handle.UpdateRangeTicker(time.Duration(min), time.Duration(max))
}

func (ctx *coremgrContext) coreStatusForPub(core int) types.CoreStatus {
	state := &ctx.coreStates[core]
	status := types.CoreStatus{
		CoreNum:        core,
		Online:         state.online,
		UpEligible:     state.upEligible,
		BroughtUpBy:    state.broughtUpBy,
		LastLoadPct:    state.lastLoadPct,
		LastFreqKHz:    state.lastFreqKHz,
		LastChangeTime: state.lastChange,
		SessionID:      ctx.sessionID,
	}
	if state.errStr != "" {
		status.SetError(state.errStr, state.errTime)
	}
	return status
}

// publishCoreStatus publishes the record of one core. The publication
// deduplicates, so republishing an unchanged core is a no-op.
func (ctx *coremgrContext) publishCoreStatus(core int) {
	pub := ctx.pubCoreStatus
	if pub == nil {
		return
	}
	status := ctx.coreStatusForPub(core)
	pub.Publish(status.Key(), status)
}

func (ctx *coremgrContext) publishAllCoreStatus() {
	for core := 0; core < ctx.coreCount; core++ {
		ctx.publishCoreStatus(core)
	}
}

// publishMetrics refreshes the derived counters and publishes them.
func (ctx *coremgrContext) publishMetrics() {
	ctx.metrics.OnlineCores = ctx.recordedOnlineCount()
	if ctx.worker != nil {
		ctx.metrics.PendingWork = ctx.worker.NumPending()
	}
	ctx.metrics.UpdatedAt = time.Now()
	pub := ctx.pubMetrics
	if pub == nil {
		return
	}
	pub.Publish(ctx.metrics.Key(), ctx.metrics)
}

func (ctx *coremgrContext) publishAppliedConfig() {
	pub := ctx.pubAppliedConfig
	if pub == nil {
		return
	}
	pub.Publish("global", *ctx.globalConfig)
}
