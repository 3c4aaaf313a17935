// Copyright (c) 2018 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Handle logLevel for agents.

package agentlog

import (
	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/types"
	"github.com/sirupsen/logrus"
)

// GetGlobalConfig returns the value of the global config from the
// subscription, if any
func GetGlobalConfig(log *base.LogObject, sub pubsub.Subscription) *types.ConfigItemValueMap {
	m, err := sub.Get("global")
	if err != nil {
		log.Errorf("GlobalConfig - Failed to get key global. err: %s", err)
		return nil
	}
	gc := m.(types.ConfigItemValueMap)
	return &gc
}

// GetLogLevel returns the agent's log level from the subscription, falling
// back to the global default. Returns (value, ok)
func GetLogLevel(log *base.LogObject, sub pubsub.Subscription,
	agentName string) (string, bool) {
	return getLogLevelImpl(log, sub, agentName, true)
}

// GetLogLevelNoDefault is GetLogLevel without the global default fallback
func GetLogLevelNoDefault(log *base.LogObject, sub pubsub.Subscription,
	agentName string) (string, bool) {
	return getLogLevelImpl(log, sub, agentName, false)
}

func getLogLevelImpl(log *base.LogObject, sub pubsub.Subscription,
	agentName string, allowDefault bool) (string, bool) {

	m, err := sub.Get("global")
	if err != nil {
		log.Errorf("GetLogLevel- failed to get global. Err: %s", err)
		return "", false
	}
	gc := m.(types.ConfigItemValueMap)
	// Do we have an entry for this agent?
	loglevel := gc.AgentSettingStringValue(agentName, types.LogLevel)
	if loglevel != "" {
		log.Tracef("getLogLevelImpl: loglevel=%s", loglevel)
		return loglevel, true
	}
	if !allowDefault {
		log.Tracef("getLogLevelImpl: loglevel not found. allowDefault False")
		return "", false
	}
	// Agent specific setting not available. Get it from Global Setting
	loglevel = gc.GlobalValueString(types.DefaultLogLevel)
	if loglevel != "" {
		log.Tracef("getLogLevelImpl: returning DefaultLogLevel (%s)", loglevel)
		return loglevel, true
	}
	log.Errorf("***getLogLevelImpl: DefaultLogLevel not found. returning info")
	return "info", false
}

// HandleGlobalConfig updates the log level of the given logger based on the
// global config and debugOverride, and returns the global config
func HandleGlobalConfig(log *base.LogObject, sub pubsub.Subscription,
	agentName string, debugOverride bool,
	logger *logrus.Logger) *types.ConfigItemValueMap {

	log.Functionf("HandleGlobalConfig(%s, %v)", agentName, debugOverride)
	return handleGlobalConfigImpl(log, sub, agentName, debugOverride, true,
		logger)
}

// HandleGlobalConfigNoDefault is HandleGlobalConfig without the global
// default log level fallback
func HandleGlobalConfigNoDefault(log *base.LogObject, sub pubsub.Subscription,
	agentName string, debugOverride bool,
	logger *logrus.Logger) *types.ConfigItemValueMap {

	log.Functionf("HandleGlobalConfig(%s, %v)", agentName, debugOverride)
	return handleGlobalConfigImpl(log, sub, agentName, debugOverride, false,
		logger)
}

func handleGlobalConfigImpl(log *base.LogObject, sub pubsub.Subscription,
	agentName string, debugOverride bool, allowDefault bool,
	logger *logrus.Logger) *types.ConfigItemValueMap {

	level := logrus.InfoLevel
	gcp := GetGlobalConfig(log, sub)
	log.Functionf("handleGlobalConfigImpl: gcp %+v", gcp)
	if debugOverride {
		level = logrus.TraceLevel
		log.Functionf("handleGlobalConfigImpl: debugOverride set. set loglevel to trace")
	} else if loglevel, ok := getLogLevelImpl(log, sub, agentName, allowDefault); ok {
		l, err := logrus.ParseLevel(loglevel)
		if err != nil {
			log.Errorf("***ParseLevel %s failed: %s", loglevel, err)
		} else {
			level = l
			log.Functionf("handleGlobalConfigImpl: level %v", level)
		}
	} else {
		log.Errorf("***handleGlobalConfigImpl: Failed to get loglevel")
	}
	log.Functionf("handleGlobalConfigImpl: Setting loglevel to %s", level)
	logger.SetLevel(level)
	return gcp
}
