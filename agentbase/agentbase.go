// Copyright (c) 2022 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package agentbase

import (
	"flag"
	"path/filepath"
	"time"

	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/pidfile"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/sirupsen/logrus"
)

// DefaultBaseDir - the root under which run/ and persist/ live unless
// overridden with WithBaseDir
const DefaultBaseDir = "/"

// CliParams - stores all the common cli params
type CliParams struct {
	DebugOverride bool
}

// AgentBase - a struct to be embedded in the context struct of each agent.
// It carries the state common to all agents; the embedding context
// overrides AddAgentSpecificCLIFlags/ProcessAgentSpecificCLIFlags as needed.
type AgentBase struct {
	agentName    string
	needWatchdog bool
	needPidFile  bool
	cliParams    CliParams
	logger       *logrus.Logger
	log          *base.LogObject
	baseDir      string
	arguments    []string

	ps          *pubsub.PubSub
	warningTime time.Duration
	errorTime   time.Duration
}

// AgentBaseIntf - the interface an agent context satisfies by embedding
// AgentBase; the two CLI hooks can be overridden by the agent.
type AgentBaseIntf interface {
	AgentBaseInternal() *AgentBase
	AddAgentSpecificCLIFlags(flagSet *flag.FlagSet)
	ProcessAgentSpecificCLIFlags(flagSet *flag.FlagSet)
}

// AgentBaseInternal - returns the embedded AgentBase
func (a *AgentBase) AgentBaseInternal() *AgentBase {
	return a
}

// AddAgentSpecificCLIFlags - default implementation; agents override this
// to register their own flags on the flagSet
func (a *AgentBase) AddAgentSpecificCLIFlags(flagSet *flag.FlagSet) {}

// ProcessAgentSpecificCLIFlags - default implementation; agents override
// this to read back their flags after parsing
func (a *AgentBase) ProcessAgentSpecificCLIFlags(flagSet *flag.FlagSet) {}

// CLIParams - returns the common cli params seen after Init
func (a *AgentBase) CLIParams() CliParams {
	return a.cliParams
}

// AgentName - returns the agent name passed to Init
func (a *AgentBase) AgentName() string {
	return a.agentName
}

// Logger - returns the logger passed to Init
func (a *AgentBase) Logger() *logrus.Logger {
	return a.logger
}

// Log - returns the log object passed to Init
func (a *AgentBase) Log() *base.LogObject {
	return a.log
}

// BaseDir - returns the base directory for run/persist state
func (a *AgentBase) BaseDir() string {
	return a.baseDir
}

// AgentOpt - an option for Init
type AgentOpt func(*AgentBase)

// WithArguments - have Init parse the given CLI arguments instead of none
func WithArguments(arguments []string) AgentOpt {
	return func(a *AgentBase) {
		a.arguments = arguments
	}
}

// WithBaseDir - place run/persist state under baseDir instead of /
func WithBaseDir(baseDir string) AgentOpt {
	return func(a *AgentBase) {
		a.baseDir = baseDir
	}
}

// WithPidFile - have Init create <baseDir>/run/<agentName>.pid and fail
// if the agent is already running
func WithPidFile() AgentOpt {
	return func(a *AgentBase) {
		a.needPidFile = true
	}
}

// WithWatchdog - have Init register the agent with the watchdog; the agent
// is responsible for the periodic StillRunning touches after that
func WithWatchdog(ps *pubsub.PubSub, warningTime, errorTime time.Duration) AgentOpt {
	return func(a *AgentBase) {
		a.ps = ps
		a.warningTime = warningTime
		a.errorTime = errorTime
		a.needWatchdog = true
	}
}

// processCLIFlags - parse the flags common to all agents plus the ones the
// agent registered through its AddAgentSpecificCLIFlags override
func processCLIFlags(agentBase AgentBaseIntf) {
	a := agentBase.AgentBaseInternal()
	flagSet := flag.NewFlagSet(a.agentName, flag.ExitOnError)
	debugPtr := flagSet.Bool("d", false, "Debug flag")
	agentBase.AddAgentSpecificCLIFlags(flagSet)
	flagSet.Parse(a.arguments)
	a.cliParams.DebugOverride = *debugPtr
	agentBase.ProcessAgentSpecificCLIFlags(flagSet)
}

// Init - handles the start of day common to all agents: CLI parsing, log
// level, pidfile and watchdog registration, all driven by the options
func Init(agentBase AgentBaseIntf, logger *logrus.Logger, log *base.LogObject, agentName string, opts ...AgentOpt) {
	a := agentBase.AgentBaseInternal()
	a.agentName = agentName
	a.logger = logger
	a.log = log
	a.baseDir = DefaultBaseDir
	for _, opt := range opts {
		opt(a)
	}
	processCLIFlags(agentBase)
	if a.cliParams.DebugOverride {
		logger.SetLevel(logrus.TraceLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	if a.needPidFile {
		rundir := filepath.Join(a.baseDir, "run")
		if err := pidfile.CheckAndCreatePidfileInDir(log, rundir, agentName); err != nil {
			log.Fatal(err)
		}
	}
	if a.needWatchdog {
		a.ps.StillRunning(agentName, a.warningTime, a.errorTime)
	}
}
