// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package corectl is the operator CLI for the core hotplug controller.
// It renders the status coremgr publishes and reads or writes the
// persisted configuration coremgr subscribes to. Writes go through the
// same spec map the daemon validates with, so a value corectl stores
// is a value the daemon accepts.
package corectl

import (
	"fmt"
	"time"

	"github.com/lf-edge/coremgr/agentlog"
	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/cpus"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/pubsub/filedriver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	agentName = "corectl"
	// controllerAgent publishes the status we render and subscribes to
	// the configuration we write
	controllerAgent = "coremgr"

	fetchTimeout = 10 * time.Second
)

// ctlContext carries what every corectl subcommand needs. The pubsub
// handle is built after flag parsing so --rundir is honored.
type ctlContext struct {
	rundir  string
	verbose bool

	logger *logrus.Logger
	log    *base.LogObject
	ps     *pubsub.PubSub
}

// setup runs once the persistent flags are parsed. Tests pre-wire
// their own pubsub and logging.
func (ctl *ctlContext) setup() {
	if ctl.ps != nil {
		return
	}
	ctl.logger, ctl.log = agentlog.InitNoRedirect(agentName)
	if ctl.verbose {
		ctl.logger.SetLevel(logrus.TraceLevel)
	} else {
		// Keep library logging off the terminal; failures are
		// reported through the command result.
		ctl.logger.SetLevel(logrus.WarnLevel)
	}
	ctl.ps = pubsub.New(
		&filedriver.FileDriver{
			Logger:  ctl.logger,
			Log:     ctl.log,
			RootDir: ctl.rundir,
		},
		ctl.logger, ctl.log)
}

// coreCount probes the number of present cores. Zero means the spec
// map falls back to the runtime CPU count.
func (ctl *ctlContext) coreCount() int {
	cc, err := cpus.NewLinuxCPUControl(ctl.log)
	if err != nil {
		ctl.log.Warnf("coreCount: %v", err)
		return 0
	}
	return cc.CoreCount()
}

// fetchAll activates a subscription to one of the controller topics
// and pumps it until the initial scan is complete.
func (ctl *ctlContext) fetchAll(topic interface{}) (map[string]interface{}, error) {
	sub, err := ctl.ps.NewSubscription(pubsub.SubscriptionOptions{
		AgentName:   controllerAgent,
		MyAgentName: agentName,
		TopicImpl:   topic,
		Activate:    true,
	})
	if err != nil {
		return nil, err
	}
	deadline := time.After(fetchTimeout)
	for !sub.Synchronized() {
		select {
		case change := <-sub.MsgChan():
			sub.ProcessChange(change)
		case <-deadline:
			return nil, fmt.Errorf("timed out reading %s from %s",
				sub.Topic(), controllerAgent)
		}
	}
	return sub.GetAll(), nil
}

func rootCmd(ctl *ctlContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "corectl",
		Short: "Inspect and tune the CPU core hotplug controller",
		Long: `Inspect and tune the CPU core hotplug controller. Status is read
from the files coremgr publishes; configuration is persisted where
coremgr picks it up, so changes apply immediately and survive a
reboot. Values are validated and clamped the same way the daemon
does it.`,
		PersistentPreRun: func(*cobra.Command, []string) {
			ctl.setup()
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&ctl.rundir, "rundir", "",
		"directory the run/ and persist/ trees live under; empty for the live system")
	pf.BoolVarP(&ctl.verbose, "verbose", "v", false,
		"verbose library logging")
	return cmd
}

func execute(args []string) error {
	ctl := &ctlContext{}
	r := rootCmd(ctl)
	r.AddCommand(statusCmd(ctl))
	r.AddCommand(configCmd(ctl))
	r.SetArgs(args)
	return r.Execute()
}

// Run executes the CLI; the return value becomes the process exit code
func Run(args []string) int {
	if err := execute(args); err != nil {
		return 1
	}
	return 0
}
