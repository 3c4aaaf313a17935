// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// coremgrd is the single binary for the core hotplug controller. The
// name it is invoked under selects what runs: a corectl symlink gives
// the operator CLI, anything else starts the controller agent.
package main

import (
	"os"
	"path/filepath"

	"github.com/lf-edge/coremgr/agentbase"
	"github.com/lf-edge/coremgr/agentlog"
	"github.com/lf-edge/coremgr/cmd/corectl"
	"github.com/lf-edge/coremgr/cmd/coremgr"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/pubsub/filedriver"
	"github.com/lf-edge/coremgr/types"
)

func main() {
	basename := filepath.Base(os.Args[0])
	switch basename {
	case "corectl":
		os.Exit(corectl.Run(os.Args[1:]))
	default:
		logger, log := agentlog.Init("coremgr")
		ps := pubsub.New(
			&filedriver.FileDriver{Logger: logger, Log: log},
			logger, log)
		var runner types.AgentRunner = coremgr.Run
		os.Exit(runner(ps, logger, log, os.Args[1:],
			agentbase.DefaultBaseDir))
	}
}
