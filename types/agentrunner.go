// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/sirupsen/logrus"
)

// AgentRunner is the signature of an agent entry point. The returned
// value becomes the process exit code.
type AgentRunner func(ps *pubsub.PubSub, logger *logrus.Logger,
	baseLog *base.LogObject, arguments []string, baseDir string) int
