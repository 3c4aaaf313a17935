// Copyright (c) 2019-2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package filedriver

import (
	"fmt"
	"os"

	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/sirupsen/logrus"
)

// Driver for pubsub using files alone: each topic is a directory of json
// files, one file per key. Subscribers pick up changes with a file watch.
// We always write to a file in order to have a checkpoint on restart.
// The special file name "restarted" inside a topic directory records that
// the publisher signalled its initial state is complete.

// FileDriver struct
type FileDriver struct {
	Logger *logrus.Logger
	Log    *base.LogObject
	// RootDir is prepended to all directory names; empty for the live
	// system. Tests set it to scope everything under a temporary directory.
	RootDir string
}

// Publisher creates the topic directory and returns a publisher for it
func (s *FileDriver) Publisher(global bool, name, topic string, persistent bool) (pubsub.DriverPublisher, error) {
	dirName := s.dirName(name, persistent)
	shouldPopulate := false
	if _, err := os.Stat(dirName); err != nil {
		s.Log.Functionf("Publisher create %s", dirName)
		if err := os.MkdirAll(dirName, 0700); err != nil {
			return nil, fmt.Errorf("Publisher(%s): %s", name, err)
		}
	} else {
		// Read existing status from dir
		shouldPopulate = true
	}
	return &Publisher{
		dirName:        dirName,
		shouldPopulate: shouldPopulate,
		name:           name,
		topic:          topic,
		logger:         s.Logger,
		log:            s.Log,
	}, nil
}

// Subscriber returns a subscriber watching the topic directory
func (s *FileDriver) Subscriber(global bool, name, topic string, persistent bool, C chan pubsub.Change) (pubsub.DriverSubscriber, error) {
	return &Subscriber{
		dirName: s.dirName(name, persistent),
		name:    name,
		topic:   topic,
		C:       C,
		logger:  s.Logger,
		log:     s.Log,
	}, nil
}

// DefaultName the name used when an agent name is not provided
func (s *FileDriver) DefaultName() string {
	return pubsub.Global
}

// The directory depends on whether the topic is persistent. Persistent
// topics survive a reboot; the rest live under /run.
func (s *FileDriver) dirName(name string, persistent bool) string {
	if persistent {
		return fmt.Sprintf("%s/persist/status/%s", s.RootDir, name)
	}
	return fmt.Sprintf("%s/run/%s", s.RootDir, name)
}
