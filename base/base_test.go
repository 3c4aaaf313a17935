// Copyright (c) 2019-2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type testCore struct {
	CoreNum int
	Online  bool
}

func (c testCore) LogKey() string {
	return fmt.Sprintf("testcore-%d", c.CoreNum)
}

func (c testCore) LogCreate(logBase *LogObject) {
	logObject := EnsureLogObject(logBase, CoreStatusLogType,
		fmt.Sprintf("cpu%d", c.CoreNum), uuid.UUID{}, c.LogKey())
	logObject.CloneAndAddField("core_num", c.CoreNum).
		AddField("online", c.Online).Noticef("core added")
}

func (c testCore) LogModify(logBase *LogObject, old interface{}) {
	logObject := EnsureLogObject(logBase, CoreStatusLogType,
		fmt.Sprintf("cpu%d", c.CoreNum), uuid.UUID{}, c.LogKey())
	logObject.CloneAndAddField("core_num", c.CoreNum).
		AddField("online", c.Online).Noticef("core changed")
}

func (c testCore) LogDelete(logBase *LogObject) {
	logObject := EnsureLogObject(logBase, CoreStatusLogType,
		fmt.Sprintf("cpu%d", c.CoreNum), uuid.UUID{}, c.LogKey())
	logObject.CloneAndAddField("core_num", c.CoreNum).
		AddField("online", c.Online).Noticef("core removed")
	DeleteLogObject(logBase, c.LogKey())
}

func TestObjectEventLogging(t *testing.T) {
	logger := logrus.New()
	formatter := logrus.JSONFormatter{DisableTimestamp: true}
	logger.SetFormatter(&formatter)
	logBuffer := bytes.NewBuffer(nil)
	logger.SetOutput(logBuffer)
	pid := os.Getpid()
	logBase := NewSourceLogObject(logger, "basetest", pid)

	core := testCore{CoreNum: 2, Online: true}

	testMatrix := map[string]struct {
		action string
		msg    string
	}{
		"Add core": {
			action: "create",
			msg:    "core added",
		},
		"Change core": {
			action: "modify",
			msg:    "core changed",
		},
		"Remove core": {
			action: "delete",
			msg:    "core removed",
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		logBuffer.Reset()
		switch test.action {
		case "create":
			core.LogCreate(logBase)
		case "modify":
			core.LogModify(logBase, "old core")
		case "delete":
			core.LogDelete(logBase)
		}
		expected := fmt.Sprintf("{\"core_num\":2,\"level\":\"info\",\"log_event_type\":\"log\",\"msg\":\"%s\",\"obj_key\":\"testcore-2\",\"obj_name\":\"cpu2\",\"obj_type\":\"core_status\",\"online\":true,\"pid\":%d,\"source\":\"basetest\"}",
			test.msg, pid)
		assert.Equal(t, expected, strings.TrimSpace(logBuffer.String()))
	}
}

func TestLockedStringMap(t *testing.T) {
	m := NewLockedStringMap()
	m.Store("a", 1)
	m.Store("b", 2)
	val, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, val)
	_, ok = m.Load("missing")
	assert.False(t, ok)

	seen := make(map[string]interface{})
	m.Range(func(key string, val interface{}) bool {
		seen[key] = val
		return true
	})
	assert.Len(t, seen, 2)

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)
}
