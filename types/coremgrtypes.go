// Copyright (c) 2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lf-edge/coremgr/base"
	uuid "github.com/satori/go.uuid"
)

var nilUUID = uuid.UUID{}

// ThresholdRow is one row of a hotplug threshold table. The row index
// is the number of cores online at the time the row is consulted.
type ThresholdRow struct {
	Load uint32 // busy percent of wall time
	Freq uint32 // kHz
	RQ   uint32 // runnable tasks times 100
}

// ThresholdMatrix holds the scale-up and scale-down threshold tables.
// Up rows cover 1..CoreCount-1 online cores since a core can only be
// added while one is missing. Down rows cover 2..CoreCount since core 0
// never goes offline.
type ThresholdMatrix struct {
	CoreCount int
	Up        map[int]ThresholdRow
	Down      map[int]ThresholdRow
}

// NewThresholdMatrix returns the built-in thresholds for a machine
// with coreCount cores. The top rows carry a higher run queue bar so
// the last core comes and goes less eagerly than the middle ones.
func NewThresholdMatrix(coreCount int) ThresholdMatrix {
	matrix := ThresholdMatrix{
		CoreCount: coreCount,
		Up:        make(map[int]ThresholdRow),
		Down:      make(map[int]ThresholdRow),
	}
	for n := 1; n < coreCount; n++ {
		row := ThresholdRow{Load: 65, Freq: 702000, RQ: 200}
		if n == coreCount-1 {
			row.RQ = 300
		}
		matrix.Up[n] = row
	}
	for n := 2; n <= coreCount; n++ {
		row := ThresholdRow{Load: 30, Freq: 486000, RQ: 200}
		if n == coreCount {
			row.RQ = 300
		}
		matrix.Down[n] = row
	}
	return matrix
}

// ThresholdMatrixFromConfig assembles the threshold tables from the
// per-row global config items.
func ThresholdMatrixFromConfig(gcp *ConfigItemValueMap, coreCount int) ThresholdMatrix {
	matrix := ThresholdMatrix{
		CoreCount: coreCount,
		Up:        make(map[int]ThresholdRow),
		Down:      make(map[int]ThresholdRow),
	}
	for n := 1; n < coreCount; n++ {
		matrix.Up[n] = ThresholdRow{
			Load: gcp.GlobalValueInt(UpThresholdLoadKey(n)),
			Freq: gcp.GlobalValueInt(UpThresholdFreqKey(n)),
			RQ:   gcp.GlobalValueInt(UpThresholdRQKey(n)),
		}
	}
	for n := 2; n <= coreCount; n++ {
		matrix.Down[n] = ThresholdRow{
			Load: gcp.GlobalValueInt(DownThresholdLoadKey(n)),
			Freq: gcp.GlobalValueInt(DownThresholdFreqKey(n)),
			RQ:   gcp.GlobalValueInt(DownThresholdRQKey(n)),
		}
	}
	return matrix
}

// UpRow returns the scale-up thresholds to consult with onlineCores
// cores online. The bool is false when no row applies.
func (matrix ThresholdMatrix) UpRow(onlineCores int) (ThresholdRow, bool) {
	row, ok := matrix.Up[onlineCores]
	return row, ok
}

// DownRow returns the scale-down thresholds to consult with
// onlineCores cores online. The bool is false when no row applies.
func (matrix ThresholdMatrix) DownRow(onlineCores int) (ThresholdRow, bool) {
	row, ok := matrix.Down[onlineCores]
	return row, ok
}

// CoreStatus is published by coremgr, one item per present core.
type CoreStatus struct {
	CoreNum    int
	Online     bool
	UpEligible bool
	// BroughtUpBy is the core whose overload brought this one online,
	// -1 when it came up on its own.
	BroughtUpBy int
	// LastLoadPct is -1 until two busy/idle samples exist
	LastLoadPct    int
	LastFreqKHz    uint32
	LastChangeTime time.Time
	SessionID      uuid.UUID
	// ErrorAndTime provides SetErrorNow() and ClearError()
	ErrorAndTime
}

// Key returns the pubsub key for this core
func (status CoreStatus) Key() string {
	return fmt.Sprintf("core-%d", status.CoreNum)
}

// LogCreate :
func (status CoreStatus) LogCreate(logBase *base.LogObject) {
	logObject := base.NewLogObject(logBase, base.CoreStatusLogType, status.Key(),
		status.SessionID, status.LogKey())
	if logObject == nil {
		return
	}
	logObject.CloneAndAddField("online", status.Online).
		AddField("up-eligible", status.UpEligible).
		Noticef("Core status create")
}

// LogModify :
func (status CoreStatus) LogModify(logBase *base.LogObject, old interface{}) {
	logObject := base.EnsureLogObject(logBase, base.CoreStatusLogType, status.Key(),
		status.SessionID, status.LogKey())

	oldStatus, ok := old.(CoreStatus)
	if !ok {
		logObject.Clone().Fatalf("LogModify: Old object interface passed is not of CoreStatus type")
	}
	if status.Online == oldStatus.Online &&
		status.UpEligible == oldStatus.UpEligible &&
		status.BroughtUpBy == oldStatus.BroughtUpBy &&
		status.Error == oldStatus.Error {
		// Load and frequency refreshes are not worth a log entry
		return
	}
	logObject.CloneAndAddField("diff", cmp.Diff(oldStatus, status)).
		Noticef("Core status modify")
	if status.HasError() {
		errAndTime := status.ErrorAndTime
		logObject.CloneAndAddField("error", errAndTime.Error).
			AddField("error-time", errAndTime.ErrorTime).
			Errorf("Core status modify")
	}
}

// LogDelete :
func (status CoreStatus) LogDelete(logBase *base.LogObject) {
	logObject := base.EnsureLogObject(logBase, base.CoreStatusLogType, status.Key(),
		status.SessionID, status.LogKey())
	logObject.Noticef("Core status delete")

	base.DeleteLogObject(logBase, status.LogKey())
}

// LogKey :
func (status CoreStatus) LogKey() string {
	return string(base.CoreStatusLogType) + "-" + status.Key()
}

// ControllerMetrics counts what the hotplug engine has done since the
// agent started. Published under the fixed key "global".
type ControllerMetrics struct {
	Enabled     bool
	OnlineCores int

	TickCount     uint64
	UpRequested   uint64
	UpSucceeded   uint64
	UpFailed      uint64
	DownRequested uint64
	DownSucceeded uint64
	DownFailed    uint64
	DriftResyncs  uint64
	ConfigErrors  uint64

	LastRQAvg   uint32 // runnable tasks times 100
	PendingWork int

	SessionID uuid.UUID
	UpdatedAt time.Time
}

// Key returns the pubsub key for the singleton metrics object
func (metrics ControllerMetrics) Key() string {
	return "global"
}

// LogCreate :
func (config ConfigItemValueMap) LogCreate(logBase *base.LogObject) {
	logObject := base.NewLogObject(logBase, base.ConfigItemValueMapLogType, "",
		nilUUID, config.LogKey())
	if logObject == nil {
		return
	}
	logObject.Noticef("Global config create")
}

// LogModify :
func (config ConfigItemValueMap) LogModify(logBase *base.LogObject, old interface{}) {
	logObject := base.EnsureLogObject(logBase, base.ConfigItemValueMapLogType, "",
		nilUUID, config.LogKey())

	oldConfig, ok := old.(ConfigItemValueMap)
	if !ok {
		logObject.Clone().Fatalf("LogModify: Old object interface passed is not of ConfigItemValueMap type")
	}
	logObject.CloneAndAddField("diff", cmp.Diff(oldConfig, config)).
		Metricf("Global config modify")
}

// LogDelete :
func (config ConfigItemValueMap) LogDelete(logBase *base.LogObject) {
	logObject := base.EnsureLogObject(logBase, base.ConfigItemValueMapLogType, "",
		nilUUID, config.LogKey())
	logObject.Noticef("Global config delete")

	base.DeleteLogObject(logBase, config.LogKey())
}

// LogKey :
func (config ConfigItemValueMap) LogKey() string {
	return string(base.ConfigItemValueMapLogType)
}
