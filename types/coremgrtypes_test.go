// Copyright (c) 2020 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNewThresholdMatrix(t *testing.T) {
	matrix := NewThresholdMatrix(4)
	assert.Equal(t, 4, matrix.CoreCount)
	assert.Equal(t, 3, len(matrix.Up))
	assert.Equal(t, 3, len(matrix.Down))

	expectedUp := map[int]ThresholdRow{
		1: {Load: 65, Freq: 702000, RQ: 200},
		2: {Load: 65, Freq: 702000, RQ: 200},
		3: {Load: 65, Freq: 702000, RQ: 300},
	}
	expectedDown := map[int]ThresholdRow{
		2: {Load: 30, Freq: 486000, RQ: 200},
		3: {Load: 30, Freq: 486000, RQ: 200},
		4: {Load: 30, Freq: 486000, RQ: 300},
	}
	assert.True(t, cmp.Equal(expectedUp, matrix.Up), cmp.Diff(expectedUp, matrix.Up))
	assert.True(t, cmp.Equal(expectedDown, matrix.Down), cmp.Diff(expectedDown, matrix.Down))
}

func TestThresholdMatrixSmallCounts(t *testing.T) {
	// Two cores: one up row, one down row, both with the top bar
	matrix := NewThresholdMatrix(2)
	assert.Equal(t, map[int]ThresholdRow{1: {Load: 65, Freq: 702000, RQ: 300}},
		matrix.Up)
	assert.Equal(t, map[int]ThresholdRow{2: {Load: 30, Freq: 486000, RQ: 300}},
		matrix.Down)

	// A single core machine has nothing to decide
	matrix = NewThresholdMatrix(1)
	assert.Equal(t, 0, len(matrix.Up))
	assert.Equal(t, 0, len(matrix.Down))
}

func TestThresholdMatrixRows(t *testing.T) {
	matrix := NewThresholdMatrix(4)

	row, ok := matrix.UpRow(1)
	assert.True(t, ok)
	assert.Equal(t, uint32(65), row.Load)
	_, ok = matrix.UpRow(4)
	assert.False(t, ok)

	row, ok = matrix.DownRow(4)
	assert.True(t, ok)
	assert.Equal(t, uint32(300), row.RQ)
	_, ok = matrix.DownRow(1)
	assert.False(t, ok)
}

func TestThresholdMatrixFromConfig(t *testing.T) {
	gcp := DefaultConfigItemValueMap(4)

	// Defaults in the config map reproduce the built-in matrix
	matrix := ThresholdMatrixFromConfig(gcp, 4)
	assert.True(t, cmp.Equal(NewThresholdMatrix(4), matrix),
		cmp.Diff(NewThresholdMatrix(4), matrix))

	// A changed row flows through
	gcp.SetGlobalValueInt(UpThresholdLoadKey(2), 80)
	gcp.SetGlobalValueInt(DownThresholdFreqKey(3), 400000)
	matrix = ThresholdMatrixFromConfig(gcp, 4)
	assert.Equal(t, uint32(80), matrix.Up[2].Load)
	assert.Equal(t, uint32(400000), matrix.Down[3].Freq)
	assert.Equal(t, uint32(65), matrix.Up[1].Load)
}

func TestCoreStatusKey(t *testing.T) {
	status := CoreStatus{CoreNum: 2}
	assert.Equal(t, "core-2", status.Key())
	assert.Equal(t, "core_status-core-2", status.LogKey())
}

func TestControllerMetricsKey(t *testing.T) {
	metrics := ControllerMetrics{}
	assert.Equal(t, "global", metrics.Key())
}

func TestErrorAndTime(t *testing.T) {
	status := CoreStatus{CoreNum: 1}
	assert.False(t, status.HasError())

	status.SetErrorNow("failed to come online")
	assert.True(t, status.HasError())
	assert.Equal(t, "failed to come online", status.Error)
	assert.Equal(t, ErrorSeverityError, status.ErrorSeverity)
	assert.False(t, status.ErrorTime.IsZero())

	status.ClearError()
	assert.False(t, status.HasError())
	assert.True(t, status.ErrorTime.IsZero())
}
