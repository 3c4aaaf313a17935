// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package cpus

import (
	"fmt"
	"sync"
)

// MockCPUControl is used for unit testing.
type MockCPUControl struct {
	sync.Mutex

	cores     []MockCore
	runnable  uint32
	onlineErr map[int]error
	writes    []CoreWrite
}

// MockCore is the simulated state of one core.
type MockCore struct {
	Online  bool
	BusyUs  uint64
	WallUs  uint64
	FreqKHz uint32
}

// CoreWrite records one SetCoreOnline call.
type CoreWrite struct {
	Core   int
	Online bool
}

// SetCores installs the simulated topology, replacing any previous one.
func (m *MockCPUControl) SetCores(cores []MockCore) {
	m.Lock()
	defer m.Unlock()
	m.cores = make([]MockCore, len(cores))
	copy(m.cores, cores)
}

// UpdateCore overwrites the state of a single simulated core.
func (m *MockCPUControl) UpdateCore(core int, state MockCore) {
	m.Lock()
	defer m.Unlock()
	m.cores[core] = state
}

// AdvanceCore adds busy and wall time to a core's counters.
func (m *MockCPUControl) AdvanceCore(core int, busyUs, wallUs uint64) {
	m.Lock()
	defer m.Unlock()
	m.cores[core].BusyUs += busyUs
	m.cores[core].WallUs += wallUs
}

// SetRunnable sets the simulated system-wide runnable task count.
func (m *MockCPUControl) SetRunnable(count uint32) {
	m.Lock()
	defer m.Unlock()
	m.runnable = count
}

// FailSetOnline makes SetCoreOnline fail for the given core.
func (m *MockCPUControl) FailSetOnline(core int, err error) {
	m.Lock()
	defer m.Unlock()
	if m.onlineErr == nil {
		m.onlineErr = make(map[int]error)
	}
	m.onlineErr[core] = err
}

// CoreWrites returns all SetCoreOnline calls made so far, including
// refused and failed ones.
func (m *MockCPUControl) CoreWrites() []CoreWrite {
	m.Lock()
	defer m.Unlock()
	writes := make([]CoreWrite, len(m.writes))
	copy(writes, m.writes)
	return writes
}

// CoreCount returns the simulated core count.
func (m *MockCPUControl) CoreCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.cores)
}

// ReadBusyIdle returns the simulated counters of one core.
func (m *MockCPUControl) ReadBusyIdle(core int) (uint64, uint64, error) {
	m.Lock()
	defer m.Unlock()
	if core < 0 || core >= len(m.cores) {
		return 0, 0, fmt.Errorf("no such core %d", core)
	}
	return m.cores[core].BusyUs, m.cores[core].WallUs, nil
}

// ReadFreqKHz returns the simulated frequency of one core.
func (m *MockCPUControl) ReadFreqKHz(core int, accurate bool) (uint32, error) {
	m.Lock()
	defer m.Unlock()
	if core < 0 || core >= len(m.cores) {
		return 0, fmt.Errorf("no such core %d", core)
	}
	return m.cores[core].FreqKHz, nil
}

// ReadRunnable returns the simulated runnable task count.
func (m *MockCPUControl) ReadRunnable() (uint32, error) {
	m.Lock()
	defer m.Unlock()
	return m.runnable, nil
}

// SetCoreOnline mirrors the Linux implementation: core 0 is refused,
// injected errors are returned, successful calls update the state.
func (m *MockCPUControl) SetCoreOnline(core int, online bool) error {
	m.Lock()
	defer m.Unlock()
	m.writes = append(m.writes, CoreWrite{Core: core, Online: online})
	if core == 0 {
		return fmt.Errorf("refusing to change online state of CPU 0")
	}
	if core < 0 || core >= len(m.cores) {
		return fmt.Errorf("no such core %d", core)
	}
	if err := m.onlineErr[core]; err != nil {
		return err
	}
	m.cores[core].Online = online
	return nil
}

// OnlineMask returns the simulated online state of every core.
func (m *MockCPUControl) OnlineMask() ([]bool, error) {
	m.Lock()
	defer m.Unlock()
	mask := make([]bool, len(m.cores))
	for i := range m.cores {
		mask[i] = m.cores[i].Online
	}
	return mask, nil
}
