// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cpus provides access to the per-core time accounting,
// frequency and hotplug state of the CPUs present on the platform.
package cpus

// CPUControl gives the hotplug controller its view of the hardware:
// how many cores exist, what each core is doing, and the ability to
// bring individual cores online and offline.
// Implementations must be safe for use from multiple goroutines.
// There should be one implementation for every supported platform.
type CPUControl interface {
	// CoreCount returns the number of possible cores, including cores
	// which are currently offline. The count is probed once at startup
	// and never changes afterwards.
	CoreCount() int
	// ReadBusyIdle returns cumulative busy and wall clock time of one
	// core in microseconds. Both counters are monotonic while the core
	// stays online; they may reset when a core is brought back online.
	ReadBusyIdle(core int) (busyUs uint64, wallUs uint64, err error)
	// ReadFreqKHz returns the current clock frequency of one core in
	// kHz. The accurate source queries the hardware directly and may
	// be slower; the default source is the cached cpufreq value.
	ReadFreqKHz(core int, accurate bool) (uint32, error)
	// ReadRunnable returns the instantaneous number of runnable tasks
	// across the whole system.
	ReadRunnable() (uint32, error)
	// SetCoreOnline requests a hardware transition of one core.
	// Core 0 is refused. Failures are transient from the caller's
	// point of view; the true state is observable via OnlineMask.
	SetCoreOnline(core int, online bool) error
	// OnlineMask returns the hardware online state of every core,
	// indexed by core number.
	OnlineMask() ([]bool, error)
}
