// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package cpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/lf-edge/coremgr/base"
	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/load"
	"github.com/spf13/afero"
)

const (
	sysfsCPUBasePath = "/sys/devices/system/cpu"

	// Frequency sources under cpuN/. scaling_cur_freq is the cached
	// cpufreq view; cpuinfo_cur_freq asks the hardware and may need
	// extra privileges.
	scalingCurFreq = "cpufreq/scaling_cur_freq"
	cpuinfoCurFreq = "cpufreq/cpuinfo_cur_freq"
	onlineAttr     = "online"
)

// LinuxCPUControl implements CPUControl on top of sysfs and procfs.
type LinuxCPUControl struct {
	log       *base.LogObject
	fs        afero.Fs
	sysfsRoot string
	proc      procfs.FS
	coreCount int
}

// NewLinuxCPUControl probes the CPU topology once and returns an
// accessor for the real sysfs and procfs trees.
func NewLinuxCPUControl(log *base.LogObject) (*LinuxCPUControl, error) {
	cc := &LinuxCPUControl{
		log:       log,
		fs:        afero.NewOsFs(),
		sysfsRoot: sysfsCPUBasePath,
	}
	proc, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open /proc: %w", err)
	}
	cc.proc = proc
	count, err := cc.probeTopology()
	if err != nil {
		return nil, err
	}
	cc.coreCount = count
	log.Functionf("Probed %d possible cores", count)
	return cc, nil
}

// probeTopology prefers the sysfs possible cpulist since it covers
// cores which are currently offline; /proc/cpuinfo based probing only
// sees online cores.
func (cc *LinuxCPUControl) probeTopology() (int, error) {
	filename := filepath.Join(cc.sysfsRoot, "possible")
	data, err := afero.ReadFile(cc.fs, filename)
	if err == nil {
		count, perr := parseCPUList(strings.TrimSpace(string(data)))
		if perr == nil {
			return count, nil
		}
		cc.log.Errorf("failed to parse %s: %v", filename, perr)
	}
	cpuInfo, err := ghw.CPU()
	if err != nil {
		return 0, fmt.Errorf("failed to probe CPU topology: %w", err)
	}
	count := int(cpuInfo.TotalThreads)
	if count == 0 {
		return 0, fmt.Errorf("CPU topology reports no logical processors")
	}
	return count, nil
}

// parseCPUList returns the number of cores covered by a kernel cpulist
// string such as "0-3" or "0,2-5".
func parseCPUList(list string) (int, error) {
	if list == "" {
		return 0, fmt.Errorf("empty cpulist")
	}
	maxCore := -1
	for _, token := range strings.Split(list, ",") {
		bounds := strings.Split(token, "-")
		core, err := strconv.Atoi(bounds[len(bounds)-1])
		if err != nil {
			return 0, fmt.Errorf("failed to parse cpulist entry %q: %w",
				token, err)
		}
		if core > maxCore {
			maxCore = core
		}
	}
	return maxCore + 1, nil
}

func (cc *LinuxCPUControl) cpuPath(core int, resource string) string {
	return filepath.Join(cc.sysfsRoot, fmt.Sprintf("cpu%d", core), resource)
}

// CoreCount returns the possible core count fixed at probe time.
func (cc *LinuxCPUControl) CoreCount() int {
	return cc.coreCount
}

// ReadBusyIdle returns cumulative busy and wall clock time of a core
// in microseconds, derived from the per-CPU line of /proc/stat.
func (cc *LinuxCPUControl) ReadBusyIdle(core int) (uint64, uint64, error) {
	stat, err := cc.proc.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read kernel stat: %w", err)
	}
	cpuStat, ok := stat.CPU[int64(core)]
	if !ok {
		return 0, 0, fmt.Errorf("no stat entry for CPU %d", core)
	}
	wallSec := cpuStat.User + cpuStat.Nice + cpuStat.System + cpuStat.Idle +
		cpuStat.Iowait + cpuStat.IRQ + cpuStat.SoftIRQ + cpuStat.Steal
	idleSec := cpuStat.Idle + cpuStat.Iowait
	return uint64((wallSec - idleSec) * 1e6), uint64(wallSec * 1e6), nil
}

// ReadFreqKHz returns the current clock frequency of a core in kHz.
func (cc *LinuxCPUControl) ReadFreqKHz(core int, accurate bool) (uint32, error) {
	resource := scalingCurFreq
	if accurate {
		resource = cpuinfoCurFreq
	}
	data, err := afero.ReadFile(cc.fs, cc.cpuPath(core, resource))
	if err != nil {
		return 0, fmt.Errorf("failed to read current frequency for CPU %d: %w",
			core, err)
	}
	freq, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse frequency for CPU %d: %w",
			core, err)
	}
	return base.ClampToUint32(freq), nil
}

// ReadRunnable returns the system-wide runnable task count from the
// procs_running line of /proc/stat.
func (cc *LinuxCPUControl) ReadRunnable() (uint32, error) {
	misc, err := load.Misc()
	if err != nil {
		return 0, fmt.Errorf("failed to read runnable task count: %w", err)
	}
	return uint32(misc.ProcsRunning), nil
}

// SetCoreOnline writes the online attribute of a core. Core 0 is
// refused; offlining the boot core is never meaningful for us even on
// kernels which allow it.
func (cc *LinuxCPUControl) SetCoreOnline(core int, online bool) error {
	if core == 0 {
		return fmt.Errorf("refusing to change online state of CPU 0")
	}
	value := "0"
	if online {
		value = "1"
	}
	filename := cc.cpuPath(core, onlineAttr)
	if err := afero.WriteFile(cc.fs, filename, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to set CPU %d online=%t: %w",
			core, online, err)
	}
	return nil
}

// OnlineMask returns the hardware online state of every possible core.
func (cc *LinuxCPUControl) OnlineMask() ([]bool, error) {
	mask := make([]bool, cc.coreCount)
	for core := 0; core < cc.coreCount; core++ {
		online, err := cc.readOnline(core)
		if err != nil {
			return nil, err
		}
		mask[core] = online
	}
	return mask, nil
}

func (cc *LinuxCPUControl) readOnline(core int) (bool, error) {
	data, err := afero.ReadFile(cc.fs, cc.cpuPath(core, onlineAttr))
	if err != nil && os.IsNotExist(err) {
		// Cores the kernel does not allow to hotplug, typically
		// CPU 0, have no online attribute and are always online.
		dir := filepath.Join(cc.sysfsRoot, fmt.Sprintf("cpu%d", core))
		exists, derr := afero.DirExists(cc.fs, dir)
		if derr == nil && exists {
			return true, nil
		}
		return false, fmt.Errorf("no sysfs entry for CPU %d", core)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read online state of CPU %d: %w",
			core, err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}
