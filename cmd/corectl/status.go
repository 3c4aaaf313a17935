// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package corectl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/lf-edge/coremgr/types"
	"github.com/spf13/cobra"
)

// statusReport is what `corectl status` prints, cores in core order
type statusReport struct {
	Cores   []types.CoreStatus
	Metrics *types.ControllerMetrics `json:",omitempty"`
}

func statusCmd(ctl *ctlContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "status [core]",
		Short: "Show what the controller last published",
		Long: `Show what the controller last published: per core online state,
load, frequency and error, plus the engine counters. With a core
number only that core is printed.

corectl status
corectl status 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				coreNum, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("core must be a number, got %q",
						args[0])
				}
				return ctl.printCore(coreNum)
			}
			return ctl.printStatus()
		},
	}
	return cmd
}

// printCore renders a single published CoreStatus
func (ctl *ctlContext) printCore(coreNum int) error {
	items, err := ctl.fetchAll(types.CoreStatus{})
	if err != nil {
		return err
	}
	key := types.CoreStatus{CoreNum: coreNum}.Key()
	item, ok := items[key]
	if !ok {
		return fmt.Errorf("core %d is not published, %d cores are",
			coreNum, len(items))
	}
	return printJSON(item)
}

// printStatus renders every core plus the engine counters
func (ctl *ctlContext) printStatus() error {
	items, err := ctl.fetchAll(types.CoreStatus{})
	if err != nil {
		return err
	}
	var report statusReport
	for _, item := range items {
		report.Cores = append(report.Cores, item.(types.CoreStatus))
	}
	sort.Slice(report.Cores, func(i, j int) bool {
		return report.Cores[i].CoreNum < report.Cores[j].CoreNum
	})

	metrics, err := ctl.fetchAll(types.ControllerMetrics{})
	if err != nil {
		return err
	}
	if item, ok := metrics[types.ControllerMetrics{}.Key()]; ok {
		m := item.(types.ControllerMetrics)
		report.Metrics = &m
	}
	if len(report.Cores) == 0 && report.Metrics == nil {
		return fmt.Errorf("nothing published by %s, is the controller running?",
			controllerAgent)
	}
	return printJSON(report)
}

func printJSON(item interface{}) error {
	b, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
