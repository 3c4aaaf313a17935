// Copyright (c) 2026 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package corectl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lf-edge/coremgr/pubsub"
	"github.com/lf-edge/coremgr/types"
	"github.com/spf13/cobra"
)

// operatorConfigKey is the single pubsub key the configuration map is
// stored under
const operatorConfigKey = "global"

func configCmd(ctl *ctlContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "config",
		Short: "Read or write the controller configuration",
		Long: `Read or write the persisted controller configuration. The daemon
notices writes immediately, no restart is needed. Settings without a
stored value follow the built-in defaults.`,
	}
	cmd.AddCommand(configGetCmd(ctl))
	cmd.AddCommand(configSetCmd(ctl))
	cmd.AddCommand(configResetCmd(ctl))
	return cmd
}

func configGetCmd(ctl *ctlContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Show effective settings",
		Long: `Show the effective value of every setting, or of one key. Values
the operator stored are marked, the rest are built-in defaults.

corectl config get
corectl config get hotplug.rate.up`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stored, err := ctl.openOperatorConfig()
			if err != nil {
				return err
			}
			specMap := types.NewConfigItemSpecMap(ctl.coreCount())
			if len(args) == 1 {
				return printOneSetting(specMap, stored, args[0])
			}
			return printAllSettings(specMap, stored)
		},
	}
	return cmd
}

func configSetCmd(ctl *ctlContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Long: `Validate and store one setting. An out of range number is pinned
to the nearest bound; a malformed value is rejected and nothing
changes.

corectl config set hotplug.enable true
corectl config set hotplug.rate.up 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctl.setSetting(args[0], args[1])
		},
	}
	return cmd
}

func configResetCmd(ctl *ctlContext) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "reset <key>",
		Short: "Drop one stored setting",
		Long: `Drop one stored setting so the daemon follows the built-in default
again.

corectl config reset hotplug.rate.up`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctl.resetSetting(args[0])
		},
	}
	return cmd
}

// openOperatorConfig opens the persisted configuration topic and
// returns the stored map, empty when nothing was stored yet. Only the
// settings an operator touched are kept in the store; everything else
// follows the spec map defaults, including defaults that change in a
// later release.
func (ctl *ctlContext) openOperatorConfig() (pubsub.Publication, *types.ConfigItemValueMap, error) {
	pub, err := ctl.ps.NewPublication(pubsub.PublicationOptions{
		AgentName:  agentName,
		TopicType:  types.ConfigItemValueMap{},
		Persistent: true,
	})
	if err != nil {
		return nil, nil, err
	}
	stored := types.NewConfigItemValueMap()
	if item, err := pub.Get(operatorConfigKey); err == nil {
		m := item.(types.ConfigItemValueMap)
		stored.UpdateItemValues(&m)
	}
	return pub, stored, nil
}

// setSetting validates one key and value through the spec map and
// persists the updated map for the daemon to pick up
func (ctl *ctlContext) setSetting(key, value string) error {
	pub, stored, err := ctl.openOperatorConfig()
	if err != nil {
		return err
	}
	specMap := types.NewConfigItemSpecMap(ctl.coreCount())
	updated := types.NewConfigItemValueMap()
	updated.UpdateItemValues(stored)
	item, err := specMap.ParseItem(updated, stored, key, value)
	if err != nil {
		return fmt.Errorf("%s: %v", key, err)
	}
	if err := pub.Publish(operatorConfigKey, *updated); err != nil {
		return err
	}
	if got := item.StringValue(); got != value {
		fmt.Printf("%s = %s (requested %s)\n", key, got, value)
	} else {
		fmt.Printf("%s = %s\n", key, got)
	}
	return nil
}

// resetSetting removes a stored value; defaults need no storage
func (ctl *ctlContext) resetSetting(key string) error {
	pub, stored, err := ctl.openOperatorConfig()
	if err != nil {
		return err
	}
	specMap := types.NewConfigItemSpecMap(ctl.coreCount())
	var effective string
	if strings.HasPrefix(key, "agent.") {
		agent, asKey, err := splitAgentKey(key)
		if err != nil {
			return err
		}
		spec, ok := specMap.AgentSettings[asKey]
		if !ok {
			return fmt.Errorf("unknown per agent setting %q", asKey)
		}
		stored.DelAgentValue(asKey, agent)
		effective = spec.DefaultValue().StringValue()
	} else {
		gsKey := types.GlobalSettingKey(key)
		spec, ok := specMap.GlobalSettings[gsKey]
		if !ok {
			return fmt.Errorf("unknown setting %q", key)
		}
		delete(stored.GlobalSettings, gsKey)
		effective = spec.DefaultValue().StringValue()
	}
	if err := pub.Publish(operatorConfigKey, *stored); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, effective)
	return nil
}

// printOneSetting shows the effective value of a single key
func printOneSetting(specMap types.ConfigItemSpecMap,
	stored *types.ConfigItemValueMap, key string) error {

	if strings.HasPrefix(key, "agent.") {
		agent, asKey, err := splitAgentKey(key)
		if err != nil {
			return err
		}
		spec, ok := specMap.AgentSettings[asKey]
		if !ok {
			return fmt.Errorf("unknown per agent setting %q", asKey)
		}
		if settings, ok := stored.AgentSettings[agent]; ok {
			if item, ok := settings[asKey]; ok {
				fmt.Println(item.StringValue())
				return nil
			}
		}
		fmt.Println(spec.DefaultValue().StringValue())
		return nil
	}
	gsKey := types.GlobalSettingKey(key)
	spec, ok := specMap.GlobalSettings[gsKey]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if item, ok := stored.GlobalSettings[gsKey]; ok {
		fmt.Println(item.StringValue())
		return nil
	}
	fmt.Println(spec.DefaultValue().StringValue())
	return nil
}

// printAllSettings lists every known setting with its effective value
func printAllSettings(specMap types.ConfigItemSpecMap,
	stored *types.ConfigItemValueMap) error {

	keys := make([]string, 0, len(specMap.GlobalSettings))
	for key := range specMap.GlobalSettings {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	for _, key := range keys {
		gsKey := types.GlobalSettingKey(key)
		if item, ok := stored.GlobalSettings[gsKey]; ok {
			fmt.Printf("%-36s %s (stored)\n", key, item.StringValue())
			continue
		}
		def := specMap.GlobalSettings[gsKey].DefaultValue()
		fmt.Printf("%-36s %s\n", key, def.StringValue())
	}

	// Per agent settings only show up once stored
	agents := make([]string, 0, len(stored.AgentSettings))
	for agent := range stored.AgentSettings {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		settings := stored.AgentSettings[agent]
		asKeys := make([]string, 0, len(settings))
		for asKey := range settings {
			asKeys = append(asKeys, string(asKey))
		}
		sort.Strings(asKeys)
		for _, asKey := range asKeys {
			item := settings[types.AgentSettingKey(asKey)]
			fmt.Printf("%-36s %s (stored)\n",
				"agent."+agent+"."+asKey, item.StringValue())
		}
	}
	return nil
}

// splitAgentKey splits agent.<name>.<setting> into its parts
func splitAgentKey(key string) (string, types.AgentSettingKey, error) {
	components := strings.Split(key, ".")
	if len(components) <= 2 {
		return "", "", fmt.Errorf(
			"per agent settings look like agent.<name>.<setting>, got %q",
			key)
	}
	agent := components[1]
	asKey := types.AgentSettingKey(strings.Join(components[2:], "."))
	return agent, asKey, nil
}
