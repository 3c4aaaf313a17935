// Copyright (c) 2018 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ConfigItemStatus - Status of Config Items
type ConfigItemStatus struct {
	// Value - Current value of the item
	Value string
	// Err - Error from last config. nil if no error.
	Err error
}

// GlobalStatus - Status of Global Config Items.
type GlobalStatus struct {
	ConfigItems        map[string]ConfigItemStatus
	UnknownConfigItems map[string]ConfigItemStatus
}

// NewGlobalStatus - Creates a new global status
func NewGlobalStatus() *GlobalStatus {
	newGlobalStatus := GlobalStatus{}
	newGlobalStatus.ConfigItems = make(map[string]ConfigItemStatus)
	newGlobalStatus.UnknownConfigItems = make(map[string]ConfigItemStatus)
	return &newGlobalStatus
}

// setItemValue - Sets value for the key. Expects a valid key. asserts if
//  the key is not found.
func (gs *GlobalStatus) setItemValue(key, value string) {
	item := gs.ConfigItems[key]
	item.Value = value
	gs.ConfigItems[key] = item
}

// SetItemError - Records the last apply error for the key
func (gs *GlobalStatus) SetItemError(key string, err error) {
	item := gs.ConfigItems[key]
	item.Err = err
	gs.ConfigItems[key] = item
}

// UpdateItemValuesFromGlobalConfig - Update values of ConfigItems from
// globalConfig
func (gs *GlobalStatus) UpdateItemValuesFromGlobalConfig(gc ConfigItemValueMap) {
	for key, val := range gc.GlobalSettings {
		gs.setItemValue(string(key), val.StringValue())
	}

	for agentName, agentSettingMap := range gc.AgentSettings {
		for setting, value := range agentSettingMap {
			key := "agent." + agentName + "." + string(setting)
			gs.setItemValue(key, value.StringValue())
		}
	}
}

// GlobalConfig is used for log levels and hotplug tunables which are
// preserved across reboots.

// Agents subscribe to this info to get at least the log levels
// All intervals are in the units called out per key.

// GlobalSettingKey - Constants of all global setting keys
type GlobalSettingKey string

// Try to keep the GlobalSettingKey consts in the same order as in
// NewConfigItemSpecMap
const (

	// Int Items
	// SamplingInterval global setting key, in microseconds
	SamplingInterval GlobalSettingKey = "hotplug.sampling.interval"
	// UpRate global setting key
	UpRate GlobalSettingKey = "hotplug.rate.up"
	// DownRate global setting key
	DownRate GlobalSettingKey = "hotplug.rate.down"
	// MaxOnlineCores global setting key
	MaxOnlineCores GlobalSettingKey = "hotplug.cores.max"
	// MetricInterval global setting key, in seconds
	MetricInterval GlobalSettingKey = "timer.metric.interval"

	// Bool Items
	// HotplugEnabled global setting key
	HotplugEnabled GlobalSettingKey = "hotplug.enable"
	// AccurateFrequency global setting key
	AccurateFrequency GlobalSettingKey = "hotplug.frequency.accurate"

	// String Items
	// DefaultLogLevel global setting key
	DefaultLogLevel GlobalSettingKey = "debug.default.loglevel"
)

// The threshold tables are keyed by the number of cores currently
// online, so their setting keys are built rather than declared.

// UpThresholdLoadKey - scale-up load threshold for n cores online
func UpThresholdLoadKey(n int) GlobalSettingKey {
	return GlobalSettingKey(fmt.Sprintf("hotplug.threshold.up.load.%d", n))
}

// UpThresholdFreqKey - scale-up frequency threshold for n cores online
func UpThresholdFreqKey(n int) GlobalSettingKey {
	return GlobalSettingKey(fmt.Sprintf("hotplug.threshold.up.freq.%d", n))
}

// UpThresholdRQKey - scale-up run queue threshold for n cores online
func UpThresholdRQKey(n int) GlobalSettingKey {
	return GlobalSettingKey(fmt.Sprintf("hotplug.threshold.up.rq.%d", n))
}

// DownThresholdLoadKey - scale-down load threshold for n cores online
func DownThresholdLoadKey(n int) GlobalSettingKey {
	return GlobalSettingKey(fmt.Sprintf("hotplug.threshold.down.load.%d", n))
}

// DownThresholdFreqKey - scale-down frequency threshold for n cores online
func DownThresholdFreqKey(n int) GlobalSettingKey {
	return GlobalSettingKey(fmt.Sprintf("hotplug.threshold.down.freq.%d", n))
}

// DownThresholdRQKey - scale-down run queue threshold for n cores online
func DownThresholdRQKey(n int) GlobalSettingKey {
	return GlobalSettingKey(fmt.Sprintf("hotplug.threshold.down.rq.%d", n))
}

// AgentSettingKey - keys for per-agent settings
type AgentSettingKey string

const (
	// LogLevel agent setting key
	LogLevel AgentSettingKey = "debug.loglevel"
)

// ConfigItemType - Defines what type of item we are storing
type ConfigItemType uint8

const (
	// ConfigItemTypeInt - for config item's who's value is an integer
	ConfigItemTypeInt ConfigItemType = iota + 1
	// ConfigItemTypeBool - for config item's who's value is a boolean
	ConfigItemTypeBool
	// ConfigItemTypeString - for config item's who's value is a string
	ConfigItemTypeString
)

// ConfigItemSpec - Defines what a specification for a configuration should be
type ConfigItemSpec struct {
	Key      string
	ItemType ConfigItemType

	IntMin     uint32
	IntMax     uint32
	IntDefault uint32

	StringValidator Validator
	StringDefault   string
	BoolDefault     bool
}

// DefaultValue - Creates default value from a spec
func (configSpec ConfigItemSpec) DefaultValue() ConfigItemValue {
	var item ConfigItemValue
	item.Key = configSpec.Key
	item.ItemType = configSpec.ItemType
	switch configSpec.ItemType {
	case ConfigItemTypeBool:
		item.BoolValue = configSpec.BoolDefault
	case ConfigItemTypeInt:
		item.IntValue = configSpec.IntDefault
	case ConfigItemTypeString:
		item.StrValue = configSpec.StringDefault
	}
	return item
}

// Validator - pass in function to validate a string
type Validator func(string) error

// ConfigItemSpecMap - Map of all specifications
type ConfigItemSpecMap struct {
	// GlobalSettings - Map Key: GlobalSettingKey, ConfigItemValue.Key: GlobalSettingKey
	GlobalSettings map[GlobalSettingKey]ConfigItemSpec
	// AgentSettingKey - Map Key: AgentSettingKey, ConfigItemValue.Key: AgentSettingKey
	AgentSettings map[AgentSettingKey]ConfigItemSpec
}

// AddIntItem - Adds integer item to specMap
func (specMap *ConfigItemSpecMap) AddIntItem(key GlobalSettingKey,
	defaultInt uint32, min uint32, max uint32) {
	if defaultInt < min || defaultInt > max {
		log.Fatalf("Adding int item %s failed. Value does not meet given min/max criteria", key)
	}
	configItem := ConfigItemSpec{
		ItemType:   ConfigItemTypeInt,
		Key:        string(key),
		IntDefault: defaultInt,
		IntMin:     min,
		IntMax:     max,
	}
	specMap.GlobalSettings[key] = configItem
	log.Debugf("Added int item. Key: %s, Val: %+v", key, configItem)
}

// AddBoolItem - Adds boolean item to specMap
func (specMap *ConfigItemSpecMap) AddBoolItem(key GlobalSettingKey, defaultBool bool) {
	configItem := ConfigItemSpec{
		ItemType:    ConfigItemTypeBool,
		Key:         string(key),
		BoolDefault: defaultBool,
	}
	specMap.GlobalSettings[key] = configItem
	log.Debugf("Added bool item %s", key)
}

// AddStringItem - Adds string item to specMap
func (specMap *ConfigItemSpecMap) AddStringItem(key GlobalSettingKey, defaultString string, validator Validator) {
	err := validator(defaultString)
	if err != nil {
		log.Fatalf("AddStringItem: key %s, default (%s) Failed "+
			"validator. err: %s", key, defaultString, err)
	}
	configItem := ConfigItemSpec{
		ItemType:        ConfigItemTypeString,
		Key:             string(key),
		StringDefault:   defaultString,
		StringValidator: validator,
	}
	specMap.GlobalSettings[key] = configItem
	log.Debugf("Added string item %s", key)
}

// AddAgentSettingStringItem - Adds string item for a per-agent setting
func (specMap *ConfigItemSpecMap) AddAgentSettingStringItem(key AgentSettingKey,
	defaultString string, validator Validator) {
	err := validator(defaultString)
	if err != nil {
		log.Fatalf("AddAgentSettingStringItem: key %s, default (%s) Failed "+
			"validator. err: %s", key, defaultString, err)
	}
	configItem := ConfigItemSpec{
		ItemType:        ConfigItemTypeString,
		Key:             string(key),
		StringDefault:   defaultString,
		StringValidator: validator,
	}
	specMap.AgentSettings[key] = configItem
	log.Debugf("Added agent setting item %s", key)
}

func (specMap *ConfigItemSpecMap) parseAgentItem(
	newConfigMap *ConfigItemValueMap, oldConfigMap *ConfigItemValueMap,
	key string, value string) (ConfigItemValue, error) {
	// per-agent setting key agent.<agentname>.debug.xxx
	log.Debugf("ParseItem: Agent Item. key: %s, Value: %s", key, value)

	// Get Key and AgentName
	components := strings.Split(key, ".")
	if len(components) <= 2 {
		err := fmt.Errorf("Unable to find agent name for per-agent setting. "+
			"Key: %s", key)
		log.Errorf("***parseAgentItem: ERROR: %s", err)
		return ConfigItemValue{}, err
	}
	agentName := components[1]
	asKey := AgentSettingKey(strings.Join(components[2:], "."))
	itemSpec, ok := specMap.AgentSettings[asKey]
	if !ok {
		err := fmt.Errorf("Cannot find key (%s) in AgentSettings. KeyStr: %s",
			asKey, key)
		log.Errorf("***parseAgentItem: ERROR: %s", err)
		return ConfigItemValue{}, err
	}
	val, err := itemSpec.parseValue(value)
	if err == nil {
		newConfigMap.setAgentSettingValue(agentName, asKey, val)
		log.Debugf("parseAgentItem: Successfully parsed Agent Setting. "+
			"Agent: %s, key: %s, Value: %s", agentName, asKey, value)
		return val, nil
	}
	// Parse Error. Get the Value from old config
	existingValue, asErr := oldConfigMap.agentConfigItemValue(agentName, asKey)
	if asErr == nil {
		newConfigMap.setAgentSettingValue(agentName, asKey, existingValue)
		log.Errorf("***parseAgentItem: Error parsing agent setting - "+
			"agentName: %s, Key: %s. Using Existing Value: %+v",
			agentName, asKey, existingValue)
		return existingValue, err
	}
	// No Existing Value for Agent. It will use the default value.
	log.Errorf("***parseAgentItem: Error parsing agent setting - "+
		"agentName: %s, Key: %s. No Existing Value Either. Use Default",
		agentName, asKey)
	return ConfigItemValue{}, err
}

// ParseItem - Parses the Key/Value pair into a ConfigItem and updates
//  newConfigMap. If there is a Parse error, it copies the corresponding value
//  from oldConfigMap
func (specMap *ConfigItemSpecMap) ParseItem(newConfigMap *ConfigItemValueMap,
	oldConfigMap *ConfigItemValueMap,
	key string, value string) (ConfigItemValue, error) {
	if strings.HasPrefix(key, "agent.") {
		return specMap.parseAgentItem(newConfigMap, oldConfigMap, key, value)
	}
	gsKey := GlobalSettingKey(key)
	itemSpec, ok := specMap.GlobalSettings[gsKey]
	if !ok {
		err := fmt.Errorf("ParseItem: Item is neither a global nor a "+
			"per-agent setting. Key: %s, Value: %s", key, value)
		log.Errorf("ParseItem: ERROR: %s", err)
		return ConfigItemValue{}, err
	}
	// Global Setting
	log.Debugf("ParseItem: Global Setting. key: %s, Value: %s", key, value)
	val, err := itemSpec.parseValue(value)
	if err == nil {
		newConfigMap.GlobalSettings[gsKey] = val
		log.Debugf("ParseItem: Successfully parsed Global Setting. "+
			"key: %s, Value: %s", key, value)
		return val, nil
	}
	// Parse Error. Get the Value from old config
	existingValue, ok := oldConfigMap.GlobalSettings[gsKey]
	if !ok {
		existingValue = itemSpec.DefaultValue()
		log.Errorf("**ParseItem: Can't find existing value for Key: %s"+
			". Using default value ( %+v)", key, existingValue)
	}
	newConfigMap.GlobalSettings[gsKey] = existingValue
	log.Errorf("ParseItem: Error in parsing Item. Replacing it with "+
		"existing Value. key: %s, value: %s, Existing Value: %+v. "+
		"Err: %s", key, value, existingValue, err)
	return existingValue, err
}

// ConfigItemValue - Stores the value of a setting
type ConfigItemValue struct {
	Key      string
	ItemType ConfigItemType

	IntValue  uint32
	StrValue  string
	BoolValue bool
}

// StringValue - Returns the value in String Format
func (val ConfigItemValue) StringValue() string {
	switch val.ItemType {
	case ConfigItemTypeBool:
		return fmt.Sprintf("%t", val.BoolValue)
	case ConfigItemTypeInt:
		return fmt.Sprintf("%d", val.IntValue)
	case ConfigItemTypeString:
		return val.StrValue
	default:
		return fmt.Sprintf("UnknownType(%d)", val.ItemType)
	}
}

// ConfigItemValueMap - Maps both agent and global settings
type ConfigItemValueMap struct {
	// GlobalSettings - Map Key: GlobalSettingKey, ConfigItemValue.Key: GlobalSettingKey
	GlobalSettings map[GlobalSettingKey]ConfigItemValue
	// AgentSettings - Map Outer Key: agentName, Map Inner Key: AgentSettingKey ConfigItemValue.Key: AgentSettingKey
	AgentSettings map[string]map[AgentSettingKey]ConfigItemValue
}

func (configPtr *ConfigItemValueMap) globalConfigItemValue(
	key GlobalSettingKey) ConfigItemValue {
	val, okVal := configPtr.GlobalSettings[key]
	if okVal {
		return val
	}
	// Return Default Value
	specMap := NewConfigItemSpecMap(0)
	spec, ok := specMap.GlobalSettings[key]
	if ok {
		return spec.DefaultValue()
	}
	log.Fatalf("globalConfigItemValue - Invalid key: %s", key)
	return spec.DefaultValue()
}

func (configPtr *ConfigItemValueMap) agentConfigItemValue(agentName string,
	key AgentSettingKey) (ConfigItemValue, error) {
	agent, ok := configPtr.AgentSettings[agentName]
	var blankValue = ConfigItemValue{}
	if ok {
		val, ok := agent[key]
		if ok {
			return val, nil
		}
		return blankValue, fmt.Errorf("Failed to find %s settings for %s", string(key), agentName)
	}
	return blankValue, fmt.Errorf("Failed to find any per-agent settings for agent %s", agentName)
}

// AgentSettingStringValue - Gets the value of a per-agent setting for a certain agentname and per-agent key
func (configPtr *ConfigItemValueMap) AgentSettingStringValue(agentName string, agentSettingKey AgentSettingKey) string {
	val, err := configPtr.agentConfigItemValue(agentName, agentSettingKey)
	if err != nil {
		return ""
	}
	if val.ItemType != ConfigItemTypeString {
		log.Fatalf("Agent setting is not of type string. agent-name %s, agentSettingKey %s",
			agentName, string(agentSettingKey))
	}
	return val.StrValue
}

// GlobalValueInt - Gets a int global setting value
func (configPtr *ConfigItemValueMap) GlobalValueInt(key GlobalSettingKey) uint32 {
	val := configPtr.globalConfigItemValue(key)
	if val.ItemType == ConfigItemTypeInt {
		return val.IntValue
	} else {
		log.Fatalf("***Key(%s) is of Type(%d) NOT Int", key, val.ItemType)
		return 0
	}
}

// GlobalValueString - Gets a string global setting value
func (configPtr *ConfigItemValueMap) GlobalValueString(key GlobalSettingKey) string {
	val := configPtr.globalConfigItemValue(key)
	if val.ItemType == ConfigItemTypeString {
		return val.StrValue
	} else {
		log.Fatalf("***Key(%s) is of Type(%d) NOT String", key, val.ItemType)
		return ""
	}
}

// GlobalValueBool - Gets a boolean global setting value
func (configPtr *ConfigItemValueMap) GlobalValueBool(key GlobalSettingKey) bool {
	val := configPtr.globalConfigItemValue(key)
	if val.ItemType == ConfigItemTypeBool {
		return val.BoolValue
	} else {
		log.Fatalf("***Key(%s) is of Type(%d) NOT Bool", key, val.ItemType)
		return false
	}
}

// setAgentSettingValue - Sets an agent value for a certain key and agent name
func (configPtr *ConfigItemValueMap) setAgentSettingValue(
	agentName string, key AgentSettingKey, value ConfigItemValue) {
	_, ok := configPtr.AgentSettings[agentName]
	if !ok {
		// Agent Map not yet set. Create the map
		configPtr.AgentSettings[agentName] =
			make(map[AgentSettingKey]ConfigItemValue)
	}
	configPtr.AgentSettings[agentName][key] = value
}

// SetAgentSettingStringValue - Sets an agent value for a certain key and agent name
func (configPtr *ConfigItemValueMap) SetAgentSettingStringValue(
	agentName string, key AgentSettingKey, newValue string) {
	configItemValue := ConfigItemValue{
		Key:      string(key),
		ItemType: ConfigItemTypeString,
		StrValue: newValue,
	}
	configPtr.setAgentSettingValue(agentName, key, configItemValue)
}

// DelAgentValue - Deletes agent settings for an agent name and agent setting key
func (configPtr *ConfigItemValueMap) DelAgentValue(key AgentSettingKey, agentName string) {
	settingMap, ok := configPtr.AgentSettings[agentName]
	if !ok {
		return
	}
	delete(settingMap, key)
	if len(settingMap) > 0 {
		configPtr.AgentSettings[agentName] = settingMap
	} else {
		// No more settings for Agent.. So delete it from AgentSettings
		delete(configPtr.AgentSettings, agentName)
	}
}

// SetGlobalValueInt - sets a int value for a key
func (configPtr *ConfigItemValueMap) SetGlobalValueInt(key GlobalSettingKey, value uint32) {
	if configPtr.GlobalSettings == nil {
		configPtr.GlobalSettings = make(map[GlobalSettingKey]ConfigItemValue)
	}
	configPtr.GlobalSettings[key] = ConfigItemValue{
		Key:      string(key),
		ItemType: ConfigItemTypeInt,
		IntValue: value,
	}
}

// SetGlobalValueBool - sets a bool value for a key
func (configPtr *ConfigItemValueMap) SetGlobalValueBool(key GlobalSettingKey, value bool) {
	if configPtr.GlobalSettings == nil {
		configPtr.GlobalSettings = make(map[GlobalSettingKey]ConfigItemValue)
	}
	configPtr.GlobalSettings[key] = ConfigItemValue{
		Key:       string(key),
		ItemType:  ConfigItemTypeBool,
		BoolValue: value,
	}
}

// SetGlobalValueString - sets a string value for a key
func (configPtr *ConfigItemValueMap) SetGlobalValueString(key GlobalSettingKey, value string) {
	if configPtr.GlobalSettings == nil {
		configPtr.GlobalSettings = make(map[GlobalSettingKey]ConfigItemValue)
	}
	configPtr.GlobalSettings[key] = ConfigItemValue{
		Key:      string(key),
		ItemType: ConfigItemTypeString,
		StrValue: value,
	}
}

// ResetGlobalValue - resets global value to default
func (configPtr *ConfigItemValueMap) ResetGlobalValue(key GlobalSettingKey) {
	specMap := NewConfigItemSpecMap(0)
	configPtr.GlobalSettings[key] = specMap.GlobalSettings[key].DefaultValue()
}

// UpdateItemValues brings in all values from the source map, leaving
// the rest of the destination untouched
func (configPtr *ConfigItemValueMap) UpdateItemValues(srcPtr *ConfigItemValueMap) {
	for key, val := range srcPtr.GlobalSettings {
		configPtr.GlobalSettings[key] = val
	}
	for agentName, settings := range srcPtr.AgentSettings {
		if _, ok := configPtr.AgentSettings[agentName]; !ok {
			configPtr.AgentSettings[agentName] =
				make(map[AgentSettingKey]ConfigItemValue)
		}
		for asKey, val := range settings {
			configPtr.AgentSettings[agentName][asKey] = val
		}
	}
}

func (configSpec ConfigItemSpec) parseValue(itemValue string) (ConfigItemValue, error) {
	value := configSpec.DefaultValue()
	var retErr error
	if configSpec.ItemType == ConfigItemTypeInt {
		i64, err := strconv.ParseUint(itemValue, 10, 32)
		if err == nil {
			value.IntValue = configSpec.ClampIntValue(uint32(i64))
		} else {
			value.IntValue = configSpec.IntDefault
			retErr = err
		}
	} else if configSpec.ItemType == ConfigItemTypeBool {
		newBool, err := strconv.ParseBool(itemValue)
		if err == nil {
			value.BoolValue = newBool
		} else {
			value.BoolValue = configSpec.BoolDefault
			retErr = err
		}
	} else if configSpec.ItemType == ConfigItemTypeString {
		err := configSpec.StringValidator(itemValue)
		if err == nil {
			value.StrValue = itemValue
		} else {
			return value, err
		}
	}
	return value, retErr
}

// ClampIntValue - Pins an out of range value to the nearest bound.
// Unlike a parse failure this is not an error; the caller gets the
// pinned value back.
func (configSpec ConfigItemSpec) ClampIntValue(val uint32) uint32 {
	if val < configSpec.IntMin {
		log.Warnf("Enforce minimum for %s: received %d; using %d",
			configSpec.Key, val, configSpec.IntMin)
		return configSpec.IntMin
	}
	if val > configSpec.IntMax {
		log.Warnf("Enforce maximum for %s: received %d; using %d",
			configSpec.Key, val, configSpec.IntMax)
		return configSpec.IntMax
	}
	return val
}

// NewConfigItemSpecMap - Creates a specmap based on default values.
// The threshold tables are sized for coreCount cores; a coreCount
// below one means the number of CPUs visible to the runtime.
func NewConfigItemSpecMap(coreCount int) ConfigItemSpecMap {
	if coreCount < 1 {
		coreCount = runtime.NumCPU()
	}
	var configItemSpecMap ConfigItemSpecMap
	configItemSpecMap.GlobalSettings = make(map[GlobalSettingKey]ConfigItemSpec)
	configItemSpecMap.AgentSettings = make(map[AgentSettingKey]ConfigItemSpec)

	configItemSpecMap.AddIntItem(SamplingInterval, 60000, 10000, 0xFFFFFFFF)
	configItemSpecMap.AddIntItem(UpRate, 10, 1, 40)
	configItemSpecMap.AddIntItem(DownRate, 20, 1, 40)
	configItemSpecMap.AddIntItem(MaxOnlineCores, uint32(coreCount), 1, uint32(coreCount))
	configItemSpecMap.AddIntItem(MetricInterval, 60, 10, 3600)

	matrix := NewThresholdMatrix(coreCount)
	for n, row := range matrix.Up {
		configItemSpecMap.AddIntItem(UpThresholdLoadKey(n), row.Load, 0, 100)
		configItemSpecMap.AddIntItem(UpThresholdFreqKey(n), row.Freq, 0, 0xFFFFFFFF)
		configItemSpecMap.AddIntItem(UpThresholdRQKey(n), row.RQ, 0, 0xFFFFFFFF)
	}
	for n, row := range matrix.Down {
		configItemSpecMap.AddIntItem(DownThresholdLoadKey(n), row.Load, 0, 100)
		configItemSpecMap.AddIntItem(DownThresholdFreqKey(n), row.Freq, 0, 0xFFFFFFFF)
		configItemSpecMap.AddIntItem(DownThresholdRQKey(n), row.RQ, 0, 0xFFFFFFFF)
	}

	// Add Bool Items
	configItemSpecMap.AddBoolItem(HotplugEnabled, false)
	configItemSpecMap.AddBoolItem(AccurateFrequency, false)

	// Add String Items
	configItemSpecMap.AddStringItem(DefaultLogLevel, "info", parseLevel)

	configItemSpecMap.AddAgentSettingStringItem(LogLevel, "info", parseLevel)

	return configItemSpecMap
}

// parseLevel - Wrapper that ignores the 'Level' output of the log.ParseLevel function
func parseLevel(level string) error {
	_, err := log.ParseLevel(level)
	return err
}

// NewConfigItemValueMap - Create new instance of ConfigItemValueMap
func NewConfigItemValueMap() *ConfigItemValueMap {
	var valueMap ConfigItemValueMap
	valueMap.GlobalSettings = make(map[GlobalSettingKey]ConfigItemValue)
	valueMap.AgentSettings = make(map[string]map[AgentSettingKey]ConfigItemValue)
	return &valueMap
}

// DefaultConfigItemValueMap - converts default specmap into value map
func DefaultConfigItemValueMap(coreCount int) *ConfigItemValueMap {
	configMap := NewConfigItemSpecMap(coreCount)
	valueMapPtr := NewConfigItemValueMap()

	for key, configItemSpec := range configMap.GlobalSettings {
		valueMapPtr.GlobalSettings[key] = configItemSpec.DefaultValue()
	}
	// By default there are no per-agent settings.
	return valueMapPtr
}
