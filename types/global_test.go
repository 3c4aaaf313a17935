package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultValue(t *testing.T) {
	specMap := NewConfigItemSpecMap(4)
	for _, item := range specMap.GlobalSettings {
		t.Logf("Testing if default value and spec matches for %s", item.Key)
		defaultValue := item.DefaultValue()
		if item.ItemType == ConfigItemTypeInt {
			assert.Equal(t, item.IntDefault, defaultValue.IntValue)
		} else if item.ItemType == ConfigItemTypeBool {
			assert.Equal(t, item.BoolDefault, defaultValue.BoolValue)
		} else if item.ItemType == ConfigItemTypeString {
			assert.Equal(t, item.StringDefault, defaultValue.StrValue)
		}
	}
}

func TestAddIntItem(t *testing.T) {
	specMap := ConfigItemSpecMap{}
	specMap.GlobalSettings = make(map[GlobalSettingKey]ConfigItemSpec)
	testMatrix := map[string]struct {
		key         GlobalSettingKey
		defaultInt  uint32
		min         uint32
		max         uint32
		expectedVal uint32
	}{
		"Within Constraints": {
			key:         UpRate,
			defaultInt:  10,
			min:         1,
			max:         40,
			expectedVal: 10,
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		(&specMap).AddIntItem(test.key, test.defaultInt, test.min, test.max)
		assert.Equal(t, test.expectedVal, specMap.GlobalSettings[test.key].IntDefault)
	}
}

func TestAddBoolItem(t *testing.T) {
	specMap := ConfigItemSpecMap{}
	specMap.GlobalSettings = make(map[GlobalSettingKey]ConfigItemSpec)
	testMatrix := map[string]struct {
		key         GlobalSettingKey
		defaultBool bool
		expectedVal bool
	}{
		"Test True": {
			key:         HotplugEnabled,
			defaultBool: true,
			expectedVal: true,
		},
		"Test False": {
			key:         AccurateFrequency,
			defaultBool: false,
			expectedVal: false,
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		(&specMap).AddBoolItem(test.key, test.defaultBool)
		assert.Equal(t, test.expectedVal, specMap.GlobalSettings[test.key].BoolDefault)
	}
}

func TestAddStringItem(t *testing.T) {
	specMap := ConfigItemSpecMap{}
	specMap.GlobalSettings = make(map[GlobalSettingKey]ConfigItemSpec)
	testMatrix := map[string]struct {
		key           GlobalSettingKey
		defaultString string
		expectedVal   string
	}{
		"Log Level": {
			key:           DefaultLogLevel,
			defaultString: "info",
			expectedVal:   "info",
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		(&specMap).AddStringItem(test.key, test.defaultString, parseLevel)
		assert.Equal(t, test.expectedVal, specMap.GlobalSettings[test.key].StringDefault)
	}
}

func TestParseGlobalItem(t *testing.T) {
	specMap := NewConfigItemSpecMap(4)
	oldGlobalConfig := DefaultConfigItemValueMap(4)
	newGlobalConfig := DefaultConfigItemValueMap(4)
	testMatrix := map[string]struct {
		key          string
		value        string
		itemType     ConfigItemType
		expectError  bool
		expectedInt  uint32
		expectedStr  string
		expectedBool bool
	}{
		"Global String Setting": {
			key:         string(DefaultLogLevel),
			value:       "warn",
			itemType:    ConfigItemTypeString,
			expectedStr: "warn",
		},
		"Global Int Setting": {
			key:         string(SamplingInterval),
			value:       "30000",
			itemType:    ConfigItemTypeInt,
			expectedInt: 30000,
		},
		"Global Bool Setting": {
			key:          string(HotplugEnabled),
			value:        "true",
			itemType:     ConfigItemTypeBool,
			expectedBool: true,
		},
		"Threshold Row Setting": {
			key:         string(UpThresholdLoadKey(2)),
			value:       "80",
			itemType:    ConfigItemTypeInt,
			expectedInt: 80,
		},
		"Int Below Minimum Gets Pinned": {
			key:         string(DownRate),
			value:       "0",
			itemType:    ConfigItemTypeInt,
			expectedInt: 1,
		},
		"Int Above Maximum Gets Pinned": {
			key:         string(UpRate),
			value:       "100",
			itemType:    ConfigItemTypeInt,
			expectedInt: 40,
		},
		"Unparseable Int Keeps Existing": {
			key:         string(MaxOnlineCores),
			value:       "all",
			itemType:    ConfigItemTypeInt,
			expectError: true,
			expectedInt: 4,
		},
		"Unknown Key": {
			key:         "hotplug.warp.speed",
			value:       "9",
			expectError: true,
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s, test: %+v", testname, test)
		_, err := specMap.ParseItem(newGlobalConfig, oldGlobalConfig,
			test.key, test.value)
		gsKey := GlobalSettingKey(test.key)
		if test.expectError {
			failureStr := fmt.Sprintf("Expecting Error, Didn't get one. "+
				"testname: %s, test: %+v", testname, test)
			assert.NotEqual(t, err, nil, failureStr)
		} else {
			failureStr := fmt.Sprintf("Unexpected Error. testname: %s, test: %+v",
				testname, test)
			assert.Equal(t, err, nil, failureStr)
		}
		if test.itemType == ConfigItemTypeString && err == nil {
			assert.Equal(t, test.expectedStr, newGlobalConfig.GlobalValueString(gsKey))
		} else if test.itemType == ConfigItemTypeInt {
			// Pinned and retained values are asserted too
			assert.Equal(t, test.expectedInt, newGlobalConfig.GlobalValueInt(gsKey))
		} else if test.itemType == ConfigItemTypeBool && err == nil {
			assert.Equal(t, test.expectedBool, newGlobalConfig.GlobalValueBool(gsKey))
		}
	}
}

func TestParseAgentItem(t *testing.T) {
	specMap := NewConfigItemSpecMap(2)
	globalConfig := ConfigItemValueMap{}
	globalConfig.AgentSettings = make(map[string]map[AgentSettingKey]ConfigItemValue)
	testMatrix := map[string]struct {
		key         string
		value       string
		expectError bool
	}{
		"Agent Setting": {
			key:   "agent.coremgr.debug.loglevel",
			value: "debug",
		},
		"Agent Setting Bad Level": {
			key:         "agent.coremgr.debug.loglevel",
			value:       "chatty",
			expectError: true,
		},
		"Agent Setting Without Agent Name": {
			key:         "agent.loglevel",
			value:       "debug",
			expectError: true,
		},
		"Agent Setting Unknown Key": {
			key:         "agent.coremgr.debug.color",
			value:       "debug",
			expectError: true,
		},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s - key:%s, Value: %s",
			testname, test.key, test.value)
		newGlobalConfig := DefaultConfigItemValueMap(2)
		_, err := specMap.ParseItem(newGlobalConfig, &globalConfig,
			test.key, test.value)
		if test.expectError {
			assert.NotEqual(t, err, nil)
		} else {
			assert.Equal(t, err, nil)
			assert.Equal(t, test.value, newGlobalConfig.AgentSettingStringValue(
				"coremgr", LogLevel))
		}
	}
}

func TestAgentSettingStringValue(t *testing.T) {
	valueMap := DefaultConfigItemValueMap(4)
	valueMap.SetAgentSettingStringValue("coremgr", LogLevel, "debug")
	assert.Equal(t, "debug", valueMap.AgentSettingStringValue("coremgr", LogLevel))
}

func TestGlobalValue(t *testing.T) {
	valueMap := DefaultConfigItemValueMap(4)
	for key, val := range valueMap.GlobalSettings {
		if val.ItemType == ConfigItemTypeInt {
			assert.Equal(t, valueMap.GlobalSettings[key].IntValue, valueMap.GlobalValueInt(key))
		} else if val.ItemType == ConfigItemTypeBool {
			assert.Equal(t, valueMap.GlobalSettings[key].BoolValue, valueMap.GlobalValueBool(key))
		} else if val.ItemType == ConfigItemTypeString {
			assert.Equal(t, valueMap.GlobalSettings[key].StrValue, valueMap.GlobalValueString(key))
		}
	}
}

func TestDelAgentValue(t *testing.T) {
	valueMap := DefaultConfigItemValueMap(4)
	valueMap.SetAgentSettingStringValue("coremgr", LogLevel, "debug")
	valueMap.DelAgentValue(LogLevel, "coremgr")
	assert.Equal(t, "", valueMap.AgentSettingStringValue("coremgr", LogLevel))
}

func TestSetGlobalValue(t *testing.T) {
	valueMap := DefaultConfigItemValueMap(4)
	valueMap.SetGlobalValueInt(SamplingInterval, uint32(20000))
	valueMap.SetGlobalValueBool(HotplugEnabled, true)
	valueMap.SetGlobalValueString(DefaultLogLevel, "trace")
	assert.Equal(t, uint32(20000), valueMap.GlobalValueInt(SamplingInterval))
	assert.Equal(t, true, valueMap.GlobalValueBool(HotplugEnabled))
	assert.Equal(t, "trace", valueMap.GlobalValueString(DefaultLogLevel))
}

func TestThresholdSpecRows(t *testing.T) {
	specMap := NewConfigItemSpecMap(4)

	// Row coverage: up rows 1..3, down rows 2..4
	_, ok := specMap.GlobalSettings[UpThresholdLoadKey(1)]
	assert.True(t, ok)
	_, ok = specMap.GlobalSettings[UpThresholdLoadKey(4)]
	assert.False(t, ok)
	_, ok = specMap.GlobalSettings[DownThresholdLoadKey(1)]
	assert.False(t, ok)
	_, ok = specMap.GlobalSettings[DownThresholdLoadKey(4)]
	assert.True(t, ok)

	// The top rows carry the higher run queue bar
	assert.Equal(t, uint32(200), specMap.GlobalSettings[UpThresholdRQKey(1)].IntDefault)
	assert.Equal(t, uint32(300), specMap.GlobalSettings[UpThresholdRQKey(3)].IntDefault)
	assert.Equal(t, uint32(200), specMap.GlobalSettings[DownThresholdRQKey(3)].IntDefault)
	assert.Equal(t, uint32(300), specMap.GlobalSettings[DownThresholdRQKey(4)].IntDefault)

	// MaxOnlineCores tracks the core count
	assert.Equal(t, uint32(4), specMap.GlobalSettings[MaxOnlineCores].IntDefault)
	assert.Equal(t, uint32(4), specMap.GlobalSettings[MaxOnlineCores].IntMax)

	// A single core machine has no threshold rows at all
	single := NewConfigItemSpecMap(1)
	_, ok = single.GlobalSettings[UpThresholdLoadKey(1)]
	assert.False(t, ok)
	_, ok = single.GlobalSettings[DownThresholdLoadKey(2)]
	assert.False(t, ok)
}
