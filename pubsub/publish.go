package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/lf-edge/coremgr/base"
	"github.com/sirupsen/logrus"
)

const (
	// Global fixed string for a global subject, i.e. no agent
	Global = "global"
)

// PublicationImpl - Publication Implementation. The main structure that implements
//  Publication interface.
// Usage:
//  pub, err := ps.NewPublication(pubsub.PublicationOptions{
//      AgentName: "foo",
//      TopicType: fooStruct{},
//  })
//  ...
//  // Optional
//  pub.SignalRestarted()
//  ...
//  pub.Publish(key, item)
//  pub.Unpublish(key) to delete
//
//  foo := pub.Get(key)
//  fooAll := pub.GetAll()
type PublicationImpl struct {
	// Private fields
	topicType  reflect.Type
	agentName  string
	agentScope string
	topic      string
	km         keyMap
	global     bool
	logger     *logrus.Logger
	log        *base.LogObject

	driver DriverPublisher
}

// IsRestarted has this publication been set to "restarted"
func (pub *PublicationImpl) IsRestarted() bool {
	return pub.km.restarted
}

// Publish publish a key-value pair
func (pub *PublicationImpl) Publish(key string, item interface{}) error {
	topic := TypeToName(item)
	name := pub.nameString()
	if topic != pub.topic {
		errStr := fmt.Sprintf("Publish(%s): item is wrong topic %s",
			name, topic)
		pub.log.Fatalln(errStr)
	}
	val := reflect.ValueOf(item)
	if val.Kind() == reflect.Ptr {
		pub.log.Fatalf("Publish got a pointer for %s", name)
	}
	// Perform a DeepCopy in case the caller might change a map etc
	newItem := DeepCopy(pub.log, item)
	if m, ok := pub.km.key.Load(key); ok {
		if cmp.Equal(m, newItem) {
			pub.log.Tracef("Publish(%s/%s) unchanged", name, key)
			return nil
		}
		if loggable, ok := newItem.(base.LoggableObject); ok {
			loggable.LogModify(pub.log, m)
		}
		pub.log.Tracef("Publish(%s/%s) replacing due to diff %s",
			name, key, cmp.Diff(m, newItem))
	} else {
		if loggable, ok := newItem.(base.LoggableObject); ok {
			loggable.LogCreate(pub.log)
		}
		pub.log.Tracef("Publish(%s/%s) adding %+v", name, key, newItem)
	}
	pub.km.key.Store(key, newItem)

	if pub.logger.GetLevel() == logrus.TraceLevel {
		pub.dump("after Publish")
	}
	// marshal to json bytes to send to the driver
	b, err := json.Marshal(item)
	if err != nil {
		pub.log.Fatal("json Marshal in Publish", err)
	}

	return pub.driver.Publish(key, b)
}

// Unpublish delete a key from the key-value map
func (pub *PublicationImpl) Unpublish(key string) error {
	name := pub.nameString()
	if m, ok := pub.km.key.Load(key); ok {
		if loggable, ok := m.(base.LoggableObject); ok {
			loggable.LogDelete(pub.log)
		}
		pub.log.Tracef("Unpublish(%s/%s) removing %+v", name, key, m)
	} else {
		errStr := fmt.Sprintf("Unpublish(%s/%s): key does not exist",
			name, key)
		pub.log.Errorf("%s", errStr)
		return errors.New(errStr)
	}
	pub.km.key.Delete(key)
	if pub.logger.GetLevel() == logrus.TraceLevel {
		pub.dump("after Unpublish")
	}

	return pub.driver.Unpublish(key)
}

// SignalRestarted signal that a publication is restarted
func (pub *PublicationImpl) SignalRestarted() error {
	pub.log.Tracef("pub.SignalRestarted(%s)", pub.nameString())
	return pub.restartImpl(true)
}

// ClearRestarted clear the restart signal
func (pub *PublicationImpl) ClearRestarted() error {
	pub.log.Tracef("pub.ClearRestarted(%s)", pub.nameString())
	return pub.restartImpl(false)
}

// Get the value for a given key
func (pub *PublicationImpl) Get(key string) (interface{}, error) {
	m, ok := pub.km.key.Load(key)
	if ok {
		return m, nil
	}
	name := pub.nameString()
	errStr := fmt.Sprintf("Get(%s) unknown key %s", name, key)
	return nil, errors.New(errStr)
}

// GetAll enumerate all the key-value pairs for the collection
func (pub *PublicationImpl) GetAll() map[string]interface{} {
	result := make(map[string]interface{})
	assigner := func(key string, val interface{}) bool {
		result[key] = val
		return true
	}
	pub.km.key.Range(assigner)
	return result
}

// Iterate - performs some callback function on all items
func (pub *PublicationImpl) Iterate(function CallBackFunction) {
	items := pub.GetAll()
	for key, item := range items {
		cont := function(key, item)
		if !cont {
			break
		}
	}
}

// methods just for this implementation of Publisher

// populate reads any checkpointed state from the driver. Sets restarted if
// that was recorded.
func (pub *PublicationImpl) populate() {
	name := pub.nameString()

	pub.log.Functionf("populate(%s)", name)

	pairs, restarted, err := pub.driver.Load()
	if err != nil {
		pub.log.Fatalf(err.Error())
	}
	for key, itemB := range pairs {
		item, err := parseTemplate(pub.log, itemB, pub.topicType)
		if err != nil {
			pub.log.Fatalf(err.Error())
			return
		}
		pub.km.key.Store(key, item)
	}
	pub.km.restarted = restarted
	pub.log.Functionf("populate(%s) done", name)
}

// go routine which runs the driver, if any work is needed.
func (pub *PublicationImpl) publisher() {
	pub.driver.Start()
}

func (pub *PublicationImpl) nameString() string {
	var name string
	switch {
	case pub.global:
		name = fmt.Sprintf("%s/%s", Global, pub.topic)
	case pub.agentScope == "":
		name = fmt.Sprintf("%s/%s", pub.agentName, pub.topic)
	default:
		name = fmt.Sprintf("%s/%s/%s", pub.agentName, pub.agentScope, pub.topic)
	}
	return name
}

// Record the restarted state and send to the driver.
func (pub *PublicationImpl) restartImpl(restarted bool) error {
	name := pub.nameString()
	pub.log.Functionf("pub.restartImpl(%s, %v)", name, restarted)

	if restarted == pub.km.restarted {
		pub.log.Functionf("pub.restartImpl(%s, %v) value unchanged",
			name, restarted)
		return nil
	}
	pub.km.restarted = restarted
	return pub.driver.Restart(restarted)
}

func (pub *PublicationImpl) dump(infoStr string) {

	name := pub.nameString()
	pub.log.Tracef("dump(%s) %s", name, infoStr)
	dumper := func(key string, val interface{}) bool {
		b, err := json.Marshal(val)
		if err != nil {
			pub.log.Fatal("json Marshal in dump", err)
		}
		pub.log.Tracef("\tkey %s val %s", key, b)
		return true
	}
	pub.km.key.Range(dumper)
	pub.log.Tracef("\trestarted %t", pub.km.restarted)
}
