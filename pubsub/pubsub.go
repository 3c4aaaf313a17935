// Copyright (c) 2017,2018 Zededa, Inc.
// SPDX-License-Identifier: Apache-2.0

// Provide for a pubsub mechanism for config and status which is
// backed by a medium such as checkpoint files and file watches.

package pubsub

import (
	"fmt"
	"reflect"
	"time"

	"github.com/lf-edge/coremgr/base"
	"github.com/sirupsen/logrus"
)

// SubscriptionOptions options to pass when creating a Subscription
type SubscriptionOptions struct {
	CreateHandler  SubHandler
	ModifyHandler  SubHandler
	DeleteHandler  SubHandler
	RestartHandler SubRestartHandler
	SyncHandler    SubRestartHandler
	WarningTime    time.Duration
	ErrorTime      time.Duration
	AgentName      string
	AgentScope     string
	TopicImpl      interface{}
	Activate       bool
	Ctx            interface{}
	Persistent     bool
	MyAgentName    string // For logging
}

// SubHandler is a generic handler to handle create, modify and delete
// Usage:
//  sub, err := ps.NewSubscription(pubsub.SubscriptionOptions{
//      AgentName: "foo",
//      TopicImpl: fooStruct{},
//      CreateHandler: func(...),  // Optional
//      ModifyHandler: func(...),  // Optional
//      DeleteHandler: func(...),  // Optional
//      Ctx: &myctx,
//  })
//  sub.Activate()
//  ...
//  select {
//     case change := <- sub.MsgChan():
//         sub.ProcessChange(change)
//  }
type SubHandler func(ctx interface{}, key string, status interface{})

// SubRestartHandler generic handler for restarts
type SubRestartHandler func(ctx interface{}, restarted bool)

// Maintain a collection which is used to handle the restart of a subscriber
// map of agentname, key to get a json string
// We use StringMap with a RWlock to allow concurrent access.
type keyMap struct {
	restarted bool
	key       *base.LockedStringMap
}

// PubSub is a system for publishing and subscribing to messages
// it manages the creation of Publication and Subscription, which handle the actual
// implementation of in-memory structures and logic
// the message passing and persistence are handled by a Driver.
// Should not be called directly. Instead use the `New()` function.
type PubSub struct {
	driver       Driver
	logger       *logrus.Logger
	log          *base.LogObject
	lastStillMap *base.LockedStringMap
}

// New create a new `PubSub` with a given `Driver`.
func New(driver Driver, logger *logrus.Logger, log *base.LogObject) *PubSub {
	return &PubSub{
		driver:       driver,
		logger:       logger,
		log:          log,
		lastStillMap: base.NewLockedStringMap(),
	}
}

// methods unique to this implementation

// NewSubscription creates a new Subscription with given options
func (p *PubSub) NewSubscription(options SubscriptionOptions) (Subscription, error) {

	if options.TopicImpl == nil {
		return nil, fmt.Errorf("cannot create a subcription with a nil "+
			" topicImpl. options: %+v", options)
	}

	topic := TypeToName(options.TopicImpl)
	topicType := reflect.TypeOf(options.TopicImpl)
	changes := make(chan Change)
	sub := &SubscriptionImpl{
		C:                   changes,
		agentName:           options.AgentName,
		agentScope:          options.AgentScope,
		topic:               topic,
		topicType:           topicType,
		userCtx:             options.Ctx,
		km:                  keyMap{key: base.NewLockedStringMap()},
		defaultName:         p.driver.DefaultName(),
		CreateHandler:       options.CreateHandler,
		ModifyHandler:       options.ModifyHandler,
		DeleteHandler:       options.DeleteHandler,
		RestartHandler:      options.RestartHandler,
		SynchronizedHandler: options.SyncHandler,
		MaxProcessTimeWarn:  options.WarningTime,
		MaxProcessTimeError: options.ErrorTime,
		Persistent:          options.Persistent,
		logger:              p.logger,
		log:                 p.log,
		myAgentName:         options.MyAgentName,
	}
	name := sub.nameString()
	global := options.AgentName == ""
	driver, err := p.driver.Subscriber(global, name, topic,
		options.Persistent, changes)
	if err != nil {
		return sub, err
	}
	sub.driver = driver

	sub.log.Functionf("Subscribe(%s)", name)
	if options.Activate {
		if err := sub.Activate(); err != nil {
			return sub, err
		}
	}
	return sub, nil
}

// PublicationOptions defines all the possible options a new publication may have
type PublicationOptions struct {
	AgentName  string
	AgentScope string
	TopicType  interface{}
	Persistent bool
}

// NewPublication creates a new Publication with given options.
// We read any checkpointed state from the driver and insert in pub.km as
// initial values.
func (p *PubSub) NewPublication(options PublicationOptions) (Publication, error) {
	if options.TopicType == nil {
		return nil, fmt.Errorf("cannot create a publication with a nil "+
			"topic type. options: %+v", options)
	}

	topic := TypeToName(options.TopicType)
	global := options.AgentName == ""
	pub := &PublicationImpl{
		agentName:  options.AgentName,
		agentScope: options.AgentScope,
		topic:      topic,
		topicType:  reflect.TypeOf(options.TopicType),
		km:         keyMap{key: base.NewLockedStringMap()},
		global:     global,
		logger:     p.logger,
		log:        p.log,
	}
	// create the driver
	name := pub.nameString()
	pub.log.Tracef("NewPublication agentName(%s), agentScope(%s), topic(%s), nameString(%s), global(%v), persistent(%v)",
		options.AgentName, options.AgentScope, topic, name, global,
		options.Persistent)
	driver, err := p.driver.Publisher(global, name, topic, options.Persistent)
	if err != nil {
		return pub, err
	}
	pub.driver = driver

	pub.populate()
	if pub.logger.GetLevel() == logrus.TraceLevel {
		pub.dump("after populate")
	}
	pub.log.Functionf("Publish(%s)", name)

	pub.publisher()

	return pub, nil
}

// StillRunning touches a file per agentName to signal the event loop is
// still running. Those files are observed by the watchdog.
func (p *PubSub) StillRunning(agentName string, warnTime time.Duration, errTime time.Duration) {
	p.log.Tracef("StillRunning(%s)", agentName)

	if last, ok := p.lastStillMap.Load(agentName); !ok {
		p.lastStillMap.Store(agentName, time.Now())
	} else {
		lastStillTime, ok := last.(time.Time)
		if !ok {
			p.log.Fatalf("StillRunning: unexpected type %T", last)
		}
		elapsed := time.Since(lastStillTime)
		if elapsed > errTime && errTime != 0 {
			p.log.Errorf("StillRunning(%s) XXX took a long time: %d seconds",
				agentName, elapsed/time.Second)
		} else if elapsed > warnTime && warnTime != 0 {
			p.log.Warnf("StillRunning(%s) took a long time: %d seconds",
				agentName, elapsed/time.Second)
		}
		p.lastStillMap.Store(agentName, time.Now())
	}

	filename := fmt.Sprintf("/run/%s.touch", agentName)
	base.TouchFile(p.log, filename)
}

// CheckMaxTimeTopic verifies if the time for a handler has exceeded a
// reasonable number
func CheckMaxTimeTopic(log *base.LogObject, agentName string, topic string,
	start time.Time, warnTime time.Duration, errTime time.Duration) {

	elapsed := time.Since(start)
	if elapsed > errTime && errTime != 0 {
		log.Errorf("%s handler in %s XXX took a long time: %d seconds",
			topic, agentName, elapsed/time.Second)
	} else if elapsed > warnTime && warnTime != 0 {
		log.Warnf("%s handler in %s took a long time: %d seconds",
			topic, agentName, elapsed/time.Second)
	}
}
