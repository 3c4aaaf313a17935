package filedriver

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/flextimer"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/sirupsen/logrus"
)

const restartedMarker = "restarted"

// Subscriber watches a topic directory with fsnotify.
// The initial scan produces a Modify per existing key followed by a Create
// operation to mark the initial state as complete.
type Subscriber struct {
	dirName string
	name    string
	topic   string
	C       chan<- pubsub.Change
	logger  *logrus.Logger
	log     *base.LogObject
}

// Start watching the directory and publish changes to the channel.
// Returns immediately; the watch runs in a separate goroutine.
func (s *Subscriber) Start() error {
	// The publisher may not have created the directory yet
	if err := os.MkdirAll(s.dirName, 0700); err != nil {
		return fmt.Errorf("Subscriber(%s): %s", s.name, err)
	}
	go s.watch()
	return nil
}

// watch monitors the directory. A periodic timer removes and re-adds the
// watch and re-scans the directory, in case an event was lost; the
// subscription dedups unchanged values so a re-scan is harmless.
func (s *Subscriber) watch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Fatal(err, ": NewWatcher")
	}
	defer w.Close()

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				s.handleEvent(event)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Errorf("watch(%s) error: %s", s.name, err)
			}
		}
	}()

	if err := w.Add(s.dirName); err != nil {
		// Check again when the timer fires
		s.log.Errorf("watch(%s) initial Add: %s", s.name, err)
	}

	foundRestarted := s.readDir(false)
	// Tell the subscription the initial state is complete
	s.C <- pubsub.Change{Operation: pubsub.Create}
	if foundRestarted {
		s.C <- pubsub.Change{Operation: pubsub.Restart}
	}

	interval := 10 * time.Minute
	max := float64(interval)
	min := max * 0.3
	ticker := flextimer.NewRangeTicker(time.Duration(min),
		time.Duration(max))
	for range ticker.C {
		if err := w.Remove(s.dirName); err != nil {
			s.log.Errorf("watch(%s) Remove: %s", s.name, err)
		}
		if err := w.Add(s.dirName); err != nil {
			// Try again on next timeout
			s.log.Errorf("watch(%s) Add: %s", s.name, err)
			continue
		}
		foundRestarted := s.readDir(true)
		if foundRestarted {
			s.C <- pubsub.Change{Operation: pubsub.Restart}
		}
	}
}

func (s *Subscriber) handleEvent(event fsnotify.Event) {
	baseName := path.Base(event.Name)
	// We get create events when a file is moved into the watched directory
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0 {
		s.sendModify(baseName)
	} else if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
		s.sendDelete(baseName)
	} else {
		s.log.Errorf("watch(%s) unknown event %v for %s",
			s.name, event.Op, baseName)
	}
}

// readDir scans the directory and sends a Modify per json file.
// Returns whether the restarted marker was found.
func (s *Subscriber) readDir(retry bool) bool {
	foundRestarted := false
	files, err := os.ReadDir(s.dirName)
	if err != nil {
		s.log.Errorf("readDir(%s): %s", s.name, err)
		return foundRestarted
	}
	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			if file.Name() == restartedMarker {
				foundRestarted = true
			}
			continue
		}
		if retry {
			s.log.Tracef("readDir(%s) retry modified %s",
				s.name, file.Name())
		} else {
			s.log.Functionf("readDir(%s) modified %s",
				s.name, file.Name())
		}
		s.sendModify(file.Name())
	}
	return foundRestarted
}

func (s *Subscriber) sendModify(baseName string) {
	if !strings.HasSuffix(baseName, ".json") {
		if baseName == restartedMarker {
			s.C <- pubsub.Change{Operation: pubsub.Restart}
		}
		// tmpfiles from the atomic rename and other stray names
		return
	}
	fileName := s.dirName + "/" + baseName
	sb, err := os.ReadFile(fileName)
	if err != nil {
		// The file can be gone by the time we read; a Remove
		// event will follow
		s.log.Functionf("sendModify(%s): %s for %s",
			s.name, err, fileName)
		return
	}
	key := strings.TrimSuffix(baseName, ".json")
	s.C <- pubsub.Change{Operation: pubsub.Modify, Key: key, Value: sb}
}

func (s *Subscriber) sendDelete(baseName string) {
	if !strings.HasSuffix(baseName, ".json") {
		// Removing the restarted marker does not propagate; the
		// restarted state is one-way for subscribers
		return
	}
	key := strings.TrimSuffix(baseName, ".json")
	s.C <- pubsub.Change{Operation: pubsub.Delete, Key: key}
}
