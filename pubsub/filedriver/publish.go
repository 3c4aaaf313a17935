package filedriver

import (
	"fmt"
	"os"
	"strings"

	"github.com/lf-edge/coremgr/base"
	"github.com/lf-edge/coremgr/pubsub"
	"github.com/sirupsen/logrus"
)

// Publisher writes every key as <dirName>/<key>.json and maintains the
// "restarted" marker file. Subscribers observe the directory.
type Publisher struct {
	dirName        string
	shouldPopulate bool // Did the directory exist before we started
	name           string
	topic          string
	logger         *logrus.Logger
	log            *base.LogObject
}

// Start function
func (p *Publisher) Start() error {
	return nil
}

// Load reads the checkpointed state from the topic directory.
// Only reads json files. Sets restarted if the marker file was found.
func (p *Publisher) Load() (map[string][]byte, bool, error) {
	pairs := make(map[string][]byte)
	restarted := false
	if !p.shouldPopulate {
		return pairs, restarted, nil
	}
	p.log.Functionf("Load(%s) from %s", p.name, p.dirName)
	files, err := os.ReadDir(p.dirName)
	if err != nil {
		return pairs, restarted, fmt.Errorf("Load(%s): %s", p.name, err)
	}
	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			if file.Name() == restartedMarker {
				restarted = true
			}
			continue
		}
		fileName := p.dirName + "/" + file.Name()
		sb, err := os.ReadFile(fileName)
		if err != nil {
			p.log.Errorf("Load(%s): %s for %s", p.name, err, fileName)
			continue
		}
		key := strings.TrimSuffix(file.Name(), ".json")
		pairs[key] = sb
	}
	p.log.Functionf("Load(%s) done: %d keys restarted %t",
		p.name, len(pairs), restarted)
	return pairs, restarted, nil
}

// Publish writes the key's json file in place, atomically
func (p *Publisher) Publish(key string, item []byte) error {
	fileName := p.dirName + "/" + key + ".json"
	p.log.Tracef("Publish(%s/%s) writing %s", p.name, key, fileName)
	return pubsub.WriteRename(fileName, item)
}

// Unpublish removes the key's json file
func (p *Publisher) Unpublish(key string) error {
	fileName := p.dirName + "/" + key + ".json"
	p.log.Tracef("Unpublish(%s/%s) removing %s", p.name, key, fileName)
	if err := os.Remove(fileName); err != nil {
		return fmt.Errorf("Unpublish(%s/%s): %s", p.name, key, err)
	}
	return nil
}

// Restart creates or removes the restarted marker file
func (p *Publisher) Restart(restarted bool) error {
	markerFile := p.dirName + "/" + restartedMarker
	if restarted {
		f, err := os.OpenFile(markerFile, os.O_RDONLY|os.O_CREATE, 0600)
		if err != nil {
			return fmt.Errorf("Restart(%s): %s", p.name, err)
		}
		f.Close()
		return nil
	}
	if err := os.Remove(markerFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("Restart(%s): %s", p.name, err)
	}
	return nil
}
