package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the MQTT topic names for one devserver instance.
//
// Every topic lives under {prefix}/{worker}, so several servers driving
// different devices can share a broker:
//
//	topics := mqtt.NewTopics("devserver", "SimulatedWorker")
//	topics.Status("PLOT7") // "devserver/simulated/status/PLOT7"
//	topics.Command()       // "devserver/simulated/command"
type Topics struct {
	Prefix string
	Worker string
}

// NewTopics returns a Topics for prefix and worker.
//
// The worker name is normalised: the "Worker" suffix is dropped, it is
// lowercased, and MQTT wildcard or separator characters are replaced so the
// name is always a single topic level.
func NewTopics(prefix, worker string) Topics {
	return Topics{
		Prefix: strings.Trim(prefix, "/"),
		Worker: workerLevel(worker),
	}
}

// Base returns {prefix}/{worker}.
func (t Topics) Base() string {
	return fmt.Sprintf("%s/%s", t.Prefix, t.Worker)
}

// Status returns the topic a status message with the given header goes to.
//
// Example: devserver/simulated/status/STATUS
func (t Topics) Status(header string) string {
	return fmt.Sprintf("%s/status/%s", t.Base(), topicLevel(header))
}

// AllStatus returns a wildcard matching every status topic.
func (t Topics) AllStatus() string {
	return t.Base() + "/status/+"
}

// State returns the retained topic holding the latest STATUS snapshot.
func (t Topics) State() string {
	return t.Base() + "/state"
}

// Command returns the topic whose payload lines are submitted as tasks.
func (t Topics) Command() string {
	return t.Base() + "/command"
}

// Presence returns the retained online/offline topic (also the LWT topic).
func (t Topics) Presence() string {
	return t.Base() + "/presence"
}

func workerLevel(name string) string {
	name = strings.TrimSpace(name)
	if base, ok := strings.CutSuffix(name, "Worker"); ok && base != "" {
		name = base
	}
	return strings.ToLower(topicLevel(name))
}

// topicLevel turns an arbitrary name into a single safe topic level.
func topicLevel(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "_"
	}
	return name
}
