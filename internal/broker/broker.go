// Package broker wraps the MQTT transport: a reconnecting client for
// publish/subscribe and an optional in-process server for single-binary
// deployments.
package broker

import (
	"context"
	"fmt"
	"strings"
)

// Message is one delivered publication.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler consumes delivered messages. It runs on the client's receive
// path; blocking here applies backpressure at the broker client.
type Handler func(Message)

// Publisher sends payloads to machine topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber registers a handler for a topic filter.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, h Handler) error
}

// MachineTopic builds the conventional per-machine topic.
func MachineTopic(plantID, machineID int) string {
	return fmt.Sprintf("iot/plant%d/machine%d", plantID, machineID)
}

// topicMatches reports whether an MQTT topic filter matches a concrete
// topic, honoring the + and # wildcards.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
