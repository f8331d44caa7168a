package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisher is an ordered Pub/Sub handle. A failed publish pauses its
// ordering key until ResumePublish is called.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers opens one ordered publisher per topic on first use.
type topicPublishers struct {
	mu     sync.Mutex
	client pubSubClient
	open   map[string]*gcppubsub.Publisher
}

func newTopicPublishers(client pubSubClient) *topicPublishers {
	return &topicPublishers{client: client, open: map[string]*gcppubsub.Publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	handle, ok := t.open[topic]
	if !ok {
		handle = t.client.Publisher(topic)
		if handle == nil {
			return nil
		}
		handle.EnableMessageOrdering = true
		t.open[topic] = handle
	}
	return gcpPublisher{handle: handle}
}

// stop flushes pending publishes before the process exits.
func (t *topicPublishers) stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic, handle := range t.open {
		handle.Stop()
		delete(t.open, topic)
	}
}

type gcpPublisher struct {
	handle *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.handle.Publish(ctx, msg)
}

func (p gcpPublisher) ResumePublish(orderingKey string) {
	p.handle.ResumePublish(orderingKey)
}
