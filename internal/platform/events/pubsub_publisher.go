package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/services"
)

// PubSubCartPublisher publishes cart change notifications to a Pub/Sub topic. Messages for the same
// customer share an ordering key.
type PubSubCartPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCartPublisher constructs a publisher bound to an existing topic handle.
func NewPubSubCartPublisher(topic *pubsub.Topic) (*PubSubCartPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub cart publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubCartPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// OpenTopic creates a Pub/Sub client for the project and returns a handle to the topic along with a
// close function that flushes pending messages.
func OpenTopic(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*pubsub.Topic, func() error, error) {
	projectID = strings.TrimSpace(projectID)
	topicID = strings.TrimSpace(topicID)
	if projectID == "" || topicID == "" {
		return nil, nil, errors.New("pubsub: project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub: create client: %w", err)
	}
	topic := client.Topic(topicID)
	closeFn := func() error {
		topic.Stop()
		return client.Close()
	}
	return topic, closeFn, nil
}

// PublishCartEvent sends the event and waits for the server to acknowledge it.
func (p *PubSubCartPublisher) PublishCartEvent(ctx context.Context, event services.CartEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub cart publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal cart event: %w", err)
	}

	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", string(event.Type))
	setAttr(attrs, "customerId", event.CustomerID)

	customerID := strings.TrimSpace(event.CustomerID)
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: customerID,
	})

	id, err := result.Get(ctx)
	if err != nil {
		if customerID != "" {
			// a failed publish pauses the ordering key until resumed
			p.topic.ResumePublish(customerID)
		}
		return "", fmt.Errorf("publish cart event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
