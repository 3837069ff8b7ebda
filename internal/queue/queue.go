// Package queue carries face tasks and upload notifications over gocloud.dev
// pubsub. Delivery is at-least-once and unordered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-index/internal/faces"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/awssnssqs" // awssqs:// and awssns:// (AWS, Yandex Message Queue)
	_ "gocloud.dev/pubsub/mempubsub" // mem://
)

// Publisher sends face tasks to a topic.
type Publisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
}

// OpenPublisher opens a topic by gocloud.dev URL.
func OpenPublisher(ctx context.Context, topicURL string, timeout time.Duration) (*Publisher, error) {
	if topicURL == "" {
		return nil, errors.New("topic URL is required")
	}
	topic, err := pubsub.OpenTopic(ctx, topicURL)
	if err != nil {
		return nil, fmt.Errorf("open topic %s: %w", topicURL, err)
	}
	return NewPublisher(topic, timeout), nil
}

// NewPublisher wraps an already opened topic.
func NewPublisher(topic *pubsub.Topic, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{topic: topic, timeout: timeout}
}

// PublishTask sends one face task.
func (p *Publisher) PublishTask(ctx context.Context, task faces.FaceTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.topic.Send(ctx, &pubsub.Message{Body: body}); err != nil {
		return fmt.Errorf("send task for %s: %w", task.SourceKey, err)
	}
	return nil
}

// Shutdown flushes pending sends and releases the topic.
func (p *Publisher) Shutdown(ctx context.Context) error {
	if err := p.topic.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown topic: %w", err)
	}
	return nil
}
