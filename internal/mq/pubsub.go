package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/tasknest/apiserver/config"
	"google.golang.org/api/option"
)

const attrEventType = "event_type"

// PubSubClient publishes task events to a Pub/Sub topic named after the
// channel. Messages with a Key are published with message ordering, so each
// owner's events arrive in the order they happened.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client:             client,
		subscriptionSuffix: cfg.SubscriptionSuffix,
		topics:             make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends msg and waits for the server-assigned id. A failed ordered
// publish pauses its key, so the key is resumed before returning the error.
func (p *PubSubClient) Publish(ctx context.Context, channel string, msg Message) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}

	id, err := topic.Publish(ctx, toPubSubMessage(msg)).Get(ctx)
	if err != nil && msg.Key != "" {
		topic.ResumePublish(msg.Key)
	}
	return id, err
}

// Subscribe receives from the channel's ordered subscription until ctx is cancelled.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, received *pubsub.Message) {
		if err := handler(ctx, fromPubSubMessage(received)); err != nil {
			received.Nack()
			return
		}
		received.Ack()
	})
}

// Close flushes pending publishes and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = map[string]*pubsub.Topic{}
	p.mu.Unlock()
	return p.client.Close()
}

// topic returns the cached handle for name, creating the topic on first use.
func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = true
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic:                 topic,
			EnableMessageOrdering: true,
		})
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel + "-sub"
	}
	return channel + p.subscriptionSuffix
}

func toPubSubMessage(msg Message) *pubsub.Message {
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for key, value := range msg.Attributes {
		attrs[key] = value
	}
	if msg.Type != "" {
		attrs[attrEventType] = msg.Type
	}
	return &pubsub.Message{
		Data:        msg.Data,
		Attributes:  attrs,
		OrderingKey: msg.Key,
	}
}

func fromPubSubMessage(received *pubsub.Message) Message {
	msg := Message{
		ID:   received.ID,
		Type: received.Attributes[attrEventType],
		Key:  received.OrderingKey,
		Data: received.Data,
	}
	for key, value := range received.Attributes {
		if key == attrEventType {
			continue
		}
		if msg.Attributes == nil {
			msg.Attributes = make(map[string]string, len(received.Attributes))
		}
		msg.Attributes[key] = value
	}
	return msg
}
