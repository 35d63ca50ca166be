package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/tasknest/apiserver/config"
)

// Message is a task event as carried by a broker. Type and Key map onto
// native broker fields; Attributes travel as headers.
type Message struct {
	ID string
	// Type names the event, e.g. task.created.
	Type string
	// Key groups messages that must be delivered in publish order. Task
	// events use the owner id.
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by each supported broker.
type Backend interface {
	Publish(ctx context.Context, channel string, msg Message) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

const (
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
)

// Open connects the backend selected by cfg.Backend.
// It returns a nil Backend when no backend is configured.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case BackendRabbitMQ:
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
