package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tasknest/apiserver/config"
)

const (
	rabbitAppID       = "tasknest"
	headerOrderingKey = "x-ordering-key"
)

// RabbitMQClient sends task events through the default exchange to a queue
// named after the channel. The event type rides in the AMQP type property.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	durable bool
	autoDel bool
}

// NewRabbitMQClient dials RabbitMQ and opens a channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
		durable: cfg.QueueDurable,
		autoDel: cfg.QueueAutoDelete,
	}, nil
}

func (r *RabbitMQClient) Publish(ctx context.Context, channel string, msg Message) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}
	if _, err := r.declareQueue(channel); err != nil {
		return "", err
	}

	publishing := toPublishing(msg, r.durable)
	if err := r.channel.PublishWithContext(ctx, "", channel, false, false, publishing); err != nil {
		return "", err
	}
	return publishing.MessageId, nil
}

// Subscribe consumes the channel's queue until ctx is cancelled.
// A handler error requeues the delivery.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if _, err := r.declareQueue(channel); err != nil {
		return err
	}

	consumerTag := rabbitAppID + "-" + uuid.NewString()
	deliveries, err := r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handler(ctx, fromDelivery(delivery)); err != nil {
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQClient) declareQueue(name string) (amqp.Queue, error) {
	return r.channel.QueueDeclare(name, r.durable, r.autoDel, false, false, nil)
}

func toPublishing(msg Message, durable bool) amqp.Publishing {
	headers := amqp.Table{}
	for key, value := range msg.Attributes {
		headers[key] = value
	}
	if msg.Key != "" {
		headers[headerOrderingKey] = msg.Key
	}

	mode := amqp.Transient
	if durable {
		mode = amqp.Persistent
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: mode,
		MessageId:    id,
		Type:         msg.Type,
		AppId:        rabbitAppID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         msg.Data,
	}
}

func fromDelivery(delivery amqp.Delivery) Message {
	msg := Message{
		ID:   delivery.MessageId,
		Type: delivery.Type,
		Data: delivery.Body,
	}
	for key, value := range delivery.Headers {
		text := headerString(value)
		if key == headerOrderingKey {
			msg.Key = text
			continue
		}
		if msg.Attributes == nil {
			msg.Attributes = make(map[string]string, len(delivery.Headers))
		}
		msg.Attributes[key] = text
	}
	return msg
}

func headerString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(value)
	}
}
