package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
)

var ErrPublisherClosed = errors.New("rabbitmq publisher closed")

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// RabbitPublisher publishes persistent JSON messages to one durable queue.
// The channel runs in confirm mode and a publish returns only once the broker
// has acknowledged it. Publishes are serialized on the channel.
type RabbitPublisher struct {
	mu    sync.Mutex
	conn  io.Closer
	ch    publishChannel
	Queue string
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("AMQP_DIAL_FAILED").Wrapf(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("AMQP_CHANNEL_FAILED").Wrapf(err, "open channel")
	}
	if err := DeclareQueue(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("AMQP_DECLARE_FAILED").With("queue", queue).Wrapf(err, "declare queue")
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("AMQP_CONFIRM_FAILED").Wrapf(err, "enable publisher confirms")
	}
	return &RabbitPublisher{conn: conn, ch: ch, Queue: queue}, nil
}

// DeclareQueue declares the durable queue shared by publisher and worker.
func DeclareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}

// Close releases the channel and connection. Publishing afterwards fails
// with ErrPublisherClosed.
func (p *RabbitPublisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// PublishJSON encodes body and publishes it to the queue through the default
// exchange.
func (p *RabbitPublisher) PublishJSON(ctx context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return oops.Code("AMQP_ENCODE_FAILED").Wrapf(err, "encode message")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrPublisherClosed
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         b,
	}
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.Queue, false, false, msg)
	if err != nil {
		return oops.Code("AMQP_PUBLISH_FAILED").With("queue", p.Queue).Wrapf(err, "publish")
	}
	// nil when the channel is not in confirm mode
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return oops.Code("AMQP_PUBLISH_FAILED").With("queue", p.Queue).Wrapf(err, "await confirm")
	}
	if !acked {
		return oops.Code("AMQP_PUBLISH_NACKED").With("queue", p.Queue, "message_id", msg.MessageId).Errorf("broker rejected message")
	}
	return nil
}
