package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"

	accounts "github.com/ecopulse/go-accounts"
)

// DefaultActivityQueue is where lifecycle events land unless overridden.
const DefaultActivityQueue = "accounts.activity"

// AMQPPublisher ships activity events to a RabbitMQ queue so the back
// office can audit registrations, deactivations and sweeps. It satisfies
// accounts.ActivitySink, and publish failures are expected to be absorbed
// by the caller, matching the best effort contract of the sink.
type AMQPPublisher struct {
	url    string
	queue  string
	logger accounts.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

type AMQPOption func(*AMQPPublisher)

func WithAMQPQueue(queue string) AMQPOption {
	return func(p *AMQPPublisher) {
		if queue != "" {
			p.queue = queue
		}
	}
}

func WithAMQPLogger(logger accounts.Logger) AMQPOption {
	return func(p *AMQPPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewAMQPPublisher(url string, opts ...AMQPOption) (*AMQPPublisher, error) {
	if url == "" {
		return nil, goerrors.New("amqp publisher requires a broker url", goerrors.CategoryValidation)
	}

	p := &AMQPPublisher{
		url:   url,
		queue: DefaultActivityQueue,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Record implements accounts.ActivitySink.
func (p *AMQPPublisher) Record(ctx context.Context, event accounts.ActivityEvent) error {
	if err := p.publish(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.Error("failed to publish %s activity event: %v", event.EventType, err)
		}
		return err
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, event accounts.ActivityEvent) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "unable to encode activity event")
	}

	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.reset()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "amqp publish failed")
	}

	return nil
}

// channel returns the cached channel, dialing and declaring the queue on
// first use or after a publish failure dropped the connection.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "amqp dial failed")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "amqp channel open failed")
	}

	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "amqp queue declare failed")
	}

	p.conn = conn
	p.ch = ch

	return p.ch, nil
}

func (p *AMQPPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.reset()
	return nil
}
