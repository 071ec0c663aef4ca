package message_broaker

import (
	"context"
	"errors"

	"github.com/RezaEskandarii/tickqueue/types/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

const prefetchCount = 32

type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queueName   string
	exchange    string
	routingKey  string
	contentType string
}

// NewRabbitMQ dials cfg.URL and declares the durable queue. When an exchange is
// configured it is declared as "direct" and bound to the queue; otherwise the
// default exchange routes on the queue name.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.Queue == "" {
		return nil, errors.New("rabbitmq: queue is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	fail := func(err error) (*RabbitMQ, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fail(err)
	}

	routingKey := cfg.RoutingKey
	if cfg.Exchange != "" {
		if routingKey == "" {
			routingKey = cfg.Queue
		}
		if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
			return fail(err)
		}
		if err := ch.QueueBind(cfg.Queue, routingKey, cfg.Exchange, false, nil); err != nil {
			return fail(err)
		}
	} else {
		routingKey = cfg.Queue
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fail(err)
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	return &RabbitMQ{
		conn:        conn,
		channel:     ch,
		queueName:   cfg.Queue,
		exchange:    cfg.Exchange,
		routingKey:  routingKey,
		contentType: contentType,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, message []byte) error {
	return r.channel.PublishWithContext(ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  r.contentType,
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

// Consume streams deliveries with manual acknowledgement until ctx is done
// or the channel closes.
func (r *RabbitMQ) Consume(ctx context.Context) (<-chan Message, error) {
	deliveries, err := r.channel.Consume(r.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Message, prefetchCount)

	go func() {
		defer close(out)

		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				msg := NewMessage(d.Body,
					func() error { return d.Ack(false) },
					func(requeue bool) error { return d.Nack(false, requeue) },
				)
				select {
				case out <- msg:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
