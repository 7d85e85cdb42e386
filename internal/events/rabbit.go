package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/rabbitmq/amqp091-go"
)

const maxDialDelay = time.Minute

type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Logger        logging.Logger
}

// DialWithRetry connects to the broker with exponential backoff and gives up
// early when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts ConnectionOptions) (*amqp091.Connection, error) {
	attempts := max(opts.RetryAttempts, 1)
	var lastErr error

	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				opts.Logger.Info(ctx, "rabbit connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := min(opts.Delay*time.Duration(math.Pow(2, float64(i-1))), maxDialDelay)
		opts.Logger.Warn(ctx, "rabbit dial failed", "attempt", i, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Rabbit publishes envelopes as persistent JSON messages on a topic
// exchange. A fresh channel is opened per publish.
type Rabbit struct {
	conn        *amqp091.Connection
	openChannel func() (amqpChannel, error)
	exchange    string
	logger      logging.Logger
}

func NewRabbit(ctx context.Context, opts ConnectionOptions, exchange string) (*Rabbit, error) {
	conn, err := DialWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Rabbit{
		conn: conn,
		openChannel: func() (amqpChannel, error) {
			return conn.Channel()
		},
		exchange: exchange,
		logger:   opts.Logger.With("component", "events"),
	}, nil
}

func (r *Rabbit) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ch, err := r.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, r.exchange, env.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Type:         env.Type,
		Body:         body,
	})
	if err == nil {
		r.logger.Debug(ctx, "published", "key", env.Type, "exchange", r.exchange)
	}
	return err
}

func (r *Rabbit) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}
