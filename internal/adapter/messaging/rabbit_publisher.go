package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

const (
	DefaultExchange = "farmmarket.events"
	routingPrefix   = "notification."
	publishTimeout  = 5 * time.Second
)

// ErrUnavailable is returned while the breaker is open and publishes are
// being shed.
var ErrUnavailable = errors.New("event broker unavailable")

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// BreakerSettings tunes when the publisher stops calling the broker.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// RabbitPublisher sends committed notifications to a topic exchange, routed
// by severity, behind a circuit breaker.
type RabbitPublisher struct {
	ch       Channel
	exchange string
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

var _ port.EventPublisher = (*RabbitPublisher)(nil)

// DialRabbit opens a connection and channel to url. The returned close func
// releases both.
func DialRabbit(url string) (*amqp.Channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, func() error {
		ch.Close()
		return conn.Close()
	}, nil
}

func NewRabbitPublisher(ch Channel, exchange string, settings BreakerSettings, logger *zap.Logger) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &RabbitPublisher{ch: ch, exchange: exchange, logger: logger}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rabbitmq-" + exchange,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return p, nil
}

func (p *RabbitPublisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	_, err = p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return nil, p.ch.PublishWithContext(ctx, p.exchange, routingPrefix+string(n.Severity), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.ID,
			Timestamp:    n.CreatedAt,
			Body:         body,
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// State reports the breaker state: closed, half-open or open.
func (p *RabbitPublisher) State() string {
	return p.breaker.State().String()
}

func (p *RabbitPublisher) Close() error {
	return p.ch.Close()
}
