package amqpsink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	pkghoststats "example.com/multiping/pkg/hoststats"
	pkgmyprom "example.com/multiping/pkg/myprom"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKindFanout = "fanout"

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]pkghoststats.HostInfo, error)
}

type Config struct {
	Exchange   string
	RoutingKey string
	// how long a single publish may take
	PublishTimeout time.Duration
}

// Publisher sends host table snapshots to a fanout exchange, one JSON message per snapshot.
type Publisher struct {
	ch     Channel
	conn   io.Closer
	config Config
}

// Dial connects to the broker at url and declares the exchange.
func Dial(url string, config Config) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	publisher, err := NewPublisher(ch, conn, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return publisher, nil
}

// NewPublisher declares the exchange on ch. conn, if not nil, is closed along with ch.
func NewPublisher(ch Channel, conn io.Closer, config Config) (*Publisher, error) {
	if config.Exchange == "" {
		return nil, fmt.Errorf("exchange name is required")
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	if err := ch.ExchangeDeclare(config.Exchange, exchangeKindFanout, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", config.Exchange, err)
	}
	return &Publisher{ch: ch, conn: conn, config: config}, nil
}

func buildPublishing(snap pkghoststats.Snapshot) (amqp.Publishing, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    snap.ID.String(),
		Timestamp:    snap.TakenAt,
		Body:         body,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, snap pkghoststats.Snapshot) error {
	msg, err := buildPublishing(snap)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx, p.config.Exchange, p.config.RoutingKey, false, false, msg)
}

// Run publishes a snapshot every interval until ctx is done. Failures are logged and
// the next tick tries again.
func (p *Publisher) Run(ctx context.Context, source SnapshotSource, interval time.Duration) {
	log.Printf("publisher goroutine for exchange %s is started", p.config.Exchange)
	defer log.Printf("publisher goroutine for exchange %s is exitting", p.config.Exchange)

	counterStore := pkgmyprom.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		hosts, err := source.Snapshot(ctx)
		if err != nil {
			log.Printf("failed to take snapshot for publishing: %v", err)
			continue
		}
		err = p.Publish(ctx, pkghoststats.NewSnapshot(hosts, time.Now()))
		if err != nil {
			log.Printf("failed to publish snapshot to %s: %v", p.config.Exchange, err)
		}
		if counterStore != nil {
			counterStore.NumSnapshotsPublish.WithLabelValues(fmt.Sprintf("%t", err != nil)).Inc()
		}
	}
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
	}
	return err
}
