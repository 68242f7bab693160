package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	pkglog "github.com/IdoEfroni/Grocery/pkg/log"
)

// RabbitConsumer implements RequestConsumer on top of a RabbitMQ work queue
// with manual acknowledgements. Requests are spread over a pool of worker
// goroutines; prefetch bounds how many deliveries the broker hands the pool
// at once.
type RabbitConsumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	tag        string
	handler    RequestHandler
	workers    int
	maxRetries int
	doneCh     chan struct{}
}

// NewRabbitConsumer connects to the broker, declares the queue topology and
// prepares a consumer for thumbnail requests.
func NewRabbitConsumer(cfg Config, handler RequestHandler) (*RabbitConsumer, error) {
	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := declareTopology(ch, cfg.Queue, cfg.RetryDelay); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	return &RabbitConsumer{
		conn:       conn,
		ch:         ch,
		queue:      cfg.Queue,
		tag:        "thumbnailer-" + uuid.NewString(),
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins consuming in background worker goroutines.
func (rc *RabbitConsumer) Start(ctx context.Context) error {
	deliveries, err := rc.ch.Consume(rc.queue, rc.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %s: %w", rc.queue, err)
	}

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldQueue, rc.queue).
		Int("workers", rc.workers).
		Msg("thumbnail request consumer started")

	var wg sync.WaitGroup
	for i := 0; i < rc.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.consumeLoop(ctx, deliveries)
		}()
	}

	go func() {
		wg.Wait()
		close(rc.doneCh)
	}()

	return nil
}

func (rc *RabbitConsumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			// Use a detached context so in-flight processing completes even after shutdown signal.
			rc.processDelivery(context.WithoutCancel(ctx), d)
		}
	}
}

func (rc *RabbitConsumer) processDelivery(ctx context.Context, d amqp.Delivery) {
	l := pkglog.L().With().
		Str(pkglog.FieldQueue, rc.queue).
		Str(pkglog.FieldMessageID, d.MessageId).
		Logger()
	ctx = pkglog.WithLogger(ctx, l)

	var req ThumbnailRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		// Redelivery cannot fix a malformed payload, so drop it.
		l.Error().Err(err).Msg("failed to unmarshal thumbnail request, dropping")
		rc.ack(d, l)
		return
	}

	err := rc.handler.HandleRequest(ctx, &req)
	if err == nil {
		rc.ack(d, l)
		return
	}

	attempts := deliveryAttempts(d.Headers, rc.queue)
	if attempts >= rc.maxRetries {
		l.Error().Err(err).
			Str(pkglog.FieldSKU, req.SKU).
			Int(pkglog.FieldAttempt, attempts).
			Msg("retry budget exhausted, parking request")
		rc.park(ctx, d, err, l)
		return
	}

	l.Warn().Err(err).
		Str(pkglog.FieldSKU, req.SKU).
		Int(pkglog.FieldAttempt, attempts).
		Msg("failed to handle thumbnail request, scheduling retry")
	if nackErr := d.Nack(false, false); nackErr != nil {
		l.Error().Err(nackErr).Msg("failed to nack delivery")
	}
}

// park moves an exhausted delivery onto the parking queue and acknowledges
// the original. If parking itself fails the delivery is rejected instead,
// which sends it through one more retry cycle and back here.
func (rc *RabbitConsumer) park(ctx context.Context, d amqp.Delivery, cause error, l zerolog.Logger) {
	pub := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  d.ContentType,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Body:         d.Body,
		Headers:      parkHeaders(d.Headers, cause),
	}
	if err := rc.ch.PublishWithContext(ctx, "", rc.queue+deadSuffix, false, false, pub); err != nil {
		l.Error().Err(err).Msg("failed to park delivery, rejecting for another cycle")
		if nackErr := d.Nack(false, false); nackErr != nil {
			l.Error().Err(nackErr).Msg("failed to nack delivery")
		}
		return
	}
	rc.ack(d, l)
}

func (rc *RabbitConsumer) ack(d amqp.Delivery, l zerolog.Logger) {
	if err := d.Ack(false); err != nil {
		l.Error().Err(err).Msg("failed to ack delivery")
	}
}

// Depth reports how many requests are waiting on the work queue. It opens a
// short-lived channel because the consuming channel is not safe for
// concurrent use.
func (rc *RabbitConsumer) Depth(ctx context.Context) (int, error) {
	ch, err := rc.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(rc.queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("inspect queue %s: %w", rc.queue, err)
	}
	return q.Messages, nil
}

// Close stops the broker from delivering new requests, waits for the worker
// pool to drain in-flight ones, then closes the channel and connection.
func (rc *RabbitConsumer) Close() error {
	if err := rc.ch.Cancel(rc.tag, false); err != nil {
		return fmt.Errorf("cancel consumer: %w", err)
	}
	<-rc.doneCh // wait for in-flight deliveries to complete

	if err := rc.ch.Close(); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	if err := rc.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
