package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	pkglog "github.com/IdoEfroni/Grocery/pkg/log"
)

// RabbitPublisher implements RequestPublisher. It declares the same topology
// as the consumer so either side can start first.
type RabbitPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitPublisher connects to the broker and prepares a publisher for
// thumbnail requests.
func NewRabbitPublisher(cfg Config) (*RabbitPublisher, error) {
	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := declareTopology(ch, cfg.Queue, cfg.RetryDelay); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitPublisher{
		conn:  conn,
		ch:    ch,
		queue: cfg.Queue,
	}, nil
}

// Publish enqueues one thumbnail request as a persistent JSON message on the
// work queue.
func (rp *RabbitPublisher) Publish(ctx context.Context, req *ThumbnailRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal thumbnail request: %w", err)
	}

	msgID := uuid.NewString()
	err = rp.ch.PublishWithContext(ctx, "", rp.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msgID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish thumbnail request: %w", err)
	}

	l := pkglog.L()
	l.Debug().
		Str(pkglog.FieldQueue, rp.queue).
		Str(pkglog.FieldMessageID, msgID).
		Str(pkglog.FieldSKU, req.SKU).
		Msg("published thumbnail request")
	return nil
}

// Close closes the channel and connection.
func (rp *RabbitPublisher) Close() error {
	if err := rp.ch.Close(); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	if err := rp.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
