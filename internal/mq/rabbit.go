package mq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// retrySuffix names the per-queue retry queue. Rejected deliveries sit
	// there for the retry delay, then flow back onto the work queue.
	retrySuffix = ".retry"
	// deadSuffix names the per-queue parking queue for requests that
	// exhausted their retry budget. Nothing consumes it; operators drain it
	// by hand after fixing the underlying problem.
	deadSuffix = ".dead"
)

// dial opens a connection and channel to the broker.
func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// declareTopology declares the work queue together with its retry and
// parking queues. All three are durable and bound through the default
// exchange, so each is addressed directly by name.
//
// Rejected deliveries dead-letter from the work queue into the retry queue,
// expire there after retryDelay, and dead-letter back onto the work queue.
// The broker's x-death header counts the round trips.
func declareTopology(ch *amqp.Channel, queue string, retryDelay time.Duration) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue + retrySuffix,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	_, err = ch.QueueDeclare(queue+retrySuffix, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
		"x-message-ttl":             retryDelay.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue+retrySuffix, err)
	}

	_, err = ch.QueueDeclare(queue+deadSuffix, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue+deadSuffix, err)
	}
	return nil
}

// parkHeaders builds the headers for a parked copy of a delivery. The
// original headers are carried over so the x-death history stays visible
// to whoever inspects the parking queue, and the final error is recorded
// under x-last-error.
func parkHeaders(headers amqp.Table, cause error) amqp.Table {
	out := make(amqp.Table, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out["x-last-error"] = cause.Error()
	return out
}

// deliveryAttempts reports how many times a delivery has already been
// rejected from the work queue, taken from the broker-maintained x-death
// header. A fresh delivery has no header and counts as zero.
func deliveryAttempts(headers amqp.Table, queue string) int {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}

	for _, entry := range deaths {
		t, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		if q, _ := t["queue"].(string); q != queue {
			continue
		}
		if reason, _ := t["reason"].(string); reason != "rejected" {
			continue
		}
		switch n := t["count"].(type) {
		case int64:
			return int(n)
		case int32:
			return int(n)
		case int:
			return n
		}
	}
	return 0
}
