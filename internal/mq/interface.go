package mq

import (
	"context"
	"time"
)

// ThumbnailRequest asks the worker to ensure a cached thumbnail exists for
// one product. It is the only message kind on the queue; producers that
// cannot import this package only need to match the JSON schema.
type ThumbnailRequest struct {
	SKU string `json:"sku"`
}

// Config holds the RabbitMQ transport settings shared by the consumer and
// publisher sides.
type Config struct {
	URL        string        `mapstructure:"url"`
	Queue      string        `mapstructure:"queue"`
	Workers    int           `mapstructure:"workers"`
	Prefetch   int           `mapstructure:"prefetch"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RequestHandler is the business-logic callback injected into the consumer.
//
// A nil error acknowledges the request. A non-nil error schedules a
// redelivery until the retry budget runs out, after which the request is
// parked on the dead-letter queue.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *ThumbnailRequest) error
}

// RequestConsumer abstracts the queue consumer for thumbnail requests.
type RequestConsumer interface {
	Start(ctx context.Context) error
	Close() error
}

// RequestPublisher abstracts the producer side of the thumbnail queue.
type RequestPublisher interface {
	Publish(ctx context.Context, req *ThumbnailRequest) error
	Close() error
}
