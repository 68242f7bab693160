package log

const (
	// Message handling
	FieldSKU       = "sku"
	FieldOutcome   = "outcome"
	FieldQueue     = "queue"
	FieldMessageID = "message_id"
	FieldAttempt   = "attempt"

	// Storage
	FieldKey   = "key"
	FieldBytes = "bytes"

	// Timing
	FieldDuration = "duration_ms"

	// Service
	FieldService = "service"
)
