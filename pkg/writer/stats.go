package writer

import "errors"

// Stats is a snapshot of async writer counters.
type Stats struct {
	// QueueDepth is the number of writes currently pending.
	QueueDepth int

	// DroppedWrites counts writes dropped by backpressure.
	DroppedWrites int64

	// TotalWrites counts writes accepted into the queue.
	TotalWrites int64

	// FailedWrites counts writes the layer rejected.
	FailedWrites int64
}

var (
	// ErrQueueFull is returned when the queue stays full past MaxWaitTime.
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned for writes after Close.
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush gives up waiting.
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
