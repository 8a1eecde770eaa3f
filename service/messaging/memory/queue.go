package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vantus/warden/service/messaging"
)

// ErrQueueFull is returned by Publish when the queue buffer is exhausted.
var ErrQueueFull = errors.New("queue is full")

// Config for the in-memory queue implementation.
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for the memory queue.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Message implements messaging.Message for the in-memory queue.
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	retries   int
	mu        sync.Mutex
	processed bool
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	return nil
}

// Nack indicates a failure in processing the message. The message is
// re-queued after the configured delay until MaxRetries is exhausted, then
// moved to the dead-letter slice when DeadLetter is enabled.
func (m *Message[T]) Nack(error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.retries++

	if m.retries <= m.queue.config.MaxRetries {
		go m.queue.requeue(m)
	} else if m.queue.config.DeadLetter {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, m)
		m.queue.dlqMu.Unlock()
	}
	return nil
}

// Queue implements an in-memory messaging.Queue.
type Queue[T any] struct {
	messages chan *Message[T]
	dlq      []*Message[T]
	config   Config
	dlqMu    sync.Mutex
}

// NewQueue creates a new in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish adds a new item to the queue. It never blocks: when the buffer is
// exhausted ErrQueueFull is returned so a slow or absent consumer cannot
// stall producers.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := &Message[T]{
		id:      uuid.New().String(),
		payload: *t,
		queue:   q,
	}
	select {
	case q.messages <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume retrieves a single item from the queue.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue[T]) requeue(m *Message[T]) {
	time.Sleep(q.config.RetryDelay)
	retry := &Message[T]{
		id:      m.id,
		payload: m.payload,
		queue:   q,
		retries: m.retries,
	}
	select {
	case q.messages <- retry:
	default:
		// a full buffer must not pin the retry goroutine
		if q.config.DeadLetter {
			q.dlqMu.Lock()
			q.dlq = append(q.dlq, retry)
			q.dlqMu.Unlock()
		}
	}
}

// Size returns the current number of messages in the queue.
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue.
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
