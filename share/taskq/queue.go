package taskq

import (
	"context"

	"github.com/datafoundry/shareflow/errors"
)

const (
	ErrQueueClosed errors.Code = "QueueClosed"
)

func NewErrQueueClosed() error {
	return errors.New(ErrQueueClosed, "task queue is closed")
}

// Queue is the transport tasks travel over. Implementations must not drop an
// unacknowledged task: a delivery that is never acked must be redelivered
// (after restart at the latest).
type Queue interface {
	// Enqueue publishes a task. It returns once the task is durably handed
	// to the transport.
	Enqueue(ctx context.Context, task Task) error

	// Next blocks until a task is available, ctx is canceled, or the queue
	// is closed.
	Next(ctx context.Context) (*Delivery, error)

	Close() error
}

// Delivery is one received task plus its acknowledgement handle.
type Delivery struct {
	Task Task

	ack func(ctx context.Context) error
}

// Ack marks the task as processed. For transports with offsets this commits
// the position; until then the task is eligible for redelivery.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// NewDelivery is exported for queue implementations.
func NewDelivery(task Task, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Task: task, ack: ack}
}

// Ensure type implements interface.
var _ Queue = (*ChannelQueue)(nil)

// ChannelQueue is an in-process Queue backed by a buffered channel. It is the
// transport used in tests and single-node deployments. Unacked tasks do not
// survive a restart, which is acceptable for those uses.
type ChannelQueue struct {
	ch      chan Task
	closing chan struct{}
}

func NewChannelQueue(size int) *ChannelQueue {
	return &ChannelQueue{
		ch:      make(chan Task, size),
		closing: make(chan struct{}),
	}
}

func (q *ChannelQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.ch <- task:
		return nil
	case <-q.closing:
		return NewErrQueueClosed()
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "enqueueing task")
	}
}

func (q *ChannelQueue) Next(ctx context.Context) (*Delivery, error) {
	select {
	case task := <-q.ch:
		return NewDelivery(task, nil), nil
	case <-q.closing:
		return nil, NewErrQueueClosed()
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for task")
	}
}

func (q *ChannelQueue) Close() error {
	close(q.closing)
	return nil
}
