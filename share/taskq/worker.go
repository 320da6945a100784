package taskq

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/datafoundry/shareflow/logger"
)

// Handler processes one task. A returned error means the task's share could
// not be advanced at all; per-item failures are recorded by the engine and do
// not surface here.
type Handler interface {
	HandleTask(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) HandleTask(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Worker consumes tasks from a queue and dispatches them to a handler. Run
// one worker per process; ordering within a share is preserved by the queue's
// partitioning, not by the worker.
type Worker struct {
	queue   Queue
	handler Handler

	cancel          context.CancelFunc
	backgroundGroup errgroup.Group

	logger logger.Logger
}

func NewWorker(queue Queue, handler Handler, log logger.Logger) *Worker {
	if log == nil {
		log = logger.NopLogger
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		logger:  log,
	}
}

// Start begins consuming tasks until Stop is called.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.backgroundGroup.Go(func() error {
		w.run(ctx)
		return nil
	})
}

// Stop halts consumption and waits for the in-flight task to finish.
func (w *Worker) Stop() error {
	w.cancel()
	return w.backgroundGroup.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		delivery, err := w.queue.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Printf("receiving task: %v", err)
			return
		}

		task := delivery.Task
		w.logger.Debugf("handling task %s (%s) for share %s", task.ID, task.Kind, task.ShareURI)

		if err := w.handler.HandleTask(ctx, task); err != nil {
			// The task is acked regardless: the share is left in a state the
			// engine can resume from, and retrying a share that is missing or
			// mid-transition would spin.
			w.logger.Printf("handling task %s (%s) for share %s: %v", task.ID, task.Kind, task.ShareURI, err)
		}

		if err := delivery.Ack(ctx); err != nil {
			w.logger.Printf("acking task %s: %v", task.ID, err)
		}
	}
}
