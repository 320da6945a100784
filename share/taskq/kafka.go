package taskq

import (
	"context"
	"encoding/json"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/logger"
)

// Ensure type implements interface.
var _ Queue = (*KafkaQueue)(nil)

// KafkaConfig configures the kafka-backed queue.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	GroupID string   `toml:"group-id"`

	Logger logger.Logger `toml:"-"`
}

// KafkaQueue is a Queue on a kafka topic. Tasks are keyed by share URI so
// that tasks for the same share land on the same partition and are consumed
// in order. Offsets are committed on Ack, which is what makes delivery at
// least once.
type KafkaQueue struct {
	writer *segmentio.Writer
	reader *segmentio.Reader
	logger logger.Logger
}

func NewKafkaQueue(cfg KafkaConfig) *KafkaQueue {
	log := cfg.Logger
	if log == nil {
		log = logger.NopLogger
	}
	return &KafkaQueue{
		writer: &segmentio.Writer{
			Addr:     segmentio.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &segmentio.Hash{},
		},
		reader: segmentio.NewReader(segmentio.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		}),
		logger: log,
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, task Task) error {
	value, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "marshalling task")
	}
	msg := segmentio.Message{
		Key:   []byte(task.ShareURI),
		Value: value,
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "writing task %s", task.ID)
	}
	return nil
}

func (q *KafkaQueue) Next(ctx context.Context) (*Delivery, error) {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetching task message")
		}

		var task Task
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			// A malformed message can never succeed; commit past it.
			q.logger.Printf("dropping malformed task message at offset %d: %v", msg.Offset, err)
			if cerr := q.reader.CommitMessages(ctx, msg); cerr != nil {
				return nil, errors.Wrap(cerr, "committing past malformed message")
			}
			continue
		}

		return NewDelivery(task, func(ctx context.Context) error {
			return errors.Wrap(q.reader.CommitMessages(ctx, msg), "committing task message")
		}), nil
	}
}

func (q *KafkaQueue) Close() error {
	err := q.writer.Close()
	err2 := q.reader.Close()
	if err != nil {
		return errors.Wrap(err, "closing kafka writer")
	}
	return errors.Wrap(err2, "closing kafka reader")
}
