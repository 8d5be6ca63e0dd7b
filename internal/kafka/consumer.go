package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message is fully processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log.With(zap.String("topic", topic), zap.String("group", group))}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, jobs, h, c.r.CommitMessages, errs)
		}()
	}
	stop := func() {
		close(jobs)
		wg.Wait()
	}

	// FetchMessage leaves committing to the workers.
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			stop()
			return nil
		}

		// non-blocking drain so a slow worker can never deadlock the dispatcher
		select {
		case e := <-errs:
			c.log.Warn("worker error, backing off", zap.Error(e))
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}

// work handles jobs until the channel closes. Failures go to errs when the
// dispatcher has room for them and are dropped otherwise, so a worker never
// blocks on reporting.
func (c *Consumer) work(ctx context.Context, jobs <-chan kafka.Message, h Handler,
	commit func(context.Context, ...kafka.Message) error, errs chan<- error) {
	report := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}
	for m := range jobs {
		if err := h(ctx, m); err != nil {
			c.log.Error("handler failed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
			report(err)
			continue
		}
		if err := commit(ctx, m); err != nil {
			c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			report(err)
		}
	}
}
