package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type WorkRequest struct {
	Notification Notification
	Ctx          context.Context
}

type Worker struct {
	ID         int
	WorkerPool chan chan WorkRequest
	JobChannel chan WorkRequest
	quit       chan struct{}
	publisher  Publisher
	timeout    time.Duration
	fanout     int
	logger     *zap.Logger
}

func NewWorker(id int, workerPool chan chan WorkRequest, publisher Publisher, timeout time.Duration, fanout int, logger *zap.Logger) Worker {
	return Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan WorkRequest),
		quit:       make(chan struct{}),
		publisher:  publisher,
		timeout:    timeout,
		fanout:     fanout,
		logger:     logger,
	}
}

func (w Worker) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.deliver(job)
			case <-w.quit:
				return
			}
		}
	}()
}

// deliver publishes to every recipient concurrently. A failed recipient does not stop the others.
func (w Worker) deliver(job WorkRequest) {
	ctx, cancel := context.WithTimeout(job.Ctx, w.timeout)
	defer cancel()

	n := job.Notification
	var g errgroup.Group
	g.SetLimit(w.fanout)
	for _, userID := range n.Recipients {
		g.Go(func() error {
			err := w.publisher.Publish(ctx, userID, n.Event, n.Payload)
			if err != nil {
				w.logger.Warn("failed to deliver notification",
					zap.Int("worker_id", w.ID),
					zap.String("event", n.Event),
					zap.Int64("user_id", userID),
					zap.Error(err))
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		w.logger.Error("notification delivery incomplete",
			zap.String("event", n.Event),
			zap.Int("recipients", len(n.Recipients)),
			zap.Error(err))
	}
}

func (w Worker) Stop() {
	close(w.quit)
}
