package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
	// Stop delivers what is already queued and refuses anything later.
	Stop()
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	// Fanout bounds concurrent publishes per notification.
	Fanout int
}

func DefaultOptions() Options {
	return Options{
		Workers:   4,
		QueueSize: 256,
		Timeout:   5 * time.Second,
		Fanout:    8,
	}
}

// Dispatcher hands queued notifications to a fixed pool of workers.
// Notify never blocks the caller; when the queue is full the notification is dropped.
type Dispatcher struct {
	WorkerPool chan chan WorkRequest
	opts       Options
	jobQueue   chan WorkRequest
	publisher  Publisher
	logger     *zap.Logger
	workers    []Worker
	workerWG   sync.WaitGroup
	stop       chan struct{}
	done       chan struct{}
	mu         sync.Mutex
	running    bool
	stopped    bool
}

func NewDispatcher(publisher Publisher, opts Options, logger *zap.Logger) *Dispatcher {
	defaults := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Fanout <= 0 {
		opts.Fanout = defaults.Fanout
	}

	return &Dispatcher{
		WorkerPool: make(chan chan WorkRequest, opts.Workers),
		opts:       opts,
		jobQueue:   make(chan WorkRequest, opts.QueueSize),
		publisher:  publisher,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (d *Dispatcher) Run() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopped {
		return
	}
	d.running = true

	for i := 0; i < d.opts.Workers; i++ {
		worker := NewWorker(i+1, d.WorkerPool, d.publisher, d.opts.Timeout, d.opts.Fanout, d.logger)
		worker.Start(&d.workerWG)
		d.workers = append(d.workers, worker)
	}

	go d.dispatch()
}

// Notify queues n for delivery. The caller's cancellation does not reach delivery,
// which outlives the request that triggered it.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if len(n.Recipients) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		d.logger.Warn("dispatcher stopped, dropping notification", zap.String("event", n.Event))
		return
	}

	select {
	case d.jobQueue <- WorkRequest{Notification: n, Ctx: context.WithoutCancel(ctx)}:
	default:
		d.logger.Warn("notification queue full, dropping notification",
			zap.String("event", n.Event),
			zap.Int("queue_size", d.opts.QueueSize))
	}
}

func (d *Dispatcher) dispatch() {
	for {
		select {
		case job := <-d.jobQueue:
			d.assign(job)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) assign(job WorkRequest) {
	jobChannel := <-d.WorkerPool
	jobChannel <- job
}

// drain delivers whatever is still queued, then stops every worker once it is idle.
func (d *Dispatcher) drain() {
	defer close(d.done)
	for {
		select {
		case job := <-d.jobQueue:
			d.assign(job)
		default:
			for _, worker := range d.workers {
				worker.Stop()
			}
			d.workerWG.Wait()
			d.logger.Info("notification dispatcher stopped", zap.Int("workers", len(d.workers)))
			return
		}
	}
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	running := d.running
	close(d.stop)
	d.mu.Unlock()

	if running {
		<-d.done
	}
}
