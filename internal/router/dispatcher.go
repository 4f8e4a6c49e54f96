package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_airtime_bot/internal/logging"
	"tg_airtime_bot/internal/metrics"
)

var (
	// ErrQueueClosed is returned when Submit is called after Close.
	ErrQueueClosed = errors.New("dispatcher: queue closed")
	// ErrQueueFull means the sender's queue is saturated and the update was dropped.
	ErrQueueFull = errors.New("dispatcher: queue full")
)

const (
	// DefaultQueueSize is the per-user queue depth before updates are dropped.
	DefaultQueueSize = 16
	// DefaultIdleTimeout is how long a user worker waits for work before exiting.
	DefaultIdleTimeout = time.Minute
)

// HandlerFunc processes one update.
type HandlerFunc func(ctx context.Context, update *models.Update)

// DispatcherOptions tunes a Dispatcher. Zero values use defaults.
type DispatcherOptions struct {
	QueueSize   int
	IdleTimeout time.Duration
	Metrics     metrics.Recorder
	Logger      *logrus.Entry
}

// Dispatcher serializes updates per user while running different users in
// parallel. Each active user gets one worker goroutine that exits after
// IdleTimeout without work.
type Dispatcher struct {
	handle  HandlerFunc
	opts    DispatcherOptions
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	queues  map[int64]chan *models.Update
	closed  bool
	wg      sync.WaitGroup
	metrics metrics.Recorder
	logger  *logrus.Entry
}

// NewDispatcher starts an empty dispatcher. Handlers receive a context that
// is cancelled by Close.
func NewDispatcher(handle HandlerFunc, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		handle:  handle,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[int64]chan *models.Update),
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Submit enqueues update on its sender's queue without blocking.
func (d *Dispatcher) Submit(update *models.Update) error {
	if update == nil {
		return nil
	}

	key := senderID(update)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrQueueClosed
	}

	queue, ok := d.queues[key]
	if !ok {
		queue = make(chan *models.Update, d.opts.QueueSize)
		d.queues[key] = queue
		d.wg.Add(1)
		go d.worker(key, queue)
	}

	select {
	case queue <- update:
		return nil
	default:
		d.metrics.IncUpdateDropped()
		d.logger.WithFields(logging.Fields{
			"event":     "update_dropped",
			"user_id":   key,
			"update_id": update.ID,
		}).Warn("per-user queue is full, dropping update")
		return ErrQueueFull
	}
}

// Active returns the number of running user workers.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close rejects new updates, cancels in-flight handlers and waits for every
// worker to exit. Queued updates not yet started are discarded.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) worker(key int64, queue chan *models.Update) {
	defer d.wg.Done()

	idle := time.NewTimer(d.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.forget(key)
			return
		case update := <-queue:
			d.handle(d.ctx, update)
			resetTimer(idle, d.opts.IdleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if len(queue) > 0 {
				d.mu.Unlock()
				idle.Reset(d.opts.IdleTimeout)
				continue
			}
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
	}
}

func (d *Dispatcher) forget(key int64) {
	d.mu.Lock()
	delete(d.queues, key)
	d.mu.Unlock()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
