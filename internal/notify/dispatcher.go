package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 100
	defaultMaxAttempts = 3
	defaultBackoff     = 2 * time.Second
)

// Dispatcher delivers status change notifications off the request path.
// Delivery failures are retried and then logged; they never reach the caller.
type Dispatcher struct {
	notifier    Notifier
	publisher   EventPublisher
	log         *zap.Logger
	queue       chan StatusChange
	maxAttempts int
	backoff     time.Duration

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	worker  sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the buffered queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.queue = make(chan StatusChange, n)
	}
}

// WithRetry sets the attempt limit and the base delay between attempts.
func WithRetry(maxAttempts int, backoff time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.backoff = backoff
	}
}

// WithPublisher also emits every change as an event. A nil publisher is ignored.
func WithPublisher(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) {
		d.publisher = p
	}
}

// NewDispatcher creates a dispatcher. Call Start before enqueuing.
func NewDispatcher(notifier Notifier, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier:    notifier,
		log:         log,
		queue:       make(chan StatusChange, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	return d
}

// Start runs the delivery worker until Close is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.worker.Add(1)
	go func() {
		defer d.worker.Done()
		for {
			select {
			case change, ok := <-d.queue:
				if !ok {
					return
				}
				d.deliver(ctx, change)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Enqueue schedules change for delivery and returns immediately. When the queue
// is full the change is delivered on its own goroutine.
func (d *Dispatcher) Enqueue(change StatusChange) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping status notification", zap.String("request_id", change.RequestID))
		return
	}

	select {
	case d.queue <- change:
	default:
		d.log.Warn("notification queue full, delivering inline", zap.String("request_id", change.RequestID))
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			d.deliver(context.Background(), change)
		}()
	}
}

// Close stops accepting work, drains the queue and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.worker.Wait()
	d.pending.Wait()
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.log.Warn("close event publisher", zap.Error(err))
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, change StatusChange) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = d.notifier.SendStatusChange(ctx, change); err == nil {
			break
		}
		d.log.Warn("status notification attempt failed",
			zap.String("request_id", change.RequestID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-time.After(d.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			err = ctx.Err()
			attempt = d.maxAttempts
		}
	}
	if err != nil {
		d.log.Error("status notification not delivered",
			zap.String("request_id", change.RequestID),
			zap.String("owner_email", change.OwnerEmail),
			zap.Error(err),
		)
	}

	if d.publisher != nil {
		if perr := d.publisher.PublishStatusChange(ctx, change); perr != nil {
			d.log.Warn("status event not published", zap.String("request_id", change.RequestID), zap.Error(perr))
		}
	}
}
