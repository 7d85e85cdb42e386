package events

import (
	"context"
	"sync"

	"github.com/Tyrowin/chatroom/internal/logging"
)

const defaultQueueSize = 1024

// Emitter queues events for a background publisher so callers never block
// on the broker. Events that do not fit in the queue are dropped.
type Emitter struct {
	pub    Publisher
	logger logging.Logger
	queue  chan Envelope

	once sync.Once
	done chan struct{}
}

func NewEmitter(pub Publisher, logger logging.Logger, size int) *Emitter {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Emitter{
		pub:    pub,
		logger: logger.With("component", "events"),
		queue:  make(chan Envelope, size),
		done:   make(chan struct{}),
	}
}

// Emit enqueues an event and reports whether it was accepted.
func (e *Emitter) Emit(kind string, data any) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.queue <- NewEnvelope(kind, data):
		return true
	default:
		e.logger.Warn(context.Background(), "event queue full, dropping event", "type", kind)
		return false
	}
}

// Run publishes queued events until ctx is done, then drains what is left.
func (e *Emitter) Run(ctx context.Context) {
	defer e.once.Do(func() { close(e.done) })

	for {
		select {
		case env := <-e.queue:
			e.publish(ctx, env)
		case <-ctx.Done():
			e.drain()
			return
		}
	}
}

func (e *Emitter) drain() {
	for {
		select {
		case env := <-e.queue:
			e.publish(context.Background(), env)
		default:
			return
		}
	}
}

func (e *Emitter) publish(ctx context.Context, env Envelope) {
	if err := e.pub.Publish(ctx, env); err != nil {
		e.logger.Error(ctx, "event publish failed", "type", env.Type, "id", env.ID, "error", err)
	}
}

// Done is closed once Run has returned.
func (e *Emitter) Done() <-chan struct{} {
	return e.done
}
