package broker

import (
	"context"
	"sync"
	"time"

	"dining-service/internal/models"
	"dining-service/internal/util"

	"go.uber.org/zap"
)

const defaultActivityQueue = 1024

// ActivityRecorder ships committed events to Kafka in the background.
// Record never blocks; events are dropped when the queue is full.
type ActivityRecorder struct {
	producer *Producer
	queue    chan models.Envelope
	timeout  time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewActivityRecorder creates a recorder with the given queue size
func NewActivityRecorder(producer *Producer, queueSize int) *ActivityRecorder {
	if queueSize <= 0 {
		queueSize = defaultActivityQueue
	}
	return &ActivityRecorder{
		producer: producer,
		queue:    make(chan models.Envelope, queueSize),
		timeout:  10 * time.Second,
		done:     make(chan struct{}),
	}
}

// Record enqueues an event for publishing
func (r *ActivityRecorder) Record(_ context.Context, env models.Envelope) {
	select {
	case <-r.done:
		util.ActivityDroppedTotal.Inc()
		return
	default:
	}

	select {
	case r.queue <- env:
	default:
		util.ActivityDroppedTotal.Inc()
		util.GetLogger().Warn("Activity queue full, dropping event",
			zap.String("event_id", env.EventID),
			zap.String("type", string(env.Type)))
	}
}

// Start runs the publishing loop until Stop is called
func (r *ActivityRecorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case env := <-r.queue:
				r.publish(ctx, env)
			case <-r.done:
				r.flush(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop drains queued events and waits for the loop to exit
func (r *ActivityRecorder) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

func (r *ActivityRecorder) flush(ctx context.Context) {
	for {
		select {
		case env := <-r.queue:
			r.publish(ctx, env)
		default:
			return
		}
	}
}

func (r *ActivityRecorder) publish(ctx context.Context, env models.Envelope) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := env.CheckID
	if key == "" {
		key = env.StoreID
	}
	if err := r.producer.PublishEvent(ctx, key, env); err != nil {
		util.GetLogger().Error("Failed to publish activity event",
			zap.Error(err),
			zap.String("event_id", env.EventID),
			zap.String("check_id", env.CheckID))
	}
}
