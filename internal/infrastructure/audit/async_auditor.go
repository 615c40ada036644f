package audit

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/internal/domain/service"
	"github.com/turtacn/linkguard/pkg/logger"
)

var _ service.AuditService = (*AsyncAuditor)(nil)

// DropRecorder counts events discarded because the buffer was full.
type DropRecorder interface {
	RecordAuditDropped()
}

// sinkTimeout bounds each write to the underlying sink.
const sinkTimeout = 5 * time.Second

// AsyncAuditor hands events to a background goroutine so request paths never wait
// on the audit sink. When the buffer is full the event is dropped and counted.
type AsyncAuditor struct {
	sink    service.AuditService
	drops   DropRecorder
	logger  logger.Logger
	events  chan models.AuditEvent
	done    chan struct{}
	closeMu sync.RWMutex
	closed  bool
}

// NewAsyncAuditor starts the background writer. bufferSize below 1 is treated as 1.
func NewAsyncAuditor(sink service.AuditService, bufferSize int, drops DropRecorder, log logger.Logger) *AsyncAuditor {
	if bufferSize < 1 {
		bufferSize = 1
	}
	a := &AsyncAuditor{
		sink:   sink,
		drops:  drops,
		logger: log.WithComponent("audit"),
		events: make(chan models.AuditEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// LogEvent enqueues event. It never blocks and never fails; a full buffer drops the event.
func (a *AsyncAuditor) LogEvent(ctx context.Context, event models.AuditEvent) error {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		a.drop(ctx, event)
		return nil
	}
	select {
	case a.events <- event:
	default:
		a.drop(ctx, event)
	}
	return nil
}

func (a *AsyncAuditor) drop(ctx context.Context, event models.AuditEvent) {
	if a.drops != nil {
		a.drops.RecordAuditDropped()
	}
	a.logger.Warn(ctx, "Dropping audit event",
		logger.String("event_type", string(event.EventType)),
		logger.String("user_id", event.UserID),
	)
}

func (a *AsyncAuditor) run() {
	defer close(a.done)
	for event := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := a.sink.LogEvent(ctx, event); err != nil {
			a.logger.Error(ctx, "Failed to write audit event", err,
				logger.String("event_type", string(event.EventType)),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffered ones are written or ctx ends.
func (a *AsyncAuditor) Close(ctx context.Context) error {
	a.closeMu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.closeMu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
