package eventadmin

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// LifecycleEmitter turns Admin's internal lifecycle notifications (started,
// stopped, destroyed, handler_blacklisted, queue_full) into outbound CloudEvents,
// the way an operator dashboard or audit sink would want to observe engine health
// without polling Snapshot. Emission happens off the hot path: it is wired through
// Admin.OnLifecycleEvent/OnBlacklist, never called from Send or the worker's
// deliver loop directly.
type LifecycleEmitter struct {
	source string
	sink   func(ctx context.Context, event cloudevents.Event) error
	logger Logger
}

// NewLifecycleEmitter wires admin's lifecycle callbacks to emit CloudEvents with
// the given source identifier, delivered through sink (typically a cloudevents
// http/amqp/kafka protocol client's Send).
func NewLifecycleEmitter(admin *Admin, source string, sink func(ctx context.Context, event cloudevents.Event) error) *LifecycleEmitter {
	e := &LifecycleEmitter{source: source, sink: sink, logger: admin.logger}
	admin.OnLifecycleEvent(func(kind string, fields map[string]any) {
		e.emit(kind, fields)
	})
	admin.OnBlacklist(func(handlerID int64, topicPattern string) {
		e.emit("handler_blacklisted", map[string]any{"handler_id": handlerID, "topic_pattern": topicPattern})
	})
	return e
}

func (e *LifecycleEmitter) emit(kind string, fields map[string]any) {
	ev := cloudevents.NewEvent()
	ev.SetID(uuid.New().String())
	ev.SetSource(e.source)
	ev.SetType("com.celixgo.eventadmin." + kind)
	ev.SetTime(time.Now())
	if fields == nil {
		fields = map[string]any{}
	}
	if err := ev.SetData(cloudevents.ApplicationJSON, fields); err != nil {
		e.logger.Error("lifecycle event encode failed", "kind", kind, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.sink(ctx, ev); err != nil {
		e.logger.Warn("lifecycle event delivery failed", "kind", kind, "error", err)
	}
}
