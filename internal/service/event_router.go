package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// EventRouter is the engine's domain.EventSink. Each committed event is
// stored, then published on its kind's channel and appended to the event
// stream.
type EventRouter struct {
	store  domain.EventStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEventRouter creates an EventRouter. bus may be nil.
func NewEventRouter(store domain.EventStore, bus domain.SignalBus, logger *slog.Logger) *EventRouter {
	return &EventRouter{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "event_router")),
	}
}

// Emit routes ev. A storage failure stops routing; bus failures are joined
// and returned after both bus writes were attempted.
func (r *EventRouter) Emit(ctx context.Context, ev domain.Event) error {
	if err := r.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("event_router: append %s: %w", ev.ID, err)
	}
	if r.bus == nil {
		return nil
	}

	payload, err := json.Marshal(ev.Record())
	if err != nil {
		return fmt.Errorf("event_router: marshal %s: %w", ev.ID, err)
	}

	var errs []error
	if err := r.bus.Publish(ctx, domain.EventChannel(ev.Kind), payload); err != nil {
		errs = append(errs, fmt.Errorf("publish: %w", err))
	}
	if err := r.bus.StreamAppend(ctx, domain.StreamEngineEvents, payload); err != nil {
		errs = append(errs, fmt.Errorf("stream append: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event_router: %s: %w", ev.ID, err)
	}

	r.logger.DebugContext(ctx, "event routed",
		slog.String("id", ev.ID),
		slog.String("kind", string(ev.Kind)),
	)
	return nil
}

var _ domain.EventSink = (*EventRouter)(nil)
