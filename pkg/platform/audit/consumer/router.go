package consumer

import (
	"context"
	"log/slog"
	"sync/atomic"

	"memberportal/internal/platform/kafka/consumer"
)

// Router fans audit messages out by topic. Messages on a topic nobody
// registered are logged, counted and acknowledged so they are not redelivered.
type Router struct {
	routes   map[string]consumer.Handler
	logger   *slog.Logger
	unrouted atomic.Int64
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{routes: map[string]consumer.Handler{}, logger: logger}
}

// Route binds handler to topic, replacing any earlier binding.
func (r *Router) Route(topic string, handler consumer.Handler) *Router {
	r.routes[topic] = handler
	return r
}

// Topics lists the routed topics for subscription.
func (r *Router) Topics() []string {
	out := make([]string, 0, len(r.routes))
	for t := range r.routes {
		out = append(out, t)
	}
	return out
}

// Unrouted is the number of messages dropped for lack of a route.
func (r *Router) Unrouted() int64 { return r.unrouted.Load() }

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	h, ok := r.routes[msg.Topic]
	if ok {
		return h.Handle(ctx, msg)
	}
	r.unrouted.Add(1)
	r.logger.WarnContext(ctx, "audit message on unrouted topic dropped",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
