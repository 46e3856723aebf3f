package consumer

import "context"

// Router dispatches messages to the handler registered for their event type. Messages
// of unregistered types are acknowledged without action.
type Router struct {
	routes map[string]Handler
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// Route registers h for eventType.
func (r *Router) Route(eventType string, h Handler) *Router {
	r.routes[eventType] = h
	return r
}

// Handle implements Handler.
func (r *Router) Handle(ctx context.Context, msg Message) error {
	h, ok := r.routes[msg.EventType]
	if !ok {
		recordSkipped(msg)
		return nil
	}
	return h.Handle(ctx, msg)
}
