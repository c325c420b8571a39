package datachannel

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Handler processes the raw bytes of one message type.
type Handler func(raw []byte)

// Router dispatches inbound application messages by their "type"
// discriminator. Parse failures and unknown types are logged and
// dropped, never propagated; new message types must not break old
// receivers.
type Router struct {
	logger   *zap.Logger
	handlers map[string]Handler
}

// NewRouter creates a message router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger.Named("datachannel"),
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a message type. Later registrations for
// the same type replace earlier ones.
func (r *Router) Register(msgType string, h Handler) {
	r.handlers[msgType] = h
}

// Dispatch parses a raw inbound message and routes it to its handler.
func (r *Router) Dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Warn("drop unparseable message", zap.Error(err))
		return
	}
	if env.Type == "" {
		r.logger.Warn("drop message without type")
		return
	}

	h, ok := r.handlers[env.Type]
	if !ok {
		r.logger.Debug("ignore unknown message type", zap.String("type", env.Type))
		return
	}
	h(raw)
}
