// Package scan bridges the third-party facial-scan provider into the
// consultation. The provider posts action-tagged messages from an
// embedded surface; this package turns them into typed events behind an
// explicit subscription that is torn down with its owner, instead of
// ambient global listeners.
package scan

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Action discriminators posted by the scan provider.
const (
	ActionAnalysisStart    = "onAnalysisStart"
	ActionAnalysisFinished = "onHealthAnalysisFinished"
	ActionAnalysisFailed   = "failedToGetHealthAnalysisResult"
)

// Event is one provider notification. Result carries the terminal
// analysis payload for ActionAnalysisFinished; it is forwarded to the
// clinician byte-for-byte.
type Event struct {
	Action string          `json:"action"`
	Result json.RawMessage `json:"analysisData,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Source emits provider events to subscribers.
type Source interface {
	Subscribe(fn func(Event)) Subscription
}

// Subscription unhooks one subscriber. Close is idempotent.
type Subscription interface {
	Close()
}

// Bridge is a Source fed by Post calls from whatever surface embeds the
// provider. Messages from any other origin are dropped.
type Bridge struct {
	origin string
	logger *zap.Logger

	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

// NewBridge creates a bridge that accepts messages from allowedOrigin only.
func NewBridge(allowedOrigin string, logger *zap.Logger) *Bridge {
	return &Bridge{
		origin: allowedOrigin,
		logger: logger.Named("scan"),
		subs:   make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every accepted provider event.
func (b *Bridge) Subscribe(fn func(Event)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = fn
	return &subscription{bridge: b, id: id}
}

// Post feeds one raw provider message into the bridge. Messages from a
// different origin, unparseable messages, and messages without an action
// are dropped.
func (b *Bridge) Post(origin string, raw []byte) {
	if origin != b.origin {
		b.logger.Warn("drop message from unexpected origin", zap.String("origin", origin))
		return
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		b.logger.Warn("drop unparseable provider message", zap.Error(err))
		return
	}
	if ev.Action == "" {
		b.logger.Warn("drop provider message without action")
		return
	}

	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type subscription struct {
	bridge *Bridge
	id     int
	once   sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bridge.mu.Lock()
		delete(s.bridge.subs, s.id)
		s.bridge.mu.Unlock()
	})
}
