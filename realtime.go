package linkedinmessaging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wirebird/linkedin-messaging/internal/httpkit"
)

// realtimeEnvelopeKey wraps every decorated event on the realtime
// stream; its payload's keys name the event categories.
const realtimeEnvelopeKey = "com.linkedin.realtimefrontend.DecoratedEvent"

// dataMarker prefixes event lines on the stream. Lines without it are
// heartbeats or comments and are skipped.
const dataMarker = "data:"

// EventHandler consumes one decoded realtime event. Handlers for a key
// run sequentially in registration order; a slow handler delays every
// later event on the same connection. A handler error is logged and
// does not disturb other handlers or keys.
type EventHandler func(ctx context.Context, event RealtimeEvent) error

// EventRegistry maps payload keys ("event", "reactionSummary",
// "reactionAdded") to their handlers. Registration may happen at any
// time, including while a listener is running; handlers cannot be
// removed.
type EventRegistry struct {
	mu       sync.Mutex
	order    []string
	handlers map[string][]EventHandler
}

// NewEventRegistry returns an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{handlers: make(map[string][]EventHandler)}
}

// Register appends a handler for a payload key.
func (r *EventRegistry) Register(key string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; !ok {
		r.order = append(r.order, key)
	}
	r.handlers[key] = append(r.handlers[key], h)
}

// keys returns the registered payload keys in registration order.
func (r *EventRegistry) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// handlersFor returns the handler chain for a key.
func (r *EventRegistry) handlersFor(key string) []EventHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := make([]EventHandler, len(r.handlers[key]))
	copy(hs, r.handlers[key])
	return hs
}

// RegisterEventHandler subscribes a handler to a realtime payload key.
// The client's registry is shared with any listener started afterwards
// (and with one already running).
func (c *Client) RegisterEventHandler(key string, h EventHandler) {
	c.registry.Register(key, h)
}

// Listen runs the realtime event stream until ctx is cancelled. It is
// a supervising loop: each pass opens a fresh streaming connection,
// consumes it to its end, logs whatever ended it, and reconnects
// immediately. There is deliberately no backoff and no retry bound; a
// persistently failing endpoint produces a tight reconnect loop.
//
// Listen returns ctx.Err() once cancelled. Cancelling ctx closes the
// underlying connection promptly; run at most one Listen per client.
func (c *Client) Listen(ctx context.Context) error {
	c.logger.Info("starting realtime event listener")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.streamOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("realtime stream failed, reconnecting", "error", err)
		} else {
			c.logger.Info("realtime stream closed by server, reconnecting")
		}
	}
}

// streamOnce opens one streaming connection and consumes it until the
// server closes it or reading fails. A nil return means the stream
// ended cleanly (EOF).
func (c *Client) streamOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.realtimeURL, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "text/event-stream")
	// Fresh id per connection so the server can tell reconnects apart.
	req.Header.Set("X-Li-Realtime-Session-Id", uuid.NewString())

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect realtime stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProtocolError{
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
	}
	c.logger.Debug("realtime stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataMarker) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, dataMarker))
		if data == "" {
			continue
		}
		c.dispatch(ctx, []byte(data))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read realtime stream: %w", err)
	}
	return nil
}

// dispatch decodes one event line and fans it out. For every registered
// payload key present and non-null in the event's payload, the payload
// is decoded into a RealtimeEvent and that key's handlers run in
// registration order. A decode or handler failure for one key never
// prevents the remaining keys from being checked.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	var envelope map[string]struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.Debug("realtime: skipping malformed event line", "error", err)
		return
	}
	payloadRaw := envelope[realtimeEnvelopeKey].Payload
	if len(payloadRaw) == 0 {
		return
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		c.logger.Debug("realtime: skipping malformed payload", "error", err)
		return
	}

	for _, key := range c.registry.keys() {
		raw, ok := payload[key]
		if !ok || string(raw) == "null" {
			continue
		}
		event, err := decodeRealtimeEvent(payload, key)
		if err != nil {
			c.logger.Warn("realtime: decode event failed", "key", key, "error", err)
			continue
		}
		for _, h := range c.registry.handlersFor(key) {
			if err := h(ctx, event); err != nil {
				c.logger.Warn("realtime handler error", "key", key, "error", err)
			}
		}
	}
}

// decodeRealtimeEvent assembles a RealtimeEvent from a payload's fields,
// decoding each field independently. Only a malformed value under the
// key being dispatched fails the decode; malformed sibling fields are
// dropped, so one bad value cannot poison every key in the payload.
func decodeRealtimeEvent(payload map[string]json.RawMessage, key string) (RealtimeEvent, error) {
	var ev RealtimeEvent
	for name, raw := range payload {
		if string(raw) == "null" {
			continue
		}
		var err error
		switch name {
		case "previousEventInConversation":
			ev.PreviousEventInConversation, err = decodeField[URN](raw)
		case "event":
			ev.Event, err = decodeField[ConversationEvent](raw)
		case "reactionAdded":
			ev.ReactionAdded, err = decodeField[bool](raw)
		case "actorMiniProfileUrn":
			ev.ActorMiniProfileURN, err = decodeField[URN](raw)
		case "eventUrn":
			ev.EventURN, err = decodeField[URN](raw)
		case "reactionSummary":
			ev.ReactionSummary, err = decodeField[ReactionSummary](raw)
		case "viewerReacted":
			ev.ViewerReacted, err = decodeField[bool](raw)
		}
		if err != nil && name == key {
			return RealtimeEvent{}, err
		}
	}
	return ev, nil
}

// decodeField unmarshals one payload field, yielding nil rather than a
// half-decoded value on failure.
func decodeField[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
