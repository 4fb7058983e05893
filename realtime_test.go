package linkedinmessaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// envelope wraps a payload JSON object the way the realtime stream does.
func envelope(payload string) []byte {
	return fmt.Appendf(nil, `{"com.linkedin.realtimefrontend.DecoratedEvent":{"payload":%s}}`, payload)
}

const messageEventPayload = `{
	"previousEventInConversation": "urn:li:fs_event:(2-abc,prev)",
	"event": {
		"entityUrn": "urn:li:fs_event:(2-abc,S4CzAAA=)",
		"createdAt": 1609459200000,
		"eventContent": {
			"com.linkedin.voyager.messaging.event.MessageEvent": {
				"attributedBody": {"text": "hello there"}
			}
		}
	}
}`

func TestDispatch_HandlersRunInRegistrationOrder(t *testing.T) {
	client := NewClient()
	var calls []string
	client.RegisterEventHandler("event", func(ctx context.Context, ev RealtimeEvent) error {
		calls = append(calls, "first")
		if ev.Event == nil {
			t.Error("event field should be decoded")
		} else if got := ev.Event.EventContent.MessageEvent.AttributedBody.Text; got != "hello there" {
			t.Errorf("body text = %q", got)
		}
		if ev.PreviousEventInConversation == nil || ev.PreviousEventInConversation.LastID() != "prev" {
			t.Errorf("previous event = %v", ev.PreviousEventInConversation)
		}
		return nil
	})
	client.RegisterEventHandler("event", func(ctx context.Context, ev RealtimeEvent) error {
		calls = append(calls, "second")
		return nil
	})

	client.dispatch(context.Background(), envelope(messageEventPayload))

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("handler calls = %v, want [first second]", calls)
	}
}

func TestDispatch_UnrelatedKeyNotInvoked(t *testing.T) {
	client := NewClient()
	var reactionCalls atomic.Int32
	client.RegisterEventHandler("reactionSummary", func(ctx context.Context, ev RealtimeEvent) error {
		reactionCalls.Add(1)
		return nil
	})

	client.dispatch(context.Background(), envelope(messageEventPayload))
	if reactionCalls.Load() != 0 {
		t.Error("reactionSummary handler must not run for a message event")
	}

	// An explicit null for the key is treated the same as absence.
	client.dispatch(context.Background(), envelope(`{"reactionSummary": null}`))
	if reactionCalls.Load() != 0 {
		t.Error("reactionSummary handler must not run for a null payload value")
	}
}

func TestDispatch_ReactionEvent(t *testing.T) {
	client := NewClient()
	var got RealtimeEvent
	client.RegisterEventHandler("reactionSummary", func(ctx context.Context, ev RealtimeEvent) error {
		got = ev
		return nil
	})

	client.dispatch(context.Background(), envelope(`{
		"reactionAdded": true,
		"actorMiniProfileUrn": "urn:li:fs_miniProfile:actor",
		"eventUrn": "urn:li:fs_event:(2-abc,S4CzAAA=)",
		"reactionSummary": {"count": 3, "emoji": "👍", "firstReactedAt": 1609459200000, "viewerReacted": false},
		"viewerReacted": false
	}`))

	if got.ReactionSummary == nil {
		t.Fatal("reactionSummary should be decoded")
	}
	if got.ReactionSummary.Count != 3 {
		t.Errorf("count = %d, want 3", got.ReactionSummary.Count)
	}
	if got.ReactionAdded == nil || !*got.ReactionAdded {
		t.Error("reactionAdded should decode to true")
	}
	if got.EventURN == nil || got.EventURN.LastID() != "S4CzAAA=" {
		t.Errorf("eventUrn = %v", got.EventURN)
	}
}

func TestDispatch_HandlerErrorDoesNotStopOtherKeys(t *testing.T) {
	client := NewClient()
	var secondRan bool
	client.RegisterEventHandler("event", func(ctx context.Context, ev RealtimeEvent) error {
		return errors.New("handler blew up")
	})
	client.RegisterEventHandler("reactionSummary", func(ctx context.Context, ev RealtimeEvent) error {
		secondRan = true
		return nil
	})

	client.dispatch(context.Background(), envelope(`{
		"event": {"entityUrn": "urn:li:fs_event:(a,b)"},
		"reactionSummary": {"count": 1, "emoji": "x", "firstReactedAt": 0, "viewerReacted": true}
	}`))

	if !secondRan {
		t.Error("a handler error on one key must not suppress other keys")
	}
}

func TestDispatch_DecodeFailureDoesNotStopOtherKeys(t *testing.T) {
	client := NewClient()
	var eventCalls atomic.Int32
	var got RealtimeEvent
	client.RegisterEventHandler("event", func(ctx context.Context, ev RealtimeEvent) error {
		eventCalls.Add(1)
		return nil
	})
	client.RegisterEventHandler("reactionSummary", func(ctx context.Context, ev RealtimeEvent) error {
		got = ev
		return nil
	})

	// The event value has the wrong type; the reaction fields are fine.
	client.dispatch(context.Background(), envelope(`{
		"event": 42,
		"eventUrn": "urn:li:fs_event:(2-abc,ev1)",
		"reactionSummary": {"count": 2, "emoji": "🔥", "firstReactedAt": 0, "viewerReacted": true}
	}`))

	if eventCalls.Load() != 0 {
		t.Error("event handler must not run when its value fails to decode")
	}
	if got.ReactionSummary == nil || got.ReactionSummary.Count != 2 {
		t.Fatalf("reactionSummary = %+v, want it dispatched despite the bad sibling field", got.ReactionSummary)
	}
	if got.EventURN == nil || got.EventURN.LastID() != "ev1" {
		t.Errorf("eventUrn = %v", got.EventURN)
	}
	if got.Event != nil {
		t.Error("the undecodable event field should be left nil")
	}
}

func TestDispatch_MalformedLineIgnored(t *testing.T) {
	client := NewClient()
	client.RegisterEventHandler("event", func(ctx context.Context, ev RealtimeEvent) error {
		t.Error("no handler should run for malformed input")
		return nil
	})

	client.dispatch(context.Background(), []byte("{not json"))
	client.dispatch(context.Background(), []byte(`{"some.other.envelope":{"payload":{"event":{}}}}`))
	client.dispatch(context.Background(), envelope(`"not an object"`))
}

func TestListen_ReconnectsUntilCancelled(t *testing.T) {
	var conns atomic.Int32
	eventSeen := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Li-Realtime-Session-Id") == "" {
			t.Error("stream request should carry a realtime session id")
		}
		switch conns.Add(1) {
		case 1:
			// First connection fails outright.
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			// Second serves one event amid heartbeat noise, then closes.
			flusher := w.(http.Flusher)
			fmt.Fprintf(w, ": comment line\n")
			fmt.Fprintf(w, "\n")
			fmt.Fprintf(w, "data: %s\n", envelope(messageEventPayload))
			flusher.Flush()
		default:
			// Later connections block until the client goes away.
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	client := NewClient(WithRealtimeURL(srv.URL))
	client.RegisterEventHandler("event", func(ctx context.Context, ev RealtimeEvent) error {
		select {
		case eventSeen <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Listen(ctx) }()

	select {
	case <-eventSeen:
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered: listener did not survive the failed first connection")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Listen returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancellation")
	}

	if conns.Load() < 2 {
		t.Errorf("connection count = %d, want at least 2 (reconnect after failure)", conns.Load())
	}
}
