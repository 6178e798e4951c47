package realtime

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: "request.created", Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []string{"request.created", "offer.created"},
	}}

	if !h.shouldSend(client, &Event{Type: "request.created"}) {
		t.Error("Should receive request.created events")
	}
	if !h.shouldSend(client, &Event{Type: "offer.created"}) {
		t.Error("Should receive offer.created events")
	}
	if h.shouldSend(client, &Event{Type: "offer.completed"}) {
		t.Error("Should NOT receive offer.completed events")
	}
}

func TestShouldSend_AirportFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Airports: []string{"GRU"},
	}}

	matchingOrigin := &Event{
		Type: "request.created",
		Data: map[string]interface{}{"origin": "GRU", "destination": "MIA"},
	}
	matchingDestination := &Event{
		Type: "request.created",
		Data: map[string]interface{}{"origin": "LIS", "destination": "GRU"},
	}
	notMatching := &Event{
		Type: "request.created",
		Data: map[string]interface{}{"origin": "GIG", "destination": "MCO"},
	}
	noRoute := &Event{
		Type: "offer.accepted",
		Data: struct{ ID string }{"off_1"},
	}

	if !h.shouldSend(client, matchingOrigin) {
		t.Error("Should match on origin")
	}
	if !h.shouldSend(client, matchingDestination) {
		t.Error("Should match on destination")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated routes")
	}
	if !h.shouldSend(client, noRoute) {
		t.Error("Events without route data pass the airport filter")
	}
}

func TestPublishOrderEventDoesNotBlock(t *testing.T) {
	h := testHub()

	// The hub loop is not running; the buffered channel absorbs events and
	// the overflow path drops instead of blocking.
	for i := 0; i < 500; i++ {
		h.PublishOrderEvent("request.created", map[string]interface{}{"origin": "GRU"})
	}
}
