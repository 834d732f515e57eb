package webhook

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is a member of the closed set of domain occurrences that can trigger
// webhook delivery.
type Event string

const (
	EventUserCreated     Event = "USER_CREATED"
	EventUserUpdated     Event = "USER_UPDATED"
	EventUserDeleted     Event = "USER_DELETED"
	EventPostPublished   Event = "POST_PUBLISHED"
	EventPostUnpublished Event = "POST_UNPUBLISHED"
	EventCaseCreated     Event = "CASE_CREATED"
	EventServiceCreated  Event = "SERVICE_CREATED"
)

var eventEnum = []Event{
	EventUserCreated,
	EventUserUpdated,
	EventUserDeleted,
	EventPostPublished,
	EventPostUnpublished,
	EventCaseCreated,
	EventServiceCreated,
}

var acceptedEvents = func() map[Event]struct{} {
	out := make(map[Event]struct{}, len(eventEnum))
	for _, event := range eventEnum {
		out[event] = struct{}{}
	}
	return out
}()

// normalizeEvents uppercases, deduplicates and drops unknown event kinds.
func normalizeEvents(events []string) []string {
	if len(events) == 0 {
		return []string{}
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(events))
	for _, event := range events {
		next := strings.ToUpper(strings.TrimSpace(event))
		if next == "" {
			continue
		}
		if _, ok := acceptedEvents[Event(next)]; !ok {
			continue
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	return out
}

// Payload is the wire body of a webhook request. Field order is fixed by the
// struct so the serialized form is stable; receivers recompute the signature
// over these exact bytes.
type Payload struct {
	Event     Event                  `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// buildPayload serializes one payload for an event occurrence. The same bytes
// are reused for signing and transmission to every subscriber.
func buildPayload(event Event, data map[string]interface{}) ([]byte, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	return json.Marshal(Payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
}
