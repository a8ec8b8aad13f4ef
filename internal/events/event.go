// Package events defines the wire-level unit of work that flows from the
// ingest datagram server, through the ingest queue, to a Collector batch.
package events

import (
	"fmt"
	"time"
)

const (
	tsLayout = "2006-01-02T15:04:05Z"

	DefaultType     = "app.event"
	DefaultSeverity = "info"
)

// Event is a single structured telemetry record. Fields mirror the wire
// JSON shape exactly (no envelope wrapping at this layer).
type Event struct {
	Ts       string                 `json:"ts"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity"`
	Payload  map[string]interface{} `json:"payload"`
	Tags     map[string]string      `json:"tags,omitempty"`
}

// NowTs formats the current time per the wire timestamp contract:
// second-precision RFC3339 in UTC with a literal "Z" suffix.
func NowTs() string {
	return time.Now().UTC().Format(tsLayout)
}

// FromDatagram normalizes a raw decoded JSON object (as produced by the
// ingest datagram server) into an Event. raw is assumed to already be a
// JSON object (map[string]interface{}); callers must have rejected
// non-object payloads before calling this.
func FromDatagram(raw map[string]interface{}) Event {
	ev := Event{
		Ts:       coerceString(raw, "ts", NowTs()),
		Type:     coerceString(raw, "type", DefaultType),
		Severity: coerceString(raw, "severity", DefaultSeverity),
	}

	if payload, ok := raw["payload"].(map[string]interface{}); ok {
		ev.Payload = payload
	} else {
		ev.Payload = raw
	}

	if tagsRaw, ok := raw["tags"].(map[string]interface{}); ok {
		tags := make(map[string]string, len(tagsRaw))
		allStrings := true
		for k, v := range tagsRaw {
			s, ok := v.(string)
			if !ok {
				allStrings = false
				break
			}
			tags[k] = s
		}
		if allStrings {
			ev.Tags = tags
		}
	}

	return ev
}

// coerceString returns raw[key] stringified if present, or fallback if the
// key is absent. An empty string value is treated as present (not coerced
// to fallback) to match the source normalization rule of "default only on
// missing key".
func coerceString(raw map[string]interface{}, key, fallback string) string {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
