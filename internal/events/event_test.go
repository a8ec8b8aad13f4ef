package events

import "testing"

func TestFromDatagramDefaults(t *testing.T) {
	raw := map[string]interface{}{"foo": "bar"}
	ev := FromDatagram(raw)

	if ev.Type != DefaultType {
		t.Fatalf("expected default type %q, got %q", DefaultType, ev.Type)
	}
	if ev.Severity != DefaultSeverity {
		t.Fatalf("expected default severity %q, got %q", DefaultSeverity, ev.Severity)
	}
	if ev.Ts == "" {
		t.Fatal("expected a generated timestamp")
	}
	if ev.Payload["foo"] != "bar" {
		t.Fatalf("expected payload to fall back to the whole object, got %v", ev.Payload)
	}
}

func TestFromDatagramExplicitPayload(t *testing.T) {
	raw := map[string]interface{}{
		"ts":       "2026-01-01T00:00:00Z",
		"type":     "custom.type",
		"severity": "warn",
		"payload":  map[string]interface{}{"k": "v"},
		"tags":     map[string]interface{}{"env": "prod"},
	}
	ev := FromDatagram(raw)

	if ev.Ts != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected ts: %s", ev.Ts)
	}
	if ev.Type != "custom.type" {
		t.Fatalf("unexpected type: %s", ev.Type)
	}
	if ev.Payload["k"] != "v" {
		t.Fatalf("expected explicit payload, got %v", ev.Payload)
	}
	if ev.Tags["env"] != "prod" {
		t.Fatalf("expected tags to be carried through, got %v", ev.Tags)
	}
}

func TestFromDatagramNonStringTagsDropped(t *testing.T) {
	raw := map[string]interface{}{
		"tags": map[string]interface{}{"count": float64(3)},
	}
	ev := FromDatagram(raw)

	if ev.Tags != nil {
		t.Fatalf("expected tags to be dropped when not all values are strings, got %v", ev.Tags)
	}
}

func TestFromDatagramCoercesNonStringType(t *testing.T) {
	raw := map[string]interface{}{"type": float64(5)}
	ev := FromDatagram(raw)

	if ev.Type != "5" {
		t.Fatalf("expected coerced type \"5\", got %q", ev.Type)
	}
}
