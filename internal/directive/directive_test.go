package directive

import (
	"testing"
)

type fakeApplier struct {
	goDark          bool
	refreshed       int
	heartbeatSec    int
	flushed         int
}

func (f *fakeApplier) SetGoDark(dark bool)             { f.goDark = dark }
func (f *fakeApplier) RefreshPolicy()                  { f.refreshed++ }
func (f *fakeApplier) SetHeartbeatIntervalSec(sec int) { f.heartbeatSec = sec }
func (f *fakeApplier) FlushStats()                     { f.flushed++ }

func TestParseEnvelopeExtractsKnownDirectives(t *testing.T) {
	body := map[string]interface{}{
		"result": map[string]interface{}{
			"directives": []interface{}{
				map[string]interface{}{"type": "GO_DARK"},
				map[string]interface{}{"type": "SET_HEARTBEAT_INTERVAL", "value": float64(45), "ttlSec": float64(120)},
			},
		},
	}
	ds := ParseEnvelope(body)
	if len(ds) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(ds))
	}
	if ds[0].Type != TypeGoDark {
		t.Fatalf("unexpected first type: %s", ds[0].Type)
	}
	if ds[1].TTLSec == nil || *ds[1].TTLSec != 120 {
		t.Fatalf("expected ttlSec 120, got %v", ds[1].TTLSec)
	}
}

func TestParseEnvelopeIgnoresMalformed(t *testing.T) {
	body := map[string]interface{}{
		"result": map[string]interface{}{
			"directives": []interface{}{
				"not an object",
				map[string]interface{}{"value": "missing type"},
				42,
			},
		},
	}
	if ds := ParseEnvelope(body); len(ds) != 0 {
		t.Fatalf("expected 0 directives from malformed input, got %d", len(ds))
	}
}

func TestParseEnvelopeMissingResult(t *testing.T) {
	if ds := ParseEnvelope(map[string]interface{}{}); len(ds) != 0 {
		t.Fatalf("expected empty slice, got %v", ds)
	}
}

func TestApplyGoDarkAndResume(t *testing.T) {
	a := &fakeApplier{}
	Apply([]Directive{{Type: TypeGoDark}}, a, 5, nil)
	if !a.goDark {
		t.Fatal("expected go_dark to be set")
	}
	Apply([]Directive{{Type: TypeResume}}, a, 5, nil)
	if a.goDark {
		t.Fatal("expected go_dark to be cleared")
	}
}

func TestApplySetHeartbeatIntervalClampsToFloor(t *testing.T) {
	a := &fakeApplier{}
	Apply([]Directive{{Type: TypeSetHeartbeatInterval, Value: float64(2)}}, a, 10, nil)
	if a.heartbeatSec != 10 {
		t.Fatalf("expected floor-clamped interval 10, got %d", a.heartbeatSec)
	}

	Apply([]Directive{{Type: TypeSetHeartbeatInterval, Value: float64(60)}}, a, 10, nil)
	if a.heartbeatSec != 60 {
		t.Fatalf("expected interval 60, got %d", a.heartbeatSec)
	}
}

func TestApplySetHeartbeatIntervalInvalidValueIgnored(t *testing.T) {
	a := &fakeApplier{heartbeatSec: 30}
	Apply([]Directive{{Type: TypeSetHeartbeatInterval, Value: "bogus"}}, a, 10, nil)
	if a.heartbeatSec != 30 {
		t.Fatalf("expected heartbeat unchanged on invalid value, got %d", a.heartbeatSec)
	}
}

func TestApplyRefreshPolicyAndFlushStats(t *testing.T) {
	a := &fakeApplier{}
	Apply([]Directive{{Type: TypeRefreshPolicy}, {Type: TypeFlushStats}}, a, 5, nil)
	if a.refreshed != 1 {
		t.Fatalf("expected RefreshPolicy called once, got %d", a.refreshed)
	}
	if a.flushed != 1 {
		t.Fatalf("expected FlushStats called once, got %d", a.flushed)
	}
}

func TestApplyUnknownTypeIsIgnoredNotFatal(t *testing.T) {
	a := &fakeApplier{}
	Apply([]Directive{{Type: "SELF_DESTRUCT"}}, a, 5, nil)
}
