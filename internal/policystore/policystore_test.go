package policystore

import "testing"

func TestLookupExactThenWildcard(t *testing.T) {
	s := New(60, map[string]Policy{
		"checkout:prod":  {ServiceName: "checkout", Environment: "prod"},
		"checkout:*":     {ServiceName: "checkout", Environment: "*"},
	})

	if p, ok := s.Lookup("checkout", "prod"); !ok || p.Environment != "prod" {
		t.Fatalf("expected exact match, got %+v ok=%v", p, ok)
	}
	if p, ok := s.Lookup("checkout", "staging"); !ok || p.Environment != "*" {
		t.Fatalf("expected wildcard fallback, got %+v ok=%v", p, ok)
	}
	if _, ok := s.Lookup("unknown-service", "prod"); ok {
		t.Fatalf("expected no match for unknown service")
	}
}

func TestSessionIDIsStableAndDistinct(t *testing.T) {
	a1 := SessionID("checkout", "prod")
	a2 := SessionID("checkout", "prod")
	if a1 != a2 {
		t.Fatalf("expected stable session id, got %s vs %s", a1, a2)
	}

	b := SessionID("checkout", "staging")
	if a1 == b {
		t.Fatalf("expected distinct session ids for distinct environments")
	}
}

func TestTTLFloor(t *testing.T) {
	s := New(1, nil)
	if s.ttlSec != 5 {
		t.Fatalf("expected ttlSec floored to 5, got %d", s.ttlSec)
	}
}

func TestResolveSessionRoundTrip(t *testing.T) {
	s := New(60, map[string]Policy{"checkout:prod": {ServiceName: "checkout", Environment: "prod"}})

	p, _ := s.Lookup("checkout", "prod")
	resp := s.BuildResponse("checkout", "prod", p)

	service, env, ok := s.ResolveSession(resp.AgentSessionID)
	if !ok {
		t.Fatalf("expected session to resolve after BuildResponse")
	}
	if service != "checkout" || env != "prod" {
		t.Fatalf("expected checkout/prod, got %s/%s", service, env)
	}

	if _, _, ok := s.ResolveSession("never-seen"); ok {
		t.Fatalf("expected unknown session id to not resolve")
	}
}
