package eventbus

import "testing"

func TestSubjectIsPerTenantAndSanitized(t *testing.T) {
	if got, want := Subject("checkout", "prod"), "arecibo.events.checkout.prod"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if got, want := Subject("checkout.api", "prod"), "arecibo.events.checkout_api.prod"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if got, want := Subject("", ""), "arecibo.events.unknown.unknown"; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
