package webhooks

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"event":"order.created","data":{"orderId":"o1"}}`)
	sig := Sign("topsecret", body)
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if !Verify("topsecret", body, sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"event":"order.created"}`)
	sig := Sign("topsecret", body)
	if Verify("topsecret", []byte(`{"event":"order.deleted"}`), sig) {
		t.Fatalf("verify accepted a different body")
	}
	if Verify("othersecret", body, sig) {
		t.Fatalf("verify accepted a different secret")
	}
	if Verify("topsecret", body, "not-hex") {
		t.Fatalf("verify accepted invalid hex")
	}
}
