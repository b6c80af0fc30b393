package signals

import (
	"testing"
)

func TestSignHMAC_Deterministic(t *testing.T) {
	canonical := buildCanonical("POST", "/hook/signals", 1700000000, "00c0ffee", hashHex([]byte(`{"type":"findphone.start"}`)))
	sig1 := SignHMAC("secret-1", canonical)
	sig2 := SignHMAC("secret-1", canonical)
	if sig1 != sig2 {
		t.Fatalf("same input must produce same signature")
	}
	if len(sig1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig1))
	}
}

func TestSignHMAC_SecretSensitive(t *testing.T) {
	canonical := buildCanonical("POST", "/hook/signals", 1700000000, "00c0ffee", hashHex(nil))
	if SignHMAC("a", canonical) == SignHMAC("b", canonical) {
		t.Fatalf("different secrets must produce different signatures")
	}
}

func TestBuildCanonical_Layout(t *testing.T) {
	got := buildCanonical("post", "/x", 7, "n", "h")
	want := "POST\n/x\n7\nn\nh"
	if got != want {
		t.Fatalf("canonical mismatch: %q != %q", got, want)
	}
}
