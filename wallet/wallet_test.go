package wallet

import (
	"testing"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

func TestAddressRoundTrip(t *testing.T) {
	ctx := curve.NewContext()
	priv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	pub, err := ctx.ScalarBaseMult(priv)
	if err != nil {
		t.Fatalf("ScalarBaseMult: %v", err)
	}

	addr := EncodeAddress(pub, CTIndigo)
	version, hash, err := ParseAddress(addr)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if version != CTIndigo.PubVersion {
		t.Fatalf("version mismatch: got 0x%02x want 0x%02x", version, CTIndigo.PubVersion)
	}
	if len(hash) != 20 {
		t.Fatalf("expected 20-byte hash160, got %d", len(hash))
	}
}

func TestAddressRejectsTamperedChecksum(t *testing.T) {
	ctx := curve.NewContext()
	priv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	pub, err := ctx.ScalarBaseMult(priv)
	if err != nil {
		t.Fatalf("ScalarBaseMult: %v", err)
	}
	addr := EncodeAddress(pub, CTIndigo)
	tampered := addr[:len(addr)-1] + "x"
	if tampered == addr {
		tampered = addr[:len(addr)-1] + "y"
	}
	if _, _, err := ParseAddress(tampered); err == nil {
		t.Fatalf("expected an error for a tampered address")
	}
}

func TestWIFRoundTripUncompressed(t *testing.T) {
	priv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	wif := EncodeWIF(priv, CTIndigo)
	got, compressed, net, err := ParsePrivateKey(wif)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if compressed {
		t.Fatalf("expected uncompressed form")
	}
	if net.Name != CTIndigo.Name {
		t.Fatalf("network mismatch: got %s", net.Name)
	}
	if got.Cmp(priv) != 0 {
		t.Fatalf("scalar mismatch")
	}
}

func TestWIFRoundTripCompressed(t *testing.T) {
	priv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	wif := EncodeWIFCompressed(priv, CTRed)
	got, compressed, net, err := ParsePrivateKey(wif)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if !compressed {
		t.Fatalf("expected compressed form")
	}
	if net.Name != CTRed.Name {
		t.Fatalf("network mismatch: got %s", net.Name)
	}
	if got.Cmp(priv) != 0 {
		t.Fatalf("scalar mismatch")
	}
}

func TestByName(t *testing.T) {
	if _, ok := ByName("ct-indigo"); !ok {
		t.Fatalf("expected ct-indigo to be a known network")
	}
	if _, ok := ByName("not-a-network"); ok {
		t.Fatalf("expected lookup of an unknown network to fail")
	}
}
