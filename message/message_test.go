package message_test

import (
	"context"
	"testing"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
	"github.com/ciphrtxt/go-ciphrtxt/message"
	"github.com/ciphrtxt/go-ciphrtxt/topic"
)

func genKeypair(t *testing.T, ctx *curve.Context, now int64) (*keys.PrivateKey, *keys.PublicKey) {
	t.Helper()
	sk, err := keys.Randomize(ctx, 4, now)
	if err != nil {
		t.Fatalf("Randomize: %v", err)
	}
	pk, err := sk.CalcPublicKey(ctx)
	if err != nil {
		t.Fatalf("CalcPublicKey: %v", err)
	}
	return sk, pk
}

const plaintext = "the quick brown fox jumped over the lazy dog"

func TestRoundTripV1(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)
	a, aPub := genKeypair(t, ctx, now)
	b, bPub := genKeypair(t, ctx, now)
	_ = aPub

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), bPub, a, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wire := m.Serialize(ctx)
	got, err := message.Deserialize(ctx, wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !got.Decode(ctx, b) {
		t.Fatalf("Decode failed")
	}
	if string(got.Ptxt) != plaintext {
		t.Fatalf("plaintext mismatch: got %q", got.Ptxt)
	}
}

func TestRoundTripV2(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)
	a, _ := genKeypair(t, ctx, now)
	b, bPub := genKeypair(t, ctx, now)

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), bPub, a, message.Options{Version: message.V2, NBits: 8})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wire := m.Serialize(ctx)
	got, err := message.Deserialize(ctx, wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !got.Decode(ctx, b) {
		t.Fatalf("Decode failed")
	}
	if string(got.Ptxt) != plaintext {
		t.Fatalf("plaintext mismatch: got %q", got.Ptxt)
	}
	if !got.VerifyPoW(ctx, 8) {
		t.Fatalf("VerifyPoW rejected a nonce mined at the same difficulty")
	}
	if got.VerifyPoW(ctx, 64) {
		t.Fatalf("VerifyPoW accepted a nonce against a far higher difficulty than it was mined at")
	}
}

func TestCrossRecipientRejection(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)
	a, _ := genKeypair(t, ctx, now)
	_, bPub := genKeypair(t, ctx, now)
	c, _ := genKeypair(t, ctx, now)

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), bPub, a, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if m.Decode(ctx, c) {
		t.Fatalf("decode unexpectedly succeeded for unrelated key")
	}
}

func TestAnonymousSend(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)
	a, aPub := genKeypair(t, ctx, now)
	b, bPub := genKeypair(t, ctx, now)
	_ = aPub

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), bPub, nil, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !m.Decode(ctx, b) {
		t.Fatalf("decode of anonymous message failed")
	}
	if m.IsFrom(ctx, aPub) {
		t.Fatalf("anonymous message falsely attributed to a sender")
	}
}

func TestTamperedCiphertext(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)
	a, _ := genKeypair(t, ctx, now)
	b, bPub := genKeypair(t, ctx, now)

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), bPub, a, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m.Ctxt = m.Ctxt[:len(m.Ctxt)-1]
	if m.Decode(ctx, b) {
		t.Fatalf("decode succeeded on tampered ciphertext")
	}
}

func TestTopicBroadcast(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)

	k, err := topic.New(ctx, "#ciphrtxt", 1)
	if err != nil {
		t.Fatalf("topic.New: %v", err)
	}
	kPub, err := k.CalcPublicKey(ctx)
	if err != nil {
		t.Fatalf("CalcPublicKey: %v", err)
	}

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), kPub, nil, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !m.Decode(ctx, k) {
		t.Fatalf("decode of topic-broadcast message failed")
	}
	_ = now
}

func TestIsFromSenderAuthentication(t *testing.T) {
	ctx := curve.NewContext()
	now := int64(1_900_000_000)
	a, aPub := genKeypair(t, ctx, now)
	aPrime, aPrimePub := genKeypair(t, ctx, now)
	b, bPub := genKeypair(t, ctx, now)
	_ = aPrimePub

	m, err := message.Encode(context.Background(), ctx, []byte(plaintext), bPub, a, message.Options{Version: message.V1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !m.Decode(ctx, b) {
		t.Fatalf("Decode failed")
	}
	if !m.IsFrom(ctx, aPub) {
		t.Fatalf("IsFrom(a) should hold for the real sender")
	}
	if m.IsFrom(ctx, aPrimePub) {
		t.Fatalf("IsFrom(a') should not hold for an unrelated key")
	}
	_ = aPrime
}
