package onion

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/nak"
)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func newNode(t *testing.T, ctx *curve.Context, host string, port int) (*Node, *nak.NAK) {
	t.Helper()
	n := &nak.NAK{}
	if err := n.Randomize(ctx, time.Unix(1_900_000_000, 0), 0); err != nil {
		t.Fatalf("Randomize: %v", err)
	}
	return &Node{Host: host, Port: port, Pkey: n.Pubkey}, n
}

func TestWrapLayerRoundTrip(t *testing.T) {
	ctx := curve.NewContext()
	node, credential := newNode(t, ctx, "relay.example", 8080)

	plaintext := []byte(`{"hello":"world"}`)
	w, err := wrapLayer(ctx, node, plaintext)
	if err != nil {
		t.Fatalf("wrapLayer: %v", err)
	}
	if len(w.Body) != 16+len(plaintext) {
		t.Fatalf("unexpected body length %d", len(w.Body))
	}

	ecdh, err := ctx.ScalarMult(w.SessionPub, credential.Privkey)
	if err != nil {
		t.Fatalf("ScalarMult: %v", err)
	}
	got, err := aesCTR(layerKey(ctx, ecdh), w.Body[:16], w.Body[16:])
	if err != nil {
		t.Fatalf("aesCTR: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("plaintext mismatch: got %q", got)
	}
}

func TestBuildEnvelopeThreeHop(t *testing.T) {
	ctx := curve.NewContext()
	dest, destCred := newNode(t, ctx, "dest.example", 9001)
	h2, h2Cred := newNode(t, ctx, "hop2.example", 9002)
	h1, h1Cred := newNode(t, ctx, "hop1.example", 9003)

	replyPriv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	replyPub, err := ctx.ScalarBaseMult(replyPriv)
	if err != nil {
		t.Fatalf("ScalarBaseMult: %v", err)
	}

	req := &Request{URL: "/api/message/upload/", Action: "POST", Body: []byte("payload"), ReplyPub: replyPub}
	outer, gotReplyPriv, err := BuildEnvelope(ctx, dest, req, []*Node{h1, h2})
	if err != nil {
		t.Fatalf("BuildEnvelope: %v", err)
	}
	if gotReplyPriv != nil {
		t.Fatalf("expected no reply scalar when req.ReplyPub is already pinned")
	}
	if outer.Host != h1.Host || outer.Port != h1.Port {
		t.Fatalf("outermost layer should address the entry hop, got %s:%d", outer.Host, outer.Port)
	}

	// Peel hop1.
	ecdh1, err := ctx.ScalarMult(outer.SessionPub, h1Cred.Privkey)
	if err != nil {
		t.Fatalf("ScalarMult h1: %v", err)
	}
	plain1, err := aesCTR(layerKey(ctx, ecdh1), outer.Body[:16], outer.Body[16:])
	if err != nil {
		t.Fatalf("aesCTR h1: %v", err)
	}
	var env1 wireRequest
	if err := json.Unmarshal(plain1, &env1); err != nil {
		t.Fatalf("unmarshal h1 layer: %v", err)
	}
	if env1.Local || env1.Host != h2.Host || env1.Port != h2.Port {
		t.Fatalf("hop1 layer should forward to hop2, got %+v", env1)
	}

	// Peel hop2.
	sessionPub2, err := ctx.DecompressHex(env1.Pubkey)
	if err != nil {
		t.Fatalf("DecompressHex: %v", err)
	}
	ecdh2, err := ctx.ScalarMult(sessionPub2, h2Cred.Privkey)
	if err != nil {
		t.Fatalf("ScalarMult h2: %v", err)
	}
	body2, err := decodeBase64(env1.Body)
	if err != nil {
		t.Fatalf("decode body2: %v", err)
	}
	plain2, err := aesCTR(layerKey(ctx, ecdh2), body2[:16], body2[16:])
	if err != nil {
		t.Fatalf("aesCTR h2: %v", err)
	}
	var env2 wireRequest
	if err := json.Unmarshal(plain2, &env2); err != nil {
		t.Fatalf("unmarshal h2 layer: %v", err)
	}
	if env2.Local || env2.Host != dest.Host || env2.Port != dest.Port {
		t.Fatalf("hop2 layer should forward to dest, got %+v", env2)
	}

	// Peel destination.
	sessionPub3, err := ctx.DecompressHex(env2.Pubkey)
	if err != nil {
		t.Fatalf("DecompressHex: %v", err)
	}
	ecdh3, err := ctx.ScalarMult(sessionPub3, destCred.Privkey)
	if err != nil {
		t.Fatalf("ScalarMult dest: %v", err)
	}
	body3, err := decodeBase64(env2.Body)
	if err != nil {
		t.Fatalf("decode body3: %v", err)
	}
	plain3, err := aesCTR(layerKey(ctx, ecdh3), body3[:16], body3[16:])
	if err != nil {
		t.Fatalf("aesCTR dest: %v", err)
	}
	var final wireRequest
	if err := json.Unmarshal(plain3, &final); err != nil {
		t.Fatalf("unmarshal final layer: %v", err)
	}
	if !final.Local || final.URL != req.URL || final.Action != req.Action || final.Body != string(req.Body) {
		t.Fatalf("final request mismatch: %+v", final)
	}
	if final.ReplyKey != ctx.CompressHex(replyPub) {
		t.Fatalf("expected the caller-supplied ReplyPub to be carried through, got %s", final.ReplyKey)
	}
}

func TestIssueSignatureVerifies(t *testing.T) {
	ctx := curve.NewContext()
	dest, _ := newNode(t, ctx, "dest.example", 9001)
	entry := &nak.NAK{}
	if err := entry.Randomize(ctx, time.Unix(1_900_000_000, 0), 0); err != nil {
		t.Fatalf("Randomize: %v", err)
	}

	req := &Request{URL: "/api/status/", Action: "GET"}
	_, body, replyPriv, err := Issue(ctx, entry, dest, req, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if replyPriv == nil {
		t.Fatalf("expected a reply scalar")
	}
	raw, err := decodeBase64(body)
	if err != nil {
		t.Fatalf("decode transport body: %v", err)
	}
	if len(raw) < 33+64 {
		t.Fatalf("transport body too short: %d bytes", len(raw))
	}
	gotPub, err := ctx.Decompress(raw[:33])
	if err != nil {
		t.Fatalf("decompress nak pubkey: %v", err)
	}
	if ctx.CompressHex(gotPub) != ctx.CompressHex(entry.Pubkey) {
		t.Fatalf("embedded NAK pubkey mismatch")
	}
	sig := &curve.Signature{R: new(big.Int).SetBytes(raw[33:65]), S: new(big.Int).SetBytes(raw[65:97])}
	if !entry.Verify(ctx, sig, raw[97:]) {
		t.Fatalf("NAK signature over the outer body does not verify")
	}
}

func TestReplyRoundTrip(t *testing.T) {
	ctx := curve.NewContext()
	destPriv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	destPub, err := ctx.ScalarBaseMult(destPriv)
	if err != nil {
		t.Fatalf("ScalarBaseMult: %v", err)
	}
	replyPriv, err := curve.RandScalar()
	if err != nil {
		t.Fatalf("RandScalar: %v", err)
	}
	replyPub, err := ctx.ScalarBaseMult(replyPriv)
	if err != nil {
		t.Fatalf("ScalarBaseMult: %v", err)
	}

	resp := []byte("204 no content")
	encoded, err := EncryptReply(ctx, destPriv, replyPub, resp)
	if err != nil {
		t.Fatalf("EncryptReply: %v", err)
	}
	got, err := DecryptReply(ctx, destPub, replyPriv, encoded)
	if err != nil {
		t.Fatalf("DecryptReply: %v", err)
	}
	if string(got) != string(resp) {
		t.Fatalf("response mismatch: got %q", got)
	}

	if _, err := DecryptReply(ctx, destPub, replyPriv, encoded[:len(encoded)-4]); err == nil {
		t.Fatalf("expected failure decrypting truncated reply")
	}
}
