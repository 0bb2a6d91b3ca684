// Package onion implements nested-ECDH request wrapping: an inner request
// is encrypted to its destination, then re-encrypted through zero or more
// relay hops in reverse order, and the outermost layer is signed with a
// NAK. Ported from ciphrtxt-lib's ciphrtxt/network.py (OnionHost,
// OnionRequest._wrap, _decrypt_reply).
//
// This package knows nothing about HTTP: Issue returns the entry node's URL
// and the transport body, and sending them is left to the caller.
// relay.Client uses only the Node type from this package.
package onion

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/nak"
)

// ErrMalformed is returned when a reply or wrapped body fails to parse,
// decompress, or verify.
var ErrMalformed = errors.New("onion: malformed")

// Node addresses a relay or destination: a host/port pair and the
// long-term public key obtained out-of-band (relay.Client.Refresh fetches
// it from GET /api/status/).
type Node struct {
	Host string
	Port int
	Pkey *secp256k1.PublicKey
}

// Request is the innermost, plaintext request an onion chain carries to
// its destination.
type Request struct {
	URL      string
	Action   string // "GET" or "POST"
	Headers  map[string]string
	Body     []byte
	ReplyPub *secp256k1.PublicKey
}

// wireRequest is the JSON shape encrypted at each layer: a "local" request
// (URL/action/headers/replykey, the innermost layer) or a wrapped envelope
// (host/port/pubkey/body, every layer after that).
type wireRequest struct {
	Local    bool              `json:"local"`
	URL      string            `json:"url,omitempty"`
	Action   string            `json:"action,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     string            `json:"body,omitempty"`
	ReplyKey string            `json:"replykey,omitempty"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	Pubkey   string            `json:"pubkey,omitempty"`
}

// wrapped is one onion layer after encryption: the node it's addressed to,
// and body = iv(16) || ciphertext.
type wrapped struct {
	Host       string
	Port       int
	SessionPub *secp256k1.PublicKey
	Body       []byte
}

func (w *wrapped) asJSON(ctx *curve.Context) wireRequest {
	return wireRequest{
		Local:  false,
		Host:   w.Host,
		Port:   w.Port,
		Pubkey: ctx.CompressHex(w.SessionPub),
		Body:   base64.StdEncoding.EncodeToString(w.Body),
	}
}

// wrapLayer encrypts plaintext to node under a fresh ephemeral session key.
func wrapLayer(ctx *curve.Context, node *Node, plaintext []byte) (*wrapped, error) {
	sessionPriv, err := curve.RandScalar()
	if err != nil {
		return nil, err
	}
	sessionPub, err := ctx.ScalarBaseMult(sessionPriv)
	if err != nil {
		return nil, err
	}
	ecdh, err := ctx.ScalarMult(node.Pkey, sessionPriv)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	cipher, err := aesCTR(layerKey(ctx, ecdh), iv, plaintext)
	if err != nil {
		return nil, err
	}

	body := make([]byte, 0, len(iv)+len(cipher))
	body = append(body, iv...)
	body = append(body, cipher...)
	return &wrapped{Host: node.Host, Port: node.Port, SessionPub: sessionPub, Body: body}, nil
}

// BuildEnvelope wraps req to dest, then re-wraps the result through hops in
// reverse order, returning the outermost layer and the reply scalar the
// caller needs to decrypt the eventual response. hops is entry-first, e.g.
// [H1, H2]; H1 is addressed last so the outermost layer lands at the
// entry node.
//
// If req.ReplyPub is nil, BuildEnvelope mints a fresh one-time reply
// keypair and returns its private scalar. If req.ReplyPub is already set
// (the caller pinned a long-lived reply key it holds the private half of
// itself), that point is used as-is and the returned scalar is nil — the
// caller already has what it needs to decrypt the response.
func BuildEnvelope(ctx *curve.Context, dest *Node, req *Request, hops []*Node) (*wrapped, *big.Int, error) {
	replyPub := req.ReplyPub
	var replyPriv *big.Int
	if replyPub == nil {
		priv, err := curve.RandScalar()
		if err != nil {
			return nil, nil, err
		}
		pub, err := ctx.ScalarBaseMult(priv)
		if err != nil {
			return nil, nil, err
		}
		replyPriv, replyPub = priv, pub
	}

	inner := wireRequest{
		Local:    true,
		URL:      req.URL,
		Action:   req.Action,
		Headers:  req.Headers,
		ReplyKey: ctx.CompressHex(replyPub),
	}
	if req.Action == "POST" {
		inner.Body = string(req.Body)
	}
	plain, err := json.Marshal(inner)
	if err != nil {
		return nil, nil, err
	}

	w, err := wrapLayer(ctx, dest, plain)
	if err != nil {
		return nil, nil, err
	}
	for i := len(hops) - 1; i >= 0; i-- {
		plain, err = json.Marshal(w.asJSON(ctx))
		if err != nil {
			return nil, nil, err
		}
		w, err = wrapLayer(ctx, hops[i], plain)
		if err != nil {
			return nil, nil, err
		}
	}
	return w, replyPriv, nil
}

// Issue builds the full transport envelope for req: BuildEnvelope, then a
// NAK signature over the outermost body. url is the entry node's POST
// target; body is the base64-encoded transport payload.
func Issue(ctx *curve.Context, credential *nak.NAK, dest *Node, req *Request, hops []*Node) (url, body string, replyPriv *big.Int, err error) {
	w, replyPriv, err := BuildEnvelope(ctx, dest, req, hops)
	if err != nil {
		return "", "", nil, err
	}

	sig, err := credential.Sign(ctx, w.Body)
	if err != nil {
		return "", "", nil, err
	}
	nakPub := ctx.Compress(credential.Pubkey)

	transport := make([]byte, 0, len(nakPub)+64+len(w.Body))
	transport = append(transport, nakPub...)
	transport = append(transport, be32(sig.R)...)
	transport = append(transport, be32(sig.S)...)
	transport = append(transport, w.Body...)

	url = fmt.Sprintf("http://%s:%d/onion/%s", w.Host, w.Port, ctx.CompressHex(w.SessionPub))
	body = base64.StdEncoding.EncodeToString(transport)
	return url, body, replyPriv, nil
}

// EncryptReply is the destination side of reply delivery: it encrypts
// resp under the ECDH between the destination's own scalar and the
// client-supplied reply point, and signs the ciphertext with the same
// scalar.
func EncryptReply(ctx *curve.Context, destPriv *big.Int, replyPub *secp256k1.PublicKey, resp []byte) (string, error) {
	ecdh, err := ctx.ScalarMult(replyPub, destPriv)
	if err != nil {
		return "", err
	}

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	ciphertext, err := aesCTR(layerKey(ctx, ecdh), iv, resp)
	if err != nil {
		return "", err
	}
	ivCiphertext := make([]byte, 0, len(iv)+len(ciphertext))
	ivCiphertext = append(ivCiphertext, iv...)
	ivCiphertext = append(ivCiphertext, ciphertext...)

	sig, err := ctx.Sign(destPriv, sha256Sum(ivCiphertext))
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, 64+len(ivCiphertext))
	out = append(out, be32(sig.R)...)
	out = append(out, be32(sig.S)...)
	out = append(out, ivCiphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptReply is the client side: it verifies the destination's signature
// against destPkey, then decrypts using the ECDH between replyPriv (held
// since BuildEnvelope) and destPkey.
func DecryptReply(ctx *curve.Context, destPkey *secp256k1.PublicKey, replyPriv *big.Int, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < 64+16 {
		return nil, ErrMalformed
	}
	sig := &curve.Signature{R: new(big.Int).SetBytes(raw[0:32]), S: new(big.Int).SetBytes(raw[32:64])}
	if !ctx.Verify(destPkey, sig, sha256Sum(raw[64:])) {
		return nil, ErrMalformed
	}

	ecdh, err := ctx.ScalarMult(destPkey, replyPriv)
	if err != nil {
		return nil, ErrMalformed
	}
	plain, err := aesCTR(layerKey(ctx, ecdh), raw[64:80], raw[80:])
	if err != nil {
		return nil, ErrMalformed
	}
	return plain, nil
}

// layerKey derives the AES-128 key for one onion layer from a shared ECDH
// point: the last 16 bytes of SHA256(compress(point)). The message package
// also keeps the last 16 bytes, but of the compressed point itself, with no
// digest.
func layerKey(ctx *curve.Context, point *secp256k1.PublicKey) []byte {
	sum := sha256.Sum256(ctx.Compress(point))
	return sum[16:]
}

func aesCTR(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("onion: aes key: %w", err)
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

func be32(x *big.Int) []byte {
	buf := make([]byte, 32)
	xb := x.Bytes()
	copy(buf[32-len(xb):], xb)
	return buf
}
