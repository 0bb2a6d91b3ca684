// Package nak implements the Network Access Key: a short-lived self-signed
// ECDSA credential attached to onion traffic. Ported from ciphrtxt-lib's
// ciphrtxt/nak.py.
package nak

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// SerializedLen is the fixed wire size: 4 (expire) + 33 (compressed pubkey)
// + 32 (sig.r) + 32 (sig.s) bytes.
const SerializedLen = 4 + 33 + 32 + 32

// DefaultValidity is the lifetime Randomize grants a fresh NAK: one year.
const DefaultValidity = 365 * 24 * time.Hour

// ErrMalformed is returned by Deserialize on any parse, decompression, or
// self-verification failure — no partial NAK is returned alongside it.
var ErrMalformed = errors.New("nak: malformed")

// NAK is a short-lived, self-signed credential binding an ephemeral
// public key to an expiry time.
type NAK struct {
	Expire    uint32
	Pubkey    *secp256k1.PublicKey
	Signature *curve.Signature

	// Privkey is held by the issuing side only; Deserialize never sets it.
	Privkey *big.Int
}

// signedPrefix is the 37 raw bytes the self-signature covers: expire (4B)
// big-endian, then the compressed pubkey (33B).
func signedPrefix(ctx *curve.Context, expire uint32, pub *secp256k1.PublicKey) []byte {
	buf := make([]byte, 4, 4+33)
	binary.BigEndian.PutUint32(buf, expire)
	return append(buf, ctx.Compress(pub)...)
}

// digest hashes an arbitrary-length message down to the fixed-size input
// curve.Sign/Verify expect, the same convention the message package uses.
func digest(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// Serialize renders the 101-byte binary form. If no signature is cached
// and a private scalar is held, it signs signedPrefix and caches the
// result first.
func (n *NAK) Serialize(ctx *curve.Context) ([]byte, error) {
	if n.Signature == nil {
		if n.Privkey == nil {
			return nil, errors.New("nak: no signature and no private key to produce one")
		}
		sig, err := ctx.Sign(n.Privkey, digest(signedPrefix(ctx, n.Expire, n.Pubkey)))
		if err != nil {
			return nil, err
		}
		n.Signature = sig
	}

	buf := make([]byte, SerializedLen)
	binary.BigEndian.PutUint32(buf[0:4], n.Expire)
	copy(buf[4:37], ctx.Compress(n.Pubkey))
	rb := n.Signature.R.Bytes()
	copy(buf[69-len(rb):69], rb)
	sb := n.Signature.S.Bytes()
	copy(buf[101-len(sb):101], sb)
	return buf, nil
}

// Deserialize parses the 101-byte binary form and verifies the embedded
// self-signature, failing closed on any error.
func Deserialize(ctx *curve.Context, raw []byte) (*NAK, error) {
	if len(raw) != SerializedLen {
		return nil, ErrMalformed
	}
	expire := binary.BigEndian.Uint32(raw[0:4])
	pub, err := ctx.Decompress(raw[4:37])
	if err != nil {
		return nil, ErrMalformed
	}
	r := new(big.Int).SetBytes(raw[37:69])
	s := new(big.Int).SetBytes(raw[69:101])
	sig := &curve.Signature{R: r, S: s}

	if !ctx.Verify(pub, sig, digest(raw[:37])) {
		return nil, ErrMalformed
	}
	return &NAK{Expire: expire, Pubkey: pub, Signature: sig}, nil
}

// Randomize generates a fresh private scalar and expiry, replacing any
// existing key material. now is the current unix time; validity, if zero,
// defaults to DefaultValidity.
func (n *NAK) Randomize(ctx *curve.Context, now time.Time, validity time.Duration) error {
	if validity == 0 {
		validity = DefaultValidity
	}
	priv, err := curve.RandScalar()
	if err != nil {
		return err
	}
	pub, err := ctx.ScalarBaseMult(priv)
	if err != nil {
		return err
	}
	n.Privkey = priv
	n.Pubkey = pub
	n.Signature = nil
	n.Expire = uint32(now.Add(validity).Unix())
	_, err = n.Serialize(ctx)
	return err
}

// Sign signs an arbitrary caller-supplied message with no additional
// framing, used to authenticate onion request bodies.
func (n *NAK) Sign(ctx *curve.Context, message []byte) (*curve.Signature, error) {
	if n.Privkey == nil {
		return nil, errors.New("nak: no private key held")
	}
	return ctx.Sign(n.Privkey, digest(message))
}

// Verify checks sig over message against this NAK's public key.
func (n *NAK) Verify(ctx *curve.Context, sig *curve.Signature, message []byte) bool {
	if n.Pubkey == nil {
		return false
	}
	return ctx.Verify(n.Pubkey, sig, digest(message))
}

// jsonNAK is the supplemented sidecar form (ciphrtxt-lib's dumpjson /
// loadjson), useful for config files and debugging where the compact
// binary form isn't convenient.
type jsonNAK struct {
	Pubkey  string `json:"pubkey"`
	Expire  uint32 `json:"expire"`
	SigR    string `json:"sig_r"`
	SigS    string `json:"sig_s"`
}

// DumpJSON renders n as the JSON sidecar form, signing first if needed.
func (n *NAK) DumpJSON(ctx *curve.Context) ([]byte, error) {
	if n.Signature == nil {
		if _, err := n.Serialize(ctx); err != nil {
			return nil, err
		}
	}
	return json.Marshal(jsonNAK{
		Pubkey: ctx.CompressHex(n.Pubkey),
		Expire: n.Expire,
		SigR:   n.Signature.R.Text(16),
		SigS:   n.Signature.S.Text(16),
	})
}

// LoadJSON parses the JSON sidecar form, verifying the embedded signature.
func LoadJSON(ctx *curve.Context, data []byte) (*NAK, error) {
	var j jsonNAK
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, ErrMalformed
	}
	pub, err := ctx.DecompressHex(j.Pubkey)
	if err != nil {
		return nil, ErrMalformed
	}
	r, ok := new(big.Int).SetString(j.SigR, 16)
	if !ok {
		return nil, ErrMalformed
	}
	s, ok := new(big.Int).SetString(j.SigS, 16)
	if !ok {
		return nil, ErrMalformed
	}
	sig := &curve.Signature{R: r, S: s}
	if !ctx.Verify(pub, sig, digest(signedPrefix(ctx, j.Expire, pub))) {
		return nil, ErrMalformed
	}
	return &NAK{Expire: j.Expire, Pubkey: pub, Signature: sig}, nil
}
