package message

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
)

// ErrEmptyPlaintext is returned when Encode/EncodeImpersonate is given a
// zero-length plaintext.
var ErrEmptyPlaintext = errors.New("message: plaintext must be non-empty")

// Encode builds a message addressed to pub. If priv is non-nil, the
// message is attributable to it (IsFrom(priv.pub) will hold); otherwise
// it is sent anonymously with a random ephemeral scalar.
func Encode(goctx context.Context, ctx *curve.Context, ptxt []byte, pub *keys.PublicKey, priv *keys.PrivateKey, opts Options) (*Message, error) {
	if len(ptxt) == 0 {
		return nil, ErrEmptyPlaintext
	}
	now := time.Now().Unix()

	q, err := senderScalar(priv, now)
	if err != nil {
		return nil, err
	}
	Pr, err := pub.CurrentPoint(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("message: recipient point: %w", err)
	}

	s, I, err := mineSlot(goctx, ctx, pub.Addr.Mask, pub.Addr.Target, opts.OnMine)
	if err != nil {
		return nil, err
	}
	J, err := ctx.ScalarMult(Pr, s)
	if err != nil {
		return nil, err
	}

	return build(goctx, ctx, now, opts, ptxt, s, I, J, Pr, q, func(h *big.Int) (K, altK *secp256k1.PublicKey, err error) {
		k := new(big.Int).Mod(new(big.Int).Mul(q, h), curve.N)
		K, err = ctx.ScalarBaseMult(k)
		if err != nil {
			return nil, nil, err
		}
		altK, err = ctx.ScalarMult(Pr, h)
		return K, altK, err
	})
}

// EncodeImpersonate builds a message that is indistinguishable, to anyone
// but priv, from one priv sent to themselves.
func EncodeImpersonate(goctx context.Context, ctx *curve.Context, ptxt []byte, pub *keys.PublicKey, priv *keys.PrivateKey, opts Options) (*Message, error) {
	if len(ptxt) == 0 {
		return nil, ErrEmptyPlaintext
	}
	if priv == nil {
		return nil, errors.New("message: impersonate requires a sender key")
	}
	now := time.Now().Unix()

	q := priv.CurrentScalar(now)
	Q, err := ctx.ScalarBaseMult(q)
	if err != nil {
		return nil, fmt.Errorf("message: sender point: %w", err)
	}
	Pr, err := pub.CurrentPoint(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("message: recipient point: %w", err)
	}

	s, I, err := mineSlot(goctx, ctx, priv.Addr.Mask, priv.Addr.Target, opts.OnMine)
	if err != nil {
		return nil, err
	}
	J, err := ctx.ScalarMult(Q, s)
	if err != nil {
		return nil, err
	}

	return build(goctx, ctx, now, opts, ptxt, s, I, J, Pr, q, func(h *big.Int) (K, altK *secp256k1.PublicKey, err error) {
		K, err = ctx.ScalarMult(Pr, h)
		if err != nil {
			return nil, nil, err
		}
		altK, err = ctx.ScalarMult(Q, h)
		return K, altK, err
	})
}

func senderScalar(priv *keys.PrivateKey, now int64) (*big.Int, error) {
	if priv != nil {
		return priv.CurrentScalar(now), nil
	}
	return curve.RandScalar()
}

// build performs the steps common to Encode and EncodeImpersonate once the
// variant-specific (s, I, J, Pr, q) and K/altK derivation are known.
func build(
	goctx context.Context, ctx *curve.Context, now int64, opts Options,
	ptxt []byte, s *big.Int, I, J, Pr *secp256k1.PublicKey, q *big.Int,
	deriveK func(h *big.Int) (K, altK *secp256k1.PublicKey, err error),
) (*Message, error) {
	version := opts.version()
	ttl := opts.ttl()

	var payload []byte
	var h *big.Int
	var blocklen uint32
	switch version {
	case V1:
		h = v1Digest(s, ptxt)
		payload = v1Payload(s, ptxt)
	case V2:
		stxt := v2Stuff(s, ptxt)
		h = new(big.Int).SetBytes(sha256Sum(stxt))
		payload = stxt
		blocklen = uint32(len(stxt) / v2BlockSize)
	default:
		return nil, fmt.Errorf("message: unsupported version %d", version)
	}

	K, altK, err := deriveK(h)
	if err != nil {
		return nil, err
	}

	DH, err := ctx.ScalarMult(Pr, new(big.Int).Mod(new(big.Int).Mul(q, h), curve.N))
	if err != nil {
		return nil, err
	}
	key, iv := deriveKeyIV(ctx, I, DH)
	ctxt, err := aesCTR(key, iv, payload)
	if err != nil {
		return nil, err
	}

	hdr := Header{
		Time:   uint32(now),
		Expire: uint32(now + int64(ttl/time.Second)),
		I:      I, J: J, K: K,
	}

	sigpriv := sigScalar(ctx, DH)
	m := &Message{
		Header:   hdr,
		Version:  version,
		Ctxt:     ctxt,
		BlockLen: blocklen,
		S:        s,
		Ptxt:     ptxt,
		AltK:     altK,
	}

	switch version {
	case V1:
		digest := sha256Sum(concatBytes(ctxt, []byte(serializeHeaderV1(ctx, &hdr))))
		sig, err := ctx.Sign(sigpriv, digest)
		if err != nil {
			return nil, err
		}
		m.Sig = sig
	case V2:
		shortHeader := serializeShortHeaderV2(ctx, &hdr, blocklen)
		digest := sha256Sum(concatBytes(ctxt, shortHeader))
		sig, err := ctx.Sign(sigpriv, digest)
		if err != nil {
			return nil, err
		}
		m.Sig = sig

		shortHeaderB64 := base64.StdEncoding.EncodeToString(shortHeader)
		nonce, err := searchPoW(goctx, shortHeaderB64, sig, opts.nbits(), opts.OnPoW)
		if err != nil {
			return nil, err
		}
		m.nonce = nonce
	}

	return m, nil
}
