// Package message implements the rotating-key end-to-end message envelope:
// slot-mined ephemeral keys, ECDH-derived AES-CTR encryption, and an ECDSA
// signature binding ciphertext to header. Two wire versions are supported:
// v1 (colon-delimited ASCII, ecpy-compatible) and v2 (fixed binary header
// plus proof-of-work). Ported from ciphrtxt-lib's ciphrtxt/message.py.
package message

import (
	"bytes"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
)

// maskedPrefix extracts the top keys.MaskSize bits of x (the field element
// width is curve.Bits) and masks them against mask, matching
// `(x(I) >> (b−masksize)) AND mask`.
func maskedPrefix(x *big.Int, mask uint32) uint32 {
	shifted := new(big.Int).Rsh(x, uint(curve.Bits-keys.MaskSize))
	return uint32(shifted.Uint64()) & mask
}

// Header is the recipient-routable portion of a message: validity window
// and the three curve points (ephemeral, routing-check, key-exchange) every
// wire version carries in common.
type Header struct {
	Time   uint32
	Expire uint32
	I      *secp256k1.PublicKey
	J      *secp256k1.PublicKey
	K      *secp256k1.PublicKey
}

func pointsEqual(ctx *curve.Context, a, b *secp256k1.PublicKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(ctx.Compress(a), ctx.Compress(b))
}

// Equal requires (time, expire, I, J, K) all equal.
func (h *Header) Equal(ctx *curve.Context, o *Header) bool {
	if h.Time != o.Time || h.Expire != o.Expire {
		return false
	}
	return pointsEqual(ctx, h.I, o.I) && pointsEqual(ctx, h.J, o.J) && pointsEqual(ctx, h.K, o.K)
}

// Less implements the header cache ordering: (time, compress(I)) ascending.
func (h *Header) Less(ctx *curve.Context, o *Header) bool {
	if h.Time != o.Time {
		return h.Time < o.Time
	}
	return bytes.Compare(ctx.Compress(h.I), ctx.Compress(o.I)) < 0
}

// IsFor reports whether this header's slot prefix routes to priv and its J
// term is consistent with priv's current scalar.
func (h *Header) IsFor(ctx *curve.Context, priv *keys.PrivateKey) bool {
	x := ctx.AffineX(h.I)
	mv := maskedPrefix(x, priv.Addr.Mask)
	if mv != priv.Addr.Target {
		return false
	}
	scalar := priv.CurrentScalar(int64(h.Time))
	lhs, err := ctx.ScalarMult(h.I, scalar)
	if err != nil {
		return false
	}
	return pointsEqual(ctx, lhs, h.J)
}
