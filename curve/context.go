// Package curve wraps the secp256k1 group and field arithmetic used
// throughout ciphrtxt-go behind an explicit Context, rather than the
// package-level curve configuration the original ciphrtxt-lib relies on
// (ecpy's Generator.set_curve / ECDSA.set_curve). Every constructor that
// needs a point or a signature takes a *Context so the curve in use is
// always visible at the call site.
package curve

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Bits is the bit-length of the secp256k1 field and group order.
const Bits = 256

// NBytes is the byte width of a scalar or an affine coordinate.
const NBytes = Bits / 8

var (
	// P is the field prime secp256k1 is defined over.
	P, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)
	// N is the order of the base point G (and of the group).
	N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
)

// Context is the curve handle threaded through key, message, NAK and onion
// constructors. It carries no mutable state; secp256k1 has a single fixed
// parameter set, but the explicit handle keeps curve selection visible and
// testable instead of relying on package globals.
type Context struct{}

// NewContext returns the secp256k1 context. There is exactly one curve
// supported; the constructor exists so callers never reach for a package
// default implicitly.
func NewContext() *Context {
	return &Context{}
}

// G is the base point.
func (c *Context) G() *secp256k1.PublicKey {
	gx, gy := new(big.Int), new(big.Int)
	gx.SetString("79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798", 16)
	gy.SetString("483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b", 16)
	var fx, fy secp256k1.FieldVal
	fx.SetByteSlice(gx.Bytes())
	fy.SetByteSlice(gy.Bytes())
	return secp256k1.NewPublicKey(&fx, &fy)
}
