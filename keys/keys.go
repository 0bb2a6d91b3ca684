// Package keys implements the time-rotating identity keypair: a structured
// public/private key whose effective EC scalar or point evolves
// deterministically with wall-clock time, plus the routing address prefix
// ("slot mask") a relay uses to bucket headers without learning the
// recipient. Ported from ciphrtxt-lib's ciphrtxt/keys.py.
package keys

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// MaskSize is the bit-width of the slot mask and target (masksize =
// min(32, b)).
const MaskSize = 32

// MaskBits is the number of 1-bits the mask must carry (masksize/3,
// integer division).
const MaskBits = MaskSize / 3

// TSMin, TSTarget, TSMax, TSSigma bound the rotation period in seconds.
const (
	TSMin    = 12 * 60 * 60
	TSTarget = 24 * 60 * 60
	TSMax    = 36 * 60 * 60
	TSSigma  = 4 * 60 * 60
)

// Address is the routing prefix descriptor: mask selects which bits of an
// ephemeral point's x-coordinate a relay inspects, target is the expected
// value of those bits for this recipient.
type Address struct {
	Mask   uint32
	Target uint32
}

// Valid reports whether the address obeys its invariants: popcount(mask)
// == MaskBits and target&mask == target.
func (a Address) Valid() bool {
	if popcount32(a.Mask) != MaskBits {
		return false
	}
	return a.Target&a.Mask == a.Target
}

func popcount32(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

// Rotation is one (otp, T) entry of a public key's time-base vector.
type Rotation struct {
	OTP *big.Int
	T   *secp256k1.PublicKey
}

// PublicKey is a recipient identity: a long-term point P, a routing
// address, and a vector of rotation terms that fold wall-clock time into
// the effective point via current_pubkey_point.
type PublicKey struct {
	P        *secp256k1.PublicKey
	Addr     Address
	T0       uint32
	Ts       uint32
	Tbk      []Rotation
	Name     string
	Metadata map[string]string

	mu        sync.Mutex
	lastSteps *int64
	lastPoint *secp256k1.PublicKey
}

// Valid checks the public key's invariants short of the per-T-point
// infinity check, which the curve library enforces at construction time
// (ParsePubKey/NewPublicKey never produce the identity).
func (pk *PublicKey) Valid() bool {
	if pk.P == nil {
		return false
	}
	if !pk.Addr.Valid() {
		return false
	}
	if pk.Ts < TSMin || pk.Ts > TSMax {
		return false
	}
	for _, r := range pk.Tbk {
		if r.T == nil {
			return false
		}
	}
	return true
}

// SetMetadata attaches a client-local key/value pair to the key. Metadata
// is never serialized.
func (pk *PublicKey) SetMetadata(key, value string) {
	if pk.Metadata == nil {
		pk.Metadata = map[string]string{}
	}
	pk.Metadata[key] = value
}

// GetMetadata returns a previously set metadata value, and whether it was
// present.
func (pk *PublicKey) GetMetadata(key string) (string, bool) {
	v, ok := pk.Metadata[key]
	return v, ok
}

// Label returns a short human-readable identifier: the key's name (if any)
// joined to the first 8 hex characters of its compressed point.
func (pk *PublicKey) Label(ctx *curve.Context) string {
	txt := ctx.CompressHex(pk.P)
	if len(txt) > 8 {
		txt = txt[:8]
	}
	if pk.Name != "" {
		txt = pk.Name + "_" + txt
	}
	return txt
}

// CurrentPoint computes P(now) = P + Σ h_i(steps)·T_i, the time-rotated
// public point. The result is memoised per rotation step.
func (pk *PublicKey) CurrentPoint(ctx *curve.Context, now int64) (*secp256k1.PublicKey, error) {
	steps := rotationSteps(now, pk.T0, pk.Ts)

	pk.mu.Lock()
	if pk.lastSteps != nil && *pk.lastSteps == steps {
		p := pk.lastPoint
		pk.mu.Unlock()
		return p, nil
	}
	pk.mu.Unlock()

	p := pk.P
	var err error
	for _, r := range pk.Tbk {
		h := stepHash(r.OTP, steps)
		s, serr := ctx.ScalarMult(r.T, h)
		if serr != nil {
			return nil, fmt.Errorf("keys: rotation term: %w", serr)
		}
		p, err = ctx.Add(s, p)
		if err != nil {
			return nil, fmt.Errorf("keys: rotation accumulation: %w", err)
		}
	}

	pk.mu.Lock()
	pk.lastSteps = &steps
	pk.lastPoint = p
	pk.mu.Unlock()
	return p, nil
}

// PrivateKey extends the PublicKey contract with the scalar backing P and
// the rotation scalars backing Tbk.
type PrivateKey struct {
	P        *big.Int
	Addr     Address
	T0       uint32
	Ts       uint32
	Tbk      []RotationPriv
	Name     string
	Metadata map[string]string

	mu        sync.Mutex
	lastSteps *int64
	lastVal   *big.Int
}

// RotationPriv is one (otp, t) entry of a private key's time-base vector.
type RotationPriv struct {
	OTP *big.Int
	T   *big.Int
}

// CalcPublicKey derives the PublicKey view of sk: P = p·G, T_i = t_i·G.
func (sk *PrivateKey) CalcPublicKey(ctx *curve.Context) (*PublicKey, error) {
	P, err := ctx.ScalarBaseMult(sk.P)
	if err != nil {
		return nil, fmt.Errorf("keys: P = p*G: %w", err)
	}
	tbk := make([]Rotation, len(sk.Tbk))
	for i, r := range sk.Tbk {
		T, err := ctx.ScalarBaseMult(r.T)
		if err != nil {
			return nil, fmt.Errorf("keys: T_%d = t_%d*G: %w", i, i, err)
		}
		tbk[i] = Rotation{OTP: r.OTP, T: T}
	}
	return &PublicKey{
		P:        P,
		Addr:     sk.Addr,
		T0:       sk.T0,
		Ts:       sk.Ts,
		Tbk:      tbk,
		Name:     sk.Name,
		Metadata: sk.Metadata,
	}, nil
}

// Label returns a short human-readable identifier based on the private
// scalar rather than the derived point (matching ciphrtxt-lib's
// PrivateKey.label, distinct from PublicKey.Label/pubkey_label).
func (sk *PrivateKey) Label() string {
	txt := fmt.Sprintf("%064x", sk.P)
	if len(txt) > 8 {
		txt = txt[:8]
	}
	if sk.Name != "" {
		txt = sk.Name + "_" + txt
	}
	return txt
}

// SetMetadata attaches a client-local key/value pair.
func (sk *PrivateKey) SetMetadata(key, value string) {
	if sk.Metadata == nil {
		sk.Metadata = map[string]string{}
	}
	sk.Metadata[key] = value
}

// GetMetadata returns a previously set metadata value, and whether it was
// present.
func (sk *PrivateKey) GetMetadata(key string) (string, bool) {
	v, ok := sk.Metadata[key]
	return v, ok
}

// CurrentScalar computes p(now) = (p + Σ h_i(steps)·t_i) mod n, the
// time-rotated private scalar. Memoised per rotation step.
func (sk *PrivateKey) CurrentScalar(now int64) *big.Int {
	steps := rotationSteps(now, sk.T0, sk.Ts)

	sk.mu.Lock()
	if sk.lastSteps != nil && *sk.lastSteps == steps {
		v := sk.lastVal
		sk.mu.Unlock()
		return v
	}
	sk.mu.Unlock()

	p := new(big.Int).Set(sk.P)
	for _, r := range sk.Tbk {
		h := stepHash(r.OTP, steps)
		s := new(big.Int).Mul(r.T, h)
		s.Mod(s, curve.N)
		p.Add(p, s)
		p.Mod(p, curve.N)
	}

	sk.mu.Lock()
	sk.lastSteps = &steps
	sk.lastVal = p
	sk.mu.Unlock()
	return p
}
