package curve

import (
	"crypto/rand"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Signature is a raw (r, s) ECDSA signature pair. Every wire format in this
// protocol (message headers, NAKs) bakes the raw integers in directly, so
// Sign/Verify here work with them explicitly rather than an opaque
// signature blob.
type Signature struct {
	R *big.Int
	S *big.Int
}

// Sign produces an ECDSA signature of hash under priv (a scalar mod N).
// Callers that need to "sign over ciphertext+header"
// do so by hashing the concatenation before calling Sign; Sign itself only
// ever signs a fixed-size digest, matching the underlying ECDSA contract.
func (c *Context) Sign(priv *big.Int, hash []byte) (*Signature, error) {
	e := new(big.Int).SetBytes(hash)
	privmod := new(big.Int).Mod(priv, N)
	for {
		k, err := randFieldElement()
		if err != nil {
			return nil, err
		}
		R, err := c.ScalarBaseMult(k)
		if err != nil {
			continue
		}
		r := new(big.Int).Mod(c.AffineX(R), N)
		if r.Sign() == 0 {
			continue
		}
		kInv := new(big.Int).ModInverse(k, N)
		if kInv == nil {
			continue
		}
		s := new(big.Int).Mul(r, privmod)
		s.Add(s, e)
		s.Mul(s, kInv)
		s.Mod(s, N)
		if s.Sign() == 0 {
			continue
		}
		return &Signature{R: r, S: s}, nil
	}
}

// Verify checks an ECDSA signature of hash against pub.
func (c *Context) Verify(pub *secp256k1.PublicKey, sig *Signature, hash []byte) bool {
	if sig == nil || sig.R == nil || sig.S == nil {
		return false
	}
	if sig.R.Sign() <= 0 || sig.R.Cmp(N) >= 0 {
		return false
	}
	if sig.S.Sign() <= 0 || sig.S.Cmp(N) >= 0 {
		return false
	}
	e := new(big.Int).SetBytes(hash)
	w := new(big.Int).ModInverse(sig.S, N)
	if w == nil {
		return false
	}
	u1 := new(big.Int).Mod(new(big.Int).Mul(e, w), N)
	u2 := new(big.Int).Mod(new(big.Int).Mul(sig.R, w), N)

	p1, err1 := c.ScalarBaseMult(u1)
	p2, err2 := c.ScalarMult(pub, u2)
	if err1 != nil || err2 != nil {
		return false
	}
	sum, err := c.Add(p1, p2)
	if err != nil {
		return false
	}
	x := new(big.Int).Mod(c.AffineX(sum), N)
	return x.Cmp(sig.R) == 0
}

func randFieldElement() (*big.Int, error) {
	b := make([]byte, NBytes)
	for {
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
		k := new(big.Int).SetBytes(b)
		if k.Sign() != 0 && k.Cmp(N) < 0 {
			return k, nil
		}
	}
}

// RandScalar returns a uniformly random scalar in [2, N-1], the range
// required for private keys and one-time rotation scalars.
func RandScalar() (*big.Int, error) {
	for {
		k, err := randFieldElement()
		if err != nil {
			return nil, err
		}
		if k.Cmp(big.NewInt(2)) >= 0 {
			return k, nil
		}
	}
}
