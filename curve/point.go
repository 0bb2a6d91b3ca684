package curve

import (
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrInfinity is returned when a computation would yield the point at
// infinity, which PublicKey invariants forbid.
var ErrInfinity = errors.New("curve: result is the point at infinity")

// ErrBadPoint is returned by Decompress when the input isn't a valid
// SEC1-compressed point on the curve.
var ErrBadPoint = errors.New("curve: invalid compressed point")

func scalarBytes(k *big.Int) []byte {
	b := make([]byte, NBytes)
	kb := k.Bytes()
	copy(b[NBytes-len(kb):], kb)
	return b
}

func toModNScalar(k *big.Int) secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	s.SetByteSlice(scalarBytes(new(big.Int).Mod(k, N)))
	return s
}

func jacobianIsInfinity(j *secp256k1.JacobianPoint) bool {
	return j.X.IsZero() && j.Y.IsZero()
}

// ScalarBaseMult computes k*G.
func (c *Context) ScalarBaseMult(k *big.Int) (*secp256k1.PublicKey, error) {
	kmod := new(big.Int).Mod(k, N)
	if kmod.Sign() == 0 {
		return nil, ErrInfinity
	}
	priv := secp256k1.PrivKeyFromBytes(scalarBytes(kmod))
	return priv.PubKey(), nil
}

// ScalarMult computes k*P for an arbitrary curve point P.
func (c *Context) ScalarMult(p *secp256k1.PublicKey, k *big.Int) (*secp256k1.PublicKey, error) {
	kmod := new(big.Int).Mod(k, N)
	if kmod.Sign() == 0 {
		return nil, ErrInfinity
	}
	var pj, rj secp256k1.JacobianPoint
	p.AsJacobian(&pj)
	kn := toModNScalar(kmod)
	secp256k1.ScalarMultNonConst(&kn, &pj, &rj)
	rj.ToAffine()
	if jacobianIsInfinity(&rj) {
		return nil, ErrInfinity
	}
	x, y := rj.X, rj.Y
	return secp256k1.NewPublicKey(&x, &y), nil
}

// Add computes p1+p2.
func (c *Context) Add(p1, p2 *secp256k1.PublicKey) (*secp256k1.PublicKey, error) {
	var p1j, p2j, rj secp256k1.JacobianPoint
	p1.AsJacobian(&p1j)
	p2.AsJacobian(&p2j)
	secp256k1.AddNonConst(&p1j, &p2j, &rj)
	rj.ToAffine()
	if jacobianIsInfinity(&rj) {
		return nil, ErrInfinity
	}
	x, y := rj.X, rj.Y
	return secp256k1.NewPublicKey(&x, &y), nil
}

// Compress returns the 33-byte SEC1 compressed encoding of p.
func (c *Context) Compress(p *secp256k1.PublicKey) []byte {
	return p.SerializeCompressed()
}

// CompressHex is Compress hex-encoded, the wire representation used by
// key serialization and message headers.
func (c *Context) CompressHex(p *secp256k1.PublicKey) string {
	return hex.EncodeToString(p.SerializeCompressed())
}

// Decompress parses a 33-byte SEC1 compressed point.
func (c *Context) Decompress(b []byte) (*secp256k1.PublicKey, error) {
	p, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, ErrBadPoint
	}
	return p, nil
}

// DecompressHex parses a hex-encoded 33-byte compressed point.
func (c *Context) DecompressHex(s string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrBadPoint
	}
	return c.Decompress(b)
}

// AffineX returns the affine x-coordinate of p as an integer in [0, P).
func (c *Context) AffineX(p *secp256k1.PublicKey) *big.Int {
	unc := p.SerializeUncompressed()
	return new(big.Int).SetBytes(unc[1 : 1+NBytes])
}
