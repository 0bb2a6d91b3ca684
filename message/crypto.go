package message

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// last16 returns the trailing 16 bytes of a 33-byte SEC1 compressed point,
// the slice both the AES key and the AES-CTR counter are built from.
func last16(b []byte) []byte {
	return b[len(b)-16:]
}

// deriveKeyIV derives the AES-128 key from the ECDH point dh and the
// 128-bit counter from the ephemeral point eph.
func deriveKeyIV(ctx *curve.Context, eph, dh *secp256k1.PublicKey) (key, iv []byte) {
	return last16(ctx.Compress(dh)), last16(ctx.Compress(eph))
}

// aesCTR XORs data against an AES-128-CTR keystream; CTR is symmetric so
// the same call encrypts and decrypts.
func aesCTR(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("message: aes key: %w", err)
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// concatBytes returns a freshly allocated concatenation of a and b.
func concatBytes(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

// sha256Sum returns the SHA-256 digest of b as a plain byte slice.
func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// sigScalar derives the ECDSA signing/verification scalar from a shared
// ECDH point: int(SHA256(compress(DH))) mod n.
func sigScalar(ctx *curve.Context, dh *secp256k1.PublicKey) *big.Int {
	sum := sha256.Sum256(ctx.Compress(dh))
	v := new(big.Int).SetBytes(sum[:])
	v.Mod(v, curve.N)
	return v
}
