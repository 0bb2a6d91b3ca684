// Package topic derives a shared PrivateKey from a plaintext topic string,
// giving clients who agree on a topic name a rendezvous identity without
// exchanging any key material. Ported from ciphrtxt-lib's ciphrtxt/topic.py.
package topic

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
)

const (
	pbkdf2Iterations = 100000

	maskAll = (uint32(1) << keys.MaskSize) - 1
)

// New derives the deterministic PrivateKey for topic, with ntbk rotation
// entries (ntbk=1 is the canonical form used for broadcast channels).
func New(ctx *curve.Context, topic string, ntbk int) (*keys.PrivateKey, error) {
	nbytes := curve.NBytes
	ksize := (2 + 2*ntbk) * nbytes

	material := pbkdf2.Key([]byte(topic), []byte(topic), pbkdf2Iterations, ksize, sha256.New)

	p := new(big.Int).SetBytes(material[0:nbytes])
	p.Mod(p, curve.N)

	tbk := make([]keys.RotationPriv, ntbk)
	for i := 1; i <= ntbk; i++ {
		otpStart := 2 * i * nbytes
		otpEnd := (2*i + 1) * nbytes
		tStart := otpEnd
		tEnd := 2 * (i + 1) * nbytes

		otp := new(big.Int).SetBytes(material[otpStart:otpEnd])
		t := new(big.Int).SetBytes(material[tStart:tEnd])
		t.Mod(t, curve.N)
		tbk[i-1] = keys.RotationPriv{OTP: otp, T: t}
	}

	rehash := material[len(material)-nbytes:]
	t0 := uint32(0x40000000) | (uint32(be32(rehash[0:4])) & 0x0FFFFFFF)
	ts := keys.TSMin + (be32(rehash[4:8]) % (keys.TSMax - keys.TSMin))

	mask, target := deriveAddress(rehash)

	sk := &keys.PrivateKey{
		P:    p,
		Addr: keys.Address{Mask: mask, Target: target},
		T0:   t0,
		Ts:   ts,
		Tbk:  tbk,
		Name: fmt.Sprintf("topic:%s", topic),
	}
	return sk, nil
}

// deriveAddress implements the rehash-until-popcount-matches loop from
// topic.py: the mask/target are read from the low/next 32 bits of a
// 256-bit seed, and the seed is re-hashed with SHA-256 until the mask
// carries exactly keys.MaskBits ones.
func deriveAddress(rehash []byte) (mask, target uint32) {
	for {
		seed := new(big.Int).SetBytes(rehash)
		mask = uint32(new(big.Int).And(seed, big.NewInt(int64(maskAll))).Uint64())
		shifted := new(big.Int).Rsh(seed, keys.MaskSize)
		target = uint32(new(big.Int).And(shifted, big.NewInt(int64(mask))).Uint64())

		if popcount32(mask) == keys.MaskBits {
			return mask, target
		}
		sum := sha256.Sum256(rehash)
		rehash = sum[:]
	}
}

func popcount32(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
