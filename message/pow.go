package message

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"hash"
	"math/big"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// errNotCloneable and errPoWExhausted are internal failure modes of
// searchPoW: the former would indicate a non-stdlib sha256 implementation
// lacking state (un)marshalling, the latter an exhausted 40-bit nonce space
// (astronomically unlikely at any sane nbits).
var (
	errNotCloneable = errors.New("message: sha256 implementation is not cloneable")
	errPoWExhausted = errors.New("message: proof-of-work nonce space exhausted")
)

// PoWStatus reports hashcash search progress, invoked roughly every 100
// attempts.
type PoWStatus struct {
	NonceM uint32
	NHash  int64
}

// PoWProgress is invoked periodically during the v2 proof-of-work search.
type PoWProgress func(PoWStatus)

const (
	nonceLBits = 24
	nonceLMax  = 1 << nonceLBits
	nonceMMax  = 1 << 16
)

// powTarget is 1 << (256 - nbits).
func powTarget(nbits int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(256-nbits))
}

// cloningHash is satisfied by the stdlib sha256 implementation, which
// exposes binary (un)marshalling of its running state — the mechanism used
// here to precompute the outer hash once per nonceM, then clone per nonceL.
type cloningHash interface {
	hash.Hash
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// searchPoW finds a 40-bit nonce (nonceM<<24 | nonceL) such that
// int(SHA256(shortHeaderB64 || base64(rsig||nonceM_be2||nonceL_be3))) is
// below target.
func searchPoW(ctx context.Context, shortHeaderB64 string, sig *curve.Signature, nbits int, progress PoWProgress) (uint64, error) {
	target := powTarget(nbits)
	rsig := make([]byte, 64)
	putUint256BE(rsig[0:32], sig.R)
	putUint256BE(rsig[32:64], sig.S)

	status := PoWStatus{}
	var nhash int64

	for nonceM := uint32(0); nonceM < nonceMMax; nonceM++ {
		select {
		case <-ctx.Done():
			return 0, ErrAborted
		default:
		}

		prefix := make([]byte, 66)
		copy(prefix, rsig)
		prefix[64] = byte(nonceM >> 8)
		prefix[65] = byte(nonceM)

		outer := sha256.New()
		outer.Write([]byte(shortHeaderB64))
		outer.Write([]byte(base64.StdEncoding.EncodeToString(prefix)))
		ch, ok := outer.(cloningHash)
		if !ok {
			return 0, errNotCloneable
		}
		state, err := ch.MarshalBinary()
		if err != nil {
			return 0, err
		}

		for nonceL := uint32(0); nonceL < nonceLMax; nonceL++ {
			select {
			case <-ctx.Done():
				return 0, ErrAborted
			default:
			}

			clone := sha256.New().(cloningHash)
			if err := clone.UnmarshalBinary(state); err != nil {
				return 0, err
			}
			lbytes := []byte{byte(nonceL >> 16), byte(nonceL >> 8), byte(nonceL)}
			clone.Write([]byte(base64.StdEncoding.EncodeToString(lbytes)))
			sum := clone.Sum(nil)

			if new(big.Int).SetBytes(sum).Cmp(target) < 0 {
				return uint64(nonceM)<<nonceLBits | uint64(nonceL), nil
			}

			if progress != nil && nhash%100 == 0 {
				status.NonceM = nonceM
				status.NHash = nhash
				progress(status)
			}
			nhash++
		}
	}
	return 0, errPoWExhausted
}

// verifyPoW recomputes the hashcash digest for a received (sig, nonce) pair
// and checks it against the target implied by nbits.
func verifyPoW(shortHeaderB64 string, sig *curve.Signature, nonce uint64, nbits int) bool {
	nonceM := uint32(nonce >> nonceLBits)
	nonceL := uint32(nonce & (nonceLMax - 1))

	rsig := make([]byte, 64)
	putUint256BE(rsig[0:32], sig.R)
	putUint256BE(rsig[32:64], sig.S)
	prefix := make([]byte, 66)
	copy(prefix, rsig)
	prefix[64] = byte(nonceM >> 8)
	prefix[65] = byte(nonceM)

	h := sha256.New()
	h.Write([]byte(shortHeaderB64))
	h.Write([]byte(base64.StdEncoding.EncodeToString(prefix)))
	lbytes := []byte{byte(nonceL >> 16), byte(nonceL >> 8), byte(nonceL)}
	h.Write([]byte(base64.StdEncoding.EncodeToString(lbytes)))
	sum := h.Sum(nil)

	return new(big.Int).SetBytes(sum).Cmp(powTarget(nbits)) < 0
}
