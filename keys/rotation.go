package keys

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// rotationSteps computes floor((now - t0) / ts) with Python-style floor
// division (rounds toward negative infinity), matching
// current_pubkey_point/current_privkey_val in ciphrtxt-lib.
func rotationSteps(now int64, t0, ts uint32) int64 {
	diff := now - int64(t0)
	d := int64(ts)
	q := diff / d
	if diff%d != 0 && diff < 0 {
		q--
	}
	return q
}

// stepHash is the HOTP-like per-rotation hash h_i(steps):
//
//	HMAC-SHA256(key = hex(otp, b bits, zero-padded), msg = "%07d" % (steps mod 1e7))
//	reduced modulo the field prime P, not the group order N. Interoperability
//	with the reference implementation requires this exact (and not fully
//	principled) reduction.
func stepHash(otp *big.Int, steps int64) *big.Int {
	key := fmt.Sprintf("%0*x", curve.NBytes*2, otp)

	stepsMod := steps % 10000000
	if stepsMod < 0 {
		stepsMod += 10000000
	}
	msg := fmt.Sprintf("%07d", stepsMod)

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	sum := mac.Sum(nil)

	h := new(big.Int).SetBytes(sum)
	h.Mod(h, curve.P)
	return h
}
