package keys

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

func randIntN(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randBits(bits int) (*big.Int, error) {
	byteLen := (bits + 7) / 8
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	excess := byteLen*8 - bits
	if excess > 0 {
		b[0] &= 0xff >> uint(excess)
	}
	return new(big.Int).SetBytes(b), nil
}

// randomAddress draws (mask, target) by selecting MaskBits distinct bit
// positions within [0, MaskSize) and flipping a fair coin per position to
// decide membership in target, rejecting a draw only in the (practically
// unreachable) case the original algorithm rejects it: an empty mask, or a
// shifted target exceeding the group order.
func randomAddress() (Address, error) {
	for {
		used := make(map[int]bool, MaskBits)
		var maskVal, match uint32
		for i := 0; i < MaskBits; i++ {
			var bitpos int
			for {
				b, err := randIntN(MaskSize)
				if err != nil {
					return Address{}, err
				}
				if !used[b] {
					bitpos = b
					break
				}
			}
			used[bitpos] = true
			bit := uint32(1) << uint(bitpos)
			maskVal |= bit
			coin, err := randIntN(2)
			if err != nil {
				return Address{}, err
			}
			if coin == 1 {
				match |= bit
			}
		}
		maskShift := new(big.Int).Lsh(big.NewInt(int64(match)), uint(curve.Bits-MaskSize))
		if maskVal != 0 && maskShift.Cmp(curve.N) < 0 {
			return Address{Mask: maskVal, Target: match}, nil
		}
	}
}

// randomPeriod draws ts uniformly from [TSTarget-TSSigma, TSTarget+TSSigma],
// rejecting unless it also falls strictly within (TSMin, TSMax) — the
// ciphrtxt-lib randomize() algorithm verbatim; with the stock constants the
// narrower band is always inside the wider one, so the reject branch is
// unreachable but kept for fidelity and in case the constants are tuned.
func randomPeriod() (uint32, error) {
	lo := int64(TSTarget - TSSigma)
	hi := int64(TSTarget + TSSigma)
	span := hi - lo + 1
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(span))
		if err != nil {
			return 0, err
		}
		r := lo + n.Int64()
		if r > TSMin && r < TSMax {
			return uint32(r), nil
		}
	}
}

// Randomize generates a fresh PrivateKey with ntbk rotation entries.
func Randomize(ctx *curve.Context, ntbk int, now int64) (*PrivateKey, error) {
	p, err := curve.RandScalar()
	if err != nil {
		return nil, fmt.Errorf("keys: randomize p: %w", err)
	}
	addr, err := randomAddress()
	if err != nil {
		return nil, fmt.Errorf("keys: randomize address: %w", err)
	}
	t0n, err := rand.Int(rand.Reader, big.NewInt(now+1))
	if err != nil {
		return nil, fmt.Errorf("keys: randomize t0: %w", err)
	}
	ts, err := randomPeriod()
	if err != nil {
		return nil, fmt.Errorf("keys: randomize ts: %w", err)
	}

	tbk := make([]RotationPriv, ntbk)
	for i := 0; i < ntbk; i++ {
		otp, err := randBits(curve.Bits)
		if err != nil {
			return nil, fmt.Errorf("keys: randomize otp[%d]: %w", i, err)
		}
		t, err := curve.RandScalar()
		if err != nil {
			return nil, fmt.Errorf("keys: randomize t[%d]: %w", i, err)
		}
		tbk[i] = RotationPriv{OTP: otp, T: t}
	}

	sk := &PrivateKey{
		P:    p,
		Addr: addr,
		T0:   uint32(t0n.Int64()),
		Ts:   ts,
		Tbk:  tbk,
	}
	return sk, nil
}
