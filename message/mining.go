package message

import (
	"context"
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
)

// ErrAborted is returned by Encode/EncodeImpersonate when the caller's
// context is cancelled mid-mine, with no partial Message constructed.
var ErrAborted = errors.New("message: aborted")

// MiningStatus reports slot-mining progress: the best
// popcount distance seen so far and the total attempts made.
type MiningStatus struct {
	BestBits int
	NHash    int64
}

// MiningProgress is invoked roughly every 10 attempts during slot mining.
type MiningProgress func(MiningStatus)

func popcount32(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

// mineSlot repeatedly draws a random scalar s until s·G's masked address
// prefix equals target. It returns s and I = s·G.
func mineSlot(ctx context.Context, c *curve.Context, mask, target uint32, progress MiningProgress) (*big.Int, *secp256k1.PublicKey, error) {
	status := MiningStatus{BestBits: keys.MaskSize}
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ErrAborted
		default:
		}

		s, err := curve.RandScalar()
		if err != nil {
			return nil, nil, err
		}
		I, err := c.ScalarBaseMult(s)
		if err != nil {
			continue
		}
		x := c.AffineX(I)
		mv := maskedPrefix(x, mask)
		miss := popcount32(mv ^ target)
		if miss < status.BestBits {
			status.BestBits = miss
		}
		if mv == target {
			return s, I, nil
		}
		if progress != nil && status.NHash%10 == 0 {
			progress(status)
		}
		status.NHash++
	}
}
