package message

import (
	"math/big"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// DefaultTTL is the validity window applied when Options.TTL is zero.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultPoWBits is the v2 proof-of-work difficulty applied when
// Options.NBits is zero.
const DefaultPoWBits = 16

// Version selects the wire format an encoded Message uses.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// Message is a built or decoded envelope: a Header plus the signature and
// ciphertext every version carries, and (once decoded, or at build time)
// the ephemeral scalar and plaintext.
type Message struct {
	Header
	Version Version

	Sig  *curve.Signature
	Ctxt []byte

	// BlockLen is the v2 ciphertext block count; zero for v1.
	BlockLen uint32
	// nonce is the v2 proof-of-work nonce backing the sig block; unused (0) for v1.
	nonce uint64

	// S, Ptxt, and AltK are populated on encode. A successful Decode sets S
	// and Ptxt; a successful DecodeSent also sets AltK.
	S    *big.Int
	Ptxt []byte
	AltK *secp256k1.PublicKey
}

// Options configures Encode/EncodeImpersonate.
type Options struct {
	TTL     time.Duration
	Version Version
	NBits   int // v2 only
	OnMine  MiningProgress
	OnPoW   PoWProgress
}

func (o Options) ttl() time.Duration {
	if o.TTL == 0 {
		return DefaultTTL
	}
	return o.TTL
}

func (o Options) nbits() int {
	if o.NBits == 0 {
		return DefaultPoWBits
	}
	return o.NBits
}

func (o Options) version() Version {
	if o.Version == 0 {
		return V1
	}
	return o.Version
}
