// Package wallet implements the peripheral Base58Check address and WIF
// encoders. Ported from ciphrtxt-lib's ciphrtxt/wallet.py; unlike the rest of
// this module wallet.py has no state-machine or wire-compat requirement of
// its own, so this package is a straightforward re-expression of its
// encode/decode pair using the ecosystem's base58 codec rather than
// hand-rolling one.
package wallet

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160"
)

// Network carries the version bytes a given chain/variant uses for
// addresses and WIF private keys (wallet.py's _network_id table).
type Network struct {
	Name        string
	PubVersion  byte
	PrivVersion byte
}

var (
	CTIndigo  = Network{Name: "ct-indigo", PubVersion: 0x1C, PrivVersion: 0xBB}
	CTRed     = Network{Name: "ct-red", PubVersion: 0x50, PrivVersion: 0xA3}
	BTMain    = Network{Name: "bt-main", PubVersion: 0x00, PrivVersion: 0x80}
	BTTest    = Network{Name: "bt-test", PubVersion: 0x6f, PrivVersion: 0xef}
	BTSimtest = Network{Name: "bt-simtest", PubVersion: 0x3f, PrivVersion: 0x64}
)

// DefaultNetwork matches wallet.py's _default_network.
var DefaultNetwork = CTIndigo

var networks = []Network{CTIndigo, CTRed, BTMain, BTTest, BTSimtest}

// ByName looks up one of the built-in networks by its short name.
func ByName(name string) (Network, bool) {
	for _, n := range networks {
		if n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

func networkByPrivVersion(v byte) (Network, bool) {
	for _, n := range networks {
		if n.PrivVersion == v {
			return n, true
		}
	}
	return Network{}, false
}

// ErrChecksum is returned when a decoded base58check payload's trailing
// four bytes don't match the double-SHA256 checksum of the rest.
var ErrChecksum = errors.New("wallet: checksum mismatch")

// ErrFormat is returned for any other malformed wallet string: wrong
// length, unrecognized version byte, bad compressed-key marker.
var ErrFormat = errors.New("wallet: malformed wallet key")

func hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func encodeCheck(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload)+4)
	body = append(body, version)
	body = append(body, payload...)
	body = append(body, checksum(body)...)
	return base58.Encode(body)
}

func decodeCheck(s string) (version byte, payload []byte, err error) {
	raw := base58.Decode(s)
	if len(raw) < 5 {
		return 0, nil, ErrFormat
	}
	body, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(sum, checksum(body)) {
		return 0, nil, ErrChecksum
	}
	return body[0], body[1:], nil
}

func be32(p *big.Int) []byte {
	buf := make([]byte, 32)
	b := p.Bytes()
	copy(buf[32-len(b):], b)
	return buf
}

// EncodeAddress renders the V1-style address (wallet.py's
// serialize_pubkey_compressed): base58check(version || hash160(compressed
// pubkey)).
func EncodeAddress(pub *secp256k1.PublicKey, net Network) string {
	return encodeCheck(net.PubVersion, hash160(pub.SerializeCompressed()))
}

// EncodeAddressUncompressed renders the legacy form (wallet.py's
// serialize_pubkey) hashing the uncompressed 0x04||X||Y point instead.
func EncodeAddressUncompressed(pub *secp256k1.PublicKey, net Network) string {
	return encodeCheck(net.PubVersion, hash160(pub.SerializeUncompressed()))
}

// ParseAddress decodes a base58check address into its version byte and
// hash160 payload. An address commits to a hash of the point, not the
// point itself, so (matching wallet.py, which never defines a pubkey
// deserializer) there is no inverse back to a public key — ParseAddress
// only supports verifying an address against a known key's hash160.
func ParseAddress(s string) (version byte, hash []byte, err error) {
	return decodeCheck(s)
}

// EncodeWIF renders the uncompressed Wallet Import Format string
// (wallet.py's serialize_privkey): base58check(version || be32(p)).
func EncodeWIF(p *big.Int, net Network) string {
	return encodeCheck(net.PrivVersion, be32(p))
}

// EncodeWIFCompressed appends the compressed-pubkey marker byte before the
// checksum (wallet.py's serialize_privkey_compressed).
func EncodeWIFCompressed(p *big.Int, net Network) string {
	payload := append(be32(p), 0x01)
	return encodeCheck(net.PrivVersion, payload)
}

// ParsePrivateKey decodes a WIF string (compressed or uncompressed form)
// back into its scalar, reporting which form it was and which network its
// version byte identifies (wallet.py's deserialize_privkey /
// deserialize_privkey_compressed, unified into one entry point).
func ParsePrivateKey(s string) (p *big.Int, compressed bool, net Network, err error) {
	version, payload, err := decodeCheck(s)
	if err != nil {
		return nil, false, Network{}, err
	}
	net, ok := networkByPrivVersion(version)
	if !ok {
		return nil, false, Network{}, ErrFormat
	}
	switch len(payload) {
	case 32:
		return new(big.Int).SetBytes(payload), false, net, nil
	case 33:
		if payload[32] != 0x01 {
			return nil, false, Network{}, ErrFormat
		}
		return new(big.Int).SetBytes(payload[:32]), true, net, nil
	default:
		return nil, false, Network{}, ErrFormat
	}
}
