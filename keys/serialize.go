package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

// ErrMalformed is returned by Deserialize when a key string fails parsing,
// checksum verification, or point decompression. No partial key is ever
// returned alongside this error.
var ErrMalformed = errors.New("keys: malformed key")

const (
	formatVersion = 0x0100
	scalarHexLen  = curve.NBytes * 2 // 64
	maskHexLen    = 8                // ceil(MaskSize/8)*2
)

func checksum8(body string) string {
	sum := sha256.Sum256([]byte(body))
	h := hex.EncodeToString(sum[:])
	return h[len(h)-8:]
}

func parseHexUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, ErrMalformed
	}
	return uint32(v), nil
}

func parseHexInt(s string) (int, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, ErrMalformed
	}
	return int(v), nil
}

// Serialize renders the public key in ciphrtxt-lib's v1 ASCII form
//: `P0100:K<point>:M<mask>:N<target>:Z<t0>:S<ts>:R<r>`
// followed by r (F,T) pairs and a trailing checksum field.
func (pk *PublicKey) Serialize(ctx *curve.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "P%04x", formatVersion)
	fmt.Fprintf(&b, ":K%s", ctx.CompressHex(pk.P))
	fmt.Fprintf(&b, ":M%0*x", maskHexLen, pk.Addr.Mask)
	fmt.Fprintf(&b, ":N%0*x", maskHexLen, pk.Addr.Target)
	fmt.Fprintf(&b, ":Z%08x", pk.T0)
	fmt.Fprintf(&b, ":S%08x", pk.Ts)
	fmt.Fprintf(&b, ":R%04x", len(pk.Tbk))
	for _, r := range pk.Tbk {
		fmt.Fprintf(&b, ":F%0*x", scalarHexLen, r.OTP)
		fmt.Fprintf(&b, ":T%s", ctx.CompressHex(r.T))
	}
	body := b.String()
	return body + ":C" + checksum8(body)
}

// DeserializePublicKey parses the form Serialize produces, verifying the
// checksum and decompressing every point. Returns ErrMalformed (with a nil
// key, never a partially populated one) on any failure.
func DeserializePublicKey(ctx *curve.Context, s string) (*PublicKey, error) {
	parts := strings.SplitN(s, ":C", 2)
	if len(parts) != 2 {
		return nil, ErrMalformed
	}
	body, sum := parts[0], parts[1]
	if sum != checksum8(body) {
		return nil, ErrMalformed
	}

	fields := strings.Split(body, ":")
	if len(fields) < 7 {
		return nil, ErrMalformed
	}
	codes := []byte{'P', 'K', 'M', 'N', 'Z', 'S', 'R'}
	for i, c := range codes {
		if len(fields[i]) < 1 || fields[i][0] != c {
			return nil, ErrMalformed
		}
	}
	if fields[0][1:] != "0100" {
		return nil, ErrMalformed
	}

	P, err := ctx.DecompressHex(fields[1][1:])
	if err != nil {
		return nil, ErrMalformed
	}
	mask, err := parseHexUint32(fields[2][1:])
	if err != nil {
		return nil, err
	}
	target, err := parseHexUint32(fields[3][1:])
	if err != nil {
		return nil, err
	}
	t0, err := parseHexUint32(fields[4][1:])
	if err != nil {
		return nil, err
	}
	ts, err := parseHexUint32(fields[5][1:])
	if err != nil {
		return nil, err
	}
	ntbk, err := parseHexInt(fields[6][1:])
	if err != nil {
		return nil, err
	}
	if len(fields) != 7+2*ntbk {
		return nil, ErrMalformed
	}

	tbk := make([]Rotation, ntbk)
	for i := 0; i < ntbk; i++ {
		ff, tf := fields[7+2*i], fields[8+2*i]
		if len(ff) < 1 || ff[0] != 'F' || len(tf) < 1 || tf[0] != 'T' {
			return nil, ErrMalformed
		}
		otp, ok := new(big.Int).SetString(ff[1:], 16)
		if !ok {
			return nil, ErrMalformed
		}
		T, err := ctx.DecompressHex(tf[1:])
		if err != nil {
			return nil, ErrMalformed
		}
		tbk[i] = Rotation{OTP: otp, T: T}
	}

	return &PublicKey{
		P:    P,
		Addr: Address{Mask: mask, Target: target},
		T0:   t0,
		Ts:   ts,
		Tbk:  tbk,
	}, nil
}

// Serialize renders the private key in ciphrtxt-lib's lowercase v1 ASCII
// form: `p0100:k<p>:m<mask>:n<target>:z<t0>:s<ts>:r<r>` followed by r (f,t)
// pairs (both scalars, hex) and a trailing checksum.
func (sk *PrivateKey) Serialize() string {
	var b strings.Builder
	fmt.Fprintf(&b, "p%04x", formatVersion)
	fmt.Fprintf(&b, ":k%0*x", scalarHexLen, sk.P)
	fmt.Fprintf(&b, ":m%0*x", maskHexLen, sk.Addr.Mask)
	fmt.Fprintf(&b, ":n%0*x", maskHexLen, sk.Addr.Target)
	fmt.Fprintf(&b, ":z%08x", sk.T0)
	fmt.Fprintf(&b, ":s%08x", sk.Ts)
	fmt.Fprintf(&b, ":r%04x", len(sk.Tbk))
	for _, r := range sk.Tbk {
		fmt.Fprintf(&b, ":f%0*x", scalarHexLen, r.OTP)
		fmt.Fprintf(&b, ":t%0*x", scalarHexLen, r.T)
	}
	body := b.String()
	return body + ":c" + checksum8(body)
}

// DeserializePrivateKey parses the form Serialize produces.
func DeserializePrivateKey(s string) (*PrivateKey, error) {
	parts := strings.SplitN(s, ":c", 2)
	if len(parts) != 2 {
		return nil, ErrMalformed
	}
	body, sum := parts[0], parts[1]
	if sum != checksum8(body) {
		return nil, ErrMalformed
	}

	fields := strings.Split(body, ":")
	if len(fields) < 7 {
		return nil, ErrMalformed
	}
	codes := []byte{'p', 'k', 'm', 'n', 'z', 's', 'r'}
	for i, c := range codes {
		if len(fields[i]) < 1 || fields[i][0] != c {
			return nil, ErrMalformed
		}
	}
	if fields[0][1:] != "0100" {
		return nil, ErrMalformed
	}

	p, ok := new(big.Int).SetString(fields[1][1:], 16)
	if !ok {
		return nil, ErrMalformed
	}
	mask, err := parseHexUint32(fields[2][1:])
	if err != nil {
		return nil, err
	}
	target, err := parseHexUint32(fields[3][1:])
	if err != nil {
		return nil, err
	}
	t0, err := parseHexUint32(fields[4][1:])
	if err != nil {
		return nil, err
	}
	ts, err := parseHexUint32(fields[5][1:])
	if err != nil {
		return nil, err
	}
	ntbk, err := parseHexInt(fields[6][1:])
	if err != nil {
		return nil, err
	}
	if len(fields) != 7+2*ntbk {
		return nil, ErrMalformed
	}

	tbk := make([]RotationPriv, ntbk)
	for i := 0; i < ntbk; i++ {
		ff, tf := fields[7+2*i], fields[8+2*i]
		if len(ff) < 1 || ff[0] != 'f' || len(tf) < 1 || tf[0] != 't' {
			return nil, ErrMalformed
		}
		otp, ok := new(big.Int).SetString(ff[1:], 16)
		if !ok {
			return nil, ErrMalformed
		}
		t, ok := new(big.Int).SetString(tf[1:], 16)
		if !ok {
			return nil, ErrMalformed
		}
		tbk[i] = RotationPriv{OTP: otp, T: t}
	}

	return &PrivateKey{
		P:    p,
		Addr: Address{Mask: mask, Target: target},
		T0:   t0,
		Ts:   ts,
		Tbk:  tbk,
	}, nil
}
