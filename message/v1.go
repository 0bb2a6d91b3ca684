package message

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

const v1APIVersion = "M0100"

// ErrMalformed is returned when a wire-format message fails to parse,
// decompress, or checksum — never alongside a partially populated Message.
var ErrMalformed = errors.New("message: malformed")

func scalarHex(s *big.Int) string {
	return fmt.Sprintf("%0*x", curve.NBytes*2, s)
}

// serializeHeaderV1 renders "M0100:TIME8:EXPIRE8:I:J:K", matching
// MessageHeader._serialize_header.
func serializeHeaderV1(ctx *curve.Context, h *Header) string {
	return fmt.Sprintf("%s:%08X:%08X:%s:%s:%s",
		v1APIVersion, h.Time, h.Expire,
		ctx.CompressHex(h.I), ctx.CompressHex(h.J), ctx.CompressHex(h.K))
}

func deserializeHeaderV1(ctx *curve.Context, fields []string) (*Header, error) {
	if len(fields) != 6 {
		return nil, ErrMalformed
	}
	if fields[0] != v1APIVersion {
		return nil, ErrMalformed
	}
	var t, e uint32
	if _, err := fmt.Sscanf(fields[1], "%08x", &t); err != nil {
		return nil, ErrMalformed
	}
	if _, err := fmt.Sscanf(fields[2], "%08x", &e); err != nil {
		return nil, ErrMalformed
	}
	I, err := ctx.DecompressHex(fields[3])
	if err != nil {
		return nil, ErrMalformed
	}
	J, err := ctx.DecompressHex(fields[4])
	if err != nil {
		return nil, ErrMalformed
	}
	K, err := ctx.DecompressHex(fields[5])
	if err != nil {
		return nil, ErrMalformed
	}
	return &Header{Time: t, Expire: e, I: I, J: J, K: K}, nil
}

// serializeV1 renders a v1 message: header + ":" + hex(sig.r) + ":" +
// hex(sig.s) + ":" + base64(ctxt).
func (m *Message) serializeV1(ctx *curve.Context) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		serializeHeaderV1(ctx, &m.Header),
		scalarHex(m.Sig.R), scalarHex(m.Sig.S),
		base64.StdEncoding.EncodeToString(m.Ctxt))
}

// DeserializeV1 parses the colon-delimited ASCII wire form.
func DeserializeV1(ctx *curve.Context, s string) (*Message, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 9 {
		return nil, ErrMalformed
	}
	h, err := deserializeHeaderV1(ctx, fields[:6])
	if err != nil {
		return nil, err
	}
	r, ok := new(big.Int).SetString(fields[6], 16)
	if !ok {
		return nil, ErrMalformed
	}
	sv, ok := new(big.Int).SetString(fields[7], 16)
	if !ok {
		return nil, ErrMalformed
	}
	ctxt, err := base64.StdEncoding.DecodeString(fields[8])
	if err != nil {
		return nil, ErrMalformed
	}
	return &Message{
		Header:  *h,
		Version: V1,
		Sig:     &curve.Signature{R: r, S: sv},
		Ctxt:    ctxt,
	}, nil
}

// v1Digest computes h = int(SHA256(ascii_hex(s) || utf8(ptxt))) mod nothing
// (it stays a full 256-bit integer, reduced by the caller where needed).
func v1Digest(s *big.Int, ptxt []byte) *big.Int {
	buf := append([]byte(scalarHex(s)), ptxt...)
	sum := sha256.Sum256(buf)
	return new(big.Int).SetBytes(sum[:])
}

// v1Payload builds the plaintext-bearing block AES-CTR encrypts:
// hex(s) + ":" + base64(ptxt).
func v1Payload(s *big.Int, ptxt []byte) []byte {
	return []byte(scalarHex(s) + ":" + base64.StdEncoding.EncodeToString(ptxt))
}

