package message

import (
	"encoding/base64"
	"encoding/binary"
	"math/big"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
)

const (
	v2ShortHeaderLen = 123
	v2SigBlockLen    = 69
	v2LongHeaderLen  = v2ShortHeaderLen + v2SigBlockLen // 192
	v2BlockSize      = 192
)

// serializeShortHeaderV2 renders the 123-byte binary prefix of the v2 wire
// format.
func serializeShortHeaderV2(ctx *curve.Context, h *Header, blocklen uint32) []byte {
	buf := make([]byte, v2ShortHeaderLen)
	buf[0] = 'M'
	buf[1], buf[2], buf[3] = 0x02, 0x00, 0x00
	binary.BigEndian.PutUint32(buf[4:8], h.Time)
	binary.BigEndian.PutUint32(buf[8:12], h.Expire)
	copy(buf[12:45], ctx.Compress(h.I))
	copy(buf[45:78], ctx.Compress(h.J))
	copy(buf[78:111], ctx.Compress(h.K))
	binary.BigEndian.PutUint32(buf[111:115], blocklen)
	// buf[115:123] reserved, left zero.
	return buf
}

func deserializeShortHeaderV2(ctx *curve.Context, buf []byte) (*Header, uint32, error) {
	if len(buf) != v2ShortHeaderLen {
		return nil, 0, ErrMalformed
	}
	if buf[0] != 'M' || buf[1] != 0x02 || buf[2] != 0x00 || buf[3] != 0x00 {
		return nil, 0, ErrMalformed
	}
	t := binary.BigEndian.Uint32(buf[4:8])
	e := binary.BigEndian.Uint32(buf[8:12])
	I, err := ctx.Decompress(buf[12:45])
	if err != nil {
		return nil, 0, ErrMalformed
	}
	J, err := ctx.Decompress(buf[45:78])
	if err != nil {
		return nil, 0, ErrMalformed
	}
	K, err := ctx.Decompress(buf[78:111])
	if err != nil {
		return nil, 0, ErrMalformed
	}
	blocklen := binary.BigEndian.Uint32(buf[111:115])
	return &Header{Time: t, Expire: e, I: I, J: J, K: K}, blocklen, nil
}

func serializeSigBlockV2(sig *curve.Signature, nonce uint64) []byte {
	buf := make([]byte, v2SigBlockLen)
	putUint256BE(buf[0:32], sig.R)
	putUint256BE(buf[32:64], sig.S)
	putUint40BE(buf[64:69], nonce)
	return buf
}

func deserializeSigBlockV2(buf []byte) (*curve.Signature, uint64, error) {
	if len(buf) != v2SigBlockLen {
		return nil, 0, ErrMalformed
	}
	r := new(big.Int).SetBytes(buf[0:32])
	s := new(big.Int).SetBytes(buf[32:64])
	nonce := getUint40BE(buf[64:69])
	return &curve.Signature{R: r, S: s}, nonce, nil
}

func putUint256BE(dst []byte, v *big.Int) {
	b := v.Bytes()
	copy(dst[len(dst)-len(b):], b)
}

func putUint40BE(dst []byte, v uint64) {
	dst[0] = byte(v >> 32)
	dst[1] = byte(v >> 24)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 8)
	dst[4] = byte(v)
}

func getUint40BE(b []byte) uint64 {
	return uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
}

// serializeV2 renders the full base64 wire form: 256 chars of header+sig,
// followed by blocklen*256 chars of ciphertext.
func (m *Message) serializeV2(ctx *curve.Context) string {
	short := serializeShortHeaderV2(ctx, &m.Header, m.BlockLen)
	sigBlock := serializeSigBlockV2(m.Sig, m.nonce)
	long := append(short, sigBlock...)
	return base64.StdEncoding.EncodeToString(long) + base64.StdEncoding.EncodeToString(m.Ctxt)
}

// DeserializeV2 parses the fixed binary-over-base64 wire form.
func DeserializeV2(ctx *curve.Context, s string) (*Message, error) {
	if len(s)%4 != 0 {
		return nil, ErrMalformed
	}
	headerB64Len := base64.StdEncoding.EncodedLen(v2LongHeaderLen)
	if len(s) < headerB64Len {
		return nil, ErrMalformed
	}
	long, err := base64.StdEncoding.DecodeString(s[:headerB64Len])
	if err != nil || len(long) != v2LongHeaderLen {
		return nil, ErrMalformed
	}
	h, blocklen, err := deserializeShortHeaderV2(ctx, long[:v2ShortHeaderLen])
	if err != nil {
		return nil, err
	}
	sig, nonce, err := deserializeSigBlockV2(long[v2ShortHeaderLen:])
	if err != nil {
		return nil, err
	}

	rest := s[headerB64Len:]
	wantLen := base64.StdEncoding.EncodedLen(int(blocklen) * v2BlockSize)
	if len(rest) != wantLen {
		return nil, ErrMalformed
	}
	ctxt, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return nil, ErrMalformed
	}

	return &Message{
		Header:   *h,
		Version:  V2,
		Sig:      sig,
		Ctxt:     ctxt,
		BlockLen: blocklen,
		nonce:    nonce,
	}, nil
}

// VerifyPoW checks that m's v2 hashcash nonce satisfies the difficulty
// threshold nbits. V1 messages carry no proof-of-work and always report
// true.
func (m *Message) VerifyPoW(ctx *curve.Context, nbits int) bool {
	if m.Version != V2 {
		return true
	}
	short := serializeShortHeaderV2(ctx, &m.Header, m.BlockLen)
	shortB64 := base64.StdEncoding.EncodeToString(short)
	return verifyPoW(shortB64, m.Sig, m.nonce, nbits)
}

// v2Stuff builds the padded plaintext block stxt = be(s,32) || be(len,8) ||
// ptxt || pad, where pad is a PKCS#7-style run of pad_len bytes each equal
// to pad_len, sized so the total is a multiple of v2BlockSize.
func v2Stuff(s *big.Int, ptxt []byte) []byte {
	head := make([]byte, 40)
	putUint256BE(head[0:32], s)
	binary.BigEndian.PutUint64(head[32:40], uint64(len(ptxt)))

	unpadded := 40 + len(ptxt)
	padLen := v2BlockSize - (unpadded % v2BlockSize)
	pad := make([]byte, padLen)
	for i := range pad {
		pad[i] = byte(padLen)
	}

	stxt := make([]byte, 0, unpadded+padLen)
	stxt = append(stxt, head...)
	stxt = append(stxt, ptxt...)
	stxt = append(stxt, pad...)
	return stxt
}

// v2Unstuff reverses v2Stuff, recovering s and the plaintext while
// validating the length field.
func v2Unstuff(etxt []byte) (s *big.Int, ptxt []byte, err error) {
	if len(etxt) < 40 {
		return nil, nil, ErrMalformed
	}
	s = new(big.Int).SetBytes(etxt[0:32])
	length := binary.BigEndian.Uint64(etxt[32:40])
	if 40+length > uint64(len(etxt)) {
		return nil, nil, ErrMalformed
	}
	ptxt = etxt[40 : 40+length]
	return s, ptxt, nil
}
