package codec

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/adler32"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
)

// ChecksumKind selects the digest algorithm a ChecksumCodec appends.
type ChecksumKind int

const (
	// ChecksumCRC32 uses hash/crc32 (IEEE polynomial).
	ChecksumCRC32 ChecksumKind = iota
	// ChecksumAdler32 uses hash/adler32.
	ChecksumAdler32
	// ChecksumXXHash uses cespare/xxhash/v2, truncated to 32 bits.
	ChecksumXXHash
)

func newHasher(kind ChecksumKind) (hash.Hash32, error) {
	switch kind {
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumAdler32:
		return adler32.New(), nil
	case ChecksumXXHash:
		return xxhash32{xxhash.New()}, nil
	default:
		return nil, fmt.Errorf("codec: unknown checksum kind %d", kind)
	}
}

// xxhash32 adapts xxhash.Digest (a hash.Hash64) to hash.Hash32 by
// truncating the 64-bit sum, matching the spec's "xxHash truncated to 32
// bits" footer format.
type xxhash32 struct {
	*xxhash.Digest
}

func (x xxhash32) Size() int      { return 4 }
func (x xxhash32) Sum32() uint32  { return uint32(x.Digest.Sum64()) }

const checksumFooterLength = 4

// ChecksumCodec wraps an int-header base codec and appends a 4-byte
// digest over the body, rejecting frames whose digest does not match on
// decode.
type ChecksumCodec struct {
	base *IntHeaderCodec
	kind ChecksumKind
	hEnc hash.Hash32
	hDec hash.Hash32
}

// NewChecksumCodec wraps base with a digest footer of the given kind.
func NewChecksumCodec(base *IntHeaderCodec, kind ChecksumKind) (*ChecksumCodec, error) {
	hEnc, err := newHasher(kind)
	if err != nil {
		return nil, err
	}
	hDec, err := newHasher(kind)
	if err != nil {
		return nil, err
	}
	return &ChecksumCodec{base: base, kind: kind, hEnc: hEnc, hDec: hDec}, nil
}

func (c *ChecksumCodec) HeaderLength() int { return c.base.HeaderLength() }
func (c *ChecksumCodec) BodyLength() int   { return c.base.BodyLength() }
func (c *ChecksumCodec) FooterLength() int { return checksumFooterLength }
func (c *ChecksumCodec) FrameLength() int  { return c.base.FrameLength() + checksumFooterLength }

func (c *ChecksumCodec) GetEncodedLength(msg []byte) int {
	return c.base.GetEncodedLength(msg) + checksumFooterLength
}

func (c *ChecksumCodec) IsValid(msg []byte) bool { return c.base.IsValid(msg) }

func (c *ChecksumCodec) Put(msg, buf []byte) (int, error) {
	n, err := c.base.Put(msg, buf)
	if err != nil {
		return 0, err
	}
	c.hEnc.Reset()
	_, _ = c.hEnc.Write(msg)
	binary.BigEndian.PutUint32(buf[n:], c.hEnc.Sum32())
	return n + checksumFooterLength, nil
}

func (c *ChecksumCodec) HasNext(buf []byte) (bool, error) {
	ok, err := c.base.HasNext(buf)
	if err != nil || !ok {
		return ok, err
	}
	total := c.base.GetDecodedLength(buf) + c.base.HeaderLength() + checksumFooterLength
	return len(buf) >= total, nil
}

func (c *ChecksumCodec) GetDecodedLength(buf []byte) int {
	return c.base.GetDecodedLength(buf)
}

func (c *ChecksumCodec) Get(buf, msg []byte) (int, int, error) {
	length := c.GetDecodedLength(buf)
	header := c.base.HeaderLength()
	bodyEnd := header + length
	total := bodyEnd + checksumFooterLength
	if len(buf) < total {
		return 0, 0, invalidEncoding("checksum: truncated frame")
	}
	if len(msg) < length {
		return 0, 0, invalidLength("checksum: output buffer too small")
	}
	body := buf[header:bodyEnd]
	c.hDec.Reset()
	_, _ = c.hDec.Write(body)
	want := c.hDec.Sum32()
	got := binary.BigEndian.Uint32(buf[bodyEnd:total])
	if want != got {
		return 0, 0, invalidEncoding(fmt.Sprintf("checksum: mismatch want=%x got=%x", want, got))
	}
	copy(msg, body)
	return total, length, nil
}

func (c *ChecksumCodec) Close() error { return c.base.Close() }

func (c *ChecksumCodec) Clone() Codec {
	hEnc, _ := newHasher(c.kind)
	hDec, _ := newHasher(c.kind)
	return &ChecksumCodec{base: c.base.Clone().(*IntHeaderCodec), kind: c.kind, hEnc: hEnc, hDec: hDec}
}
