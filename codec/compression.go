package codec

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
)

// CompressionKind selects the compressor a CompressionCodec uses.
type CompressionKind int

const (
	// CompressionDeflate uses compress/flate.
	CompressionDeflate CompressionKind = iota
	// CompressionLZ4 uses github.com/pierrec/lz4.
	CompressionLZ4
)

// UDP-safe body ceilings for the two compressors, leaving headroom inside
// a single datagram for the worst case (near-incompressible) payload.
const (
	deflateMaxBodyLength = 65499
	lz4MaxBodyLength     = 65252
)

// CompressionCodec wraps an int-header base codec, compressing the body
// before the frame length is written and decompressing on receive.
type CompressionCodec struct {
	base   *IntHeaderCodec
	kind   CompressionKind
	bufEnc bytes.Buffer // scratch reused across Put calls on this instance
	bufDec bytes.Buffer // scratch reused across Get calls on this instance
}

// NewCompressionCodec wraps base with the given compressor. base's
// BodyLength is interpreted as the maximum *uncompressed* body size and
// is capped to the compressor's UDP-safe ceiling if larger.
func NewCompressionCodec(base *IntHeaderCodec, kind CompressionKind) (*CompressionCodec, error) {
	limit := deflateMaxBodyLength
	if kind == CompressionLZ4 {
		limit = lz4MaxBodyLength
	}
	if base.BodyLength() > limit {
		b, err := NewIntHeaderCodec(limit)
		if err != nil {
			return nil, err
		}
		base = b
	}
	return &CompressionCodec{base: base, kind: kind}, nil
}

func (c *CompressionCodec) HeaderLength() int { return c.base.HeaderLength() }
func (c *CompressionCodec) BodyLength() int   { return c.base.BodyLength() }
func (c *CompressionCodec) FooterLength() int { return 0 }
func (c *CompressionCodec) FrameLength() int  { return c.base.FrameLength() }

// GetEncodedLength cannot know the compressed size without compressing;
// callers should size their output buffer to FrameLength() instead.
func (c *CompressionCodec) GetEncodedLength(msg []byte) int {
	return c.base.HeaderLength() + len(msg)
}

func (c *CompressionCodec) IsValid(msg []byte) bool { return c.base.IsValid(msg) }

func (c *CompressionCodec) compress(msg []byte) ([]byte, error) {
	c.bufEnc.Reset()
	switch c.kind {
	case CompressionDeflate:
		w, err := flate.NewWriter(&c.bufEnc, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(msg); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionLZ4:
		w := lz4.NewWriter(&c.bufEnc)
		if _, err := w.Write(msg); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("codec: unknown compression kind %d", c.kind)
	}
	return c.bufEnc.Bytes(), nil
}

func (c *CompressionCodec) decompress(body []byte, msg []byte) (int, error) {
	c.bufDec.Reset()
	var r io.Reader
	switch c.kind {
	case CompressionDeflate:
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		r = fr
	case CompressionLZ4:
		r = lz4.NewReader(bytes.NewReader(body))
	default:
		return 0, fmt.Errorf("codec: unknown compression kind %d", c.kind)
	}
	n, err := io.ReadFull(r, msg)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, invalidEncoding(fmt.Sprintf("compression: decompress failed: %v", err))
	}
	return n, nil
}

func (c *CompressionCodec) Put(msg, buf []byte) (int, error) {
	if !c.IsValid(msg) {
		return 0, invalidLength(fmt.Sprintf("compression: body length %d out of [1,%d]", len(msg), c.base.BodyLength()))
	}
	compressed, err := c.compress(msg)
	if err != nil {
		return 0, invalidEncoding(fmt.Sprintf("compression: compress failed: %v", err))
	}
	header := c.base.HeaderLength()
	if len(buf) < header+len(compressed) {
		return 0, invalidLength("compression: output buffer too small")
	}
	return c.base.Put(compressed, buf)
}

func (c *CompressionCodec) HasNext(buf []byte) (bool, error) {
	return c.base.HasNext(buf)
}

// GetDecodedLength reports the length of the still-compressed body; the
// true decompressed length is only known after Get runs, matching the
// original codec's documented "best effort" contract for compressed frames.
func (c *CompressionCodec) GetDecodedLength(buf []byte) int {
	return c.base.GetDecodedLength(buf)
}

func (c *CompressionCodec) Get(buf, msg []byte) (int, int, error) {
	length := c.base.GetDecodedLength(buf)
	header := c.base.HeaderLength()
	total := header + length
	if len(buf) < total {
		return 0, 0, invalidEncoding("compression: truncated frame")
	}
	n, err := c.decompress(buf[header:total], msg)
	if err != nil {
		return 0, 0, err
	}
	return total, n, nil
}

func (c *CompressionCodec) Close() error { return c.base.Close() }

func (c *CompressionCodec) Clone() Codec {
	return &CompressionCodec{base: c.base.Clone().(*IntHeaderCodec), kind: c.kind}
}
