package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	intHeaderLength  = 4
	intMaxBodyLength = MaxDatagramPayload - intHeaderLength // 65523, UDP-safe ceiling
)

// IntHeaderCodec prefixes each frame with a 4-byte big-endian unsigned
// length, no footer. Used standalone for byte-stream (TCP) transports
// where body length can exceed a short header's range, and as the base
// layer under the checksum and compression wrapper codecs.
type IntHeaderCodec struct {
	bodyLength int
}

// NewIntHeaderCodec returns a codec accepting bodies up to bodyLength
// bytes. bodyLength <= 0 selects a generous stream default of 16MiB;
// pass a smaller value (e.g. intMaxBodyLength) for UDP-safe framing.
func NewIntHeaderCodec(bodyLength int) (*IntHeaderCodec, error) {
	if bodyLength <= 0 {
		bodyLength = 16 << 20
	}
	if bodyLength < 1 {
		return nil, fmt.Errorf("codec: int header bodyLength must be >= 1")
	}
	return &IntHeaderCodec{bodyLength: bodyLength}, nil
}

func (c *IntHeaderCodec) HeaderLength() int { return intHeaderLength }
func (c *IntHeaderCodec) BodyLength() int   { return c.bodyLength }
func (c *IntHeaderCodec) FooterLength() int { return 0 }
func (c *IntHeaderCodec) FrameLength() int  { return intHeaderLength + c.bodyLength }

func (c *IntHeaderCodec) GetEncodedLength(msg []byte) int {
	return intHeaderLength + len(msg)
}

func (c *IntHeaderCodec) IsValid(msg []byte) bool {
	return len(msg) > 0 && len(msg) <= c.bodyLength
}

func (c *IntHeaderCodec) Put(msg, buf []byte) (int, error) {
	if !c.IsValid(msg) {
		return 0, invalidLength(fmt.Sprintf("int header: body length %d out of [1,%d]", len(msg), c.bodyLength))
	}
	if len(buf) < intHeaderLength+len(msg) {
		return 0, invalidLength("int header: output buffer too small")
	}
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[intHeaderLength:], msg)
	return intHeaderLength + len(msg), nil
}

func (c *IntHeaderCodec) HasNext(buf []byte) (bool, error) {
	if len(buf) < intHeaderLength {
		return false, nil
	}
	length := int(binary.BigEndian.Uint32(buf))
	if length < 1 || length > c.bodyLength {
		return false, invalidLength(fmt.Sprintf("int header: decoded length %d out of [1,%d]", length, c.bodyLength))
	}
	return len(buf) >= intHeaderLength+length, nil
}

func (c *IntHeaderCodec) GetDecodedLength(buf []byte) int {
	return int(binary.BigEndian.Uint32(buf))
}

func (c *IntHeaderCodec) Get(buf, msg []byte) (int, int, error) {
	length := c.GetDecodedLength(buf)
	total := intHeaderLength + length
	if len(buf) < total {
		return 0, 0, invalidEncoding("int header: truncated frame")
	}
	if len(msg) < length {
		return 0, 0, invalidLength("int header: output buffer too small")
	}
	copy(msg, buf[intHeaderLength:total])
	return total, length, nil
}

func (c *IntHeaderCodec) Close() error { return nil }

func (c *IntHeaderCodec) Clone() Codec {
	return &IntHeaderCodec{bodyLength: c.bodyLength}
}
