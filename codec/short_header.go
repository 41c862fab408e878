package codec

import "fmt"

const (
	shortHeaderLength  = 2
	shortMaxBodyLength = MaxDatagramPayload - shortHeaderLength // 65525
)

// ShortHeaderCodec prefixes each frame with a 2-byte big-endian unsigned
// length, no footer. Bodies longer than 65525 bytes do not fit a UDP
// datagram once framed, so the codec rejects them outright.
type ShortHeaderCodec struct {
	bodyLength int
}

// NewShortHeaderCodec returns a codec accepting bodies up to bodyLength
// bytes (capped at 65525). bodyLength <= 0 selects the maximum.
func NewShortHeaderCodec(bodyLength int) (*ShortHeaderCodec, error) {
	if bodyLength <= 0 {
		bodyLength = shortMaxBodyLength
	}
	if bodyLength > shortMaxBodyLength {
		return nil, fmt.Errorf("codec: short header bodyLength %d exceeds max %d", bodyLength, shortMaxBodyLength)
	}
	return &ShortHeaderCodec{bodyLength: bodyLength}, nil
}

func (c *ShortHeaderCodec) HeaderLength() int { return shortHeaderLength }
func (c *ShortHeaderCodec) BodyLength() int   { return c.bodyLength }
func (c *ShortHeaderCodec) FooterLength() int { return 0 }
func (c *ShortHeaderCodec) FrameLength() int  { return shortHeaderLength + c.bodyLength }

func (c *ShortHeaderCodec) GetEncodedLength(msg []byte) int {
	return shortHeaderLength + len(msg)
}

func (c *ShortHeaderCodec) IsValid(msg []byte) bool {
	return len(msg) > 0 && len(msg) <= c.bodyLength
}

func (c *ShortHeaderCodec) Put(msg, buf []byte) (int, error) {
	if !c.IsValid(msg) {
		return 0, invalidLength(fmt.Sprintf("short header: body length %d out of [1,%d]", len(msg), c.bodyLength))
	}
	if len(buf) < shortHeaderLength+len(msg) {
		return 0, invalidLength("short header: output buffer too small")
	}
	n := len(msg)
	buf[0] = byte(n >> 8)
	buf[1] = byte(n)
	copy(buf[shortHeaderLength:], msg)
	return shortHeaderLength + n, nil
}

func (c *ShortHeaderCodec) HasNext(buf []byte) (bool, error) {
	if len(buf) < shortHeaderLength {
		return false, nil
	}
	length := int(buf[0])<<8 | int(buf[1])
	if length < 1 || length > c.bodyLength {
		return false, invalidLength(fmt.Sprintf("short header: decoded length %d out of [1,%d]", length, c.bodyLength))
	}
	return len(buf) >= shortHeaderLength+length, nil
}

func (c *ShortHeaderCodec) GetDecodedLength(buf []byte) int {
	return int(buf[0])<<8 | int(buf[1])
}

func (c *ShortHeaderCodec) Get(buf, msg []byte) (int, int, error) {
	length := c.GetDecodedLength(buf)
	total := shortHeaderLength + length
	if len(buf) < total {
		return 0, 0, invalidEncoding("short header: truncated frame")
	}
	if len(msg) < length {
		return 0, 0, invalidLength("short header: output buffer too small")
	}
	copy(msg, buf[shortHeaderLength:total])
	return total, length, nil
}

func (c *ShortHeaderCodec) Close() error { return nil }

func (c *ShortHeaderCodec) Clone() Codec {
	return &ShortHeaderCodec{bodyLength: c.bodyLength}
}
