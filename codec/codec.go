// Package codec
// Author: momentics <momentics@gmail.com>
//
// Message framing and delimitation: header/body/footer layout for turning
// a byte stream into discrete messages, and back. Adapted from the
// original ShortHeaderCodec/Codecs design, with checksum and compression
// wrapper codecs layered on top of an int-header base codec.
package codec

import "github.com/dsys/snio/errs"

// MaxDatagramPayload is the largest body a codec may ever need to fit
// inside a single UDP datagram (65535 minus the 8-byte UDP header).
const MaxDatagramPayload = 65527

// Codec frames and delimits messages on a byte stream. Implementations
// are safe for one concurrent encoder and one concurrent decoder (the
// two directions do not share mutable state), but not for two concurrent
// encoders or two concurrent decoders on the same instance.
type Codec interface {
	// HeaderLength is the fixed length of the frame header.
	HeaderLength() int
	// BodyLength is the maximum body length this codec accepts.
	BodyLength() int
	// FooterLength is the fixed length of the frame footer.
	FooterLength() int
	// FrameLength is HeaderLength + BodyLength + FooterLength.
	FrameLength() int

	// GetEncodedLength returns the on-wire length of msg once encoded.
	GetEncodedLength(msg []byte) int
	// IsValid reports whether msg fits within BodyLength; it does not
	// mutate msg.
	IsValid(msg []byte) bool
	// Put encodes msg into buf, which must be at least
	// GetEncodedLength(msg) bytes, returning the number of bytes written.
	Put(msg, buf []byte) (int, error)

	// HasNext peeks at buf (without advancing a read position) and
	// reports whether a complete frame is present.
	HasNext(buf []byte) (bool, error)
	// GetDecodedLength returns the decoded body length of the frame at
	// the start of buf. Only valid after HasNext returns true.
	GetDecodedLength(buf []byte) int
	// Get decodes the frame at the start of buf into msg, returning the
	// number of bytes consumed from buf and the number of decoded
	// payload bytes written into msg — the two differ for compressed
	// frames, where GetDecodedLength reports only the still-compressed
	// size. Only valid after HasNext returns true.
	Get(buf, msg []byte) (consumed, payloadLen int, err error)

	// Close releases any resources (compressors, hash state) held by
	// this codec instance.
	Close() error
	// Clone returns a fresh, independent codec instance with the same
	// configuration, for use as a second direction's scratch state.
	Clone() Codec
}

func invalidLength(msg string) error {
	return errs.InvalidLength(msg, nil)
}

func invalidEncoding(msg string) error {
	return errs.InvalidEncoding(msg, nil)
}
