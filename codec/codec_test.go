package codec

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, c Codec, body []byte) {
	t.Helper()
	if !c.IsValid(body) {
		t.Fatalf("body rejected as invalid, len=%d", len(body))
	}
	buf := make([]byte, c.GetEncodedLength(body)+16)
	n, err := c.Put(body, buf)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != c.GetEncodedLength(body) {
		t.Fatalf("Put wrote %d bytes, want %d (length contract)", n, c.GetEncodedLength(body))
	}
	ok, err := c.HasNext(buf[:n])
	if err != nil {
		t.Fatalf("HasNext: %v", err)
	}
	if !ok {
		t.Fatalf("HasNext returned false for a complete frame")
	}
	out := make([]byte, len(body))
	consumed, payloadLen, err := c.Get(buf[:n], out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if consumed != n {
		t.Fatalf("Get consumed %d bytes, want %d", consumed, n)
	}
	if payloadLen != len(body) {
		t.Fatalf("Get reported payload length %d, want %d", payloadLen, len(body))
	}
	if !bytes.Equal(out[:payloadLen], body) {
		t.Fatalf("round trip mismatch: got %v, want %v", out[:payloadLen], body)
	}
}

func TestShortHeaderRoundTrip(t *testing.T) {
	c, err := NewShortHeaderCodec(0)
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, c, []byte("hello, world"))
}

func TestShortHeaderRejectsOversizeBody(t *testing.T) {
	c, err := NewShortHeaderCodec(4)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsValid([]byte("toolong")) {
		t.Fatalf("expected oversize body to be invalid")
	}
}

func TestShortHeaderRejectsEmptyBody(t *testing.T) {
	c, _ := NewShortHeaderCodec(0)
	if c.IsValid(nil) {
		t.Fatalf("expected empty body to be invalid")
	}
}

func TestIntHeaderRoundTrip(t *testing.T) {
	c, err := NewIntHeaderCodec(1 << 16)
	if err != nil {
		t.Fatal(err)
	}
	body := bytes.Repeat([]byte{0xAB}, 4096)
	roundTrip(t, c, body)
}

func TestChecksumCodecRoundTripAllKinds(t *testing.T) {
	for _, kind := range []ChecksumKind{ChecksumCRC32, ChecksumAdler32, ChecksumXXHash} {
		base, _ := NewIntHeaderCodec(0)
		c, err := NewChecksumCodec(base, kind)
		if err != nil {
			t.Fatal(err)
		}
		roundTrip(t, c, []byte("checksum me please"))
	}
}

func TestChecksumCodecRejectsCorruptedFrame(t *testing.T) {
	base, _ := NewIntHeaderCodec(0)
	c, err := NewChecksumCodec(base, ChecksumCRC32)
	if err != nil {
		t.Fatal(err)
	}
	body := []byte("integrity matters")
	buf := make([]byte, c.GetEncodedLength(body))
	n, err := c.Put(body, buf)
	if err != nil {
		t.Fatal(err)
	}
	buf[n-1] ^= 0xFF // flip every bit of the checksum footer's last byte

	out := make([]byte, len(body))
	if _, _, err := c.Get(buf[:n], out); err == nil {
		t.Fatalf("expected checksum mismatch to be rejected")
	}
}

func TestCompressionCodecRoundTripDeflate(t *testing.T) {
	base, _ := NewIntHeaderCodec(0)
	c, err := NewCompressionCodec(base, CompressionDeflate)
	if err != nil {
		t.Fatal(err)
	}
	body := bytes.Repeat([]byte("compress-me-"), 100)
	buf := make([]byte, c.FrameLength())
	n, err := c.Put(body, buf)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := c.HasNext(buf[:n])
	if err != nil || !ok {
		t.Fatalf("HasNext: ok=%v err=%v", ok, err)
	}
	out := make([]byte, len(body))
	_, payloadLen, err := c.Get(buf[:n], out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[:payloadLen], body) {
		t.Fatalf("deflate round trip mismatch")
	}
}

func TestCloneProducesIndependentCodec(t *testing.T) {
	base, _ := NewIntHeaderCodec(0)
	c, _ := NewChecksumCodec(base, ChecksumCRC32)
	clone := c.Clone()
	body := []byte("clone test")
	buf := make([]byte, clone.GetEncodedLength(body))
	if _, err := clone.Put(body, buf); err != nil {
		t.Fatalf("clone should be independently usable: %v", err)
	}
}
