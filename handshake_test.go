package rtmp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func runHandshake(t *testing.T, h *ServerHandshaker, c0 byte, c1 []byte) ([]byte, error) {
	t.Helper()
	in := append([]byte{c0}, c1...)
	in = append(in, make([]byte, handshakePacketSize)...) // c2
	var out bytes.Buffer
	writer, _ := NewWriter(bufio.NewWriter(&out))
	err := h.Handshake(bytes.NewReader(in), writer)
	return out.Bytes(), err
}

func TestSimpleHandshake(t *testing.T) {
	c1 := testPayload(handshakePacketSize)
	binary.BigEndian.PutUint32(c1[4:8], 0)

	h := NewServerHandshaker()
	out, err := runHandshake(t, h, RtmpVersion3, c1)
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if h.Scheme() != SchemeSimple {
		t.Errorf("Scheme() = %s, want simple", h.Scheme())
	}
	if len(out) != 1+2*handshakePacketSize {
		t.Fatalf("wrote %d bytes, want %d", len(out), 1+2*handshakePacketSize)
	}
	if out[0] != RtmpVersion3 {
		t.Errorf("S0 = %d, want 3", out[0])
	}
	s1 := out[1 : 1+handshakePacketSize]
	if !bytes.Equal(s1[:timeVersionLength], make([]byte, timeVersionLength)) {
		t.Errorf("S1 time and version = %x, want zeros", s1[:timeVersionLength])
	}
	if s2 := out[1+handshakePacketSize:]; !bytes.Equal(s2, c1) {
		t.Error("S2 does not echo C1")
	}
}

func TestComplexHandshake(t *testing.T) {
	tests := []struct {
		name   string
		scheme HandshakeScheme
	}{
		{"schema 0", SchemeDigest0},
		{"schema 1", SchemeDigest1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := tt.scheme.base()
			c1 := testPayload(handshakePacketSize)
			binary.BigEndian.PutUint32(c1[0:4], 1000)
			binary.BigEndian.PutUint32(c1[4:8], 0x80000702)
			c1Digest, err := generateDigest(c1, base, genuineFPKey[:30])
			if err != nil {
				t.Fatal(err)
			}
			copy(c1[calcDigestPosition(c1, base):], c1Digest)

			h := NewServerHandshaker()
			h.now = func() time.Time { return time.Unix(5, 0) }
			out, err := runHandshake(t, h, RtmpVersion3, c1)
			if err != nil {
				t.Fatalf("Handshake() error = %v", err)
			}
			if h.Scheme() != tt.scheme {
				t.Fatalf("Scheme() = %s, want %s", h.Scheme(), tt.scheme)
			}

			s1 := out[1 : 1+handshakePacketSize]
			if got := binary.BigEndian.Uint32(s1[0:4]); got != 5000 {
				t.Errorf("S1 time = %d, want 5000", got)
			}
			if got := binary.BigEndian.Uint32(s1[4:8]); got != rtmpServerVersion {
				t.Errorf("S1 version = %x, want %x", got, rtmpServerVersion)
			}
			if findDigest(s1, base, genuineFMSKey[:36]) < 0 {
				t.Error("S1 digest does not validate")
			}

			s2 := out[1+handshakePacketSize:]
			if !bytes.Equal(s2[4:8], c1[0:4]) {
				t.Errorf("S2 time2 = %x, want the C1 time %x", s2[4:8], c1[0:4])
			}
			key, _ := hmacSha256(c1Digest, genuineFMSKey)
			want, _ := hmacSha256(s2[:handshakePacketSize-digestLength], key)
			if !bytes.Equal(s2[handshakePacketSize-digestLength:], want) {
				t.Error("S2 digest does not validate")
			}
		})
	}
}

func TestHandshakeNonzeroVersionWithoutDigest(t *testing.T) {
	c1 := make([]byte, handshakePacketSize)
	binary.BigEndian.PutUint32(c1[4:8], 0x80000702)

	h := NewServerHandshaker()
	out, err := runHandshake(t, h, RtmpVersion3, c1)
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if h.Scheme() != SchemeSimple {
		t.Errorf("Scheme() = %s, want simple", h.Scheme())
	}
	if !bytes.Equal(out[1+handshakePacketSize:], c1) {
		t.Error("S2 does not echo C1")
	}
}

func TestHandshakeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"encrypted 0x06", append([]byte{0x06}, make([]byte, 2*handshakePacketSize)...), ErrUnsupportedRTMPVersion},
		{"encrypted 0x08", append([]byte{0x08}, make([]byte, 2*handshakePacketSize)...), ErrUnsupportedRTMPVersion},
		{"truncated c1", []byte{RtmpVersion3, 0, 0, 0}, nil},
		{"missing c2", append([]byte{RtmpVersion3}, make([]byte, handshakePacketSize)...), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer, _ := NewWriter(bufio.NewWriter(&bytes.Buffer{}))
			err := NewServerHandshaker().Handshake(bytes.NewReader(tt.in), writer)
			if err == nil {
				t.Fatal("Handshake() error = nil")
			}
			if tt.want != nil && err != tt.want {
				t.Errorf("Handshake() error = %v, want %v", err, tt.want)
			}
		})
	}
}
