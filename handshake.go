package rtmp

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/rand"
)

var ErrUnsupportedRTMPVersion = errors.New("The version of RTMP is not supported")
var ErrDigestLengthNotCorrect = errors.New("handshake: digest length is not correct")
var ErrCannotGenerateDigest = errors.New("handshake: cannot generate digest")

const (
	RtmpVersion3 = 3

	// C1, S1, C2 and S2 are all this long.
	handshakePacketSize = 1536
	digestLength        = 32
	// Time and version fields at the start of C1/S1.
	timeVersionLength = 8
	rtmpServerVersion = 0x04050001

	// Digest schema bases. The digest block starts at byte 8 in schema 0 and at byte 772 in schema 1.
	schema0Base = 8
	schema1Base = 772
)

var (
	// Genuine Adobe Flash Player 001 + 32 byte suffix. C1 digests use the first 30 bytes.
	genuineFPKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'P', 'l', 'a', 'y', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
	// Genuine Adobe Flash Media Server 001 + 32 byte suffix. S1 digests use the first 36 bytes,
	// the S2 key is derived with all 68.
	genuineFMSKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'M', 'e', 'd', 'i', 'a', ' ',
		'S', 'e', 'r', 'v', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
)

// HandshakeScheme is the handshake variant negotiated from C1.
type HandshakeScheme uint8

const (
	SchemeSimple HandshakeScheme = iota
	SchemeDigest0
	SchemeDigest1
)

func (s HandshakeScheme) String() string {
	switch s {
	case SchemeDigest0:
		return "complex (schema 0)"
	case SchemeDigest1:
		return "complex (schema 1)"
	default:
		return "simple"
	}
}

func (s HandshakeScheme) base() int {
	if s == SchemeDigest1 {
		return schema1Base
	}
	return schema0Base
}

// ServerHandshaker performs the server side of the handshake:
//
//	|   client   |   Server   |
//	| ------- C0 + C1 ------> |
//	| <---- S0 + S1 +S2 ----- |
//	| --------- C2 ---------> |
//
// C1 is searched for a digest with both schemas. When one matches the complex handshake is
// used, otherwise the simple (echo) one.
type ServerHandshaker struct {
	scheme HandshakeScheme
	now    func() time.Time
}

func NewServerHandshaker() *ServerHandshaker {
	return &ServerHandshaker{now: time.Now}
}

// Scheme returns the scheme chosen by the last Handshake.
func (h *ServerHandshaker) Scheme() HandshakeScheme {
	return h.scheme
}

func (h *ServerHandshaker) Handshake(reader io.Reader, writer WriteFlusher) error {
	c1, err := readC0C1(reader)
	if err != nil {
		return err
	}

	var c1Digest []byte
	h.scheme = SchemeSimple
	if binary.BigEndian.Uint32(c1[4:8]) != 0 {
		c1Digest, h.scheme = findClientDigest(c1)
	}

	s0s1s2 := make([]byte, 1+2*handshakePacketSize)
	s0s1s2[0] = RtmpVersion3
	if h.scheme == SchemeSimple {
		err = generateSimpleS1S2(s0s1s2[1:], c1)
	} else {
		err = h.generateComplexS1S2(s0s1s2[1:], c1, c1Digest)
	}
	if err != nil {
		return err
	}
	if err = send(writer, s0s1s2); err != nil {
		return err
	}

	// C2 echoes S1 or S2 depending on the client; it is read and not validated.
	_, err = readC2(reader)
	return err
}

// If successful returns the C1 handshake data (random data sent by the client), it does not return c0 + c1.
func readC0C1(reader io.Reader) ([]byte, error) {
	c0c1 := make([]byte, 1+handshakePacketSize)
	if _, err := io.ReadFull(reader, c0c1); err != nil {
		return nil, errors.Wrap(err, "handshake: reading c0c1")
	}

	// 0x06, 0x08 and 0x09 request an encrypted connection.
	switch c0c1[0] {
	case 0x06, 0x08, 0x09:
		return nil, ErrUnsupportedRTMPVersion
	}

	return c0c1[1:], nil
}

// Returns the C2 message
func readC2(reader io.Reader) ([]byte, error) {
	c2 := make([]byte, handshakePacketSize)
	if _, err := io.ReadFull(reader, c2); err != nil {
		return nil, errors.Wrap(err, "handshake: reading c2")
	}
	return c2, nil
}

// generateSimpleS1S2 fills S1 with a zero time, a zero version and random data, and S2 with C1.
func generateSimpleS1S2(s1s2 []byte, c1 []byte) error {
	s1 := s1s2[:handshakePacketSize]
	if err := rand.Fill(s1[timeVersionLength:]); err != nil {
		return err
	}
	copy(s1s2[handshakePacketSize:], c1)
	return nil
}

// C1/S1:
//
//	schema-0 = time(4bytes) + version(4bytes) + key(764bytes) + digest(764bytes)
//	schema-1 = time(4bytes) + version(4bytes) + digest(764bytes) + key(764bytes)
//
// S2:
//
//	time(4bytes) + time2(4bytes) + random(1496bytes) + digest(32bytes)
func (h *ServerHandshaker) generateComplexS1S2(s1s2 []byte, c1 []byte, c1Digest []byte) error {
	now := uint32(h.now().UnixNano() / int64(time.Millisecond))

	s1 := s1s2[:handshakePacketSize]
	binary.BigEndian.PutUint32(s1[0:4], now)
	binary.BigEndian.PutUint32(s1[4:8], rtmpServerVersion)
	if err := rand.Fill(s1[timeVersionLength:]); err != nil {
		return err
	}
	s1Digest, err := generateDigest(s1, h.scheme.base(), genuineFMSKey[:36])
	if err != nil {
		return err
	}
	copy(s1[calcDigestPosition(s1, h.scheme.base()):], s1Digest)

	s2 := s1s2[handshakePacketSize:]
	if err := rand.Fill(s2[timeVersionLength : handshakePacketSize-digestLength]); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(s2[0:4], now)
	copy(s2[4:8], c1[0:4])
	key, err := hmacSha256(c1Digest, genuineFMSKey)
	if err != nil {
		return err
	}
	s2Digest, err := hmacSha256(s2[:handshakePacketSize-digestLength], key)
	if err != nil {
		return err
	}
	copy(s2[handshakePacketSize-digestLength:], s2Digest)
	return nil
}

// findClientDigest tries schema 0 then schema 1 and returns the digest of the first that validates.
func findClientDigest(c1 []byte) ([]byte, HandshakeScheme) {
	for _, scheme := range []HandshakeScheme{SchemeDigest0, SchemeDigest1} {
		if pos := findDigest(c1, scheme.base(), genuineFPKey[:30]); pos >= 0 {
			return c1[pos : pos+digestLength], scheme
		}
	}
	return nil, SchemeSimple
}

// generate data digest using sha256
func hmacSha256(data []byte, secret []byte) ([]byte, error) {
	hash := hmac.New(sha256.New, secret)
	if _, err := hash.Write(data); err != nil {
		return nil, errors.Wrap(ErrCannotGenerateDigest, err.Error())
	}
	sum := hash.Sum(nil)
	if len(sum) != digestLength {
		return nil, ErrDigestLengthNotCorrect
	}
	return sum, nil
}

// get digest offset position
func calcDigestPosition(data []byte, base int) int {
	position := int(data[base]) + int(data[base+1]) + int(data[base+2]) + int(data[base+3])
	return (position % 728) + base + 4
}

// compare digest and return position if matched, orelse return -1
func findDigest(data []byte, base int, secret []byte) int {
	digestPos := calcDigestPosition(data, base)
	hash, err := generateDigest(data, base, secret)
	if err != nil {
		return -1
	}
	if hmac.Equal(hash, data[digestPos:digestPos+digestLength]) {
		return digestPos
	}
	return -1
}

// DIGEST(764bytes):
//
//	offset        -> 4bytes
//	random-data-1 -> (offset)bytes
//	digest-data   -> 32bytes
//	random-data-2 -> (764-4-offset-32)bytes
//
// The digest covers the whole packet except the digest itself.
func generateDigest(data []byte, base int, secret []byte) ([]byte, error) {
	digestPos := calcDigestPosition(data, base)
	buf := new(bytes.Buffer)
	buf.Write(data[:digestPos])
	buf.Write(data[digestPos+digestLength:])
	return hmacSha256(buf.Bytes(), secret)
}

func send(writer WriteFlusher, bytes []byte) error {
	if _, err := writer.Write(bytes); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	return nil
}
