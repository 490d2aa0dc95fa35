package flv

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/internal/binary24"
)

// Writer muxes tags into an FLV file.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the 9 byte file header and the first (zero) previous tag size.
func (fw *Writer) WriteHeader(h Header) error {
	b := make([]byte, HeaderSize+len(h.Extra)+4)
	copy(b, signature[:])
	b[3] = h.Version
	if h.HasAudio {
		b[4] |= flagAudio
	}
	if h.HasVideo {
		b[4] |= flagVideo
	}
	binary.BigEndian.PutUint32(b[5:9], uint32(HeaderSize+len(h.Extra)))
	copy(b[HeaderSize:], h.Extra)
	_, err := fw.w.Write(b)
	return errors.Wrap(err, "flv: writing header")
}

// WriteTag writes the tag header, the body and the previous tag size that follows it.
func (fw *Writer) WriteTag(tag *Tag) error {
	if len(tag.Data) > maxTagSize {
		return errors.Errorf("flv: tag body of %d bytes is too large", len(tag.Data))
	}
	var h [TagHeaderSize]byte
	h[0] = byte(tag.Type) & 0x1F
	binary24.BigEndian.PutUint24(h[1:4], uint32(len(tag.Data)))
	binary24.BigEndian.PutUint24(h[4:7], tag.Timestamp&0xFFFFFF)
	h[7] = byte(tag.Timestamp >> 24)
	binary24.BigEndian.PutUint24(h[8:11], tag.StreamID)
	if _, err := fw.w.Write(h[:]); err != nil {
		return errors.Wrap(err, "flv: writing tag header")
	}
	if _, err := fw.w.Write(tag.Data); err != nil {
		return errors.Wrap(err, "flv: writing tag body")
	}
	var prev [4]byte
	binary.BigEndian.PutUint32(prev[:], uint32(TagHeaderSize+len(tag.Data)))
	_, err := fw.w.Write(prev[:])
	return errors.Wrap(err, "flv: writing previous tag size")
}
