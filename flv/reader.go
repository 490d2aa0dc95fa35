package flv

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/audio"
	"github.com/torresjeff/rtmp-ingest/internal/binary24"
	"github.com/torresjeff/rtmp-ingest/video"
)

// maxTagSize is the largest body a 24-bit size field can describe.
const maxTagSize = 0xFFFFFF

// Reader demuxes an FLV file: a header followed by (previous tag size, tag) pairs.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (fr *Reader) ReadHeader() (*Header, error) {
	var b [HeaderSize]byte
	if _, err := io.ReadFull(fr.r, b[:]); err != nil {
		return nil, errors.Wrap(err, "flv: reading header")
	}
	if b[0] != signature[0] || b[1] != signature[1] || b[2] != signature[2] {
		return nil, &InvalidSignatureError{Signature: binary24.BigEndian.Uint24(b[:3])}
	}
	h := &Header{
		Version:  b[3],
		HasAudio: b[4]&flagAudio != 0,
		HasVideo: b[4]&flagVideo != 0,
	}
	offset := binary.BigEndian.Uint32(b[5:9])
	if offset < HeaderSize {
		return nil, &InvalidDataOffsetError{Offset: offset}
	}
	if extra := offset - HeaderSize; extra > 0 {
		h.Extra = make([]byte, extra)
		if _, err := io.ReadFull(fr.r, h.Extra); err != nil {
			return nil, errors.Wrap(err, "flv: reading extra header bytes")
		}
	}
	return h, nil
}

// Next reads the previous tag size field and the tag that follows it.
// It returns io.EOF when the file ends cleanly before a tag.
func (fr *Reader) Next() (*Tag, error) {
	var prev [4]byte
	if _, err := io.ReadFull(fr.r, prev[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "flv: reading previous tag size")
	}
	if _, err := fr.r.Peek(1); err == io.EOF {
		return nil, io.EOF
	}
	return fr.ReadTag()
}

// ReadTag reads a single tag header and body.
func (fr *Reader) ReadTag() (*Tag, error) {
	var h [TagHeaderSize]byte
	if _, err := io.ReadFull(fr.r, h[:]); err != nil {
		return nil, errors.Wrap(err, "flv: reading tag header")
	}
	// Reserved(2) Filter(1) TagType(5)
	if h[0]&0x20 != 0 {
		return nil, ErrUnsupportedTagEncryption
	}
	tag := &Tag{
		Type: TagType(h[0] & 0x1F),
		// The fourth timestamp byte holds the upper 8 bits.
		Timestamp: binary24.BigEndian.Uint24(h[4:7]) | uint32(h[7])<<24,
		StreamID:  binary24.BigEndian.Uint24(h[8:11]),
	}
	size := binary24.BigEndian.Uint24(h[1:4])
	tag.Data = make([]byte, size)
	if _, err := io.ReadFull(fr.r, tag.Data); err != nil {
		return nil, errors.Wrap(err, "flv: reading tag body")
	}
	return tag, nil
}

// File is a fully demuxed FLV file.
type File struct {
	Header *Header
	Tags   []*Tag
}

// ReadFile demuxes every tag of an FLV file.
func ReadFile(r io.Reader) (*File, error) {
	fr := NewReader(r)
	h, err := fr.ReadHeader()
	if err != nil {
		return nil, err
	}
	f := &File{Header: h}
	for {
		tag, err := fr.Next()
		if err == io.EOF {
			return f, nil
		}
		if err != nil {
			return nil, err
		}
		f.Tags = append(f.Tags, tag)
	}
}

// Audio decodes the body of an audio tag.
func (t *Tag) Audio() (*audio.Data, error) {
	if t.Type != TagTypeAudio {
		return nil, errors.Errorf("flv: %s tag is not audio", t.Type)
	}
	return audio.Parse(t.Data)
}

// Video decodes the body of a video tag.
func (t *Tag) Video() (*video.Data, error) {
	if t.Type != TagTypeVideo {
		return nil, errors.Errorf("flv: %s tag is not video", t.Type)
	}
	return video.Parse(t.Data)
}

// Script decodes the body of a script data tag.
func (t *Tag) Script() (*ScriptData, error) {
	if t.Type != TagTypeScriptData {
		return nil, errors.Errorf("flv: %s tag is not script data", t.Type)
	}
	return ParseScriptData(t.Data)
}
