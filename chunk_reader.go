package rtmp

import (
	"io"

	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
)

// chunkHeaderState is what a chunk stream remembers from its previous chunk, so that
// type 1, 2 and 3 chunks can omit fields.
type chunkHeaderState struct {
	chunkType ChunkType
	timestamp uint32
	// timestampDelta is the delta of the last type 1/2 header. It is unset after a type 0.
	timestampDelta  uint32
	hasDelta        bool
	messageLength   uint32
	messageType     MessageType
	messageStreamID uint32
	// hasExtendedTimestamp is sticky: type 3 chunks repeat the extended field when the header they extend had it.
	hasExtendedTimestamp bool
}

// partialMessage is a message whose payload spans more chunks than have arrived so far.
type partialMessage struct {
	messageType MessageType
	streamID    uint32
	timestamp   uint32
	length      uint32
	payload     []byte
}

// ChunkReader reassembles RTMP messages from the inbound chunk stream.
// It is not safe for concurrent use.
type ChunkReader struct {
	maxChunkSize uint32
	previous     map[uint32]*chunkHeaderState
	partials     map[uint32]*partialMessage
	partialBytes int
}

func NewChunkReader() *ChunkReader {
	return &ChunkReader{
		maxChunkSize: DefaultChunkSize,
		previous:     make(map[uint32]*chunkHeaderState),
		partials:     make(map[uint32]*partialMessage),
	}
}

func (r *ChunkReader) MaxChunkSize() uint32 {
	return r.maxChunkSize
}

// SetMaxChunkSize changes the size used to split inbound messages. It returns false,
// leaving the size untouched, when n is outside [1, MaxChunkSize].
func (r *ChunkReader) SetMaxChunkSize(n uint32) bool {
	if n < 1 || n > MaxChunkSize {
		return false
	}
	r.maxChunkSize = n
	return true
}

// Abort discards the partially received message on chunkStreamID, if any.
func (r *ChunkReader) Abort(chunkStreamID uint32) {
	if p := r.partials[chunkStreamID]; p != nil {
		r.partialBytes -= len(p.payload)
		delete(r.partials, chunkStreamID)
	}
}

// ReadChunk decodes chunks from c until a message is complete and returns it.
// When c runs out in the middle of a chunk the cursor is moved back to the start of that
// chunk and ReadChunk returns nil, nil; call it again once more bytes are available.
// Chunks decoded before that point are consumed.
func (r *ChunkReader) ReadChunk(c *bytesutil.Cursor) (*Message, error) {
	for c.HasRemaining() {
		start := c.Pos()
		msg, err := r.readOne(c)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			c.Seek(start)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
	return nil, nil
}

// readOne decodes a single chunk. No state is modified until the whole chunk, payload
// included, is available.
func (r *ChunkReader) readOne(c *bytesutil.Cursor) (*Message, error) {
	chunkType, chunkStreamID, err := readBasicHeader(c)
	if err != nil {
		return nil, err
	}

	prev, exists := r.previous[chunkStreamID]
	if !exists {
		if chunkType != ChunkType0 {
			return nil, &ChunkReadError{Kind: MissingPreviousChunkHeader, ChunkStreamID: chunkStreamID}
		}
		if len(r.previous) >= MaxChunkStreamIDs {
			return nil, &ChunkReadError{Kind: TooManyPreviousChunkHeaders, ChunkStreamID: chunkStreamID}
		}
	}

	var next chunkHeaderState
	if exists {
		next = *prev
	}
	next.chunkType = chunkType
	partial := r.partials[chunkStreamID]

	switch chunkType {
	case ChunkType0:
		// timestamp (3) | message length (3) | message type id (1) | message stream id (4)
		ts, err := c.ReadU24()
		if err != nil {
			return nil, err
		}
		if next.messageLength, err = c.ReadU24(); err != nil {
			return nil, err
		}
		typeID, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		next.messageType = MessageType(typeID)
		if next.messageStreamID, err = c.ReadU32LE(); err != nil {
			return nil, err
		}
		next.hasExtendedTimestamp = ts == max24BitTimestamp
		if next.hasExtendedTimestamp {
			if ts, err = c.ReadU32(); err != nil {
				return nil, err
			}
		}
		next.timestamp = ts
		next.timestampDelta = 0
		next.hasDelta = false
	case ChunkType1, ChunkType2:
		// timestamp delta (3) [| message length (3) | message type id (1)]
		delta, err := c.ReadU24()
		if err != nil {
			return nil, err
		}
		if chunkType == ChunkType1 {
			if next.messageLength, err = c.ReadU24(); err != nil {
				return nil, err
			}
			typeID, err := c.ReadU8()
			if err != nil {
				return nil, err
			}
			next.messageType = MessageType(typeID)
		}
		next.hasExtendedTimestamp = delta == max24BitTimestamp
		if next.hasExtendedTimestamp {
			if delta, err = c.ReadU32(); err != nil {
				return nil, err
			}
		}
		next.timestampDelta = delta
		next.hasDelta = true
		next.timestamp = prev.timestamp + delta
	case ChunkType3:
		var ext uint32
		if next.hasExtendedTimestamp {
			if ext, err = c.ReadU32(); err != nil {
				return nil, err
			}
		}
		// A type 3 chunk either continues the message in progress, which keeps its timestamp,
		// or starts a new message. After a type 1/2 header the new message advances by that
		// delta; after a type 0 it repeats the absolute timestamp.
		if partial == nil {
			switch {
			case next.hasDelta && next.hasExtendedTimestamp:
				next.timestamp = prev.timestamp + ext
			case next.hasDelta:
				next.timestamp = prev.timestamp + next.timestampDelta
			case next.hasExtendedTimestamp:
				next.timestamp = ext
			}
		}
	default:
		return nil, &ChunkReadError{Kind: InvalidChunkType, ChunkType: uint8(chunkType)}
	}

	// A new header on a chunk stream with a message in progress abandons that message.
	abandoned := 0
	if partial != nil && chunkType != ChunkType3 {
		abandoned = len(partial.payload)
		partial = nil
	}

	var remaining uint32
	if partial != nil {
		remaining = partial.length - uint32(len(partial.payload))
	} else {
		remaining = next.messageLength
	}
	n := remaining
	if n > r.maxChunkSize {
		n = r.maxChunkSize
	}

	complete := n == remaining
	if !complete {
		buffered := r.partialBytes - abandoned + int(n)
		if buffered > MaxPartialChunkSize {
			return nil, &ChunkReadError{Kind: PartialChunkTooLarge, ChunkStreamID: chunkStreamID, Size: buffered}
		}
		if partial == nil {
			inFlight := len(r.partials)
			if r.partials[chunkStreamID] != nil {
				inFlight--
			}
			if inFlight >= MaxPartialChunks {
				return nil, &ChunkReadError{Kind: TooManyPartialChunks, ChunkStreamID: chunkStreamID}
			}
		}
	}

	payload, err := c.Next(int(n))
	if err != nil {
		return nil, err
	}

	// The chunk is complete: commit.
	r.previous[chunkStreamID] = &next
	if old := r.partials[chunkStreamID]; old != nil && partial == nil {
		r.partialBytes -= len(old.payload)
		delete(r.partials, chunkStreamID)
	}

	if partial == nil {
		if complete {
			return &Message{
				Type:          next.messageType,
				ChunkStreamID: chunkStreamID,
				StreamID:      next.messageStreamID,
				Timestamp:     next.timestamp,
				Payload:       append([]byte(nil), payload...),
			}, nil
		}
		partial = &partialMessage{
			messageType: next.messageType,
			streamID:    next.messageStreamID,
			timestamp:   next.timestamp,
			length:      next.messageLength,
			payload:     make([]byte, 0, initialPartialCapacity(next.messageLength)),
		}
		r.partials[chunkStreamID] = partial
	}

	partial.payload = append(partial.payload, payload...)
	r.partialBytes += len(payload)
	if !complete {
		return nil, nil
	}

	delete(r.partials, chunkStreamID)
	r.partialBytes -= len(partial.payload)
	return &Message{
		Type:          partial.messageType,
		ChunkStreamID: chunkStreamID,
		StreamID:      partial.streamID,
		Timestamp:     partial.timestamp,
		Payload:       partial.payload,
	}, nil
}

func readBasicHeader(c *bytesutil.Cursor) (ChunkType, uint32, error) {
	b, err := c.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	chunkType := ChunkType(b >> 6)
	chunkStreamID := uint32(b & 0x3F)
	switch chunkStreamID {
	case 0:
		b1, err := c.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		chunkStreamID = uint32(b1) + 64
	case 1:
		b1, err := c.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		b2, err := c.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		chunkStreamID = uint32(b1) + uint32(b2)*256 + 64
	}
	return chunkType, chunkStreamID, nil
}

// initialPartialCapacity caps the up-front allocation; the declared length is peer controlled.
func initialPartialCapacity(length uint32) int {
	const max = 64 * 1024
	if length > max {
		return max
	}
	return int(length)
}
