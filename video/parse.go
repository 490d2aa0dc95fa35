package video

import (
	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/av"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
)

const enhancedBit = 0x80

// Parse decodes the body of an RTMP Video message (an FLV video tag without the tag header).
func Parse(payload []byte) (*Data, error) {
	c := bytesutil.NewCursor(payload)
	first, err := c.ReadU8()
	if err != nil {
		return nil, errors.Wrap(err, "video: reading header")
	}

	d := &Data{FrameType: FrameType((first >> 4) & 0x07)}
	if first&enhancedBit != 0 {
		if err := parseEnhanced(c, first, d); err != nil {
			return nil, err
		}
		return d, nil
	}

	// Legacy header: IsExHeader(1) FrameType(3) CodecID(4)
	d.Codec = Codec(first & 0x0F)
	if d.FrameType == CommandFrame {
		cmd, err := c.ReadU8()
		if err != nil {
			return nil, errors.Wrap(err, "video: reading command")
		}
		d.HasCommand = true
		d.Command = Command(cmd)
		return d, nil
	}
	if d.Codec == H264 {
		packetType, err := c.ReadU8()
		if err != nil {
			return nil, errors.Wrap(err, "video: reading avc packet type")
		}
		d.AVCPacketType = AVCPacketType(packetType)
		if d.CompositionTime, err = c.ReadI24(); err != nil {
			return nil, errors.Wrap(err, "video: reading composition time")
		}
	}
	d.Payload = c.Remaining()
	return d, nil
}

func parseEnhanced(c *bytesutil.Cursor, first byte, d *Data) error {
	d.Enhanced = true
	d.PacketType = PacketType(first & 0x0F)

	for d.PacketType == PacketTypeModEx {
		modEx, next, err := av.ReadModEx(c)
		if err != nil {
			return errors.Wrap(err, "video: reading modEx")
		}
		d.ModExs = append(d.ModExs, modEx)
		d.PacketType = PacketType(next)
	}

	if d.FrameType == CommandFrame && d.PacketType != PacketTypeMetadata {
		cmd, err := c.ReadU8()
		if err != nil {
			return errors.Wrap(err, "video: reading command")
		}
		d.HasCommand = true
		d.Command = Command(cmd)
		return nil
	}

	var fourCC av.FourCC
	if d.PacketType == PacketTypeMultitrack {
		b, err := c.ReadU8()
		if err != nil {
			return errors.Wrap(err, "video: reading multitrack type")
		}
		d.Multitrack = true
		d.MultitrackType = av.MultitrackType(b >> 4)
		d.PacketType = PacketType(b & 0x0F)
		if d.PacketType == PacketTypeMultitrack {
			return av.ErrNestedMultitracks
		}
		if d.MultitrackType != av.ManyTracksManyCodecs {
			if fourCC, err = av.ReadFourCC(c); err != nil {
				return errors.Wrap(err, "video: reading fourcc")
			}
		}
	} else {
		var err error
		if fourCC, err = av.ReadFourCC(c); err != nil {
			return errors.Wrap(err, "video: reading fourcc")
		}
	}

	for {
		track := Track{FourCC: fourCC}
		if d.Multitrack {
			if d.MultitrackType == av.ManyTracksManyCodecs {
				f, err := av.ReadFourCC(c)
				if err != nil {
					return errors.Wrap(err, "video: reading track fourcc")
				}
				track.FourCC = f
			}
			id, err := c.ReadU8()
			if err != nil {
				return errors.Wrap(err, "video: reading track id")
			}
			track.ID = id
		}

		body := c
		if d.Multitrack && d.MultitrackType != av.OneTrack {
			size, err := c.ReadU24()
			if err != nil {
				return errors.Wrap(err, "video: reading track size")
			}
			b, err := c.Next(int(size))
			if err != nil {
				return errors.Wrap(err, "video: reading track data")
			}
			body = bytesutil.NewCursor(b)
		}
		if err := parsePacket(body, d.PacketType, &track); err != nil {
			return err
		}
		d.Tracks = append(d.Tracks, track)

		if !d.Multitrack || d.MultitrackType == av.OneTrack || !c.HasRemaining() {
			return nil
		}
	}
}

func parsePacket(c *bytesutil.Cursor, packetType PacketType, track *Track) error {
	switch packetType {
	case PacketTypeSequenceEnd:
	case PacketTypeCodedFrames:
		if track.FourCC == FourCCAVC || track.FourCC == FourCCHEVC {
			cts, err := c.ReadI24()
			if err != nil {
				return errors.Wrap(err, "video: reading composition time")
			}
			track.CompositionTime = cts
		}
		track.Data = c.Remaining()
	case PacketTypeMetadata:
		values, err := amf0.DecodeAll(c.Remaining())
		if err != nil {
			return errors.Wrap(err, "video: decoding metadata")
		}
		track.Metadata = values
	default:
		track.Data = c.Remaining()
	}
	return nil
}
