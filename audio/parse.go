package audio

import (
	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/av"
	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
)

// Parse decodes the body of an RTMP Audio message (an FLV audio tag without the tag header).
func Parse(payload []byte) (*Data, error) {
	c := bytesutil.NewCursor(payload)
	first, err := c.ReadU8()
	if err != nil {
		return nil, errors.Wrap(err, "audio: reading header")
	}

	d := &Data{Format: Format(first >> 4)}
	if d.Format == ExHeader {
		if err := parseEnhanced(c, first, d); err != nil {
			return nil, err
		}
		return d, nil
	}

	// Legacy header: SoundFormat(4) SoundRate(2) SoundSize(1) SoundType(1)
	d.SampleRate = SampleRate((first >> 2) & 0x03)
	d.SampleSize = SampleSize((first >> 1) & 0x01)
	d.Channels = Channel(first & 0x01)
	if d.Format == AAC {
		packetType, err := c.ReadU8()
		if err != nil {
			return nil, errors.Wrap(err, "audio: reading aac packet type")
		}
		d.AACPacketType = AACPacketType(packetType)
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
			return errors.Wrap(err, "audio: reading modEx")
		}
		d.ModExs = append(d.ModExs, modEx)
		d.PacketType = PacketType(next)
	}

	var fourCC av.FourCC
	if d.PacketType == PacketTypeMultitrack {
		b, err := c.ReadU8()
		if err != nil {
			return errors.Wrap(err, "audio: reading multitrack type")
		}
		d.Multitrack = true
		d.MultitrackType = av.MultitrackType(b >> 4)
		d.PacketType = PacketType(b & 0x0F)
		if d.PacketType == PacketTypeMultitrack {
			return av.ErrNestedMultitracks
		}
		if d.MultitrackType != av.ManyTracksManyCodecs {
			if fourCC, err = av.ReadFourCC(c); err != nil {
				return errors.Wrap(err, "audio: reading fourcc")
			}
		}
	} else {
		var err error
		if fourCC, err = av.ReadFourCC(c); err != nil {
			return errors.Wrap(err, "audio: reading fourcc")
		}
	}

	for {
		track := Track{FourCC: fourCC}
		if d.Multitrack {
			if d.MultitrackType == av.ManyTracksManyCodecs {
				f, err := av.ReadFourCC(c)
				if err != nil {
					return errors.Wrap(err, "audio: reading track fourcc")
				}
				track.FourCC = f
			}
			id, err := c.ReadU8()
			if err != nil {
				return errors.Wrap(err, "audio: reading track id")
			}
			track.ID = id
		}

		body := c
		if d.Multitrack && d.MultitrackType != av.OneTrack {
			size, err := c.ReadU24()
			if err != nil {
				return errors.Wrap(err, "audio: reading track size")
			}
			b, err := c.Next(int(size))
			if err != nil {
				return errors.Wrap(err, "audio: reading track data")
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
	case PacketTypeMultichannelConfig:
		order, err := c.ReadU8()
		if err != nil {
			return errors.Wrap(err, "audio: reading channel order")
		}
		count, err := c.ReadU8()
		if err != nil {
			return errors.Wrap(err, "audio: reading channel count")
		}
		config := &MultichannelConfig{Order: ChannelOrder(order), ChannelCount: count}
		switch config.Order {
		case ChannelOrderCustom:
			channels, err := c.Next(int(count))
			if err != nil {
				return errors.Wrap(err, "audio: reading channel mapping")
			}
			config.Channels = channels
		case ChannelOrderNative:
			mask, err := c.ReadU32()
			if err != nil {
				return errors.Wrap(err, "audio: reading channel mask")
			}
			config.ChannelMask = mask
		}
		track.MultichannelConfig = config
	case PacketTypeSequenceEnd:
	default:
		track.Data = c.Remaining()
	}
	return nil
}
