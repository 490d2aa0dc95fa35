package flv

import (
	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/av"
)

const (
	SetDataFrame = "@setDataFrame"
	OnMetaData   = "onMetaData"
	OnXMPData    = "onXMPData"
)

// CodecID is the audiocodecid/videocodecid of onMetaData. Values above 255 are FourCCs.
type CodecID struct {
	Enhanced bool
	Legacy   uint8
	FourCC   av.FourCC
}

// Metadata is the typed form of an onMetaData object. Keys that are not fields end up in Other.
type Metadata struct {
	AudioCodecID        *CodecID
	AudioDataRate       float64
	AudioDelay          float64
	AudioSampleRate     float64
	AudioSampleSize     float64
	CanSeekToEnd        bool
	CreationDate        string
	Duration            float64
	FileSize            float64
	FrameRate           float64
	Height              float64
	Stereo              bool
	VideoCodecID        *CodecID
	VideoDataRate       float64
	Width               float64
	AudioTrackIDInfoMap amf0.Object
	VideoTrackIDInfoMap amf0.Object
	Other               amf0.Object
}

type XMPData struct {
	LiveXML string
	Other   amf0.Object
}

// ScriptData is a decoded script tag or RTMP data message.
// Exactly one of Metadata, XMP or Values is set depending on Name.
type ScriptData struct {
	Name     string
	Metadata *Metadata
	XMP      *XMPData
	Values   []interface{}
}

// ParseScriptData decodes an AMF0 script body: a name followed by its values.
// A leading "@setDataFrame", as sent by encoders over RTMP, is skipped.
func ParseScriptData(payload []byte) (*ScriptData, error) {
	values, err := amf0.DecodeAll(payload)
	if err != nil {
		return nil, errors.Wrap(err, "flv: decoding script data")
	}
	if len(values) > 0 && values[0] == SetDataFrame {
		values = values[1:]
	}
	if len(values) == 0 {
		return nil, errors.New("flv: empty script data")
	}
	name, ok := values[0].(string)
	if !ok {
		return nil, errors.Errorf("flv: script data name is %T, not a string", values[0])
	}

	sd := &ScriptData{Name: name}
	values = values[1:]
	var obj amf0.Object
	if len(values) > 0 {
		obj, _ = amf0.AsObject(values[0])
	}
	switch {
	case name == OnMetaData && obj != nil:
		sd.Metadata = parseMetadata(obj)
	case name == OnXMPData && obj != nil:
		sd.XMP = &XMPData{}
		for _, p := range obj {
			if s, ok := p.Value.(string); ok && p.Key == "liveXML" {
				sd.XMP.LiveXML = s
				continue
			}
			sd.XMP.Other = append(sd.XMP.Other, p)
		}
	default:
		sd.Values = values
	}
	return sd, nil
}

func parseMetadata(obj amf0.Object) *Metadata {
	m := &Metadata{}
	for _, p := range obj {
		f, isNumber := p.Value.(float64)
		known := true
		switch p.Key {
		case "audiocodecid":
			m.AudioCodecID = parseCodecID(p.Value)
			known = m.AudioCodecID != nil
		case "videocodecid":
			m.VideoCodecID = parseCodecID(p.Value)
			known = m.VideoCodecID != nil
		case "audiodatarate":
			m.AudioDataRate, known = f, isNumber
		case "audiodelay":
			m.AudioDelay, known = f, isNumber
		case "audiosamplerate":
			m.AudioSampleRate, known = f, isNumber
		case "audiosamplesize":
			m.AudioSampleSize, known = f, isNumber
		case "duration":
			m.Duration, known = f, isNumber
		case "filesize":
			m.FileSize, known = f, isNumber
		case "framerate":
			m.FrameRate, known = f, isNumber
		case "height":
			m.Height, known = f, isNumber
		case "width":
			m.Width, known = f, isNumber
		case "videodatarate":
			m.VideoDataRate, known = f, isNumber
		case "canSeekToEnd":
			m.CanSeekToEnd, known = p.Value.(bool)
		case "stereo":
			m.Stereo, known = p.Value.(bool)
		case "creationdate":
			m.CreationDate, known = p.Value.(string)
		case "audioTrackIdInfoMap":
			m.AudioTrackIDInfoMap, known = amf0.AsObject(p.Value)
		case "videoTrackIdInfoMap":
			m.VideoTrackIDInfoMap, known = amf0.AsObject(p.Value)
		default:
			known = false
		}
		if !known {
			m.Other = append(m.Other, p)
		}
	}
	return m
}

// parseCodecID accepts the numeric form and the string FourCC form some encoders send.
func parseCodecID(v interface{}) *CodecID {
	switch id := v.(type) {
	case float64:
		if id < 0 || id > 0xFFFFFFFF {
			return nil
		}
		n := uint32(id)
		if n > 0xFF {
			return &CodecID{Enhanced: true, FourCC: av.FourCCFromUint32(n)}
		}
		return &CodecID{Legacy: uint8(n)}
	case string:
		if len(id) != 4 {
			return nil
		}
		var f av.FourCC
		copy(f[:], id)
		return &CodecID{Enhanced: true, FourCC: f}
	default:
		return nil
	}
}
