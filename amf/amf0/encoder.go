package amf0

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sort"
	"time"
)

const maxShortStringLength = math.MaxUint16

// Encoder writes AMF0 values to an io.Writer.
type Encoder struct {
	w       io.Writer
	scratch [9]byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode returns the AMF0 representation of v.
// Integers of any width are encoded as Numbers, map[string]interface{} as an Object with sorted keys,
// []interface{} as a StrictArray and time.Time as a Date.
func Encode(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeAll concatenates the AMF0 representation of every value, as used in command message bodies.
func EncodeAll(values ...interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	e := NewEncoder(buf)
	for _, v := range values {
		if err := e.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (e *Encoder) Encode(v interface{}) error {
	switch val := v.(type) {
	case nil:
		return e.writeMarker(TypeNull)
	case Undefined:
		return e.writeMarker(TypeUndefined)
	case float64:
		return e.encodeNumber(val)
	case float32:
		return e.encodeNumber(float64(val))
	case int:
		return e.encodeNumber(float64(val))
	case int8:
		return e.encodeNumber(float64(val))
	case int16:
		return e.encodeNumber(float64(val))
	case int32:
		return e.encodeNumber(float64(val))
	case int64:
		return e.encodeNumber(float64(val))
	case uint:
		return e.encodeNumber(float64(val))
	case uint8:
		return e.encodeNumber(float64(val))
	case uint16:
		return e.encodeNumber(float64(val))
	case uint32:
		return e.encodeNumber(float64(val))
	case uint64:
		return e.encodeNumber(float64(val))
	case bool:
		if err := e.writeMarker(TypeBoolean); err != nil {
			return err
		}
		var b byte
		if val {
			b = 1
		}
		return e.write([]byte{b})
	case string:
		return e.encodeString(val)
	case XMLDocument:
		if err := e.writeMarker(TypeXMLDocument); err != nil {
			return err
		}
		return e.writeLongString(string(val))
	case Object:
		if err := e.writeMarker(TypeObject); err != nil {
			return err
		}
		return e.writeProperties(val)
	case map[string]interface{}:
		if err := e.writeMarker(TypeObject); err != nil {
			return err
		}
		return e.writeProperties(sortedProperties(val))
	case ECMAArray:
		if err := e.writeMarker(TypeECMAArray); err != nil {
			return err
		}
		if uint64(len(val)) > math.MaxUint32 {
			return ErrTooLong
		}
		if err := e.writeUint32(uint32(len(val))); err != nil {
			return err
		}
		return e.writeProperties(val)
	case StrictArray:
		return e.encodeStrictArray(val)
	case []interface{}:
		return e.encodeStrictArray(val)
	case TypedObject:
		if err := e.writeMarker(TypeTypedObject); err != nil {
			return err
		}
		if err := e.writeShortString(val.ClassName); err != nil {
			return err
		}
		return e.writeProperties(val.Object)
	case Date:
		return e.encodeDate(val)
	case time.Time:
		return e.encodeDate(Date{Milliseconds: float64(val.UnixNano() / int64(time.Millisecond))})
	default:
		return &UnsupportedTypeError{Value: v}
	}
}

func (e *Encoder) encodeNumber(f float64) error {
	e.scratch[0] = byte(TypeNumber)
	binary.BigEndian.PutUint64(e.scratch[1:], math.Float64bits(f))
	return e.write(e.scratch[:9])
}

// encodeString switches to the LongString marker when s does not fit a 16-bit length.
func (e *Encoder) encodeString(s string) error {
	if len(s) > maxShortStringLength {
		if err := e.writeMarker(TypeLongString); err != nil {
			return err
		}
		return e.writeLongString(s)
	}
	if err := e.writeMarker(TypeString); err != nil {
		return err
	}
	return e.writeShortString(s)
}

func (e *Encoder) encodeStrictArray(values []interface{}) error {
	if uint64(len(values)) > math.MaxUint32 {
		return ErrTooLong
	}
	if err := e.writeMarker(TypeStrictArray); err != nil {
		return err
	}
	if err := e.writeUint32(uint32(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeDate(d Date) error {
	var b [11]byte
	b[0] = byte(TypeDate)
	binary.BigEndian.PutUint64(b[1:9], math.Float64bits(d.Milliseconds))
	binary.BigEndian.PutUint16(b[9:], uint16(d.TimeZone))
	return e.write(b[:])
}

func (e *Encoder) writeProperties(props []Property) error {
	for _, prop := range props {
		// Keys never carry a marker and are always short strings.
		if err := e.writeShortString(prop.Key); err != nil {
			return err
		}
		if err := e.Encode(prop.Value); err != nil {
			return err
		}
	}
	return e.write([]byte{0x00, 0x00, byte(TypeObjectEnd)})
}

func (e *Encoder) writeShortString(s string) error {
	if len(s) > maxShortStringLength {
		return ErrTooLong
	}
	if err := e.writeUint16(uint16(len(s))); err != nil {
		return err
	}
	return e.write([]byte(s))
}

func (e *Encoder) writeLongString(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return ErrTooLong
	}
	if err := e.writeUint32(uint32(len(s))); err != nil {
		return err
	}
	return e.write([]byte(s))
}

func (e *Encoder) writeMarker(m Marker) error {
	return e.write([]byte{byte(m)})
}

func (e *Encoder) writeUint16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return e.write(b[:])
}

func (e *Encoder) writeUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return e.write(b[:])
}

func (e *Encoder) write(b []byte) error {
	_, err := e.w.Write(b)
	return err
}

func sortedProperties(m map[string]interface{}) []Property {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	props := make([]Property, 0, len(keys))
	for _, k := range keys {
		props = append(props, Property{Key: k, Value: m[k]})
	}
	return props
}
