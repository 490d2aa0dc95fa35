package amf0

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// maxDepth bounds the nesting of objects and arrays so a hostile payload cannot exhaust the stack.
const maxDepth = 64

var ErrMaxDepth = errors.New("amf0: values are nested too deeply")

// Decoder reads AMF0 values from a byte slice. It never reads past the end of the slice.
type Decoder struct {
	buf   []byte
	pos   int
	depth int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Decode returns the first AMF0 value in b.
func Decode(b []byte) (interface{}, error) {
	return NewDecoder(b).Decode()
}

// DecodeAll decodes every value in b.
func DecodeAll(b []byte) ([]interface{}, error) {
	return NewDecoder(b).DecodeAll()
}

// HasRemaining reports whether there are bytes left to decode.
func (d *Decoder) HasRemaining() bool {
	return d.pos < len(d.buf)
}

// Remaining returns the bytes that have not been decoded yet.
func (d *Decoder) Remaining() []byte {
	return d.buf[d.pos:]
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.pos
}

// Decode reads one marker and its body.
func (d *Decoder) Decode() (interface{}, error) {
	marker, err := d.readMarker()
	if err != nil {
		return nil, err
	}
	return d.decodeBody(marker)
}

// DecodeAll reads values until the input is exhausted.
func (d *Decoder) DecodeAll() ([]interface{}, error) {
	values := make([]interface{}, 0, 4)
	for d.HasRemaining() {
		v, err := d.Decode()
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}

// DecodeWithType reads one value and fails with *UnexpectedTypeError when its marker is not expected.
// A LongString satisfies an expected String and vice versa.
func (d *Decoder) DecodeWithType(expected Marker) (interface{}, error) {
	marker, err := d.peekMarker()
	if err != nil {
		return nil, err
	}
	if !compatible(expected, marker) {
		return nil, &UnexpectedTypeError{Expected: expected, Got: marker}
	}
	return d.Decode()
}

func (d *Decoder) DecodeString() (string, error) {
	v, err := d.DecodeWithType(TypeString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *Decoder) DecodeNumber() (float64, error) {
	v, err := d.DecodeWithType(TypeNumber)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (d *Decoder) DecodeBoolean() (bool, error) {
	v, err := d.DecodeWithType(TypeBoolean)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// DecodeObject reads an Object, ECMAArray or TypedObject and returns its properties.
func (d *Decoder) DecodeObject() (Object, error) {
	marker, err := d.peekMarker()
	if err != nil {
		return nil, err
	}
	if marker != TypeObject && marker != TypeECMAArray && marker != TypeTypedObject {
		return nil, &UnexpectedTypeError{Expected: TypeObject, Got: marker}
	}
	v, err := d.Decode()
	if err != nil {
		return nil, err
	}
	o, _ := AsObject(v)
	return o, nil
}

// DecodeOptionalObject reads either Null/Undefined (returning a nil Object) or an object.
func (d *Decoder) DecodeOptionalObject() (Object, error) {
	marker, err := d.peekMarker()
	if err != nil {
		return nil, err
	}
	if marker == TypeNull || marker == TypeUndefined {
		d.pos++
		return nil, nil
	}
	return d.DecodeObject()
}

// DecodeNull reads a Null or Undefined value.
func (d *Decoder) DecodeNull() error {
	marker, err := d.peekMarker()
	if err != nil {
		return err
	}
	if marker != TypeNull && marker != TypeUndefined {
		return &UnexpectedTypeError{Expected: TypeNull, Got: marker}
	}
	d.pos++
	return nil
}

func compatible(expected, got Marker) bool {
	if expected == got {
		return true
	}
	isString := func(m Marker) bool { return m == TypeString || m == TypeLongString }
	return isString(expected) && isString(got)
}

func (d *Decoder) decodeBody(marker Marker) (interface{}, error) {
	switch marker {
	case TypeNumber:
		return d.readNumber()
	case TypeBoolean:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case TypeString:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return d.readString(int(n))
	case TypeLongString:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.readString(int(n))
	case TypeXMLDocument:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		s, err := d.readString(int(n))
		if err != nil {
			return nil, err
		}
		return XMLDocument(s), nil
	case TypeObject:
		props, err := d.readProperties()
		if err != nil {
			return nil, err
		}
		return Object(props), nil
	case TypeTypedObject:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		className, err := d.readString(int(n))
		if err != nil {
			return nil, err
		}
		props, err := d.readProperties()
		if err != nil {
			return nil, err
		}
		return TypedObject{ClassName: className, Object: Object(props)}, nil
	case TypeECMAArray:
		// The associative count is only a hint, the array ends with the object end sentinel like an Object does.
		if _, err := d.readUint32(); err != nil {
			return nil, err
		}
		props, err := d.readProperties()
		if err != nil {
			return nil, err
		}
		return ECMAArray(props), nil
	case TypeStrictArray:
		return d.readStrictArray()
	case TypeNull:
		return nil, nil
	case TypeUndefined:
		return Undefined{}, nil
	case TypeDate:
		ms, err := d.readNumber()
		if err != nil {
			return nil, err
		}
		tz, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return Date{Milliseconds: ms, TimeZone: int16(tz)}, nil
	default:
		return nil, &UnsupportedMarkerError{Marker: marker}
	}
}

func (d *Decoder) readProperties() ([]Property, error) {
	if d.depth >= maxDepth {
		return nil, ErrMaxDepth
	}
	d.depth++
	defer func() { d.depth-- }()

	props := make([]Property, 0, 8)
	for {
		keyLength, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		if keyLength == 0 {
			next, err := d.peekByte()
			if err != nil {
				return nil, err
			}
			if Marker(next) == TypeObjectEnd {
				d.pos++
				return props, nil
			}
		}
		key, err := d.readString(int(keyLength))
		if err != nil {
			return nil, err
		}
		value, err := d.Decode()
		if err != nil {
			return nil, err
		}
		props = append(props, Property{Key: key, Value: value})
	}
}

func (d *Decoder) readStrictArray() (StrictArray, error) {
	count, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	// Every value takes at least its marker byte.
	if uint64(count) > uint64(len(d.buf)-d.pos) {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "amf0: strict array of %d values", count)
	}
	if d.depth >= maxDepth {
		return nil, ErrMaxDepth
	}
	d.depth++
	defer func() { d.depth-- }()

	values := make(StrictArray, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (d *Decoder) readMarker() (Marker, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	if !Marker(b).valid() {
		return 0, &UnknownMarkerError{Marker: b}
	}
	return Marker(b), nil
}

func (d *Decoder) peekMarker() (Marker, error) {
	b, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	if !Marker(b).valid() {
		return 0, &UnknownMarkerError{Marker: b}
	}
	return Marker(b), nil
}

func (d *Decoder) peekByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	return d.buf[d.pos], nil
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	d.pos++
	return b, nil
}

func (d *Decoder) next(n int) ([]byte, error) {
	if n < 0 || len(d.buf)-d.pos < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	b, err := d.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	b, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) readNumber() (float64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *Decoder) readString(n int) (string, error) {
	b, err := d.next(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrStringParse
	}
	return string(b), nil
}
