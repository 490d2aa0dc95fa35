package amf0

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrStringParse = errors.New("amf0: string is not valid utf-8")
	ErrTooLong     = errors.New("amf0: value is too long to encode")
)

// UnknownMarkerError is returned when the marker byte is not assigned by AMF0.
type UnknownMarkerError struct {
	Marker byte
}

func (e *UnknownMarkerError) Error() string {
	return fmt.Sprintf("amf0: unknown marker 0x%02x", e.Marker)
}

// UnsupportedMarkerError is returned for markers that exist in AMF0 but that this decoder refuses to read.
type UnsupportedMarkerError struct {
	Marker Marker
}

func (e *UnsupportedMarkerError) Error() string {
	return fmt.Sprintf("amf0: marker %s cannot be decoded", e.Marker)
}

type UnexpectedTypeError struct {
	Expected Marker
	Got      Marker
}

func (e *UnexpectedTypeError) Error() string {
	return fmt.Sprintf("amf0: unexpected type, expected %s but got %s", e.Expected, e.Got)
}

// UnsupportedTypeError is returned by the encoder for Go values that have no AMF0 representation.
type UnsupportedTypeError struct {
	Value interface{}
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("amf0: cannot encode type %T", e.Value)
}
