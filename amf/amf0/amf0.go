package amf0

import "fmt"

// Marker is the type byte that precedes every AMF0 value.
type Marker byte

const (
	TypeNumber      Marker = 0x00
	TypeBoolean     Marker = 0x01
	TypeString      Marker = 0x02
	TypeObject      Marker = 0x03
	TypeMovieClip   Marker = 0x04 // reserved, not supported
	TypeNull        Marker = 0x05
	TypeUndefined   Marker = 0x06
	TypeReference   Marker = 0x07 // not supported
	TypeECMAArray   Marker = 0x08
	TypeObjectEnd   Marker = 0x09
	TypeStrictArray Marker = 0x0A
	TypeDate        Marker = 0x0B
	TypeLongString  Marker = 0x0C
	TypeUnsupported Marker = 0x0D
	TypeRecordSet   Marker = 0x0E // reserved, not supported
	TypeXMLDocument Marker = 0x0F
	TypeTypedObject Marker = 0x10
	TypeAVMPlus     Marker = 0x11 // switch to AMF3, not supported
)

var markerNames = map[Marker]string{
	TypeNumber:      "Number",
	TypeBoolean:     "Boolean",
	TypeString:      "String",
	TypeObject:      "Object",
	TypeMovieClip:   "MovieClip",
	TypeNull:        "Null",
	TypeUndefined:   "Undefined",
	TypeReference:   "Reference",
	TypeECMAArray:   "ECMAArray",
	TypeObjectEnd:   "ObjectEnd",
	TypeStrictArray: "StrictArray",
	TypeDate:        "Date",
	TypeLongString:  "LongString",
	TypeUnsupported: "Unsupported",
	TypeRecordSet:   "RecordSet",
	TypeXMLDocument: "XMLDocument",
	TypeTypedObject: "TypedObject",
	TypeAVMPlus:     "AVMPlus",
}

func (m Marker) String() string {
	if name, ok := markerNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Marker(0x%02x)", byte(m))
}

func (m Marker) valid() bool {
	_, ok := markerNames[m]
	return ok
}

// Decoded values use the following Go types:
//
//	Number      float64
//	Boolean     bool
//	String      string (also LongString)
//	Object      Object
//	Null        nil
//	Undefined   Undefined
//	ECMAArray   ECMAArray
//	StrictArray StrictArray
//	Date        Date
//	XMLDocument XMLDocument
//	TypedObject TypedObject

// Property is a single key/value pair of an Object or ECMAArray.
type Property struct {
	Key   string
	Value interface{}
}

// Object is an anonymous AMF0 object. Properties keep their wire order.
type Object []Property

// ECMAArray is an associative array. Like Object, properties keep their wire order.
type ECMAArray []Property

type StrictArray []interface{}

type Undefined struct{}

type XMLDocument string

// Date holds milliseconds since the Unix epoch. TimeZone is written as encoded but ignored by readers.
type Date struct {
	Milliseconds float64
	TimeZone     int16
}

type TypedObject struct {
	ClassName string
	Object    Object
}

// Get returns the value stored under key and whether it exists.
func (o Object) Get(key string) (interface{}, bool) {
	return properties(o).get(key)
}

// String returns the value stored under key if it is a string.
func (o Object) String(key string) (string, bool) {
	v, ok := o.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Number returns the value stored under key if it is a number.
func (o Object) Number(key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Set replaces the value stored under key, or appends it when missing.
func (o *Object) Set(key string, value interface{}) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Property{Key: key, Value: value})
}

func (a ECMAArray) Get(key string) (interface{}, bool) {
	return properties(a).get(key)
}

// AsObject returns the properties of a value that is either an Object or an ECMAArray.
// Encoders send metadata as either one, so readers usually accept both.
func AsObject(v interface{}) (Object, bool) {
	switch o := v.(type) {
	case Object:
		return o, true
	case ECMAArray:
		return Object(o), true
	case TypedObject:
		return o.Object, true
	default:
		return nil, false
	}
}

type properties []Property

func (p properties) get(key string) (interface{}, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return nil, false
}
