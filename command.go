package rtmp

import (
	"github.com/pkg/errors"
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
)

// Command is an AMF0 command message: a name, a transaction id and the values that follow.
// Type holds one of the concrete command types below.
type Command struct {
	TransactionID float64
	Type          CommandType
}

// CommandType is implemented by every concrete command.
type CommandType interface {
	CommandName() string
	// arguments returns the values that follow the transaction id on the wire.
	arguments() []interface{}
}

func (c *Command) Name() string {
	if c.Type == nil {
		return ""
	}
	return c.Type.CommandName()
}

func (c *Command) messageType() MessageType { return CommandMessageAMF0 }

func (c *Command) MarshalRTMPMessage() ([]byte, error) {
	if c.Type == nil {
		return nil, errors.New("rtmp: command has no type")
	}
	values := append([]interface{}{c.Type.CommandName(), c.TransactionID}, c.Type.arguments()...)
	b, err := amf0.EncodeAll(values...)
	if err != nil {
		return nil, &CommandError{Command: c.Type.CommandName(), Err: err}
	}
	return b, nil
}

func (c *Command) UnmarshalRTMPMessage(payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	*c = *cmd
	return nil
}

// ParseCommand decodes an AMF0 command payload. Decode failures are returned as *CommandError.
func ParseCommand(payload []byte) (*Command, error) {
	d := amf0.NewDecoder(payload)
	name, err := d.DecodeString()
	if err != nil {
		return nil, &CommandError{Err: errors.Wrap(err, "reading command name")}
	}
	txn, err := d.DecodeNumber()
	if err != nil {
		return nil, &CommandError{Command: name, Err: errors.Wrap(err, "reading transaction id")}
	}
	t, err := readCommandType(name, d)
	if err != nil {
		return nil, &CommandError{Command: name, Err: err}
	}
	return &Command{TransactionID: txn, Type: t}, nil
}

func readCommandType(name string, d *amf0.Decoder) (CommandType, error) {
	switch name {
	case "connect":
		obj, err := d.DecodeObject()
		if err != nil {
			return nil, err
		}
		args, err := d.DecodeAll()
		if err != nil {
			return nil, err
		}
		return newConnect(obj, args)
	case "call":
		obj, err := d.Decode()
		if err != nil {
			return nil, err
		}
		args, err := d.DecodeAll()
		if err != nil {
			return nil, err
		}
		return &Call{Object: obj, Args: args}, nil
	case "close":
		return &Close{}, nil
	case "createStream":
		if d.HasRemaining() {
			if _, err := d.DecodeOptionalObject(); err != nil {
				return nil, err
			}
		}
		return &CreateStream{}, nil
	case "_result", "_error":
		obj, args, err := readObjectAndArgs(d)
		if err != nil {
			return nil, err
		}
		return &Result{Name: name, Object: obj, Args: args}, nil
	case "onStatus", onFCPublish, onFCUnpublish:
		if err := d.DecodeNull(); err != nil {
			return nil, err
		}
		info, err := d.DecodeObject()
		if err != nil {
			return nil, err
		}
		return newOnStatus(name, info), nil
	}

	if _, isStream := netStreamCommands[name]; !isStream {
		values, err := d.DecodeAll()
		if err != nil {
			return nil, err
		}
		return &Unknown{Name: name, Values: values}, nil
	}

	// NetStream commands start with a null command object.
	if err := d.DecodeNull(); err != nil {
		return nil, err
	}

	switch name {
	case "publish":
		streamName, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		p := &Publish{Name: streamName, Type: PublishLive}
		if d.HasRemaining() {
			v, err := d.Decode()
			if err != nil {
				return nil, err
			}
			if s, ok := v.(string); ok {
				p.Type = parsePublishType(s)
				p.RawType = s
			}
		}
		return p, nil
	case "deleteStream":
		id, err := d.DecodeNumber()
		if err != nil {
			return nil, err
		}
		return &DeleteStream{StreamID: id}, nil
	case "closeStream":
		return &CloseStream{}, nil
	case "receiveAudio":
		b, err := d.DecodeBoolean()
		if err != nil {
			return nil, err
		}
		return &ReceiveAudio{Enabled: b}, nil
	case "receiveVideo":
		b, err := d.DecodeBoolean()
		if err != nil {
			return nil, err
		}
		return &ReceiveVideo{Enabled: b}, nil
	case "play":
		values, err := d.DecodeAll()
		if err != nil {
			return nil, err
		}
		return &Play{Values: values}, nil
	case "play2":
		params, err := d.DecodeObject()
		if err != nil {
			return nil, err
		}
		return &Play2{Parameters: params}, nil
	case "seek":
		ms, err := d.DecodeNumber()
		if err != nil {
			return nil, err
		}
		return &Seek{Milliseconds: ms}, nil
	case "pause":
		paused, err := d.DecodeBoolean()
		if err != nil {
			return nil, err
		}
		ms, err := d.DecodeNumber()
		if err != nil {
			return nil, err
		}
		return &Pause{Pause: paused, Milliseconds: ms}, nil
	case "FCPublish", "FCUnpublish", "releaseStream":
		streamName, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		switch name {
		case "FCPublish":
			return &FCPublish{Name: streamName}, nil
		case "FCUnpublish":
			return &FCUnpublish{Name: streamName}, nil
		default:
			return &ReleaseStream{Name: streamName}, nil
		}
	default:
		return nil, errors.Errorf("unhandled stream command %q", name)
	}
}

var netStreamCommands = map[string]struct{}{
	"publish":       {},
	"deleteStream":  {},
	"closeStream":   {},
	"receiveAudio":  {},
	"receiveVideo":  {},
	"play":          {},
	"play2":         {},
	"seek":          {},
	"pause":         {},
	"FCPublish":     {},
	"FCUnpublish":   {},
	"releaseStream": {},
}

// isKnownCommand reports whether name is a command this package decodes into a concrete type.
func isKnownCommand(name string) bool {
	switch name {
	case "connect", "call", "close", "createStream", "_result", "_error", "onStatus", onFCPublish, onFCUnpublish:
		return true
	}
	_, ok := netStreamCommands[name]
	return ok
}

func readObjectAndArgs(d *amf0.Decoder) (interface{}, []interface{}, error) {
	if !d.HasRemaining() {
		return nil, nil, nil
	}
	obj, err := d.Decode()
	if err != nil {
		return nil, nil, err
	}
	args, err := d.DecodeAll()
	if err != nil {
		return nil, nil, err
	}
	return obj, args, nil
}

// NetConnection commands.

// Connect is the first command a client sends. App is required; the rest of the command
// object is kept in Object.
type Connect struct {
	App            string
	TcURL          string
	FlashVer       string
	SwfURL         string
	PageURL        string
	ObjectEncoding float64
	CapsEx         CapsEx
	Object         amf0.Object
	Args           []interface{}
}

func newConnect(obj amf0.Object, args []interface{}) (*Connect, error) {
	app, ok := obj.String("app")
	if !ok {
		return nil, errors.New("connect command object has no app")
	}
	c := &Connect{App: app, Object: obj, Args: args}
	c.TcURL, _ = obj.String("tcUrl")
	c.FlashVer, _ = obj.String("flashVer")
	c.SwfURL, _ = obj.String("swfUrl")
	c.PageURL, _ = obj.String("pageUrl")
	c.ObjectEncoding, _ = obj.Number("objectEncoding")
	if caps, ok := obj.Number("capsEx"); ok && caps >= 0 && caps <= 0xFFFFFFFF {
		c.CapsEx = CapsEx(uint32(caps))
	}
	return c, nil
}

func (c *Connect) CommandName() string { return "connect" }

func (c *Connect) arguments() []interface{} {
	obj := c.Object
	if obj == nil {
		obj = amf0.Object{{Key: "app", Value: c.App}}
		if c.TcURL != "" {
			obj = append(obj, amf0.Property{Key: "tcUrl", Value: c.TcURL})
		}
		if c.CapsEx != 0 {
			obj = append(obj, amf0.Property{Key: "capsEx", Value: float64(c.CapsEx)})
		}
	}
	return append([]interface{}{obj}, c.Args...)
}

// ConnectResult is the _result answering connect.
type ConnectResult struct {
	Properties  amf0.Object
	Information amf0.Object
}

func (c *ConnectResult) CommandName() string { return "_result" }

func (c *ConnectResult) arguments() []interface{} {
	return []interface{}{c.Properties, c.Information}
}

type Call struct {
	Object interface{}
	Args   []interface{}
}

func (c *Call) CommandName() string { return "call" }

func (c *Call) arguments() []interface{} {
	return append([]interface{}{c.Object}, c.Args...)
}

type Close struct{}

func (c *Close) CommandName() string      { return "close" }
func (c *Close) arguments() []interface{} { return []interface{}{nil} }

type CreateStream struct{}

func (c *CreateStream) CommandName() string      { return "createStream" }
func (c *CreateStream) arguments() []interface{} { return []interface{}{nil} }

// CreateStreamResult is the _result answering createStream.
type CreateStreamResult struct {
	StreamID float64
}

func (c *CreateStreamResult) CommandName() string { return "_result" }

func (c *CreateStreamResult) arguments() []interface{} {
	return []interface{}{nil, c.StreamID}
}

// Result is any _result or _error, decoded without interpretation.
type Result struct {
	Name   string
	Object interface{}
	Args   []interface{}
}

func (c *Result) CommandName() string { return c.Name }

func (c *Result) arguments() []interface{} {
	return append([]interface{}{c.Object}, c.Args...)
}

// NetStream commands.

type PublishType string

const (
	PublishLive   PublishType = "live"
	PublishRecord PublishType = "record"
	PublishAppend PublishType = "append"
	// PublishUnknown stands for any other type. Publish.RawType keeps what the client sent.
	PublishUnknown PublishType = "unknown"
)

func parsePublishType(s string) PublishType {
	switch t := PublishType(s); t {
	case PublishLive, PublishRecord, PublishAppend:
		return t
	default:
		return PublishUnknown
	}
}

type Publish struct {
	Name string
	Type PublishType
	// RawType is the publishing type as received, empty when the client sent none.
	RawType string
}

func (c *Publish) CommandName() string { return "publish" }

func (c *Publish) arguments() []interface{} {
	if c.RawType != "" {
		return []interface{}{nil, c.Name, c.RawType}
	}
	return []interface{}{nil, c.Name, string(c.Type)}
}

type DeleteStream struct {
	StreamID float64
}

func (c *DeleteStream) CommandName() string { return "deleteStream" }

func (c *DeleteStream) arguments() []interface{} {
	return []interface{}{nil, c.StreamID}
}

type CloseStream struct{}

func (c *CloseStream) CommandName() string      { return "closeStream" }
func (c *CloseStream) arguments() []interface{} { return []interface{}{nil} }

type ReceiveAudio struct {
	Enabled bool
}

func (c *ReceiveAudio) CommandName() string      { return "receiveAudio" }
func (c *ReceiveAudio) arguments() []interface{} { return []interface{}{nil, c.Enabled} }

type ReceiveVideo struct {
	Enabled bool
}

func (c *ReceiveVideo) CommandName() string      { return "receiveVideo" }
func (c *ReceiveVideo) arguments() []interface{} { return []interface{}{nil, c.Enabled} }

type Play struct {
	Values []interface{}
}

func (c *Play) CommandName() string { return "play" }

func (c *Play) arguments() []interface{} {
	return append([]interface{}{nil}, c.Values...)
}

type Play2 struct {
	Parameters amf0.Object
}

func (c *Play2) CommandName() string      { return "play2" }
func (c *Play2) arguments() []interface{} { return []interface{}{nil, c.Parameters} }

type Seek struct {
	Milliseconds float64
}

func (c *Seek) CommandName() string      { return "seek" }
func (c *Seek) arguments() []interface{} { return []interface{}{nil, c.Milliseconds} }

type Pause struct {
	Pause        bool
	Milliseconds float64
}

func (c *Pause) CommandName() string      { return "pause" }
func (c *Pause) arguments() []interface{} { return []interface{}{nil, c.Pause, c.Milliseconds} }

// FCPublish, FCUnpublish and releaseStream are sent by FMLE-style encoders around publish.
type FCPublish struct {
	Name string
}

func (c *FCPublish) CommandName() string      { return "FCPublish" }
func (c *FCPublish) arguments() []interface{} { return []interface{}{nil, c.Name} }

type FCUnpublish struct {
	Name string
}

func (c *FCUnpublish) CommandName() string      { return "FCUnpublish" }
func (c *FCUnpublish) arguments() []interface{} { return []interface{}{nil, c.Name} }

type ReleaseStream struct {
	Name string
}

func (c *ReleaseStream) CommandName() string      { return "releaseStream" }
func (c *ReleaseStream) arguments() []interface{} { return []interface{}{nil, c.Name} }

// OnStatus is an onStatus event (or onFCPublish/onFCUnpublish, which share its layout).
// Extras are appended to the info object after level, code and description.
type OnStatus struct {
	Name        string
	Level       string
	Code        string
	Description string
	Extras      amf0.Object
}

func newOnStatus(name string, info amf0.Object) *OnStatus {
	s := &OnStatus{Name: name}
	for _, p := range info {
		v, _ := p.Value.(string)
		switch p.Key {
		case "level":
			s.Level = v
		case "code":
			s.Code = v
		case "description":
			s.Description = v
		default:
			s.Extras = append(s.Extras, p)
		}
	}
	return s
}

func (c *OnStatus) CommandName() string {
	if c.Name == "" {
		return "onStatus"
	}
	return c.Name
}

func (c *OnStatus) arguments() []interface{} {
	info := amf0.Object{
		{Key: "level", Value: c.Level},
		{Key: "code", Value: c.Code},
	}
	if c.Description != "" {
		info = append(info, amf0.Property{Key: "description", Value: c.Description})
	}
	info = append(info, c.Extras...)
	return []interface{}{nil, info}
}

// Unknown is any command this package does not interpret.
type Unknown struct {
	Name   string
	Values []interface{}
}

func (c *Unknown) CommandName() string      { return c.Name }
func (c *Unknown) arguments() []interface{} { return c.Values }
