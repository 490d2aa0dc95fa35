package rtmp

import "strings"

// CapsEx is the enhanced RTMP capsEx bitmask a client may send in its connect command object.
type CapsEx uint32

const (
	CapsExReconnect           CapsEx = 0x01
	CapsExMultitrack          CapsEx = 0x02
	CapsExModEx               CapsEx = 0x04
	CapsExTimestampNanoOffset CapsEx = 0x08
)

// Has reports whether every bit of flag is set.
func (c CapsEx) Has(flag CapsEx) bool {
	return c&flag == flag
}

func (c CapsEx) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		flag CapsEx
		name string
	}{
		{CapsExReconnect, "reconnect"},
		{CapsExMultitrack, "multitrack"},
		{CapsExModEx, "modex"},
		{CapsExTimestampNanoOffset, "timestampNanoOffset"},
	} {
		if c.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if rest := c &^ (CapsExReconnect | CapsExMultitrack | CapsExModEx | CapsExTimestampNanoOffset); rest != 0 {
		names = append(names, "unknown")
	}
	return strings.Join(names, "|")
}
