package av

import (
	"bytes"
	"testing"

	"github.com/torresjeff/rtmp-ingest/internal/bytesutil"
)

func TestReadModEx(t *testing.T) {
	tests := []struct {
		name       string
		in         []byte
		modEx      ModEx
		packetType uint8
	}{
		{
			name:       "small block",
			in:         []byte{1, 42, 42, 0b0001_0001},
			modEx:      ModEx{Type: 1, Data: []byte{42, 42}},
			packetType: 1,
		},
		{
			name:       "timestamp offset",
			in:         []byte{2, 0, 0, 1, 0b0000_0000},
			modEx:      ModEx{Type: ModExTimestampOffsetNano, TimestampOffsetNano: 1, Data: []byte{0, 0, 1}},
			packetType: 0,
		},
		{
			name:       "big block",
			in:         []byte{255, 0, 1, 42, 42, 0b0001_0001},
			modEx:      ModEx{Type: 1, Data: []byte{42, 42}},
			packetType: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modEx, packetType, err := ReadModEx(bytesutil.NewCursor(tt.in))
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if modEx.Type != tt.modEx.Type || modEx.TimestampOffsetNano != tt.modEx.TimestampOffsetNano || !bytes.Equal(modEx.Data, tt.modEx.Data) {
				t.Errorf("got %+v, want %+v", modEx, tt.modEx)
			}
			if packetType != tt.packetType {
				t.Errorf("got packet type %d, want %d", packetType, tt.packetType)
			}
		})
	}
}

func TestReadModExTooShort(t *testing.T) {
	_, _, err := ReadModEx(bytesutil.NewCursor([]byte{0, 42, 0b0000_0010}))
	e, ok := err.(*InvalidModExDataError)
	if !ok || e.ExpectedBytes != 3 {
		t.Fatalf("expected InvalidModExDataError{3}, got %v", err)
	}
}

func TestFourCC(t *testing.T) {
	f := FourCC{'h', 'v', 'c', '1'}
	if f.String() != "hvc1" {
		t.Errorf("got %s", f)
	}
	if FourCCFromUint32(f.Uint32()) != f {
		t.Errorf("uint32 conversion did not round trip")
	}
}
