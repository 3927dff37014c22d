package signaling

import (
	"fmt"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

func TestDecodeInfo(t *testing.T) {
	payload, err := cbor.Marshal(Info{SignalingStreamPort: 6503})
	if err != nil {
		t.Fatalf("Marshal: %s", err)
	}

	info, err := DecodeInfo(transport.ContentFormatCBOR, payload)
	if err != nil {
		t.Fatalf("DecodeInfo: %s", err)
	}
	if info.SignalingStreamPort != 6503 {
		t.Errorf("port = %d", info.SignalingStreamPort)
	}

	info, err = DecodeInfo(transport.ContentFormatJSON, []byte(`{"SignalingStreamPort": 6503, "FileStreamPort": 6504}`))
	if err != nil {
		t.Fatalf("DecodeInfo: %s", err)
	}
	if info.SignalingStreamPort != 6503 || info.FileStreamPort != 6504 {
		t.Errorf("info = %+v", info)
	}

	if _, err := DecodeInfo(transport.ContentFormat(99), payload); err == nil {
		t.Error("unsupported content format accepted")
	}
}

func TestDecodeInfoLimits(t *testing.T) {
	wide := map[string]uint32{"SignalingStreamPort": 1}
	for i := 0; i < 16; i++ {
		wide[fmt.Sprintf("k%d", i)] = uint32(i)
	}

	deep := map[string]any{
		"SignalingStreamPort": 1,
		"x":                   [][][][]int{{{{1}}}},
	}

	long := map[string]any{
		"SignalingStreamPort": 1,
		"x":                   make([]int, 17),
	}

	key := append([]byte{0x73}, "SignalingStreamPort"...)

	for name, payload := range map[string][]byte{
		"too many pairs":    mustMarshal(t, wide),
		"too deep":          mustMarshal(t, deep),
		"too many elements": mustMarshal(t, long),
		"duplicate key":     append(append(append([]byte{0xa2}, key...), 0x01), append(key, 0x02)...),
		"indefinite length": append(append([]byte{0xbf}, key...), 0x01, 0xff),
	} {
		if info, err := DecodeInfo(transport.ContentFormatCBOR, payload); err == nil {
			t.Errorf("%s: decoded %+v", name, info)
		}
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()

	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %s", err)
	}
	return b
}
