package signaling

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/stv0g/pion-edge-signaling/pkg"
	"github.com/stv0g/pion-edge-signaling/pkg/transport"
)

// InfoPath is the discovery resource announcing the signaling stream port.
const InfoPath = "/p2p/webrtc-info"

// decMode bounds the CBOR discovery documents received from the remote
// endpoint. Info has two fields, so anything beyond the library minimums is
// malformed.
var decMode cbor.DecMode

func init() {
	var err error

	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  4,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic("signaling: CBOR decoder initialization failed: " + err.Error())
	}
}

// Info is the discovery document served at InfoPath.
type Info struct {
	SignalingStreamPort uint32 `json:"SignalingStreamPort" cbor:"SignalingStreamPort"`
	FileStreamPort      uint32 `json:"FileStreamPort,omitempty" cbor:"FileStreamPort,omitempty"`
}

// DecodeInfo decodes a discovery payload according to its content format.
func DecodeInfo(format transport.ContentFormat, payload []byte) (*Info, error) {
	info := &Info{}

	switch format {
	case transport.ContentFormatJSON:
		if err := json.Unmarshal(payload, info); err != nil {
			return nil, fmt.Errorf("invalid JSON document: %w", err)
		}
	case transport.ContentFormatCBOR:
		if err := decMode.Unmarshal(payload, info); err != nil {
			return nil, fmt.Errorf("invalid CBOR document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported content format %d", format)
	}

	return info, nil
}

// Discover asks conn for the port of its signaling stream.
func Discover(ctx context.Context, conn transport.Conn) (*Info, error) {
	resp, err := conn.Request(ctx, "GET", InfoPath)
	if err != nil {
		return nil, pkg.NewError(pkg.KindDiscoveryFailed, err, "request %s", InfoPath)
	}

	if resp.Status != transport.StatusContent {
		return nil, pkg.NewError(pkg.KindDiscoveryFailed, nil, "unexpected %s return code %d", InfoPath, resp.Status)
	}

	info, err := DecodeInfo(resp.ContentFormat, resp.Payload)
	if err != nil {
		return nil, pkg.NewError(pkg.KindDiscoveryFailed, err, "decode %s", InfoPath)
	}

	return info, nil
}

// Dial discovers the signaling stream of conn, opens it and returns a
// channel on top of it.
func Dial(ctx context.Context, conn transport.Conn, opts ...Option) (*Channel, error) {
	info, err := Discover(ctx, conn)
	if err != nil {
		return nil, err
	}

	logrus.WithField("component", "signaling").Infof("Opening signaling stream on port %d", info.SignalingStreamPort)

	stream, err := conn.OpenStream(ctx, info.SignalingStreamPort)
	if err != nil {
		return nil, pkg.NewError(pkg.KindStreamOpenFailed, err, "port %d", info.SignalingStreamPort)
	}

	return NewChannel(stream, opts...), nil
}
