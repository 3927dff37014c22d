package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"

	"github.com/stv0g/pion-edge-signaling/pkg"
)

// ICEServers merges the legacy TURN list and the generic ICE server list of
// a TurnResponse, legacy entries first.
func ICEServers(msg *pkg.SignalMessage) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(msg.Servers)+len(msg.IceServers))

	for _, s := range msg.Servers {
		servers = append(servers, webrtc.ICEServer{
			URLs:           []string{s.Hostname},
			Username:       s.Username,
			Credential:     s.Password,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	for _, s := range msg.IceServers {
		srv := webrtc.ICEServer{
			URLs:     append([]string(nil), s.URLs...),
			Username: s.Username,
		}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, srv)
	}

	return servers
}

// RequestTurn sends a TurnRequest as the first message on ch and waits for
// the TurnResponse. Any other message aborts the handshake.
//
// An empty server list is not an error; the session then relies on host
// and statically configured candidates.
func (c *Channel) RequestTurn(ctx context.Context) ([]webrtc.ICEServer, error) {
	c.Send(&pkg.SignalMessage{
		Type: pkg.TypeTurnRequest,
	})

	msg, err := c.Recv(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, pkg.NewError(pkg.KindHandshakeTimeout, err, "waiting for turn response")
		}
		return nil, fmt.Errorf("failed to receive turn response: %w", err)
	}

	if msg.Type != pkg.TypeTurnResponse {
		return nil, pkg.NewError(pkg.KindUnexpectedMessageType, nil, "got %s while waiting for turn response", msg.Type)
	}

	servers := ICEServers(msg)
	if len(servers) == 0 {
		c.logger.Warn("Received a turn response without any servers listed")
	} else {
		c.logger.Infof("Received %d ICE servers", len(servers))
	}

	return servers, nil
}
