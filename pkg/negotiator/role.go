package negotiator

import "fmt"

// Role decides which side yields when both endpoints send an offer at the
// same time. The two endpoints of a session must hold opposite roles.
type Role int

const (
	// Polite endpoints roll back their own offer and accept the remote one.
	Polite Role = iota
	// Impolite endpoints ignore a colliding remote offer.
	Impolite
)

func (r Role) String() string {
	switch r {
	case Polite:
		return "polite"
	case Impolite:
		return "impolite"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// EndpointKind names the side of a session. Roles are derived from it so
// that both ends agree without any exchange.
type EndpointKind string

const (
	EndpointClient EndpointKind = "client"
	EndpointDevice EndpointKind = "device"
)

func ParseEndpointKind(s string) (EndpointKind, error) {
	switch k := EndpointKind(s); k {
	case EndpointClient, EndpointDevice:
		return k, nil
	default:
		return "", fmt.Errorf("unknown endpoint kind %q", s)
	}
}

// RoleFor returns the fixed role of an endpoint kind: clients are polite,
// devices are impolite.
func RoleFor(kind EndpointKind) Role {
	if kind == EndpointDevice {
		return Impolite
	}
	return Polite
}
