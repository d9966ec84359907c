package firewall

import (
	"fmt"
	"strings"
)

// Action is the verdict a rule (or the default policy) applies to a packet.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
)

// Protocol is the transport protocol a rule or packet refers to.
type Protocol string

const (
	ProtoTCP  Protocol = "TCP"
	ProtoUDP  Protocol = "UDP"
	ProtoICMP Protocol = "ICMP"
	// ProtoAny is only valid on rules.
	ProtoAny Protocol = "ANY"
)

// Port bounds for dst_port.
const (
	MinPort = 0
	MaxPort = 65535
)

// AnySource is the wildcard source specifier.
const AnySource = "any"

// ParseAction normalizes an action string ("allow", "Deny", ...).
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionAllow, ActionDeny:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Value: s, Reason: "must be ALLOW or DENY"}
}

// ParseProtocol normalizes a rule protocol; ANY is accepted.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProtoTCP, ProtoUDP, ProtoICMP, ProtoAny:
		return p, nil
	}
	return "", &ValidationError{Field: "protocol", Value: s, Reason: "must be TCP, UDP, ICMP or ANY"}
}

// parsePacketProtocol normalizes a packet protocol; a packet always carries a
// concrete protocol, so ANY is rejected.
func parsePacketProtocol(s string) (Protocol, error) {
	p, err := ParseProtocol(s)
	if err != nil {
		return "", &ValidationError{Field: "protocol", Value: s, Reason: "must be TCP, UDP or ICMP"}
	}
	if p == ProtoAny {
		return "", &ValidationError{Field: "protocol", Value: s, Reason: "a packet cannot use ANY"}
	}
	return p, nil
}

func validatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return &ValidationError{
			Field:  "dst_port",
			Value:  fmt.Sprint(port),
			Reason: fmt.Sprintf("must be between %d and %d", MinPort, MaxPort),
		}
	}
	return nil
}
