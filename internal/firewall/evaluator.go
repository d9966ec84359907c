package firewall

import (
	"fmt"
	"strings"
)

// Packet is a synthetic traffic record submitted for evaluation.
type Packet struct {
	SourceAddress string   `json:"src_ip"`
	DestPort      int      `json:"dst_port"`
	Protocol      Protocol `json:"protocol"`
}

// Normalize validates p and returns it with an upper-case protocol and a
// trimmed address. Malformed packets are hard input errors.
func (p Packet) Normalize() (Packet, error) {
	proto, err := parsePacketProtocol(string(p.Protocol))
	if err != nil {
		return Packet{}, err
	}
	if err := validatePort(p.DestPort); err != nil {
		return Packet{}, err
	}
	addr := strings.TrimSpace(p.SourceAddress)
	if _, err := parseAddr(addr); err != nil {
		return Packet{}, &ValidationError{Field: "src_ip", Value: p.SourceAddress, Reason: "not a valid address", Err: err}
	}
	return Packet{SourceAddress: addr, DestPort: p.DestPort, Protocol: proto}, nil
}

// RuleSource supplies an ordered rule snapshot. *RuleStore implements it.
type RuleSource interface {
	List() []Rule
}

// Decision is the outcome of evaluating one packet.
type Decision struct {
	Action Action
	// Rule is the matching rule, or nil when the default action applied.
	Rule *Rule
	// Packet is the normalized packet that was evaluated.
	Packet Packet
}

// Matched reports whether an explicit rule decided the packet.
func (d Decision) Matched() bool {
	return d.Rule != nil
}

// Evaluator applies first-match-wins semantics over a RuleSource.
// It never mutates state; logging and threat tracking belong to the caller.
type Evaluator struct {
	rules         RuleSource
	defaultAction Action
}

// NewEvaluator creates an evaluator. An empty default action fails closed.
func NewEvaluator(rules RuleSource, defaultAction Action) *Evaluator {
	if defaultAction == "" {
		defaultAction = ActionDeny
	}
	return &Evaluator{rules: rules, defaultAction: defaultAction}
}

// DefaultAction returns the action applied when no rule matches.
func (e *Evaluator) DefaultAction() Action {
	return e.defaultAction
}

// Evaluate decides p against the current rule snapshot.
func (e *Evaluator) Evaluate(p Packet) (Decision, error) {
	return EvaluateRules(e.rules.List(), p, e.defaultAction)
}

// EvaluateRules decides p against an explicit ordered rule slice.
func EvaluateRules(rules []Rule, p Packet, defaultAction Action) (Decision, error) {
	pkt, err := p.Normalize()
	if err != nil {
		return Decision{}, err
	}

	for i := range rules {
		ok, err := rules[i].matches(pkt)
		if err != nil {
			// A stored rule that cannot be matched must not silently
			// fall through to the default action.
			return Decision{}, fmt.Errorf("evaluate: %w", err)
		}
		if ok {
			matched := rules[i]
			return Decision{Action: matched.Action, Rule: &matched, Packet: pkt}, nil
		}
	}
	return Decision{Action: defaultAction, Packet: pkt}, nil
}
