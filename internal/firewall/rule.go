package firewall

import (
	"errors"
	"fmt"
	"strings"
)

// Rule is an ordered access-control entry. Rules are values: once the store
// assigns an id they are never changed, only removed and re-added.
type Rule struct {
	ID         int      `json:"id" yaml:"id"`
	Action     Action   `json:"action" yaml:"action"`
	SourceSpec string   `json:"src_ip" yaml:"src_ip"`
	DestPort   int      `json:"dst_port" yaml:"dst_port"`
	Protocol   Protocol `json:"protocol" yaml:"protocol"`

	source AddressSpec
}

func (r Rule) String() string {
	return fmt.Sprintf("id=%d action=%s src=%s port=%d proto=%s", r.ID, r.Action, r.SourceSpec, r.DestPort, r.Protocol)
}

// RuleDraft is the caller-supplied part of a rule, before validation.
type RuleDraft struct {
	Action   string `json:"action"`
	SrcIP    string `json:"src_ip"`
	DstPort  int    `json:"dst_port"`
	Protocol string `json:"protocol"`
}

// Validate checks every field and reports all failures at once.
func (d RuleDraft) Validate() error {
	_, err := d.compile()
	return err
}

func (d RuleDraft) compile() (Rule, error) {
	var errs []error

	action, err := ParseAction(d.Action)
	if err != nil {
		errs = append(errs, err)
	}
	proto, err := ParseProtocol(d.Protocol)
	if err != nil {
		errs = append(errs, err)
	}
	if err := validatePort(d.DstPort); err != nil {
		errs = append(errs, err)
	}
	spec, err := ParseAddressSpec(d.SrcIP)
	if err != nil {
		errs = append(errs, &ValidationError{Field: "src_ip", Value: d.SrcIP, Reason: "must be any, an address, or a CIDR block", Err: err})
	}

	if len(errs) > 0 {
		return Rule{}, errors.Join(errs...)
	}
	return Rule{
		Action:     action,
		SourceSpec: spec.String(),
		DestPort:   d.DstPort,
		Protocol:   proto,
		source:     spec,
	}, nil
}

// Draft returns the fields needed to recreate r.
func (r Rule) Draft() RuleDraft {
	return RuleDraft{
		Action:   string(r.Action),
		SrcIP:    r.SourceSpec,
		DstPort:  r.DestPort,
		Protocol: string(r.Protocol),
	}
}

// matches applies protocol, port and address criteria to a validated packet.
func (r Rule) matches(p Packet) (bool, error) {
	if r.Protocol != ProtoAny && !strings.EqualFold(string(r.Protocol), string(p.Protocol)) {
		return false, nil
	}
	if r.DestPort != p.DestPort {
		return false, nil
	}

	spec := r.source
	if !spec.IsValid() {
		var err error
		if spec, err = ParseAddressSpec(r.SourceSpec); err != nil {
			return false, fmt.Errorf("rule %d: %w", r.ID, err)
		}
	}
	return spec.Matches(p.SourceAddress)
}
