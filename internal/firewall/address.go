package firewall

import (
	"net/netip"
	"strings"
)

type specKind uint8

const (
	specInvalid specKind = iota
	specAny
	specHost
	specPrefix
)

// AddressSpec is a parsed source specifier: "any", a single address, or a
// CIDR block. The zero value is invalid.
type AddressSpec struct {
	kind   specKind
	host   netip.Addr
	prefix netip.Prefix
	raw    string
}

// ParseAddressSpec validates and parses a source specifier.
func ParseAddressSpec(spec string) (AddressSpec, error) {
	s := strings.TrimSpace(spec)
	switch {
	case s == "":
		return AddressSpec{}, &AddressError{Input: spec, Reason: "empty specifier"}
	case strings.EqualFold(s, AnySource):
		return AddressSpec{kind: specAny, raw: AnySource}, nil
	case strings.Contains(s, "/"):
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return AddressSpec{}, &AddressError{Input: spec, Reason: "malformed CIDR block"}
		}
		// Non-canonical bases like 10.0.0.5/24 are compared by their masked base.
		p = p.Masked()
		if p.Addr().Is4In6() && p.Bits() >= 96 {
			p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96).Masked()
		}
		return AddressSpec{kind: specPrefix, prefix: p, raw: s}, nil
	default:
		a, err := parseAddr(s)
		if err != nil {
			return AddressSpec{}, err
		}
		return AddressSpec{kind: specHost, host: a, raw: s}, nil
	}
}

// MustParseAddressSpec is ParseAddressSpec for literals known to be valid.
func MustParseAddressSpec(spec string) AddressSpec {
	s, err := ParseAddressSpec(spec)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the specifier as written.
func (s AddressSpec) String() string {
	return s.raw
}

// IsValid reports whether s came from a successful parse.
func (s AddressSpec) IsValid() bool {
	return s.kind != specInvalid
}

// Matches reports whether address satisfies the specifier. A candidate that
// does not parse returns ErrInvalidAddress, even against "any".
func (s AddressSpec) Matches(address string) (bool, error) {
	a, err := parseAddr(address)
	if err != nil {
		return false, err
	}
	return s.contains(a)
}

func (s AddressSpec) contains(a netip.Addr) (bool, error) {
	switch s.kind {
	case specAny:
		return true, nil
	case specHost:
		return s.host == a, nil
	case specPrefix:
		// Prefix.Contains is false across address families.
		return s.prefix.Contains(a), nil
	}
	return false, &AddressError{Input: s.raw, Reason: "unparsed specifier"}
}

// Matches reports whether address satisfies spec. Both sides are parsed; a
// malformed spec or address yields ErrInvalidAddress rather than false.
func Matches(spec, address string) (bool, error) {
	parsed, err := ParseAddressSpec(spec)
	if err != nil {
		return false, err
	}
	return parsed.Matches(address)
}

// parseAddr parses a literal address. IPv4-mapped IPv6 literals collapse to
// IPv4 and zoned addresses are rejected.
func parseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, &AddressError{Input: s, Reason: "not an IPv4 or IPv6 address"}
	}
	if a.Zone() != "" {
		return netip.Addr{}, &AddressError{Input: s, Reason: "zoned addresses are not supported"}
	}
	return a.Unmap(), nil
}
