// Package prefix provides the CIDR key used to index AS paths and
// bottleneck results.
package prefix

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Prefix is an address plus a mask length. It is comparable and safe to use
// as a map key. Host bits are kept as given, never masked.
type Prefix struct {
	addr netip.Addr
	bits uint8
}

// NoSlashError is returned for text without a "/" separator.
type NoSlashError struct {
	Input string
}

func (e *NoSlashError) Error() string {
	return fmt.Sprintf("prefix %q: missing '/' separator", e.Input)
}

// AddrParseError is returned when the address part is not a valid IP.
type AddrParseError struct {
	Input string
	Err   error
}

func (e *AddrParseError) Error() string {
	return fmt.Sprintf("prefix %q: invalid address: %v", e.Input, e.Err)
}

func (e *AddrParseError) Unwrap() error { return e.Err }

// MaskError is returned for a non-numeric mask or one wider than the
// address family.
type MaskError struct {
	Input string
	Err   error
}

func (e *MaskError) Error() string {
	return fmt.Sprintf("prefix %q: invalid mask: %v", e.Input, e.Err)
}

func (e *MaskError) Unwrap() error { return e.Err }

// OctetsError is returned by FromBinary when more octets are given than the
// address family holds.
type OctetsError struct {
	Len   int
	Width int
}

func (e *OctetsError) Error() string {
	return fmt.Sprintf("binary prefix has %d octets, address family holds %d", e.Len, e.Width)
}

// Parse builds a Prefix from "ip/mask" text.
func Parse(s string) (Prefix, error) {
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return Prefix{}, &NoSlashError{Input: s}
	}

	addr, err := netip.ParseAddr(s[:i])
	if err != nil {
		return Prefix{}, &AddrParseError{Input: s, Err: err}
	}
	if addr.Zone() != "" {
		return Prefix{}, &AddrParseError{Input: s, Err: fmt.Errorf("zoned address %s", addr)}
	}

	bits, err := strconv.ParseUint(s[i+1:], 10, 8)
	if err != nil {
		return Prefix{}, &MaskError{Input: s, Err: err}
	}
	if int(bits) > addr.BitLen() {
		return Prefix{}, &MaskError{Input: s, Err: fmt.Errorf("%d exceeds %d bits", bits, addr.BitLen())}
	}

	return Prefix{addr: addr, bits: uint8(bits)}, nil
}

// MustParse is Parse for constants and tests. It panics on error.
func MustParse(s string) Prefix {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// FromBinary builds a Prefix from the leading octets of an address as
// carried in routing messages. Missing trailing octets are zero.
func FromBinary(octets []byte, bits uint8, is6 bool) (Prefix, error) {
	width := 4
	if is6 {
		width = 16
	}
	if len(octets) > width {
		return Prefix{}, &OctetsError{Len: len(octets), Width: width}
	}
	if int(bits) > width*8 {
		return Prefix{}, &MaskError{
			Input: fmt.Sprintf("%x/%d", octets, bits),
			Err:   fmt.Errorf("%d exceeds %d bits", bits, width*8),
		}
	}

	var addr netip.Addr
	if is6 {
		var b [16]byte
		copy(b[:], octets)
		addr = netip.AddrFrom16(b)
	} else {
		var b [4]byte
		copy(b[:], octets)
		addr = netip.AddrFrom4(b)
	}
	return Prefix{addr: addr, bits: bits}, nil
}

// Addr returns the address part.
func (p Prefix) Addr() netip.Addr { return p.addr }

// Bits returns the mask length.
func (p Prefix) Bits() int { return int(p.bits) }

// Is6 reports whether p is an IPv6 prefix.
func (p Prefix) Is6() bool { return p.addr.Is6() }

// IsValid reports whether p was built by Parse or FromBinary.
func (p Prefix) IsValid() bool { return p.addr.IsValid() }

// LeadingOctet returns the first byte of the address.
func (p Prefix) LeadingOctet() byte {
	if p.addr.Is4() {
		return p.addr.As4()[0]
	}
	return p.addr.As16()[0]
}

// String renders p as "ip/mask".
func (p Prefix) String() string {
	if !p.addr.IsValid() {
		return "invalid Prefix"
	}
	return p.addr.String() + "/" + strconv.Itoa(int(p.bits))
}

// MarshalText implements encoding.TextMarshaler.
func (p Prefix) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Compare orders IPv4 before IPv6, then by address, then by mask length.
func (p Prefix) Compare(o Prefix) int {
	if p.Is6() != o.Is6() {
		if p.Is6() {
			return 1
		}
		return -1
	}
	if c := p.addr.Compare(o.addr); c != 0 {
		return c
	}
	switch {
	case p.bits < o.bits:
		return -1
	case p.bits > o.bits:
		return 1
	}
	return 0
}
