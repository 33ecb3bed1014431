// ---------------------------------------------------------------------------
//
// Copyright 2013-2019 lispers.net - Dino Farinacci <farinacci@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ---------------------------------------------------------------------------
//
// laddr.go
//
// LISP address types. An address on the wire starts with a 2-byte AFI. AFI
// 1 and 2 are IPv4 and IPv6, AFI 0 means "no address" and AFI 16387 is the
// LISP Canonical Address Format (LCAF) which wraps other addresses.
//
// ---------------------------------------------------------------------------

// Package laddr implements the LISP address encoding: plain IP addresses and
// the LCAF variants used by the control plane.
package laddr

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Address family identifiers.
const (
	AFINone uint16 = 0
	AFIIPv4 uint16 = 1
	AFIIPv6 uint16 = 2
	AFILCAF uint16 = 16387
)

// LCAF types.
const (
	LCAFAFIList    uint8 = 1
	LCAFInstanceID uint8 = 2
	LCAFMCInfo     uint8 = 9
	LCAFELP        uint8 = 10
	LCAFRLE        uint8 = 13
)

// Sentinel errors.
var (
	ErrMalformed   = errors.New("laddr: malformed address")
	ErrUnsupported = errors.New("laddr: unsupported address type")
	ErrShortBuffer = errors.New("laddr: buffer too short")
)

// Address is one of NoAddr, IP, InstanceID, AFIList, ELP, RLE or MCInfo.
// The set is closed; code that switches on an Address handles every variant.
type Address interface {
	String() string
	isAddress()
}

// NoAddr is the AFI 0 encoding. Mappings use it as a placeholder for a
// locator group that has no usable address.
type NoAddr struct{}

// IP is an IPv4 or IPv6 address with a prefix length.
type IP struct {
	Addr netip.Addr
	Plen int
}

// InstanceID scopes Addr to a virtual network.
type InstanceID struct {
	IID     uint32
	MaskLen uint8
	Addr    Address
}

// AFIList carries a list of addresses of possibly different families.
type AFIList struct {
	List []Address
}

// ELPHop is one re-encapsulation hop of an explicit locator path.
type ELPHop struct {
	Addr      Address
	Lookup    bool
	RLOCProbe bool
	Strict    bool
}

// ELP is an explicit locator path.
type ELP struct {
	Hops []ELPHop
}

// RLEEntry is one replication target with its replication level.
type RLEEntry struct {
	Level uint8
	Addr  Address
}

// RLE is a replication list.
type RLE struct {
	Entries []RLEEntry
}

// MCInfo is an (S,G) multicast entry inside an instance.
type MCInfo struct {
	IID     uint32
	SrcPlen uint8
	GrpPlen uint8
	Src     Address
	Grp     Address
}

func (NoAddr) isAddress()     {}
func (IP) isAddress()         {}
func (InstanceID) isAddress() {}
func (AFIList) isAddress()    {}
func (ELP) isAddress()        {}
func (RLE) isAddress()        {}
func (MCInfo) isAddress()     {}

// FromNetIP returns a host IP address (full prefix length).
func FromNetIP(a netip.Addr) IP {
	a = a.Unmap()
	return IP{Addr: a, Plen: a.BitLen()}
}

// FromIP converts a net.IP. A 16-byte IPv4-mapped address becomes IPv4.
func FromIP(ip net.IP) (IP, bool) {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return IP{}, false
	}
	return FromNetIP(a), true
}

// AFI returns the AFI the address is encoded with.
func AFI(a Address) uint16 {
	switch v := a.(type) {
	case NoAddr:
		return AFINone
	case IP:
		if v.Addr.Is4() {
			return AFIIPv4
		}
		return AFIIPv6
	default:
		return AFILCAF
	}
}

// IsNoAddr reports whether a is absent or the AFI 0 placeholder.
func IsNoAddr(a Address) bool {
	if a == nil {
		return true
	}
	_, ok := a.(NoAddr)
	return ok
}

// IPOf returns the IP portion of an IP or instance-ID address.
func IPOf(a Address) (netip.Addr, bool) {
	switch v := a.(type) {
	case IP:
		return v.Addr, v.Addr.IsValid()
	case InstanceID:
		return IPOf(v.Addr)
	}
	return netip.Addr{}, false
}

// IPAFI returns the AFI of the IP portion of a, or AFINone.
func IPAFI(a Address) uint16 {
	ip, ok := IPOf(a)
	if !ok {
		return AFINone
	}
	if ip.Is4() {
		return AFIIPv4
	}
	return AFIIPv6
}

// Plen returns the prefix length of an IP or instance-ID address and 0 for
// every other variant.
func Plen(a Address) int {
	switch v := a.(type) {
	case IP:
		return v.Plen
	case InstanceID:
		return Plen(v.Addr)
	}
	return 0
}

// SetPlen returns a copy of a with the prefix length set. Variants without a
// prefix are returned unchanged.
func SetPlen(a Address, plen int) Address {
	switch v := a.(type) {
	case IP:
		v.Plen = plen
		return v
	case InstanceID:
		v.Addr = SetPlen(v.Addr, plen)
		return v
	}
	return a
}

// Equal reports whether two addresses have the same encoding and prefix
// length.
func Equal(a, b Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if Plen(a) != Plen(b) {
		return false
	}
	wa, err := Marshal(a)
	if err != nil {
		return false
	}
	wb, err := Marshal(b)
	if err != nil {
		return false
	}
	return string(wa) == string(wb)
}

func (NoAddr) String() string { return "no-address" }

func (a IP) String() string {
	if !a.Addr.IsValid() {
		return "invalid-ip"
	}
	if a.Plen != a.Addr.BitLen() {
		return fmt.Sprintf("%s/%d", a.Addr, a.Plen)
	}
	return a.Addr.String()
}

func (a InstanceID) String() string {
	return fmt.Sprintf("[%d]%s", a.IID, str(a.Addr))
}

func (a AFIList) String() string {
	return "(" + ListToString(a.List) + ")"
}

func (a ELP) String() string {
	hops := make([]string, 0, len(a.Hops))
	for _, h := range a.Hops {
		flags := ""
		if h.Lookup {
			flags += "l"
		}
		if h.RLOCProbe {
			flags += "p"
		}
		if h.Strict {
			flags += "s"
		}
		if flags != "" {
			flags = "|" + flags
		}
		hops = append(hops, str(h.Addr)+flags)
	}
	return "{" + strings.Join(hops, "->") + "}"
}

func (a RLE) String() string {
	entries := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		entries = append(entries, fmt.Sprintf("%s(%d)", str(e.Addr), e.Level))
	}
	return "{" + strings.Join(entries, ", ") + "}"
}

func (a MCInfo) String() string {
	return fmt.Sprintf("[%d](%s/%d, %s/%d)", a.IID, str(a.Src), a.SrcPlen,
		str(a.Grp), a.GrpPlen)
}

func str(a Address) string {
	if a == nil {
		return "nil"
	}
	return a.String()
}

// ParseString parses "[iid]address/plen", "address/plen" or "address".
func ParseString(s string) (Address, error) {
	var iid int64 = -1

	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return nil, errors.Wrapf(ErrMalformed, "%q", s)
		}
		v, err := strconv.ParseInt(s[1:end], 10, 64)
		if err != nil || v < 0 || v > 0xffffffff {
			return nil, errors.Wrapf(ErrMalformed, "instance-id in %q", s)
		}
		iid = v
		s = s[end+1:]
	}

	var ip IP
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%q: %v", s, err)
		}
		ip = IP{Addr: p.Addr().Unmap(), Plen: p.Bits()}
	} else {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%q: %v", s, err)
		}
		ip = FromNetIP(a)
	}

	if iid < 0 {
		return ip, nil
	}
	return InstanceID{IID: uint32(iid), Addr: ip}, nil
}

// ListToString formats a list of addresses into a caller-owned string.
func ListToString(list []Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, str(a))
	}
	return strings.Join(parts, ", ")
}

// ListGetAddr returns the first address in list whose IP portion has the
// given AFI.
func ListGetAddr(list []Address, afi uint16) (Address, bool) {
	for _, a := range list {
		if IPAFI(a) == afi {
			return a, true
		}
	}
	return nil, false
}
