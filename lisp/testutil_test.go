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

package lisp

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
)

func ip(s string) laddr.IP {
	return laddr.FromNetIP(netip.MustParseAddr(s))
}

func prefix(t *testing.T, s string) laddr.Address {
	t.Helper()
	a, err := laddr.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// received copies the data of b into a new buffer the way a socket read
// would deliver it, with the LISP layer at the start.
func received(b *lbuf.Buffer) *lbuf.Buffer {
	in := lbuf.Wrap(append([]byte(nil), b.Data()...))
	in.ResetLayer(lbuf.LISP)
	return in
}

func testMapping(t *testing.T) *Mapping {
	t.Helper()
	m := NewMapping(prefix(t, "10.1.0.0/16"))
	m.TTL = 1440
	m.Authoritative = true
	locs := []*Locator{
		{Addr: ip("192.0.2.1"), Priority: 1, Weight: 100, State: Up},
		{Addr: ip("2001:db8::1"), Priority: 2, Weight: 50, MPriority: 255,
			State: Up},
		{Addr: ip("192.0.2.3"), Priority: 1, Weight: 100, State: Down},
	}
	for _, l := range locs {
		if err := m.AddLocator(l); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func innerIPv4(t *testing.T, ttl, tos uint8) []byte {
	t.Helper()
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		TOS:      tos,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 1, 0, 1},
		DstIP:    net.IP{10, 2, 0, 1},
	}
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	udp.SetNetworkLayerForChecksum(ip4)
	sb := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(sb, serializeOpts, ip4, udp,
		gopacket.Payload([]byte("hello, lisp")))
	if err != nil {
		t.Fatal(err)
	}
	return append([]byte(nil), sb.Bytes()...)
}
