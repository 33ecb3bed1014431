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

package main

import (
	"bytes"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/warmspit/lisp-xtr/lisp"
	"golang.org/x/net/bpf"
)

func outerIPv6(t *testing.T, dport layers.UDPPort, payload []byte) []byte {
	t.Helper()
	ip6 := &layers.IPv6{
		Version:      6,
		HopLimit:     17,
		TrafficClass: 0x28,
		NextHeader:   layers.IPProtocolUDP,
		SrcIP:        net.ParseIP("2001:db8::5"),
		DstIP:        net.ParseIP("2001:db8::1"),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: dport}
	udp.SetNetworkLayerForChecksum(ip6)
	return serialize(t, ip6, udp, gopacket.Payload(payload))
}

func TestStripIPv6UDP(t *testing.T) {
	payload := lispPayload(nonceHdr, testIPv4(t, "10.2.0.1", "10.1.0.1", 9, 0))
	pkt := outerIPv6(t, lisp.DataPort, payload)

	var ip6 layers.IPv6
	var udp layers.UDP
	b := make([]byte, lisp.MaxIPPacketLen)
	n, hop, tc, src, err := lispStripIPv6UDP(pkt, b, &ip6, &udp)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b[:n], payload) {
		t.Error("payload differs")
	}
	if hop != 17 || tc != 0x28 {
		t.Errorf("hop limit %d traffic class %#x", hop, tc)
	}
	if src != netip.MustParseAddrPort("[2001:db8::5]:50000") {
		t.Errorf("source %s", src)
	}

	if _, _, _, _, err := lispStripIPv6UDP(pkt, b[:4], &ip6, &udp); err == nil {
		t.Error("truncated copy accepted")
	}
	if _, _, _, _, err := lispStripIPv6UDP(pkt[:30], b, &ip6, &udp); err == nil {
		t.Error("short IPv6 header accepted")
	}
}

func TestIPv6CaptureFilter(t *testing.T) {
	raw, err := lispIPv6CaptureFilter()
	if err != nil {
		t.Fatal(err)
	}
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		t.Fatal("filter does not disassemble")
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		t.Fatal(err)
	}

	tcp := &layers.TCP{SrcPort: 50000, DstPort: lisp.DataPort}
	ip6tcp := &layers.IPv6{
		Version:    6,
		HopLimit:   1,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP("2001:db8::5"),
		DstIP:      net.ParseIP("2001:db8::1"),
	}
	tcp.SetNetworkLayerForChecksum(ip6tcp)

	tests := []struct {
		name string
		pkt  []byte
		want int
	}{
		{"lisp data", outerIPv6(t, lisp.DataPort, []byte("payload")), 65535},
		{"control port", outerIPv6(t, lisp.ControlPort, []byte("payload")), 0},
		{"ipv4", testIPv4(t, "10.2.0.1", "10.1.0.1", 9, 0), 0},
		{"tcp", serialize(t, ip6tcp, tcp), 0},
	}
	for _, tt := range tests {
		got, err := vm.Run(tt.pkt)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: filter returned %d, want %d", tt.name, got, tt.want)
		}
	}
}
