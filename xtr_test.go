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
)

var testSerializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	sb := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(sb, testSerializeOpts, ls...); err != nil {
		t.Fatal(err)
	}
	return append([]byte(nil), sb.Bytes()...)
}

func testIPv4(t *testing.T, src, dst string, ttl, tos uint8) []byte {
	t.Helper()
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		TOS:      tos,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	udp.SetNetworkLayerForChecksum(ip4)
	return serialize(t, ip4, udp, gopacket.Payload("hello, lisp"))
}

func testIPv6(t *testing.T, src, dst string, hlim, tc uint8) []byte {
	t.Helper()
	ip6 := &layers.IPv6{
		Version:      6,
		HopLimit:     hlim,
		TrafficClass: tc,
		NextHeader:   layers.IPProtocolUDP,
		SrcIP:        net.ParseIP(src),
		DstIP:        net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	udp.SetNetworkLayerForChecksum(ip6)
	return serialize(t, ip6, udp, gopacket.Payload("hello, lisp"))
}

// lispPayload is what the data socket delivers: the LISP data header and
// the inner packet.
func lispPayload(hdr []byte, inner []byte) []byte {
	return append(append([]byte(nil), hdr...), inner...)
}

var nonceHdr = []byte{0x80, 0x12, 0x34, 0x56, 0, 0, 0, 0}

type fakeReader struct {
	pkts     [][]byte
	ttl, tos uint8
}

func (r *fakeReader) ReadData(b []byte) (int, uint8, uint8, netip.AddrPort,
	error) {

	if len(r.pkts) == 0 {
		return 0, 0, 0, netip.AddrPort{}, net.ErrClosed
	}
	n := copy(b, r.pkts[0])
	r.pkts = r.pkts[1:]
	return n, r.ttl, r.tos, netip.MustParseAddrPort("192.0.2.9:61000"), nil
}

func (r *fakeReader) Close() error { return nil }

type tunWriter struct {
	pkts [][]byte
}

func (w *tunWriter) Write(b []byte) (int, error) {
	w.pkts = append(w.pkts, append([]byte(nil), b...))
	return len(b), nil
}

func TestETRdataPlaneIPv4(t *testing.T) {
	inner := testIPv4(t, "10.2.0.1", "10.1.0.1", 64, 0)
	r := &fakeReader{pkts: [][]byte{lispPayload(nonceHdr, inner)}, ttl: 33,
		tos: 0x28}
	tun := new(tunWriter)

	if err := lispETRdataPlane(r, tun); err != nil {
		t.Fatal(err)
	}
	if len(tun.pkts) != 1 {
		t.Fatalf("%d packets written", len(tun.pkts))
	}
	out := tun.pkts[0]
	if len(out) != len(inner) {
		t.Fatalf("wrote %d bytes, want %d", len(out), len(inner))
	}
	if out[8] != 33 || out[1] != 0x28 {
		t.Errorf("inner ttl %d tos %#x", out[8], out[1])
	}
	if lisp.IPChecksum(out[:20]) != 0 {
		t.Error("inner IPv4 checksum does not verify")
	}
	if !bytes.Equal(out[20:], inner[20:]) {
		t.Error("inner payload changed")
	}
}

func TestETRdataPlaneIPv6(t *testing.T) {
	inner := testIPv6(t, "2001:db8:2::1", "2001:db8:1::1", 64, 0)
	hdr := []byte{0x88, 0, 0, 1, 0, 0, 7, 0}
	r := &fakeReader{pkts: [][]byte{lispPayload(hdr, inner)}, ttl: 12,
		tos: 0xb8}
	tun := new(tunWriter)

	if err := lispETRdataPlane(r, tun); err != nil {
		t.Fatal(err)
	}
	if len(tun.pkts) != 1 {
		t.Fatalf("%d packets written", len(tun.pkts))
	}

	pkt := gopacket.NewPacket(tun.pkts[0], layers.LayerTypeIPv6, gopacket.Default)
	ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	if !ok {
		t.Fatal("not IPv6")
	}
	if ip6.HopLimit != 12 || ip6.TrafficClass != 0xb8 {
		t.Errorf("hop limit %d traffic class %#x", ip6.HopLimit,
			ip6.TrafficClass)
	}
	if !bytes.Equal(tun.pkts[0][8:], inner[8:]) {
		t.Error("IPv6 addresses or payload changed")
	}
}

func TestETRdataPlaneDrops(t *testing.T) {
	inner := testIPv4(t, "10.2.0.1", "10.1.0.1", 64, 0)
	tests := []struct {
		name string
		pkt  []byte
		ttl  uint8
	}{
		{"ttl 0", lispPayload(nonceHdr, inner), 0},
		{"short shim", []byte{0x80, 0, 0}, 64},
		{"control instance-id", lispPayload([]byte{0x08, 0, 0, 0, 0xff, 0xff,
			0xff, 0}, inner), 64},
		{"bad inner version", lispPayload(nonceHdr, []byte{0x50, 1, 2, 3}), 64},
		{"no inner packet", nonceHdr, 64},
	}
	for _, tt := range tests {
		r := &fakeReader{pkts: [][]byte{tt.pkt}, ttl: tt.ttl}
		tun := new(tunWriter)
		if err := lispETRdataPlane(r, tun); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
		if len(tun.pkts) != 0 {
			t.Errorf("%s: packet written", tt.name)
		}
	}
}

func TestETRdataPlaneJumbo(t *testing.T) {
	inner := testIPv4(t, "10.2.0.1", "10.1.0.1", 64, 0)
	big := make([]byte, 9000)
	copy(big, inner)
	big[2], big[3] = byte(len(big)>>8), byte(len(big))

	r := &fakeReader{pkts: [][]byte{lispPayload(nonceHdr, big)}, ttl: 20}
	tun := new(tunWriter)
	if err := lispETRdataPlane(r, tun); err != nil {
		t.Fatal(err)
	}
	if len(tun.pkts) != 1 || len(tun.pkts[0]) != len(big) {
		t.Fatalf("jumbo packet not written whole: %d packets", len(tun.pkts))
	}
	if !bytes.Equal(tun.pkts[0][20:], big[20:]) {
		t.Error("jumbo payload changed")
	}
}

func TestETRdataPlaneDropsOversized(t *testing.T) {
	inner := testIPv4(t, "10.2.0.1", "10.1.0.1", 64, 0)
	huge := make([]byte, lispMaxDatagramLen+100)
	copy(huge, lispPayload(nonceHdr, inner))

	r := &fakeReader{pkts: [][]byte{huge}, ttl: 20}
	tun := new(tunWriter)
	if err := lispETRdataPlane(r, tun); err != nil {
		t.Fatal(err)
	}
	if len(tun.pkts) != 0 {
		t.Error("truncated datagram written to tun")
	}
}

func TestETRthreadStopsOnClose(t *testing.T) {
	inner := testIPv4(t, "10.2.0.1", "10.1.0.1", 64, 0)
	pkt := lispPayload(nonceHdr, inner)
	r := &fakeReader{pkts: [][]byte{pkt, pkt, pkt}, ttl: 5}
	tun := new(tunWriter)

	lispETRthread(r, tun)
	if len(tun.pkts) != 3 {
		t.Errorf("%d packets written", len(tun.pkts))
	}
}

type fakeSender struct {
	pkts  [][]byte
	dests []netip.Addr
}

func (s *fakeSender) lispSend(packet []byte, dest netip.Addr) error {
	s.pkts = append(s.pkts, append([]byte(nil), packet...))
	s.dests = append(s.dests, dest)
	return nil
}

func TestITRdataPlane(t *testing.T) {
	c := testControl(t)
	s := new(fakeSender)
	inner := testIPv4(t, "10.1.0.1", "10.2.0.1", 50, 0x10)

	if err := lispITRdataPlane(inner, c.cfg, c.db, s); err != nil {
		t.Fatal(err)
	}
	if len(s.pkts) != 1 || s.dests[0] != c.cfg.proxyETR {
		t.Fatalf("sent %d packets to %v", len(s.pkts), s.dests)
	}

	pkt := gopacket.NewPacket(s.pkts[0], layers.LayerTypeIPv4, gopacket.Default)
	ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		t.Fatal("no outer IPv4")
	}
	if !ip4.SrcIP.Equal(net.ParseIP("192.0.2.1")) ||
		!ip4.DstIP.Equal(net.ParseIP("198.51.100.1")) {
		t.Errorf("outer %s -> %s", ip4.SrcIP, ip4.DstIP)
	}
	if ip4.TTL != 50 || ip4.TOS != 0x10 {
		t.Errorf("outer ttl %d tos %#x", ip4.TTL, ip4.TOS)
	}
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		t.Fatal("no outer UDP")
	}
	if udp.DstPort != lisp.DataPort || udp.SrcPort < 0xc000 ||
		uint16(udp.SrcPort) != lispHashAddress(inner) {
		t.Errorf("ports %d -> %d", udp.SrcPort, udp.DstPort)
	}

	shim, err := lisp.AsDataHdr(udp.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !shim.NoncePresent() || !shim.IIDPresent() || shim.InstanceID() != 7 {
		t.Errorf("LISP header %x", []byte(shim[:lisp.DataHdrLen]))
	}
	if !bytes.Equal(udp.Payload[lisp.DataHdrLen:], inner) {
		t.Error("inner packet changed")
	}
}

func TestITRdataPlaneDrops(t *testing.T) {
	c := testControl(t)
	s := new(fakeSender)

	if err := lispITRdataPlane(testIPv4(t, "10.9.0.1", "10.2.0.1", 64, 0),
		c.cfg, c.db, s); err == nil {
		t.Error("non-EID source encapsulated")
	}
	if err := lispITRdataPlane([]byte{0x45, 0}, c.cfg, c.db, s); err == nil {
		t.Error("truncated packet encapsulated")
	}

	c.cfg.rloc4 = netip.Addr{}
	err := lispITRdataPlane(testIPv4(t, "10.1.0.1", "10.2.0.1", 64, 0),
		c.cfg, c.db, s)
	if err == nil {
		t.Error("encapsulated without a local RLOC")
	}
	if len(s.pkts) != 0 {
		t.Errorf("%d packets sent", len(s.pkts))
	}
}

func TestInnerAddresses(t *testing.T) {
	s, d, err := lispInnerAddresses(testIPv6(t, "2001:db8::1", "2001:db8::2",
		1, 0))
	if err != nil || s != netip.MustParseAddr("2001:db8::1") ||
		d != netip.MustParseAddr("2001:db8::2") {
		t.Errorf("IPv6 %s %s %v", s, d, err)
	}
	if _, _, err := lispInnerAddresses(make([]byte, 19)); err == nil {
		t.Error("short packet accepted")
	}
}

func TestHashAddress(t *testing.T) {
	a := testIPv4(t, "10.1.0.1", "10.2.0.1", 64, 0)
	b := testIPv4(t, "10.1.0.1", "10.2.0.1", 12, 0)
	if lispHashAddress(a) != lispHashAddress(b) {
		t.Error("same flow hashed to different ports")
	}
	if p := lispHashAddress(a); p < 0xc000 {
		t.Errorf("port %#x", p)
	}
	if lispHashAddress([]byte{0}) != 0xc000 {
		t.Error("unknown packet port")
	}
}

func TestLoadDatabaseKeepsTableOnError(t *testing.T) {
	c := testControl(t)
	before := len(c.db.lispLMLmappings())

	bad := lisp.NewMapping(addr("10.1.0.1"))
	bad.EID = nil
	if err := lispLoadDatabase(c.db, append(c.cfg.mappings, bad)); err == nil {
		t.Fatal("bad mapping accepted")
	}
	if n := len(c.db.lispLMLmappings()); n != before {
		t.Errorf("%d mappings, want %d", n, before)
	}
}

func TestTTLcheck(t *testing.T) {
	if !lispTTLcheck(0) || lispTTLcheck(1) {
		t.Error("lispTTLcheck")
	}
}
