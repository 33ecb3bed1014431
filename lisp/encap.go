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
// encap.go
//
// Encapsulation of control and data packets and removal of the LISP data
// header on receive. Outer headers are serialized with gopacket and then
// pushed into the headroom of the buffer.
//
// ---------------------------------------------------------------------------

package lisp

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
)

const defaultTTL = 255

var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

//
// pushOuter
//
// Prepend IP, UDP and an optional shim header to the data of b. The L3, L4
// and (with a shim) LISPHdr layers are set to the pushed headers.
//
func pushOuter(b *lbuf.Buffer, lp, rp uint16, src, dst netip.Addr, ttl,
	tos uint8, shim gopacket.SerializableLayer) error {

	if !src.IsValid() || !dst.IsValid() || src.Is4() != dst.Is4() {
		return errors.Wrapf(ErrAddress, "outer addresses %s -> %s", src, dst)
	}

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(lp),
		DstPort: layers.UDPPort(rp),
	}
	var (
		ip    gopacket.SerializableLayer
		ipLen int
	)
	if src.Is4() {
		ip4 := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TOS:      tos,
			TTL:      ttl,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src.AsSlice(),
			DstIP:    dst.AsSlice(),
		}
		udp.SetNetworkLayerForChecksum(ip4)
		ip, ipLen = ip4, ipv4HdrLen
	} else {
		ip6 := &layers.IPv6{
			Version:      6,
			TrafficClass: tos,
			HopLimit:     ttl,
			NextHeader:   layers.IPProtocolUDP,
			SrcIP:        src.AsSlice(),
			DstIP:        dst.AsSlice(),
		}
		udp.SetNetworkLayerForChecksum(ip6)
		ip, ipLen = ip6, ipv6HdrLen
	}

	stack := []gopacket.SerializableLayer{ip, udp}
	if shim != nil {
		stack = append(stack, shim)
	}
	stack = append(stack, gopacket.Payload(b.Data()))

	sb := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(sb, serializeOpts, stack...); err != nil {
		return errors.Wrap(err, "serialize outer headers")
	}
	out := sb.Bytes()
	hlen := len(out) - b.Size()
	shimLen := hlen - ipLen - udpHdrLen
	if shimLen < 0 {
		return errors.Errorf("lisp: serialized %d header bytes", hlen)
	}

	if shimLen > 0 {
		p, err := b.Push(shimLen)
		if err != nil {
			return errors.Wrap(err, "push LISP header")
		}
		copy(p, out[ipLen+udpHdrLen:hlen])
		b.ResetLayer(lbuf.LISPHdr)
	}
	p, err := b.Push(udpHdrLen)
	if err != nil {
		return errors.Wrap(err, "push UDP header")
	}
	copy(p, out[ipLen:ipLen+udpHdrLen])
	b.ResetLayer(lbuf.L4)

	p, err = b.Push(ipLen)
	if err != nil {
		return errors.Wrap(err, "push IP header")
	}
	copy(p, out[:ipLen])
	b.ResetLayer(lbuf.L3)
	return nil
}

// PushUDPAndIP prepends UDP and IP headers with computed lengths and
// checksums.
func PushUDPAndIP(b *lbuf.Buffer, lp, rp uint16, src, dst netip.Addr) error {
	return pushOuter(b, lp, rp, src, dst, defaultTTL, 0, nil)
}

func outerAddrs(la, ra laddr.Address) (netip.Addr, netip.Addr, error) {
	src, ok := laddr.IPOf(la)
	if !ok {
		return src, src, errors.Wrapf(ErrAddress, "local address %v", la)
	}
	dst, ok := laddr.IPOf(ra)
	if !ok {
		return src, dst, errors.Wrapf(ErrAddress, "remote address %v", ra)
	}
	return src, dst, nil
}

//
// ECMEncap
//
// Wrap the control message at the LISP layer in inner UDP and IP headers
// and an ECM header. On return the data cursor and the LISPHdr layer are at
// the ECM header.
//
func ECMEncap(b *lbuf.Buffer, lp, rp uint16, la, ra laddr.Address) error {
	src, dst, err := outerAddrs(la, ra)
	if err != nil {
		return err
	}
	b.ResetLayer(lbuf.LISP)
	if err := PushUDPAndIP(b, lp, rp, src, dst); err != nil {
		return err
	}

	raw, err := b.Push(ECMHdrLen)
	if err != nil {
		return errors.Wrap(err, "push ECM header")
	}
	ECMHdr(raw).Init()
	b.ResetLayer(lbuf.LISPHdr)
	log.Debugf("ECMEncap: %s, inner %s:%d -> %s:%d", ECMHdrString(b),
		src, lp, dst, rp)
	return nil
}

// EncapData prepends a LISP data header with no flags set and the outer
// UDP and IP headers to the IP packet at the data cursor.
func EncapData(b *lbuf.Buffer, lp, rp uint16, la, ra laddr.Address) error {
	return EncapDataHeader(b, &LISPData{}, lp, rp, la, ra)
}

//
// EncapDataHeader
//
// Prepend hdr and the outer UDP and IP headers to the IP packet at the data
// cursor. The outer TTL and ToS are copied from the inner packet.
//
func EncapDataHeader(b *lbuf.Buffer, hdr *LISPData, lp, rp uint16, la,
	ra laddr.Address) error {

	src, dst, err := outerAddrs(la, ra)
	if err != nil {
		return err
	}
	ttl, tos, err := innerTTLAndTOS(b.Data())
	if err != nil {
		return err
	}
	return pushOuter(b, lp, rp, src, dst, ttl, tos, hdr)
}

// DecapData consumes the LISP data header at the data cursor. On return
// the data cursor and the L3 layer are at the inner IP header.
func DecapData(b *lbuf.Buffer) (DataHdr, error) {
	b.ResetLayer(lbuf.LISPHdr)
	raw, err := b.Pull(DataHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "LISP data header")
	}
	b.ResetLayer(lbuf.L3)
	return DataHdr(raw), nil
}

func innerTTLAndTOS(pkt []byte) (uint8, uint8, error) {
	if len(pkt) == 0 {
		return 0, 0, errors.Wrap(lbuf.ErrTruncated, "empty inner packet")
	}
	switch pkt[0] >> 4 {
	case 4:
		if len(pkt) < ipv4HdrLen {
			return 0, 0, errors.Wrap(lbuf.ErrTruncated, "inner IPv4 header")
		}
		return pkt[8], pkt[1], nil
	case 6:
		if len(pkt) < ipv6HdrLen {
			return 0, 0, errors.Wrap(lbuf.ErrTruncated, "inner IPv6 header")
		}
		return pkt[7], pkt[0]<<4 | pkt[1]>>4, nil
	}
	return 0, 0, errors.Errorf("lisp: inner IP version %d", pkt[0]>>4)
}

//
// SetInnerTTLAndTOS
//
// Rewrite the TTL and ToS of the IP packet in pkt. For IPv4 the header
// checksum is recomputed. For IPv6 the hop limit and traffic class are set.
//
func SetInnerTTLAndTOS(pkt []byte, ttl, tos uint8) error {
	if len(pkt) == 0 {
		return errors.Wrap(lbuf.ErrTruncated, "empty packet")
	}
	switch pkt[0] >> 4 {
	case 4:
		ihl := int(pkt[0]&0x0f) * 4
		if ihl < ipv4HdrLen || len(pkt) < ihl {
			return errors.Wrap(lbuf.ErrTruncated, "IPv4 header")
		}
		pkt[1] = tos
		pkt[8] = ttl
		pkt[10], pkt[11] = 0, 0
		binary.BigEndian.PutUint16(pkt[10:12], IPChecksum(pkt[:ihl]))
	case 6:
		if len(pkt) < ipv6HdrLen {
			return errors.Wrap(lbuf.ErrTruncated, "IPv6 header")
		}
		pkt[0] = pkt[0]&0xf0 | tos>>4
		pkt[1] = tos<<4 | pkt[1]&0x0f
		pkt[7] = ttl
	default:
		return errors.Errorf("lisp: IP version %d", pkt[0]>>4)
	}
	return nil
}
