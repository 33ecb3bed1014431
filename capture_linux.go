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
// capture_linux.go
//
// Zero-copy AF_PACKET capture of LISP encapsulated packets with IPv6 RLOCs.
// Used instead of the IPv6 data socket on kernels that cannot be told to
// accept UDP checksum 0. The socket is opened in SOCK_DGRAM mode so the
// captured packet starts at the IPv6 header.
//
// ---------------------------------------------------------------------------

package main

import (
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/lisp"
	"golang.org/x/net/bpf"
)

//
// lispIPv6CaptureFilter
//
// "ip6 and udp and dst port 4341" for packets without extension headers,
// offsets relative to the IPv6 header.
//
func lispIPv6CaptureFilter() ([]bpf.RawInstruction, error) {
	return bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 0, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpAnd, Val: 0xf0},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x60, SkipTrue: 5},
		bpf.LoadAbsolute{Off: 6, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(layers.IPProtocolUDP),
			SkipTrue: 3},
		bpf.LoadAbsolute{Off: 42, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: lisp.DataPort, SkipTrue: 1},
		bpf.RetConstant{Val: 65535},
		bpf.RetConstant{Val: 0},
	})
}

type lispIPv6Capture struct {
	tp     *afpacket.TPacket
	ip6    layers.IPv6
	udp    layers.UDP
	closed atomic.Bool
}

//
// lispCreateDecapIPv6capture
//
// Open the AF_PACKET socket on device, or on all interfaces when device is
// empty, and install the capture filter.
//
func lispCreateDecapIPv6capture(device string) (*lispIPv6Capture, error) {
	opts := []interface{}{
		afpacket.SocketDgram,
		afpacket.OptPollTimeout(time.Second),
		afpacket.TPacketVersion3,
	}
	if device != "" {
		opts = append(opts, afpacket.OptInterface(device))
	}
	tp, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "afpacket.NewTPacket")
	}

	filter, err := lispIPv6CaptureFilter()
	if err != nil {
		tp.Close()
		return nil, errors.Wrap(err, "assemble capture filter")
	}
	if err := tp.SetBPF(filter); err != nil {
		tp.Close()
		return nil, errors.Wrap(err, "set capture filter")
	}
	return &lispIPv6Capture{tp: tp}, nil
}

//
// ReadData
//
// Read the next captured packet and copy the part after the outer UDP
// header into b. Poll timeouts are retried until Close() is called.
//
func (c *lispIPv6Capture) ReadData(b []byte) (int, uint8, uint8,
	netip.AddrPort, error) {

	for {
		if c.closed.Load() {
			c.tp.Close()
			return 0, 0, 0, netip.AddrPort{}, net.ErrClosed
		}
		data, _, err := c.tp.ZeroCopyReadPacketData()
		if err == afpacket.ErrTimeout {
			continue
		}
		if err != nil {
			return 0, 0, 0, netip.AddrPort{}, err
		}
		return lispStripIPv6UDP(data, b, &c.ip6, &c.udp)
	}
}

//
// lispStripIPv6UDP
//
// Decode the outer IPv6 and UDP headers of pkt, copy the UDP payload into b
// and return the outer hop limit, traffic class and source.
//
func lispStripIPv6UDP(pkt, b []byte, ip6 *layers.IPv6,
	udp *layers.UDP) (int, uint8, uint8, netip.AddrPort, error) {

	if err := ip6.DecodeFromBytes(pkt, gopacket.NilDecodeFeedback); err != nil {
		return 0, 0, 0, netip.AddrPort{}, errors.Wrap(err, "outer IPv6 header")
	}
	if ip6.NextHeader != layers.IPProtocolUDP {
		return 0, 0, 0, netip.AddrPort{}, errors.Errorf("next header %s",
			ip6.NextHeader)
	}
	if err := udp.DecodeFromBytes(ip6.Payload, gopacket.NilDecodeFeedback); err != nil {
		return 0, 0, 0, netip.AddrPort{}, errors.Wrap(err, "outer UDP header")
	}

	addr, _ := netip.AddrFromSlice(ip6.SrcIP)
	src := netip.AddrPortFrom(addr, uint16(udp.SrcPort))
	n := copy(b, udp.Payload)
	if n < len(udp.Payload) {
		return 0, 0, 0, src, errors.Errorf("%d byte packet truncated",
			len(udp.Payload))
	}
	return n, ip6.HopLimit, ip6.TrafficClass, src, nil
}

//
// Close
//
// The ring is unmapped by the reading thread on its next poll timeout, not
// here, since the reader may be inside the ring.
//
func (c *lispIPv6Capture) Close() error {
	c.closed.Store(true)
	return nil
}
