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
// socket_linux.go
//
// Sockets used by the data-plane. The ETR reads LISP encapsulated packets
// from UDP port 4341 and needs the outer TTL and ToS of each packet, which
// the kernel passes as control messages. The ITR sends fully built outer
// headers on raw sockets.
//
// ---------------------------------------------------------------------------

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/lisp"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

//
// lispDataReader
//
// Reads one LISP encapsulated datagram starting at the LISP header, with
// the TTL and ToS (hop limit and traffic class for IPv6) of the outer
// header.
//
type lispDataReader interface {
	ReadData(b []byte) (n int, ttl, tos uint8, src netip.AddrPort, err error)
	Close() error
}

func setsockopts(opts ...[3]int) func(string, string, syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			for _, o := range opts {
				if serr = unix.SetsockoptInt(int(fd), o[0], o[1], o[2]); serr != nil {
					serr = errors.Wrapf(serr, "setsockopt %d/%d", o[0], o[1])
					return
				}
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}

type lispIPv4DataSocket struct {
	conn *net.UDPConn
	oob  []byte
}

//
// lispCreateDecapSocket
//
// Create UDP datagram socket and bind to well-known LISP port 4341. The
// socket asks for IP_TTL and IP_TOS control messages.
//
func lispCreateDecapSocket() (*lispIPv4DataSocket, error) {
	lc := net.ListenConfig{Control: setsockopts(
		[3]int{unix.IPPROTO_IP, unix.IP_RECVTTL, 1},
		[3]int{unix.IPPROTO_IP, unix.IP_RECVTOS, 1},
	)}
	pc, err := lc.ListenPacket(context.Background(), "udp4",
		fmt.Sprintf(":%d", lisp.DataPort))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %d", lisp.DataPort)
	}
	return &lispIPv4DataSocket{
		conn: pc.(*net.UDPConn),
		oob:  make([]byte, unix.CmsgSpace(4)*2),
	}, nil
}

func (s *lispIPv4DataSocket) ReadData(b []byte) (int, uint8, uint8,
	netip.AddrPort, error) {

	n, oobn, _, src, err := s.conn.ReadMsgUDPAddrPort(b, s.oob)
	if err != nil {
		return 0, 0, 0, src, err
	}
	ttl, tos, err := lispParseTTLandTOS(s.oob[:oobn])
	return n, ttl, tos, src, err
}

func (s *lispIPv4DataSocket) Close() error {
	return s.conn.Close()
}

//
// lispParseTTLandTOS
//
// Pull TTL and ToS out of IPv4 socket control messages. IP_TTL carries an
// int, IP_TOS a single byte.
//
func lispParseTTLandTOS(oob []byte) (uint8, uint8, error) {
	var ttl, tos uint8

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0, 0, errors.Wrap(err, "control messages")
	}
	foundTTL := false
	for _, m := range msgs {
		if m.Header.Level != unix.IPPROTO_IP || len(m.Data) == 0 {
			continue
		}
		switch m.Header.Type {
		case unix.IP_TTL:
			if len(m.Data) >= 4 {
				ttl = uint8(binary.NativeEndian.Uint32(m.Data))
			} else {
				ttl = m.Data[0]
			}
			foundTTL = true
		case unix.IP_TOS:
			tos = m.Data[0]
		}
	}
	if !foundTTL {
		return 0, 0, errors.New("no IP_TTL control message")
	}
	return ttl, tos, nil
}

type lispIPv6DataSocket struct {
	conn *net.UDPConn
	pc   *ipv6.PacketConn
}

//
// lispCreateDecapIPv6Socket
//
// IPv6 version of lispCreateDecapSocket(). The kernel drops UDP packets
// with checksum 0 unless UDP_NO_CHECK6_RX is set, and encapsulating routers
// commonly send checksum 0.
//
func lispCreateDecapIPv6Socket() (*lispIPv6DataSocket, error) {
	lc := net.ListenConfig{Control: setsockopts(
		[3]int{unix.IPPROTO_UDP, unix.UDP_NO_CHECK6_RX, 1},
	)}
	pc, err := lc.ListenPacket(context.Background(), "udp6",
		fmt.Sprintf("[::]:%d", lisp.DataPort))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on IPv6 port %d", lisp.DataPort)
	}

	s := &lispIPv6DataSocket{conn: pc.(*net.UDPConn)}
	s.pc = ipv6.NewPacketConn(s.conn)
	err = s.pc.SetControlMessage(ipv6.FlagHopLimit|ipv6.FlagTrafficClass, true)
	if err != nil {
		s.conn.Close()
		return nil, errors.Wrap(err, "IPv6 control messages")
	}
	return s, nil
}

func (s *lispIPv6DataSocket) ReadData(b []byte) (int, uint8, uint8,
	netip.AddrPort, error) {

	n, cm, addr, err := s.pc.ReadFrom(b)
	if err != nil {
		return 0, 0, 0, netip.AddrPort{}, err
	}
	var src netip.AddrPort
	if ua, ok := addr.(*net.UDPAddr); ok {
		src = ua.AddrPort()
	}
	if cm == nil {
		return n, 0, 0, src, errors.New("no IPv6 control message")
	}
	return n, uint8(cm.HopLimit), uint8(cm.TrafficClass), src, nil
}

func (s *lispIPv6DataSocket) Close() error {
	return s.conn.Close()
}

//
// lispRawSockets
//
// Raw sockets for IPv4 and IPv6 used to send packets after the LISP, UDP
// and outer IP headers are prepended.
//
type lispRawSockets struct {
	fd4, fd6 int
}

//
// lispCreateEncapSocket
//
// Create raw sockets for IPv4 and IPv6. IPPROTO_RAW implies the outer
// header is supplied by us.
//
func lispCreateEncapSocket() (*lispRawSockets, error) {
	s4, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW|unix.SOCK_CLOEXEC,
		unix.IPPROTO_RAW)
	if err != nil {
		return nil, errors.Wrap(err, "IPv4 encap socket")
	}
	s6, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW|unix.SOCK_CLOEXEC,
		unix.IPPROTO_RAW)
	if err != nil {
		unix.Close(s4)
		return nil, errors.Wrap(err, "IPv6 encap socket")
	}
	return &lispRawSockets{fd4: s4, fd6: s6}, nil
}

//
// lispSend
//
// Send a packet that starts with its outer IP header to dest.
//
func (r *lispRawSockets) lispSend(packet []byte, dest netip.Addr) error {
	dest = dest.Unmap()
	if dest.Is4() {
		sa := &unix.SockaddrInet4{Addr: dest.As4()}
		return errors.Wrapf(unix.Sendto(r.fd4, packet, 0, sa), "send to %s", dest)
	}
	sa := &unix.SockaddrInet6{Addr: dest.As16()}
	return errors.Wrapf(unix.Sendto(r.fd6, packet, 0, sa), "send to %s", dest)
}

func (r *lispRawSockets) Close() error {
	unix.Close(r.fd4)
	return unix.Close(r.fd6)
}
