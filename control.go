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
// control.go
//
// Control-plane processing on UDP port 4342. Map-Requests for local EIDs
// are answered from the database-mappings, a negative Map-Reply is returned
// otherwise. Map-Notifies are authenticated with the map-server key. The
// local mappings are registered with the map-server at startup and when
// the database-mappings change.
//
// ---------------------------------------------------------------------------

package main

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
	"github.com/warmspit/lisp-xtr/lisp"
)

//
// TTL in minutes and action of negative Map-Replies for EIDs that are not
// local.
//
const lispNegativeTTL = 15
const lispNegativeAction = lisp.NativelyForward

type lispControl struct {
	conn   *net.UDPConn
	cfg    *lispConfig
	db     *lispLMLtable
	tracer *lispTracer
}

//
// lispCreateControlSocket
//
// Bind the control port on all addresses of both families.
//
func lispCreateControlSocket() (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: lisp.ControlPort})
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %d", lisp.ControlPort)
	}
	return conn, nil
}

//
// lispControlThread
//
// Read control messages until the socket is closed.
//
func (c *lispControl) lispControlThread() {
	lprint("Listening on control port %d", lisp.ControlPort)

	buf := make([]byte, lisp.MaxIPPacketLen)
	for {
		n, src, err := c.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			clog.WithError(err).Warn("Control socket read failed")
			continue
		}
		pkt := append([]byte(nil), buf[:n]...)
		c.tracer.lispTrace(pkt, src, c.localAddrPort(src.Addr()))

		reply, dst, err := c.lispProcessControlPacket(pkt, src)
		if err != nil {
			lispCount(lispPathControl, "dropped", pkt)
			lprint("Drop control packet from %s: %s", red(src.String()), err)
			continue
		}
		if reply != nil {
			c.lispSendControl(reply, dst)
		}
	}
}

//
// localAddrPort
//
// The local RLOC in the family of remote, on the control port. Used for
// trace records.
//
func (c *lispControl) localAddrPort(remote netip.Addr) netip.AddrPort {
	local := c.lispLocalRLOC(remote)
	if !local.IsValid() {
		if remote.Unmap().Is4() {
			local = netip.IPv4Unspecified()
		} else {
			local = netip.IPv6Unspecified()
		}
	}
	return netip.AddrPortFrom(local, lisp.ControlPort)
}

//
// lispLocalRLOC
//
// Return the configured RLOC with the address family of remote.
//
func (c *lispControl) lispLocalRLOC(remote netip.Addr) netip.Addr {
	if remote.Unmap().Is4() {
		return c.cfg.rloc4
	}
	return c.cfg.rloc6
}

//
// lispSendControl
//
// Send the control message at the data cursor of b to dst.
//
func (c *lispControl) lispSendControl(b *lbuf.Buffer, dst netip.AddrPort) {
	pkt := b.Data()
	lprint("Send %s to %s", lisp.HdrString(b), green(dst.String()))
	c.tracer.lispTrace(pkt, c.localAddrPort(dst.Addr()), dst)

	if _, err := c.conn.WriteToUDPAddrPort(pkt, dst); err != nil {
		lispCount(lispPathControl, "send-error", pkt)
		clog.WithError(err).Warnf("Could not send to %s", dst)
		return
	}
	lispCount(lispPathControl, "sent", pkt)
}

//
// lispProcessControlPacket
//
// Process one control message from src. Returns a reply and where to send
// it, or a nil buffer when there is nothing to send.
//
func (c *lispControl) lispProcessControlPacket(pkt []byte,
	src netip.AddrPort) (*lbuf.Buffer, netip.AddrPort, error) {

	b := lbuf.Wrap(pkt)
	b.ResetLayer(lbuf.LISP)
	replyPort := src.Port()

	if lisp.MsgType(b) == lisp.EncapControl {
		sport, err := lisp.DecapsulateECM(b)
		if err != nil {
			return nil, src, err
		}
		lprint("Received %s from %s", lisp.ECMHdrString(b), red(src.String()))
		replyPort = sport
	}

	t := lisp.MsgType(b)
	lispCount(lispPathControl, t.String(), pkt)
	lprint("Received %s from %s", lisp.HdrString(b), red(src.String()))

	switch t {
	case lisp.MapRequest:
		return c.lispProcessMapRequest(b, src, replyPort)
	case lisp.MapReply:
		return nil, src, c.lispProcessMapReply(b)
	case lisp.MapNotify:
		return nil, src, c.lispProcessMapNotify(b)
	}
	return nil, src, errors.Wrapf(lisp.ErrUnsupportedType, "%s", t)
}

//
// lispProcessMapRequest
//
// Answer a Map-Request. The reply goes to the first ITR-RLOC of an address
// family we have an RLOC for, and to the source of the request otherwise.
//
func (c *lispControl) lispProcessMapRequest(b *lbuf.Buffer, src netip.AddrPort,
	replyPort uint16) (*lbuf.Buffer, netip.AddrPort, error) {

	msg, err := lisp.ParseMapRequest(b)
	if err != nil {
		return nil, src, err
	}
	if len(msg.EIDs) == 0 {
		return nil, src, errors.New("Map-Request without EID records")
	}
	nonce := msg.Hdr.Nonce()

	dst := netip.AddrPortFrom(src.Addr().Unmap(), replyPort)
	for _, rloc := range msg.ITRRLOCs {
		ip, ok := laddr.IPOf(rloc)
		if ok && c.lispLocalRLOC(ip).IsValid() {
			dst = netip.AddrPortFrom(ip, replyPort)
			break
		}
	}

	deid := msg.EIDs[0]
	db := c.db.lispLMLlookupEID(deid)
	if db == nil {
		lprint("EID %s not local, send negative Map-Reply, nonce 0x%x",
			green(deid.String()), nonce)
		reply, err := lisp.NegMapReplyCreate(deid, lispNegativeTTL,
			lispNegativeAction, nonce)
		return reply, dst, err
	}

	var probed laddr.Address
	if msg.Hdr.Probe() {
		if local := c.lispLocalRLOC(dst.Addr()); local.IsValid() {
			probed = laddr.FromNetIP(local)
		}
	}
	lprint("Reply for EID %s with %s, nonce 0x%x", green(deid.String()),
		db.mapping, nonce)
	reply, err := lisp.MapReplyCreate(db.mapping, nonce, probed)
	return reply, dst, err
}

//
// lispProcessMapReply
//
// Log the records of a Map-Reply. RLOC-probe replies name the probed
// locator.
//
func (c *lispControl) lispProcessMapReply(b *lbuf.Buffer) error {
	msg, err := lisp.ParseMapReply(b)
	if err != nil {
		return err
	}
	for i, m := range msg.Records {
		lprint("  %s", m)
		if p := msg.Probed[i]; p != nil {
			lprint("RLOC-probe reply, nonce 0x%x, probed %s", msg.Hdr.Nonce(),
				green(p.Addr.String()))
		}
	}
	return nil
}

//
// lispProcessMapNotify
//
// Authenticate a Map-Notify with the map-server key and log its records.
//
func (c *lispControl) lispProcessMapNotify(b *lbuf.Buffer) error {
	if err := lisp.CheckAuthField(b, c.cfg.mapServer.Key); err != nil {
		return err
	}
	msg, err := lisp.ParseMapNotify(b)
	if err != nil {
		return err
	}
	lprint("Map-Notify authenticated, nonce 0x%x, %d records",
		msg.Hdr.Nonce(), len(msg.Records))
	for _, m := range msg.Records {
		lprint("  %s", m)
	}
	return nil
}

//
// lispMapRegisterCreate
//
// Build an authenticated Map-Register for m. Behind a NAT the xTR-ID and
// site-ID are appended.
//
func (c *lispControl) lispMapRegisterCreate(m *lisp.Mapping) (*lbuf.Buffer,
	error) {

	var b *lbuf.Buffer
	var err error

	ms := c.cfg.mapServer
	if ms.NATTraversal {
		b, err = lisp.NATMapRegisterCreate(m, ms.Key, c.cfg.siteID,
			c.cfg.xtrID, c.cfg.keyType)
	} else {
		b, err = lisp.MapRegisterCreate(m, c.cfg.keyType)
	}
	if err != nil {
		return nil, err
	}
	hdr, _ := lisp.AsMapRegisterHdr(b.Layer(lbuf.LISP))
	hdr.SetNonce(rand.Uint64())
	hdr.SetWantMapNotify(true)

	// Header changed, sign again.
	if err := lisp.FillAuthData(b, c.cfg.keyType, ms.Key); err != nil {
		return nil, err
	}
	return b, nil
}

//
// lispSendMapRegisters
//
// Register every local mapping with the map-server once.
//
func (c *lispControl) lispSendMapRegisters() {
	if !c.cfg.mapServerAddr.IsValid() {
		return
	}
	dst := netip.AddrPortFrom(c.cfg.mapServerAddr, lisp.ControlPort)
	for _, m := range c.db.lispLMLmappings() {
		b, err := c.lispMapRegisterCreate(m)
		if err != nil {
			clog.WithError(err).Warnf("Could not build Map-Register for %s",
				m.EID)
			continue
		}
		c.lispSendControl(b, dst)
	}
}

func (c *lispControl) String() string {
	return fmt.Sprintf("map-server %s, key-type %s, nat-traversal %v",
		c.cfg.mapServerAddr, c.cfg.keyType, c.cfg.mapServer.NATTraversal)
}
