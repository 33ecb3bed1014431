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
// parse.go
//
// Parsing of received LISP control messages. Every function consumes what
// it parses by advancing the buffer data cursor. Any failure aborts the
// parse and leaves the cursor somewhere inside the message.
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

const (
	xtrIDLen  = 16
	siteIDLen = 8
)

// MsgType returns the type of the message at the LISP layer of b.
func MsgType(b *lbuf.Buffer) Type {
	return HdrType(b.Layer(lbuf.LISP))
}

//
// DecapsulateECM
//
// Strip an Encapsulated Control Message: the ECM header, the inner IP header
// and the inner UDP header. Returns the inner UDP source port. On return the
// LISP layer marks the start of the inner control message.
//
// An inner IPv4 header checksum mismatch is only logged. A zero inner UDP
// checksum is accepted, a wrong nonzero one is ErrBadChecksum.
//
func DecapsulateECM(b *lbuf.Buffer) (uint16, error) {
	b.ResetLayer(lbuf.LISPHdr)
	raw, err := b.Pull(ECMHdrLen)
	if err != nil {
		return 0, errors.Wrap(err, "ECM header")
	}
	ecm, err := AsECMHdr(raw)
	if err != nil {
		return 0, err
	}
	if ecm.Type() != EncapControl {
		return 0, errors.Wrapf(ErrUnsupportedType, "%s is not an ECM",
			ecm.Type())
	}

	b.ResetLayer(lbuf.L3)
	inner := b.Data()
	if len(inner) == 0 {
		return 0, errors.Wrap(lbuf.ErrTruncated, "ECM without inner packet")
	}

	var (
		src, dst netip.Addr
		hlen     int
	)
	switch inner[0] >> 4 {
	case 4:
		var ip4 layers.IPv4
		if err := ip4.DecodeFromBytes(inner, gopacket.NilDecodeFeedback); err != nil {
			return 0, errors.Wrapf(lbuf.ErrTruncated, "inner IPv4: %v", err)
		}
		if ip4.Protocol != layers.IPProtocolUDP {
			return 0, errors.Wrapf(ErrUnsupportedType, "inner protocol %s",
				ip4.Protocol)
		}
		hlen = int(ip4.IHL) * 4
		if IPChecksum(inner[:hlen]) != 0 {
			log.Debugf("DecapsulateECM: inner IPv4 header checksum failed")
		}
		src, _ = netip.AddrFromSlice(ip4.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(ip4.DstIP.To4())

	case 6:
		var ip6 layers.IPv6
		if err := ip6.DecodeFromBytes(inner, gopacket.NilDecodeFeedback); err != nil {
			return 0, errors.Wrapf(lbuf.ErrTruncated, "inner IPv6: %v", err)
		}
		if ip6.NextHeader != layers.IPProtocolUDP {
			return 0, errors.Wrapf(ErrUnsupportedType, "inner next header %s",
				ip6.NextHeader)
		}
		hlen = ipv6HdrLen
		src, _ = netip.AddrFromSlice(ip6.SrcIP.To16())
		dst, _ = netip.AddrFromSlice(ip6.DstIP.To16())

	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "inner IP version %d",
			inner[0]>>4)
	}

	if _, err := b.Pull(hlen); err != nil {
		return 0, errors.Wrap(err, "inner IP header")
	}

	b.ResetLayer(lbuf.L4)
	udp, err := b.Pull(udpHdrLen)
	if err != nil {
		return 0, errors.Wrap(err, "inner UDP header")
	}
	sport := binary.BigEndian.Uint16(udp[0:2])
	dport := binary.BigEndian.Uint16(udp[2:4])
	ulen := int(binary.BigEndian.Uint16(udp[4:6]))

	if binary.BigEndian.Uint16(udp[6:8]) != 0 {
		l4 := b.Layer(lbuf.L4)
		if ulen < udpHdrLen || ulen > len(l4) {
			return 0, errors.Wrapf(lbuf.ErrTruncated,
				"inner UDP length %d, have %d", ulen, len(l4))
		}
		if UDPChecksum(src, dst, l4[:ulen]) != 0 {
			log.Debugf("DecapsulateECM: inner UDP checksum failed")
			return 0, errors.WithStack(ErrBadChecksum)
		}
	}

	b.ResetLayer(lbuf.LISP)
	log.Debugf("%s, inner IP: %s -> %s, inner UDP: %d -> %d",
		ecm, src, dst, sport, dport)
	return sport, nil
}

func hdrLen(t Type) int {
	switch t {
	case MapRequest:
		return MapRequestHdrLen
	case MapReply:
		return MapReplyHdrLen
	case MapRegister:
		return MapRegisterHdrLen
	case MapNotify:
		return MapNotifyHdrLen
	case EncapControl:
		return ECMHdrLen
	}
	return 0
}

// PullHeader consumes the fixed header of the message at the LISP layer.
func PullHeader(b *lbuf.Buffer) ([]byte, error) {
	t := MsgType(b)
	n := hdrLen(t)
	if n == 0 {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s", t)
	}
	hdr, err := b.Pull(n)
	if err != nil {
		return nil, errors.Wrapf(err, "%s header", t)
	}
	return hdr, nil
}

//
// PullAuthField
//
// Consume an authentication record: the key-id and length header plus the
// data field sized for the key type. Returns the record header.
//
func PullAuthField(b *lbuf.Buffer) (AuthRecordHdr, error) {
	raw, err := b.Pull(AuthRecordHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "auth record")
	}
	hdr, _ := AsAuthRecordHdr(raw)
	n, err := AuthDataLen(hdr.KeyID())
	if err != nil {
		return nil, err
	}
	if _, err := b.Pull(n); err != nil {
		return nil, errors.Wrap(err, "auth data")
	}
	return hdr, nil
}

// ParseAddress decodes the address at the data cursor.
func ParseAddress(b *lbuf.Buffer) (laddr.Address, error) {
	a, n, err := laddr.Parse(b.Data())
	if err != nil {
		return nil, errors.Wrap(err, "parse address")
	}
	if _, err := b.Pull(n); err != nil {
		return nil, err
	}
	return a, nil
}

//
// ParseEIDRecord
//
// Decode an EID record. The mask length from the record header overrides
// whatever prefix length the address carries.
//
func ParseEIDRecord(b *lbuf.Buffer) (laddr.Address, error) {
	raw, err := b.Pull(EIDRecordHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "EID record")
	}
	hdr, _ := AsEIDRecordHdr(raw)
	eid, err := ParseAddress(b)
	if err != nil {
		return nil, err
	}
	return laddr.SetPlen(eid, int(hdr.MaskLen())), nil
}

//
// ParseITRRLOCs
//
// Decode the ITR-RLOC list of the Map-Request at the LISP layer. The header
// stores the count minus one.
//
func ParseITRRLOCs(b *lbuf.Buffer) ([]laddr.Address, error) {
	hdr, err := AsMapRequestHdr(b.Layer(lbuf.LISP))
	if err != nil {
		return nil, err
	}
	count := int(hdr.ITRRLOCCount()) + 1
	rlocs := make([]laddr.Address, 0, count)
	for i := 0; i < count; i++ {
		a, err := ParseAddress(b)
		if err != nil {
			return nil, errors.Wrapf(err, "ITR-RLOC %d of %d", i+1, count)
		}
		rlocs = append(rlocs, a)
	}
	return rlocs, nil
}

//
// ParseLocator
//
// Decode one locator record. Returns the locator and whether the record
// carries the probed bit.
//
func ParseLocator(b *lbuf.Buffer) (*Locator, bool, error) {
	raw, err := b.Pull(LocatorHdrLen)
	if err != nil {
		return nil, false, errors.Wrap(err, "locator record")
	}
	hdr, _ := AsLocatorHdr(raw)
	addr, err := ParseAddress(b)
	if err != nil {
		return nil, false, err
	}

	loc := &Locator{
		Addr:      addr,
		Priority:  hdr.Priority(),
		Weight:    hdr.Weight(),
		MPriority: hdr.MPriority(),
		MWeight:   hdr.MWeight(),
		Local:     hdr.Local(),
		State:     Down,
	}
	if hdr.Reachable() {
		loc.State = Up
	}
	log.Debugf("    %s, addr: %s", hdr, addr)
	return loc, hdr.Probed(), nil
}

//
// ParseMappingRecord
//
// Decode a mapping record with its locators. At most one locator may carry
// the probed bit; it is returned as the second value. A locator repeating
// an address already in the record is logged and dropped.
//
func ParseMappingRecord(b *lbuf.Buffer) (*Mapping, *Locator, error) {
	raw, err := b.Pull(MappingRecordHdrLen)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mapping record")
	}
	hdr, _ := AsMappingRecordHdr(raw)

	eid, err := ParseAddress(b)
	if err != nil {
		return nil, nil, err
	}
	eid = laddr.SetPlen(eid, int(hdr.EIDMaskLen()))
	log.Debugf("  %s, eid: %s", hdr, eid)

	m := NewMapping(eid)
	m.TTL = hdr.TTL()
	m.Action = hdr.Action()
	m.Authoritative = hdr.Authoritative()
	m.MapVersion = hdr.MapVersion()

	var probed *Locator
	for i := 0; i < int(hdr.LocatorCount()); i++ {
		loc, isProbed, err := ParseLocator(b)
		if err != nil {
			return nil, nil, err
		}
		if isProbed {
			if probed != nil {
				return nil, nil, errors.Wrapf(ErrMultipleProbed,
					"%s and %s in %s", probed.Addr, loc.Addr, eid)
			}
			probed = loc
		}

		err = m.AddLocator(loc)
		if errors.Cause(err) == ErrExist {
			log.Debugf("ParseMappingRecord: dropping duplicate locator %s",
				loc.Addr)
			if probed == loc {
				probed = m.FindLocator(loc.Addr)
			}
			continue
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return m, probed, nil
}

// MapRequestMsg is a decoded Map-Request.
type MapRequestMsg struct {
	Hdr       MapRequestHdr
	SourceEID laddr.Address
	ITRRLOCs  []laddr.Address
	EIDs      []laddr.Address

	// MapReply is the sender's own mapping when the M bit is set.
	MapReply *Mapping
}

// MapReplyMsg is a decoded Map-Reply.
type MapReplyMsg struct {
	Hdr     MapReplyHdr
	Records []*Mapping
	Probed  []*Locator
}

// MapRegisterMsg is a decoded Map-Register.
type MapRegisterMsg struct {
	Hdr     MapRegisterHdr
	KeyID   KeyType
	Records []*Mapping
	XTRID   []byte
	SiteID  []byte
}

// MapNotifyMsg is a decoded Map-Notify.
type MapNotifyMsg struct {
	Hdr     MapNotifyHdr
	KeyID   KeyType
	Records []*Mapping
	XTRID   []byte
	SiteID  []byte
}

func pullTypedHeader(b *lbuf.Buffer, want Type) ([]byte, error) {
	if t := MsgType(b); t != want {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s, want %s", t, want)
	}
	raw, err := PullHeader(b)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

// ParseMapRequest decodes the Map-Request at the LISP layer of b.
func ParseMapRequest(b *lbuf.Buffer) (*MapRequestMsg, error) {
	raw, err := pullTypedHeader(b, MapRequest)
	if err != nil {
		return nil, err
	}
	msg := &MapRequestMsg{Hdr: MapRequestHdr(raw)}

	if msg.SourceEID, err = ParseAddress(b); err != nil {
		return nil, errors.Wrap(err, "source EID")
	}
	if msg.ITRRLOCs, err = ParseITRRLOCs(b); err != nil {
		return nil, err
	}
	for i := 0; i < int(msg.Hdr.RecordCount()); i++ {
		eid, err := ParseEIDRecord(b)
		if err != nil {
			return nil, err
		}
		msg.EIDs = append(msg.EIDs, eid)
	}
	if msg.Hdr.MapDataPresent() {
		if msg.MapReply, _, err = ParseMappingRecord(b); err != nil {
			return nil, errors.Wrap(err, "map-reply record")
		}
	}
	return msg, nil
}

// ParseMapReply decodes the Map-Reply at the LISP layer of b.
func ParseMapReply(b *lbuf.Buffer) (*MapReplyMsg, error) {
	raw, err := pullTypedHeader(b, MapReply)
	if err != nil {
		return nil, err
	}
	msg := &MapReplyMsg{Hdr: MapReplyHdr(raw)}
	for i := 0; i < int(msg.Hdr.RecordCount()); i++ {
		m, probed, err := ParseMappingRecord(b)
		if err != nil {
			return nil, err
		}
		msg.Records = append(msg.Records, m)
		msg.Probed = append(msg.Probed, probed)
	}
	return msg, nil
}

func parseRegistration(b *lbuf.Buffer, count int, xtrID bool) (
	KeyType, []*Mapping, []byte, []byte, error) {

	auth, err := PullAuthField(b)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	var records []*Mapping
	for i := 0; i < count; i++ {
		m, _, err := ParseMappingRecord(b)
		if err != nil {
			return 0, nil, nil, nil, err
		}
		records = append(records, m)
	}
	if !xtrID {
		return auth.KeyID(), records, nil, nil, nil
	}
	x, err := b.Pull(xtrIDLen)
	if err != nil {
		return 0, nil, nil, nil, errors.Wrap(err, "xTR-ID")
	}
	s, err := b.Pull(siteIDLen)
	if err != nil {
		return 0, nil, nil, nil, errors.Wrap(err, "site-ID")
	}
	return auth.KeyID(), records, append([]byte(nil), x...),
		append([]byte(nil), s...), nil
}

// ParseMapRegister decodes the Map-Register at the LISP layer of b.
func ParseMapRegister(b *lbuf.Buffer) (*MapRegisterMsg, error) {
	raw, err := pullTypedHeader(b, MapRegister)
	if err != nil {
		return nil, err
	}
	msg := &MapRegisterMsg{Hdr: MapRegisterHdr(raw)}
	msg.KeyID, msg.Records, msg.XTRID, msg.SiteID, err = parseRegistration(b,
		int(msg.Hdr.RecordCount()), msg.Hdr.XTRIDPresent())
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ParseMapNotify decodes the Map-Notify at the LISP layer of b.
func ParseMapNotify(b *lbuf.Buffer) (*MapNotifyMsg, error) {
	raw, err := pullTypedHeader(b, MapNotify)
	if err != nil {
		return nil, err
	}
	msg := &MapNotifyMsg{Hdr: MapNotifyHdr(raw)}
	msg.KeyID, msg.Records, msg.XTRID, msg.SiteID, err = parseRegistration(b,
		int(msg.Hdr.RecordCount()), msg.Hdr.XTRIDPresent())
	if err != nil {
		return nil, err
	}
	return msg, nil
}
