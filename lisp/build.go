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
// build.go
//
// Building outgoing LISP control messages. Create() reserves headroom for
// encapsulation and writes the message header; the Put functions append
// records at the tail and keep the header record count current.
//
// ---------------------------------------------------------------------------

package lisp

import (
	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
)

//
// Create
//
// Allocate a message buffer and write the header for msgType with default
// field values. The LISP layer marks the header start. EncapControl reserves
// the buffer and writes nothing: the ECM header is pushed later by
// ECMEncap().
//
func Create(msgType Type) (*lbuf.Buffer, error) {
	b := lbuf.NewWithHeadroom(MaxIPPacketLen, MaxEncapLen)
	b.ResetLayer(lbuf.LISP)

	switch msgType {
	case MapRequest:
		raw, err := b.PutZero(MapRequestHdrLen)
		if err != nil {
			return nil, err
		}
		MapRequestHdr(raw).Init()
	case MapReply:
		raw, err := b.PutZero(MapReplyHdrLen)
		if err != nil {
			return nil, err
		}
		MapReplyHdr(raw).Init()
	case MapRegister:
		raw, err := b.PutZero(MapRegisterHdrLen)
		if err != nil {
			return nil, err
		}
		MapRegisterHdr(raw).Init()
	case MapNotify:
		raw, err := b.PutZero(MapNotifyHdrLen)
		if err != nil {
			return nil, err
		}
		MapNotifyHdr(raw).Init()
	case EncapControl:
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "create %s", msgType)
	}
	return b, nil
}

// incrementRecordCount bumps the record count of the header at the LISP
// layer.
func incrementRecordCount(b *lbuf.Buffer) error {
	msg := b.Layer(lbuf.LISP)
	var (
		get func() uint8
		set func(uint8)
	)
	switch t := HdrType(msg); t {
	case MapRequest:
		h, err := AsMapRequestHdr(msg)
		if err != nil {
			return err
		}
		get, set = h.RecordCount, h.SetRecordCount
	case MapReply:
		h, err := AsMapReplyHdr(msg)
		if err != nil {
			return err
		}
		get, set = h.RecordCount, h.SetRecordCount
	case MapRegister:
		h, err := AsMapRegisterHdr(msg)
		if err != nil {
			return err
		}
		get, set = h.RecordCount, h.SetRecordCount
	case MapNotify:
		h, err := AsMapNotifyHdr(msg)
		if err != nil {
			return err
		}
		get, set = h.RecordCount, h.SetRecordCount
	default:
		return errors.Wrapf(ErrUnsupportedType, "record count of %s", t)
	}
	if get() == 0xff {
		return errors.Wrap(ErrTooMany, "record count")
	}
	set(get() + 1)
	return nil
}

// PutAddress appends the encoding of a and returns the written bytes.
func PutAddress(b *lbuf.Buffer, a laddr.Address) ([]byte, error) {
	n := laddr.SizeToWrite(a)
	if n <= 0 {
		return nil, errors.Wrapf(ErrAddress, "cannot encode %v", a)
	}
	p, err := b.Put(n)
	if err != nil {
		return nil, errors.Wrapf(err, "address %s", a)
	}
	if _, err := laddr.Write(p, a); err != nil {
		return nil, err
	}
	return p, nil
}

//
// PutLocator
//
// Append a locator record. The local bit is always set. A locator that is
// down is advertised with priority 255. When the locator has an RTR the
// RTR address is written in place of the locator address.
//
func PutLocator(b *lbuf.Buffer, loc *Locator) (LocatorHdr, error) {
	raw, err := b.PutZero(LocatorHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "locator record")
	}
	hdr := LocatorHdr(raw)

	if loc.State == Up {
		hdr.SetPriority(loc.Priority)
	} else {
		hdr.SetPriority(UnusedRLOCPriority)
	}
	hdr.SetWeight(loc.Weight)
	hdr.SetMPriority(loc.MPriority)
	hdr.SetMWeight(loc.MWeight)
	hdr.SetLocal(true)
	hdr.SetReachable(loc.State == Up)

	addr := loc.Addr
	if !laddr.IsNoAddr(loc.RTR) {
		addr = loc.RTR
	}
	if _, err := PutAddress(b, addr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// sameIP compares the IP portions of two addresses.
func sameIP(a, b laddr.Address) bool {
	ia, ok := laddr.IPOf(a)
	if !ok {
		return false
	}
	ib, ok := laddr.IPOf(b)
	return ok && ia == ib
}

//
// PutMapping
//
// Append a mapping record for m. Locators without an address are skipped
// and the locator count written is the number of records actually
// appended. The locator whose IP equals probed, if any, gets the probed bit.
//
func PutMapping(b *lbuf.Buffer, m *Mapping, probed laddr.Address) (
	MappingRecordHdr, error) {

	raw, err := b.PutZero(MappingRecordHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "mapping record")
	}
	rec := MappingRecordHdr(raw)
	rec.SetTTL(m.TTL)
	rec.SetEIDMaskLen(uint8(laddr.Plen(m.EID)))
	rec.SetAction(m.Action)
	rec.SetAuthoritative(m.Authoritative)
	rec.SetMapVersion(m.MapVersion)

	if _, err := PutAddress(b, m.EID); err != nil {
		return nil, err
	}

	count := 0
	for _, group := range m.LocatorGroups() {
		for _, loc := range group {
			if laddr.IsNoAddr(loc.Addr) {
				continue
			}
			hdr, err := PutLocator(b, loc)
			if err != nil {
				return nil, err
			}
			if probed != nil && sameIP(loc.Addr, probed) {
				hdr.SetProbed(true)
			}
			count++
		}
	}
	if count > 0xff {
		return nil, errors.Wrapf(ErrTooMany, "%d locators", count)
	}
	rec.SetLocatorCount(uint8(count))

	if err := incrementRecordCount(b); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutNegativeMapping appends a mapping record with no locators.
func PutNegativeMapping(b *lbuf.Buffer, eid laddr.Address, ttl uint32,
	action Action) (MappingRecordHdr, error) {

	raw, err := b.PutZero(MappingRecordHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "mapping record")
	}
	rec := MappingRecordHdr(raw)
	rec.SetTTL(ttl)
	rec.SetEIDMaskLen(uint8(laddr.Plen(eid)))
	rec.SetAction(action)
	rec.SetAuthoritative(true)

	if _, err := PutAddress(b, eid); err != nil {
		return nil, err
	}
	if err := incrementRecordCount(b); err != nil {
		return nil, err
	}
	return rec, nil
}

//
// PutITRRLOCs
//
// Append the ITR-RLOC list of a Map-Request and store count minus one in
// the header.
//
func PutITRRLOCs(b *lbuf.Buffer, rlocs []laddr.Address) ([]byte, error) {
	if len(rlocs) == 0 {
		return nil, errors.WithStack(ErrNoRLOCs)
	}
	if len(rlocs) > 32 {
		return nil, errors.Wrapf(ErrTooMany, "%d ITR-RLOCs", len(rlocs))
	}
	hdr, err := AsMapRequestHdr(b.Layer(lbuf.LISP))
	if err != nil {
		return nil, err
	}
	if hdr.Type() != MapRequest {
		return nil, errors.Wrapf(ErrUnsupportedType, "ITR-RLOCs in %s",
			hdr.Type())
	}

	start := b.Size()
	for _, a := range rlocs {
		if _, err := PutAddress(b, a); err != nil {
			return nil, err
		}
	}
	hdr.SetITRRLOCCount(uint8(len(rlocs) - 1))
	data := b.Data()
	return data[start:], nil
}

// PutEIDRecord appends a Map-Request EID record for eid.
func PutEIDRecord(b *lbuf.Buffer, eid laddr.Address) (EIDRecordHdr, error) {
	raw, err := b.PutZero(EIDRecordHdrLen)
	if err != nil {
		return nil, errors.Wrap(err, "EID record")
	}
	hdr := EIDRecordHdr(raw)
	hdr.SetMaskLen(uint8(laddr.Plen(eid)))
	if _, err := PutAddress(b, eid); err != nil {
		return nil, err
	}
	if err := incrementRecordCount(b); err != nil {
		return nil, err
	}
	return hdr, nil
}

// PutEmptyAuthRecord appends an auth record with a zeroed data field sized
// for keyType.
func PutEmptyAuthRecord(b *lbuf.Buffer, keyType KeyType) (AuthRecordHdr,
	error) {

	n, err := AuthDataLen(keyType)
	if err != nil {
		return nil, err
	}
	raw, err := b.PutZero(AuthRecordHdrLen + n)
	if err != nil {
		return nil, errors.Wrap(err, "auth record")
	}
	hdr := AuthRecordHdr(raw[:AuthRecordHdrLen])
	hdr.SetKeyID(keyType)
	hdr.SetDataLen(uint16(n))
	return hdr, nil
}

//
// MapRequestCreate
//
// Build a Map-Request from seid for deid, listing itrRLOCs as the
// addresses the Map-Reply may be sent to.
//
func MapRequestCreate(seid laddr.Address, itrRLOCs []laddr.Address,
	deid laddr.Address) (*lbuf.Buffer, error) {

	b, err := Create(MapRequest)
	if err != nil {
		return nil, err
	}
	if seid == nil {
		seid = laddr.NoAddr{}
	}
	if _, err := PutAddress(b, seid); err != nil {
		return nil, err
	}
	if _, err := PutITRRLOCs(b, itrRLOCs); err != nil {
		return nil, err
	}
	if _, err := PutEIDRecord(b, deid); err != nil {
		return nil, err
	}
	return b, nil
}

// NegMapReplyCreate builds a Map-Reply with a single negative record.
func NegMapReplyCreate(eid laddr.Address, ttl uint32, action Action,
	nonce uint64) (*lbuf.Buffer, error) {

	b, err := Create(MapReply)
	if err != nil {
		return nil, err
	}
	hdr, _ := AsMapReplyHdr(b.Layer(lbuf.LISP))
	hdr.SetNonce(nonce)
	if _, err := PutNegativeMapping(b, eid, ttl, action); err != nil {
		return nil, err
	}
	return b, nil
}

// MapReplyCreate builds a Map-Reply carrying m. The locator matching probed
// is flagged; pass nil when the reply does not answer a probe.
func MapReplyCreate(m *Mapping, nonce uint64, probed laddr.Address) (
	*lbuf.Buffer, error) {

	b, err := Create(MapReply)
	if err != nil {
		return nil, err
	}
	hdr, _ := AsMapReplyHdr(b.Layer(lbuf.LISP))
	hdr.SetNonce(nonce)
	hdr.SetProbe(probed != nil)
	if _, err := PutMapping(b, m, probed); err != nil {
		return nil, err
	}
	return b, nil
}

//
// MapRegisterCreate
//
// Build a Map-Register for m with an empty auth record for keyType. The
// caller fills in the nonce and then calls FillAuthData().
//
func MapRegisterCreate(m *Mapping, keyType KeyType) (*lbuf.Buffer, error) {
	b, err := Create(MapRegister)
	if err != nil {
		return nil, err
	}
	if _, err := PutEmptyAuthRecord(b, keyType); err != nil {
		return nil, err
	}
	if _, err := PutMapping(b, m, nil); err != nil {
		return nil, err
	}
	return b, nil
}

//
// NATMapRegisterCreate
//
// Build and authenticate a Map-Register sent through an RTR on behalf of an
// xTR behind a NAT. The proxy-reply, xTR-ID and RTR bits are set and the
// xTR-ID and site-ID follow the mapping record.
//
func NATMapRegisterCreate(m *Mapping, key string, siteID [siteIDLen]byte,
	xtrID [xtrIDLen]byte, keyType KeyType) (*lbuf.Buffer, error) {

	b, err := MapRegisterCreate(m, keyType)
	if err != nil {
		return nil, err
	}
	hdr, _ := AsMapRegisterHdr(b.Layer(lbuf.LISP))
	hdr.SetProxyReply(true)
	hdr.SetXTRIDPresent(true)
	hdr.SetRTR(true)

	if err := b.PutBytes(xtrID[:]); err != nil {
		return nil, errors.Wrap(err, "xTR-ID")
	}
	if err := b.PutBytes(siteID[:]); err != nil {
		return nil, errors.Wrap(err, "site-ID")
	}
	if err := FillAuthData(b, keyType, key); err != nil {
		return nil, err
	}
	return b, nil
}

// HdrString describes the header of the message at the LISP layer.
func HdrString(b *lbuf.Buffer) string {
	msg := b.Layer(lbuf.LISP)
	switch t := HdrType(msg); t {
	case MapRequest:
		if h, err := AsMapRequestHdr(msg); err == nil {
			return h.String()
		}
	case MapReply:
		if h, err := AsMapReplyHdr(msg); err == nil {
			return h.String()
		}
	case MapRegister:
		if h, err := AsMapRegisterHdr(msg); err == nil {
			return h.String()
		}
	case MapNotify:
		if h, err := AsMapNotifyHdr(msg); err == nil {
			return h.String()
		}
	case EncapControl:
		if h, err := AsECMHdr(msg); err == nil {
			return h.String()
		}
	default:
		return "Unknown LISP message type " + t.String()
	}
	return "Truncated LISP header"
}

// ECMHdrString describes the ECM header at the LISPHdr layer.
func ECMHdrString(b *lbuf.Buffer) string {
	h, err := AsECMHdr(b.Layer(lbuf.LISPHdr))
	if err != nil {
		return "Truncated ECM header"
	}
	return h.String()
}
