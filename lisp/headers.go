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
// headers.go
//
// Fixed-layout views over LISP header bytes. Each view is a byte slice of
// exactly the header length. The AsXxx() constructors refuse shorter input
// so accessors never index past the slice.
//
// ---------------------------------------------------------------------------

package lisp

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Header sizes.
const (
	ECMHdrLen           = 4
	MapRequestHdrLen    = 12
	MapReplyHdrLen      = 12
	MapRegisterHdrLen   = 12
	MapNotifyHdrLen     = 12
	EIDRecordHdrLen     = 2
	MappingRecordHdrLen = 10
	LocatorHdrLen       = 6
	AuthRecordHdrLen    = 4
	DataHdrLen          = 8
)

const (
	recordCountOff = 3
	nonceOff       = 4
)

func shortHeader(name string, have, want int) error {
	return errors.Wrapf(ErrShortHeader, "%s: %d bytes, need %d", name, have,
		want)
}

func setBit(b *byte, mask byte, on bool) {
	if on {
		*b |= mask
	} else {
		*b &^= mask
	}
}

// HdrType returns the message type nibble of any LISP control header.
func HdrType(b []byte) Type {
	if len(b) == 0 {
		return NotLISP
	}
	return Type(b[0] >> 4)
}

//
// ECM header:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |Type=8 |S|                  Reserved                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// ECMHdr is an Encapsulated Control Message header.
type ECMHdr []byte

// AsECMHdr returns the ECM header at the start of b.
func AsECMHdr(b []byte) (ECMHdr, error) {
	if len(b) < ECMHdrLen {
		return nil, shortHeader("ECM", len(b), ECMHdrLen)
	}
	return ECMHdr(b[:ECMHdrLen]), nil
}

// Init zeroes the header and sets the type.
func (h ECMHdr) Init() {
	for i := range h {
		h[i] = 0
	}
	h[0] = byte(EncapControl) << 4
}

func (h ECMHdr) Type() Type         { return Type(h[0] >> 4) }
func (h ECMHdr) Security() bool     { return h[0]&0x08 != 0 }
func (h ECMHdr) SetSecurity(v bool) { setBit(&h[0], 0x08, v) }

func (h ECMHdr) String() string {
	return fmt.Sprintf("ECM -> flags:%s", flagString("S", h.Security()))
}

//
// Map-Request header:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |Type=1 |A|M|P|S|p|s|    Reserved     |   IRC   | Record Count  |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         Nonce . . .                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         . . . Nonce                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// MapRequestHdr is a Map-Request header.
type MapRequestHdr []byte

// AsMapRequestHdr returns the Map-Request header at the start of b.
func AsMapRequestHdr(b []byte) (MapRequestHdr, error) {
	if len(b) < MapRequestHdrLen {
		return nil, shortHeader("Map-Request", len(b), MapRequestHdrLen)
	}
	return MapRequestHdr(b[:MapRequestHdrLen]), nil
}

// Init zeroes the header and sets the type.
func (h MapRequestHdr) Init() {
	for i := range h {
		h[i] = 0
	}
	h[0] = byte(MapRequest) << 4
}

func (h MapRequestHdr) Type() Type                { return Type(h[0] >> 4) }
func (h MapRequestHdr) Authoritative() bool       { return h[0]&0x08 != 0 }
func (h MapRequestHdr) SetAuthoritative(v bool)   { setBit(&h[0], 0x08, v) }
func (h MapRequestHdr) MapDataPresent() bool      { return h[0]&0x04 != 0 }
func (h MapRequestHdr) SetMapDataPresent(v bool)  { setBit(&h[0], 0x04, v) }
func (h MapRequestHdr) Probe() bool               { return h[0]&0x02 != 0 }
func (h MapRequestHdr) SetProbe(v bool)           { setBit(&h[0], 0x02, v) }
func (h MapRequestHdr) SMR() bool                 { return h[0]&0x01 != 0 }
func (h MapRequestHdr) SetSMR(v bool)             { setBit(&h[0], 0x01, v) }
func (h MapRequestHdr) PITR() bool                { return h[1]&0x80 != 0 }
func (h MapRequestHdr) SetPITR(v bool)            { setBit(&h[1], 0x80, v) }
func (h MapRequestHdr) SMRInvoked() bool          { return h[1]&0x40 != 0 }
func (h MapRequestHdr) SetSMRInvoked(v bool)      { setBit(&h[1], 0x40, v) }
func (h MapRequestHdr) RecordCount() uint8        { return h[recordCountOff] }
func (h MapRequestHdr) SetRecordCount(n uint8)    { h[recordCountOff] = n }
func (h MapRequestHdr) Nonce() uint64             { return binary.BigEndian.Uint64(h[nonceOff:]) }
func (h MapRequestHdr) SetNonce(n uint64)         { binary.BigEndian.PutUint64(h[nonceOff:], n) }
func (h MapRequestHdr) ITRRLOCCount() uint8       { return h[2] & 0x1f }
func (h MapRequestHdr) SetITRRLOCCount(irc uint8) { h[2] = h[2]&0xe0 | irc&0x1f }

func (h MapRequestHdr) String() string {
	return fmt.Sprintf("Map-Request -> flags:%s%s%s%s%s%s, irc: %d (+1), "+
		"record-count: %d, nonce: 0x%016x",
		flagString("A", h.Authoritative()), flagString("M", h.MapDataPresent()),
		flagString("P", h.Probe()), flagString("S", h.SMR()),
		flagString("p", h.PITR()), flagString("s", h.SMRInvoked()),
		h.ITRRLOCCount(), h.RecordCount(), h.Nonce())
}

//
// Map-Reply header:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |Type=2 |P|E|S|          Reserved               | Record Count  |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         Nonce . . .                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         . . . Nonce                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// MapReplyHdr is a Map-Reply header.
type MapReplyHdr []byte

// AsMapReplyHdr returns the Map-Reply header at the start of b.
func AsMapReplyHdr(b []byte) (MapReplyHdr, error) {
	if len(b) < MapReplyHdrLen {
		return nil, shortHeader("Map-Reply", len(b), MapReplyHdrLen)
	}
	return MapReplyHdr(b[:MapReplyHdrLen]), nil
}

// Init zeroes the header and sets the type.
func (h MapReplyHdr) Init() {
	for i := range h {
		h[i] = 0
	}
	h[0] = byte(MapReply) << 4
}

func (h MapReplyHdr) Type() Type             { return Type(h[0] >> 4) }
func (h MapReplyHdr) Probe() bool            { return h[0]&0x08 != 0 }
func (h MapReplyHdr) SetProbe(v bool)        { setBit(&h[0], 0x08, v) }
func (h MapReplyHdr) EchoNonce() bool        { return h[0]&0x04 != 0 }
func (h MapReplyHdr) SetEchoNonce(v bool)    { setBit(&h[0], 0x04, v) }
func (h MapReplyHdr) Security() bool         { return h[0]&0x02 != 0 }
func (h MapReplyHdr) SetSecurity(v bool)     { setBit(&h[0], 0x02, v) }
func (h MapReplyHdr) RecordCount() uint8     { return h[recordCountOff] }
func (h MapReplyHdr) SetRecordCount(n uint8) { h[recordCountOff] = n }
func (h MapReplyHdr) Nonce() uint64          { return binary.BigEndian.Uint64(h[nonceOff:]) }
func (h MapReplyHdr) SetNonce(n uint64)      { binary.BigEndian.PutUint64(h[nonceOff:], n) }

func (h MapReplyHdr) String() string {
	return fmt.Sprintf("Map-Reply -> flags:%s%s%s, record-count: %d, "+
		"nonce: 0x%016x", flagString("P", h.Probe()),
		flagString("E", h.EchoNonce()), flagString("S", h.Security()),
		h.RecordCount(), h.Nonce())
}

//
// Map-Register header, followed by the authentication record:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |Type=3 |P|S|I|R|       Reserved              |M| Record Count  |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         Nonce . . .                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         . . . Nonce                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// MapRegisterHdr is a Map-Register header.
type MapRegisterHdr []byte

// AsMapRegisterHdr returns the Map-Register header at the start of b.
func AsMapRegisterHdr(b []byte) (MapRegisterHdr, error) {
	if len(b) < MapRegisterHdrLen {
		return nil, shortHeader("Map-Register", len(b), MapRegisterHdrLen)
	}
	return MapRegisterHdr(b[:MapRegisterHdrLen]), nil
}

// Init zeroes the header, sets the type and asks for a Map-Notify.
func (h MapRegisterHdr) Init() {
	for i := range h {
		h[i] = 0
	}
	h[0] = byte(MapRegister) << 4
	h.SetWantMapNotify(true)
}

func (h MapRegisterHdr) Type() Type              { return Type(h[0] >> 4) }
func (h MapRegisterHdr) ProxyReply() bool        { return h[0]&0x08 != 0 }
func (h MapRegisterHdr) SetProxyReply(v bool)    { setBit(&h[0], 0x08, v) }
func (h MapRegisterHdr) Security() bool          { return h[0]&0x04 != 0 }
func (h MapRegisterHdr) SetSecurity(v bool)      { setBit(&h[0], 0x04, v) }
func (h MapRegisterHdr) XTRIDPresent() bool      { return h[0]&0x02 != 0 }
func (h MapRegisterHdr) SetXTRIDPresent(v bool)  { setBit(&h[0], 0x02, v) }
func (h MapRegisterHdr) RTR() bool               { return h[0]&0x01 != 0 }
func (h MapRegisterHdr) SetRTR(v bool)           { setBit(&h[0], 0x01, v) }
func (h MapRegisterHdr) WantMapNotify() bool     { return h[2]&0x01 != 0 }
func (h MapRegisterHdr) SetWantMapNotify(v bool) { setBit(&h[2], 0x01, v) }
func (h MapRegisterHdr) RecordCount() uint8      { return h[recordCountOff] }
func (h MapRegisterHdr) SetRecordCount(n uint8)  { h[recordCountOff] = n }
func (h MapRegisterHdr) Nonce() uint64           { return binary.BigEndian.Uint64(h[nonceOff:]) }
func (h MapRegisterHdr) SetNonce(n uint64)       { binary.BigEndian.PutUint64(h[nonceOff:], n) }

func (h MapRegisterHdr) String() string {
	return fmt.Sprintf("Map-Register -> flags:%s%s%s%s%s, record-count: %d, "+
		"nonce: 0x%016x", flagString("P", h.ProxyReply()),
		flagString("S", h.Security()), flagString("I", h.XTRIDPresent()),
		flagString("R", h.RTR()), flagString("M", h.WantMapNotify()),
		h.RecordCount(), h.Nonce())
}

//
// Map-Notify header, followed by the authentication record:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |Type=4 |I|R|            Reserved               | Record Count  |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         Nonce . . .                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                         . . . Nonce                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// MapNotifyHdr is a Map-Notify header.
type MapNotifyHdr []byte

// AsMapNotifyHdr returns the Map-Notify header at the start of b.
func AsMapNotifyHdr(b []byte) (MapNotifyHdr, error) {
	if len(b) < MapNotifyHdrLen {
		return nil, shortHeader("Map-Notify", len(b), MapNotifyHdrLen)
	}
	return MapNotifyHdr(b[:MapNotifyHdrLen]), nil
}

// Init zeroes the header and sets the type.
func (h MapNotifyHdr) Init() {
	for i := range h {
		h[i] = 0
	}
	h[0] = byte(MapNotify) << 4
}

func (h MapNotifyHdr) Type() Type             { return Type(h[0] >> 4) }
func (h MapNotifyHdr) XTRIDPresent() bool     { return h[0]&0x08 != 0 }
func (h MapNotifyHdr) SetXTRIDPresent(v bool) { setBit(&h[0], 0x08, v) }
func (h MapNotifyHdr) RTR() bool              { return h[0]&0x04 != 0 }
func (h MapNotifyHdr) SetRTR(v bool)          { setBit(&h[0], 0x04, v) }
func (h MapNotifyHdr) RecordCount() uint8     { return h[recordCountOff] }
func (h MapNotifyHdr) SetRecordCount(n uint8) { h[recordCountOff] = n }
func (h MapNotifyHdr) Nonce() uint64          { return binary.BigEndian.Uint64(h[nonceOff:]) }
func (h MapNotifyHdr) SetNonce(n uint64)      { binary.BigEndian.PutUint64(h[nonceOff:], n) }

func (h MapNotifyHdr) String() string {
	return fmt.Sprintf("Map-Notify -> flags:%s%s, record-count: %d, "+
		"nonce: 0x%016x", flagString("I", h.XTRIDPresent()),
		flagString("R", h.RTR()), h.RecordCount(), h.Nonce())
}

// EIDRecordHdr precedes the EID-prefix of a Map-Request record:
//
//	| Reserved | EID mask-len | EID-prefix-AFI | EID-prefix ... |
type EIDRecordHdr []byte

// AsEIDRecordHdr returns the EID record header at the start of b.
func AsEIDRecordHdr(b []byte) (EIDRecordHdr, error) {
	if len(b) < EIDRecordHdrLen {
		return nil, shortHeader("EID record", len(b), EIDRecordHdrLen)
	}
	return EIDRecordHdr(b[:EIDRecordHdrLen]), nil
}

func (h EIDRecordHdr) Init() {
	h[0] = 0
	h[1] = 0
}

func (h EIDRecordHdr) MaskLen() uint8        { return h[1] }
func (h EIDRecordHdr) SetMaskLen(plen uint8) { h[1] = plen }

//
// Mapping record header:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                          Record TTL                           |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      | Locator Count | EID mask-len  | ACT |A|      Reserved         |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      | Rsvd  |  Map-Version Number   |       EID-Prefix-AFI          |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// MappingRecordHdr is the fixed part of a mapping record, up to the EID AFI.
type MappingRecordHdr []byte

// AsMappingRecordHdr returns the mapping record header at the start of b.
func AsMappingRecordHdr(b []byte) (MappingRecordHdr, error) {
	if len(b) < MappingRecordHdrLen {
		return nil, shortHeader("mapping record", len(b), MappingRecordHdrLen)
	}
	return MappingRecordHdr(b[:MappingRecordHdrLen]), nil
}

// Init zeroes the header.
func (h MappingRecordHdr) Init() {
	for i := range h {
		h[i] = 0
	}
}

func (h MappingRecordHdr) TTL() uint32              { return binary.BigEndian.Uint32(h[0:4]) }
func (h MappingRecordHdr) SetTTL(ttl uint32)        { binary.BigEndian.PutUint32(h[0:4], ttl) }
func (h MappingRecordHdr) LocatorCount() uint8      { return h[4] }
func (h MappingRecordHdr) SetLocatorCount(n uint8)  { h[4] = n }
func (h MappingRecordHdr) EIDMaskLen() uint8        { return h[5] }
func (h MappingRecordHdr) SetEIDMaskLen(plen uint8) { h[5] = plen }
func (h MappingRecordHdr) Action() Action           { return Action(h[6] >> 5) }
func (h MappingRecordHdr) SetAction(a Action)       { h[6] = h[6]&0x1f | byte(a&0x07)<<5 }
func (h MappingRecordHdr) Authoritative() bool      { return h[6]&0x10 != 0 }
func (h MappingRecordHdr) SetAuthoritative(v bool)  { setBit(&h[6], 0x10, v) }
func (h MappingRecordHdr) MapVersion() uint16       { return binary.BigEndian.Uint16(h[8:10]) & 0x0fff }
func (h MappingRecordHdr) SetMapVersion(v uint16)   { binary.BigEndian.PutUint16(h[8:10], v&0x0fff) }

func (h MappingRecordHdr) String() string {
	return fmt.Sprintf("Mapping-record -> ttl: %d, loc-count: %d, action: %s, "+
		"auth: %v, map-version: %d", h.TTL(), h.LocatorCount(), h.Action(),
		h.Authoritative(), h.MapVersion())
}

//
// Locator record header:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |   Priority    |    Weight     |  M Priority   |   M Weight    |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |        Unused Flags     |L|p|R|           Loc-AFI             |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// LocatorHdr is the fixed part of a locator record.
type LocatorHdr []byte

// AsLocatorHdr returns the locator header at the start of b.
func AsLocatorHdr(b []byte) (LocatorHdr, error) {
	if len(b) < LocatorHdrLen {
		return nil, shortHeader("locator", len(b), LocatorHdrLen)
	}
	return LocatorHdr(b[:LocatorHdrLen]), nil
}

// Init zeroes the header.
func (h LocatorHdr) Init() {
	for i := range h {
		h[i] = 0
	}
}

func (h LocatorHdr) Priority() uint8      { return h[0] }
func (h LocatorHdr) SetPriority(v uint8)  { h[0] = v }
func (h LocatorHdr) Weight() uint8        { return h[1] }
func (h LocatorHdr) SetWeight(v uint8)    { h[1] = v }
func (h LocatorHdr) MPriority() uint8     { return h[2] }
func (h LocatorHdr) SetMPriority(v uint8) { h[2] = v }
func (h LocatorHdr) MWeight() uint8       { return h[3] }
func (h LocatorHdr) SetMWeight(v uint8)   { h[3] = v }
func (h LocatorHdr) Local() bool          { return h[5]&0x04 != 0 }
func (h LocatorHdr) SetLocal(v bool)      { setBit(&h[5], 0x04, v) }
func (h LocatorHdr) Probed() bool         { return h[5]&0x02 != 0 }
func (h LocatorHdr) SetProbed(v bool)     { setBit(&h[5], 0x02, v) }
func (h LocatorHdr) Reachable() bool      { return h[5]&0x01 != 0 }
func (h LocatorHdr) SetReachable(v bool)  { setBit(&h[5], 0x01, v) }

func (h LocatorHdr) String() string {
	return fmt.Sprintf("Locator-record -> flags:%s%s%s, p/w: %d/%d %d/%d",
		flagString("L", h.Local()), flagString("p", h.Probed()),
		flagString("R", h.Reachable()), h.Priority(), h.Weight(),
		h.MPriority(), h.MWeight())
}

// AuthRecordHdr precedes the authentication data of Map-Register and
// Map-Notify messages:
//
//	| Key ID (16) | Authentication Data Length (16) | data ... |
type AuthRecordHdr []byte

// AsAuthRecordHdr returns the auth record header at the start of b.
func AsAuthRecordHdr(b []byte) (AuthRecordHdr, error) {
	if len(b) < AuthRecordHdrLen {
		return nil, shortHeader("auth record", len(b), AuthRecordHdrLen)
	}
	return AuthRecordHdr(b[:AuthRecordHdrLen]), nil
}

func (h AuthRecordHdr) KeyID() KeyType      { return KeyType(binary.BigEndian.Uint16(h[0:2])) }
func (h AuthRecordHdr) SetKeyID(k KeyType)  { binary.BigEndian.PutUint16(h[0:2], uint16(k)) }
func (h AuthRecordHdr) DataLen() uint16     { return binary.BigEndian.Uint16(h[2:4]) }
func (h AuthRecordHdr) SetDataLen(n uint16) { binary.BigEndian.PutUint16(h[2:4], n) }

//
// LISP data header:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |N|L|E|V|I|R|K|K|            Nonce/Map-Version                  |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |                 Instance ID/Locator-Status-Bits               |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//

// DataHdr is the LISP data-plane shim.
type DataHdr []byte

// AsDataHdr returns the LISP data header at the start of b.
func AsDataHdr(b []byte) (DataHdr, error) {
	if len(b) < DataHdrLen {
		return nil, shortHeader("LISP data", len(b), DataHdrLen)
	}
	return DataHdr(b[:DataHdrLen]), nil
}

// Init zeroes the header.
func (h DataHdr) Init() {
	for i := range h {
		h[i] = 0
	}
}

func (h DataHdr) NoncePresent() bool   { return h[0]&0x80 != 0 }
func (h DataHdr) LSBEnabled() bool     { return h[0]&0x40 != 0 }
func (h DataHdr) EchoNonce() bool      { return h[0]&0x20 != 0 }
func (h DataHdr) MapVersion() bool     { return h[0]&0x10 != 0 }
func (h DataHdr) IIDPresent() bool     { return h[0]&0x08 != 0 }
func (h DataHdr) KeyID() uint8         { return h[0] & 0x03 }
func (h DataHdr) SetLSBEnabled(v bool) { setBit(&h[0], 0x40, v) }
func (h DataHdr) SetEchoNonce(v bool)  { setBit(&h[0], 0x20, v) }
func (h DataHdr) SetKeyID(k uint8)     { h[0] = h[0]&0xfc | k&0x03 }

// Nonce returns the 24-bit nonce.
func (h DataHdr) Nonce() uint32 {
	return uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
}

// SetNonce stores a 24-bit nonce and sets the N bit.
func (h DataHdr) SetNonce(nonce uint32) {
	h[0] |= 0x80
	h[1] = byte(nonce >> 16)
	h[2] = byte(nonce >> 8)
	h[3] = byte(nonce)
}

// InstanceID returns the 24-bit instance-ID. Only meaningful when the I bit
// is set.
func (h DataHdr) InstanceID() uint32 {
	return uint32(h[4])<<16 | uint32(h[5])<<8 | uint32(h[6])
}

// SetInstanceID stores a 24-bit instance-ID and sets the I bit.
func (h DataHdr) SetInstanceID(iid uint32) {
	h[0] |= 0x08
	h[4] = byte(iid >> 16)
	h[5] = byte(iid >> 8)
	h[6] = byte(iid)
}

// LSBs returns the locator-status-bits: 8 bits when the I bit is set, 32
// bits otherwise.
func (h DataHdr) LSBs() uint32 {
	if h.IIDPresent() {
		return uint32(h[7])
	}
	return binary.BigEndian.Uint32(h[4:8])
}

func flagString(name string, set bool) string {
	if set {
		return " " + name
	}
	return ""
}
