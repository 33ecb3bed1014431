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
// codec.go
//
// Wire encoding of LISP addresses. The LCAF header is:
//
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |           AFI = 16387         |     Rsvd1     |     Flags     |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//      |    Type       |     Rsvd2     |            Length             |
//      +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//
// Length counts the bytes that follow the header.
//
// ---------------------------------------------------------------------------

package laddr

import (
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"
)

const (
	afiLen       = 2
	lcafHdrLen   = 8
	iidLen       = 4
	elpHopHdrLen = 2
	rleEntryLen  = 4
	mcInfoLen    = 8

	elpLookup    = 0x0004
	elpRLOCProbe = 0x0002
	elpStrict    = 0x0001
)

// SizeToWrite returns the number of bytes Write needs for a, or 0 when a
// cannot be encoded.
func SizeToWrite(a Address) int {
	switch v := a.(type) {
	case NoAddr:
		return afiLen
	case IP:
		if v.Addr.Is4() {
			return afiLen + 4
		}
		if v.Addr.Is6() {
			return afiLen + 16
		}
		return 0
	case InstanceID:
		n := SizeToWrite(v.Addr)
		if n == 0 {
			return 0
		}
		return lcafHdrLen + iidLen + n
	case AFIList:
		total := lcafHdrLen
		for _, e := range v.List {
			n := SizeToWrite(e)
			if n == 0 {
				return 0
			}
			total += n
		}
		return total
	case ELP:
		total := lcafHdrLen
		for _, h := range v.Hops {
			n := SizeToWrite(h.Addr)
			if n == 0 {
				return 0
			}
			total += elpHopHdrLen + n
		}
		return total
	case RLE:
		total := lcafHdrLen
		for _, e := range v.Entries {
			n := SizeToWrite(e.Addr)
			if n == 0 {
				return 0
			}
			total += rleEntryLen + n
		}
		return total
	case MCInfo:
		s := SizeToWrite(v.Src)
		g := SizeToWrite(v.Grp)
		if s == 0 || g == 0 {
			return 0
		}
		return lcafHdrLen + mcInfoLen + s + g
	}
	return 0
}

// Write encodes a into b and returns the number of bytes written.
func Write(b []byte, a Address) (int, error) {
	n := SizeToWrite(a)
	if n <= 0 {
		return 0, errors.Wrapf(ErrUnsupported, "cannot encode %s", str(a))
	}
	if len(b) < n {
		return 0, errors.Wrapf(ErrShortBuffer, "need %d, have %d", n, len(b))
	}

	switch v := a.(type) {
	case NoAddr:
		binary.BigEndian.PutUint16(b, AFINone)

	case IP:
		if v.Addr.Is4() {
			binary.BigEndian.PutUint16(b, AFIIPv4)
			a4 := v.Addr.As4()
			copy(b[afiLen:], a4[:])
		} else {
			binary.BigEndian.PutUint16(b, AFIIPv6)
			a16 := v.Addr.As16()
			copy(b[afiLen:], a16[:])
		}

	case InstanceID:
		putLCAFHdr(b, LCAFInstanceID, v.MaskLen, n)
		binary.BigEndian.PutUint32(b[lcafHdrLen:], v.IID)
		if _, err := Write(b[lcafHdrLen+iidLen:], v.Addr); err != nil {
			return 0, err
		}

	case AFIList:
		putLCAFHdr(b, LCAFAFIList, 0, n)
		off := lcafHdrLen
		for _, e := range v.List {
			w, err := Write(b[off:], e)
			if err != nil {
				return 0, err
			}
			off += w
		}

	case ELP:
		putLCAFHdr(b, LCAFELP, 0, n)
		off := lcafHdrLen
		for _, h := range v.Hops {
			var flags uint16
			if h.Lookup {
				flags |= elpLookup
			}
			if h.RLOCProbe {
				flags |= elpRLOCProbe
			}
			if h.Strict {
				flags |= elpStrict
			}
			binary.BigEndian.PutUint16(b[off:], flags)
			w, err := Write(b[off+elpHopHdrLen:], h.Addr)
			if err != nil {
				return 0, err
			}
			off += elpHopHdrLen + w
		}

	case RLE:
		putLCAFHdr(b, LCAFRLE, 0, n)
		off := lcafHdrLen
		for _, e := range v.Entries {
			b[off], b[off+1], b[off+2] = 0, 0, 0
			b[off+3] = e.Level
			w, err := Write(b[off+rleEntryLen:], e.Addr)
			if err != nil {
				return 0, err
			}
			off += rleEntryLen + w
		}

	case MCInfo:
		putLCAFHdr(b, LCAFMCInfo, 0, n)
		body := b[lcafHdrLen:]
		binary.BigEndian.PutUint32(body[0:4], v.IID)
		body[4], body[5] = 0, 0
		body[6] = v.SrcPlen
		body[7] = v.GrpPlen
		w, err := Write(body[mcInfoLen:], v.Src)
		if err != nil {
			return 0, err
		}
		if _, err := Write(body[mcInfoLen+w:], v.Grp); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Marshal returns the encoding of a in a new slice.
func Marshal(a Address) ([]byte, error) {
	n := SizeToWrite(a)
	if n <= 0 {
		return nil, errors.Wrapf(ErrUnsupported, "cannot encode %s", str(a))
	}
	b := make([]byte, n)
	if _, err := Write(b, a); err != nil {
		return nil, err
	}
	return b, nil
}

func putLCAFHdr(b []byte, lcafType, rsvd2 uint8, total int) {
	binary.BigEndian.PutUint16(b[0:2], AFILCAF)
	b[2] = 0
	b[3] = 0
	b[4] = lcafType
	b[5] = rsvd2
	binary.BigEndian.PutUint16(b[6:8], uint16(total-lcafHdrLen))
}

// Parse decodes the address at the start of b and returns it with the number
// of bytes consumed. IP addresses get a host prefix length; callers that
// read a prefix override it with SetPlen.
func Parse(b []byte) (Address, int, error) {
	if len(b) < afiLen {
		return nil, 0, errors.Wrap(ErrMalformed, "missing AFI")
	}

	afi := binary.BigEndian.Uint16(b)
	switch afi {
	case AFINone:
		return NoAddr{}, afiLen, nil
	case AFIIPv4:
		if len(b) < afiLen+4 {
			return nil, 0, errors.Wrap(ErrMalformed, "short IPv4 address")
		}
		return FromNetIP(netip.AddrFrom4([4]byte(b[afiLen : afiLen+4]))),
			afiLen + 4, nil
	case AFIIPv6:
		if len(b) < afiLen+16 {
			return nil, 0, errors.Wrap(ErrMalformed, "short IPv6 address")
		}
		return FromNetIP(netip.AddrFrom16([16]byte(b[afiLen : afiLen+16]))),
			afiLen + 16, nil
	case AFILCAF:
		return parseLCAF(b)
	}
	return nil, 0, errors.Wrapf(ErrUnsupported, "AFI %d", afi)
}

func parseLCAF(b []byte) (Address, int, error) {
	if len(b) < lcafHdrLen {
		return nil, 0, errors.Wrap(ErrMalformed, "short LCAF header")
	}
	lcafType := b[4]
	rsvd2 := b[5]
	length := int(binary.BigEndian.Uint16(b[6:8]))
	if len(b) < lcafHdrLen+length {
		return nil, 0, errors.Wrapf(ErrMalformed,
			"LCAF length %d exceeds %d remaining bytes", length,
			len(b)-lcafHdrLen)
	}
	body := b[lcafHdrLen : lcafHdrLen+length]
	total := lcafHdrLen + length

	switch lcafType {
	case LCAFInstanceID:
		if len(body) < iidLen {
			return nil, 0, errors.Wrap(ErrMalformed, "short instance-id LCAF")
		}
		inner, n, err := Parse(body[iidLen:])
		if err != nil {
			return nil, 0, err
		}
		if iidLen+n != len(body) {
			return nil, 0, errors.Wrap(ErrMalformed, "instance-id LCAF length")
		}
		return InstanceID{
			IID:     binary.BigEndian.Uint32(body[0:iidLen]),
			MaskLen: rsvd2,
			Addr:    inner,
		}, total, nil

	case LCAFAFIList:
		var list AFIList
		for off := 0; off < len(body); {
			a, n, err := Parse(body[off:])
			if err != nil {
				return nil, 0, err
			}
			list.List = append(list.List, a)
			off += n
		}
		return list, total, nil

	case LCAFELP:
		var elp ELP
		for off := 0; off < len(body); {
			if len(body)-off < elpHopHdrLen {
				return nil, 0, errors.Wrap(ErrMalformed, "short ELP hop")
			}
			flags := binary.BigEndian.Uint16(body[off:])
			a, n, err := Parse(body[off+elpHopHdrLen:])
			if err != nil {
				return nil, 0, err
			}
			elp.Hops = append(elp.Hops, ELPHop{
				Addr:      a,
				Lookup:    flags&elpLookup != 0,
				RLOCProbe: flags&elpRLOCProbe != 0,
				Strict:    flags&elpStrict != 0,
			})
			off += elpHopHdrLen + n
		}
		return elp, total, nil

	case LCAFRLE:
		var rle RLE
		for off := 0; off < len(body); {
			if len(body)-off < rleEntryLen {
				return nil, 0, errors.Wrap(ErrMalformed, "short RLE entry")
			}
			level := body[off+3]
			a, n, err := Parse(body[off+rleEntryLen:])
			if err != nil {
				return nil, 0, err
			}
			rle.Entries = append(rle.Entries, RLEEntry{Level: level, Addr: a})
			off += rleEntryLen + n
		}
		return rle, total, nil

	case LCAFMCInfo:
		if len(body) < mcInfoLen {
			return nil, 0, errors.Wrap(ErrMalformed, "short multicast-info LCAF")
		}
		mc := MCInfo{
			IID:     binary.BigEndian.Uint32(body[0:4]),
			SrcPlen: body[6],
			GrpPlen: body[7],
		}
		src, sn, err := Parse(body[mcInfoLen:])
		if err != nil {
			return nil, 0, err
		}
		grp, gn, err := Parse(body[mcInfoLen+sn:])
		if err != nil {
			return nil, 0, err
		}
		if mcInfoLen+sn+gn != len(body) {
			return nil, 0, errors.Wrap(ErrMalformed, "multicast-info LCAF length")
		}
		mc.Src = src
		mc.Grp = grp
		return mc, total, nil
	}
	return nil, 0, errors.Wrapf(ErrUnsupported, "LCAF type %d", lcafType)
}
