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

package lisp

import (
	"encoding/binary"
	"net/netip"
)

func onesSum(sum uint32, b []byte) uint32 {
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if n&1 != 0 {
		sum += uint32(b[n-1]) << 8
	}
	return sum
}

func fold(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}

//
// IPChecksum
//
// Ones-complement checksum of an IPv4 header. Computed over a header whose
// checksum field holds a valid value the result is 0.
//
func IPChecksum(hdr []byte) uint16 {
	return ^fold(onesSum(0, hdr))
}

//
// UDPChecksum
//
// Ones-complement checksum of a UDP header and payload including the IPv4
// or IPv6 pseudo-header. A datagram carrying a valid checksum yields 0.
//
func UDPChecksum(src, dst netip.Addr, udp []byte) uint16 {
	var sum uint32

	s := src.AsSlice()
	d := dst.AsSlice()
	sum = onesSum(sum, s)
	sum = onesSum(sum, d)
	sum += 17
	sum += uint32(len(udp) >> 16)
	sum += uint32(len(udp) & 0xffff)
	sum = onesSum(sum, udp)
	return ^fold(sum)
}
