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
	"testing"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
)

func TestCreate(t *testing.T) {
	tests := []struct {
		t    Type
		size int
		err  error
	}{
		{MapRequest, MapRequestHdrLen, nil},
		{MapReply, MapReplyHdrLen, nil},
		{MapRegister, MapRegisterHdrLen, nil},
		{MapNotify, MapNotifyHdrLen, nil},
		{EncapControl, 0, nil},
		{InfoNAT, 0, ErrUnsupportedType},
		{Type(5), 0, ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.t.String(), func(t *testing.T) {
			b, err := Create(tt.t)
			if errors.Cause(err) != tt.err {
				t.Fatalf("got %v, want %v", err, tt.err)
			}
			if err != nil {
				return
			}
			if b.Size() != tt.size {
				t.Errorf("size %d, want %d", b.Size(), tt.size)
			}
			if b.Headroom() < MaxEncapLen {
				t.Errorf("headroom %d", b.Headroom())
			}
			if tt.size > 0 && MsgType(b) != tt.t {
				t.Errorf("type %s", MsgType(b))
			}
		})
	}

	b, _ := Create(MapRegister)
	hdr, _ := AsMapRegisterHdr(b.Layer(lbuf.LISP))
	if !hdr.WantMapNotify() {
		t.Error("Map-Register does not ask for a Map-Notify")
	}
}

func TestMapRequestScenario(t *testing.T) {
	deid := prefix(t, "10.0.0.0/24")
	rlocs := []laddr.Address{ip("192.0.2.1"), ip("192.0.2.2")}

	b, err := MapRequestCreate(nil, rlocs, deid)
	if err != nil {
		t.Fatal(err)
	}
	hdr, _ := AsMapRequestHdr(b.Layer(lbuf.LISP))
	if hdr.ITRRLOCCount() != 1 {
		t.Errorf("IRC %d, want 1", hdr.ITRRLOCCount())
	}
	if hdr.RecordCount() != 1 {
		t.Errorf("record count %d, want 1", hdr.RecordCount())
	}

	msg, err := ParseMapRequest(received(b))
	if err != nil {
		t.Fatal(err)
	}
	if !laddr.IsNoAddr(msg.SourceEID) {
		t.Errorf("source EID %s", msg.SourceEID)
	}
	if len(msg.ITRRLOCs) != 2 {
		t.Fatalf("%d ITR-RLOCs", len(msg.ITRRLOCs))
	}
	for i := range rlocs {
		if !laddr.Equal(msg.ITRRLOCs[i], rlocs[i]) {
			t.Errorf("ITR-RLOC %d: %s, want %s", i, msg.ITRRLOCs[i], rlocs[i])
		}
	}
	if len(msg.EIDs) != 1 || laddr.Plen(msg.EIDs[0]) != 24 ||
		!laddr.Equal(msg.EIDs[0], deid) {
		t.Errorf("EIDs %v", msg.EIDs)
	}
}

func TestITRRLOCCount(t *testing.T) {
	for k := 1; k <= 4; k++ {
		b, _ := Create(MapRequest)
		if _, err := PutAddress(b, laddr.NoAddr{}); err != nil {
			t.Fatal(err)
		}
		var rlocs []laddr.Address
		for i := 0; i < k; i++ {
			rlocs = append(rlocs, ip("192.0.2.1"))
		}
		if _, err := PutITRRLOCs(b, rlocs); err != nil {
			t.Fatal(err)
		}
		hdr, _ := AsMapRequestHdr(b.Layer(lbuf.LISP))
		if int(hdr.ITRRLOCCount()) != k-1 {
			t.Errorf("k=%d: IRC %d", k, hdr.ITRRLOCCount())
		}

		in := received(b)
		if _, err := PullHeader(in); err != nil {
			t.Fatal(err)
		}
		if _, err := ParseAddress(in); err != nil {
			t.Fatal(err)
		}
		got, err := ParseITRRLOCs(in)
		if err != nil || len(got) != k {
			t.Errorf("k=%d: parsed %d, %v", k, len(got), err)
		}
	}

	b, _ := Create(MapRequest)
	if _, err := PutITRRLOCs(b, nil); errors.Cause(err) != ErrNoRLOCs {
		t.Errorf("empty list: %v", err)
	}
}

func TestPutLocatorDown(t *testing.T) {
	b, _ := Create(MapReply)
	loc := &Locator{Addr: ip("192.0.2.9"), Priority: 3, Weight: 10, State: Down}
	hdr, err := PutLocator(b, loc)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Priority() != UnusedRLOCPriority {
		t.Errorf("priority %d, want 255", hdr.Priority())
	}
	if hdr.Reachable() || !hdr.Local() {
		t.Errorf("flags: %s", hdr)
	}
	if loc.Priority != 3 {
		t.Error("PutLocator modified the locator")
	}
}

func TestPutLocatorRTR(t *testing.T) {
	b, _ := Create(MapReply)
	loc := &Locator{Addr: ip("10.0.0.1"), RTR: ip("198.51.100.1"), State: Up}
	if _, err := PutLocator(b, loc); err != nil {
		t.Fatal(err)
	}
	in := received(b)
	in.Pull(MapReplyHdrLen)
	got, _, err := ParseLocator(in)
	if err != nil {
		t.Fatal(err)
	}
	if !laddr.Equal(got.Addr, ip("198.51.100.1")) {
		t.Errorf("advertised %s, want the RTR", got.Addr)
	}
}

func TestPutMappingSkipsPlaceholders(t *testing.T) {
	m := NewMapping(prefix(t, "10.9.0.0/16"))
	m.AddLocator(&Locator{Addr: laddr.NoAddr{}})
	m.AddLocator(&Locator{Addr: ip("192.0.2.1"), State: Up})

	b, _ := Create(MapReply)
	rec, err := PutMapping(b, m, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.LocatorCount() != 1 {
		t.Errorf("locator count %d, want 1", rec.LocatorCount())
	}
	if m.LocatorCount() != 2 {
		t.Error("PutMapping modified the mapping")
	}

	reply, err := ParseMapReply(received(b))
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Records) != 1 || reply.Records[0].LocatorCount() != 1 {
		t.Errorf("records %v", reply.Records)
	}
}

func TestRecordCount(t *testing.T) {
	b, _ := Create(MapReply)
	for i := 0; i < 3; i++ {
		if _, err := PutNegativeMapping(b, prefix(t, "10.0.0.0/8"), 15,
			NativelyForward); err != nil {
			t.Fatal(err)
		}
	}
	hdr, _ := AsMapReplyHdr(b.Layer(lbuf.LISP))
	if hdr.RecordCount() != 3 {
		t.Errorf("record count %d", hdr.RecordCount())
	}

	e, _ := Create(EncapControl)
	if _, err := PutEIDRecord(e, ip("10.0.0.1")); errors.Cause(err) != ErrUnsupportedType {
		t.Errorf("record in ECM: %v", err)
	}
}

func TestNegMapReply(t *testing.T) {
	b, err := NegMapReplyCreate(prefix(t, "[5]10.0.0.0/8"), 15,
		NativelyForward, 0x0102030405060708)
	if err != nil {
		t.Fatal(err)
	}
	reply, err := ParseMapReply(received(b))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Hdr.Nonce() != 0x0102030405060708 {
		t.Errorf("nonce %x", reply.Hdr.Nonce())
	}
	m := reply.Records[0]
	if m.Action != NativelyForward || m.TTL != 15 || m.LocatorCount() != 0 {
		t.Errorf("record %s", m)
	}
	if m.EID.String() != "[5]10.0.0.0/8" {
		t.Errorf("EID %s", m.EID)
	}
}

func TestHdrString(t *testing.T) {
	b, _ := Create(MapRequest)
	if s := HdrString(b); s[:11] != "Map-Request" {
		t.Errorf("HdrString %q", s)
	}
	e, _ := Create(EncapControl)
	if s := HdrString(e); s != "Truncated LISP header" && s[:7] != "Unknown" {
		t.Errorf("empty ECM %q", s)
	}
}
