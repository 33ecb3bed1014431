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

package main

import (
	"net/netip"
	"testing"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
	"github.com/warmspit/lisp-xtr/lisp"
)

func testControl(t *testing.T) *lispControl {
	t.Helper()
	cfg, err := lispLoadConfig([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	cfg.rloc6 = netip.Addr{}
	table := new(lispLMLtable)
	if err := lispLoadDatabase(table, cfg.mappings); err != nil {
		t.Fatal(err)
	}
	return &lispControl{cfg: cfg, db: table}
}

func addr(s string) laddr.Address {
	return laddr.FromNetIP(netip.MustParseAddr(s))
}

func eid(t *testing.T, s string) laddr.Address {
	t.Helper()
	a, err := laddr.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func mapRequest(t *testing.T, deid laddr.Address, probe bool) *lbuf.Buffer {
	t.Helper()
	rlocs := []laddr.Address{addr("2001:db8::99"), addr("203.0.113.5")}
	b, err := lisp.MapRequestCreate(nil, rlocs, deid)
	if err != nil {
		t.Fatal(err)
	}
	hdr, _ := lisp.AsMapRequestHdr(b.Layer(lbuf.LISP))
	hdr.SetNonce(0x0102030405060708)
	hdr.SetProbe(probe)
	return b
}

func parseReply(t *testing.T, reply *lbuf.Buffer) *lisp.MapReplyMsg {
	t.Helper()
	if reply == nil {
		t.Fatal("no reply")
	}
	in := lbuf.Wrap(append([]byte(nil), reply.Data()...))
	in.ResetLayer(lbuf.LISP)
	msg, err := lisp.ParseMapReply(in)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Hdr.Nonce() != 0x0102030405060708 {
		t.Errorf("nonce %#x", msg.Hdr.Nonce())
	}
	if len(msg.Records) != 1 {
		t.Fatalf("%d records", len(msg.Records))
	}
	return msg
}

func TestMapRequestForLocalEID(t *testing.T) {
	c := testControl(t)
	src := netip.MustParseAddrPort("198.51.100.10:4342")
	req := mapRequest(t, eid(t, "[7]10.1.2.0/24"), false)

	reply, dst, err := c.lispProcessControlPacket(req.Data(), src)
	if err != nil {
		t.Fatal(err)
	}

	// The only ITR-RLOC we can reach is the IPv4 one.
	if dst != netip.MustParseAddrPort("203.0.113.5:4342") {
		t.Errorf("reply sent to %s", dst)
	}

	msg := parseReply(t, reply)
	if msg.Hdr.Probe() {
		t.Error("probe bit set")
	}
	iid, p, err := lispEIDprefix(msg.Records[0].EID)
	if err != nil || iid != 7 || p != netip.MustParsePrefix("10.1.0.0/16") {
		t.Errorf("record EID [%d]%s %v", iid, p, err)
	}
	if n := msg.Records[0].LocatorCount(); n != 2 {
		t.Errorf("%d locators", n)
	}
	if msg.Probed[0] != nil {
		t.Errorf("probed locator %s", msg.Probed[0])
	}
}

func TestMapRequestNegativeReply(t *testing.T) {
	c := testControl(t)
	src := netip.MustParseAddrPort("198.51.100.10:4342")
	deid := eid(t, "[7]10.9.0.0/16")

	reply, _, err := c.lispProcessControlPacket(mapRequest(t, deid, false).Data(),
		src)
	if err != nil {
		t.Fatal(err)
	}

	m := parseReply(t, reply).Records[0]
	if m.LocatorCount() != 0 || m.Action != lispNegativeAction ||
		m.TTL != lispNegativeTTL {
		t.Errorf("negative record %s", m)
	}
	if !laddr.Equal(m.EID, deid) {
		t.Errorf("negative EID %s, want %s", m.EID, deid)
	}
}

func TestMapRequestProbe(t *testing.T) {
	c := testControl(t)
	src := netip.MustParseAddrPort("198.51.100.10:4342")
	req := mapRequest(t, eid(t, "[7]10.1.0.1"), true)

	reply, _, err := c.lispProcessControlPacket(req.Data(), src)
	if err != nil {
		t.Fatal(err)
	}
	msg := parseReply(t, reply)
	if !msg.Hdr.Probe() {
		t.Error("probe bit not set")
	}
	p := msg.Probed[0]
	if p == nil || !laddr.Equal(p.Addr, addr("192.0.2.1")) {
		t.Errorf("probed locator %v", p)
	}
}

func TestMapRequestInECM(t *testing.T) {
	c := testControl(t)
	req := mapRequest(t, eid(t, "[7]10.1.0.0/16"), false)
	err := lisp.ECMEncap(req, 40000, lisp.ControlPort, addr("203.0.113.5"),
		addr("192.0.2.1"))
	if err != nil {
		t.Fatal(err)
	}

	src := netip.MustParseAddrPort("198.51.100.10:4342")
	reply, dst, err := c.lispProcessControlPacket(req.Data(), src)
	if err != nil {
		t.Fatal(err)
	}
	if dst.Port() != 40000 {
		t.Errorf("reply port %d, want inner source port", dst.Port())
	}
	parseReply(t, reply)
}

func TestMapNotifyAuthentication(t *testing.T) {
	c := testControl(t)
	src := netip.MustParseAddrPort("198.51.100.10:4342")

	notify := func(key string) []byte {
		b, err := lisp.Create(lisp.MapNotify)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := lisp.PutEmptyAuthRecord(b, lisp.HMACSHA196); err != nil {
			t.Fatal(err)
		}
		if _, err := lisp.PutMapping(b, c.cfg.mappings[0], nil); err != nil {
			t.Fatal(err)
		}
		if err := lisp.FillAuthData(b, lisp.HMACSHA196, key); err != nil {
			t.Fatal(err)
		}
		return b.Data()
	}

	reply, _, err := c.lispProcessControlPacket(notify("secret"), src)
	if err != nil || reply != nil {
		t.Errorf("good Map-Notify: %v", err)
	}
	_, _, err = c.lispProcessControlPacket(notify("wrong"), src)
	if errors.Cause(err) != lisp.ErrAuthFailed {
		t.Errorf("bad Map-Notify: %v", err)
	}
}

func TestControlUnsupportedType(t *testing.T) {
	c := testControl(t)
	b, err := lisp.MapRegisterCreate(c.cfg.mappings[0], lisp.KeyNone)
	if err != nil {
		t.Fatal(err)
	}
	src := netip.MustParseAddrPort("198.51.100.10:4342")
	_, _, err = c.lispProcessControlPacket(b.Data(), src)
	if errors.Cause(err) != lisp.ErrUnsupportedType {
		t.Errorf("Map-Register: %v", err)
	}
}

func TestMapRegisterCreate(t *testing.T) {
	c := testControl(t)

	for _, nat := range []bool{false, true} {
		c.cfg.mapServer.NATTraversal = nat
		b, err := c.lispMapRegisterCreate(c.cfg.mappings[0])
		if err != nil {
			t.Fatal(err)
		}

		in := lbuf.Wrap(append([]byte(nil), b.Data()...))
		in.ResetLayer(lbuf.LISP)
		if err := lisp.CheckAuthField(in, "secret"); err != nil {
			t.Errorf("nat %v: %v", nat, err)
		}
		msg, err := lisp.ParseMapRegister(in)
		if err != nil {
			t.Fatal(err)
		}
		if !msg.Hdr.WantMapNotify() || msg.Hdr.Nonce() == 0 {
			t.Errorf("nat %v: header %s", nat, msg.Hdr)
		}
		if msg.Hdr.XTRIDPresent() != nat || msg.Hdr.RTR() != nat {
			t.Errorf("nat %v: header %s", nat, msg.Hdr)
		}
		if nat && (len(msg.XTRID) != 16 || msg.XTRID[15] != 0xff) {
			t.Errorf("xtr-id %x", msg.XTRID)
		}
		if msg.KeyID != lisp.HMACSHA196 || len(msg.Records) != 1 {
			t.Errorf("key %s, %d records", msg.KeyID, len(msg.Records))
		}
	}
}
