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
	"strings"
	"testing"
)

func TestProcessIPCdatabaseMappings(t *testing.T) {
	c := testControl(t)
	c.cfg.mapServerAddr = netip.Addr{}

	msg := `{"type": "database-mappings", "database-mappings": [
	    {"eid-prefix": "10.5.0.0/16", "instance-id": "9", "ttl": "30",
	     "rlocs": [{"rloc": "192.0.2.1", "priority": "1", "weight": "100"},
	               {"rloc": "2001:db8::1", "priority": "2", "weight": "50",
	                "mpriority": "3", "mweight": "4"}]},
	    {"eid-prefix": "2001:db8:5::/48", "rlocs": [
	        {"rloc": "192.0.2.1", "priority": "1", "weight": "1"}]}]}`

	show, err := lispProcessIPC([]byte(msg), c)
	if err != nil {
		t.Fatal(err)
	}
	if show {
		t.Error("show requested")
	}

	if n := len(c.db.lispLMLmappings()); n != 2 {
		t.Fatalf("%d mappings, want the 2 just loaded", n)
	}
	db := c.db.lispLMLlookup(9, netip.MustParseAddr("10.5.1.1"))
	if db == nil {
		t.Fatal("[9]10.5.0.0/16 not loaded")
	}
	if db.mapping.TTL != 30 || db.mapping.LocatorCount() != 2 {
		t.Errorf("mapping %s", db.mapping)
	}
	if c.db.lispLMLlookup(0, netip.MustParseAddr("2001:db8:5::1")) == nil {
		t.Error("IPv6 EID not loaded")
	}
	if c.db.lispLMLlookup(7, netip.MustParseAddr("10.1.0.1")) != nil {
		t.Error("old mapping still present")
	}
}

func TestProcessIPCarray(t *testing.T) {
	c := testControl(t)
	control, data := lispDebugLogging, lispDataPlaneLogging
	defer func() { lispDebugLogging, lispDataPlaneLogging = control, data }()

	msg := `[{"type": "xtr-parameters", "control-plane-logging": false,
	          "data-plane-logging": true},
	         {"type": "show"}]`
	show, err := lispProcessIPC([]byte(msg), c)
	if err != nil {
		t.Fatal(err)
	}
	if !show {
		t.Error("show not requested")
	}
	if lispDebugLogging || !lispDataPlaneLogging {
		t.Errorf("logging %v/%v", lispDebugLogging, lispDataPlaneLogging)
	}

	// Omitted flags are left alone.
	if _, err := lispProcessIPC([]byte(`{"type": "xtr-parameters"}`), c); err != nil {
		t.Fatal(err)
	}
	if lispDebugLogging || !lispDataPlaneLogging {
		t.Error("omitted flags changed")
	}
}

func TestProcessIPCerrors(t *testing.T) {
	c := testControl(t)
	c.cfg.mapServerAddr = netip.Addr{}
	before := len(c.db.lispLMLmappings())

	tests := []struct {
		name string
		msg  string
	}{
		{"not json", `type=show`},
		{"unknown type", `{"type": "restart"}`},
		{"bad array", `[{"type": "show"}`},
		{"bad instance-id", `{"type": "database-mappings", "database-mappings":
		    [{"eid-prefix": "10.5.0.0/16", "instance-id": "x",
		      "rlocs": [{"rloc": "192.0.2.1", "priority": "1", "weight": "1"}]}]}`},
		{"bad rloc", `{"type": "database-mappings", "database-mappings":
		    [{"eid-prefix": "10.5.0.0/16",
		      "rlocs": [{"rloc": "192.0.2", "priority": "1", "weight": "1"}]}]}`},
		{"bad ttl", `{"type": "database-mappings", "database-mappings":
		    [{"eid-prefix": "10.5.0.0/16", "ttl": "-1",
		      "rlocs": [{"rloc": "192.0.2.1", "priority": "1", "weight": "1"}]}]}`},
	}
	for _, tt := range tests {
		if _, err := lispProcessIPC([]byte(tt.msg), c); err == nil {
			t.Errorf("%s: no error", tt.name)
		}
	}
	if n := len(c.db.lispLMLmappings()); n != before {
		t.Errorf("rejected messages changed the database: %d mappings", n)
	}
}

func TestShowState(t *testing.T) {
	c := testControl(t)
	lispCount(lispPathDecap, "good-packets", make([]byte, 100))

	out := lispShowState(c.cfg, c.db)
	for _, want := range []string{
		"198.51.100.1",
		"10.1.0.0/16",
		"[3]10.2.0.0/16",
		"Found 2 entries",
		"decap/good-packets",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("show output lacks %q:\n%s", want, out)
		}
	}
}
