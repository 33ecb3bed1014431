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

	"github.com/warmspit/lisp-xtr/laddr"
)

func addDB(t *testing.T, table *lispLMLtable, eid string) *lispDatabase {
	t.Helper()
	m, err := lispNewLocalMapping(eid, 0, []string{"192.0.2.1 1 100"})
	if err != nil {
		t.Fatal(err)
	}
	db, err := newLispDatabase(m)
	if err != nil {
		t.Fatal(err)
	}
	table.lispLMLaddEntry(db)
	return db
}

func TestLMLlongestMatch(t *testing.T) {
	table := new(lispLMLtable)
	wide := addDB(t, table, "10.0.0.0/8")
	narrow := addDB(t, table, "10.1.0.0/16")
	iid5 := addDB(t, table, "[5]10.1.0.0/16")
	v6 := addDB(t, table, "2001:db8::/32")

	tests := []struct {
		iid  uint32
		addr string
		want *lispDatabase
	}{
		{0, "10.1.2.3", narrow},
		{0, "10.2.0.1", wide},
		{0, "11.0.0.1", nil},
		{5, "10.1.2.3", iid5},
		{5, "10.2.0.1", nil},
		{0, "2001:db8:1::1", v6},
		{0, "2001:db9::1", nil},
		{0, "::ffff:10.1.0.1", narrow},
	}
	for _, tt := range tests {
		got := table.lispLMLlookup(tt.iid, netip.MustParseAddr(tt.addr))
		if got != tt.want {
			t.Errorf("lookup [%d]%s = %v, want %v", tt.iid, tt.addr, got,
				tt.want)
		}
	}
}

func TestLMLhostBitsMasked(t *testing.T) {
	table := new(lispLMLtable)
	db := addDB(t, table, "10.1.2.3/16")
	if db.eidPrefix != netip.MustParsePrefix("10.1.0.0/16") {
		t.Errorf("stored prefix %s", db.eidPrefix)
	}
	if table.lispLMLlookup(0, netip.MustParseAddr("10.1.200.1")) != db {
		t.Error("lookup after masking")
	}
}

func TestLMLexactAndDelete(t *testing.T) {
	table := new(lispLMLtable)
	wide := addDB(t, table, "10.0.0.0/8")
	narrow := addDB(t, table, "10.1.0.0/16")

	p := netip.MustParsePrefix("10.1.0.0/16")
	if table.lispLMLexactLookup(0, p) != narrow {
		t.Fatal("exact lookup")
	}
	if table.lispLMLexactLookup(5, p) != nil {
		t.Error("exact lookup ignores instance-ID")
	}
	if table.lispLMLexactLookup(0, netip.MustParsePrefix("10.1.0.0/17")) != nil {
		t.Error("exact lookup matched a different length")
	}

	if !table.lispLMLdeleteEntry(narrow) {
		t.Fatal("delete")
	}
	if table.lispLMLdeleteEntry(narrow) {
		t.Error("second delete succeeded")
	}
	if got := table.lispLMLlookup(0, netip.MustParseAddr("10.1.2.3")); got != wide {
		t.Errorf("lookup after delete = %v", got)
	}
}

func TestLMLreplace(t *testing.T) {
	table := new(lispLMLtable)
	first := addDB(t, table, "10.1.0.0/16")
	second := addDB(t, table, "10.1.0.0/16")

	if got := table.lispLMLlookup(0, netip.MustParseAddr("10.1.0.1")); got != second {
		t.Errorf("lookup = %p, want replacement %p (first %p)", got, second,
			first)
	}
	if n := len(table.lispLMLmappings()); n != 1 {
		t.Errorf("%d mappings after replace", n)
	}
}

func TestLMLlookupEID(t *testing.T) {
	table := new(lispLMLtable)
	db := addDB(t, table, "10.1.0.0/16")
	addDB(t, table, "10.1.2.0/24")

	tests := []struct {
		eid  string
		want bool
	}{
		{"10.1.0.0/16", true},
		{"10.1.128.0/17", true},
		{"10.1.3.4", true},
		{"10.0.0.0/8", false},
		{"[1]10.1.0.0/16", false},
		{"10.2.0.1", false},
	}
	for _, tt := range tests {
		eid, err := laddr.ParseString(tt.eid)
		if err != nil {
			t.Fatal(err)
		}
		got := table.lispLMLlookupEID(eid)
		if (got != nil) != tt.want {
			t.Errorf("lookupEID %s = %v", tt.eid, got)
		}
		if got != nil && got != db {
			t.Errorf("lookupEID %s = %v, want %v", tt.eid, got, db)
		}
	}
}

func TestLMLclear(t *testing.T) {
	table := new(lispLMLtable)
	addDB(t, table, "10.1.0.0/16")
	addDB(t, table, "2001:db8::/32")
	table.lmlClearHashTable()

	if n := len(table.lispLMLmappings()); n != 0 {
		t.Errorf("%d mappings after clear", n)
	}
	if table.lispLMLshow() != "Found 0 entries\n" {
		t.Errorf("show after clear: %q", table.lispLMLshow())
	}
}
