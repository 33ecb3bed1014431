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
// lml.go
//
// This file contains functions for the "Longest Match Lookup (LML)" support.
// It holds the local database-mappings. control.go looks up the EIDs of a
// Map-Request in it, xtr.go checks the source EID of packets read from the
// tun device against it and ipc.go replaces its contents when the
// database-mappings change.
//
// ---------------------------------------------------------------------------

package main

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lisp"
)

//
// Local database-mappings, keyed by instance-ID and EID-prefix.
//
var lispDB = new(lispLMLtable)

type lispDatabase struct {
	nextDb    *lispDatabase
	iid       uint32
	eidPrefix netip.Prefix
	mapping   *lisp.Mapping
}

//
// newLispDatabase
//
// Make a database entry for a mapping. The EID-prefix is stored with host
// bits cleared.
//
func newLispDatabase(m *lisp.Mapping) (*lispDatabase, error) {
	iid, p, err := lispEIDprefix(m.EID)
	if err != nil {
		return nil, err
	}
	return &lispDatabase{iid: iid, eidPrefix: p.Masked(), mapping: m}, nil
}

func (db *lispDatabase) String() string {
	return fmt.Sprintf("[%d]%s", db.iid, db.eidPrefix)
}

//
// lispMoreSpecific
//
// Return true if the supplied address is covered by the entry's prefix in
// the same instance-ID.
//
func (db *lispDatabase) lispMoreSpecific(iid uint32, addr netip.Addr) bool {
	return db.iid == iid && db.eidPrefix.Contains(addr)
}

type lispHashTable struct {
	htCount   int
	hashTable [256]*lispDatabase // 8-bit hash
}

//
// The first level array is indexed by mask-length. IPv4 and IPv6 prefixes
// of the same length share a hash table.
//
type lispLMLtable struct {
	mu  sync.RWMutex
	hts [129]*lispHashTable
}

//
// lispLMLaddEntry
//
// Add an entry to the LML data structure. An entry for the same
// instance-ID and EID-prefix is replaced.
//
func (t *lispLMLtable) lispLMLaddEntry(db *lispDatabase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old := t.exact(db.iid, db.eidPrefix); old != nil {
		t.remove(old)
	}

	//
	// The EID-prefix slot in the array of hash-tables is based on its
	// prefix mask-length. Allocate memory for hash-table if this is the
	// first entry for the mask-length.
	//
	ht := t.hts[db.eidPrefix.Bits()]
	if ht == nil {
		ht = new(lispHashTable)
		t.hts[db.eidPrefix.Bits()] = ht
	}

	//
	// Hash the address to get a hash-table slot between the values of 0 and
	// 255. Insert at slot by "pushing down" all other entries.
	//
	hash := lispLMLhash(db.iid, db.eidPrefix)
	db.nextDb = ht.hashTable[hash]
	ht.hashTable[hash] = db
	ht.htCount++
}

//
// lispLMLdeleteEntry
//
// Remove entry from LML table. Returns false if it was not there.
//
func (t *lispLMLtable) lispLMLdeleteEntry(db *lispDatabase) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(db)
}

func (t *lispLMLtable) remove(db *lispDatabase) bool {
	ht := t.hts[db.eidPrefix.Bits()]
	if ht == nil {
		return false
	}

	//
	// Search for the entry pointer. Use pointer to pointer to relink.
	//
	hash := lispLMLhash(db.iid, db.eidPrefix)
	for e := &ht.hashTable[hash]; *e != nil; e = &((*e).nextDb) {
		if *e == db {
			*e = db.nextDb
			db.nextDb = nil
			ht.htCount--
			return true
		}
	}
	return false
}

//
// lispLMLlookup
//
// Longest match lookup. Hash tables are checked from the host mask-length
// of the address family down to /0.
//
func (t *lispLMLtable) lispLMLlookup(iid uint32, dest netip.Addr) *lispDatabase {
	dest = dest.Unmap()
	return t.longest(iid, dest, dest.BitLen())
}

func (t *lispLMLtable) longest(iid uint32, dest netip.Addr, maxLen int) *lispDatabase {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !dest.IsValid() {
		return nil
	}
	for i := maxLen; i >= 0; i-- {
		ht := t.hts[i]
		if ht == nil || ht.htCount == 0 {
			continue
		}

		p, _ := dest.Prefix(i)
		hash := lispLMLhash(iid, p)
		for db := ht.hashTable[hash]; db != nil; db = db.nextDb {
			if db.lispMoreSpecific(iid, dest) {
				return db
			}
		}
	}
	return nil
}

//
// lispLMLexactLookup
//
// Return the entry whose EID-prefix is exactly the supplied prefix.
//
func (t *lispLMLtable) lispLMLexactLookup(iid uint32, p netip.Prefix) *lispDatabase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exact(iid, p.Masked())
}

func (t *lispLMLtable) exact(iid uint32, p netip.Prefix) *lispDatabase {
	if !p.IsValid() {
		return nil
	}
	ht := t.hts[p.Bits()]
	if ht == nil {
		return nil
	}
	for db := ht.hashTable[lispLMLhash(iid, p)]; db != nil; db = db.nextDb {
		if db.iid == iid && db.eidPrefix == p {
			return db
		}
	}
	return nil
}

//
// lispLMLlookupEID
//
// Find the database entry for an EID from a Map-Request. Host EIDs use a
// longest match, prefix EIDs must be covered by a configured prefix.
//
func (t *lispLMLtable) lispLMLlookupEID(eid laddr.Address) *lispDatabase {
	iid, p, err := lispEIDprefix(eid)
	if err != nil {
		return nil
	}
	return t.longest(iid, p.Addr(), p.Bits())
}

//
// lispLMLhash
//
// Given a prefix, return a hash value that is in range of 0 to 255. The
// prefix host bits are zero so a stored prefix and a masked destination
// land in the same slot.
//
func lispLMLhash(iid uint32, p netip.Prefix) uint {
	hash := uint(iid) ^ uint(iid>>8) ^ uint(iid>>16) ^ uint(iid>>24)

	addr := p.Masked().Addr().AsSlice()
	for i := 0; i < len(addr) && i*8 < p.Bits(); i++ {
		hash = hash ^ uint(addr[i])
	}
	return (hash & 0xff)
}

//
// lispLMLshow
//
// Show internal representation of the LML data structure.
//
func (t *lispLMLtable) lispLMLshow() string {
	var out strings.Builder

	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for i, ht := range t.hts {
		if ht == nil || ht.htCount == 0 {
			continue
		}

		fmt.Fprintf(&out, "Hash table /%d, count %d\n", i, ht.htCount)
		slotCount := 0
		for hash, slot := range ht.hashTable {
			if slot == nil {
				continue
			}

			slotCount++
			fmt.Fprintf(&out, "  Hash 0x%x: ", hash)
			for db := slot; db != nil; db = db.nextDb {
				fmt.Fprintf(&out, "%s ", db)
				count++
			}
			fmt.Fprintf(&out, "\n")
		}
		if slotCount != 0 {
			fmt.Fprintf(&out, "Average slot collision: %d\n",
				ht.htCount/slotCount)
		}
	}

	fmt.Fprintf(&out, "Found %d entries\n", count)
	return out.String()
}

//
// lispLMLwalk
//
// Call fn for each entry of the LML table in mask-length order until fn
// returns false. fn must not modify the table.
//
func (t *lispLMLtable) lispLMLwalk(fn func(db *lispDatabase) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, ht := range t.hts {
		if ht == nil || ht.htCount == 0 {
			continue
		}
		for _, slot := range ht.hashTable {
			for db := slot; db != nil; db = db.nextDb {
				if !fn(db) {
					return
				}
			}
		}
	}
}

//
// lispLMLmappings
//
// Return the mappings of all entries.
//
func (t *lispLMLtable) lispLMLmappings() []*lisp.Mapping {
	var out []*lisp.Mapping
	t.lispLMLwalk(func(db *lispDatabase) bool {
		out = append(out, db.mapping)
		return true
	})
	return out
}

//
// lmlClearHashTable
//
// Remove all entries from LML hash-table.
//
func (t *lispLMLtable) lmlClearHashTable() {
	t.mu.Lock()
	t.hts = [129]*lispHashTable{}
	t.mu.Unlock()
}
