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
// mapping.go
//
// EID-to-RLOC mappings and their locators.
//
// ---------------------------------------------------------------------------

package lisp

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
)

// LocatorState is the reachability of a locator.
type LocatorState uint8

const (
	Down LocatorState = 0
	Up   LocatorState = 1
)

func (s LocatorState) String() string {
	if s == Up {
		return "up"
	}
	return "down"
}

// Locator is one RLOC of a mapping.
type Locator struct {
	Addr      laddr.Address
	Priority  uint8
	Weight    uint8
	MPriority uint8
	MWeight   uint8
	Local     bool
	State     LocatorState

	// RTR is the re-encapsulating tunnel router to advertise instead of
	// Addr when this locator sits behind a NAT. Nil when unused.
	RTR laddr.Address
}

func (l *Locator) String() string {
	s := fmt.Sprintf("%s, state: %s, p/w: %d/%d %d/%d", l.Addr, l.State,
		l.Priority, l.Weight, l.MPriority, l.MWeight)
	if !laddr.IsNoAddr(l.RTR) {
		s += fmt.Sprintf(", rtr: %s", l.RTR)
	}
	return s
}

// Action is what an ITR does with packets matching a negative mapping.
type Action uint8

const (
	NoAction        Action = 0
	NativelyForward Action = 1
	SendMapRequest  Action = 2
	Drop            Action = 3
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "no-action"
	case NativelyForward:
		return "natively-forward"
	case SendMapRequest:
		return "send-map-request"
	case Drop:
		return "drop"
	}
	return fmt.Sprintf("action-%d", uint8(a))
}

// Mapping binds an EID prefix to a set of locators. Locators are kept in
// groups, one per address family, in the order each family was first added.
type Mapping struct {
	EID           laddr.Address
	TTL           uint32
	Action        Action
	Authoritative bool
	MapVersion    uint16

	groups []locatorGroup
}

type locatorGroup struct {
	afi  uint16
	locs []*Locator
}

// NewMapping returns an empty mapping for eid.
func NewMapping(eid laddr.Address) *Mapping {
	return &Mapping{EID: eid}
}

// AddLocator adds loc to the group of its address family. A locator whose
// address is already present is rejected with ErrExist.
func (m *Mapping) AddLocator(loc *Locator) error {
	if loc == nil || loc.Addr == nil {
		return errors.Wrap(ErrAddress, "locator without address")
	}
	if m.FindLocator(loc.Addr) != nil {
		return errors.Wrapf(ErrExist, "locator %s in %s", loc.Addr, m.EID)
	}

	afi := locatorAFI(loc.Addr)
	for i := range m.groups {
		if m.groups[i].afi == afi {
			m.groups[i].locs = append(m.groups[i].locs, loc)
			return nil
		}
	}
	m.groups = append(m.groups, locatorGroup{afi: afi, locs: []*Locator{loc}})
	return nil
}

func locatorAFI(a laddr.Address) uint16 {
	if afi := laddr.IPAFI(a); afi != laddr.AFINone {
		return afi
	}
	return laddr.AFI(a)
}

// FindLocator returns the locator with address a, or nil.
func (m *Mapping) FindLocator(a laddr.Address) *Locator {
	for _, g := range m.groups {
		for _, l := range g.locs {
			if laddr.Equal(l.Addr, a) {
				return l
			}
		}
	}
	return nil
}

// LocatorGroups returns the locator groups. The outer and inner slices are
// copies; the locators are shared.
func (m *Mapping) LocatorGroups() [][]*Locator {
	groups := make([][]*Locator, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, append([]*Locator(nil), g.locs...))
	}
	return groups
}

// Locators returns every locator, group by group.
func (m *Mapping) Locators() []*Locator {
	var locs []*Locator
	for _, g := range m.groups {
		locs = append(locs, g.locs...)
	}
	return locs
}

// LocatorCount counts every locator including no-address placeholders.
func (m *Mapping) LocatorCount() int {
	n := 0
	for _, g := range m.groups {
		n += len(g.locs)
	}
	return n
}

func (m *Mapping) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EID %s, ttl %d, action %s, auth %v", m.EID, m.TTL,
		m.Action, m.Authoritative)
	for _, l := range m.Locators() {
		fmt.Fprintf(&b, "\n  RLOC %s", l)
	}
	return b.String()
}
