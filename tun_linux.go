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
// tun_linux.go
//
// The tun device is where decapsulated packets are delivered and where
// packets to be encapsulated are read from. It carries bare IP packets, no
// packet information header.
//
// ---------------------------------------------------------------------------

package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

type lispTun struct {
	link *netlink.Tuntap
	file *os.File
}

//
// lispCreateTun
//
// Create a non-persistent tun device, set its MTU and address and bring it
// up. The device goes away when the file is closed.
//
func lispCreateTun(name, address string, mtu int) (*lispTun, error) {
	link := &netlink.Tuntap{
		LinkAttrs:  netlink.LinkAttrs{Name: name},
		Mode:       netlink.TUNTAP_MODE_TUN,
		Flags:      netlink.TUNTAP_NO_PI,
		NonPersist: true,
		Queues:     1,
	}
	if err := netlink.LinkAdd(link); err != nil {
		return nil, errors.Wrapf(err, "create tun %s", name)
	}
	if len(link.Fds) == 0 {
		return nil, errors.Errorf("tun %s: no file descriptor", name)
	}
	t := &lispTun{link: link, file: link.Fds[0]}

	if mtu > 0 {
		if err := netlink.LinkSetMTU(link, mtu); err != nil {
			t.Close()
			return nil, errors.Wrapf(err, "set %s mtu %d", name, mtu)
		}
	}
	if address != "" {
		addr, err := netlink.ParseAddr(address)
		if err != nil {
			t.Close()
			return nil, errors.Wrapf(err, "tun-address %q", address)
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			t.Close()
			return nil, errors.Wrapf(err, "add %s to %s", address, name)
		}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		t.Close()
		return nil, errors.Wrapf(err, "set %s up", name)
	}

	lprint("Created tun device %s, address %s, mtu %d", bold(link.Name),
		address, mtu)
	return t, nil
}

func (t *lispTun) Read(b []byte) (int, error) {
	return t.file.Read(b)
}

func (t *lispTun) Write(b []byte) (int, error) {
	return t.file.Write(b)
}

func (t *lispTun) Close() error {
	return t.file.Close()
}
