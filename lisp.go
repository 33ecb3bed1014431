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
// lisp.go
//
// This file contains logging and address helper functions used by xtr.go,
// control.go and ipc.go.
//
// Control-plane logging and data-plane logging are toggled separately, from
// the config file or at run time with an "xtr-parameters" IPC message.
//
// ---------------------------------------------------------------------------

package main

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
	"github.com/warmspit/lisp-xtr/lisp"
)

//
// ---------- Variable Definitions ----------
//
var lispDebugLogging = true
var lispDataPlaneLogging = false

var clog = logrus.WithField("plane", "control")
var dlog = logrus.WithField("plane", "data")

//
// lispSetupLogging
//
// Set the logrus format and level. The timestamp layout matches the one the
// xTR has always printed.
//
func lispSetupLogging(level string) error {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01/02/06 15:04:05.000",
	})
	if level == "" {
		level = "info"
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log-level %q", level)
	}
	logrus.SetLevel(l)
	lisp.SetLogger(clog.WithField("module", "lisp"))
	return nil
}

//
// lprint
//
// Print control-plane logging output when configured.
//
func lprint(format string, args ...interface{}) {
	if !lispDebugLogging {
		return
	}
	clog.Infof(format, args...)
}

//
// dprint
//
// Print data-plane logging output when configured.
//
func dprint(format string, args ...interface{}) {
	if !lispDataPlaneLogging {
		return
	}
	dlog.Infof(format, args...)
}

//
// bold
//
// Make input string boldface.
//
func bold(str string) string {
	return ("\033[1m" + str + "\033[0m")
}

//
// green
//
// Make input string green.
//
func green(str string) string {
	return ("\033[92m" + bold(str) + "\033[0m")
}

//
// red
//
// Make input string red.
//
func red(str string) string {
	return ("\033[91m" + bold(str) + "\033[0m")
}

func hexWords(b []byte) string {
	var sb strings.Builder
	for i := 0; i+4 <= len(b); i += 4 {
		fmt.Fprintf(&sb, "%02x%02x%02x%02x ", b[i], b[i+1], b[i+2], b[i+3])
	}
	return strings.TrimSpace(sb.String())
}

//
// lispLogPacket
//
// Log the headers of a data packet. Each recorded layer of the buffer is
// printed as 32-bit words. Should be called only when lispDataPlaneLogging
// is true.
//
func lispLogPacket(prefixString string, b *lbuf.Buffer) {
	out := prefixString + ":"
	cut := func(from, to lbuf.Layer, max int) []byte {
		h := b.Layer(from)
		if h == nil {
			return nil
		}
		if next := b.LayerOffset(to); next > b.LayerOffset(from) {
			h = h[:next-b.LayerOffset(from)]
		}
		if len(h) > max {
			h = h[:max]
		}
		return h
	}

	if h := cut(lbuf.L3, lbuf.L4, 40); h != nil && b.LayerOffset(lbuf.L4) >= 0 {
		out += " outer: " + hexWords(h)
	}
	if h := cut(lbuf.L4, lbuf.LISPHdr, 8); h != nil {
		out += " UDP: " + hexWords(h)
	}
	if h := b.Layer(lbuf.LISPHdr); len(h) >= lisp.DataHdrLen {
		out += " LISP: " + hexWords(h[:lisp.DataHdrLen])
	}

	inner := b.Data()
	switch {
	case len(inner) >= 40 && inner[0]>>4 == 6:
		inner = inner[:40]
	case len(inner) >= 20 && inner[0]>>4 == 4:
		inner = inner[:20]
	default:
		if len(inner) > 8 {
			inner = inner[:8]
		}
	}
	out += " inner: " + hexWords(inner)
	dprint(out)
}

//
// lispGetLocalAddress
//
// Given supplied interface, return local IPv4 and IPv6 addresses. Loopback
// and link-local addresses are skipped.
//
func lispGetLocalAddress(device string) (netip.Addr, netip.Addr, error) {
	var ipv4, ipv6 netip.Addr

	intf, err := net.InterfaceByName(device)
	if err != nil {
		return ipv4, ipv6, errors.Wrapf(err, "interface %s", device)
	}
	addrs, err := intf.Addrs()
	if err != nil {
		return ipv4, ipv6, errors.Wrapf(err, "addresses of %s", device)
	}

	for _, a := range addrs {
		p, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		addr := p.Addr().Unmap()
		if addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			continue
		}
		if addr.Is4() && !ipv4.IsValid() {
			ipv4 = addr
		}
		if addr.Is6() && !ipv6.IsValid() {
			ipv6 = addr
		}
	}
	return ipv4, ipv6, nil
}

//
// lispEIDprefix
//
// Split an EID address into instance-ID and IP prefix. Only IP and
// instance-ID addresses can be EIDs in the database.
//
func lispEIDprefix(a laddr.Address) (uint32, netip.Prefix, error) {
	var iid uint32

	if v, ok := a.(laddr.InstanceID); ok {
		iid = v.IID
		a = v.Addr
	}
	ip, ok := a.(laddr.IP)
	if !ok || !ip.Addr.IsValid() {
		return 0, netip.Prefix{}, errors.Errorf("EID %v is not an IP prefix", a)
	}
	p, err := ip.Addr.Prefix(ip.Plen)
	if err != nil {
		return 0, netip.Prefix{}, errors.Wrapf(err, "EID %v", a)
	}
	return iid, p, nil
}

//
// lispHashAddress
//
// Hash the inner source and destination addresses to select an encapsulation
// source port. Flows stay on one port and different flows spread across
// the range 0xc000-0xffff.
//
func lispHashAddress(inner []byte) uint16 {
	var s, d []byte

	switch {
	case len(inner) >= 20 && inner[0]>>4 == 4:
		s, d = inner[12:16], inner[16:20]
	case len(inner) >= 40 && inner[0]>>4 == 6:
		s, d = inner[8:24], inner[24:40]
	default:
		return 0xc000
	}

	var hash uint32
	for i := range s {
		hash = hash<<1 ^ hash>>31 ^ uint32(s[i]) ^ uint32(d[i])<<8
	}

	//
	// Fold result into a short.
	//
	return 0xc000 | (uint16(hash>>16)^uint16(hash&0xffff))&0x3fff
}

//
// lispWriteFile
//
// Write supplied string to supplied file.
//
func lispWriteFile(filename string, text string) {
	if err := os.WriteFile(filename, []byte(text), 0644); err != nil {
		lprint("Could not write file %s: %s", filename, err)
	}
}

//-----------------------------------------------------------------------------
