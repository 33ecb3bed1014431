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
// xtr.go
//
// This file contains the LISP ITR and ETR data-plane of lisp-xtr and the
// process startup and shutdown.
//
// The ETR reads LISP encapsulated packets from port 4341, strips the LISP
// header, restores the outer TTL and ToS into the inner header and writes
// the inner packet to the tun device.
//
// The ITR reads packets from the tun device, checks the source is a local
// EID and encapsulates them to the configured proxy-ETR.
//
// The control-plane (control.go) answers Map-Requests for the local
// database-mappings and registers them with the map-server.
//
// ---------------------------------------------------------------------------

package main

import (
	"flag"
	"io"
	"math/rand"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lbuf"
	"github.com/warmspit/lisp-xtr/lisp"
)

//
// Largest UDP payload, the receive size of the data sockets.
//
const lispMaxDatagramLen = 65535

//
// lispSender
//
// Sends a packet that starts with its outer IP header.
//
type lispSender interface {
	lispSend(packet []byte, dest netip.Addr) error
}

type lispXTR struct {
	cfg     *lispConfig
	control *lispControl
	tun     *lispTun
	encap   *lispRawSockets
	readers []lispDataReader
	tracer  *lispTracer
	ipc     *net.UnixConn
	closers []io.Closer
	wg      sync.WaitGroup
}

//
// main
//
// Main entry point for xtr.go that runs in binary file lisp-xtr.
//
func main() {
	configFile := flag.String("config", "./lisp-xtr.ini", "configuration file")
	flag.Parse()

	xtr, err := lispXTRstartup(*configFile)
	if err != nil {
		clog.WithError(err).Error("lisp-xtr startup failed")
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	lprint("Received signal %s", s)

	//
	// If we return, return resources.
	//
	xtr.lispXTRshutdown()
}

//
// lispXTRstartup
//
// Load the configuration, open sockets and the tun device and start the
// data-plane, control-plane and IPC threads.
//
func lispXTRstartup(configFile string) (*lispXTR, error) {
	cfg, err := lispLoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if err := lispSetupLogging(cfg.xtr.LogLevel); err != nil {
		return nil, err
	}
	lispDebugLogging = cfg.xtr.ControlPlaneLogging
	lispDataPlaneLogging = cfg.xtr.DataPlaneLogging

	hostname, _ := os.Hostname()
	hostname = strings.Split(hostname, ".")[0]
	lprint("lispers.net LISP xTR starting up, hostname %s", bold(hostname))

	if err := lispLocalRLOCs(cfg); err != nil {
		return nil, err
	}
	if err := lispLoadDatabase(lispDB, cfg.mappings); err != nil {
		return nil, err
	}

	xtr := &lispXTR{cfg: cfg}
	if err := xtr.lispOpen(); err != nil {
		xtr.lispXTRshutdown()
		return nil, err
	}
	if cfg.xtr.MetricsListen != "" {
		lispStartMetrics(cfg.xtr.MetricsListen)
	}

	for _, r := range xtr.readers {
		xtr.lispGo(func() { lispETRthread(r, xtr.tun) })
	}
	if xtr.encap != nil {
		xtr.lispGo(func() { lispITRthread(xtr.tun, cfg, lispDB, xtr.encap) })
	}
	xtr.lispGo(xtr.control.lispControlThread)
	xtr.lispGo(func() { lispIPCmessageProcessing(xtr.ipc, xtr) })

	lprint("Control-plane: %s", xtr.control)
	xtr.control.lispSendMapRegisters()
	return xtr, nil
}

func (xtr *lispXTR) lispGo(fn func()) {
	xtr.wg.Add(1)
	go func() {
		defer xtr.wg.Done()
		fn()
	}()
}

//
// lispOpen
//
// Open everything the threads need. On failure the caller closes what was
// opened so far.
//
func (xtr *lispXTR) lispOpen() error {
	cfg := xtr.cfg

	if cfg.xtr.PcapTrace != "" {
		f, err := os.Create(cfg.xtr.PcapTrace)
		if err != nil {
			return errors.Wrap(err, "pcap-trace")
		}
		if xtr.tracer, err = newLispTracer(f); err != nil {
			f.Close()
			return err
		}
		xtr.closers = append(xtr.closers, xtr.tracer)
		lprint("Tracing control messages to %s", cfg.xtr.PcapTrace)
	}

	tun, err := lispCreateTun(cfg.xtr.TunDevice, cfg.xtr.TunAddress,
		cfg.xtr.TunMTU)
	if err != nil {
		return err
	}
	xtr.tun = tun
	xtr.closers = append(xtr.closers, tun)

	//
	// Without a proxy-ETR there is nowhere to encapsulate to.
	//
	if cfg.proxyETR.IsValid() {
		if xtr.encap, err = lispCreateEncapSocket(); err != nil {
			return err
		}
		xtr.closers = append(xtr.closers, xtr.encap)
	}

	//
	// Create UDP socket for receiving IPv4 encapsulated LISP packets. IPv6
	// encapsulated packets use a socket or a capture.
	//
	s4, err := lispCreateDecapSocket()
	if err != nil {
		return err
	}
	xtr.lispAddReader(s4)

	if cfg.xtr.IPv6Capture {
		c, err := lispCreateDecapIPv6capture(cfg.xtr.CaptureInterface)
		if err != nil {
			return err
		}
		lprint("Capturing LISP packets with IPv6 RLOCs on '%s'",
			cfg.xtr.CaptureInterface)
		xtr.lispAddReader(c)
	} else {
		s6, err := lispCreateDecapIPv6Socket()
		if err != nil {
			return err
		}
		xtr.lispAddReader(s6)
	}

	conn, err := lispCreateControlSocket()
	if err != nil {
		return err
	}
	xtr.closers = append(xtr.closers, conn)
	xtr.control = &lispControl{conn: conn, cfg: cfg, db: lispDB,
		tracer: xtr.tracer}

	if xtr.ipc, err = lispCreateIPCsocket(cfg.xtr.IPCSocket); err != nil {
		return err
	}
	xtr.closers = append(xtr.closers, xtr.ipc)
	return nil
}

func (xtr *lispXTR) lispAddReader(r lispDataReader) {
	xtr.readers = append(xtr.readers, r)
	xtr.closers = append(xtr.closers, r)
}

//
// lispXTRshutdown
//
// Undo what was initialized in lispXTRstartup(). Closing the sockets ends
// the threads.
//
func (xtr *lispXTR) lispXTRshutdown() {
	for i := len(xtr.closers) - 1; i >= 0; i-- {
		xtr.closers[i].Close()
	}
	xtr.wg.Wait()
	if xtr.cfg != nil && xtr.cfg.xtr.IPCSocket != "" {
		os.Remove(xtr.cfg.xtr.IPCSocket)
	}
	lprint("lispers.net LISP shutting down")
}

//
// lispLocalRLOCs
//
// Fill in the RLOC addresses not given in the configuration from the
// rloc-interface.
//
func lispLocalRLOCs(cfg *lispConfig) error {
	if cfg.xtr.RLOCInterface == "" {
		return nil
	}
	if cfg.rloc4.IsValid() && cfg.rloc6.IsValid() {
		return nil
	}
	a4, a6, err := lispGetLocalAddress(cfg.xtr.RLOCInterface)
	if err != nil {
		return err
	}
	if !cfg.rloc4.IsValid() {
		cfg.rloc4 = a4
	}
	if !cfg.rloc6.IsValid() {
		cfg.rloc6 = a6
	}
	lprint("Using RLOCs %s and %s from %s", cfg.rloc4, cfg.rloc6,
		bold(cfg.xtr.RLOCInterface))
	return nil
}

//
// lispLoadDatabase
//
// Replace the contents of the database-mapping table.
//
func lispLoadDatabase(t *lispLMLtable, mappings []*lisp.Mapping) error {
	entries := make([]*lispDatabase, 0, len(mappings))
	for _, m := range mappings {
		db, err := newLispDatabase(m)
		if err != nil {
			return err
		}
		entries = append(entries, db)
	}
	t.lmlClearHashTable()
	for _, db := range entries {
		t.lispLMLaddEntry(db)
	}
	return nil
}

//
// lispETRthread
//
// Read encapsulated packets from r until it is closed.
//
func lispETRthread(r lispDataReader, tun io.Writer) {
	for {
		err := lispETRdataPlane(r, tun)
		if err == nil {
			continue
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
			return
		}
		dlog.WithError(err).Warn("Data socket read failed")
	}
}

//
// lispETRdataPlane
//
// Receive one LISP encapsulated packet, decapsulate it and write the inner
// packet to tun. The inner TTL and ToS are set from the outer header. Any
// failure after the read is logged and the packet dropped. Only the read
// error is returned.
//
func lispETRdataPlane(r lispDataReader, tun io.Writer) error {
	b := lbuf.New(lispMaxDatagramLen)
	raw, _ := b.Put(lispMaxDatagramLen)

	n, ttl, tos, src, err := r.ReadData(raw)
	if err != nil {
		if n == 0 {
			return err
		}
		lispCount(lispPathDecap, "read-error", raw[:n])
		dprint("Read from %s failed: %s", red(src.String()), err)
		return nil
	}

	//
	// A read that fills the buffer may have been cut short.
	//
	if n >= len(raw) {
		lispCount(lispPathDecap, "truncated-packet", raw)
		dprint("Drop oversized packet from %s", red(src.String()))
		return nil
	}
	b.Trim(n)
	packet := b.Data()

	if lispDataPlaneLogging {
		lispLogPacket(bold("Decap ")+red(src.String()), b)
	}

	hdr, err := lisp.DecapData(b)
	if err != nil {
		lispCount(lispPathDecap, "no-decap-state", packet)
		dprint("Drop packet from %s: %s", red(src.String()), err)
		return nil
	}

	//
	// Instance-ID of 0xffffff is an encapsulated control message, the
	// control-plane gets those on port 4342.
	//
	if hdr.IIDPresent() && hdr.InstanceID() == 0xffffff {
		lispCount(lispPathDecap, "lisp-header-error", packet)
		return nil
	}

	if lispTTLcheck(ttl) {
		lispCount(lispPathDecap, "ttl-exceeded", packet)
		return nil
	}

	inner := b.Data()
	if err := lisp.SetInnerTTLAndTOS(inner, ttl, tos); err != nil {
		lispCount(lispPathDecap, "bad-inner-version", packet)
		dprint("Drop packet from %s: %s", red(src.String()), err)
		return nil
	}

	if _, err := tun.Write(inner); err != nil {
		lispCount(lispPathDecap, "tun-write-error", packet)
		dlog.WithError(err).Warn("Write to tun failed")
		return nil
	}
	lispCount(lispPathDecap, "good-packets", packet)
	return nil
}

//
// lispTTLcheck
//
// Return true if the packet should be discarded.
//
func lispTTLcheck(ttl uint8) bool {
	if ttl == 0 {
		dprint("TTL arrived as 0, discard packet")
		return true
	}
	return false
}

//
// lispITRthread
//
// Read packets from the tun device and encapsulate them.
//
func lispITRthread(tun io.Reader, cfg *lispConfig, db *lispLMLtable,
	s lispSender) {

	buf := make([]byte, lisp.MaxIPPacketLen)
	for {
		n, err := tun.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				dlog.WithError(err).Warn("Tun read failed")
			}
			return
		}
		if err := lispITRdataPlane(buf[:n], cfg, db, s); err != nil {
			dprint("Drop packet: %s", err)
		}
	}
}

//
// lispInnerAddresses
//
// Return the source and destination of an IPv4 or IPv6 packet.
//
func lispInnerAddresses(packet []byte) (netip.Addr, netip.Addr, error) {
	switch {
	case len(packet) >= 20 && packet[0]>>4 == 4:
		return netip.AddrFrom4([4]byte(packet[12:16])),
			netip.AddrFrom4([4]byte(packet[16:20])), nil
	case len(packet) >= 40 && packet[0]>>4 == 6:
		return netip.AddrFrom16([16]byte(packet[8:24])),
			netip.AddrFrom16([16]byte(packet[24:40])), nil
	}
	return netip.Addr{}, netip.Addr{}, errors.Wrap(lbuf.ErrTruncated,
		"inner IP header")
}

//
// lispITRdataPlane
//
// Encapsulate one packet from a local EID to the proxy-ETR. The nonce is
// random and the source port is a hash of the inner addresses.
//
func lispITRdataPlane(packet []byte, cfg *lispConfig, db *lispLMLtable,
	s lispSender) error {

	source, dest, err := lispInnerAddresses(packet)
	if err != nil {
		lispCount(lispPathEncap, "bad-inner-version", packet)
		return err
	}

	iid := uint32(cfg.xtr.InstanceID)
	if db.lispLMLlookup(iid, source) == nil {
		lispCount(lispPathEncap, "non-eid-source", packet)
		return errors.Errorf("source %s is not a configured EID", source)
	}

	rloc := cfg.proxyETR
	local := cfg.rloc4
	if !rloc.Is4() {
		local = cfg.rloc6
	}
	if !local.IsValid() {
		lispCount(lispPathEncap, "no-local-rloc", packet)
		return errors.Errorf("no local RLOC to reach %s", rloc)
	}

	b := lbuf.NewWithHeadroom(len(packet), lisp.MaxEncapLen)
	if err := b.PutBytes(packet); err != nil {
		return err
	}
	hdr := &lisp.LISPData{
		NoncePresent: true,
		Nonce:        rand.Uint32() & 0xffffff,
		IIDPresent:   iid != 0,
		InstanceID:   iid,
	}
	err = lisp.EncapDataHeader(b, hdr, lispHashAddress(packet), lisp.DataPort,
		laddr.FromNetIP(local), laddr.FromNetIP(rloc))
	if err != nil {
		lispCount(lispPathEncap, "encap-error", packet)
		return err
	}

	if lispDataPlaneLogging {
		dprint("Encapsulate %s -> %s to RLOC %s", green(source.String()),
			green(dest.String()), red(rloc.String()))
		lispLogPacket(bold("Encap"), b)
	}

	if err := s.lispSend(b.Data(), rloc); err != nil {
		lispCount(lispPathEncap, "send-error", packet)
		return err
	}
	lispCount(lispPathEncap, "good-packets", packet)
	return nil
}
