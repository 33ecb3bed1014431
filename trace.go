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
// trace.go
//
// Write control messages to a pcap file. The UDP socket only hands us the
// LISP payload, so UDP and IP headers are rebuilt from the socket addresses
// before each record is written with link type "raw IP".
//
// ---------------------------------------------------------------------------

package main

import (
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/lbuf"
	"github.com/warmspit/lisp-xtr/lisp"
)

const lispTraceSnaplen = 65535

type lispTracer struct {
	mu sync.Mutex
	w  *pcapgo.Writer
	c  io.Closer
}

//
// newLispTracer
//
// Start a pcap file on w. If w is also an io.Closer it is closed by Close().
//
func newLispTracer(w io.Writer) (*lispTracer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(lispTraceSnaplen, layers.LinkTypeRaw); err != nil {
		return nil, errors.Wrap(err, "pcap file header")
	}
	t := &lispTracer{w: pw}
	if c, ok := w.(io.Closer); ok {
		t.c = c
	}
	return t, nil
}

//
// lispTrace
//
// Record one control message sent from src to dst. A nil tracer records
// nothing.
//
func (t *lispTracer) lispTrace(msg []byte, src, dst netip.AddrPort) {
	if t == nil {
		return
	}

	b := lbuf.NewWithHeadroom(len(msg), lisp.MaxEncapLen)
	if err := b.PutBytes(msg); err != nil {
		return
	}
	err := lisp.PushUDPAndIP(b, src.Port(), dst.Port(), src.Addr().Unmap(),
		dst.Addr().Unmap())
	if err != nil {
		clog.WithError(err).Debug("Could not trace control message")
		return
	}

	pkt := b.Data()
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(pkt),
		Length:        len(pkt),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.w.WritePacket(ci, pkt); err != nil {
		clog.WithError(err).Warn("Could not write pcap record")
	}
}

func (t *lispTracer) Close() error {
	if t == nil || t.c == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c.Close()
}
