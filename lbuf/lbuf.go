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
// lbuf.go
//
// Packet buffer used by the LISP message parser, builder and the
// encapsulation code. A Buffer is a fixed region with a data cursor and a
// tail cursor. Headers are prepended with Push(), consumed with Pull() and
// message bodies are appended with Put(). Layer start offsets let later
// stages find the network, transport, LISP header and LISP message starts
// again after the data cursor has moved.
//
// ---------------------------------------------------------------------------

// Package lbuf implements a bounds-checked packet buffer with headroom and
// per-layer start offsets.
package lbuf

import (
	"fmt"

	"github.com/pkg/errors"
)

// Layer names a recorded header start inside a Buffer.
type Layer int

const (
	// L2 is the data-link header start.
	L2 Layer = iota
	// L3 is the network (IP) header start.
	L3
	// L4 is the transport (UDP) header start.
	L4
	// LISPHdr is the LISP shim start: the ECM header for control messages or
	// the LISP data header for encapsulated data.
	LISPHdr
	// LISP is the LISP control message start.
	LISP

	numLayers
)

var layerNames = [numLayers]string{"l2", "l3", "l4", "lisp-hdr", "lisp"}

func (l Layer) String() string {
	if l < 0 || l >= numLayers {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// Sentinel errors. Callers compare against errors.Cause().
var (
	ErrTruncated  = errors.New("lbuf: not enough data")
	ErrNoHeadroom = errors.New("lbuf: not enough headroom")
	ErrNoTailroom = errors.New("lbuf: not enough tailroom")
)

// Buffer is a packet buffer. The region is allocated once and never grows,
// so slices returned by Pull, Push and Put stay valid for the lifetime of
// the Buffer.
type Buffer struct {
	region []byte
	data   int
	tail   int
	layers [numLayers]int
}

// New allocates a Buffer with room for size bytes and no headroom.
func New(size int) *Buffer {
	return NewWithHeadroom(size, 0)
}

// NewWithHeadroom allocates a Buffer with size bytes of tailroom and headroom
// bytes reserved in front of the data cursor for later Push() calls.
func NewWithHeadroom(size, headroom int) *Buffer {
	if size < 0 {
		size = 0
	}
	if headroom < 0 {
		headroom = 0
	}
	b := &Buffer{
		region: make([]byte, headroom+size),
		data:   headroom,
		tail:   headroom,
	}
	b.clearLayers()
	return b
}

// Wrap returns a Buffer whose data is pkt. No headroom is available. The
// Buffer aliases pkt.
func Wrap(pkt []byte) *Buffer {
	b := &Buffer{
		region: pkt,
		data:   0,
		tail:   len(pkt),
	}
	b.clearLayers()
	return b
}

func (b *Buffer) clearLayers() {
	for i := range b.layers {
		b.layers[i] = -1
	}
}

// Data returns the bytes between the data cursor and the tail.
func (b *Buffer) Data() []byte {
	return b.region[b.data:b.tail]
}

// Size returns the number of bytes between the data cursor and the tail.
func (b *Buffer) Size() int {
	return b.tail - b.data
}

// Offset returns the data cursor position inside the region.
func (b *Buffer) Offset() int {
	return b.data
}

// Headroom returns how many bytes can still be pushed.
func (b *Buffer) Headroom() int {
	return b.data
}

// Tailroom returns how many bytes can still be put.
func (b *Buffer) Tailroom() int {
	return len(b.region) - b.tail
}

// Pull returns the next n bytes and advances the data cursor past them.
func (b *Buffer) Pull(n int) ([]byte, error) {
	if n < 0 || n > b.Size() {
		return nil, errors.Wrapf(ErrTruncated, "pull %d of %d", n, b.Size())
	}
	p := b.region[b.data : b.data+n]
	b.data += n
	return p, nil
}

// Peek returns the next n bytes without moving the data cursor.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if n < 0 || n > b.Size() {
		return nil, errors.Wrapf(ErrTruncated, "peek %d of %d", n, b.Size())
	}
	return b.region[b.data : b.data+n], nil
}

// Push moves the data cursor back by n bytes and returns them. The bytes are
// not initialized.
func (b *Buffer) Push(n int) ([]byte, error) {
	if n < 0 || n > b.data {
		return nil, errors.Wrapf(ErrNoHeadroom, "push %d with headroom %d",
			n, b.data)
	}
	b.data -= n
	return b.region[b.data : b.data+n], nil
}

// Put extends the tail by n bytes and returns them. The bytes are not
// initialized.
func (b *Buffer) Put(n int) ([]byte, error) {
	if n < 0 || n > b.Tailroom() {
		return nil, errors.Wrapf(ErrNoTailroom, "put %d with tailroom %d",
			n, b.Tailroom())
	}
	p := b.region[b.tail : b.tail+n]
	b.tail += n
	return p, nil
}

// PutZero extends the tail by n zeroed bytes.
func (b *Buffer) PutZero(n int) ([]byte, error) {
	p, err := b.Put(n)
	if err != nil {
		return nil, err
	}
	for i := range p {
		p[i] = 0
	}
	return p, nil
}

// PutBytes appends a copy of p at the tail.
func (b *Buffer) PutBytes(p []byte) error {
	dst, err := b.Put(len(p))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

// Trim drops bytes past size, keeping the first size bytes of data.
func (b *Buffer) Trim(size int) error {
	if size < 0 || size > b.Size() {
		return errors.Wrapf(ErrTruncated, "trim to %d of %d", size, b.Size())
	}
	b.tail = b.data + size
	return nil
}

// ResetLayer records the data cursor as the start of layer l.
func (b *Buffer) ResetLayer(l Layer) {
	b.layers[l] = b.data
}

// ClearLayer forgets the start of layer l.
func (b *Buffer) ClearLayer(l Layer) {
	b.layers[l] = -1
}

// LayerOffset returns the recorded start of layer l inside the region, or -1.
func (b *Buffer) LayerOffset(l Layer) int {
	return b.layers[l]
}

// Layer returns the bytes from the start of layer l to the tail, or nil if
// the layer was never recorded.
func (b *Buffer) Layer(l Layer) []byte {
	off := b.layers[l]
	if off < 0 || off > b.tail {
		return nil
	}
	return b.region[off:b.tail]
}

// SetData moves the data cursor to the start of layer l.
func (b *Buffer) SetData(l Layer) error {
	off := b.layers[l]
	if off < 0 || off > b.tail {
		return errors.Errorf("lbuf: layer %s not set", l)
	}
	b.data = off
	return nil
}

// Clone returns a deep copy with the same cursors and layer offsets.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{
		region: make([]byte, len(b.region)),
		data:   b.data,
		tail:   b.tail,
		layers: b.layers,
	}
	copy(c.region, b.region)
	return c
}

func (b *Buffer) String() string {
	return fmt.Sprintf("lbuf data %d size %d headroom %d tailroom %d",
		b.data, b.Size(), b.Headroom(), b.Tailroom())
}
