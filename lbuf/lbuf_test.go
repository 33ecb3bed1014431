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

package lbuf

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestPutPushPull(t *testing.T) {
	b := NewWithHeadroom(16, 8)
	if b.Headroom() != 8 || b.Tailroom() != 16 || b.Size() != 0 {
		t.Fatalf("unexpected initial state: %s", b)
	}
	if err := b.PutBytes([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	h, err := b.Push(2)
	if err != nil {
		t.Fatal(err)
	}
	h[0], h[1] = 0xaa, 0xbb
	if !bytes.Equal(b.Data(), []byte{0xaa, 0xbb, 1, 2, 3, 4}) {
		t.Errorf("got data %x", b.Data())
	}
	p, err := b.Pull(3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, []byte{0xaa, 0xbb, 1}) {
		t.Errorf("pulled %x", p)
	}
	if b.Size() != 3 {
		t.Errorf("size %d, want 3", b.Size())
	}
}

func TestBounds(t *testing.T) {
	b := NewWithHeadroom(4, 2)
	if _, err := b.Push(3); errors.Cause(err) != ErrNoHeadroom {
		t.Errorf("push past headroom: %v", err)
	}
	if _, err := b.Put(5); errors.Cause(err) != ErrNoTailroom {
		t.Errorf("put past tailroom: %v", err)
	}
	if _, err := b.Pull(1); errors.Cause(err) != ErrTruncated {
		t.Errorf("pull from empty buffer: %v", err)
	}
	if _, err := b.Pull(-1); errors.Cause(err) != ErrTruncated {
		t.Errorf("negative pull: %v", err)
	}
	if b.Headroom() != 2 || b.Size() != 0 {
		t.Errorf("failed calls moved cursors: %s", b)
	}
}

func TestLayers(t *testing.T) {
	b := Wrap([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	if b.Layer(LISP) != nil {
		t.Fatal("unset layer returned data")
	}
	b.ResetLayer(L3)
	if _, err := b.Pull(4); err != nil {
		t.Fatal(err)
	}
	b.ResetLayer(LISP)
	if !bytes.Equal(b.Layer(L3), []byte{0, 1, 2, 3, 4, 5, 6, 7}) {
		t.Errorf("l3 layer %x", b.Layer(L3))
	}
	if !bytes.Equal(b.Layer(LISP), []byte{4, 5, 6, 7}) {
		t.Errorf("lisp layer %x", b.Layer(LISP))
	}
	if err := b.SetData(L3); err != nil {
		t.Fatal(err)
	}
	if b.Size() != 8 {
		t.Errorf("size after SetData %d", b.Size())
	}
	b.ClearLayer(L3)
	if b.LayerOffset(L3) != -1 {
		t.Errorf("cleared layer offset %d", b.LayerOffset(L3))
	}
}

func TestPutZeroAndClone(t *testing.T) {
	b := New(8)
	p, _ := b.Put(4)
	copy(p, []byte{9, 9, 9, 9})
	z, err := b.PutZero(4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(z, make([]byte, 4)) {
		t.Errorf("PutZero returned %x", z)
	}
	c := b.Clone()
	c.Data()[0] = 1
	if b.Data()[0] != 9 {
		t.Error("clone aliases original")
	}
	if err := c.Trim(2); err != nil || c.Size() != 2 {
		t.Errorf("trim: %v size %d", err, c.Size())
	}
}
