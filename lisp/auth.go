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
// auth.go
//
// HMAC authentication of Map-Register and Map-Notify messages. The digest
// covers the whole message from the start of the LISP layer with the
// authentication data field zeroed.
//
// ---------------------------------------------------------------------------

package lisp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/lbuf"
)

// KeyType is the authentication key-id.
type KeyType uint16

const (
	KeyNone       KeyType = 0
	HMACSHA196    KeyType = 1
	HMACSHA256128 KeyType = 2
)

func (k KeyType) String() string {
	switch k {
	case KeyNone:
		return "none"
	case HMACSHA196:
		return "hmac-sha-1-96"
	case HMACSHA256128:
		return "hmac-sha-256-128"
	}
	return "unknown"
}

// AuthDataLen returns the authentication data field length for keyType.
func AuthDataLen(keyType KeyType) (int, error) {
	switch keyType {
	case KeyNone:
		return 0, nil
	case HMACSHA196:
		return sha1.Size, nil
	case HMACSHA256128:
		return sha256.Size, nil
	}
	return 0, errors.Wrapf(ErrAuthLength, "unknown key type %d", keyType)
}

func newHash(keyType KeyType) func() hash.Hash {
	switch keyType {
	case HMACSHA196:
		return sha1.New
	case HMACSHA256128:
		return sha256.New
	}
	return nil
}

// authField locates the auth record header and its declared data field in
// the Map-Register or Map-Notify at the LISP layer.
func authField(b *lbuf.Buffer) (AuthRecordHdr, []byte, error) {
	msg := b.Layer(lbuf.LISP)
	t := HdrType(msg)
	if t != MapRegister && t != MapNotify {
		return nil, nil, errors.Wrapf(ErrUnsupportedType,
			"%s has no auth record", t)
	}
	// Map-Register and Map-Notify headers have the same length.
	if len(msg) < MapRegisterHdrLen {
		return nil, nil, shortHeader(t.String(), len(msg), MapRegisterHdrLen)
	}
	hdr, err := AsAuthRecordHdr(msg[MapRegisterHdrLen:])
	if err != nil {
		return nil, nil, err
	}
	start := MapRegisterHdrLen + AuthRecordHdrLen
	end := start + int(hdr.DataLen())
	if end > len(msg) {
		return nil, nil, errors.Wrapf(ErrAuthLength,
			"auth data length %d exceeds message", hdr.DataLen())
	}
	return hdr, msg[start:end], nil
}

func digest(keyType KeyType, key string, msg []byte) []byte {
	mac := hmac.New(newHash(keyType), []byte(key))
	mac.Write(msg)
	return mac.Sum(nil)
}

//
// FillAuthData
//
// Compute the HMAC of the message at the LISP layer and store it in the
// authentication data field, which must already be sized for keyType.
//
func FillAuthData(b *lbuf.Buffer, keyType KeyType, key string) error {
	hdr, data, err := authField(b)
	if err != nil {
		return err
	}
	want, err := AuthDataLen(keyType)
	if err != nil {
		return err
	}
	if len(data) != want {
		return errors.Wrapf(ErrAuthLength, "%s field is %d bytes, need %d",
			keyType, len(data), want)
	}
	hdr.SetKeyID(keyType)
	if keyType == KeyNone {
		return nil
	}

	for i := range data {
		data[i] = 0
	}
	copy(data, digest(keyType, key, b.Layer(lbuf.LISP)))
	return nil
}

//
// CheckAuthField
//
// Verify the authentication data of the message at the LISP layer against
// key. The declared data length must match the key type. The field is
// zeroed while the digest is recomputed and restored afterwards.
//
func CheckAuthField(b *lbuf.Buffer, key string) error {
	hdr, data, err := authField(b)
	if err != nil {
		return err
	}
	keyType := hdr.KeyID()
	want, err := AuthDataLen(keyType)
	if err != nil {
		return err
	}
	if int(hdr.DataLen()) != want {
		return errors.Wrapf(ErrAuthLength, "%s declared %d bytes, need %d",
			keyType, hdr.DataLen(), want)
	}
	if keyType == KeyNone {
		return errors.Wrap(ErrAuthFailed, "message is not authenticated")
	}

	received := append([]byte(nil), data...)
	for i := range data {
		data[i] = 0
	}
	computed := digest(keyType, key, b.Layer(lbuf.LISP))
	copy(data, received)

	if !hmac.Equal(received, computed[:want]) {
		return errors.WithStack(ErrAuthFailed)
	}
	return nil
}
