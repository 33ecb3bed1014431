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
// Constants, errors and logging shared by the LISP message parser, builder,
// authentication and encapsulation code.
//
// ---------------------------------------------------------------------------

// Package lisp parses and builds LISP control messages and encapsulates and
// decapsulates LISP control and data packets held in an lbuf.Buffer.
package lisp

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//
// ---------- Constants Definitions ----------
//
const (
	DataPort    = 4341
	ControlPort = 4342

	// MaxIPPacketLen is the largest packet a message buffer is sized for.
	MaxIPPacketLen = 4096

	// MaxEncapLen is the headroom reserved in front of a control message:
	// room for two IPv6 and UDP header pairs plus the LISP shim.
	MaxEncapLen = 2*(ipv6HdrLen+udpHdrLen) + DataHdrLen

	// UnusedRLOCPriority tells peers not to use a locator.
	UnusedRLOCPriority = 255

	ipv4HdrLen = 20
	ipv6HdrLen = 40
	udpHdrLen  = 8
)

// Type is the LISP control message type carried in the high nibble of the
// first byte.
type Type uint8

const (
	MapRequest   Type = 1
	MapReply     Type = 2
	MapRegister  Type = 3
	MapNotify    Type = 4
	InfoNAT      Type = 7
	EncapControl Type = 8

	// NotLISP is returned when a buffer has no LISP message layer.
	NotLISP Type = 0xff
)

func (t Type) String() string {
	switch t {
	case MapRequest:
		return "Map-Request"
	case MapReply:
		return "Map-Reply"
	case MapRegister:
		return "Map-Register"
	case MapNotify:
		return "Map-Notify"
	case InfoNAT:
		return "Info-Request/Reply"
	case EncapControl:
		return "ECM"
	case NotLISP:
		return "not-LISP"
	}
	return fmt.Sprintf("type-%d", uint8(t))
}

// Sentinel errors. Use errors.Cause() to compare.
var (
	ErrShortHeader     = errors.New("lisp: header too short")
	ErrUnsupportedType = errors.New("lisp: unsupported message type")
	ErrBadChecksum     = errors.New("lisp: bad UDP checksum")
	ErrExist           = errors.New("lisp: locator already exists")
	ErrMultipleProbed  = errors.New("lisp: multiple probed locators")
	ErrNoRLOCs         = errors.New("lisp: empty ITR-RLOC list")
	ErrAuthLength      = errors.New("lisp: auth data length mismatch")
	ErrAuthFailed      = errors.New("lisp: authentication failed")
	ErrAddress         = errors.New("lisp: bad address")
	ErrTooMany         = errors.New("lisp: count does not fit header field")
)

var log logrus.FieldLogger = logrus.WithField("module", "lisp")

// SetLogger replaces the logger used by this package.
func SetLogger(l logrus.FieldLogger) {
	log = l
}
