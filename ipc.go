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
// ipc.go
//
// The functions contained in this file let an operator or a management
// process change the running xTR. JSON messages arrive on a unixgram
// socket, one message or an array of messages per datagram:
//
//   {"type": "database-mappings", "database-mappings": [
//       {"eid-prefix": "10.1.0.0/16", "instance-id": "0",
//        "rlocs": [{"rloc": "192.0.2.1", "priority": "1", "weight": "100"}]}]}
//   {"type": "xtr-parameters", "control-plane-logging": true,
//    "data-plane-logging": false}
//   {"type": "map-register"}
//   {"type": "show"}
//
// The state of the xTR is written to the show-file after each change.
//
// ---------------------------------------------------------------------------

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/lisp"
)

//
// Show file is not rewritten more often than this.
//
const lispShowInterval = 2 * time.Second

//
// lispCreateIPCsocket
//
// If named socket file exists, remove it. Then open the socket.
//
func lispCreateIPCsocket(name string) (*net.UnixConn, error) {
	if _, err := os.Stat(name); err == nil {
		os.Remove(name)
	}
	conn, err := net.ListenUnixgram("unixgram",
		&net.UnixAddr{Name: name, Net: "unixgram"})
	if err != nil {
		return nil, errors.Wrapf(err, "IPC socket %s", name)
	}
	return conn, nil
}

//
// lispIPCmessageProcessing
//
// Read IPC messages until the socket is closed.
//
func lispIPCmessageProcessing(conn *net.UnixConn, xtr *lispXTR) {
	var lastShow time.Time

	buf := make([]byte, 65536)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			lprint("IPC socket read failed: %s", err)
			continue
		}

		lprint("Received %s: '%s'", bold("IPC"), buf[:n])
		show, err := lispProcessIPC(buf[:n], xtr.control)
		if err != nil {
			clog.WithError(err).Warn("IPC message rejected")
			continue
		}

		//
		// Display entire state. But don't do it more than every 2 seconds
		// unless asked to.
		//
		if show || time.Since(lastShow) >= lispShowInterval {
			lastShow = time.Now()
			out := lispShowState(xtr.cfg, xtr.control.db)
			lispWriteFile(xtr.cfg.xtr.ShowFile, out)
			if lispDebugLogging {
				fmt.Print(out)
			}
		}
	}
}

//
// lispProcessIPC
//
// Process a datagram holding one JSON message or an array of them. Returns
// true when a "show" was requested.
//
func lispProcessIPC(data []byte, c *lispControl) (bool, error) {
	var msgs []json.RawMessage

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return false, errors.Wrap(err, "IPC message array")
		}
	} else {
		msgs = []json.RawMessage{data}
	}

	show := false
	for _, raw := range msgs {
		t, err := lispProcessIPCmessage(raw, c)
		if err != nil {
			return show, err
		}
		show = show || t == ipcShow
	}
	return show, nil
}

//
// lispProcessIPCmessage
//
// Process one JSON message and return its type.
//
func lispProcessIPCmessage(raw json.RawMessage, c *lispControl) (string, error) {
	var msg ipcMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", errors.Wrap(err, "IPC message")
	}

	switch msg.Type {
	case ipcDatabaseMappings:
		var dm databaseMappings
		if err := json.Unmarshal(raw, &dm); err != nil {
			return msg.Type, errors.Wrap(err, msg.Type)
		}
		mappings, err := lispIPCmappings(&dm)
		if err != nil {
			return msg.Type, err
		}
		if err := lispLoadDatabase(c.db, mappings); err != nil {
			return msg.Type, err
		}
		lprint("Loaded %d database-mappings", len(mappings))
		c.lispSendMapRegisters()

	case ipcXTRparameters:
		var p xtrParameters
		if err := json.Unmarshal(raw, &p); err != nil {
			return msg.Type, errors.Wrap(err, msg.Type)
		}
		if p.ControlPlaneLogging != nil {
			lispDebugLogging = *p.ControlPlaneLogging
		}
		if p.DataPlaneLogging != nil {
			lispDataPlaneLogging = *p.DataPlaneLogging
		}

	case ipcMapRegister:
		c.lispSendMapRegisters()

	case ipcShow:

	default:
		return msg.Type, errors.Errorf("IPC type %q not supported", msg.Type)
	}
	return msg.Type, nil
}

//
// lispIPCmappings
//
// Convert a database-mappings message to mappings. A missing or empty
// instance-id is 0.
//
func lispIPCmappings(dm *databaseMappings) ([]*lisp.Mapping, error) {
	var out []*lisp.Mapping

	for _, d := range dm.DatabaseMappings {
		iid := 0
		if d.InstanceID != "" {
			var err error
			if iid, err = strconv.Atoi(d.InstanceID); err != nil {
				return nil, errors.Wrapf(err, "instance-id %q", d.InstanceID)
			}
		}

		rlocs := make([]string, 0, len(d.Rlocs))
		for _, r := range d.Rlocs {
			line := strings.Join([]string{r.Rloc, r.Priority, r.Weight}, " ")
			if r.MPriority != "" || r.MWeight != "" {
				line += " " + r.MPriority + " " + r.MWeight
			}
			rlocs = append(rlocs, line)
		}

		m, err := lispNewLocalMapping(d.EidPrefix, uint32(iid), rlocs)
		if err != nil {
			return nil, errors.Wrapf(err, "database-mapping %s", d.EidPrefix)
		}
		if d.TTL != "" {
			ttl, err := strconv.ParseUint(d.TTL, 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "ttl %q", d.TTL)
			}
			m.TTL = uint32(ttl)
		}
		out = append(out, m)
	}
	return out, nil
}

//
// lispShowState
//
// Show data structure state.
//
func lispShowState(cfg *lispConfig, db *lispLMLtable) string {
	var out strings.Builder

	fmt.Fprintf(&out, "lisp-xtr running at %s\n\n",
		time.Now().Format("01/02/06 15:04:05"))

	//
	// xTR state section.
	//
	fmt.Fprintf(&out, "%s\n", bold("LISP xTR State"))
	fmt.Fprintf(&out, "  LISP control/data-plane logging: %s/%s\n",
		enabled(lispDebugLogging), enabled(lispDataPlaneLogging))
	fmt.Fprintf(&out, "  RLOCs: %s, %s\n", cfg.rloc4, cfg.rloc6)
	fmt.Fprintf(&out, "  Proxy-ETR: %s\n", cfg.proxyETR)
	fmt.Fprintf(&out, "  Map-Server: %s, key-type %s\n", cfg.mapServerAddr,
		cfg.keyType)

	//
	// Display "lisp database-mappings".
	//
	fmt.Fprintf(&out, "\n%s\n", bold("LISP Database Mappings"))
	db.lispLMLwalk(func(d *lispDatabase) bool {
		fmt.Fprintf(&out, "  %s\n", d.mapping)
		return true
	})
	out.WriteString(db.lispLMLshow())

	//
	// Packet counters, sorted by name.
	//
	fmt.Fprintf(&out, "\n%s\n", bold("LISP xTR Statistics"))
	stats, err := lispStatsSnapshot()
	if err != nil {
		fmt.Fprintf(&out, "  unavailable: %s\n", err)
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&out, "  %s: %d\n", k, stats[k])
	}

	out.WriteString("\n")
	return out.String()
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
