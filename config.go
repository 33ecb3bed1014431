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
// config.go
//
// Read the xTR configuration file. The file has an [xtr] section, a
// [map-server] section and one [database-mapping <name>] section per local
// EID-prefix:
//
//   [xtr]
//   rloc-interface = eth0
//   tun-device = lisp0
//   tun-address = 10.1.0.1/16
//   proxy-etr = 198.51.100.1
//
//   [map-server]
//   address = 198.51.100.10
//   key = secret
//   key-type = sha256
//
//   [database-mapping site]
//   eid-prefix = [0]10.1.0.0/16
//   rloc = 192.0.2.1 1 100
//   rloc = 2001:db8::1 2 50
//
// Each rloc line is "address priority weight [mpriority mweight]".
//
// ---------------------------------------------------------------------------

package main

import (
	"encoding/hex"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/warmspit/lisp-xtr/laddr"
	"github.com/warmspit/lisp-xtr/lisp"
	"gopkg.in/ini.v1"
)

const (
	lispSectionXTR       = "xtr"
	lispSectionMapServer = "map-server"
	lispSectionDB        = "database-mapping"

	lispDefaultTTL = 1440
)

type lispXTRconfig struct {
	ControlPlaneLogging bool   `ini:"control-plane-logging"`
	DataPlaneLogging    bool   `ini:"data-plane-logging"`
	LogLevel            string `ini:"log-level"`
	RLOCInterface       string `ini:"rloc-interface"`
	RLOCIPv4            string `ini:"rloc-ipv4"`
	RLOCIPv6            string `ini:"rloc-ipv6"`
	TunDevice           string `ini:"tun-device"`
	TunAddress          string `ini:"tun-address"`
	TunMTU              int    `ini:"tun-mtu"`
	ProxyETR            string `ini:"proxy-etr"`
	InstanceID          int    `ini:"instance-id"`
	IPv6Capture         bool   `ini:"ipv6-capture"`
	CaptureInterface    string `ini:"capture-interface"`
	IPCSocket           string `ini:"ipc-socket"`
	ShowFile            string `ini:"show-file"`
	MetricsListen       string `ini:"metrics-listen"`
	PcapTrace           string `ini:"pcap-trace"`
}

type lispMapServerConfig struct {
	Address      string `ini:"address"`
	Key          string `ini:"key"`
	KeyType      string `ini:"key-type"`
	NATTraversal bool   `ini:"nat-traversal"`
	SiteID       string `ini:"site-id"`
	XTRID        string `ini:"xtr-id"`
}

type lispConfig struct {
	xtr       lispXTRconfig
	mapServer lispMapServerConfig
	mappings  []*lisp.Mapping

	rloc4, rloc6  netip.Addr
	proxyETR      netip.Addr
	mapServerAddr netip.Addr
	keyType       lisp.KeyType
	siteID        [8]byte
	xtrID         [16]byte
}

func defaultLispConfig() *lispConfig {
	return &lispConfig{
		xtr: lispXTRconfig{
			ControlPlaneLogging: true,
			LogLevel:            "info",
			TunDevice:           "lisp0",
			TunMTU:              1400,
			IPCSocket:           "./lisp-ipc-data-plane",
			ShowFile:            "./show-xtr",
		},
		mapServer: lispMapServerConfig{KeyType: "sha256"},
	}
}

//
// lispLoadConfig
//
// Load the configuration from a file name or from raw bytes.
//
func lispLoadConfig(source interface{}) (*lispConfig, error) {
	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, source)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	cfg := defaultLispConfig()
	if err := file.Section(lispSectionXTR).MapTo(&cfg.xtr); err != nil {
		return nil, errors.Wrapf(err, "section [%s]", lispSectionXTR)
	}
	if err := file.Section(lispSectionMapServer).MapTo(&cfg.mapServer); err != nil {
		return nil, errors.Wrapf(err, "section [%s]", lispSectionMapServer)
	}

	for _, s := range file.Sections() {
		name := s.Name()
		if name != lispSectionDB && !strings.HasPrefix(name, lispSectionDB+" ") {
			continue
		}
		m, err := lispParseDatabaseMapping(s, uint32(cfg.xtr.InstanceID))
		if err != nil {
			return nil, errors.Wrapf(err, "section [%s]", name)
		}
		cfg.mappings = append(cfg.mappings, m)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseOptionalAddr(what, s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return a, errors.Wrapf(err, "%s", what)
	}
	return a.Unmap(), nil
}

func parseHexID(what, s string, out []byte) error {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return errors.Wrapf(err, "%s", what)
	}
	if len(b) > len(out) {
		return errors.Errorf("%s longer than %d bytes", what, len(out))
	}
	copy(out[len(out)-len(b):], b)
	return nil
}

//
// resolve
//
// Convert the string settings into addresses and keys.
//
func (cfg *lispConfig) resolve() error {
	var err error

	if cfg.rloc4, err = parseOptionalAddr("rloc-ipv4", cfg.xtr.RLOCIPv4); err != nil {
		return err
	}
	if cfg.rloc6, err = parseOptionalAddr("rloc-ipv6", cfg.xtr.RLOCIPv6); err != nil {
		return err
	}
	if cfg.proxyETR, err = parseOptionalAddr("proxy-etr", cfg.xtr.ProxyETR); err != nil {
		return err
	}
	if cfg.mapServerAddr, err = parseOptionalAddr("map-server address",
		cfg.mapServer.Address); err != nil {
		return err
	}
	if cfg.keyType, err = lispParseKeyType(cfg.mapServer.KeyType); err != nil {
		return err
	}
	if err = parseHexID("site-id", cfg.mapServer.SiteID, cfg.siteID[:]); err != nil {
		return err
	}
	return parseHexID("xtr-id", cfg.mapServer.XTRID, cfg.xtrID[:])
}

//
// lispParseKeyType
//
// Map the key-type setting to an authentication key type.
//
func lispParseKeyType(s string) (lisp.KeyType, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return lisp.KeyNone, nil
	case "sha1", "hmac-sha-1-96":
		return lisp.HMACSHA196, nil
	case "sha256", "hmac-sha-256-128":
		return lisp.HMACSHA256128, nil
	}
	return lisp.KeyNone, errors.Errorf("unknown key-type %q", s)
}

//
// lispParseDatabaseMapping
//
// Build a local mapping from a [database-mapping] section.
//
func lispParseDatabaseMapping(s *ini.Section, iid uint32) (*lisp.Mapping, error) {
	m, err := lispNewLocalMapping(s.Key("eid-prefix").String(), iid,
		s.Key("rloc").ValueWithShadows())
	if err != nil {
		return nil, err
	}
	m.TTL = uint32(s.Key("ttl").MustUint(lispDefaultTTL))
	m.Authoritative = s.Key("authoritative").MustBool(true)
	return m, nil
}

//
// lispNewLocalMapping
//
// Build a mapping for eidPrefix with one locator per rloc line. An
// EID-prefix without an "[iid]" gets iid when that is not 0.
//
func lispNewLocalMapping(eidPrefix string, iid uint32,
	rlocs []string) (*lisp.Mapping, error) {

	eid, err := laddr.ParseString(eidPrefix)
	if err != nil {
		return nil, err
	}
	if _, ok := eid.(laddr.InstanceID); !ok && iid != 0 {
		eid = laddr.InstanceID{IID: iid, Addr: eid}
	}
	if _, _, err := lispEIDprefix(eid); err != nil {
		return nil, err
	}

	m := lisp.NewMapping(eid)
	m.TTL = lispDefaultTTL
	m.Authoritative = true

	for _, line := range rlocs {
		if strings.TrimSpace(line) == "" {
			continue
		}
		loc, err := lispParseRLOC(line)
		if err != nil {
			return nil, err
		}
		if err := m.AddLocator(loc); err != nil {
			return nil, errors.Wrapf(err, "rloc %q", line)
		}
	}
	return m, nil
}

//
// lispParseRLOC
//
// Parse "address priority weight [mpriority mweight]".
//
func lispParseRLOC(line string) (*lisp.Locator, error) {
	f := strings.Fields(line)
	if len(f) != 1 && len(f) != 3 && len(f) != 5 {
		return nil, errors.Errorf("rloc %q: want address priority weight "+
			"[mpriority mweight]", line)
	}
	addr, err := netip.ParseAddr(f[0])
	if err != nil {
		return nil, errors.Wrapf(err, "rloc %q", line)
	}

	values := []uint8{1, 100, 255, 0}
	for i, s := range f[1:] {
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "rloc %q", line)
		}
		values[i] = uint8(v)
	}
	return &lisp.Locator{
		Addr:      laddr.FromNetIP(addr),
		Priority:  values[0],
		Weight:    values[1],
		MPriority: values[2],
		MWeight:   values[3],
		Local:     true,
		State:     lisp.Up,
	}, nil
}
