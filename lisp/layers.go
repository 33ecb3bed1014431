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
// layers.go
//
// gopacket layer for the LISP data header so captured and encapsulated
// packets can be decoded and serialized with the rest of the gopacket
// layers.
//
// ---------------------------------------------------------------------------

package lisp

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeLISPData is the gopacket layer type of LISPData.
var LayerTypeLISPData = gopacket.RegisterLayerType(DataPort,
	gopacket.LayerTypeMetadata{
		Name:    "LISPData",
		Decoder: gopacket.DecodeFunc(decodeLISPData),
	})

// LISPData is the LISP data-plane header.
type LISPData struct {
	layers.BaseLayer

	NoncePresent bool
	LSBEnabled   bool
	EchoNonce    bool
	MapVersion   bool
	IIDPresent   bool
	KeyID        uint8

	Nonce      uint32
	InstanceID uint32
	LSBs       uint32
}

func (l *LISPData) LayerType() gopacket.LayerType { return LayerTypeLISPData }

func (l *LISPData) CanDecode() gopacket.LayerClass { return LayerTypeLISPData }

// NextLayerType picks the inner IP version from the payload.
func (l *LISPData) NextLayerType() gopacket.LayerType {
	if len(l.Payload) == 0 {
		return gopacket.LayerTypePayload
	}
	switch l.Payload[0] >> 4 {
	case 4:
		return layers.LayerTypeIPv4
	case 6:
		return layers.LayerTypeIPv6
	}
	return gopacket.LayerTypePayload
}

func (l *LISPData) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	h, err := AsDataHdr(data)
	if err != nil {
		df.SetTruncated()
		return err
	}
	l.NoncePresent = h.NoncePresent()
	l.LSBEnabled = h.LSBEnabled()
	l.EchoNonce = h.EchoNonce()
	l.MapVersion = h.MapVersion()
	l.IIDPresent = h.IIDPresent()
	l.KeyID = h.KeyID()
	l.Nonce = h.Nonce()
	l.InstanceID = 0
	if l.IIDPresent {
		l.InstanceID = h.InstanceID()
	}
	l.LSBs = h.LSBs()
	l.BaseLayer = layers.BaseLayer{
		Contents: data[:DataHdrLen],
		Payload:  data[DataHdrLen:],
	}
	return nil
}

func (l *LISPData) SerializeTo(b gopacket.SerializeBuffer,
	opts gopacket.SerializeOptions) error {

	raw, err := b.PrependBytes(DataHdrLen)
	if err != nil {
		return err
	}
	h := DataHdr(raw)
	h.Init()

	if l.IIDPresent {
		h[7] = byte(l.LSBs)
		h.SetInstanceID(l.InstanceID)
	} else {
		binary.BigEndian.PutUint32(h[4:8], l.LSBs)
	}
	if l.NoncePresent {
		h.SetNonce(l.Nonce)
	}
	h.SetLSBEnabled(l.LSBEnabled)
	h.SetEchoNonce(l.EchoNonce)
	setBit(&h[0], 0x10, l.MapVersion)
	h.SetKeyID(l.KeyID)
	return nil
}

func decodeLISPData(data []byte, p gopacket.PacketBuilder) error {
	l := &LISPData{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	if len(l.Payload) == 0 {
		return nil
	}
	return p.NextDecoder(l.NextLayerType())
}
