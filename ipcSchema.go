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
// ipcSchema.go
//
// JSON messages accepted on the IPC socket. Numbers are carried as strings.
//
// ---------------------------------------------------------------------------

package main

const (
	ipcDatabaseMappings = "database-mappings"
	ipcXTRparameters    = "xtr-parameters"
	ipcMapRegister      = "map-register"
	ipcShow             = "show"
)

type ipcMessage struct {
	Type string `json:"type"`
}

type ipcRloc struct {
	Rloc      string `json:"rloc"`
	Priority  string `json:"priority"`
	Weight    string `json:"weight"`
	MPriority string `json:"mpriority,omitempty"`
	MWeight   string `json:"mweight,omitempty"`
}

type databaseMapping struct {
	EidPrefix  string    `json:"eid-prefix"`
	InstanceID string    `json:"instance-id"`
	TTL        string    `json:"ttl,omitempty"`
	Rlocs      []ipcRloc `json:"rlocs"`
}

type databaseMappings struct {
	DatabaseMappings []databaseMapping `json:"database-mappings"`
	Type             string            `json:"type"`
}

type xtrParameters struct {
	ControlPlaneLogging *bool  `json:"control-plane-logging"`
	DataPlaneLogging    *bool  `json:"data-plane-logging"`
	Type                string `json:"type"`
}
