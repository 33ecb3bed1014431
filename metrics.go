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
// metrics.go
//
// Packet and byte counters for the encapsulation, decapsulation and control
// paths, exported on a prometheus /metrics listener. The "stat" label takes
// the names the xTR has always used for its decap statistics, for example
// "good-packets" and "checksum-error".
//
// ---------------------------------------------------------------------------

package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type lispMetrics struct {
	packets    *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	lastPacket *prometheus.GaugeVec
	registry   *prometheus.Registry
}

var lispStats = newLispMetrics()

//
// newLispMetrics
//
// Create the counters in a private registry.
//
func newLispMetrics() *lispMetrics {
	labels := []string{"path", "stat"}
	m := &lispMetrics{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lisp_xtr",
			Name:      "packets_total",
			Help:      "Packets counted per path and outcome.",
		}, labels),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lisp_xtr",
			Name:      "bytes_total",
			Help:      "Bytes counted per path and outcome.",
		}, labels),
		lastPacket: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lisp_xtr",
			Name:      "last_packet_timestamp_seconds",
			Help:      "Unix time of the last packet per path and outcome.",
		}, labels),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.packets, m.bytes, m.lastPacket)
	return m
}

//
// Paths a packet can be counted on.
//
const (
	lispPathDecap   = "decap"
	lispPathEncap   = "encap"
	lispPathControl = "control"
)

//
// lispCount
//
// Increment stats counters for a path and outcome.
//
func lispCount(path, keyName string, packet []byte) {
	lispStats.packets.WithLabelValues(path, keyName).Inc()
	lispStats.bytes.WithLabelValues(path, keyName).Add(float64(len(packet)))
	lispStats.lastPacket.WithLabelValues(path, keyName).
		Set(float64(time.Now().UnixNano()) / 1e9)
}

//
// lispStatsSnapshot
//
// Return packet counts keyed by "path/stat". Used by the show output.
//
func lispStatsSnapshot() (map[string]uint64, error) {
	families, err := lispStats.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64)
	for _, f := range families {
		if f.GetName() != "lisp_xtr_packets_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			var path, stat string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "path":
					path = l.GetValue()
				case "stat":
					stat = l.GetValue()
				}
			}
			out[path+"/"+stat] = uint64(m.GetCounter().GetValue())
		}
	}
	return out, nil
}

var metricsOnce sync.Once

//
// lispStartMetrics
//
// Serve /metrics on the supplied address. Does nothing when the address is
// empty.
//
func lispStartMetrics(listen string) {
	if listen == "" {
		return
	}
	metricsOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(lispStats.registry,
			promhttp.HandlerOpts{}))
		go func() {
			lprint("Serving metrics on %s", listen)
			err := http.ListenAndServe(listen, mux)
			clog.WithError(err).Error("Metrics listener stopped")
		}()
	})
}
