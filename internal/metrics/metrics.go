// Package metrics exposes the node's prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "compressedheaders"

// Transports label range requests by the surface they arrived on.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
	TransportP2P  = "p2p"
)

// Results of a range request.
const (
	ResultOK       = "ok"
	ResultInfo     = "info"
	ResultRejected = "rejected"
	ResultNotFound = "not_found"
)

// Metrics groups every collector the node updates.
type Metrics struct {
	tipHeight     prometheus.Gauge
	syncedHeaders prometheus.Gauge
	storeBytes    prometheus.Gauge
	minHashZeros  prometheus.Gauge
	rpcErrors     prometheus.Counter
	reorgs        prometheus.Counter
	rangeRequests *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tipHeight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_height",
			Help:      "Height of the last header received from the node.",
		}),
		syncedHeaders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synced_headers",
			Help:      "Number of confirmed headers in the compact store.",
		}),
		storeBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_bytes",
			Help:      "Size of the compact store in bytes.",
		}),
		minHashZeros: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "min_hash_leading_zeros",
			Help:      "Leading zero hex digits of the lowest header hash seen.",
		}),
		rpcErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "Failed header lookups against the node.",
		}),
		reorgs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorgs_total",
			Help:      "Stored headers replaced by a different branch.",
		}),
		rangeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_requests_total",
			Help:      "Range requests served, by transport and result.",
		}, []string{"transport", "result"}),
	}
}

func (m *Metrics) ObserveTip(height uint64) {
	if m == nil {
		return
	}
	m.tipHeight.Set(float64(height))
}

func (m *Metrics) ObserveStore(headers, bytes uint64) {
	if m == nil {
		return
	}
	m.syncedHeaders.Set(float64(headers))
	m.storeBytes.Set(float64(bytes))
}

func (m *Metrics) ObserveMinHash(h chainhash.Hash) {
	if m == nil {
		return
	}
	s := h.String()
	m.minHashZeros.Set(float64(len(s) - len(strings.TrimLeft(s, "0"))))
}

func (m *Metrics) RPCError() {
	if m == nil {
		return
	}
	m.rpcErrors.Inc()
}

func (m *Metrics) Reorg() {
	if m == nil {
		return
	}
	m.reorgs.Inc()
}

// RangeRequest counts one request. result is one of the Result constants.
func (m *Metrics) RangeRequest(transport, result string) {
	if m == nil {
		return
	}
	m.rangeRequests.WithLabelValues(transport, result).Inc()
}
