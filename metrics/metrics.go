// Package metrics wires prometheus counters and gauges around the
// signaling state machine's observable transitions. It follows the
// package-level-CounterVec-plus-MustRegister shape used by
// Klickk-SecuMSG-Server's observability/metrics packages; none of it
// feeds back into signaling behavior, it only counts what already
// happened (spec §6's event surface, concretized for an operator).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StateTransitionsTotal counts every top-level Signaling state change,
	// labeled by the state reached.
	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saltyrtc_state_transitions_total",
			Help: "Total number of signaling state transitions, by state reached.",
		},
		[]string{"state"},
	)

	// HandshakeFailuresTotal counts server- and peer-handshake aborts,
	// labeled by the close code that ended them.
	HandshakeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saltyrtc_handshake_failures_total",
			Help: "Total number of handshake failures, by close code.",
		},
		[]string{"close_code"},
	)

	// CSNViolationsTotal counts rejected inbound frames due to a
	// non-advancing combined sequence number (spec §8 invariant 1).
	CSNViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saltyrtc_csn_violations_total",
			Help: "Total number of inbound frames rejected for CSN regression.",
		},
	)

	// CookieViolationsTotal counts rejected inbound frames due to a
	// cookie collision or mismatch (spec §8 invariant 3).
	CookieViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saltyrtc_cookie_violations_total",
			Help: "Total number of inbound frames rejected for a cookie violation.",
		},
	)

	// ConnectedPeers tracks the number of live signaling connections this
	// process currently holds open.
	ConnectedPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "saltyrtc_connected_peers",
			Help: "Number of signaling connections currently open.",
		},
	)
)

// MustRegister registers every collector above with the default
// prometheus registry. Call once per process.
func MustRegister() {
	prometheus.MustRegister(
		StateTransitionsTotal,
		HandshakeFailuresTotal,
		CSNViolationsTotal,
		CookieViolationsTotal,
		ConnectedPeers,
	)
}
