package connection

import (
	"strconv"
	"sync/atomic"
)

// Stats holds the process-lifetime telemetry counters.
// All fields are updated atomically; read them through Snapshot.
type Stats struct {
	pushAttempts    atomic.Uint64
	pushFailures    atomic.Uint64
	pingAttempts    atomic.Uint64
	pingFailures    atomic.Uint64
	transportErrors atomic.Uint64
	consecNetErrs   atomic.Uint64
}

// StatsSnapshot is an immutable copy of the counters.
type StatsSnapshot struct {
	PushAttempts             uint64 `json:"push_attempts"`
	PushFailures             uint64 `json:"push_failures"`
	PingAttempts             uint64 `json:"ping_attempts"`
	PingFailures             uint64 `json:"ping_failures"`
	TransportErrors          uint64 `json:"transport_errors"`
	ConsecutiveNetworkErrors uint64 `json:"consec_net_errs"`
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	// Failures are loaded before attempts so a concurrent increment can never
	// make a snapshot show more failures than attempts.
	pushFailures := s.pushFailures.Load()
	pingFailures := s.pingFailures.Load()
	return StatsSnapshot{
		PushFailures:             pushFailures,
		PushAttempts:             s.pushAttempts.Load(),
		PingFailures:             pingFailures,
		PingAttempts:             s.pingAttempts.Load(),
		TransportErrors:          s.transportErrors.Load(),
		ConsecutiveNetworkErrors: s.consecNetErrs.Load(),
	}
}

// attempt records the start of a request of the given kind.
func (s *Stats) attempt(kind requestKind) {
	switch kind {
	case kindPing:
		s.pingAttempts.Add(1)
	case kindPush:
		s.pushAttempts.Add(1)
	}
}

// success records a 2xx response.
func (s *Stats) success() {
	s.consecNetErrs.Store(0)
}

// rejected records a non-2xx response.
func (s *Stats) rejected(kind requestKind) {
	s.consecNetErrs.Add(1)
	switch kind {
	case kindPing:
		s.pingFailures.Add(1)
	case kindPush:
		s.pushFailures.Add(1)
	}
}

// unreachable records a request that produced no response.
func (s *Stats) unreachable() {
	s.transportErrors.Add(1)
	s.consecNetErrs.Add(1)
}

// Map returns the snapshot keyed by wire field names. It is used for the
// ping form body and for logging.
func (s StatsSnapshot) Map() map[string]uint64 {
	return map[string]uint64{
		"push_attempts":    s.PushAttempts,
		"push_failures":    s.PushFailures,
		"ping_attempts":    s.PingAttempts,
		"ping_failures":    s.PingFailures,
		"transport_errors": s.TransportErrors,
		"consec_net_errs":  s.ConsecutiveNetworkErrors,
	}
}

// formValues renders the snapshot as strings for form-encoded payloads.
func (s StatsSnapshot) formValues() map[string]string {
	out := make(map[string]string, 6)
	for k, v := range s.Map() {
		out[k] = strconv.FormatUint(v, 10)
	}
	return out
}
