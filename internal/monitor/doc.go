// Package monitor keeps a provisioned device checking in with the server.
//
// Run is the headless loop used by services: it pings on a fixed interval,
// resolves parameters once at start and again whenever the params file
// changes. Failures are logged and reported through Hooks; the loop only
// stops when its context is cancelled.
//
// RunInteractive shows the same cycle as a Bubble Tea screen with the
// device identity, the last ping, the telemetry counters and the resolved
// parameters. Keys: p pings now, r re-resolves parameters, q quits.
package monitor
