package monitor

import (
	"context"
	"time"

	"github.com/muurk/sensorlink/internal/config"
	"github.com/muurk/sensorlink/internal/connection"
)

// Device is the part of a connection the monitor drives.
// *connection.Connection implements it.
type Device interface {
	Ping(ctx context.Context) (*connection.Result, error)
	ResolveParams(ctx context.Context, base connection.Params) (connection.Params, connection.ParamReport)
	WatchParams(ctx context.Context, onChange func()) error
	Stats() connection.StatsSnapshot
	Credential() connection.Credential
	Identity() connection.NetworkIdentity
	Uptime() time.Duration
}

var _ Device = (*connection.Connection)(nil)

// Options configures a monitor run.
type Options struct {
	// Interval between pings. Zero uses config.DefaultMonitorInterval.
	Interval time.Duration

	// Base parameters that local and remote overrides are layered onto.
	Base connection.Params

	// WatchParams re-resolves parameters whenever the params file changes.
	WatchParams bool
}

func (o Options) interval() time.Duration {
	if o.Interval <= 0 {
		return config.DefaultMonitorInterval
	}
	return o.Interval
}

// PingOutcome is the result of one ping cycle.
type PingOutcome struct {
	At     time.Time
	Result *connection.Result
	Err    error
}

// ParamsOutcome is the result of one parameter resolution.
type ParamsOutcome struct {
	At     time.Time
	Params connection.Params
	Report connection.ParamReport
}
