// Package connection is the network and identity core of a sensorlink device.
//
// A Connection owns the device credential, provisions it with the server
// when none is stored, resolves runtime parameters from layered sources
// and sends telemetry with failure accounting. It never schedules work on
// its own; callers decide when to ping and push.
//
// # Construction
//
// New validates the configuration before any network I/O, resolves the
// network identity (public IP and hostname, "unknown" on failure), then
// loads the credential file. A missing or unreadable file triggers
// self-provisioning through the configured Provisioner. The new credential
// is persisted atomically before New returns.
//
//	conn, err := connection.New(ctx, connection.Config{
//	    CredentialsPath:       "/var/lib/sensorlink/credentials.json",
//	    ProvisioningTokenPath: "/boot/provtok.json",
//	    URLBase:               "https://telemetry.example.com/api",
//	    DeviceSerial:          "00000000a1b2c3d4",
//	})
//	if err != nil {
//	    log.Fatal(connection.Hint(err))
//	}
//
// # Telemetry
//
// Ping and Push attempt exactly once. Both return a *Result whenever the
// server answered; a non-2xx answer also returns a RemoteRejection error.
// When no answer was received the Result is nil and the error is a
// TransportFailure. Counters are updated in all cases and can be read with
// Stats or exported with NewStatsCollector.
//
// # Parameters
//
// ResolveParams layers overrides on top of caller defaults:
//
//	base < local params file < remote /sensorparams/<node>
//
// Keys used by the credential and transport subsystems are protected and
// never overwritten. Source failures are returned in the ParamReport and
// logged, never propagated.
package connection
