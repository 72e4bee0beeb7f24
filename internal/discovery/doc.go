// Package discovery finds sensorlink telemetry servers on the local network.
//
// Servers advertise the "_sensorlink._tcp" mDNS service. The "path" TXT
// record carries the API prefix and an optional "scheme=https" record
// switches the base URL to TLS, so a discovered Server can be turned into
// a url_base directly:
//
//	srv, err := discovery.NewScanner().First(ctx)
//	if err != nil {
//	    return err
//	}
//	cfg.URLBase = srv.BaseURL()
//
// Advertise is the server side of the same convention and is used by the
// bench stub server.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Device and server must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
