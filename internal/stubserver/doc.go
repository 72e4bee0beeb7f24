// Package stubserver is a bench implementation of the sensorlink server
// side of the wire protocol, for exercising devices without the real
// backend.
//
// Endpoints:
//
//	POST /setup/{name}         register with a provisioning token, returns a credential
//	POST /newdata              JSON push payload
//	POST /stillhere            form-encoded ping
//	GET  /sensorparams/{name}  parameters from the YAML params file (?token=)
//	GET  /ip                   caller address, usable as ip_lookup_url
//	GET  /devices              registered devices
//	GET  /feed                 WebSocket stream of handled requests
//
// Credentials live in memory and are lost on restart. With accepted tokens
// configured each token registers exactly one device; without them any
// token is accepted. The server can announce itself over mDNS so that
// `sensorlink discover` finds it.
package stubserver
